// Package protocol defines the JSON wire format spoken between the
// evaluator and its sidecar, and renders sidecar error chains.
//
//	POST /run?async=true|false
//	{"code": "return 6*7;"}
//
//	200 {"result": 42}
//	500 {"error": {"message": "ReferenceError: foo is not defined", "cause": {...}}}
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// RunPath is the only evaluation route the sidecar exposes.
	RunPath = "/run"
	// AsyncParam is the query parameter carrying the evaluation mode.
	AsyncParam = "async"
	// RequestIDHeader carries the caller's request ID for log correlation.
	RequestIDHeader = "X-Request-ID"
)

// Mode selects how the sidecar wraps the submitted code.
type Mode int

const (
	// ModeSync runs the code as the body of a plain function.
	ModeSync Mode = iota
	// ModeAsync runs the code as the body of an async function; the
	// sidecar awaits the returned promise before responding.
	ModeAsync
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// QueryValue returns the wire value of the async query parameter.
func (m Mode) QueryValue() string {
	if m == ModeAsync {
		return "true"
	}
	return "false"
}

// ParseMode decodes the async query parameter. Anything but "true" is sync.
func ParseMode(value string) Mode {
	if value == "true" {
		return ModeAsync
	}
	return ModeSync
}

// Request is the body of POST /run.
type Request struct {
	Code string `json:"code"`
}

// Response is the body returned by POST /run. Error takes precedence over
// Result; a missing or null result means the code returned nothing.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// Failed reports whether the sidecar reported an evaluation error.
func (r *Response) Failed() bool {
	return r != nil && r.Error != nil
}

// Value returns the result, normalising "no explicit return" to JSON null.
func (r *Response) Value() json.RawMessage {
	if r == nil || len(r.Result) == 0 {
		return json.RawMessage("null")
	}
	return r.Result
}

// ErrorObject is one link of an error cause chain reported by the sidecar.
type ErrorObject struct {
	Message string       `json:"message"`
	Stack   string       `json:"stack,omitempty"`
	Cause   *ErrorObject `json:"cause,omitempty"`
}

// Error implements error so an ErrorObject can be wrapped directly.
func (e *ErrorObject) Error() string {
	return Format(e)
}

// Unwrap exposes the cause to errors.Is/As.
func (e *ErrorObject) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Depth returns the number of distinct links in the chain.
func (e *ErrorObject) Depth() int {
	seen := make(map[*ErrorObject]bool)
	for cur := e; cur != nil && !seen[cur]; cur = cur.Cause {
		seen[cur] = true
	}
	return len(seen)
}
