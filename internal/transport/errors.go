package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("transport session closed")
	// ErrUnexpectedStatus marks a non-2xx response that carried no
	// evaluation error.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMalformedResponse marks a body that is valid JSON but not a
	// response object.
	ErrMalformedResponse = errors.New("malformed response")
)

// Error reports a failure to exchange a request with the sidecar. It is
// never used for errors raised by the evaluated code itself.
type Error struct {
	Op         string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s %s: status %d: %v", e.Op, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
