package jseval

import (
	"errors"

	"github.com/GriffinCanCode/jseval/internal/process"
	"github.com/GriffinCanCode/jseval/internal/protocol"
	"github.com/GriffinCanCode/jseval/internal/transport"
)

var (
	// ErrSetupTimeout is returned by New when the sidecar does not create
	// its endpoint within the ready timeout, or exits before doing so.
	ErrSetupTimeout = errors.New("sidecar did not become ready")

	// ErrClosed is returned by calls on a closed Evaluator.
	ErrClosed = errors.New("evaluator closed")
)

// ErrorObject is one link of the error chain reported by the sidecar.
type ErrorObject = protocol.ErrorObject

// SpawnError reports that the sidecar executable could not be started.
// errors.Is(err, exec.ErrNotFound) holds when it is missing from PATH.
type SpawnError = process.SpawnError

// TransportError reports a failure to exchange a request with the sidecar:
// connection errors, malformed response bodies and unexpected statuses.
type TransportError = transport.Error

// EvaluationError reports that the evaluated code threw or rejected.
type EvaluationError struct {
	Object *ErrorObject
}

// Error returns the formatted cause chain.
func (e *EvaluationError) Error() string {
	return protocol.Format(e.Object)
}

// Unwrap exposes the error chain, so errors.As can reach any cause.
func (e *EvaluationError) Unwrap() error {
	if e.Object == nil {
		return nil
	}
	return e.Object
}

// Message returns the top-level error message.
func (e *EvaluationError) Message() string {
	if e.Object == nil {
		return ""
	}
	return e.Object.Message
}
