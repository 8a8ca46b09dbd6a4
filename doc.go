/*
Package jseval runs JavaScript in a managed sidecar process and returns
JSON results.

# Overview

An Evaluator owns exactly one sidecar: a process started in its own process
group, listening for HTTP on a unix socket inside a private temporary
directory. Code is posted to the sidecar and runs there as the body of a
function, either plain (Run) or async (RunAsync). State assigned to this
survives between calls on the same Evaluator.

	err := jseval.With(ctx, func(e *jseval.Evaluator) error {
		if _, err := e.Run(ctx, "this.x = 6*7;"); err != nil {
			return err
		}
		v, err := e.RunAsync(ctx, "return this.x;")
		fmt.Println(v) // 42
		return err
	})

# Sidecar

By default the sidecar is the http-eval executable found on PATH, launched
as

	http-eval --udsPath <tmpdir>/http.sock

Any program that speaks the same protocol can be used instead, see
WithExecutable. This module ships one in cmd/http-eval.

# Errors

Failures are reported with distinct types so callers can tell them apart:

  - ErrSetupTimeout: the sidecar never created its socket
  - *SpawnError: the sidecar could not be started
  - *TransportError: the request or response could not be exchanged
  - *EvaluationError: the code threw or its promise rejected
  - ErrClosed: the Evaluator was already closed

Nothing is retried.

# Cleanup

Close interrupts the sidecar's whole process group, waits for the sidecar
to exit and removes the temporary directory. It runs on every path,
including failed setup, and is safe to call more than once.

Evaluators are unix-only.
*/
package jseval
