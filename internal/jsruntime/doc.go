/*
Package jsruntime executes evaluation requests for the reference sidecar on
an embedded goja engine.

# Overview

One Engine owns one goja runtime driven by a goja_nodejs event loop. All
JavaScript runs on the loop goroutine; Eval only schedules work and waits
for its outcome, so any number of callers may evaluate concurrently and
async code interleaves through timers and promises exactly as it would
under Node.js.

# Evaluation

Submitted code becomes the body of a function:

	(function() { <code> })          // sync
	(async function() { <code> })    // async, the promise is awaited

The function is invoked with this bound to a scope object that lives as
long as the Engine, so state written to this.x survives between calls.
Results are serialized with the engine's own JSON.stringify.

Thrown values become protocol.ErrorObject chains: the message is the
value's string conversion ("ReferenceError: foo is not defined"), the stack
is copied when present and the cause property is followed recursively.

# Security

The engine is not a sandbox. It isolates nothing beyond the sidecar
process it runs in.
*/
package jsruntime
