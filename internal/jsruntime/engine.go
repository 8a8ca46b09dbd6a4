package jsruntime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jseval/internal/protocol"
)

// ErrClosed is returned by Eval once the engine has been closed.
var ErrClosed = errors.New("engine closed")

// Options configures an Engine.
type Options struct {
	// Console installs a Node-style console writing to stdout and stderr.
	Console bool
	// MaxCallStack bounds JavaScript recursion depth. Zero keeps goja's default.
	MaxCallStack int
	Logger       *zap.Logger
}

// Engine evaluates code on a single event loop.
type Engine struct {
	loop   *eventloop.EventLoop
	logger *zap.Logger

	// Only touched on the loop goroutine.
	scope     *goja.Object
	stringify goja.Callable

	stopped   chan struct{}
	closeOnce sync.Once
}

// New starts an engine and its event loop.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		loop:    eventloop.NewEventLoop(eventloop.EnableConsole(opts.Console)),
		logger:  logger,
		stopped: make(chan struct{}),
	}
	e.loop.Start()

	ready := make(chan error, 1)
	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		ready <- e.setup(vm, opts)
	})
	if err := <-ready; err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) setup(vm *goja.Runtime, opts Options) error {
	if opts.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(opts.MaxCallStack)
	}

	jsonObj := vm.Get("JSON").ToObject(vm)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify is not callable")
	}

	e.stringify = stringify
	e.scope = vm.NewObject()
	return nil
}

// Eval runs code in mode and returns the response the sidecar should send.
// An error is returned only when no response can be produced at all.
func (e *Engine) Eval(ctx context.Context, code string, mode protocol.Mode) (*protocol.Response, error) {
	select {
	case <-e.stopped:
		return nil, ErrClosed
	default:
	}

	// Buffered so a late outcome never blocks the loop.
	done := make(chan *protocol.Response, 1)
	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		e.start(vm, code, mode, done)
	})

	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stopped:
		return nil, ErrClosed
	}
}

// start compiles and invokes code. Sync outcomes are delivered immediately;
// async ones when the returned promise settles.
func (e *Engine) start(vm *goja.Runtime, code string, mode protocol.Mode, done chan<- *protocol.Response) {
	fn, err := compile(vm, code, mode)
	if err != nil {
		done <- failure(errorFromGo(vm, err))
		return
	}

	ret, err := fn(e.scope)
	if err != nil {
		done <- failure(errorFromGo(vm, err))
		return
	}

	if mode != protocol.ModeAsync {
		done <- e.result(vm, ret)
		return
	}

	promise := ret.ToObject(vm)
	then, ok := goja.AssertFunction(promise.Get("then"))
	if !ok {
		done <- e.result(vm, ret)
		return
	}

	onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		done <- e.result(vm, call.Argument(0))
		return goja.Undefined()
	})
	onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		done <- failure(errorFromValue(vm, call.Argument(0)))
		return goja.Undefined()
	})
	if _, err := then(promise, onFulfilled, onRejected); err != nil {
		done <- failure(errorFromGo(vm, err))
	}
}

// result serializes v with the engine's JSON.stringify.
func (e *Engine) result(vm *goja.Runtime, v goja.Value) *protocol.Response {
	if v == nil || goja.IsUndefined(v) {
		return &protocol.Response{}
	}

	encoded, err := e.stringify(goja.Undefined(), v)
	if err != nil {
		return failure(errorFromGo(vm, err))
	}
	if goja.IsUndefined(encoded) {
		return failure(&protocol.ErrorObject{Message: "TypeError: result is not JSON-serializable"})
	}
	return &protocol.Response{Result: json.RawMessage(encoded.String())}
}

// Close stops the event loop. Pending evaluations fail with ErrClosed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.stopped)
		e.loop.Stop()
		e.logger.Debug("Engine stopped")
	})
}

func compile(vm *goja.Runtime, code string, mode protocol.Mode) (goja.Callable, error) {
	prefix := "(function() {\n"
	if mode == protocol.ModeAsync {
		prefix = "(async function() {\n"
	}

	prog, err := goja.Compile("<eval>", prefix+code+"\n})", false)
	if err != nil {
		return nil, err
	}
	val, err := vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}

	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, errors.New("compiled code is not a function")
	}
	return fn, nil
}

func failure(obj *protocol.ErrorObject) *protocol.Response {
	return &protocol.Response{Error: obj}
}
