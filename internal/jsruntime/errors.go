package jsruntime

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/jseval/internal/protocol"
)

// errorFromGo converts an error returned by goja into an error object.
// Compile errors already render as "SyntaxError: ...".
func errorFromGo(vm *goja.Runtime, err error) *protocol.ErrorObject {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		obj := errorFromValue(vm, ex.Value())
		if obj.Stack == "" {
			obj.Stack = ex.String()
		}
		return obj
	}

	return &protocol.ErrorObject{Message: err.Error()}
}

// errorFromValue converts a thrown or rejected value. Cause chains are
// followed to the end; cycles, which JavaScript allows, stop at the first
// object seen twice.
func errorFromValue(vm *goja.Runtime, v goja.Value) *protocol.ErrorObject {
	root := &protocol.ErrorObject{}
	seen := make(map[*goja.Object]bool)

	for link := root; ; {
		if v == nil || goja.IsUndefined(v) {
			link.Message = "undefined"
			return root
		}
		if goja.IsNull(v) {
			link.Message = "null"
			return root
		}
		link.Message = safeString(v)

		o, ok := v.(*goja.Object)
		if !ok {
			return root
		}
		seen[o] = true
		if stack := o.Get("stack"); present(stack) {
			link.Stack = safeString(stack)
		}

		cause := o.Get("cause")
		if !present(cause) {
			return root
		}
		if co, ok := cause.(*goja.Object); ok && seen[co] {
			return root
		}
		link.Cause = &protocol.ErrorObject{}
		link, v = link.Cause, cause
	}
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// safeString converts v to a string, tolerating a toString that throws.
func safeString(v goja.Value) (s string) {
	defer func() {
		if recover() != nil {
			s = "[object]"
		}
	}()
	return v.String()
}
