package bridge

import (
	"github.com/dop251/goja"
)

// Global is the name the bridge object is installed under
const Global = "__sbx__"

// Install exposes relay to suite code running in vm as the __sbx__ global.
//
// The object carries start (replaceable by the adapter), loaded, info,
// result, complete, error, log, config, setupContext and a generic call for
// any other consumer method. It returns the installed object.
func Install(vm *goja.Runtime, relay *Relay) *goja.Object {
	obj := vm.NewObject()

	stub := vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(vm.NewGoError(ErrNoStarter))
	})

	forward := func(method string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			_ = relay.Call(method, exportArgs(call.Arguments)...)
			return goja.Undefined()
		}
	}

	_ = obj.Set("config", vm.ToValue(relay.Config()))
	_ = obj.Set("start", stub)
	_ = obj.Set("loaded", func(goja.FunctionCall) goja.Value {
		start := obj.Get("start")
		_ = obj.Set("start", stub)
		fn, ok := goja.AssertFunction(start)
		if !ok {
			panic(vm.NewGoError(ErrNoStarter))
		}
		if _, err := fn(obj, obj.Get("config")); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	})
	_ = obj.Set("info", func(call goja.FunctionCall) goja.Value {
		args := exportArgs(call.Arguments)
		if len(args) == 0 {
			args = []any{nil}
		}
		_ = relay.Info(args[0], args[1:]...)
		return goja.Undefined()
	})
	_ = obj.Set("result", forward("result"))
	_ = obj.Set("complete", forward("complete"))
	_ = obj.Set("error", forward("error"))
	_ = obj.Set("log", forward("log"))
	_ = obj.Set("call", func(call goja.FunctionCall) goja.Value {
		method := call.Argument(0).String()
		_ = relay.Call(method, exportArgs(call.Arguments[min(1, len(call.Arguments)):])...)
		return goja.Undefined()
	})
	_ = obj.Set("setupContext", func(call goja.FunctionCall) goja.Value {
		target, ok := call.Argument(0).(*goja.Object)
		if !ok {
			target = vm.GlobalObject()
		}
		setupContext(vm, relay, target)
		return goja.Undefined()
	})

	_ = vm.Set(Global, obj)
	return obj
}

// setupContext routes error reporting, dumps and dialogs of target through
// the relay. confirm and prompt are logged and then delegated to the
// functions target had before.
func setupContext(vm *goja.Runtime, relay *Relay, target *goja.Object) {
	nativeConfirm, _ := goja.AssertFunction(target.Get("confirm"))
	nativePrompt, _ := goja.AssertFunction(target.Get("prompt"))

	_ = target.Set("onerror", func(call goja.FunctionCall) goja.Value {
		_ = relay.Error(exportArgs(call.Arguments)...)
		return goja.Undefined()
	})
	_ = target.Set("dump", func(call goja.FunctionCall) goja.Value {
		_ = relay.Log("dump", exportArgs(call.Arguments))
		return goja.Undefined()
	})
	_ = target.Set("alert", func(call goja.FunctionCall) goja.Value {
		_ = relay.Log("alert", []any{call.Argument(0).Export()})
		return goja.Undefined()
	})
	_ = target.Set("confirm", func(call goja.FunctionCall) goja.Value {
		_ = relay.Log("confirm", []any{call.Argument(0).Export()})
		if nativeConfirm == nil {
			return vm.ToValue(false)
		}
		v, err := nativeConfirm(target, call.Argument(0))
		if err != nil {
			throw(vm, err)
		}
		return v
	})
	_ = target.Set("prompt", func(call goja.FunctionCall) goja.Value {
		_ = relay.Log("prompt", []any{call.Argument(0).Export(), call.Argument(1).Export()})
		if nativePrompt == nil {
			return goja.Null()
		}
		v, err := nativePrompt(target, call.Argument(0), call.Argument(1))
		if err != nil {
			throw(vm, err)
		}
		return v
	})
}

func exportArgs(values []goja.Value) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		if v == nil || goja.IsUndefined(v) {
			args = append(args, nil)
			continue
		}
		args = append(args, v.Export())
	}
	return args
}

// throw rethrows err inside the vm, keeping the original JavaScript value for
// exceptions.
func throw(vm *goja.Runtime, err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(vm.NewGoError(err))
}
