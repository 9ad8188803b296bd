package bridge

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVM(t *testing.T, config any) (*goja.Runtime, *recorder) {
	t.Helper()
	vm := goja.New()
	rec := &recorder{}
	Install(vm, NewRelay(rec.post, config))
	return vm, rec
}

func TestInstallStartAndLoaded(t *testing.T) {
	vm, rec := newVM(t, map[string]any{"suite": "ui"})

	_, err := vm.RunString(`
		var seen;
		__sbx__.start = function (config) {
			seen = config.suite;
			__sbx__.info({ total: 1 });
			__sbx__.result({ id: 0, success: true });
			__sbx__.complete({});
		};
		__sbx__.loaded();
	`)
	require.NoError(t, err)

	assert.Equal(t, "ui", vm.Get("seen").String())
	require.Len(t, rec.calls, 3)
	assert.Equal(t, "started", rec.calls[0].action)
	assert.Equal(t, []any{int64(1)}, rec.calls[0].args)
	assert.Equal(t, "result", rec.calls[1].action)
	assert.Equal(t, "complete", rec.calls[2].action)
}

func TestInstallLoadedTwiceThrows(t *testing.T) {
	vm, _ := newVM(t, nil)

	_, err := vm.RunString(`
		__sbx__.start = function () {};
		__sbx__.loaded();
		__sbx__.loaded();
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrNoStarter.Error())
}

func TestInstallStartStubThrows(t *testing.T) {
	vm, _ := newVM(t, nil)

	_, err := vm.RunString(`__sbx__.start({})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrNoStarter.Error())
}

func TestInstallCallForwardsAnyMethod(t *testing.T) {
	vm, rec := newVM(t, nil)

	_, err := vm.RunString(`__sbx__.call("custom", "a", 2)`)
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, posted{action: "custom", args: []any{"a", int64(2)}}, rec.calls[0])
}

func TestSetupContext(t *testing.T) {
	vm, rec := newVM(t, nil)
	require.NoError(t, vm.Set("confirm", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(true)
	}))

	_, err := vm.RunString(`
		__sbx__.setupContext(this);
		var ok = confirm("sure?");
		var answer = prompt("name?", "x");
		alert("hi");
		dump({ a: 1 });
		var handled = onerror("boom", "suite.js", 3);
	`)
	require.NoError(t, err)

	assert.True(t, vm.Get("ok").ToBoolean())
	assert.True(t, goja.IsNull(vm.Get("answer")))
	assert.True(t, goja.IsUndefined(vm.Get("handled")))

	assert.Equal(t, []posted{
		{action: "log", args: []any{"confirm", []any{"sure?"}}},
		{action: "log", args: []any{"prompt", []any{"name?", "x"}}},
		{action: "log", args: []any{"alert", []any{"hi"}}},
		{action: "log", args: []any{"dump", []any{map[string]any{"a": int64(1)}}}},
		{action: "error", args: []any{"boom", "suite.js", int64(3)}},
	}, rec.calls)
}
