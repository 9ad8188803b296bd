package jsvm

import (
	"github.com/dop251/goja"
)

type timer struct {
	id       int64
	due      int64
	seq      int64
	interval int64
	repeat   bool
	fn       goja.Callable
	args     []goja.Value
}

// timerQueue runs setTimeout and setInterval callbacks on a virtual clock
// once the main script has finished. Callbacks fire in due order, ties in
// scheduling order. It is only touched from the runtime goroutine.
type timerQueue struct {
	now    int64
	seq    int64
	lastID int64
	timers []*timer
}

func (q *timerQueue) add(fn goja.Callable, delay int64, args []goja.Value, repeat bool) int64 {
	q.lastID++
	q.schedule(&timer{id: q.lastID, interval: max(delay, 0), repeat: repeat, fn: fn, args: args})
	return q.lastID
}

func (q *timerQueue) schedule(t *timer) {
	q.seq++
	t.seq = q.seq
	t.due = q.now + t.interval
	q.timers = append(q.timers, t)
}

func (q *timerQueue) clear(id int64) {
	for i, t := range q.timers {
		if t.id == id {
			q.timers = append(q.timers[:i], q.timers[i+1:]...)
			return
		}
	}
}

// next pops the earliest timer and advances the clock to it. Intervals are
// rescheduled before they run so the callback can clear them.
func (q *timerQueue) next() (*timer, bool) {
	if len(q.timers) == 0 {
		return nil, false
	}
	best := 0
	for i, t := range q.timers[1:] {
		b := q.timers[best]
		if t.due < b.due || (t.due == b.due && t.seq < b.seq) {
			best = i + 1
		}
	}
	t := q.timers[best]
	q.timers = append(q.timers[:best], q.timers[best+1:]...)
	q.now = t.due
	if t.repeat {
		q.schedule(&timer{id: t.id, interval: t.interval, repeat: true, fn: t.fn, args: t.args})
	}
	return t, true
}

func (q *timerQueue) install(vm *goja.Runtime) {
	schedule := func(repeat bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(vm.NewTypeError("timer callback is not a function"))
			}
			var args []goja.Value
			if len(call.Arguments) > 2 {
				args = call.Arguments[2:]
			}
			return vm.ToValue(q.add(fn, call.Argument(1).ToInteger(), args, repeat))
		}
	}
	cancel := func(call goja.FunctionCall) goja.Value {
		q.clear(call.Argument(0).ToInteger())
		return goja.Undefined()
	}

	_ = vm.Set("setTimeout", schedule(false))
	_ = vm.Set("setInterval", schedule(true))
	_ = vm.Set("clearTimeout", cancel)
	_ = vm.Set("clearInterval", cancel)
}
