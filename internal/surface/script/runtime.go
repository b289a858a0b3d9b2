package script

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// hostEvent is the window event type host commands are dispatched as.
const hostEvent = "ArcadiaBridge"

const prelude = `
(function (w) {
	w.CustomEvent = function (type, init) {
		this.type = type;
		this.detail = init && init.detail !== undefined ? init.detail : null;
	};
	w.Event = function (type) { this.type = type; };
	w.document = {
		readyState: 'complete',
		addEventListener: function (type, fn) { w.addEventListener(type, fn); },
		removeEventListener: function (type, fn) { w.removeEventListener(type, fn); }
	};
	w.parent = { postMessage: function (msg) {
		w.ReactNativeWebView.postMessage(typeof msg === 'string' ? msg : JSON.stringify(msg));
	} };
})(window);
`

type timer struct {
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
	repeat   bool
	stop     func() bool
}

// runtime is a goja VM with the host shims installed. It is owned by a
// single goroutine: every method must be called from it.
type runtime struct {
	vm        *goja.Runtime
	logger    *zap.Logger
	listeners map[string][]goja.Value
	timers    map[int64]*timer
	nextTimer int64
	schedule  func(delay time.Duration, job func() error) func() bool
}

func newRuntime(logger *zap.Logger, config map[string]any, emit func([]byte), schedule func(time.Duration, func() error) func() bool) (*runtime, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	r := &runtime{
		vm:        vm,
		logger:    logger,
		listeners: make(map[string][]goja.Value),
		timers:    make(map[int64]*timer),
		schedule:  schedule,
	}

	global := vm.GlobalObject()
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = global.Set(name, goja.Undefined())
	}
	_ = global.Set("window", global)
	_ = global.Set("self", global)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, r.consoleFunc(level))
	}
	_ = global.Set("console", console)

	_ = global.Set("addEventListener", r.addEventListener)
	_ = global.Set("removeEventListener", r.removeEventListener)
	_ = global.Set("dispatchEvent", r.dispatchEvent)
	_ = global.Set("setTimeout", r.setTimer(false))
	_ = global.Set("setInterval", r.setTimer(true))
	_ = global.Set("clearTimeout", r.clearTimer)
	_ = global.Set("clearInterval", r.clearTimer)

	native := vm.NewObject()
	_ = native.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		emit([]byte(call.Argument(0).String()))
		return goja.Undefined()
	})
	_ = global.Set("ReactNativeWebView", native)

	if config != nil {
		_ = global.Set("ARCADIA_CONFIG", vm.ToValue(config))
	} else {
		_ = global.Set("ARCADIA_CONFIG", goja.Null())
	}

	if _, err := vm.RunString(prelude); err != nil {
		return nil, err
	}
	return r, nil
}

// run evaluates one script.
func (r *runtime) run(src Source) error {
	_, err := r.vm.RunScript(src.Name, src.Code)
	return err
}

// fire calls every listener for typ with event. Exceptions thrown by
// content are logged; only an interrupt is returned.
func (r *runtime) fire(typ string, event goja.Value) error {
	for _, l := range append([]goja.Value(nil), r.listeners[typ]...) {
		fn, ok := goja.AssertFunction(l)
		if !ok {
			continue
		}
		if _, err := fn(goja.Undefined(), event); err != nil {
			if isInterrupt(err) {
				return err
			}
			r.logger.Debug("listener threw", zap.String("event", typ), zap.Error(err))
		}
	}
	return nil
}

// fireLoad signals the window load event.
func (r *runtime) fireLoad() error {
	ev := r.vm.NewObject()
	_ = ev.Set("type", "load")
	return r.fire("load", ev)
}

// deliver dispatches a host frame as an ArcadiaBridge event whose detail is
// the decoded envelope.
func (r *runtime) deliver(raw []byte) error {
	var detail map[string]any
	if err := sonic.Unmarshal(raw, &detail); err != nil {
		r.logger.Debug("undecodable host frame", zap.Error(err))
		return nil
	}
	ev := r.vm.NewObject()
	_ = ev.Set("type", hostEvent)
	_ = ev.Set("detail", r.vm.ToValue(detail))
	return r.fire(hostEvent, ev)
}

func (r *runtime) addEventListener(call goja.FunctionCall) goja.Value {
	typ := call.Argument(0).String()
	fn := call.Argument(1)
	if _, ok := goja.AssertFunction(fn); ok {
		r.listeners[typ] = append(r.listeners[typ], fn)
	}
	return goja.Undefined()
}

func (r *runtime) removeEventListener(call goja.FunctionCall) goja.Value {
	typ := call.Argument(0).String()
	fn := call.Argument(1)
	kept := r.listeners[typ][:0]
	for _, l := range r.listeners[typ] {
		if !l.SameAs(fn) {
			kept = append(kept, l)
		}
	}
	r.listeners[typ] = kept
	return goja.Undefined()
}

func (r *runtime) dispatchEvent(call goja.FunctionCall) goja.Value {
	ev := call.Argument(0)
	if goja.IsUndefined(ev) || goja.IsNull(ev) {
		return r.vm.ToValue(false)
	}
	typ := ev.ToObject(r.vm).Get("type")
	if typ == nil {
		return r.vm.ToValue(false)
	}
	if err := r.fire(typ.String(), ev); err != nil {
		// Re-arm so the calling script unwinds too.
		r.vm.Interrupt(err)
	}
	return r.vm.ToValue(true)
}

func (r *runtime) setTimer(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		if repeat && delay < time.Millisecond {
			delay = time.Millisecond
		}

		r.nextTimer++
		tid := r.nextTimer
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		t := &timer{fn: fn, args: args, interval: delay, repeat: repeat}
		r.timers[tid] = t
		r.arm(tid, t)
		return r.vm.ToValue(tid)
	}
}

func (r *runtime) arm(tid int64, t *timer) {
	t.stop = r.schedule(t.interval, func() error {
		if r.timers[tid] != t {
			return nil
		}
		if !t.repeat {
			delete(r.timers, tid)
		} else {
			r.arm(tid, t)
		}
		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			if isInterrupt(err) {
				return err
			}
			r.logger.Debug("timer callback threw", zap.Error(err))
		}
		return nil
	})
}

func (r *runtime) clearTimer(call goja.FunctionCall) goja.Value {
	tid := call.Argument(0).ToInteger()
	if t, ok := r.timers[tid]; ok {
		if t.stop != nil {
			t.stop()
		}
		delete(r.timers, tid)
	}
	return goja.Undefined()
}

// stopTimers cancels every pending timer.
func (r *runtime) stopTimers() {
	for tid, t := range r.timers {
		if t.stop != nil {
			t.stop()
		}
		delete(r.timers, tid)
	}
}

func (r *runtime) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		r.logger.Debug("console", zap.String("level", level), zap.String("text", strings.Join(parts, " ")))
		return goja.Undefined()
	}
}

func isInterrupt(err error) bool {
	_, ok := err.(*goja.InterruptedError)
	return ok
}
