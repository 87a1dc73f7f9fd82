// Package rune embeds the goja JavaScript runtime ("Rune" is Crucible's
// name for its embedded scripting language) and exposes the script.Bridge
// to it under two namespace aliases, mirroring package lua's contract.
package rune

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/reactor"
	"github.com/kadirpekel/crucible/script"
)

var namespaceAliases = []string{"crucible", "cr"}

// Runtime is one goja VM with the bridge and handler-registration API
// installed. Like package lua's Runtime, one instance is owned by one
// script file and is not shared across goroutines.
type Runtime struct {
	vm      *goja.Runtime
	bridge  script.Bridge
	reactor *reactor.Reactor
	source  string
}

// New constructs a Runtime bound to bridge and r, with the bridge API
// installed under both namespace aliases.
func New(bridge script.Bridge, r *reactor.Reactor, source string) *Runtime {
	rt := &Runtime{
		vm:      goja.New(),
		bridge:  bridge,
		reactor: r,
		source:  source,
	}
	rt.install()
	return rt
}

// Load evaluates a script's source in this runtime.
func (rt *Runtime) Load(src string) error {
	_, err := rt.vm.RunString(src)
	if err != nil {
		return fmt.Errorf("rune: %w", err)
	}
	return nil
}

func (rt *Runtime) install() {
	ns := rt.vm.NewObject()
	must := func(name string, fn func(goja.FunctionCall) goja.Value) {
		if err := ns.Set(name, fn); err != nil {
			panic(fmt.Sprintf("rune: installing %s: %v", name, err))
		}
	}

	must("create_session", rt.createSession)
	must("get_session", rt.getSession)
	must("list_sessions", rt.listSessions)
	must("configure_agent", rt.configureAgent)
	must("send_message", rt.sendMessage)
	must("cancel", rt.cancel)
	must("pause", rt.pause)
	must("resume", rt.resume)
	must("end_session", rt.endSession)
	must("respond_to_permission", rt.respondToPermission)
	must("subscribe", rt.subscribe)
	must("unsubscribe", rt.unsubscribe)
	must("register_handler", rt.registerHandler)

	for _, alias := range namespaceAliases {
		if err := rt.vm.Set(alias, ns); err != nil {
			panic(fmt.Sprintf("rune: setting global %s: %v", alias, err))
		}
	}
}

// result is the two-field object every bridge call resolves to:
// {value, error}, mirroring spec.md §7's "error as second tuple value"
// convention in object form since goja functions return a single Value.
type result struct {
	Value script.Value `json:"value"`
	Error string       `json:"error,omitempty"`
}

func (rt *Runtime) toResult(v script.Value, err error) goja.Value {
	r := result{Value: v}
	if err != nil {
		r.Error = err.Error()
	}
	return rt.vm.ToValue(r)
}

func (rt *Runtime) createSession(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.CreateSession(arg(call, 0), arg(call, 1), arg(call, 2))
	return rt.toResult(v, err)
}

func (rt *Runtime) getSession(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.GetSession(arg(call, 0))
	return rt.toResult(v, err)
}

func (rt *Runtime) listSessions(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.ListSessions()
	return rt.toResult(v, err)
}

func (rt *Runtime) configureAgent(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.ConfigureAgent(arg(call, 0), arg(call, 1))
	return rt.toResult(v, err)
}

func (rt *Runtime) sendMessage(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.SendMessage(context.Background(), arg(call, 0), arg(call, 1))
	return rt.toResult(v, err)
}

func (rt *Runtime) cancel(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.Cancel(arg(call, 0))
	return rt.toResult(v, err)
}

func (rt *Runtime) pause(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.Pause(arg(call, 0))
	return rt.toResult(v, err)
}

func (rt *Runtime) resume(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.Resume(arg(call, 0))
	return rt.toResult(v, err)
}

func (rt *Runtime) endSession(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.EndSession(arg(call, 0))
	return rt.toResult(v, err)
}

func (rt *Runtime) respondToPermission(call goja.FunctionCall) goja.Value {
	var response script.Value
	if len(call.Arguments) > 1 {
		response = call.Arguments[1].Export()
	}
	v, err := rt.bridge.RespondToPermission(arg(call, 0), response)
	return rt.toResult(v, err)
}

// subscribe returns a callable the script invokes repeatedly to pull
// events — the same pull-based iterator shape package lua exposes,
// letting a Rune script drive it from a plain while loop or an async
// generator wrapper it builds on top.
func (rt *Runtime) subscribe(call goja.FunctionCall) goja.Value {
	it, err := rt.bridge.Subscribe(arg(call, 0))
	if err != nil {
		return rt.toResult(nil, err)
	}
	next := func(goja.FunctionCall) goja.Value {
		v, err := it()
		return rt.toResult(v, err)
	}
	return rt.vm.ToValue(next)
}

func (rt *Runtime) unsubscribe(call goja.FunctionCall) goja.Value {
	v, err := rt.bridge.Unsubscribe(arg(call, 0), arg(call, 1))
	return rt.toResult(v, err)
}

// registerHandler installs a script-authored reactor handler from an
// options object: {name, pattern, fn, priority?, dependencies?}. fn
// receives the event as a plain object and returns a result object
// {kind, message?, payload?}.
func (rt *Runtime) registerHandler(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		panic(rt.vm.NewTypeError("register_handler requires an options object"))
	}
	opts := call.Arguments[0].ToObject(rt.vm)

	name, _ := opts.Get("name").Export().(string)
	pattern, _ := opts.Get("pattern").Export().(string)
	fnVal := opts.Get("fn")
	fn, ok := goja.AssertFunction(fnVal)
	if name == "" || pattern == "" || !ok {
		panic(rt.vm.NewTypeError("register_handler requires name, pattern, and fn"))
	}

	h := reactor.NewHandler("rune:"+rt.source+":"+name, pattern, rt.wrapHandler(fn))
	h.Source = "rune"
	if p := opts.Get("priority"); p != nil && !goja.IsUndefined(p) {
		h.Priority = int(p.ToInteger())
	}
	if deps := opts.Get("dependencies"); deps != nil && !goja.IsUndefined(deps) {
		if arr, ok := deps.Export().([]any); ok {
			for _, d := range arr {
				if s, ok := d.(string); ok {
					h.Dependencies = append(h.Dependencies, s)
				}
			}
		}
	}

	rt.reactor.Register(h)
	return goja.Undefined()
}

// wrapHandler adapts a goja callable into a reactor.Invoke, with the same
// failure-mode policy as package lua: a thrown exception or malformed
// return value degrades to SoftError, never FatalError, unless the script
// itself returns kind: "fatal_error".
func (rt *Runtime) wrapHandler(fn goja.Callable) reactor.Invoke {
	return func(ctx context.Context, hctx *reactor.Context, e event.Event) (res reactor.Result) {
		defer func() {
			if r := recover(); r != nil {
				res = reactor.SoftError(e, fmt.Sprintf("rune handler panic: %v", r))
			}
		}()

		evObj := eventToValue(rt.vm, e)
		ret, err := fn(goja.Undefined(), evObj)
		if err != nil {
			return reactor.SoftError(e, fmt.Sprintf("rune handler error: %v", err))
		}

		raw, ok := ret.Export().(map[string]any)
		if !ok {
			return reactor.SoftError(e, "rune handler must return a result object")
		}

		kind, _ := raw["kind"].(string)
		message, _ := raw["message"].(string)

		next := e
		if payload, ok := raw["payload"].(map[string]any); ok {
			next.Payload = payload
		}

		switch kind {
		case "cancel":
			return reactor.Cancel()
		case "cancelled":
			return reactor.Cancelled(next)
		case "soft_error":
			return reactor.SoftError(next, message)
		case "fatal_error":
			return reactor.FatalError(message)
		default:
			return reactor.Continue(next)
		}
	}
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	s, _ := call.Arguments[i].Export().(string)
	return s
}

func eventToValue(vm *goja.Runtime, e event.Event) goja.Value {
	return vm.ToValue(map[string]any{
		"type":      e.TypeName(),
		"source":    e.Source,
		"timestamp": e.Timestamp,
		"cancelled": e.Cancelled,
		"payload":   map[string]any(e.Payload),
	})
}
