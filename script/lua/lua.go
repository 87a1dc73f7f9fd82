// Package lua embeds Lua handlers and exposes the script.Bridge to them
// under two namespace aliases, per spec.md §4.4's two-alias requirement.
package lua

import (
	"context"
	"fmt"

	luar "github.com/yuin/gopher-lua"

	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/reactor"
	"github.com/kadirpekel/crucible/script"
)

// namespaceAliases are the two global table names a Lua script finds the
// Bridge and register_handler under. Both resolve to the same table; the
// second exists purely so a script can pick whichever reads better at the
// call site ("crucible.send_message(...)" vs "cr.send_message(...)").
var namespaceAliases = []string{"crucible", "cr"}

// Runtime is one gopher-lua state with the bridge and handler-registration
// API installed. Not safe for concurrent use from multiple goroutines — the
// teacher's plugin loaders give every plugin process its own connection for
// the same reason; here that unit is one *lua.LState per script file.
type Runtime struct {
	state   *luar.LState
	bridge  script.Bridge
	reactor *reactor.Reactor
	source  string // script file path, recorded on every handler it registers
}

// New constructs a Runtime bound to bridge and r, with the bridge API
// installed under both namespace aliases.
func New(bridge script.Bridge, r *reactor.Reactor, source string) *Runtime {
	rt := &Runtime{
		state:   luar.NewState(),
		bridge:  bridge,
		reactor: r,
		source:  source,
	}
	rt.install()
	return rt
}

// Close releases the underlying Lua state.
func (rt *Runtime) Close() {
	rt.state.Close()
}

// Load executes a script's source in this runtime. Handlers the script
// registers via register_handler are live in the reactor as soon as this
// returns.
func (rt *Runtime) Load(src string) error {
	if err := rt.state.DoString(src); err != nil {
		return fmt.Errorf("lua: %w", err)
	}
	return nil
}

func (rt *Runtime) install() {
	tbl := rt.state.NewTable()
	rt.state.SetFuncs(tbl, map[string]luar.LGFunction{
		"create_session":        rt.createSession,
		"get_session":           rt.getSession,
		"list_sessions":         rt.listSessions,
		"configure_agent":       rt.configureAgent,
		"send_message":          rt.sendMessage,
		"cancel":                rt.cancel,
		"pause":                 rt.pause,
		"resume":                rt.resume,
		"end_session":           rt.endSession,
		"respond_to_permission": rt.respondToPermission,
		"subscribe":             rt.subscribe,
		"unsubscribe":           rt.unsubscribe,
		"register_handler":      rt.registerHandler,
	})
	for _, alias := range namespaceAliases {
		rt.state.SetGlobal(alias, tbl)
	}
}

// bridge call wrappers — each pulls its arguments off the Lua stack, calls
// the Bridge, and pushes (value, error_string_or_nil) back, matching
// spec.md §7's "errors surfaced as the second tuple value" convention.

func (rt *Runtime) createSession(L *luar.LState) int {
	kind := L.CheckString(1)
	kiln := L.CheckString(2)
	workspace := L.CheckString(3)
	v, err := rt.bridge.CreateSession(kind, kiln, workspace)
	return pushResult(L, v, err)
}

func (rt *Runtime) getSession(L *luar.LState) int {
	v, err := rt.bridge.GetSession(L.CheckString(1))
	return pushResult(L, v, err)
}

func (rt *Runtime) listSessions(L *luar.LState) int {
	v, err := rt.bridge.ListSessions()
	return pushResult(L, v, err)
}

func (rt *Runtime) configureAgent(L *luar.LState) int {
	v, err := rt.bridge.ConfigureAgent(L.CheckString(1), L.CheckString(2))
	return pushResult(L, v, err)
}

func (rt *Runtime) sendMessage(L *luar.LState) int {
	v, err := rt.bridge.SendMessage(context.Background(), L.CheckString(1), L.CheckString(2))
	return pushResult(L, v, err)
}

func (rt *Runtime) cancel(L *luar.LState) int {
	v, err := rt.bridge.Cancel(L.CheckString(1))
	return pushResult(L, v, err)
}

func (rt *Runtime) pause(L *luar.LState) int {
	v, err := rt.bridge.Pause(L.CheckString(1))
	return pushResult(L, v, err)
}

func (rt *Runtime) resume(L *luar.LState) int {
	v, err := rt.bridge.Resume(L.CheckString(1))
	return pushResult(L, v, err)
}

func (rt *Runtime) endSession(L *luar.LState) int {
	v, err := rt.bridge.EndSession(L.CheckString(1))
	return pushResult(L, v, err)
}

func (rt *Runtime) respondToPermission(L *luar.LState) int {
	response := fromLua(L.CheckAny(2))
	v, err := rt.bridge.RespondToPermission(L.CheckString(1), response)
	return pushResult(L, v, err)
}

// subscribe returns a Lua closure the script calls repeatedly to pull
// events, rather than registering a callback — spec.md §7 asks for this
// specifically so scripts can await event-by-event with their own loop.
func (rt *Runtime) subscribe(L *luar.LState) int {
	it, err := rt.bridge.Subscribe(L.CheckString(1))
	if err != nil {
		return pushResult(L, nil, err)
	}
	L.Push(L.NewFunction(func(L *luar.LState) int {
		v, err := it()
		return pushResult(L, v, err)
	}))
	return 1
}

func (rt *Runtime) unsubscribe(L *luar.LState) int {
	v, err := rt.bridge.Unsubscribe(L.CheckString(1), L.CheckString(2))
	return pushResult(L, v, err)
}

// registerHandler installs a script-authored reactor handler from a table
// argument: {name=, pattern=, fn=, priority=(optional), dependencies=
// (optional array of strings)}. fn receives the event as a table and
// returns a result table {kind=, message=(optional), payload=(optional)}.
func (rt *Runtime) registerHandler(L *luar.LState) int {
	opts := L.CheckTable(1)

	name, _ := opts.RawGetString("name").(luar.LString)
	pattern, _ := opts.RawGetString("pattern").(luar.LString)
	fn, ok := opts.RawGetString("fn").(*luar.LFunction)
	if string(name) == "" || string(pattern) == "" || !ok {
		L.RaiseError("register_handler requires name, pattern, and fn")
		return 0
	}

	h := reactor.NewHandler("lua:"+rt.source+":"+string(name), string(pattern), rt.wrapHandler(fn))
	h.Source = "lua"
	if p, ok := opts.RawGetString("priority").(luar.LNumber); ok {
		h.Priority = int(p)
	}
	if deps, ok := opts.RawGetString("dependencies").(*luar.LTable); ok {
		deps.ForEach(func(_, v luar.LValue) {
			h.Dependencies = append(h.Dependencies, v.String())
		})
	}

	rt.reactor.Register(h)
	return 0
}

// wrapHandler adapts a Lua function into a reactor.Invoke. Any Lua runtime
// error (a raised error, a malformed return table) converts to SoftError
// rather than aborting the chain — only an explicit kind="fatal_error"
// return value produces a FatalError, per spec.md's script-failure-mode
// policy.
func (rt *Runtime) wrapHandler(fn *luar.LFunction) reactor.Invoke {
	return func(ctx context.Context, hctx *reactor.Context, e event.Event) reactor.Result {
		evTable := eventToLua(rt.state, e)

		if err := rt.state.CallByParam(luar.P{Fn: fn, NRet: 1, Protect: true}, evTable); err != nil {
			return reactor.SoftError(e, fmt.Sprintf("lua handler error: %v", err))
		}

		ret := rt.state.Get(-1)
		rt.state.Pop(1)

		resultTbl, ok := ret.(*luar.LTable)
		if !ok {
			return reactor.SoftError(e, "lua handler must return a result table")
		}

		kind, _ := resultTbl.RawGetString("kind").(luar.LString)
		message := resultTbl.RawGetString("message").String()

		next := e
		if payload, ok := resultTbl.RawGetString("payload").(*luar.LTable); ok {
			if m, ok := fromLua(payload).(map[string]any); ok {
				next.Payload = m
			}
		}

		switch string(kind) {
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

// pushResult pushes (value, error) Lua-side: a nil second value on success,
// or (nil, error_string) on failure.
func pushResult(L *luar.LState, v script.Value, err error) int {
	if err != nil {
		L.Push(luar.LNil)
		L.Push(luar.LString(err.Error()))
		return 2
	}
	L.Push(toLua(L, v))
	L.Push(luar.LNil)
	return 2
}

// toLua converts a JSON-shaped Go value into its Lua equivalent.
func toLua(L *luar.LState, v any) luar.LValue {
	switch val := v.(type) {
	case nil:
		return luar.LNil
	case bool:
		return luar.LBool(val)
	case string:
		return luar.LString(val)
	case float64:
		return luar.LNumber(val)
	case int:
		return luar.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, elem := range val {
			t.RawSetString(k, toLua(L, elem))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, elem := range val {
			t.RawSetInt(i+1, toLua(L, elem))
		}
		return t
	default:
		return luar.LString(fmt.Sprintf("%v", val))
	}
}

// fromLua converts a Lua value back into a JSON-shaped Go value.
func fromLua(v luar.LValue) any {
	switch val := v.(type) {
	case *luar.LNilType:
		return nil
	case luar.LBool:
		return bool(val)
	case luar.LString:
		return string(val)
	case luar.LNumber:
		return float64(val)
	case *luar.LTable:
		if val.Len() > 0 {
			out := make([]any, 0, val.Len())
			val.ForEach(func(_, elem luar.LValue) {
				out = append(out, fromLua(elem))
			})
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, elem luar.LValue) {
			out[k.String()] = fromLua(elem)
		})
		return out
	default:
		return v.String()
	}
}

// eventToLua projects an event.Event onto a Lua table a handler function
// receives as its sole argument.
func eventToLua(L *luar.LState, e event.Event) *luar.LTable {
	t := L.NewTable()
	t.RawSetString("type", luar.LString(e.TypeName()))
	t.RawSetString("source", luar.LString(e.Source))
	t.RawSetString("timestamp", luar.LNumber(e.Timestamp))
	t.RawSetString("cancelled", luar.LBool(e.Cancelled))
	t.RawSetString("payload", toLua(L, map[string]any(e.Payload)))
	return t
}
