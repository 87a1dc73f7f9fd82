package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/crucible/event"
)

// Scenario 1: dependency resolution — A (priority 50, pattern "*") must
// finish before B (priority 10, depends on A).
func TestDependencyResolution(t *testing.T) {
	r := New(nil)
	var order []string

	a := NewHandler("A", "*", func(_ context.Context, hctx *Context, e event.Event) Result {
		order = append(order, "A")
		return Continue(e)
	})
	a.Priority = 50
	r.Register(a)

	b := NewHandler("B", "*", func(_ context.Context, hctx *Context, e event.Event) Result {
		order = append(order, "B")
		return Continue(e)
	})
	b.Priority = 10
	b.Dependencies = []string{"A"}
	r.Register(b)

	out := r.Emit(context.Background(), NewContext(), event.New(event.Custom, "x", nil))

	require.Equal(t, []string{"A", "B"}, order)
	trace := out.Ctx.Trace()
	require.Len(t, trace, 2)
	assert.Equal(t, "A", trace[0].HandlerName)
	assert.Equal(t, OutcomeOK, trace[0].Outcome)
	assert.Equal(t, "B", trace[1].HandlerName)
	assert.Equal(t, OutcomeOK, trace[1].Outcome)
}

func TestPriorityTiebreakIsRegistrationOrderStable(t *testing.T) {
	r := New(nil)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		n := name
		h := NewHandler(n, "*", func(_ context.Context, hctx *Context, e event.Event) Result {
			order = append(order, n)
			return Continue(e)
		})
		h.Priority = 50
		r.Register(h)
	}
	r.Emit(context.Background(), NewContext(), event.New(event.Custom, "x", nil))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestFailOpenSoftErrorsNeverSkipLaterHandlers(t *testing.T) {
	r := New(nil)
	var ran []string
	for i, name := range []string{"h1", "h2", "h3"} {
		n := name
		idx := i
		h := NewHandler(n, "*", func(_ context.Context, hctx *Context, e event.Event) Result {
			ran = append(ran, n)
			if idx < 2 {
				return SoftError(e, "boom")
			}
			return Continue(e)
		})
		r.Register(h)
	}
	out := r.Emit(context.Background(), NewContext(), event.New(event.Custom, "x", nil))
	assert.Equal(t, []string{"h1", "h2", "h3"}, ran)
	assert.Len(t, out.Errors, 2)
}

func TestCancelledRoundTripsTheSameEvent(t *testing.T) {
	r := New(nil)
	inspected := make(chan event.Event, 1)

	canceller := NewHandler("canceller", "tool:*", func(_ context.Context, hctx *Context, e event.Event) Result {
		return Cancelled(e)
	})
	canceller.Priority = 10
	r.Register(canceller)

	inspector := NewHandler("inspector", "tool:*", func(_ context.Context, hctx *Context, e event.Event) Result {
		inspected <- e
		return Continue(e)
	})
	inspector.Priority = 90
	r.Register(inspector)

	e := event.New(event.ToolCalled, "read_file", map[string]any{"path": "/etc/passwd"})
	out := r.Emit(context.Background(), NewContext(), e)

	assert.True(t, out.Final.Cancelled)
	assert.Equal(t, e.ID, out.Final.ID)
	select {
	case got := <-inspected:
		t.Fatalf("inspector should not have run after cancellation, got %+v", got)
	default:
	}
}

// Scenario 4: recursive emission.
func TestEmitRecursiveDrainsQueueExactlyOnce(t *testing.T) {
	r := New(nil)

	emitter := NewHandler("E", "tool:after", func(_ context.Context, hctx *Context, e event.Event) Result {
		hctx.Emit(event.New(event.Custom, "logged", nil))
		return Continue(e)
	})
	r.Register(emitter)

	var sawSeen bool
	listener := NewHandler("L", "custom", func(_ context.Context, hctx *Context, e event.Event) Result {
		hctx.Set("seen", true)
		if v, ok := hctx.Get("seen"); ok {
			sawSeen = v.(bool)
		}
		return Continue(e)
	})
	r.Register(listener)

	hctx := NewContext()
	result := r.EmitRecursive(context.Background(), hctx, event.Event{Type: "tool_after", Payload: map[string]any{}})

	assert.Len(t, result.Subsequent, 1)
	assert.True(t, sawSeen)
	assert.False(t, hctx.HasEmitted())
}

func TestCyclicDependencyDegradesInsteadOfDeadlocking(t *testing.T) {
	r := New(nil)
	a := NewHandler("A", "*", func(_ context.Context, hctx *Context, e event.Event) Result { return Continue(e) })
	a.Dependencies = []string{"B"}
	b := NewHandler("B", "*", func(_ context.Context, hctx *Context, e event.Event) Result { return Continue(e) })
	b.Dependencies = []string{"A"}
	r.Register(a)
	r.Register(b)

	out := r.Emit(context.Background(), NewContext(), event.New(event.Custom, "x", nil))
	assert.Len(t, out.Ctx.Trace(), 2)
	assert.NotEmpty(t, out.Errors)
}

func TestUnregisterReportsWhetherSomethingWasRemoved(t *testing.T) {
	r := New(nil)
	r.Register(NewHandler("H", "*", func(_ context.Context, hctx *Context, e event.Event) Result { return Continue(e) }))
	assert.True(t, r.Unregister("H"))
	assert.False(t, r.Unregister("H"))
}

func TestFatalErrorStopsImmediately(t *testing.T) {
	r := New(nil)
	var ran []string
	fatal := NewHandler("fatal", "*", func(_ context.Context, hctx *Context, e event.Event) Result {
		ran = append(ran, "fatal")
		return FatalError("handler_fatal")
	})
	fatal.Priority = 10
	r.Register(fatal)
	never := NewHandler("never", "*", func(_ context.Context, hctx *Context, e event.Event) Result {
		ran = append(ran, "never")
		return Continue(e)
	})
	never.Priority = 90
	r.Register(never)

	r.Emit(context.Background(), NewContext(), event.New(event.Custom, "x", nil))
	assert.Equal(t, []string{"fatal"}, ran)
}
