// Package reactor implements Crucible's event reactor: a single ordered
// pipeline every state change flows through, interleaving handlers written
// in the host language with handlers registered by embedded scripting
// runtimes, under explicit dependency, cancellation and emission semantics.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/crucible/event"
)

// DefaultMaxEmissionDepth bounds how many levels of recursive emission
// EmitRecursive follows (an event emitted by a handler of an emitted event
// is one level deeper). An emission beyond that depth is logged and
// recorded as an error outcome instead of being dispatched.
const DefaultMaxEmissionDepth = 32

var tracer = otel.Tracer("github.com/kadirpekel/crucible/reactor")

var (
	dispatchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_reactor_dispatch_total",
			Help: "Total reactor dispatches by terminal outcome.",
		},
		[]string{"event_type", "outcome"},
	)
	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crucible_reactor_handler_duration_seconds",
			Help:    "Duration of individual handler invocations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(dispatchCounter, handlerDuration)
}

// Reactor registers handlers and dispatches events through them in
// dependency + priority order. Dispatch is single-threaded per logical
// emission chain; many chains may run concurrently for different sessions.
// The reactor holds its handler-list lock only to snapshot matching
// handlers — never across a handler invocation (await point).
type Reactor struct {
	mu           sync.RWMutex
	handlers     []*Handler
	byName       map[string]*Handler
	nextRegIndex int
	maxEmitDepth int
	logger       *slog.Logger
}

// New creates an empty Reactor.
func New(logger *slog.Logger) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{
		byName:       make(map[string]*Handler),
		maxEmitDepth: DefaultMaxEmissionDepth,
		logger:       logger,
	}
}

// SetMaxEmissionDepth overrides the recursive-emission depth bound.
func (r *Reactor) SetMaxEmissionDepth(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxEmitDepth = n
}

// Register adds or replaces a handler by name. Idempotent: re-registering a
// name removes the existing handler and adds the new one with a fresh
// registration index and its own priority, preserving neither of the old
// handler's.
func (r *Reactor) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[h.Name]; ok {
		for i, cur := range r.handlers {
			if cur == existing {
				r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
				break
			}
		}
	}

	h.registrationIndex = r.nextRegIndex
	r.nextRegIndex++
	r.handlers = append(r.handlers, h)
	r.byName[h.Name] = h

	sort.SliceStable(r.handlers, func(i, j int) bool {
		if r.handlers[i].Priority != r.handlers[j].Priority {
			return r.handlers[i].Priority < r.handlers[j].Priority
		}
		return r.handlers[i].registrationIndex < r.handlers[j].registrationIndex
	})
}

// Unregister removes a handler by name, reporting whether anything was
// removed.
func (r *Reactor) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byName[name]
	if !ok {
		return false
	}
	delete(r.byName, name)
	for i, cur := range r.handlers {
		if cur == h {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			break
		}
	}
	return true
}

// snapshot returns the currently registered handlers in priority/
// registration order, without holding the lock across callers.
func (r *Reactor) snapshot() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// orderForDispatch returns the matching, enabled handlers for e in
// dependency-then-priority order, via Kahn's algorithm over the matching
// subset. Cycles and dependencies on non-matching/missing handlers degrade
// to priority order with the offending edge dropped and a soft-error
// logged; the reactor never deadlocks.
func (r *Reactor) orderForDispatch(e event.Event) ([]*Handler, []string) {
	all := r.snapshot()
	matching := make([]*Handler, 0, len(all))
	matchingNames := make(map[string]bool)
	for _, h := range all {
		if h.matches(e) {
			matching = append(matching, h)
			matchingNames[h.Name] = true
		}
	}

	// Build edges: dep -> dependent, but only for deps that also match.
	inDegree := make(map[string]int, len(matching))
	byName := make(map[string]*Handler, len(matching))
	adjacency := make(map[string][]string)
	for _, h := range matching {
		byName[h.Name] = h
		inDegree[h.Name] = 0
	}
	var warnings []string
	for _, h := range matching {
		for _, dep := range h.Dependencies {
			if !matchingNames[dep] {
				// Unsatisfiable: dependency doesn't match this event (or
				// doesn't exist at all). Drop the edge, degrade to
				// priority order for this handler.
				warnings = append(warnings, fmt.Sprintf(
					"handler %q depends on %q which is not in this dispatch; dependency edge dropped", h.Name, dep))
				continue
			}
			adjacency[dep] = append(adjacency[dep], h.Name)
			inDegree[h.Name]++
		}
	}

	// Kahn's algorithm, seeded with the existing priority/registration
	// order so that ties among ready nodes preserve that order.
	ready := make([]*Handler, 0, len(matching))
	for _, h := range matching {
		if inDegree[h.Name] == 0 {
			ready = append(ready, h)
		}
	}

	ordered := make([]*Handler, 0, len(matching))
	visited := make(map[string]bool, len(matching))
	for len(ordered) < len(matching) {
		if len(ready) == 0 {
			// Cycle among the remaining handlers. Break it by dropping the
			// dependency edge belonging to the remaining handler with the
			// highest (priority, registration_index) — i.e. the handler
			// that would run latest anyway — and logging.
			var worst *Handler
			for _, h := range matching {
				if visited[h.Name] {
					continue
				}
				if worst == nil || h.Priority > worst.Priority ||
					(h.Priority == worst.Priority && h.registrationIndex > worst.registrationIndex) {
					worst = h
				}
			}
			if worst == nil {
				break
			}
			warnings = append(warnings, fmt.Sprintf(
				"cyclic handler dependency detected; dropping dependencies of %q and continuing in priority order", worst.Name))
			inDegree[worst.Name] = 0
			ready = append(ready, worst)
		}

		sort.SliceStable(ready, func(i, j int) bool {
			if ready[i].Priority != ready[j].Priority {
				return ready[i].Priority < ready[j].Priority
			}
			return ready[i].registrationIndex < ready[j].registrationIndex
		})

		next := ready[0]
		ready = ready[1:]
		if visited[next.Name] {
			continue
		}
		visited[next.Name] = true
		ordered = append(ordered, next)

		for _, dependent := range adjacency[next.Name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 && !visited[dependent] {
				ready = append(ready, byName[dependent])
			}
		}
	}

	return ordered, warnings
}

// DispatchOutcome summarizes a completed sequential dispatch.
type DispatchOutcome struct {
	Final  event.Event
	Ctx    *Context
	Errors []string
}

// Emit runs the sequential dispatch path for e against hctx: it orders
// matching, enabled handlers, invokes each in turn, and stops early on
// Cancel/Cancelled/FatalError. hctx is reset for this dispatch before
// handlers run (metadata is preserved across dispatches by the caller
// reusing the same *Context; only completed/emitted/trace are cleared
// here).
func (r *Reactor) Emit(ctx context.Context, hctx *Context, e event.Event) DispatchOutcome {
	hctx.ResetForEvent()

	spanCtx, span := tracer.Start(ctx, "reactor.emit", trace.WithAttributes(
		attribute.String("event.type", e.TypeName()),
	))
	defer span.End()

	ordered, warnings := r.orderForDispatch(e)
	for _, w := range warnings {
		r.logger.Warn("reactor: dependency resolution degraded", "warning", w)
	}

	current := e
	errs := append([]string(nil), warnings...)
	outcome := "completed"

	for _, h := range ordered {
		if hctx.IsCompleted(h.Name) {
			continue
		}

		start := time.Now()
		var result Result
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					result = FatalError(fmt.Sprintf("handler_panic:%v", rec))
				}
			}()
			result = h.Fn(spanCtx, hctx, current)
		}()
		duration := time.Since(start)

		switch result.Kind {
		case KindContinue:
			current = result.Event
			hctx.MarkCompleted(h.Name)
			hctx.RecordHandler(h.Name, duration, OutcomeOK, "")
			handlerDuration.WithLabelValues(h.Name, string(OutcomeOK)).Observe(duration.Seconds())

		case KindSoftError:
			current = result.Event
			hctx.MarkCompleted(h.Name)
			hctx.RecordHandler(h.Name, duration, OutcomeSoftError, result.Message)
			handlerDuration.WithLabelValues(h.Name, string(OutcomeSoftError)).Observe(duration.Seconds())
			errs = append(errs, fmt.Sprintf("%s: %s", h.Name, result.Message))
			r.logger.Warn("reactor: handler soft error", "handler", h.Name, "error", result.Message)

		case KindCancel:
			hctx.MarkCompleted(h.Name)
			hctx.RecordHandler(h.Name, duration, OutcomeCancelled, "")
			handlerDuration.WithLabelValues(h.Name, string(OutcomeCancelled)).Observe(duration.Seconds())
			current.Cancel()
			outcome = "cancelled"
			dispatchCounter.WithLabelValues(current.TypeName(), outcome).Inc()
			return DispatchOutcome{Final: current, Ctx: hctx, Errors: errs}

		case KindCancelled:
			hctx.MarkCompleted(h.Name)
			hctx.RecordHandler(h.Name, duration, OutcomeCancelled, "")
			handlerDuration.WithLabelValues(h.Name, string(OutcomeCancelled)).Observe(duration.Seconds())
			current = result.Event
			current.Cancel()
			outcome = "cancelled"
			dispatchCounter.WithLabelValues(current.TypeName(), outcome).Inc()
			return DispatchOutcome{Final: current, Ctx: hctx, Errors: errs}

		case KindFatalError:
			hctx.MarkCompleted(h.Name)
			hctx.RecordHandler(h.Name, duration, OutcomeFatal, result.Message)
			handlerDuration.WithLabelValues(h.Name, string(OutcomeFatal)).Observe(duration.Seconds())
			errs = append(errs, fmt.Sprintf("%s: fatal: %s", h.Name, result.Message))
			outcome = "fatal"
			dispatchCounter.WithLabelValues(current.TypeName(), outcome).Inc()
			return DispatchOutcome{Final: current, Ctx: hctx, Errors: errs}
		}
	}

	dispatchCounter.WithLabelValues(current.TypeName(), outcome).Inc()
	return DispatchOutcome{Final: current, Ctx: hctx, Errors: errs}
}

// RecursiveOutcome is the result of EmitRecursive: the terminal dispatch of
// the originally emitted event plus one DispatchOutcome per transitively
// emitted event, in the order they were processed.
type RecursiveOutcome struct {
	Root       DispatchOutcome
	Subsequent []DispatchOutcome
}

// EmitRecursive runs Emit for e, then drains hctx's emission queue and
// dispatches each queued event in turn (breadth-first, implemented as a
// queue rather than the call stack). Emission depth is bounded by the
// reactor's configured max; an emission deeper than that is logged and
// recorded as an error outcome instead of being dispatched.
func (r *Reactor) EmitRecursive(ctx context.Context, hctx *Context, e event.Event) RecursiveOutcome {
	root := r.Emit(ctx, hctx, e)

	r.mu.RLock()
	maxDepth := r.maxEmitDepth
	r.mu.RUnlock()

	queue := hctx.TakeEmitted()
	// depths[i] is the depth of the event that emitted queue[i] (0 for e).
	depths := make([]int, len(queue))
	var subsequent []DispatchOutcome

	for len(queue) > 0 {
		next, depth := queue[0], depths[0]+1
		queue, depths = queue[1:], depths[1:]

		if depth > maxDepth {
			r.logger.Error("reactor: recursion limit exceeded, dropping emission",
				"event_type", next.TypeName(), "max_depth", maxDepth)
			subsequent = append(subsequent, DispatchOutcome{
				Final:  next,
				Ctx:    hctx,
				Errors: []string{fmt.Sprintf("recursion limit (%d) exceeded; emission dropped", maxDepth)},
			})
			continue
		}

		out := r.Emit(ctx, hctx, next)
		subsequent = append(subsequent, out)
		emitted := hctx.TakeEmitted()
		queue = append(queue, emitted...)
		for range emitted {
			depths = append(depths, depth)
		}
	}

	return RecursiveOutcome{Root: root, Subsequent: subsequent}
}
