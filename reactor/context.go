package reactor

import (
	"sync"
	"time"

	"github.com/kadirpekel/crucible/event"
)

// Outcome labels one handler invocation's result for the trace.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeSoftError Outcome = "soft_error"
	OutcomeFatal     Outcome = "fatal"
)

// TraceEntry records one handler's contribution to a dispatch.
type TraceEntry struct {
	HandlerName string
	DurationMS  float64
	Outcome     Outcome
	Message     string
}

// Context is the per-dispatch scratchpad threaded through a handler chain.
// Metadata persists across dispatches for the same logical operation (the
// caller reuses the same *Context across a related sequence of emits);
// Completed, Emitted and Trace reset at the start of each dispatch via
// ResetForEvent.
//
// Grounded on the teacher's workflow.ExecutionContext (mutex-guarded maps
// with narrow accessor methods) generalized from workflow shared-state to
// the reactor's metadata/emission/trace triad.
type Context struct {
	mu        sync.RWMutex
	metadata  map[string]any
	emitted   []event.Event
	trace     []TraceEntry
	completed map[string]bool
}

// NewContext creates an empty handler context.
func NewContext() *Context {
	return &Context{
		metadata:  make(map[string]any),
		completed: make(map[string]bool),
	}
}

// Set stores a metadata value under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Get retrieves a metadata value.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// Remove deletes a metadata key.
func (c *Context) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metadata, key)
}

// Has reports whether key is present in metadata.
func (c *Context) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.metadata[key]
	return ok
}

// Emit queues an event for dispatch after the current chain completes.
func (c *Context) Emit(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, e)
}

// TakeEmitted drains and returns the emission queue. Only the reactor calls
// this; it is exported so alternate reactor implementations and tests can
// drive it directly.
func (c *Context) TakeEmitted() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.emitted
	c.emitted = nil
	return out
}

// HasEmitted reports whether any events are queued.
func (c *Context) HasEmitted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.emitted) > 0
}

// MarkCompleted records that handler name finished in this dispatch.
func (c *Context) MarkCompleted(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[name] = true
}

// IsCompleted reports whether handler name has already run in this dispatch.
func (c *Context) IsCompleted(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.completed[name]
}

// RecordHandler appends a trace entry.
func (c *Context) RecordHandler(name string, duration time.Duration, outcome Outcome, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = append(c.trace, TraceEntry{
		HandlerName: name,
		DurationMS:  float64(duration.Microseconds()) / 1000.0,
		Outcome:     outcome,
		Message:     message,
	})
}

// Trace returns a copy of the recorded trace entries for this dispatch.
func (c *Context) Trace() []TraceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TraceEntry, len(c.trace))
	copy(out, c.trace)
	return out
}

// ResetForEvent clears per-dispatch state (completed handlers, emission
// queue, trace) while preserving metadata across logically related
// dispatches.
func (c *Context) ResetForEvent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = make(map[string]bool)
	c.emitted = nil
	c.trace = nil
}
