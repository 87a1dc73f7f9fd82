package reactor

import (
	"context"

	"github.com/kadirpekel/crucible/event"
)

// ResultKind discriminates the HandlerResult variants.
type ResultKind int

const (
	KindContinue ResultKind = iota
	KindCancel
	KindCancelled
	KindSoftError
	KindFatalError
)

// Result is the value a handler's Invoke function returns to control chain
// flow. Use the constructor functions (Continue, Cancel, Cancelled,
// SoftError, FatalError) rather than building one by hand.
type Result struct {
	Kind    ResultKind
	Event   event.Event
	Message string
}

// Continue signals successful processing; the chain proceeds with event.
func Continue(e event.Event) Result { return Result{Kind: KindContinue, Event: e} }

// Cancel stops the chain; no event is preserved.
func Cancel() Result { return Result{Kind: KindCancel} }

// Cancelled stops the chain, preserving event for inspection.
func Cancelled(e event.Event) Result { return Result{Kind: KindCancelled, Event: e} }

// SoftError logs message and continues the chain, passing e to the next
// handler.
func SoftError(e event.Event, message string) Result {
	return Result{Kind: KindSoftError, Event: e, Message: message}
}

// FatalError stops the chain immediately; kind is a short machine-readable
// tag (e.g. "recursion_limit", "handler_panic").
func FatalError(kind string) Result {
	return Result{Kind: KindFatalError, Message: kind}
}

// ShouldContinue reports whether the chain advances to the next handler.
func (r Result) ShouldContinue() bool {
	return r.Kind == KindContinue || r.Kind == KindSoftError
}

// ShouldStop reports whether the chain halts after this result.
func (r Result) ShouldStop() bool {
	return r.Kind == KindCancel || r.Kind == KindCancelled || r.Kind == KindFatalError
}

// Invoke is the function signature every handler — host language or
// scripted — implements.
type Invoke func(ctx context.Context, hctx *Context, e event.Event) Result

// Handler is a registered reactor participant.
//
// Name convention: "<lang>:<path>:<sym>", e.g. "rust:builtin:logger",
// "lua:scripts/audit.lua:on_tool_call", "rune:auth.rn:check_perms". Name
// must be unique; re-registering a name replaces the prior handler.
type Handler struct {
	Name         string
	Dependencies []string
	Priority     int // 0 earliest, 100 latest, default 50
	Pattern      string
	Enabled      bool
	Source       string // "rust", "lua", "rune" — trace/observability only
	Fn           Invoke

	// registrationIndex is assigned by the reactor at Register time and
	// used as the final tiebreaker after priority.
	registrationIndex int
}

// DefaultPriority is used by NewHandler when Priority is left unset.
const DefaultPriority = 50

// NewHandler builds an enabled Handler with the documented default
// priority (50). Callers needing a different priority set h.Priority
// directly after construction.
func NewHandler(name, pattern string, fn Invoke) *Handler {
	return &Handler{
		Name:     name,
		Pattern:  pattern,
		Priority: DefaultPriority,
		Enabled:  true,
		Fn:       fn,
	}
}

// matches reports whether this handler is eligible to run for e.
func (h *Handler) matches(e event.Event) bool {
	return h.Enabled && e.Matches(h.Pattern)
}
