// Package script defines the narrow trait (C4) the reactor exposes to
// embedded scripting runtimes — the twelve session/reactor operations
// named in spec.md §4.4, plus the stub/live registration split and the
// closed error taxonomy every API call surfaces through. Concrete
// bindings for each embedded language live in script/lua and script/rune;
// this package is the language-agnostic contract both bind against.
package script

import "context"

// Value is whatever a script call returns: a JSON-representable Go value
// (map[string]any, []any, string, float64, bool, or nil). Scripts never
// see a structured Go type across the language boundary, only this.
type Value = any

// Kind is the closed error taxonomy every bridge call's error belongs to
// (spec.md §7).
type Kind string

const (
	KindCommunication       Kind = "Communication"
	KindInvalidMode         Kind = "InvalidMode"
	KindCancelledByUser     Kind = "CancelledByUser"
	KindHandlerFatal        Kind = "HandlerFatal"
	KindRecursionLimit      Kind = "RecursionLimit"
	KindPermission          Kind = "Permission"
	KindNoEmbeddingProvider Kind = "NoEmbeddingProvider"
	KindPatternResolution   Kind = "PatternResolution"
	KindStorageUnavailable  Kind = "StorageUnavailable"
	KindValidation          Kind = "Validation"
)

// Error is a bridge-call failure. Its Error() string is exactly what
// crosses the language boundary as the second tuple value — short and
// human-readable, never a Go error's full chain.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NoDaemon is the error every stub method returns.
var NoDaemon = &Error{Kind: KindCommunication, Message: "no daemon connected"}

// EventIterator yields successive broadcast events for a subscription.
// Returning (nil, nil) signals end-of-stream; any other error is
// terminal too. Scripts drive this with their own language's await/yield
// construct — it is exposed here as a plain closure so neither Lua nor
// Rune bindings need a callback-based push model.
type EventIterator func() (Value, error)

// Bridge is the trait the reactor exposes to scripted handlers: the
// twelve named operations, each returning (Value, error) the way the
// trait's async computations resolve to Result<Value, String> in the
// original. Go has no async/await story that matches the source
// language's, so each method is a plain blocking call — the scripting
// runtimes invoke it from their own goroutine the way the teacher's
// plugin gRPC adapters invoke a remote call synchronously from a Go
// goroutine dedicated to that script engine.
type Bridge interface {
	CreateSession(kind, kilnPath, workspacePath string) (Value, error)
	GetSession(id string) (Value, error)
	ListSessions() (Value, error)
	ConfigureAgent(sessionID, mode string) (Value, error)
	SendMessage(ctx context.Context, sessionID, text string) (Value, error)
	Cancel(sessionID string) (Value, error)
	Pause(sessionID string) (Value, error)
	Resume(sessionID string) (Value, error)
	EndSession(sessionID string) (Value, error)
	RespondToPermission(requestID string, response Value) (Value, error)
	Subscribe(sessionID string) (EventIterator, error)
	Unsubscribe(sessionID, subID string) (Value, error)
}

// StubBridge implements Bridge with every method returning NoDaemon,
// installed when a scripting runtime starts before the daemon has
// finished wiring its session manager (or in a script unit test sandbox).
type StubBridge struct{}

func (StubBridge) CreateSession(kind, kilnPath, workspacePath string) (Value, error) { return nil, NoDaemon }
func (StubBridge) GetSession(id string) (Value, error)                              { return nil, NoDaemon }
func (StubBridge) ListSessions() (Value, error)                                     { return nil, NoDaemon }
func (StubBridge) ConfigureAgent(sessionID, mode string) (Value, error)             { return nil, NoDaemon }
func (StubBridge) SendMessage(ctx context.Context, sessionID, text string) (Value, error) {
	return nil, NoDaemon
}
func (StubBridge) Cancel(sessionID string) (Value, error)      { return nil, NoDaemon }
func (StubBridge) Pause(sessionID string) (Value, error)       { return nil, NoDaemon }
func (StubBridge) Resume(sessionID string) (Value, error)      { return nil, NoDaemon }
func (StubBridge) EndSession(sessionID string) (Value, error)  { return nil, NoDaemon }
func (StubBridge) RespondToPermission(requestID string, response Value) (Value, error) {
	return nil, NoDaemon
}
func (StubBridge) Subscribe(sessionID string) (EventIterator, error) { return nil, NoDaemon }
func (StubBridge) Unsubscribe(sessionID, subID string) (Value, error) { return nil, NoDaemon }
