// Package event defines the typed event variants that flow through the
// reactor and the pattern matcher used to route them to handlers.
package event

import (
	"strings"
	"sync/atomic"
	"time"
)

// Type is the closed set of event kinds the reactor understands.
type Type string

const (
	ToolCalled             Type = "tool_called"
	ToolCompleted          Type = "tool_completed"
	ToolFailed             Type = "tool_failed"
	ToolDiscovered         Type = "tool_discovered"
	NoteParsed             Type = "note_parsed"
	NoteCreated            Type = "note_created"
	NoteModified           Type = "note_modified"
	EmbeddingBatchComplete Type = "embedding_batch_complete"
	MCPAttached            Type = "mcp_attached"
	Custom                 Type = "custom"
)

var nextID uint64

// Event is a tagged union over the closed event set. Handlers receive it by
// value and return a possibly-modified copy; Event itself is treated as
// immutable once handed to a handler.
type Event struct {
	ID        uint64
	Type      Type
	Source    string
	Timestamp int64 // milliseconds since epoch
	Cancelled bool
	Payload   map[string]any
}

// New stamps a timestamp and an ascending id and returns a fresh Event. The
// identifier field distinguishes events of the same Type carrying different
// logical subjects (e.g. a tool name or note path) and is stored under the
// "id" payload key for convenience.
func New(typ Type, identifier string, payload map[string]any) Event {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	if identifier != "" {
		if _, ok := payload["id"]; !ok {
			payload["id"] = identifier
		}
	}
	return Event{
		ID:        atomic.AddUint64(&nextID, 1),
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Cancel marks the event cancelled. Idempotent.
func (e *Event) Cancel() {
	e.Cancelled = true
}

// WithSource returns a copy of the event annotated with an origin tag
// ("kiln", "script", "upstream:<provider>", ...).
func (e Event) WithSource(src string) Event {
	e.Source = src
	return e
}

// TypeName returns the event's wire type string, e.g. "tool_called".
func (e Event) TypeName() string {
	return string(e.Type)
}

// Matches reports whether pattern selects the given event type name.
//
//   - "*" matches everything.
//   - "<prefix>:*" matches any type beginning with "<prefix>_".
//   - "<a>:<b>" matches exactly the type "<a>_<b>".
//   - anything else is compared for exact string equality against the type.
func Matches(pattern string, typeName string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := strings.TrimSuffix(pattern, ":*") + "_"
		return strings.HasPrefix(typeName, prefix)
	}
	if strings.Contains(pattern, ":") {
		return strings.ReplaceAll(pattern, ":", "_") == typeName
	}
	return pattern == typeName
}

// Matches reports whether pattern selects this event.
func (e Event) Matches(pattern string) bool {
	return Matches(pattern, e.TypeName())
}
