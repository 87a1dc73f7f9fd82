// Package llm declares the narrow contract the agent turn engine consumes
// from an LLM collaborator. Concrete provider clients (Anthropic, OpenAI,
// Ollama, ...) are deliberately out of scope (spec.md §1) — Crucible
// depends only on this interface.
package llm

import "context"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function call the model asked for. Every supported
// provider is expected to assign a stable, non-empty ID; the turn engine
// rejects tool calls with an empty ID (a known upstream bug in one
// provider's serializer silently drops it).
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the outcome of executing a ToolCall, keyed back to it by
// ID.
type ToolResult struct {
	ID   string
	Data map[string]any
}

// Message is one entry of conversation history passed to StreamPrompt.
// ToolCalls is populated on assistant messages that made calls; ToolCallID
// is populated on the tool-result message that answers one such call.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ItemKind discriminates the items StreamPrompt yields.
type ItemKind string

const (
	ItemTextDelta      ItemKind = "text_delta"
	ItemReasoningDelta ItemKind = "reasoning_delta"
	ItemToolCall       ItemKind = "tool_call"
	ItemToolResult     ItemKind = "tool_result"
	ItemFinalResponse  ItemKind = "final_response"
)

// Item is one element of the lazy, possibly-infinite sequence a turn
// streams from the model.
type Item struct {
	Kind ItemKind

	TextDelta      string
	ReasoningDelta string
	ToolCall       *ToolCall
	ToolResult     *ToolResult
	FinalText      string
}

// ToolExecutor is supplied by the turn engine so the provider can resolve
// a tool call without knowing anything about the reactor, permissions, or
// the tool collaborator behind it. The engine's executor is what performs
// the tool_called dispatch through the reactor (§4.6 step 3); the
// provider only knows "call this function, get a result back".
type ToolExecutor func(ctx context.Context, call ToolCall) (ToolResult, error)

// ToolSpec is the wire shape a Provider needs to advertise a tool for
// function calling — a structural copy of tool.Definition kept in this
// package so llm never imports the tool package (spec.md §1 keeps provider
// clients ignorant of what a tool actually does).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Provider is the LLM collaborator contract (spec.md §6). A call streams
// one user turn to completion: the provider is free to make as many
// internal model round-trips as it needs (bounded by maxToolDepth),
// invoking exec for every tool call it decides to make and folding the
// result back into its own context before continuing.
type Provider interface {
	StreamPrompt(ctx context.Context, message string, history []Message, tools []ToolSpec, maxToolDepth int, exec ToolExecutor) (<-chan Item, error)
}

// CommunicationError wraps a transport/provider-side failure, surfaced to
// callers verbatim per spec.md §7.
type CommunicationError struct {
	Err error
}

func (e *CommunicationError) Error() string {
	return "llm communication error: " + e.Err.Error()
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}
