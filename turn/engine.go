// Package turn implements the agent turn engine (C6): it drives one user
// message to completion, streaming deltas out to subscribers while
// mediating every tool call through the reactor so permission checks,
// logging, and enrichment handlers all see the same tool_called event the
// teacher's Agent.execute() would otherwise have handled itself inline.
package turn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/llm"
	"github.com/kadirpekel/crucible/reactor"
	"github.com/kadirpekel/crucible/session"
	"github.com/kadirpekel/crucible/tool"
)

// DefaultMaxToolDepth bounds how many internal model round-trips a single
// turn may make before the provider must produce a final_response, mirroring
// spec.md §4.6's documented default of 10.
const DefaultMaxToolDepth = 10

// Engine implements session.Engine, grounded on the teacher's
// Agent.execute() reasoning loop (agent/agent.go) — generalized from a
// strategy-driven iteration loop over a single LLM client to a reactor-
// mediated tool dispatch loop over the llm.Provider contract.
type Engine struct {
	provider     llm.Provider
	reactor      *reactor.Reactor
	tools        *tool.Collaborator
	toolDefs     []tool.Definition
	maxToolDepth int
	logger       *slog.Logger

	// tokens and maxHistoryTokens bound how much history RunTurn hands to
	// the provider. tokens is nil until WithHistoryBudget builds a counter
	// (and stays nil if that fails), in which case history is passed
	// through unbounded.
	tokens           *TokenCounter
	maxHistoryTokens int
}

// DefaultMaxHistoryTokens bounds a turn's conversation history when no
// tighter budget is configured.
const DefaultMaxHistoryTokens = 8000

// New constructs a turn Engine. toolDefs is advertised to the provider for
// function-calling; tools is what Execute actually dispatches to once the
// reactor has cleared a call.
func New(provider llm.Provider, r *reactor.Reactor, tools *tool.Collaborator, toolDefs []tool.Definition, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider:         provider,
		reactor:          r,
		tools:            tools,
		toolDefs:         toolDefs,
		maxToolDepth:     DefaultMaxToolDepth,
		maxHistoryTokens: DefaultMaxHistoryTokens,
		logger:           logger,
	}
}

// WithHistoryBudget configures the engine to keep RunTurn's history within
// maxTokens, counted under model's encoding. Call once after New; a model
// name tiktoken-go doesn't recognize falls back to a generic encoding
// rather than failing.
func (e *Engine) WithHistoryBudget(model string, maxTokens int) *Engine {
	counter, err := NewTokenCounter(model)
	if err != nil {
		e.logger.Warn("turn: history budget disabled, could not build token counter", "model", model, "error", err)
		return e
	}
	e.tokens = counter
	if maxTokens > 0 {
		e.maxHistoryTokens = maxTokens
	}
	return e
}

// RunTurn drives sess through one user message, per spec.md §4.6. The
// returned channel closes after the terminal ChatChunk{Done: true} (or an
// error chunk) has been sent.
func (e *Engine) RunTurn(ctx context.Context, sess *session.Session, userMessage string) (<-chan session.ChatChunk, error) {
	out := make(chan session.ChatChunk, 64)

	go func() {
		defer close(out)

		hctx := reactor.NewContext()
		history := toLLMHistory(sess.History())
		if e.tokens != nil {
			history = e.tokens.FitWithinLimit(history, e.maxHistoryTokens)
		}

		var assistantText string
		var toolCallRefs []session.ToolCallRef
		var toolResultMsgs []session.Message

		exec := e.toolExecutor(hctx, sess.ID, &toolCallRefs, &toolResultMsgs, out)

		items, err := e.provider.StreamPrompt(ctx, userMessage, history, e.toolSpecs(), e.maxToolDepth, exec)
		if err != nil {
			out <- session.ChatChunk{Done: true, Err: &llm.CommunicationError{Err: err}}
			return
		}

		for item := range items {
			switch item.Kind {
			case llm.ItemTextDelta:
				out <- session.ChatChunk{Delta: item.TextDelta}
			case llm.ItemReasoningDelta:
				out <- session.ChatChunk{Delta: item.ReasoningDelta}
			case llm.ItemFinalResponse:
				assistantText = item.FinalText
			}
		}

		// History construction rule (spec.md §4.6, §9): one assistant
		// message carrying the free text plus the ordered tool calls,
		// followed by one tool-result message per call in the same order.
		userMsg := session.Message{Role: "user", Content: userMessage}
		assistantMsg := session.Message{
			Role:      "assistant",
			Content:   assistantText,
			ToolCalls: toolCallRefs,
		}
		sess.AppendHistory(append([]session.Message{userMsg, assistantMsg}, toolResultMsgs...)...)

		out <- session.ChatChunk{Done: true, ToolCalls: toolCallRefs}
	}()

	return out, nil
}

// toolSpecs projects the engine's tool definitions down to the llm
// package's provider-facing shape.
func (e *Engine) toolSpecs() []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(e.toolDefs))
	for _, d := range e.toolDefs {
		out = append(out, llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// toolExecutor builds the llm.ToolExecutor the provider calls for every
// tool call it decides to make. It emits tool_called through the reactor
// (clearing it with the permission handler registered via
// RegisterPermissionHandler), dispatches the call to the tool collaborator
// on success, and appends both the call and its result to the slices that
// become the turn's history entry once the stream completes.
func (e *Engine) toolExecutor(hctx *reactor.Context, sessionID string, refs *[]session.ToolCallRef, results *[]session.Message, out chan<- session.ChatChunk) llm.ToolExecutor {
	return func(ctx context.Context, call llm.ToolCall) (llm.ToolResult, error) {
		if call.ID == "" {
			return llm.ToolResult{}, fmt.Errorf("turn: tool call %q missing id", call.Name)
		}

		*refs = append(*refs, session.ToolCallRef{ID: call.ID, Name: call.Name, Args: call.Args})
		out <- session.ChatChunk{ToolCalls: []session.ToolCallRef{{ID: call.ID, Name: call.Name, Args: call.Args}}}

		called := event.New(event.ToolCalled, call.Name, map[string]any{
			"name":       call.Name,
			"args":       call.Args,
			"call_id":    call.ID,
			"session_id": sessionID,
		})
		outcome := e.reactor.EmitRecursive(ctx, hctx, called)

		if outcome.Root.Final.Cancelled {
			*results = append(*results, session.Message{Role: "tool_result", ToolID: call.ID, Content: "denied"})
			return llm.ToolResult{ID: call.ID, Data: map[string]any{"kind": "denied"}}, nil
		}

		data, callErr := e.tools.Execute(ctx, call.Name, call.Args)

		var completed event.Event
		if callErr != nil {
			completed = event.New(event.ToolFailed, call.Name, map[string]any{
				"name": call.Name, "error": callErr.Error(), "call_id": call.ID, "session_id": sessionID,
			})
		} else {
			completed = event.New(event.ToolCompleted, call.Name, map[string]any{
				"name": call.Name, "result": data, "call_id": call.ID, "session_id": sessionID,
			})
		}
		e.reactor.EmitRecursive(ctx, hctx, completed)

		if callErr != nil {
			*results = append(*results, session.Message{Role: "tool_result", ToolID: call.ID, Content: "error: " + callErr.Error()})
			return llm.ToolResult{ID: call.ID, Data: map[string]any{"kind": "error", "error": callErr.Error()}}, nil
		}

		*results = append(*results, session.Message{Role: "tool_result", ToolID: call.ID, Content: fmt.Sprintf("%v", data)})
		return llm.ToolResult{ID: call.ID, Data: map[string]any{"kind": "ok", "result": data}}, nil
	}
}

// toLLMHistory projects session messages down to the llm package's history
// shape.
func toLLMHistory(msgs []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		lm := llm.Message{Content: m.Content, ToolCallID: m.ToolID}
		switch m.Role {
		case "user":
			lm.Role = llm.RoleUser
		case "assistant":
			lm.Role = llm.RoleAssistant
		case "tool_result":
			lm.Role = llm.RoleTool
		default:
			lm.Role = llm.RoleUser
		}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
		out = append(out, lm)
	}
	return out
}
