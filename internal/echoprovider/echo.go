// Package echoprovider is a reference llm.Provider implementation that
// echoes the user's message back, streamed one word at a time. It exists
// for the same reason the teacher ships examples/plugins/echo-llm: a
// minimal, dependency-free collaborator a binary can wire in so the rest
// of the pipeline (reactor, turn engine, session manager) is exercisable
// without a real model API key. It is not a production LLM client —
// concrete provider clients are deliberately out of this module's scope.
package echoprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/crucible/llm"
)

// Provider streams back "Echo: <message> (turn #n)" a word at a time. It
// never calls tools — StreamPrompt's exec parameter is accepted only to
// satisfy llm.Provider's signature.
type Provider struct {
	Prefix string
	calls  int
}

// New constructs an echo Provider. prefix defaults to "Echo: ".
func New(prefix string) *Provider {
	if prefix == "" {
		prefix = "Echo: "
	}
	return &Provider{Prefix: prefix}
}

func (p *Provider) StreamPrompt(ctx context.Context, message string, history []llm.Message, tools []llm.ToolSpec, maxToolDepth int, exec llm.ToolExecutor) (<-chan llm.Item, error) {
	p.calls++
	response := fmt.Sprintf("%s%s (turn #%d)", p.Prefix, message, p.calls)
	if len(tools) > 0 {
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		response += " [tools available: " + strings.Join(names, ", ") + "]"
	}

	out := make(chan llm.Item, 8)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(response) {
			select {
			case out <- llm.Item{Kind: llm.ItemTextDelta, TextDelta: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- llm.Item{Kind: llm.ItemFinalResponse, FinalText: response}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
