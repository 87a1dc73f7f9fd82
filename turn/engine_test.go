package turn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/crucible/interaction"
	"github.com/kadirpekel/crucible/llm"
	"github.com/kadirpekel/crucible/reactor"
	"github.com/kadirpekel/crucible/session"
	"github.com/kadirpekel/crucible/tool"
)

// scriptedProvider replays a fixed sequence of items, calling exec for each
// ItemToolCall encountered so the turn engine's toolExecutor actually runs
// as part of the stream — mirroring how a real provider would interleave
// tool resolution between model round-trips.
type scriptedProvider struct {
	items []llm.Item
}

func (p *scriptedProvider) StreamPrompt(ctx context.Context, message string, history []llm.Message, tools []llm.ToolSpec, maxToolDepth int, exec llm.ToolExecutor) (<-chan llm.Item, error) {
	ch := make(chan llm.Item, len(p.items))
	go func() {
		defer close(ch)
		for _, item := range p.items {
			if item.Kind == llm.ItemToolCall {
				res, _ := exec(ctx, *item.ToolCall)
				ch <- llm.Item{Kind: llm.ItemToolResult, ToolResult: &res}
				continue
			}
			ch <- item
		}
	}()
	return ch, nil
}

type echoTool struct{}

func (echoTool) Name() string           { return "echo" }
func (echoTool) Description() string    { return "echoes args" }
func (echoTool) Schema() map[string]any { return nil }
func (echoTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"echoed": args["msg"]}, nil
}

func newTestEngine(t *testing.T, items []llm.Item) (*Engine, *session.Session) {
	t.Helper()
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	collab := tool.NewCollaborator(registry)

	r := reactor.New(nil)
	provider := &scriptedProvider{items: items}
	eng := New(provider, r, collab, registry.Definitions(), nil)
	sess := session.New("chat-test", session.KindChat, "/kiln", "/work")
	return eng, sess
}

func drain(t *testing.T, ch <-chan session.ChatChunk) []session.ChatChunk {
	t.Helper()
	var out []session.ChatChunk
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-time.After(time.Second):
			t.Fatal("timed out draining turn")
		}
	}
}

func TestRunTurnTextOnly(t *testing.T) {
	eng, sess := newTestEngine(t, []llm.Item{
		{Kind: llm.ItemTextDelta, TextDelta: "hel"},
		{Kind: llm.ItemTextDelta, TextDelta: "lo"},
		{Kind: llm.ItemFinalResponse, FinalText: "hello"},
	})

	ch, err := eng.RunTurn(context.Background(), sess, "hi")
	require.NoError(t, err)
	chunks := drain(t, ch)

	require.NotEmpty(t, chunks)
	assert.True(t, chunks[len(chunks)-1].Done)

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "user", hist[0].Role)
	assert.Equal(t, "hi", hist[0].Content)
	assert.Equal(t, "assistant", hist[1].Role)
	assert.Equal(t, "hello", hist[1].Content)
}

func TestRunTurnExecutesToolAndOrdersHistory(t *testing.T) {
	call := llm.ToolCall{ID: "call-1", Name: "echo", Args: map[string]any{"msg": "hi"}}
	eng, sess := newTestEngine(t, []llm.Item{
		{Kind: llm.ItemToolCall, ToolCall: &call},
		{Kind: llm.ItemFinalResponse, FinalText: "done"},
	})

	ch, err := eng.RunTurn(context.Background(), sess, "please echo")
	require.NoError(t, err)
	drain(t, ch)

	hist := sess.History()
	require.Len(t, hist, 3)
	assert.Equal(t, "user", hist[0].Role)
	assert.Equal(t, "assistant", hist[1].Role)
	require.Len(t, hist[1].ToolCalls, 1)
	assert.Equal(t, "call-1", hist[1].ToolCalls[0].ID)
	assert.Equal(t, "tool_result", hist[2].Role)
	assert.Equal(t, "call-1", hist[2].ToolID)
}

func TestRunTurnDeniedPermissionSynthesizesResult(t *testing.T) {
	call := llm.ToolCall{ID: "call-2", Name: "echo", Args: map[string]any{"msg": "hi"}}
	eng, sess := newTestEngine(t, []llm.Item{
		{Kind: llm.ItemToolCall, ToolCall: &call},
		{Kind: llm.ItemFinalResponse, FinalText: "done"},
	})

	// A short timeout on the protocol means the permission request resolves
	// to Cancelled (denied) on its own, without a responder — the same
	// path a user-initiated cancel takes.
	protocol := interaction.NewProtocol(nil, 10*time.Millisecond)
	RegisterPermissionHandler(eng.reactor, protocol)

	ch, err := eng.RunTurn(context.Background(), sess, "please echo /etc/passwd")
	require.NoError(t, err)
	drain(t, ch)

	hist := sess.History()
	require.Len(t, hist, 3)
	assert.Equal(t, "denied", hist[2].Content)
}
