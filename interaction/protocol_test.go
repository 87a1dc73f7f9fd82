package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMonotonicity(t *testing.T) {
	req := PermissionRequest{Kind: PermBash, BashTokens: []string{"npm", "install", "lodash"}}
	broad := req.PatternAt(0)
	narrow := req.PatternAt(3)
	assert.Equal(t, "*", broad)
	assert.Equal(t, "npm install lodash", narrow)
	assert.NotEqual(t, broad, narrow)
}

func TestRaisePermissionResolvesOnAllow(t *testing.T) {
	p := NewProtocol(nil, 0)
	req := PermissionRequest{Kind: PermRead, ReadSegments: []string{"etc", "passwd"}}

	resultCh := make(chan PermResponse, 1)
	go func() {
		resp, err := p.RaisePermission(context.Background(), "chat-1", req)
		require.NoError(t, err)
		resultCh <- resp
	}()

	// Wait for the request to be registered before responding.
	var id string
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		for rid := range p.requests {
			id = rid
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Respond(id, PermResponse{Allowed: true}))

	select {
	case resp := <-resultCh:
		assert.True(t, resp.Allowed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolution")
	}
}

// Scenario 2: permission cancellation.
func TestRaisePermissionCancelledYieldsDenied(t *testing.T) {
	p := NewProtocol(nil, 0)
	req := PermissionRequest{Kind: PermRead, ReadSegments: []string{"etc", "passwd"}}

	resultCh := make(chan PermResponse, 1)
	go func() {
		resp, _ := p.RaisePermission(context.Background(), "chat-1", req)
		resultCh <- resp
	}()

	var id string
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		for rid := range p.requests {
			id = rid
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Cancel(id))

	select {
	case resp := <-resultCh:
		assert.False(t, resp.Allowed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}

func TestTimeoutResolvesToCancelled(t *testing.T) {
	p := NewProtocol(nil, 10*time.Millisecond)
	req := PermissionRequest{Kind: PermBash, BashTokens: []string{"rm", "-rf"}}
	resp, err := p.RaisePermission(context.Background(), "chat-1", req)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
}

// Scenario 6: pattern-based allow persists and short-circuits future
// identical requests without surfacing a modal.
func TestPatternBasedAllowShortCircuits(t *testing.T) {
	store, err := OpenPatternStore(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	p := NewProtocol(store, 0)
	req := PermissionRequest{Kind: PermBash, BashTokens: []string{"npm", "install"}}

	resultCh := make(chan PermResponse, 1)
	go func() {
		resp, _ := p.RaisePermission(context.Background(), "chat-1", req)
		resultCh <- resp
	}()

	var id string
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		for rid := range p.requests {
			id = rid
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Respond(id, PermResponse{
		Allowed: true,
		Pattern: req.PatternAt(len(req.Tokens())),
		Scope:   ScopeProject,
	}))
	<-resultCh

	// Second identical request auto-allows without needing a responder.
	resp2, err := p.RaisePermission(context.Background(), "chat-1", req)
	require.NoError(t, err)
	assert.True(t, resp2.Allowed)
}
