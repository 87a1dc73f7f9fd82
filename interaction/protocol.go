package interaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a pending request's place in its state machine:
//
//	Pending --user_selects--> Responded --consumed--> (removed)
//	   \---user_cancels--> Cancelled
//	   \---timeout--------> Cancelled
type Status string

const (
	StatusPending   Status = "pending"
	StatusResponded Status = "responded"
	StatusCancelled Status = "cancelled"
)

// Request is one open interaction request — either a permission check or
// an ask/ask-batch question.
type Request struct {
	ID        string
	SessionID string
	Status    Status
	CreatedAt time.Time

	Perm *PermissionRequest
	Ask  *AskRequest
	Ask2 *AskBatch

	QueuePosition int
	QueueTotal    int

	permResp *PermResponse
	askResp  *AskResponse
}

// waiter is the channel a caller blocks on while a request is pending.
type waiter struct {
	done chan struct{}
}

// Protocol resolves permission and question requests raised mid-turn. One
// Protocol instance is shared by every session in the daemon; requests are
// keyed by id so responses route back regardless of which session raised
// them.
type Protocol struct {
	mu       sync.Mutex
	requests map[string]*Request
	waiters  map[string]*waiter
	store    *PatternStore
	timeout  time.Duration
}

// NewProtocol constructs a Protocol. store may be nil to disable
// pattern-based auto-allow. timeout is applied to every raised request
// (default 0 disables timeouts, intended for tests).
func NewProtocol(store *PatternStore, timeout time.Duration) *Protocol {
	return &Protocol{
		requests: make(map[string]*Request),
		waiters:  make(map[string]*waiter),
		store:    store,
		timeout:  timeout,
	}
}

// RaisePermission opens a permission request and blocks until it is
// resolved (answered, cancelled, or timed out) or ctx is done. If the
// project's pattern store already grants this request, it resolves
// immediately without surfacing a modal.
func (p *Protocol) RaisePermission(ctx context.Context, sessionID string, req PermissionRequest) (PermResponse, error) {
	if p.store != nil {
		if p.store.Allows(req) {
			return PermResponse{Allowed: true}, nil
		}
	}

	id := uuid.NewString()
	r := &Request{
		ID:        id,
		SessionID: sessionID,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Perm:      &req,
	}

	w := &waiter{done: make(chan struct{})}
	p.mu.Lock()
	p.requests[id] = r
	p.waiters[id] = w
	p.mu.Unlock()

	resolved, err := p.awaitResolution(ctx, id, w)
	if err != nil {
		return PermResponse{Allowed: false}, err
	}
	if resolved.Status == StatusCancelled {
		return PermResponse{Allowed: false}, nil
	}

	resp := *resolved.permResp
	if resp.Allowed && resp.Pattern != "" && p.store != nil {
		p.store.Save(resp.Pattern, resp.Scope, sessionID)
	}
	return resp, nil
}

// RaiseAsk opens a single-question ask request and blocks for a response.
func (p *Protocol) RaiseAsk(ctx context.Context, sessionID string, req AskRequest) (AskResponse, error) {
	id := uuid.NewString()
	r := &Request{ID: id, SessionID: sessionID, Status: StatusPending, CreatedAt: time.Now(), Ask: &req}

	w := &waiter{done: make(chan struct{})}
	p.mu.Lock()
	p.requests[id] = r
	p.waiters[id] = w
	p.mu.Unlock()

	resolved, err := p.awaitResolution(ctx, id, w)
	if err != nil {
		return AskResponse{}, err
	}
	if resolved.Status == StatusCancelled {
		return AskResponse{}, fmt.Errorf("ask request cancelled")
	}
	return *resolved.askResp, nil
}

func (p *Protocol) awaitResolution(ctx context.Context, id string, w *waiter) (*Request, error) {
	var timeoutCh <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-w.done:
		p.mu.Lock()
		r := p.requests[id]
		delete(p.requests, id)
		delete(p.waiters, id)
		p.mu.Unlock()
		return r, nil
	case <-timeoutCh:
		p.mu.Lock()
		r := p.requests[id]
		if r != nil {
			r.Status = StatusCancelled
		}
		delete(p.requests, id)
		delete(p.waiters, id)
		p.mu.Unlock()
		return r, nil
	case <-ctx.Done():
		p.mu.Lock()
		r := p.requests[id]
		if r != nil {
			r.Status = StatusCancelled
		}
		delete(p.requests, id)
		delete(p.waiters, id)
		p.mu.Unlock()
		return r, ctx.Err()
	}
}

// Respond implements session.PermissionResponder: it resolves a pending
// request by id with either a PermResponse or an AskResponse, and is the
// consumption point the state diagram calls "consumed".
func (p *Protocol) Respond(requestID string, response any) error {
	p.mu.Lock()
	r, ok := p.requests[requestID]
	w, wok := p.waiters[requestID]
	if !ok || !wok || r.Status != StatusPending {
		p.mu.Unlock()
		return fmt.Errorf("no pending request %q", requestID)
	}

	switch v := response.(type) {
	case PermResponse:
		r.permResp = &v
	case AskResponse:
		r.askResp = &v
	default:
		p.mu.Unlock()
		return fmt.Errorf("unsupported response type %T", response)
	}
	r.Status = StatusResponded
	p.mu.Unlock()

	close(w.done)
	return nil
}

// Cancel transitions a pending request to Cancelled (user pressed Esc /
// Ctrl-C, or the UI otherwise gave up).
func (p *Protocol) Cancel(requestID string) error {
	p.mu.Lock()
	r, ok := p.requests[requestID]
	w, wok := p.waiters[requestID]
	if !ok || !wok || r.Status != StatusPending {
		p.mu.Unlock()
		return fmt.Errorf("no pending request %q", requestID)
	}
	r.Status = StatusCancelled
	p.mu.Unlock()

	close(w.done)
	return nil
}

// Get returns a snapshot of a request's current state, used by the UI to
// render the wire shape in §6 (queue_position, queue_total included).
func (p *Protocol) Get(requestID string) (*Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.requests[requestID]
	return r, ok
}
