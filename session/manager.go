package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrBusy is returned by SendMessage when a turn is already in flight on
// the target session.
var ErrBusy = errors.New("session busy: a turn is already in progress")

// ErrNotFound is returned when an operation names an unknown session id.
var ErrNotFound = errors.New("session not found")

// ErrPaused is returned by SendMessage when the session is paused.
var ErrPaused = errors.New("session paused")

// subscriberCapacity bounds each subscriber's channel; a slow subscriber
// that would block is dropped from the broadcast set rather than stalling
// the emitter.
const subscriberCapacity = 64

// PermissionResponder forwards a user's interaction response to the
// Interaction Protocol, keyed by request id.
type PermissionResponder interface {
	Respond(requestID string, response any) error
}

type subscription struct {
	id string
	ch chan Event
}

// perSession wraps a Session with its own lock so dispatch on one session
// never blocks another, per §5's shared-resource policy.
type perSession struct {
	mu   sync.Mutex
	sess *Session
	subs []*subscription
}

// Manager owns every live session, routes send_message calls to the turn
// Engine, and fans streamed chunks out to subscribers.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*perSession
	engine   Engine
	perm     PermissionResponder
	logger   *slog.Logger
	nextSub  int
}

// NewManager constructs a Manager. perm may be nil until the interaction
// protocol is wired; RespondToPermission then errors.
func NewManager(engine Engine, perm PermissionResponder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*perSession),
		engine:   engine,
		perm:     perm,
		logger:   logger,
	}
}

// Create starts a new session and returns it.
func (m *Manager) Create(kind Kind, kilnPath, workspacePath string) *Session {
	s := New(NewID(kind), kind, kilnPath, workspacePath)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &perSession{sess: s}
	return s
}

// Get retrieves a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ps.sess, nil
}

// List returns a snapshot of all live sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, ps := range m.sessions {
		out = append(out, ps.sess)
	}
	return out
}

// SendMessage drives one turn on the named session, broadcasting each
// streamed chunk to subscribers. Two concurrent calls on the *same*
// session: the second fails immediately with ErrBusy. Two concurrent
// calls on different sessions proceed independently — callers invoke
// SendMessage from their own goroutine per session.
func (m *Manager) SendMessage(ctx context.Context, sessionID, text string) error {
	m.mu.RLock()
	ps, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	if ps.sess.GetState() == StatePaused {
		return ErrPaused
	}
	if ps.sess.GetState() == StateEnded {
		return ErrNotFound
	}

	turnCtx, cancel := context.WithCancel(ctx)
	if !ps.sess.TryBeginTurn(cancel) {
		cancel()
		return ErrBusy
	}
	defer ps.sess.EndTurn()

	chunks, err := m.engine.RunTurn(turnCtx, ps.sess, text)
	if err != nil {
		m.broadcast(ps, Event{SessionID: sessionID, Notice: "error", Message: err.Error()})
		return nil
	}

	for chunk := range chunks {
		c := chunk
		m.broadcast(ps, Event{SessionID: sessionID, Chunk: &c})
	}
	return nil
}

// Cancel aborts the session's in-flight turn, reporting whether anything
// was running.
func (m *Manager) Cancel(sessionID string) (bool, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return false, err
	}
	return s.Cancel(), nil
}

// Pause transitions the session to paused; a paused session rejects
// SendMessage.
func (m *Manager) Pause(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.SetState(StatePaused)
	m.mu.RLock()
	ps := m.sessions[sessionID]
	m.mu.RUnlock()
	m.broadcast(ps, Event{SessionID: sessionID, Notice: "paused"})
	return nil
}

// Resume transitions a paused session back to active.
func (m *Manager) Resume(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.SetState(StateActive)
	m.mu.RLock()
	ps := m.sessions[sessionID]
	m.mu.RUnlock()
	m.broadcast(ps, Event{SessionID: sessionID, Notice: "resumed"})
	return nil
}

// End terminates a session and removes it from the live set.
func (m *Manager) End(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.Cancel()
	s.SetState(StateEnded)

	m.mu.Lock()
	ps := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	m.broadcast(ps, Event{SessionID: sessionID, Notice: "ended"})
	return nil
}

// RespondToPermission forwards a user's choice to the interaction
// protocol, keyed by request id.
func (m *Manager) RespondToPermission(requestID string, response any) error {
	if m.perm == nil {
		return fmt.Errorf("no interaction protocol wired")
	}
	return m.perm.Respond(requestID, response)
}

// Subscribe returns a receiver of this session's events plus an
// unsubscribe token.
func (m *Manager) Subscribe(sessionID string) (<-chan Event, string, error) {
	m.mu.Lock()
	ps, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, "", ErrNotFound
	}
	m.nextSub++
	subID := fmt.Sprintf("sub-%d", m.nextSub)
	m.mu.Unlock()

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ch := make(chan Event, subscriberCapacity)
	ps.subs = append(ps.subs, &subscription{id: subID, ch: ch})
	return ch, subID, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(sessionID, subID string) {
	m.mu.RLock()
	ps, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i, s := range ps.subs {
		if s.id == subID {
			close(s.ch)
			ps.subs = append(ps.subs[:i], ps.subs[i+1:]...)
			return
		}
	}
}

func (m *Manager) broadcast(ps *perSession, ev Event) {
	if ps == nil {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	live := ps.subs[:0]
	for _, s := range ps.subs {
		select {
		case s.ch <- ev:
			live = append(live, s)
		default:
			m.logger.Warn("session: dropping slow subscriber", "session_id", ev.SessionID, "subscriber_id", s.id)
			close(s.ch)
		}
	}
	ps.subs = live
}
