// Package session owns the set of live Crucible sessions, routes incoming
// messages to the agent turn engine, and broadcasts session events to
// subscribers (C7).
package session

import (
	"sync"
	"time"
)

// Kind distinguishes a plain chat session from one with tool-wielding
// agent capability.
type Kind string

const (
	KindChat  Kind = "chat"
	KindAgent Kind = "agent"
)

// State is a session's lifecycle state.
type State string

const (
	StateActive State = "active"
	StatePaused State = "paused"
	StateEnded  State = "ended"
)

// Mode is advertised to the UI and prompts; the turn engine does not
// constrain behavior based on it.
type Mode string

const (
	ModePlan Mode = "plan"
	ModeAct  Mode = "act"
	ModeAuto Mode = "auto"
)

// Message is one entry in a session's conversation history.
type Message struct {
	Role      string // "user", "assistant", "tool_call", "tool_result"
	Content   string
	ToolCalls []ToolCallRef
	ToolID    string // set on tool_result messages
	Timestamp time.Time
}

// ToolCallRef is the minimal shape of a tool call carried on an assistant
// message, ordered alongside its sibling calls in that one message.
type ToolCallRef struct {
	ID   string
	Name string
	Args map[string]any
}

// PendingInteraction marks that this session's turn is blocked on a
// permission or question request from the interaction protocol.
type PendingInteraction struct {
	RequestID string
	Kind      string // "permission" or "question"
}

// Session is a single live conversation plus its kiln/workspace binding.
// History is owned by the Session (not the agent) so that an agent can be
// hot-swapped mid-conversation.
type Session struct {
	mu sync.RWMutex

	ID            string
	Kind          Kind
	KilnPath      string
	WorkspacePath string
	State         State
	Mode          Mode

	history  []Message
	pending  *PendingInteraction
	busy     bool
	cancelFn func()
}

// New constructs a session in the active state with no history.
func New(id string, kind Kind, kilnPath, workspacePath string) *Session {
	return &Session{
		ID:            id,
		Kind:          kind,
		KilnPath:      kilnPath,
		WorkspacePath: workspacePath,
		State:         StateActive,
		Mode:          ModeAct,
	}
}

// History returns a snapshot of the conversation so far.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// AppendHistory appends messages atomically. Only the turn engine calls
// this, and only between turns or at well-defined turn boundaries — no
// other component reads mid-turn.
func (s *Session) AppendHistory(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// SetMode switches the advertised mode.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mode = m
}

// GetMode returns the current mode.
func (s *Session) GetMode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Mode
}

// SetState transitions the session's lifecycle state.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = st
}

// GetState returns the current lifecycle state.
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// TryBeginTurn marks the session busy, reporting false if a turn is
// already in flight (the caller should reject the new send_message with a
// Busy error) or if the session is paused/ended.
func (s *Session) TryBeginTurn(cancel func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.State != StateActive {
		return false
	}
	s.busy = true
	s.cancelFn = cancel
	return true
}

// EndTurn clears the busy flag once a turn's terminal chunk has been
// emitted.
func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.cancelFn = nil
}

// Cancel aborts the in-flight turn, reporting whether anything was
// running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy || s.cancelFn == nil {
		return false
	}
	s.cancelFn()
	return true
}

// SetPending records that the session is blocked on an interaction
// request.
func (s *Session) SetPending(p *PendingInteraction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}

// Pending returns the session's outstanding interaction request, if any.
func (s *Session) Pending() *PendingInteraction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}
