package script

import (
	"context"
	"fmt"

	"github.com/kadirpekel/crucible/session"
)

// LiveBridge forwards every Bridge call to a running session.Manager —
// the "live" registration routine spec.md §4.4 contrasts with the stub.
type LiveBridge struct {
	manager *session.Manager
}

// NewLiveBridge wraps manager for script access.
func NewLiveBridge(manager *session.Manager) *LiveBridge {
	return &LiveBridge{manager: manager}
}

func (b *LiveBridge) CreateSession(kind, kilnPath, workspacePath string) (Value, error) {
	k := session.Kind(kind)
	if k != session.KindChat && k != session.KindAgent {
		return nil, &Error{Kind: KindInvalidMode, Message: fmt.Sprintf("unknown session kind %q", kind)}
	}
	sess := b.manager.Create(k, kilnPath, workspacePath)
	return sessionToValue(sess), nil
}

func (b *LiveBridge) GetSession(id string) (Value, error) {
	sess, err := b.manager.Get(id)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	return sessionToValue(sess), nil
}

func (b *LiveBridge) ListSessions() (Value, error) {
	sessions := b.manager.List()
	out := make([]Value, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionToValue(s))
	}
	return out, nil
}

func (b *LiveBridge) ConfigureAgent(sessionID, mode string) (Value, error) {
	sess, err := b.manager.Get(sessionID)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	m := session.Mode(mode)
	if m != session.ModePlan && m != session.ModeAct && m != session.ModeAuto {
		return nil, &Error{Kind: KindInvalidMode, Message: fmt.Sprintf("unknown mode %q", mode)}
	}
	sess.SetMode(m)
	return sessionToValue(sess), nil
}

func (b *LiveBridge) SendMessage(ctx context.Context, sessionID, text string) (Value, error) {
	if err := b.manager.SendMessage(ctx, sessionID, text); err != nil {
		return nil, classifyManagerError(err)
	}
	return map[string]any{"ok": true}, nil
}

func (b *LiveBridge) Cancel(sessionID string) (Value, error) {
	ran, err := b.manager.Cancel(sessionID)
	if err != nil {
		return nil, classifyManagerError(err)
	}
	return map[string]any{"cancelled": ran}, nil
}

func (b *LiveBridge) Pause(sessionID string) (Value, error) {
	if err := b.manager.Pause(sessionID); err != nil {
		return nil, classifyManagerError(err)
	}
	return map[string]any{"ok": true}, nil
}

func (b *LiveBridge) Resume(sessionID string) (Value, error) {
	if err := b.manager.Resume(sessionID); err != nil {
		return nil, classifyManagerError(err)
	}
	return map[string]any{"ok": true}, nil
}

func (b *LiveBridge) EndSession(sessionID string) (Value, error) {
	if err := b.manager.End(sessionID); err != nil {
		return nil, classifyManagerError(err)
	}
	return map[string]any{"ok": true}, nil
}

func (b *LiveBridge) RespondToPermission(requestID string, response Value) (Value, error) {
	if err := b.manager.RespondToPermission(requestID, response); err != nil {
		return nil, &Error{Kind: KindPermission, Message: err.Error()}
	}
	return map[string]any{"ok": true}, nil
}

func (b *LiveBridge) Subscribe(sessionID string) (EventIterator, error) {
	ch, subID, err := b.manager.Subscribe(sessionID)
	if err != nil {
		return nil, classifyManagerError(err)
	}
	return func() (Value, error) {
		ev, ok := <-ch
		if !ok {
			return nil, nil
		}
		return eventToValue(ev, subID), nil
	}, nil
}

func (b *LiveBridge) Unsubscribe(sessionID, subID string) (Value, error) {
	b.manager.Unsubscribe(sessionID, subID)
	return map[string]any{"ok": true}, nil
}

func classifyManagerError(err error) error {
	switch err {
	case session.ErrBusy:
		return &Error{Kind: KindValidation, Message: err.Error()}
	case session.ErrPaused:
		return &Error{Kind: KindValidation, Message: err.Error()}
	case session.ErrNotFound:
		return &Error{Kind: KindValidation, Message: err.Error()}
	default:
		return &Error{Kind: KindCommunication, Message: err.Error()}
	}
}

func sessionToValue(s *session.Session) Value {
	return map[string]any{
		"id":             s.ID,
		"kind":           string(s.Kind),
		"kiln_path":      s.KilnPath,
		"workspace_path": s.WorkspacePath,
		"state":          string(s.GetState()),
		"mode":           string(s.GetMode()),
	}
}

func eventToValue(ev session.Event, subID string) Value {
	out := map[string]any{
		"session_id":      ev.SessionID,
		"subscription_id": subID,
	}
	if ev.Chunk != nil {
		chunk := map[string]any{
			"delta": ev.Chunk.Delta,
			"done":  ev.Chunk.Done,
		}
		if ev.Chunk.Err != nil {
			chunk["error"] = ev.Chunk.Err.Error()
		}
		calls := make([]Value, 0, len(ev.Chunk.ToolCalls))
		for _, tc := range ev.Chunk.ToolCalls {
			calls = append(calls, map[string]any{"id": tc.ID, "name": tc.Name, "args": tc.Args})
		}
		chunk["tool_calls"] = calls
		out["chunk"] = chunk
	}
	if ev.Notice != "" {
		out["notice"] = ev.Notice
		out["message"] = ev.Message
	}
	return out
}
