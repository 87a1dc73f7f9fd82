package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingEngine struct {
	release chan struct{}
}

func (e *blockingEngine) RunTurn(ctx context.Context, sess *Session, text string) (<-chan ChatChunk, error) {
	out := make(chan ChatChunk, 1)
	go func() {
		defer close(out)
		<-e.release
		out <- ChatChunk{Delta: text, Done: true}
	}()
	return out, nil
}

func TestSendMessageSameSessionBusyDifferentSessionsIndependent(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{})}
	m := NewManager(engine, nil, nil)
	s1 := m.Create(KindChat, "/kiln", "/work")
	s2 := m.Create(KindChat, "/kiln", "/work")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.SendMessage(context.Background(), s1.ID, "first")
	}()

	// give the first call time to mark the session busy
	time.Sleep(20 * time.Millisecond)

	err := m.SendMessage(context.Background(), s1.ID, "second")
	assert.ErrorIs(t, err, ErrBusy)

	// A different session is unaffected by s1's in-flight turn.
	engine2 := &blockingEngine{release: make(chan struct{})}
	close(engine2.release)
	m2 := NewManager(engine2, nil, nil)
	m2.sessions[s2.ID] = &perSession{sess: s2}
	require.NoError(t, m2.SendMessage(context.Background(), s2.ID, "independent"))

	close(engine.release)
	wg.Wait()
}

func TestPauseRejectsSendMessage(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{})}
	close(engine.release)
	m := NewManager(engine, nil, nil)
	s := m.Create(KindChat, "/kiln", "/work")
	require.NoError(t, m.Pause(s.ID))
	err := m.SendMessage(context.Background(), s.ID, "hi")
	assert.ErrorIs(t, err, ErrPaused)
}

func TestSubscribeReceivesBroadcastChunks(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{})}
	close(engine.release)
	m := NewManager(engine, nil, nil)
	s := m.Create(KindChat, "/kiln", "/work")

	ch, subID, err := m.Subscribe(s.ID)
	require.NoError(t, err)
	defer m.Unsubscribe(s.ID, subID)

	require.NoError(t, m.SendMessage(context.Background(), s.ID, "hello"))

	select {
	case ev := <-ch:
		require.NotNil(t, ev.Chunk)
		assert.Equal(t, "hello", ev.Chunk.Delta)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestCancelReportsWhetherSomethingWasRunning(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{})}
	m := NewManager(engine, nil, nil)
	s := m.Create(KindChat, "/kiln", "/work")

	ran, err := m.Cancel(s.ID)
	require.NoError(t, err)
	assert.False(t, ran)

	go func() { _ = m.SendMessage(context.Background(), s.ID, "hi") }()
	time.Sleep(20 * time.Millisecond)

	ran, err = m.Cancel(s.ID)
	require.NoError(t, err)
	assert.True(t, ran)
	close(engine.release)
}
