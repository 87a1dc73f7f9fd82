package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	assert.True(t, Matches("*", "anything"))
	assert.True(t, Matches("tool:*", "tool_called"))
	assert.False(t, Matches("tool:*", "note_modified"))
	assert.True(t, Matches("note:modified", "note_modified"))
	assert.False(t, Matches("note:modified", "note_created"))
	assert.True(t, Matches("custom", "custom"))
}

func TestNewStampsIdentifierAndTimestamp(t *testing.T) {
	e := New(ToolCalled, "read_file", map[string]any{"args": map[string]any{}})
	require.NotZero(t, e.ID)
	require.NotZero(t, e.Timestamp)
	assert.Equal(t, "read_file", e.Payload["id"])
	assert.False(t, e.Cancelled)
}

func TestCancelIsIdempotent(t *testing.T) {
	e := New(ToolCalled, "bash", nil)
	e.Cancel()
	e.Cancel()
	assert.True(t, e.Cancelled)
}

func TestWithSourceReturnsCopy(t *testing.T) {
	e := New(Custom, "x", nil)
	tagged := e.WithSource("kiln")
	assert.Equal(t, "", e.Source)
	assert.Equal(t, "kiln", tagged.Source)
}

func TestIDsAreMonotonic(t *testing.T) {
	a := New(Custom, "a", nil)
	b := New(Custom, "b", nil)
	assert.Less(t, a.ID, b.ID)
}
