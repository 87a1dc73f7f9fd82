package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/crucible/enrich"
	"github.com/kadirpekel/crucible/kiln"
)

func TestUpsertNoteWritesSidecarAtomically(t *testing.T) {
	kilnRoot := t.TempDir()
	sidecarRoot := t.TempDir()
	notePath := filepath.Join(kilnRoot, "alpha.md")
	require.NoError(t, os.WriteFile(notePath, []byte("# Alpha\n"), 0o644))

	s := NewFileStorage(sidecarRoot, kilnRoot, nil)
	parsed := kiln.Parse(notePath, []byte("# Alpha\n"))
	outcome := enrich.Outcome{Metadata: enrich.Metadata{WordCount: 1, ReadingTime: 0.005}}

	require.NoError(t, s.UpsertNote(context.Background(), parsed, outcome))

	sidecarPath := filepath.Join(sidecarRoot, "alpha.md.json")
	data, err := os.ReadFile(sidecarPath)
	require.NoError(t, err)

	var record sidecarRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, notePath, record.Path)
	assert.Equal(t, 1, record.WordCount)
}

func TestUpsertNoteOverwritesPriorSidecar(t *testing.T) {
	kilnRoot := t.TempDir()
	sidecarRoot := t.TempDir()
	notePath := filepath.Join(kilnRoot, "beta.md")

	s := NewFileStorage(sidecarRoot, kilnRoot, nil)
	parsed := kiln.Parse(notePath, []byte("# Beta\n"))

	require.NoError(t, s.UpsertNote(context.Background(), parsed, enrich.Outcome{Metadata: enrich.Metadata{WordCount: 5}}))
	require.NoError(t, s.UpsertNote(context.Background(), parsed, enrich.Outcome{Metadata: enrich.Metadata{WordCount: 9}}))

	data, err := os.ReadFile(filepath.Join(sidecarRoot, "beta.md.json"))
	require.NoError(t, err)
	var record sidecarRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, 9, record.WordCount)
}
