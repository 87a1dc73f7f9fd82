package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/crucible/config"
	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/reactor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	kilnRoot := t.TempDir()
	stateRoot := t.TempDir()
	cfg := &config.Config{
		KilnPath: kilnRoot,
		LLM:      config.ProviderConfig{Name: "echo"},
		PatternStore: config.PatternStoreConfig{
			Path: filepath.Join(stateRoot, "patterns.db"),
		},
		Vector: config.VectorConfig{
			PersistPath: filepath.Join(stateRoot, "vectors.gob"),
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildDaemonWiresWithoutProvider(t *testing.T) {
	cfg := testConfig(t)

	d, err := buildDaemon(cfg, testLogger(), nil)
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.reactor)
	assert.NotNil(t, d.manager)
	assert.NotNil(t, d.pipeline)
	assert.NotNil(t, d.storage)
}

func TestBuildDaemonCreatesStateDirectories(t *testing.T) {
	cfg := testConfig(t)
	stateRoot := filepath.Join(t.TempDir(), "state")
	cfg.PatternStore.Path = filepath.Join(stateRoot, "patterns.db")
	cfg.Vector.PersistPath = filepath.Join(stateRoot, "vectors", "index.gob")

	d, err := buildDaemon(cfg, testLogger(), nil)
	require.NoError(t, err)
	defer d.Close()

	_, err = os.Stat(filepath.Dir(cfg.PatternStore.Path))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Dir(cfg.Vector.PersistPath))
	assert.NoError(t, err)
}

func TestRunScanEmitsNoteParsedForEachNote(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.KilnPath, "note.md"), []byte("# Hello\n\nBody text.\n"), 0o644))

	d, err := buildDaemon(cfg, testLogger(), nil)
	require.NoError(t, err)
	defer d.Close()

	var parsed int
	d.reactor.Register(reactor.NewHandler("test:count_note_parsed", "note:parsed", func(_ context.Context, _ *reactor.Context, e event.Event) reactor.Result {
		parsed++
		return reactor.Continue(e)
	}))

	require.NoError(t, d.runScan(context.Background(), false))
	assert.Equal(t, 1, parsed)
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, ".lua", extOf("/scripts/handler.lua"))
	assert.Equal(t, ".rune", extOf("handler.rune"))
	assert.Equal(t, "", extOf("README"))
	assert.Equal(t, "", extOf("/no/extension/here"))
}
