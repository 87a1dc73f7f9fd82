package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromStringAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromString(`
kiln_path: /kilns/notes
llm:
  name: anthropic
  model: claude-sonnet-4
`)
	require.NoError(t, err)

	assert.Equal(t, "/kilns/notes", cfg.KilnPath)
	assert.Equal(t, ".crucible/sidecars", cfg.SidecarPath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 4, cfg.Performance.MaxConcurrency)
	assert.Equal(t, 8000, cfg.Performance.MaxHistoryTokens)
	assert.Equal(t, 10, cfg.Enrichment.MaxBatchSize)
	assert.Equal(t, 5, cfg.Enrichment.MinWordCount)
	assert.Equal(t, []string{"heading", "paragraph", "code_block", "list", "blockquote"}, cfg.Enrichment.StructuralOrder)
	assert.Equal(t, int64(10*1024*1024), cfg.Scanner.MaxFileSize)
	assert.Equal(t, ".crucible/patterns.db", cfg.PatternStore.Path)
}

func TestLoadFromStringRejectsMissingKilnPath(t *testing.T) {
	_, err := LoadFromString(`
llm:
  name: anthropic
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kiln_path")
}

func TestLoadFromStringRejectsMissingLLMName(t *testing.T) {
	_, err := LoadFromString(`
kiln_path: /kilns/notes
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.name")
}

func TestLoadFromStringRejectsMCPServerMissingCommand(t *testing.T) {
	_, err := LoadFromString(`
kiln_path: /kilns/notes
llm:
  name: anthropic
mcp:
  - name: filesystem
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")
}

func TestLoadFromStringExpandsEnvVars(t *testing.T) {
	t.Setenv("CRUCIBLE_TEST_KILN", "/env/kiln")

	cfg, err := LoadFromString(`
kiln_path: ${CRUCIBLE_TEST_KILN}
llm:
  name: anthropic
`)
	require.NoError(t, err)
	assert.Equal(t, "/env/kiln", cfg.KilnPath)
}

func TestLoadFromStringResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("CRUCIBLE_TEST_API_KEY", "secret-value")

	cfg, err := LoadFromString(`
kiln_path: /kilns/notes
llm:
  name: anthropic
  api_key_from: CRUCIBLE_TEST_API_KEY
`)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", cfg.LLM.APIKey)
}

func TestLoadFromStringRejectsUnknownStructuralOrderEntry(t *testing.T) {
	_, err := LoadFromString(`
kiln_path: /kilns/notes
llm:
  name: anthropic
enrichment:
  structural_order: ["heading", "table"]
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structural_order")
}

func TestLoadReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/crucible.yaml"
	require.NoError(t, os.WriteFile(path, []byte("kiln_path: /kilns/notes\nllm:\n  name: ollama\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.Name)
}
