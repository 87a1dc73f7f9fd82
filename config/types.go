package config

import (
	"fmt"
	"time"
)

// ============================================================================
// GLOBAL CONFIGURATIONS
// ============================================================================

// LoggingConfig controls the ambient slog handler every component logs
// through.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, file
	File   string `yaml:"file"`   // path, only used when Output == "file"
}

func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Level] {
		return fmt.Errorf("config: invalid log level %q", c.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Format] {
		return fmt.Errorf("config: invalid log format %q", c.Format)
	}
	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Output] {
		return fmt.Errorf("config: invalid log output %q", c.Output)
	}
	if c.Output == "file" && c.File == "" {
		return fmt.Errorf("config: logging.file is required when output is \"file\"")
	}
	return nil
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// PerformanceConfig bounds the reactor's and turn engine's resource use.
type PerformanceConfig struct {
	MaxConcurrency   int           `yaml:"max_concurrency"`    // validated and defaulted; no component reads it
	Timeout          time.Duration `yaml:"timeout"`            // how long a pending interaction request waits for a reply
	MaxHistoryTokens int           `yaml:"max_history_tokens"` // per-turn conversation history budget
}

func (c *PerformanceConfig) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("config: performance.max_concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: performance.timeout must be positive")
	}
	if c.MaxHistoryTokens < 0 {
		return fmt.Errorf("config: performance.max_history_tokens cannot be negative")
	}
	return nil
}

func (c *PerformanceConfig) SetDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Minute
	}
	if c.MaxHistoryTokens == 0 {
		c.MaxHistoryTokens = 8000
	}
}

// ScannerConfig maps onto kiln.ScanOptions / kiln.WatchOptions.
type ScannerConfig struct {
	MaxFileSize   int64         `yaml:"max_file_size"`
	MaxDepth      int           `yaml:"max_depth"`
	SkipHidden    bool          `yaml:"skip_hidden"`
	DebounceDelay time.Duration `yaml:"debounce_delay"`
}

func (c *ScannerConfig) Validate() error {
	if c.MaxFileSize < 0 {
		return fmt.Errorf("config: scanner.max_file_size must not be negative")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("config: scanner.max_depth must not be negative")
	}
	if c.DebounceDelay < 0 {
		return fmt.Errorf("config: scanner.debounce_delay must not be negative")
	}
	return nil
}

func (c *ScannerConfig) SetDefaults() {
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 10 * 1024 * 1024
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 32
	}
	if c.DebounceDelay == 0 {
		c.DebounceDelay = 100 * time.Millisecond
	}
	// SkipHidden is not set here: a bool's zero value cannot tell an
	// omitted key from an explicit false. LoadFromBytes seeds it to true
	// before decoding, so loaded configs skip hidden files unless
	// skip_hidden: false is given.
}

// EnrichmentConfig maps directly onto enrich.Config.
type EnrichmentConfig struct {
	EmbeddingProvider string   `yaml:"embedding_provider"` // any non-empty value enables the reference hash embedder, empty disables embedding
	MaxBatchSize      int      `yaml:"max_batch_size"`
	MinWordCount      int      `yaml:"min_word_count"`
	StructuralOrder   []string `yaml:"structural_order"`
}

func (c *EnrichmentConfig) Validate() error {
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("config: enrichment.max_batch_size must not be negative")
	}
	if c.MinWordCount < 0 {
		return fmt.Errorf("config: enrichment.min_word_count must not be negative")
	}
	for _, kind := range c.StructuralOrder {
		if !validBlockKinds[kind] {
			return fmt.Errorf("config: enrichment.structural_order: unknown block kind %q", kind)
		}
	}
	return nil
}

func (c *EnrichmentConfig) SetDefaults() {
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 10
	}
	if c.MinWordCount == 0 {
		c.MinWordCount = 5
	}
	if len(c.StructuralOrder) == 0 {
		c.StructuralOrder = []string{"heading", "paragraph", "code_block", "list", "blockquote"}
	}
}

var validBlockKinds = map[string]bool{
	"heading": true, "paragraph": true, "code_block": true, "list": true, "blockquote": true,
}

// ProviderConfig names the LLM and embedding collaborators by provider +
// model; Crucible never speaks to them directly (llm.Provider and
// embed.Provider are interfaces a caller supplies), so this only records a
// reference. cmd/crucibled does not resolve it to a client: it reads
// LLM.Model for the history token budget and runs the reference echo
// provider.
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	APIKeyFrom string `yaml:"api_key_from"` // env var name; takes precedence over APIKey when set
}

func (c *ProviderConfig) Validate() error {
	if *c == (ProviderConfig{}) {
		return nil // an absent section names no collaborator
	}
	if c.Name == "" {
		return fmt.Errorf("config: provider name is required")
	}
	return nil
}

func (c *ProviderConfig) SetDefaults() {}

// MCPServerConfig names an external MCP tool server to attach at startup,
// over the stdio transport.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Filter  []string          `yaml:"filter"`
}

func (c *MCPServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: mcp server name is required")
	}
	if c.Command == "" {
		return fmt.Errorf("config: mcp server %q: command is required", c.Name)
	}
	return nil
}

func (c *MCPServerConfig) SetDefaults() {}

// PatternStoreConfig configures the SQLite-backed permission pattern
// store (interaction.PatternStore).
type PatternStoreConfig struct {
	Path string `yaml:"path"`
}

func (c *PatternStoreConfig) Validate() error {
	return nil
}

func (c *PatternStoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = ".crucible/patterns.db"
	}
}

// VectorConfig configures the chromem-go similarity index.
type VectorConfig struct {
	PersistPath string `yaml:"persist_path"`
}

func (c *VectorConfig) Validate() error {
	return nil
}

func (c *VectorConfig) SetDefaults() {
	if c.PersistPath == "" {
		c.PersistPath = ".crucible/vectors.gob"
	}
}
