package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/crucible/config"
	"github.com/kadirpekel/crucible/embed"
	"github.com/kadirpekel/crucible/enrich"
	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/interaction"
	"github.com/kadirpekel/crucible/internal/echoprovider"
	"github.com/kadirpekel/crucible/kiln"
	"github.com/kadirpekel/crucible/llm"
	"github.com/kadirpekel/crucible/reactor"
	"github.com/kadirpekel/crucible/script"
	"github.com/kadirpekel/crucible/script/lua"
	"github.com/kadirpekel/crucible/script/rune"
	"github.com/kadirpekel/crucible/session"
	"github.com/kadirpekel/crucible/storage"
	"github.com/kadirpekel/crucible/tool"
	"github.com/kadirpekel/crucible/turn"
)

// daemon holds every wired component a running crucibled process needs,
// assembled once at startup the way the teacher's component.Manager
// assembles an agent's collaborators from config (component/manager.go),
// generalized here to Crucible's own component set.
type daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	reactor    *reactor.Reactor
	storage    *storage.FileStorage
	pipeline   *enrich.Pipeline
	manager    *session.Manager
	protocol   *interaction.Protocol
	patterns   *interaction.PatternStore
	scripts    []scriptRuntime
	mcpClosers []func() error
}

// scriptRuntime is the shared shape script/lua.Runtime and
// script/rune.Runtime present to the daemon, narrowed to what wiring
// needs: load a file, release resources on shutdown.
type scriptRuntime interface {
	Load(src string) error
	Close()
}

// buildDaemon wires every component per cfg. provider may be nil, in which
// case the reference echo provider (internal/echoprovider) drives the turn
// engine's sessions.
func buildDaemon(cfg *config.Config, logger *slog.Logger, provider llm.Provider) (*daemon, error) {
	r := reactor.New(logger)

	for _, p := range []string{cfg.PatternStore.Path, cfg.Vector.PersistPath, cfg.SidecarPath} {
		if dir := filepath.Dir(p); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
	}

	patterns, err := interaction.OpenPatternStore(cfg.PatternStore.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open pattern store: %w", err)
	}
	protocol := interaction.NewProtocol(patterns, cfg.Performance.Timeout)

	var vectors *storage.VectorIndex
	vectors, err = storage.NewVectorIndex(storage.VectorIndexConfig{PersistPath: cfg.Vector.PersistPath})
	if err != nil {
		patterns.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	fileStorage := storage.NewFileStorage(cfg.SidecarPath, cfg.KilnPath, vectors)
	fileStorage.WatchOptions = kiln.WatchOptions{
		SkipHidden:    cfg.Scanner.SkipHidden,
		DebounceDelay: cfg.Scanner.DebounceDelay,
	}

	embedProvider := resolveEmbedProvider(cfg)
	pipeline := enrich.New(enrichConfigFrom(cfg.Enrichment), embedProvider)
	pipeline.Sink = func(ctx context.Context, note kiln.ParsedNote, outcome enrich.Outcome) error {
		return fileStorage.UpsertNote(ctx, note, outcome)
	}
	pipeline.Register(r)

	registry := tool.NewRegistry()
	builtins := []tool.Tool{
		tool.NewBash(cfg.WorkspacePath),
		&tool.ReadFile{KilnRoot: cfg.KilnPath},
		&tool.WriteFile{KilnRoot: cfg.KilnPath},
	}
	for _, t := range builtins {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	mcpClosers, err := attachMCPServers(context.Background(), cfg.MCP, registry, r, logger)
	if err != nil {
		patterns.Close()
		return nil, err
	}

	collaborator := tool.NewCollaborator(registry)

	toolDefs := registry.Definitions()

	turn.RegisterPermissionHandler(r, protocol)

	if provider == nil {
		provider = echoprovider.New("")
	}
	engine := turn.New(provider, r, collaborator, toolDefs, logger).
		WithHistoryBudget(cfg.LLM.Model, cfg.Performance.MaxHistoryTokens)

	manager := session.NewManager(engine, protocol, logger)

	return &daemon{
		cfg:        cfg,
		logger:     logger,
		reactor:    r,
		storage:    fileStorage,
		pipeline:   pipeline,
		manager:    manager,
		protocol:   protocol,
		patterns:   patterns,
		mcpClosers: mcpClosers,
	}, nil
}

// attachMCPServers connects to every configured MCP server, registers its
// tools into registry, and emits a tool_discovered event per tool plus an
// mcp_attached event per server. Grounded on the teacher's
// pkg/tool/mcptoolset.go stdio connection sequence, narrowed here to the
// single stdio transport and this module's own Tool interface.
func attachMCPServers(ctx context.Context, servers []config.MCPServerConfig, registry *tool.Registry, r *reactor.Reactor, logger *slog.Logger) ([]func() error, error) {
	var closers []func() error
	for _, sc := range servers {
		tools, closer, err := tool.DiscoverMCPTools(ctx, tool.MCPServerConfig{
			Name:    sc.Name,
			Command: sc.Command,
			Args:    sc.Args,
			Env:     sc.Env,
			Filter:  sc.Filter,
		})
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, fmt.Errorf("attach mcp server %s: %w", sc.Name, err)
		}
		closers = append(closers, closer)

		hctx := reactor.NewContext()
		for _, t := range tools {
			if err := registry.Register(t); err != nil {
				logger.Warn("crucibled: skipping mcp tool", "server", sc.Name, "tool", t.Name(), "error", err)
				continue
			}
			r.EmitRecursive(ctx, hctx, event.New(event.ToolDiscovered, t.Name(), map[string]any{
				"server": sc.Name,
			}).WithSource("mcp"))
		}
		r.EmitRecursive(ctx, hctx, event.New(event.MCPAttached, sc.Name, map[string]any{
			"tools": len(tools),
		}).WithSource("mcp"))
		logger.Info("crucibled: attached mcp server", "name", sc.Name, "tools", len(tools))
	}
	return closers, nil
}

// resolveEmbedProvider returns nil when no embedding provider is named in
// config (enrichment then skips embeddings per spec.md §4.8 step 1), or
// the reference hash embedder — concrete embedding clients are as far out
// of this module's scope as LLM clients are.
func resolveEmbedProvider(cfg *config.Config) embed.Provider {
	if cfg.Enrichment.EmbeddingProvider == "" {
		return nil
	}
	return echoprovider.NewHashEmbedder(32)
}

func enrichConfigFrom(c config.EnrichmentConfig) enrich.Config {
	order := make([]kiln.BlockKind, 0, len(c.StructuralOrder))
	for _, k := range c.StructuralOrder {
		order = append(order, kiln.BlockKind(k))
	}
	return enrich.Config{
		MaxBatchSize:    c.MaxBatchSize,
		MinWordCount:    c.MinWordCount,
		StructuralOrder: order,
	}
}

// LoadScripts loads every script file under paths into a fresh runtime
// selected by extension (".lua" -> script/lua, ".rune"/".js" -> script/rune),
// per spec.md §4.4's two-language embedding requirement.
func (d *daemon) LoadScripts(paths []string) error {
	bridge := script.Bridge(script.NewLiveBridge(d.manager))
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read script %s: %w", path, err)
		}
		rt, err := newScriptRuntime(path, bridge, d.reactor)
		if err != nil {
			return err
		}
		if err := rt.Load(string(src)); err != nil {
			return fmt.Errorf("load script %s: %w", path, err)
		}
		d.scripts = append(d.scripts, rt)
	}
	return nil
}

func newScriptRuntime(path string, bridge script.Bridge, r *reactor.Reactor) (scriptRuntime, error) {
	switch extOf(path) {
	case ".lua":
		return lua.New(bridge, r, path), nil
	case ".rune", ".js":
		return rune.New(bridge, r, path), nil
	default:
		return nil, fmt.Errorf("unrecognized script extension for %s", path)
	}
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// Close releases every resource buildDaemon opened.
func (d *daemon) Close() {
	for _, rt := range d.scripts {
		rt.Close()
	}
	for _, c := range d.mcpClosers {
		c()
	}
	if d.patterns != nil {
		d.patterns.Close()
	}
}

// runScan walks cfg.KilnPath once, emitting note_parsed for every note
// found. When watch is true it then keeps watching for changes
// (note_created / note_modified) until the change stream closes, which
// happens once ctx is cancelled; otherwise it returns after the scan. Both
// the initial scan and the live watch feed the same reactor dispatch path.
func (d *daemon) runScan(ctx context.Context, watch bool) error {
	opts := kiln.ScanOptions{
		MaxFileSize: d.cfg.Scanner.MaxFileSize,
		MaxDepth:    d.cfg.Scanner.MaxDepth,
		SkipHidden:  d.cfg.Scanner.SkipHidden,
	}
	notes, err := kiln.Scan(d.cfg.KilnPath, opts)
	if err != nil {
		return fmt.Errorf("scan kiln: %w", err)
	}

	hctx := reactor.NewContext()
	for _, n := range notes {
		ev := event.New(event.NoteParsed, n.Path, map[string]any{
			"path": n.Path,
			"ast":  n.ParsedNote,
		}).WithSource("kiln")
		d.reactor.EmitRecursive(ctx, hctx, ev)
	}
	d.logger.Info("crucibled: initial scan complete", "notes", len(notes))

	if !watch {
		return nil
	}

	changes, err := d.storage.SubscribeChanges(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to kiln changes: %w", err)
	}
	for ev := range changes {
		d.reactor.EmitRecursive(ctx, reactor.NewContext(), ev)
	}
	return nil
}

// run starts the scan/watch loop and blocks until ctx is cancelled,
// using an errgroup the way the teacher coordinates goroutine groups
// (pkg/agent/workflowagent's parallel sub-agent fan-out) — generalized
// here from sub-agent execution to the scanner/session-manager lifecycle.
func (d *daemon) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.runScan(gctx, true)
	})
	return g.Wait()
}
