// Command crucibled is the CLI for the Crucible reactor daemon.
//
// Usage:
//
//	crucibled serve --config crucible.yaml
//	crucibled scan --config crucible.yaml
//	crucibled version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	crucible "github.com/kadirpekel/crucible"
	"github.com/kadirpekel/crucible/config"
)

// CLI is the top-level kong command tree, grounded on the teacher's
// v2/cmd/hector CLI struct shape (a flat set of cmd-tagged subcommands
// plus shared top-level flags).
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Run the reactor daemon: scan the kiln, watch for changes, serve sessions."`
	Scan    ScanCmd    `cmd:"" help:"Scan the kiln once and exit, without watching or serving sessions."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config string `short:"c" help:"Path to config file." type:"path" default:"crucible.yaml"`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(crucible.GetVersion().String())
	return nil
}

// ServeCmd runs the full daemon: initial scan, live watch, and the
// session manager for turn_engine-driven sessions.
type ServeCmd struct {
	Scripts []string `help:"Paths to .lua or .rune script files to load as handlers." type:"path"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, logger, cleanup, err := loadAndLog(cli.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	d, err := buildDaemon(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("wire daemon: %w", err)
	}
	defer d.Close()

	if err := d.LoadScripts(c.Scripts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("crucibled: serving", "kiln_path", cfg.KilnPath)
	return d.run(ctx)
}

// ScanCmd runs the initial scan once, without watching or serving
// sessions — useful for backfilling a sidecar/vector store after a config
// change or a bulk note import.
type ScanCmd struct{}

func (c *ScanCmd) Run(cli *CLI) error {
	cfg, logger, cleanup, err := loadAndLog(cli.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	d, err := buildDaemon(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("wire daemon: %w", err)
	}
	defer d.Close()

	return d.runScan(context.Background(), false)
}

func loadAndLog(configPath string) (*config.Config, *slog.Logger, func(), error) {
	_ = config.LoadDotEnv(configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, cleanup, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, cleanup, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("crucibled"),
		kong.Description("Crucible reactor daemon: kiln scanning, enrichment, and LLM-backed agent sessions."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
