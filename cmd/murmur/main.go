// Command murmur speaks assistant replies aloud, one at a time, in the voice
// of the reply's personality mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/murmur/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string

	// level backs the default logger and can be changed at runtime.
	level slog.LevelVar
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "murmur",
		Short: "Speak assistant replies aloud",
		Long: `murmur turns assistant replies into speech and plays them one at a time.

Each reply is spoken with the male or female voice of its personality mode.
Modes with voice disabled stay silent; unknown modes use the default voice.

Configuration is read from the file given by --config and overlaid with
MURMUR_* environment variables (MURMUR_API_ROOT, MURMUR_API_TOKEN, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			slog.SetDefault(newLogger(&g.level))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("MURMUR_CONFIG"), "path to the YAML configuration file (env MURMUR_CONFIG)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newSayCmd(g),
		newVoicesCmd(g),
		newMCPCmd(g),
	)
	return root
}

// load reads the configuration and applies the log level to the default
// logger.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", g.configPath)
		}
		return nil, err
	}
	if err := g.applyLevel(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyLevel sets the logger level from --log-level or, when unset, from cfg.
func (g *globalFlags) applyLevel(cfg *config.Config) error {
	lvl := cfg.Server.LogLevel
	if g.logLevel != "" {
		lvl = config.LogLevel(g.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", g.logLevel)
		}
	}
	g.level.Set(lvl.SlogLevel())
	return nil
}
