package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/murmur/internal/api"
	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/mcptools"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/voicequeue"
	"github.com/MrWong99/murmur/pkg/voice"
)

const shutdownTimeout = 15 * time.Second

type serveFlags struct {
	stdin  bool
	mode   string
	gender string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the speech daemon and its HTTP control API",
		Long: `Run the speech daemon.

The control API listens on server.listen_addr and serves /v1/speak,
/v1/stop, /v1/pause, /v1/resume, /v1/status, /v1/voices, the /v1/events
websocket, /healthz, /readyz, /metrics and the MCP endpoint /mcp.

With --stdin every input line is spoken as an assistant reply using
--mode and --gender.

When --config is set the file is watched: log level and voice changes apply
immediately, other changes are reported and need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), g, f)
		},
	}
	cmd.Flags().BoolVar(&f.stdin, "stdin", false, "speak every line read from stdin")
	cmd.Flags().StringVar(&f.mode, "mode", string(voice.ModePersonalFriend), "personality mode for --stdin lines")
	cmd.Flags().StringVar(&f.gender, "gender", string(voice.GenderFemale), "voice gender for --stdin lines")
	return cmd
}

func serve(ctx context.Context, g *globalFlags, f *serveFlags) error {
	gender, err := voice.ParseGender(f.gender)
	if err != nil {
		return err
	}

	cfg, err := g.load()
	if err != nil {
		return err
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		DisableMetrics: cfg.Telemetry.DisableMetrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Queue ─────────────────────────────────────────────────────────────────
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if g.configPath != "" {
		w, err := config.NewWatcher(g.configPath, func(old, new *config.Config) {
			applyReload(g, rt.manager, old, new)
		})
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	opts := []api.Option{
		api.WithMetrics(observe.DefaultMetrics()),
		api.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.WithHealth(health.New(rt.checkers()...)),
		api.WithMCPHandler(mcptools.Handler(mcptools.New(rt.manager, version))),
	}
	if tel.MetricsHandler != nil {
		opts = append(opts, api.WithMetricsHandler(tel.MetricsHandler))
	}
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.New(rt.manager, opts...),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	printStartupSummary(cfg)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if f.stdin {
		eg.Go(func() error {
			return speakLines(egCtx, os.Stdin, rt.manager, voice.Mode(f.mode), gender)
		})
	}
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("shutdown signal received, stopping…")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := rt.manager.Close(sctx); err != nil {
			errs = append(errs, fmt.Errorf("queue shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	slog.Info("server ready, press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
	if err := eg.Wait(); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// speaker is the part of the queue speakLines feeds.
type speaker interface {
	Speak(text string, mode voice.Mode, gender voice.Gender) (string, error)
}

// speakLines queues every non-blank line of r until r is exhausted or ctx is
// cancelled. Reaching EOF does not stop the daemon.
func speakLines(ctx context.Context, r io.Reader, m speaker, mode voice.Mode, gender voice.Gender) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
		defer func() {
			scanErr <- sc.Err()
			close(lines)
		}()
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				slog.Info("stdin closed, still serving")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := m.Speak(line, mode, gender); err != nil {
				if errors.Is(err, voicequeue.ErrClosed) {
					return nil
				}
				slog.Warn("stdin line rejected", "err", err)
			}
		}
	}
}

// policySetter receives a new voice policy on reload.
type policySetter interface {
	SetPolicy(p *voice.Policy)
}

// applyReload applies the hot-reloadable parts of a config change.
func applyReload(g *globalFlags, m policySetter, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && g.logLevel == "" {
		g.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoicesChanged {
		p, err := voice.NewPolicy(new.Voices.Table())
		if err != nil {
			slog.Warn("voice table rejected, keeping previous", "err", err)
		} else {
			m.SetPolicy(p)
		}
	}
	if !d.HotReloadable() {
		slog.Warn("configuration changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║         murmur · startup summary      ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printRow("Synthesis", string(cfg.Synthesis.Provider))
	printRow("Timeout", cfg.Synthesis.Timeout.String())
	printRow("Device", fmt.Sprintf("%s %s Hz", cfg.Playback.Device, humanize.Comma(int64(cfg.Playback.SampleRate))))
	printRow("Default mode", string(cfg.Voices.Table().Default))
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.RateLimit > 0 {
		printRow("Rate limit", fmt.Sprintf("%.1f/s burst %d", cfg.Server.RateLimit, cfg.Server.RateBurst))
	} else {
		printRow("Rate limit", "(disabled)")
	}
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-12s    : %-19s ║\n", label, value)
}
