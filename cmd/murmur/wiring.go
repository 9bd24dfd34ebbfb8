package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrWong99/murmur/internal/auth"
	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/resilience"
	"github.com/MrWong99/murmur/internal/voicequeue"
	"github.com/MrWong99/murmur/pkg/audio"
	otodev "github.com/MrWong99/murmur/pkg/audio/oto"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/murmur/pkg/provider/tts/openai"
	"github.com/MrWong99/murmur/pkg/provider/tts/remote"
	"github.com/MrWong99/murmur/pkg/voice"
)

// runtime bundles everything a command needs to speak.
type runtime struct {
	cfg     *config.Config
	tokens  *auth.Source // nil unless the remote provider is selected
	synth   *resilience.BreakerSynthesizer
	player  *audio.Player
	manager *voicequeue.Manager
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltins wires the synthesis and device factories that ship with
// murmur into reg. The remote factory stores its token source on rt so that
// readiness checks can reach it.
func registerBuiltins(reg *config.Registry, rt *runtime) {
	// ── Synthesis ─────────────────────────────────────────────────────────────

	reg.RegisterSynthesizer(config.ProviderRemote, func(cfg *config.Config) (tts.Synthesizer, error) {
		src := auth.NewSource(cfg.API.Root, cfg.API.AccessToken, cfg.API.RefreshToken,
			auth.WithOnRefresh(func(tok *oauth2.Token) {
				slog.Info("api session refreshed", "expires", tok.Expiry.Format(time.RFC3339))
			}),
		)
		rt.tokens = src

		opts := []remote.Option{
			remote.WithHTTPClient(&http.Client{Transport: auth.NewTransport(src, nil)}),
			remote.WithTimeout(cfg.Synthesis.Timeout),
		}
		if cfg.Synthesis.Model != "" {
			opts = append(opts, remote.WithModel(cfg.Synthesis.Model))
		}
		if cfg.Synthesis.OutputFormat != "" {
			opts = append(opts, remote.WithOutputFormat(cfg.Synthesis.OutputFormat))
		}
		if cfg.Synthesis.Instructions != "" {
			opts = append(opts, remote.WithInstructions(cfg.Synthesis.Instructions))
		}
		return remote.New(cfg.API.Root, opts...)
	})

	reg.RegisterSynthesizer(config.ProviderOpenAI, func(cfg *config.Config) (tts.Synthesizer, error) {
		oc := cfg.Synthesis.OpenAI
		opts := []openai.Option{
			openai.WithTimeout(cfg.Synthesis.Timeout),
			openai.WithVoices(oc.MaleVoice, oc.FemaleVoice),
		}
		if oc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(oc.BaseURL))
		}
		if cfg.Synthesis.OutputFormat != "" {
			opts = append(opts, openai.WithResponseFormat(cfg.Synthesis.OutputFormat))
		}
		if cfg.Synthesis.Instructions != "" {
			opts = append(opts, openai.WithInstructions(cfg.Synthesis.Instructions))
		}
		return openai.New(oc.APIKey, cfg.Synthesis.Model, opts...)
	})

	reg.RegisterSynthesizer(config.ProviderElevenLabs, func(cfg *config.Config) (tts.Synthesizer, error) {
		ec := cfg.Synthesis.ElevenLabs
		return elevenlabs.New(ec.APIKey,
			elevenlabs.WithBaseURL(ec.BaseURL),
			elevenlabs.WithVoices(ec.MaleVoice, ec.FemaleVoice),
			elevenlabs.WithModel(cfg.Synthesis.Model),
			elevenlabs.WithOutputFormat(cfg.Synthesis.OutputFormat),
			elevenlabs.WithTimeout(cfg.Synthesis.Timeout),
		)
	})

	// ── Devices ───────────────────────────────────────────────────────────────

	reg.RegisterDevice(config.DeviceOto, func(pc config.PlaybackConfig) (audio.Device, error) {
		return otodev.New(otodev.Config{SampleRate: pc.SampleRate, Channels: pc.Channels})
	})

	reg.RegisterDevice(config.DeviceNone, func(pc config.PlaybackConfig) (audio.Device, error) {
		return audio.NullDevice{Fmt: audio.Format{SampleRate: pc.SampleRate, Channels: pc.Channels}}, nil
	})
}

// buildRuntime instantiates the synthesizer, the output device and the queue
// described by cfg. Metrics must be initialised before it is called.
func buildRuntime(cfg *config.Config, opts ...voicequeue.Option) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	reg := config.NewRegistry()
	registerBuiltins(reg, rt)

	policy, err := voice.NewPolicy(cfg.Voices.Table())
	if err != nil {
		return nil, fmt.Errorf("voice table: %w", err)
	}

	backend, err := reg.CreateSynthesizer(cfg)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer %q: %w", cfg.Synthesis.Provider, err)
	}
	slog.Info("synthesizer created", "provider", cfg.Synthesis.Provider, "model", cfg.Synthesis.Model)

	rt.synth = resilience.NewBreakerSynthesizer(backend, resilience.CircuitBreakerConfig{
		Name:         "synthesis",
		MaxFailures:  cfg.Synthesis.Breaker.MaxFailures,
		ResetTimeout: cfg.Synthesis.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from, "to", to)
		},
	})

	dev, err := reg.CreateDevice(cfg.Playback)
	if err != nil {
		return nil, fmt.Errorf("create device %q: %w", cfg.Playback.Device, err)
	}
	slog.Info("audio device opened", "device", cfg.Playback.Device, "format", dev.Format())

	rt.player = audio.NewPlayer(dev, audio.WithStallGrace(cfg.Playback.StallGrace))

	base := []voicequeue.Option{
		voicequeue.WithMetrics(observe.DefaultMetrics()),
		voicequeue.WithSynthesisTimeout(cfg.Synthesis.Timeout),
		voicequeue.WithPlaybackTimeout(cfg.Playback.MaxDuration),
	}
	rt.manager = voicequeue.New(policy, rt.synth, rt.player, append(base, opts...)...)
	return rt, nil
}

// checkers returns the readiness checks for rt.
func (rt *runtime) checkers() []health.Checker {
	checks := []health.Checker{health.BreakerChecker(rt.synth.Breaker())}
	if rt.tokens != nil {
		checks = append(checks, health.TokenChecker(rt.tokens))
	}
	return checks
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger on stderr whose level follows lv.
func newLogger(lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
