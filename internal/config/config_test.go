package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/voice"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  rate_limit: 2
  rate_burst: 4

api:
  root: https://companion.example.com/api
  access_token: at-123
  refresh_token: rt-456

synthesis:
  provider: remote
  model: aura-2
  output_format: mp3
  timeout: 15s
  breaker:
    max_failures: 3
    reset_timeout: 1m

playback:
  device: none
  sample_rate: 48000
  channels: 2
  stall_grace: 2s
  max_duration: 3m

voices:
  default_mode: personal_friend
  disabled: [student_tutor, night_owl]

telemetry:
  service_name: murmur-test
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RateLimit != 2 || cfg.Server.RateBurst != 4 {
		t.Errorf("rate limit = %v/%d, want 2/4", cfg.Server.RateLimit, cfg.Server.RateBurst)
	}
	want := config.APIConfig{Root: "https://companion.example.com/api", AccessToken: "at-123", RefreshToken: "rt-456"}
	if cfg.API != want {
		t.Errorf("api = %+v, want %+v", cfg.API, want)
	}
	if cfg.Synthesis.Timeout != 15*time.Second {
		t.Errorf("synthesis.timeout = %v, want 15s", cfg.Synthesis.Timeout)
	}
	if cfg.Synthesis.Breaker != (config.BreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute}) {
		t.Errorf("breaker = %+v", cfg.Synthesis.Breaker)
	}
	wantPlayback := config.PlaybackConfig{
		Device:      config.DeviceNone,
		SampleRate:  48000,
		Channels:    2,
		StallGrace:  2 * time.Second,
		MaxDuration: 3 * time.Minute,
	}
	if cfg.Playback != wantPlayback {
		t.Errorf("playback = %+v, want %+v", cfg.Playback, wantPlayback)
	}
	if cfg.Telemetry.ServiceName != "murmur-test" {
		t.Errorf("telemetry.service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "api:\n  root: http://localhost:9000/api\n")

	if cfg.Server.ListenAddr != "127.0.0.1:7311" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Synthesis.Provider != config.ProviderRemote {
		t.Errorf("provider = %q, want remote", cfg.Synthesis.Provider)
	}
	if cfg.Synthesis.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.Synthesis.Timeout)
	}
	if cfg.Playback.Device != config.DeviceOto || cfg.Playback.SampleRate != 24000 || cfg.Playback.Channels != 1 {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if cfg.Playback.StallGrace != 5*time.Second {
		t.Errorf("stall_grace = %v, want 5s", cfg.Playback.StallGrace)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("api:\n  root: http://x\n  colour: blue\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_EnvOverrides(t *testing.T) {
	t.Setenv("MURMUR_API_ROOT", "https://env.example.com/api")
	t.Setenv("MURMUR_API_TOKEN", "env-token")
	t.Setenv("MURMUR_LOG_LEVEL", "warn")
	t.Setenv("MURMUR_LISTEN_ADDR", ":9999")

	cfg := mustLoad(t, sampleYAML)
	if cfg.API.Root != "https://env.example.com/api" {
		t.Errorf("api.root = %q, environment must win", cfg.API.Root)
	}
	if cfg.API.AccessToken != "env-token" {
		t.Errorf("api.access_token = %q", cfg.API.AccessToken)
	}
	if cfg.API.RefreshToken != "rt-456" {
		t.Errorf("api.refresh_token = %q, unset variables must not clear the file value", cfg.API.RefreshToken)
	}
	if cfg.Server.LogLevel != config.LogWarn || cfg.Server.ListenAddr != ":9999" {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("MURMUR_API_ROOT", "http://localhost:3000/api")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Root != "http://localhost:3000/api" {
		t.Errorf("api.root = %q", cfg.API.Root)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/murmur.yaml"); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want string
	}{
		{config.LogDebug, "DEBUG"},
		{config.LogInfo, "INFO"},
		{config.LogWarn, "WARN"},
		{config.LogError, "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := tt.in.SlogLevel().String(); got != tt.want {
			t.Errorf("%q.SlogLevel() = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// ── voices ───────────────────────────────────────────────────────────────────

func TestVoicesConfig_Table(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	table := cfg.Voices.Table()
	if table.Default != voice.ModePersonalFriend {
		t.Errorf("default = %q", table.Default)
	}
	if diff := cmp.Diff([]voice.Mode{"student_tutor", "night_owl"}, table.Disabled); diff != "" {
		t.Errorf("disabled mismatch (-want +got):\n%s", diff)
	}
	if len(table.Modes) != len(voice.DefaultTable().Modes) {
		t.Errorf("modes = %d, built-in table must be used when none are configured", len(table.Modes))
	}
}

func TestVoicesConfig_CustomModes(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, `
api:
  root: http://localhost/api
voices:
  default_mode: narrator
  modes:
    narrator:
      male:   {id: voice-m, display_name: Max, language: en}
      female: {id: voice-f, display_name: Fay, language: en, description: calm}
`)
	p, err := voice.NewPolicy(cfg.Voices.Table())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	res, err := p.ResolveVoice("narrator", voice.GenderFemale)
	if err != nil {
		t.Fatalf("ResolveVoice: %v", err)
	}
	if res.Profile.ID != "voice-f" || res.Profile.Description != "calm" {
		t.Errorf("profile = %+v", res.Profile)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

type stubSynth struct{}

func (stubSynth) Synthesize(context.Context, tts.Request) (tts.Audio, error) {
	return tts.Audio{}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSynthesizer(config.ProviderRemote, func(cfg *config.Config) (tts.Synthesizer, error) {
		if cfg.API.Root == "" {
			return nil, errors.New("no root")
		}
		return stubSynth{}, nil
	})
	reg.RegisterDevice(config.DeviceNone, func(pc config.PlaybackConfig) (audio.Device, error) {
		return audio.NullDevice{Fmt: audio.Format{SampleRate: pc.SampleRate, Channels: pc.Channels}}, nil
	})

	cfg := mustLoad(t, sampleYAML)
	if _, err := reg.CreateSynthesizer(cfg); err != nil {
		t.Errorf("CreateSynthesizer: %v", err)
	}
	dev, err := reg.CreateDevice(cfg.Playback)
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if got := dev.Format(); got.SampleRate != 48000 || got.Channels != 2 {
		t.Errorf("device format = %v", got)
	}

	cfg.Synthesis.Provider = config.ProviderOpenAI
	if _, err := reg.CreateSynthesizer(cfg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateDevice(config.PlaybackConfig{Device: config.DeviceOto}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	if diff := cmp.Diff([]config.SynthesisProvider{config.ProviderRemote}, reg.Synthesizers()); diff != "" {
		t.Errorf("Synthesizers mismatch (-want +got):\n%s", diff)
	}
}
