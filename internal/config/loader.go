package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/murmur/pkg/voice"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config]. An empty path
// skips the file and builds the config from the environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(bytes.NewReader(nil))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies MURMUR_* environment
// overrides and defaults, and validates the result. An empty document is
// valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit %.2f must not be negative", cfg.Server.RateLimit))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Synthesis
	switch cfg.Synthesis.Provider {
	case "", ProviderRemote:
		if cfg.API.Root == "" {
			errs = append(errs, errors.New("api.root is required for the remote synthesis provider (or set MURMUR_API_ROOT)"))
		} else if u, err := url.Parse(cfg.API.Root); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("api.root %q is not an absolute URL", cfg.API.Root))
		}
		if cfg.API.AccessToken == "" && cfg.API.RefreshToken == "" {
			slog.Warn("no api access or refresh token configured; synthesis calls will fail with 401")
		}
	case ProviderOpenAI:
		if cfg.Synthesis.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("synthesis.openai.api_key is required for the openai provider (or set MURMUR_OPENAI_API_KEY)"))
		}
	case ProviderElevenLabs:
		if cfg.Synthesis.ElevenLabs.APIKey == "" {
			errs = append(errs, errors.New("synthesis.elevenlabs.api_key is required for the elevenlabs provider (or set MURMUR_ELEVENLABS_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("synthesis.provider %q is invalid; valid values: remote, openai, elevenlabs", cfg.Synthesis.Provider))
	}
	if cfg.Synthesis.Timeout < 0 {
		errs = append(errs, errors.New("synthesis.timeout must not be negative"))
	}
	if cfg.Synthesis.Breaker.MaxFailures < 0 {
		errs = append(errs, errors.New("synthesis.breaker.max_failures must not be negative"))
	}

	// Playback
	if cfg.Playback.Device != "" && !cfg.Playback.Device.IsValid() {
		errs = append(errs, fmt.Errorf("playback.device %q is invalid; valid values: oto, none", cfg.Playback.Device))
	}
	if cfg.Playback.Channels != 0 && (cfg.Playback.Channels < 1 || cfg.Playback.Channels > 2) {
		errs = append(errs, fmt.Errorf("playback.channels %d is out of range [1, 2]", cfg.Playback.Channels))
	}
	if cfg.Playback.SampleRate != 0 && (cfg.Playback.SampleRate < 8000 || cfg.Playback.SampleRate > 192000) {
		errs = append(errs, fmt.Errorf("playback.sample_rate %d is out of range [8000, 192000]", cfg.Playback.SampleRate))
	}

	// Voices
	if _, err := voice.NewPolicy(cfg.Voices.Table()); err != nil {
		errs = append(errs, fmt.Errorf("voices: %w", err))
	}

	return errors.Join(errs...)
}
