// Package config provides the configuration schema and loader for murmur.
//
// Configuration is read from a YAML file and then overlaid with MURMUR_*
// environment variables, so secrets such as API tokens never need to live in
// the file.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/murmur/pkg/voice"
)

// LogLevel controls log verbosity for murmur.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to a [slog.Level]. Unknown and empty values map to
// [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SynthesisProvider selects the speech backend.
type SynthesisProvider string

const (
	// ProviderRemote calls the companion API's /voice/generate endpoint.
	ProviderRemote SynthesisProvider = "remote"

	// ProviderOpenAI calls the OpenAI speech endpoint directly.
	ProviderOpenAI SynthesisProvider = "openai"

	// ProviderElevenLabs streams from the ElevenLabs WebSocket API.
	ProviderElevenLabs SynthesisProvider = "elevenlabs"
)

// IsValid reports whether p is a recognised provider.
func (p SynthesisProvider) IsValid() bool {
	switch p {
	case ProviderRemote, ProviderOpenAI, ProviderElevenLabs:
		return true
	}
	return false
}

// DeviceKind selects the audio output.
type DeviceKind string

const (
	// DeviceOto plays through the system's default speaker.
	DeviceOto DeviceKind = "oto"

	// DeviceNone discards audio after waiting for its duration. Useful on
	// headless hosts.
	DeviceNone DeviceKind = "none"
)

// IsValid reports whether d is a recognised device kind.
func (d DeviceKind) IsValid() bool {
	return d == DeviceOto || d == DeviceNone
}

// Config is the root configuration structure for murmur.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Voices    VoicesConfig    `yaml:"voices"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the control API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr" env:"MURMUR_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"MURMUR_LOG_LEVEL"`

	// RateLimit is the sustained number of /v1/speak requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the burst size for RateLimit. Defaults to 5.
	RateBurst int `yaml:"rate_burst"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// APIConfig points at the companion API and carries the session tokens.
type APIConfig struct {
	// Root is the API base URL, e.g. "https://api.example.com/api".
	Root string `yaml:"root" env:"MURMUR_API_ROOT"`

	// AccessToken is the current bearer token. May be empty when a refresh
	// token is available.
	AccessToken string `yaml:"access_token" env:"MURMUR_API_TOKEN"`

	// RefreshToken renews AccessToken through POST <root>/auth/refresh.
	RefreshToken string `yaml:"refresh_token" env:"MURMUR_REFRESH_TOKEN"`
}

// SynthesisConfig configures the speech backend.
type SynthesisConfig struct {
	// Provider selects the backend. Defaults to "remote".
	Provider SynthesisProvider `yaml:"provider"`

	// Model is an optional synthesis model identifier.
	Model string `yaml:"model"`

	// OutputFormat is an optional audio format such as "mp3" or "wav".
	OutputFormat string `yaml:"output_format"`

	// Instructions is optional tone guidance applied to every request.
	Instructions string `yaml:"instructions"`

	// Timeout bounds one synthesis call. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// OpenAI holds settings used when Provider is "openai".
	OpenAI OpenAIConfig `yaml:"openai"`

	// ElevenLabs holds settings used when Provider is "elevenlabs".
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`

	// Breaker configures the circuit breaker in front of the backend.
	Breaker BreakerConfig `yaml:"breaker"`
}

// OpenAIConfig holds settings for the OpenAI speech backend.
type OpenAIConfig struct {
	APIKey      string `yaml:"api_key" env:"MURMUR_OPENAI_API_KEY"`
	BaseURL     string `yaml:"base_url"`
	MaleVoice   string `yaml:"male_voice"`
	FemaleVoice string `yaml:"female_voice"`
}

// ElevenLabsConfig holds settings for the ElevenLabs streaming backend.
// Voice fields take ElevenLabs voice IDs.
type ElevenLabsConfig struct {
	APIKey      string `yaml:"api_key" env:"MURMUR_ELEVENLABS_API_KEY"`
	BaseURL     string `yaml:"base_url"`
	MaleVoice   string `yaml:"male_voice"`
	FemaleVoice string `yaml:"female_voice"`
}

// BreakerConfig tunes the synthesis circuit breaker. Zero values use the
// breaker defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// PlaybackConfig configures the audio output.
type PlaybackConfig struct {
	// Device selects the output. Defaults to "oto".
	Device DeviceKind `yaml:"device"`

	// SampleRate of the output device in Hz. Defaults to 24000.
	SampleRate int `yaml:"sample_rate"`

	// Channels of the output device (1 or 2). Defaults to 1.
	Channels int `yaml:"channels"`

	// StallGrace is how long a stream may outlive its decoded duration before
	// it is declared stalled. Defaults to 5s.
	StallGrace time.Duration `yaml:"stall_grace"`

	// MaxDuration caps a single item's playback. Zero means no cap.
	MaxDuration time.Duration `yaml:"max_duration"`
}

// VoicesConfig overrides the built-in voice table. When Modes is empty the
// built-in table is used and only DefaultMode and Disabled apply.
type VoicesConfig struct {
	DefaultMode string                `yaml:"default_mode"`
	Disabled    []string              `yaml:"disabled"`
	Modes       map[string]voice.Pair `yaml:"modes"`
}

// Table assembles the effective voice table.
func (v VoicesConfig) Table() voice.Table {
	t := voice.DefaultTable()
	if len(v.Modes) > 0 {
		t.Modes = make(map[voice.Mode]voice.Pair, len(v.Modes))
		for mode, pair := range v.Modes {
			t.Modes[voice.Mode(mode)] = pair
		}
	}
	if v.DefaultMode != "" {
		t.Default = voice.Mode(v.DefaultMode)
	}
	if v.Disabled != nil {
		t.Disabled = make([]voice.Mode, 0, len(v.Disabled))
		for _, m := range v.Disabled {
			t.Disabled = append(t.Disabled, voice.Mode(m))
		}
	}
	return t
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry service name. Defaults to
	// "murmur".
	ServiceName string `yaml:"service_name"`

	// DisableMetrics turns off the /metrics endpoint.
	DisableMetrics bool `yaml:"disable_metrics"`
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:7311"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 5
	}
	if c.Synthesis.Provider == "" {
		c.Synthesis.Provider = ProviderRemote
	}
	if c.Synthesis.Timeout <= 0 {
		c.Synthesis.Timeout = 30 * time.Second
	}
	if c.Playback.Device == "" {
		c.Playback.Device = DeviceOto
	}
	if c.Playback.SampleRate <= 0 {
		c.Playback.SampleRate = 24000
	}
	if c.Playback.Channels <= 0 {
		c.Playback.Channels = 1
	}
	if c.Playback.StallGrace <= 0 {
		c.Playback.StallGrace = 5 * time.Second
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "murmur"
	}
}
