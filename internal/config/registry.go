package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	synth   map[SynthesisProvider]func(*Config) (tts.Synthesizer, error)
	devices map[DeviceKind]func(PlaybackConfig) (audio.Device, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		synth:   make(map[SynthesisProvider]func(*Config) (tts.Synthesizer, error)),
		devices: make(map[DeviceKind]func(PlaybackConfig) (audio.Device, error)),
	}
}

// RegisterSynthesizer registers a synthesis backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
// The factory receives the whole config since backends need both the api and
// synthesis sections.
func (r *Registry) RegisterSynthesizer(name SynthesisProvider, factory func(*Config) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth[name] = factory
}

// RegisterDevice registers an audio output factory under kind.
func (r *Registry) RegisterDevice(kind DeviceKind, factory func(PlaybackConfig) (audio.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[kind] = factory
}

// CreateSynthesizer instantiates the backend selected by cfg.Synthesis.Provider.
// Returns [ErrProviderNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateSynthesizer(cfg *Config) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.synth[cfg.Synthesis.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synthesis/%q", ErrProviderNotRegistered, cfg.Synthesis.Provider)
	}
	return factory(cfg)
}

// CreateDevice instantiates the output selected by pc.Device.
func (r *Registry) CreateDevice(pc PlaybackConfig) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.devices[pc.Device]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrProviderNotRegistered, pc.Device)
	}
	return factory(pc)
}

// Synthesizers returns the registered synthesis provider names, sorted.
func (r *Registry) Synthesizers() []SynthesisProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SynthesisProvider, 0, len(r.synth))
	for name := range r.synth {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
