// Package oto provides an audio.Device that plays through the system speaker
// using github.com/ebitengine/oto/v3.
//
// Only one oto context may exist per process, so create a single Device and
// share it.
package oto

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/murmur/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// Config configures the output device.
type Config struct {
	// SampleRate in Hz. Defaults to 24000, the native rate of most speech
	// models.
	SampleRate int

	// Channels is 1 or 2. Defaults to 1.
	Channels int

	// BufferSize is the device buffer length. Zero lets oto choose.
	BufferSize time.Duration
}

// Device is an audio.Device backed by an oto context.
type Device struct {
	ctx    *oto.Context
	format audio.Format
}

// New opens the speaker and waits until it is ready.
func New(cfg Config) (*Device, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("oto: channels must be 1 or 2, got %d", cfg.Channels)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("oto: open context: %w", err)
	}
	<-ready

	return &Device{
		ctx:    ctx,
		format: audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
	}, nil
}

// Format implements audio.Device.
func (d *Device) Format() audio.Format { return d.format }

// Open implements audio.Device. The returned stream keeps pcm alive until it
// is closed.
func (d *Device) Open(pcm []byte) (audio.Stream, error) {
	if err := d.ctx.Err(); err != nil {
		return nil, fmt.Errorf("oto: context: %w", err)
	}
	return &stream{Player: d.ctx.NewPlayer(bytes.NewReader(pcm)), pcm: pcm}, nil
}

// stream adapts *oto.Player to audio.Stream. Play, Pause, IsPlaying, Err and
// Close are promoted from the embedded player.
type stream struct {
	*oto.Player
	pcm []byte
}
