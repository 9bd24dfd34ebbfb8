package audio

import (
	"sync"
	"time"
)

// Device is an audio output sink. All PCM handed to a device is signed 16-bit
// little-endian in the device's [Format].
type Device interface {
	// Format returns the PCM layout the device consumes.
	Format() Format

	// Open binds pcm to a new, initially paused output stream.
	Open(pcm []byte) (Stream, error)
}

// Stream is one resource bound to a [Device].
type Stream interface {
	// Play starts or continues output.
	Play()

	// Pause suspends output, keeping the position.
	Pause()

	// IsPlaying reports whether samples are still being output. It turns
	// false once all data has been consumed.
	IsPlaying() bool

	// Err returns a device failure, if any.
	Err() error

	// Close releases the stream. Further calls are no-ops.
	Close() error
}

// NullDevice is a [Device] that discards samples but plays them in real time:
// a stream reports IsPlaying for exactly the PCM's duration, excluding paused
// time. It lets the queue run unchanged on servers and in CI.
type NullDevice struct {
	// Fmt is the reported format. Zero value means 24 kHz mono.
	Fmt Format
}

// Format implements Device.
func (d NullDevice) Format() Format {
	if d.Fmt.SampleRate == 0 || d.Fmt.Channels == 0 {
		return Format{SampleRate: 24000, Channels: 1}
	}
	return d.Fmt
}

// Open implements Device.
func (d NullDevice) Open(pcm []byte) (Stream, error) {
	return &nullStream{remaining: d.Format().Duration(len(pcm))}, nil
}

// nullStream tracks wall-clock progress through a silent resource.
type nullStream struct {
	mu        sync.Mutex
	remaining time.Duration
	startedAt time.Time // zero when not running
	closed    bool
}

func (s *nullStream) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.startedAt.IsZero() {
		return
	}
	s.startedAt = time.Now()
}

func (s *nullStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return
	}
	s.remaining -= time.Since(s.startedAt)
	s.startedAt = time.Time{}
}

func (s *nullStream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.startedAt.IsZero() {
		return false
	}
	return time.Since(s.startedAt) < s.remaining
}

func (s *nullStream) Err() error { return nil }

func (s *nullStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
