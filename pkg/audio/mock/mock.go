// Package mock provides in-memory mock implementations of [audio.Handle] and
// [audio.Device] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control behaviour.
//
// Typical usage:
//
//	h := &mock.Handle{Gate: make(chan struct{})}
//	go func() { _ = h.Play(ctx, data) }() // blocks until the gate opens
//	h.Gate <- struct{}{}                  // let one playback finish
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
)

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is a mock implementation of [audio.Handle].
type Handle struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play once playback "ends".
	PlayErr error

	// PlayFunc, if set, decides the outcome of each Play call after the gate.
	PlayFunc func(data []byte) error

	// Gate, if non-nil, keeps each Play call in the playing state until a
	// value is received from it, it is closed, Stop is called or ctx is done.
	Gate chan struct{}

	// PlayCalls records the payload of every Play call in order.
	PlayCalls [][]byte

	// CallCountPause, CallCountResume and CallCountStop count the control calls.
	CallCountPause  int
	CallCountResume int
	CallCountStop   int

	state       audio.State
	stopCh      chan struct{}
	inFlight    int
	maxInFlight int
}

// Play implements [audio.Handle].
func (h *Handle) Play(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	if h.stopCh != nil {
		close(h.stopCh)
	}
	stop := make(chan struct{})
	h.stopCh = stop
	h.PlayCalls = append(h.PlayCalls, data)
	h.state = audio.StatePlaying
	h.inFlight++
	if h.inFlight > h.maxInFlight {
		h.maxInFlight = h.inFlight
	}
	gate, fn, playErr := h.Gate, h.PlayFunc, h.PlayErr
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.inFlight--
		if h.stopCh == stop {
			h.stopCh = nil
		}
		h.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-stop:
			return audio.ErrStopped
		case <-ctx.Done():
			h.setState(stop, audio.StateIdle)
			return ctx.Err()
		}
	}

	err := playErr
	if fn != nil {
		err = fn(data)
	}
	if err != nil {
		h.setState(stop, audio.StateErrored)
		return err
	}
	h.setState(stop, audio.StateEnded)
	return nil
}

// setState updates the state only if stop still belongs to the current Play.
func (h *Handle) setState(stop chan struct{}, s audio.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh == stop {
		h.state = s
	}
}

// Pause implements [audio.Handle].
func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountPause++
	if h.state == audio.StatePlaying {
		h.state = audio.StatePaused
	}
}

// Resume implements [audio.Handle].
func (h *Handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountResume++
	if h.state == audio.StatePaused {
		h.state = audio.StatePlaying
	}
}

// Stop implements [audio.Handle].
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountStop++
	if h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
	}
	h.state = audio.StateIdle
}

// IsPlaying implements [audio.Handle].
func (h *Handle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == audio.StatePlaying
}

// State implements [audio.Handle].
func (h *Handle) State() audio.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PlayCount returns the number of Play calls so far.
func (h *Handle) PlayCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.PlayCalls)
}

// Played returns a copy of the payloads passed to Play, in order.
func (h *Handle) Played() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.PlayCalls))
	copy(out, h.PlayCalls)
	return out
}

// MaxInFlight returns the highest number of overlapping Play calls observed.
func (h *Handle) MaxInFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxInFlight
}

// StopCount returns the number of Stop calls so far.
func (h *Handle) StopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CallCountStop
}

var _ audio.Handle = (*Handle)(nil)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device] whose streams are driven
// by the test.
type Device struct {
	mu sync.Mutex

	// Fmt is returned by Format. Zero value means 24 kHz mono.
	Fmt audio.Format

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// Streams records every stream returned by Open, in order.
	Streams []*Stream
}

// Format implements [audio.Device].
func (d *Device) Format() audio.Format {
	if d.Fmt.SampleRate == 0 {
		return audio.Format{SampleRate: 24000, Channels: 1}
	}
	return d.Fmt
}

// Open implements [audio.Device].
func (d *Device) Open(pcm []byte) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Stream{PCM: pcm}
	d.Streams = append(d.Streams, s)
	return s, nil
}

// Last returns the most recently opened stream, or nil.
func (d *Device) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Streams) == 0 {
		return nil
	}
	return d.Streams[len(d.Streams)-1]
}

// Stream is a mock [audio.Stream]. It keeps playing until the test calls
// Finish or Fail.
type Stream struct {
	mu sync.Mutex

	// PCM is the data passed to Device.Open.
	PCM []byte

	playing  bool
	finished bool
	err      error
	closed   bool

	CallCountPlay  int
	CallCountPause int
}

// Play implements [audio.Stream].
func (s *Stream) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPlay++
	if !s.finished {
		s.playing = true
	}
}

// Pause implements [audio.Stream].
func (s *Stream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPause++
	s.playing = false
}

// IsPlaying implements [audio.Stream].
func (s *Stream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.finished
}

// Err implements [audio.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.playing = false
	return nil
}

// Finish marks all data as consumed.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

// Fail makes Err return err.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
