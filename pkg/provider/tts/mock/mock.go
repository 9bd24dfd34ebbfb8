// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to return controlled audio or errors and to verify the
// requests a consumer sends, including how many calls overlap in time.
//
// Example:
//
//	s := &mock.Synthesizer{Audio: tts.Audio{Data: []byte("audio")}}
//	audio, _ := s.Synthesize(ctx, tts.Request{Text: "hi"})
//
// Set Gate to hold every call until the test sends on (or closes) it.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned by Synthesize when Err and SynthesizeFunc are unset.
	Audio tts.Audio

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// SynthesizeFunc, if set, computes the result instead of Audio/Err.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (tts.Audio, error)

	// Gate, if non-nil, blocks each call until a value is received from it,
	// it is closed, or the call's context is done.
	Gate chan struct{}

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	inFlight    int
	maxInFlight int
}

// Synthesize records the call and returns the configured result.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	s.mu.Lock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	gate := s.Gate
	fn := s.SynthesizeFunc
	audio, err := s.Audio, s.Err
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return tts.Audio{}, &tts.TransportError{Op: "send", Err: ctx.Err()}
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return tts.Audio{}, err
	}
	return audio, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.SynthesizeCalls))
	copy(out, s.SynthesizeCalls)
	return out
}

// CallCount returns the number of Synthesize calls so far. Thread-safe.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SynthesizeCalls)
}

// MaxInFlight returns the highest number of overlapping Synthesize calls
// observed. Thread-safe.
func (s *Synthesizer) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = nil
	s.maxInFlight = s.inFlight
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
