package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/voice"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*BreakerSynthesizer)(nil)

// BreakerSynthesizer guards a [tts.Synthesizer] with a [CircuitBreaker].
//
// Only backend failures count: transport errors and non-success statuses.
// Validation errors and caller cancellation say nothing about the backend's
// health and are passed through without touching the breaker.
type BreakerSynthesizer struct {
	next    tts.Synthesizer
	breaker *CircuitBreaker
}

// NewBreakerSynthesizer wraps next. cfg.IsFailure is replaced with
// [IsBackendFailure] when nil.
func NewBreakerSynthesizer(next tts.Synthesizer, cfg CircuitBreakerConfig) *BreakerSynthesizer {
	if cfg.Name == "" {
		cfg.Name = "synthesis"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsBackendFailure
	}
	return &BreakerSynthesizer{next: next, breaker: NewCircuitBreaker(cfg)}
}

// Synthesize forwards to the wrapped synthesizer unless the breaker is open,
// in which case it returns [ErrCircuitOpen] without making a call.
func (s *BreakerSynthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	return Call(s.breaker, func() (tts.Audio, error) {
		return s.next.Synthesize(ctx, req)
	})
}

// Breaker exposes the underlying breaker for health checks.
func (s *BreakerSynthesizer) Breaker() *CircuitBreaker { return s.breaker }

// IsBackendFailure reports whether err indicates an unhealthy speech backend.
// Statuses 400, 404, 413 and similar are the request's fault and do not
// count; 401, 403, 408, 429, 5xx and in-band failures do.
func IsBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var verr *voice.ValidationError
	if errors.As(err, &verr) {
		return false
	}
	var terr *tts.TransportError
	if errors.As(err, &terr) {
		return !errors.Is(terr.Err, context.Canceled)
	}
	var serr *tts.SynthesisError
	if errors.As(err, &serr) {
		s := serr.HTTPStatus
		return s == 0 || s >= 500 || s == 408 || s == 429 || s == 401 || s == 403
	}
	return true
}
