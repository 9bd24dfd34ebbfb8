package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/provider/tts/mock"
	"github.com/MrWong99/murmur/pkg/voice"
)

func TestBreakerSynthesizer_OpensOnBackendFailures(t *testing.T) {
	inner := &mock.Synthesizer{Err: &tts.SynthesisError{HTTPStatus: 503, Body: "down"}}
	s := NewBreakerSynthesizer(inner, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()
	req := tts.Request{Text: "hi"}

	for i := 0; i < 2; i++ {
		var serr *tts.SynthesisError
		if _, err := s.Synthesize(ctx, req); !errors.As(err, &serr) {
			t.Fatalf("call %d err = %v, want SynthesisError", i, err)
		}
	}
	if _, err := s.Synthesize(ctx, req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if got := inner.CallCount(); got != 2 {
		t.Errorf("backend calls = %d, want 2 (open breaker must not call)", got)
	}
	if s.Breaker().State() != StateOpen {
		t.Errorf("breaker state = %v", s.Breaker().State())
	}
}

func TestBreakerSynthesizer_PassesAudioThrough(t *testing.T) {
	inner := &mock.Synthesizer{Audio: tts.Audio{Data: []byte("abc"), ContentType: "audio/mpeg"}}
	s := NewBreakerSynthesizer(inner, CircuitBreakerConfig{})

	audio, err := s.Synthesize(context.Background(), tts.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "abc" || audio.ContentType != "audio/mpeg" {
		t.Errorf("audio = %+v", audio)
	}
	if s.Breaker().Name() != "synthesis" {
		t.Errorf("default name = %q", s.Breaker().Name())
	}
}

func TestIsBackendFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", &voice.ValidationError{Field: "text"}, false},
		{"cancelled", context.Canceled, false},
		{"cancelled transport", &tts.TransportError{Op: "send", Err: context.Canceled}, false},
		{"timeout", &tts.TransportError{Op: "send", Err: context.DeadlineExceeded}, true},
		{"bad request", &tts.SynthesisError{HTTPStatus: 400}, false},
		{"unauthorized", &tts.SynthesisError{HTTPStatus: 401}, true},
		{"rate limited", &tts.SynthesisError{HTTPStatus: 429}, true},
		{"server error", &tts.SynthesisError{HTTPStatus: 502}, true},
		{"in-band error", &tts.SynthesisError{Body: "quota exceeded"}, true},
		{"wrapped server error", fmt.Errorf("queue: %w", &tts.SynthesisError{HTTPStatus: 500}), true},
		{"unknown", errors.New("weird"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBackendFailure(tt.err); got != tt.want {
				t.Errorf("IsBackendFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
