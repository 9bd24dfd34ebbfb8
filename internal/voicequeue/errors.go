package voicequeue

import (
	"errors"

	"github.com/MrWong99/murmur/internal/resilience"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/voice"
)

// Error kinds used in logs, metrics and span attributes.
const (
	KindValidation  = "validation"
	KindTransport   = "transport"
	KindSynthesis   = "synthesis"
	KindPlayback    = "playback"
	KindCircuitOpen = "circuit_open"
	KindUnknown     = "unknown"
)

// Kind classifies err into one of the Kind constants. It returns "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		verr *voice.ValidationError
		terr *tts.TransportError
		serr *tts.SynthesisError
		perr *audio.PlaybackError
	)
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return KindCircuitOpen
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &serr):
		return KindSynthesis
	case errors.As(err, &terr):
		return KindTransport
	case errors.As(err, &perr):
		return KindPlayback
	default:
		return KindUnknown
	}
}
