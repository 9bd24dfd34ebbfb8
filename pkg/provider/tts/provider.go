// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// A synthesizer turns one [Request] into one complete audio payload through a
// single network call. There is deliberately no retry and no caching at this
// layer: spoken replies are best-effort and almost never repeat, so a failed
// call simply means that reply is not heard.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/murmur/pkg/voice"
)

// Request is one unit of speech to synthesize.
type Request struct {
	// Text is the content to speak. Must not be empty.
	Text string

	// Personality is the mode identifier. It is forwarded unvalidated; the
	// remote side is the authority on acceptable values.
	Personality voice.Mode

	// Gender is the requested voice gender, forwarded unvalidated.
	Gender voice.Gender

	// Voice is the profile resolved by the voice policy. Backends that pick
	// voices themselves may ignore it.
	Voice voice.Profile
}

// Audio is a complete encoded audio payload.
type Audio struct {
	// Data holds the raw bytes exactly as returned by the backend.
	Data []byte

	// ContentType is the MIME type reported by the backend (e.g. "audio/mpeg").
	// May be empty.
	ContentType string
}

// Synthesizer is the abstraction over any speech synthesis backend.
type Synthesizer interface {
	// Synthesize performs exactly one backend call for req.
	//
	// Errors are classified as:
	//   - [*voice.ValidationError] when req.Text is empty (no call is made);
	//   - [*TransportError] when the call cannot complete (DNS, reset, timeout,
	//     ctx cancellation);
	//   - [*SynthesisError] when the backend answered with a non-success status.
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// ValidateRequest performs the checks every Synthesizer applies before making
// a call.
func ValidateRequest(req Request) error {
	if req.Text == "" {
		return &voice.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	return nil
}
