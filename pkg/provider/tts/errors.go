package tts

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// SynthesisError reports a backend that was reachable but answered with a
// non-success status, or with audio larger than the client accepts. Body is
// surfaced unchanged (truncated only by the backend implementation's read
// limit). HTTPStatus is zero when the backend reported the failure in-band,
// e.g. as a websocket message.
type SynthesisError struct {
	HTTPStatus int
	Body       string
}

// Error implements error.
func (e *SynthesisError) Error() string {
	if e.HTTPStatus == 0 {
		return "tts: synthesis failed: " + e.Body
	}
	if e.Body == "" {
		return fmt.Sprintf("tts: synthesis failed with status %d", e.HTTPStatus)
	}
	return fmt.Sprintf("tts: synthesis failed with status %d: %s", e.HTTPStatus, e.Body)
}

// TransportError reports a call that could not complete at the network level.
type TransportError struct {
	// Op names the failing step (e.g. "send", "read body").
	Op  string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("tts: transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
