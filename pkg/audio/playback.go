// Package audio plays synthesized speech.
//
// A [Handle] owns at most one playable resource at a time and moves through
// the lifecycle
//
//	Idle → Loaded → Playing ⇄ Paused → Ended | Errored
//
// with Stop returning to Idle from any state. [Player] is the concrete Handle;
// it decodes the payload (MP3 or WAV), converts it to the output [Device]
// format and blocks in [Player.Play] until the resource has been heard,
// failed or was stopped.
//
// Devices are pluggable: the oto subpackage drives the system speaker and
// [NullDevice] plays silently in real time for headless use.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrStopped is returned by [Handle.Play] when playback was ended by Stop or
// by loading another resource before it finished.
var ErrStopped = errors.New("audio: playback stopped")

// State is the lifecycle state of a [Handle].
type State int

const (
	// StateIdle means no resource is loaded.
	StateIdle State = iota
	// StateLoaded means a resource is decoded and bound to an output stream.
	StateLoaded
	// StatePlaying means the resource is audible.
	StatePlaying
	// StatePaused means playback is suspended and can be resumed.
	StatePaused
	// StateEnded means the resource played to completion.
	StateEnded
	// StateErrored means the resource could not be decoded or played.
	StateErrored
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle controls playback of a single audio resource.
//
// Implementations must be safe for concurrent use: Pause, Resume and Stop are
// typically called from a different goroutine than the one blocked in Play.
type Handle interface {
	// Play discards any current resource, loads data and starts playback. It
	// blocks until the resource ends (nil), fails ([*PlaybackError]), is
	// stopped ([ErrStopped]) or ctx is done (ctx.Err()).
	Play(ctx context.Context, data []byte) error

	// Pause suspends playback. No-op unless playing.
	Pause()

	// Resume continues paused playback. No-op unless paused.
	Resume()

	// Stop halts playback and releases the resource. Safe in any state.
	Stop()

	// IsPlaying reports whether the resource is audible right now.
	IsPlaying() bool

	// State returns the current lifecycle state.
	State() State
}

// Playback failure causes reported in [PlaybackError.Cause].
const (
	CauseDecode  = "decode"
	CauseDevice  = "device"
	CauseTimeout = "timeout"
)

// PlaybackError reports a resource that could not be played to completion.
type PlaybackError struct {
	// Cause is one of CauseDecode, CauseDevice or CauseTimeout.
	Cause string
	Err   error
}

// Error implements error.
func (e *PlaybackError) Error() string {
	if e.Err == nil {
		return "audio: playback failed (" + e.Cause + ")"
	}
	return fmt.Sprintf("audio: playback failed (%s): %v", e.Cause, e.Err)
}

// Unwrap returns the underlying error.
func (e *PlaybackError) Unwrap() error { return e.Err }
