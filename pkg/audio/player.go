package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Compile-time interface assertion.
var _ Handle = (*Player)(nil)

const (
	defaultPollInterval = 20 * time.Millisecond
	defaultStallGrace   = 5 * time.Second
)

// PlayerOption is a functional option for [NewPlayer].
type PlayerOption func(*Player)

// WithPollInterval sets how often the player checks the stream for
// completion. Defaults to 20 ms.
func WithPollInterval(d time.Duration) PlayerOption {
	return func(p *Player) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithStallGrace sets how long a stream may keep reporting "playing" past its
// decoded duration before it is failed with [CauseTimeout]. Paused time does
// not count. Defaults to 5 s; zero or negative disables the watchdog.
func WithStallGrace(d time.Duration) PlayerOption {
	return func(p *Player) {
		p.grace = d
	}
}

// Player is the [Handle] implementation over a [Device].
type Player struct {
	dev   Device
	poll  time.Duration
	grace time.Duration

	mu    sync.Mutex
	state State
	gen   uint64
	cur   *resource
}

// resource is one loaded payload bound to a stream.
type resource struct {
	stream   Stream
	duration time.Duration

	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration

	done chan error // buffered; receives exactly one outcome
}

// NewPlayer returns an idle Player writing to dev.
func NewPlayer(dev Device, opts ...PlayerOption) *Player {
	p := &Player{
		dev:   dev,
		poll:  defaultPollInterval,
		grace: defaultStallGrace,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play implements Handle.
func (p *Player) Play(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.discardLocked(StateIdle)
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	decoded, err := Decode(data)
	if err != nil {
		p.mu.Lock()
		if p.gen == gen {
			p.state = StateErrored
		}
		p.mu.Unlock()
		return &PlaybackError{Cause: CauseDecode, Err: err}
	}
	pcm := Convert(decoded, p.dev.Format())

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return ErrStopped
	}
	stream, err := p.dev.Open(pcm.Data)
	if err != nil {
		p.state = StateErrored
		p.mu.Unlock()
		return &PlaybackError{Cause: CauseDevice, Err: err}
	}
	res := &resource{
		stream:   stream,
		duration: pcm.Duration(),
		done:     make(chan error, 1),
	}
	p.cur = res
	p.state = StateLoaded
	stream.Play()
	res.startedAt = time.Now()
	p.state = StatePlaying
	p.mu.Unlock()

	slog.Debug("audio: playback started",
		"size", humanize.Bytes(uint64(len(data))),
		"duration", res.duration,
		"format", pcm.Format,
	)

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case err := <-res.done:
			return err
		case <-ctx.Done():
			p.mu.Lock()
			if p.cur == res {
				p.finishLocked(res, StateIdle, ctx.Err())
			}
			p.mu.Unlock()
			return <-res.done
		case <-ticker.C:
			p.check(res)
		}
	}
}

// check advances res to Ended or Errored when its stream finished, failed or
// stalled.
func (p *Player) check(res *resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != res || p.state != StatePlaying {
		return
	}
	if err := res.stream.Err(); err != nil {
		p.finishLocked(res, StateErrored, &PlaybackError{Cause: CauseDevice, Err: err})
		return
	}
	if !res.stream.IsPlaying() {
		p.finishLocked(res, StateEnded, nil)
		return
	}
	if p.grace > 0 {
		elapsed := time.Since(res.startedAt) - res.pausedTotal
		if limit := res.duration + p.grace; elapsed > limit {
			p.finishLocked(res, StateErrored, &PlaybackError{
				Cause: CauseTimeout,
				Err:   fmt.Errorf("still playing after %s (expected %s)", elapsed.Round(time.Millisecond), res.duration),
			})
		}
	}
}

// finishLocked releases res, moves to state and delivers outcome to the Play
// call waiting on res. p.mu must be held and res must be p.cur.
func (p *Player) finishLocked(res *resource, state State, outcome error) {
	if err := res.stream.Close(); err != nil {
		slog.Warn("audio: close stream", "err", err)
	}
	p.cur = nil
	p.state = state
	res.done <- outcome
}

// discardLocked stops the current resource, if any, and moves to state.
func (p *Player) discardLocked(state State) {
	if p.cur != nil {
		p.finishLocked(p.cur, state, ErrStopped)
		return
	}
	p.state = state
}

// Pause implements Handle.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying || p.cur == nil {
		return
	}
	p.cur.stream.Pause()
	p.cur.pausedAt = time.Now()
	p.state = StatePaused
}

// Resume implements Handle.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused || p.cur == nil {
		return
	}
	p.cur.pausedTotal += time.Since(p.cur.pausedAt)
	p.cur.stream.Play()
	p.state = StatePlaying
}

// Stop implements Handle.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.discardLocked(StateIdle)
}

// IsPlaying implements Handle.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StatePlaying
}

// State implements Handle.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsStopped reports whether err means playback was cut short by Stop or by
// ctx cancellation rather than failing.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled)
}
