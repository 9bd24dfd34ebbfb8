// Package voicequeue serializes spoken replies.
//
// A [Manager] accepts speak requests in arrival order and drains them through
// a single pump goroutine: synthesize the item, play it to completion, move on
// to the next. At no point are two synthesis calls or two playbacks in
// flight. A failure of one item (validation, transport, synthesis or
// playback) is logged, counted and reported through the OnError hook, and the
// pump continues with the next item.
//
// All exported methods are safe for concurrent use.
package voicequeue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/voice"
)

// DefaultSynthesisTimeout bounds a single synthesis call.
const DefaultSynthesisTimeout = 30 * time.Second

// ErrClosed is returned by [Manager.Speak] after [Manager.Close].
var ErrClosed = errors.New("voicequeue: manager closed")

// Item is one queued speech request. Items are never mutated after
// [Manager.Speak] created them.
type Item struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Mode     voice.Mode    `json:"personality"`
	Gender   voice.Gender  `json:"gender"`
	Voice    voice.Profile `json:"voice"`
	Fallback bool          `json:"fallback,omitempty"`
	QueuedAt time.Time     `json:"queued_at"`
}

// Option is a functional option for [New].
type Option func(*Manager)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) {
		if m != nil {
			mgr.metrics = m
		}
	}
}

// WithSynthesisTimeout bounds every synthesis call. A call that exceeds it
// fails with a [*tts.TransportError] and the pump moves on. Zero disables the
// bound.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(mgr *Manager) {
		mgr.synthTimeout = d
	}
}

// WithPlaybackTimeout caps how long a single item may play. Exceeding it
// fails the item with a [*audio.PlaybackError] of cause timeout. Zero (the
// default) leaves stall detection to the player.
func WithPlaybackTimeout(d time.Duration) Option {
	return func(mgr *Manager) {
		mgr.playTimeout = d
	}
}

// WithOnError registers fn to be called for every item that fails. It runs on
// the pump goroutine and must not block.
func WithOnError(fn func(Item, error)) Option {
	return func(mgr *Manager) {
		mgr.onError = fn
	}
}

// Manager is the voice queue. Construct it with [New].
type Manager struct {
	synth        tts.Synthesizer
	player       audio.Handle
	metrics      *observe.Metrics
	synthTimeout time.Duration
	playTimeout  time.Duration
	onError      func(Item, error)

	mu         sync.Mutex
	policy     *voice.Policy
	queue      []Item
	current    *Item
	processing bool
	playing    bool
	closed     bool

	// gen identifies the pump allowed to touch queue state. Stop bumps it so
	// a pump that outlives a stop can only exit.
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	subMu sync.Mutex
	subs  map[chan Status]struct{}
}

// New creates a Manager. policy, synth and player are required; the manager
// takes exclusive ownership of player.
func New(policy *voice.Policy, synth tts.Synthesizer, player audio.Handle, opts ...Option) *Manager {
	m := &Manager{
		policy:       policy,
		synth:        synth,
		player:       player,
		synthTimeout: DefaultSynthesisTimeout,
		subs:         make(map[chan Status]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Speak queues text to be spoken with the voice for mode and gender and
// returns the request ID.
//
// Empty text or an invalid gender fail synchronously with a
// [*voice.ValidationError]. Modes with voice disabled are dropped silently:
// the returned ID is empty and err is nil.
func (m *Manager) Speak(text string, mode voice.Mode, gender voice.Gender) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &voice.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if !gender.IsValid() {
		return "", &voice.ValidationError{Field: "gender", Value: string(gender), Reason: "must be male or female"}
	}

	ctx := context.Background()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	if !m.policy.IsVoiceEnabled(mode) {
		m.mu.Unlock()
		m.metrics.RecordSpeechRequest(ctx, string(mode), "dropped")
		slog.Debug("voicequeue: voice disabled for mode, dropping request", "mode", mode)
		return "", nil
	}
	res, err := m.policy.ResolveVoice(mode, gender)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	item := Item{
		ID:       uuid.NewString(),
		Text:     text,
		Mode:     mode,
		Gender:   gender,
		Voice:    res.Profile,
		Fallback: res.Fallback,
		QueuedAt: time.Now(),
	}
	m.queue = append(m.queue, item)
	depth := len(m.queue)
	m.startPumpLocked()
	m.mu.Unlock()

	m.metrics.QueueDepth.Add(ctx, 1)
	m.metrics.RecordSpeechRequest(ctx, string(mode), "queued")
	if res.Fallback {
		m.metrics.RecordVoiceFallback(ctx, string(mode))
		slog.Warn("voicequeue: unknown mode, speaking with default voice",
			"mode", mode,
			"default_mode", res.Mode,
			"suggestion", res.Suggestion,
			"id", item.ID,
		)
	}
	slog.Debug("voicequeue: request queued", "id", item.ID, "mode", mode, "voice", res.Profile.ID, "depth", depth)
	m.publish()
	return item.ID, nil
}

// startPumpLocked starts a pump unless one is already processing. m.mu must
// be held.
func (m *Manager) startPumpLocked() {
	if m.processing {
		return
	}
	m.processing = true
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	prev := m.done
	done := make(chan struct{})
	m.done = done
	go m.pump(ctx, m.gen, prev, done)
}

// pump drains the queue one item at a time. It waits for the previous pump
// (if any) to exit first, so a pump abandoned by Stop never overlaps its
// successor.
func (m *Manager) pump(ctx context.Context, gen uint64, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	m.metrics.ActivePumps.Add(ctx, 1)
	defer m.metrics.ActivePumps.Add(context.Background(), -1)

	for {
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			m.processing = false
			m.playing = false
			m.current = nil
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
			}
			m.mu.Unlock()
			m.publish()
			return
		}
		item := m.queue[0]
		m.queue[0] = Item{}
		m.queue = m.queue[1:]
		m.current = &item
		m.mu.Unlock()

		m.metrics.QueueDepth.Add(ctx, -1)
		m.publish()
		m.process(ctx, gen, item)
	}
}

// process runs one item and reports its outcome. Errors never leave it.
func (m *Manager) process(ctx context.Context, gen uint64, item Item) {
	ctx, span := observe.StartSpan(ctx, "voicequeue.item", trace.WithAttributes(
		attribute.String("speech.id", item.ID),
		attribute.String("speech.mode", string(item.Mode)),
		attribute.String("speech.gender", string(item.Gender)),
		attribute.String("speech.voice", item.Voice.ID),
	))
	log := observe.Logger(ctx).With("id", item.ID, "mode", item.Mode)

	err := m.run(ctx, gen, item)
	switch {
	case err == nil:
		observe.EndSpan(span, nil, "")
		m.metrics.RecordSpeechRequest(ctx, string(item.Mode), "played")
		log.Debug("voicequeue: item played")
	case audio.IsStopped(err):
		span.SetAttributes(attribute.Bool("speech.cancelled", true))
		observe.EndSpan(span, nil, "")
		m.metrics.RecordSpeechRequest(context.Background(), string(item.Mode), "cancelled")
		log.Debug("voicequeue: item cancelled")
	default:
		kind := Kind(err)
		observe.EndSpan(span, err, kind)
		m.metrics.RecordSpeechRequest(ctx, string(item.Mode), "failed")
		m.metrics.RecordSpeechError(ctx, kind)
		log.Warn("voicequeue: item failed, continuing with next", "kind", kind, "err", err)
		if m.onError != nil {
			m.onError(item, err)
		}
	}
}

// run synthesizes and plays item.
func (m *Manager) run(ctx context.Context, gen uint64, item Item) error {
	data, err := m.synthesize(ctx, item)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return audio.ErrStopped
	}
	m.playing = true
	m.mu.Unlock()
	m.publish()

	err = m.play(ctx, data)

	m.mu.Lock()
	if m.gen == gen {
		m.playing = false
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) synthesize(ctx context.Context, item Item) ([]byte, error) {
	ctx, span := observe.StartSpan(ctx, "voicequeue.synthesize")
	sctx := ctx
	if m.synthTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, m.synthTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := m.synth.Synthesize(sctx, tts.Request{
		Text:        item.Text,
		Personality: item.Mode,
		Gender:      item.Gender,
		Voice:       item.Voice,
	})
	if err != nil && ctx.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		var terr *tts.TransportError
		if !errors.As(err, &terr) {
			err = &tts.TransportError{Op: "synthesize", Err: err}
		}
	}

	status := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status = "cancelled"
		// Stop abandoned this call; report it as such rather than as a
		// transport failure.
		err = audio.ErrStopped
	default:
		status = Kind(err)
	}
	m.metrics.RecordSynthesis(ctx, time.Since(start).Seconds(), len(out.Data), status)
	observe.EndSpan(span, errIfFailed(err), status)
	return out.Data, err
}

func (m *Manager) play(ctx context.Context, data []byte) error {
	ctx, span := observe.StartSpan(ctx, "voicequeue.play", trace.WithAttributes(
		attribute.Int("audio.bytes", len(data)),
	))
	pctx := ctx
	if m.playTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, m.playTimeout)
		defer cancel()
	}

	start := time.Now()
	err := m.player.Play(pctx, data)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = &audio.PlaybackError{Cause: audio.CauseTimeout, Err: err}
	}
	m.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, errIfFailed(err), Kind(err))
	return err
}

// errIfFailed hides stop/cancel outcomes from span status.
func errIfFailed(err error) error {
	if err == nil || audio.IsStopped(err) {
		return nil
	}
	return err
}

// Stop empties the queue, stops the current playback and resets the
// processing and playing flags. An in-flight synthesis call is cancelled and
// its result discarded.
func (m *Manager) Stop() {
	m.mu.Lock()
	dropped := m.stopLocked()
	m.mu.Unlock()

	m.recordDropped(dropped)
	slog.Debug("voicequeue: stopped", "dropped", len(dropped))
	m.publish()
}

// stopLocked does the work of Stop and returns the pending items it
// discarded. m.mu must be held.
func (m *Manager) stopLocked() []Item {
	dropped := m.queue
	m.queue = nil
	m.current = nil
	m.processing = false
	m.playing = false
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	// Under m.mu so a pump started right after Stop cannot be hit.
	m.player.Stop()
	return dropped
}

func (m *Manager) recordDropped(items []Item) {
	if len(items) == 0 {
		return
	}
	ctx := context.Background()
	m.metrics.QueueDepth.Add(ctx, int64(-len(items)))
	for _, it := range items {
		m.metrics.RecordSpeechRequest(ctx, string(it.Mode), "cancelled")
	}
}

// Pause pauses the current playback. Queued items are unaffected.
func (m *Manager) Pause() {
	m.player.Pause()
	m.publish()
}

// Resume resumes a paused playback.
func (m *Manager) Resume() {
	m.player.Resume()
	m.publish()
}

// IsActive reports whether an item is being processed or any are queued.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing || len(m.queue) > 0
}

// IsProcessing reports whether a pump is draining the queue.
func (m *Manager) IsProcessing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

// IsPlaying reports whether audio is currently sounding. It implies
// IsProcessing.
func (m *Manager) IsPlaying() bool {
	m.mu.Lock()
	playing := m.playing
	m.mu.Unlock()
	return playing && m.player.State() != audio.StatePaused
}

// Policy returns the voice policy in use.
func (m *Manager) Policy() *voice.Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// SetPolicy swaps the voice policy. Items already queued keep the voice they
// were resolved with.
func (m *Manager) SetPolicy(p *voice.Policy) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
	slog.Info("voicequeue: voice policy replaced", "modes", len(p.Modes()), "default_mode", p.DefaultMode())
}

// Wait blocks until the queue is idle or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()
	for m.IsActive() {
		select {
		case _, ok := <-ch:
			if !ok {
				return ErrClosed
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops the manager and waits for the pump to exit or ctx to be done.
// Speak fails with [ErrClosed] afterwards. Subscriptions are closed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	dropped := m.stopLocked()
	done := m.done
	m.mu.Unlock()

	m.recordDropped(dropped)
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.subMu.Lock()
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	m.subMu.Unlock()
	return nil
}
