package voicequeue

import "github.com/MrWong99/murmur/pkg/audio"

// Status is a point-in-time snapshot of the queue.
type Status struct {
	// Processing is true while a pump is draining the queue.
	Processing bool `json:"processing"`

	// Playing is true while audio is sounding. Implies Processing.
	Playing bool `json:"playing"`

	// Paused is true while the current item is paused.
	Paused bool `json:"paused"`

	// Pending is the number of items waiting behind the current one.
	Pending int `json:"pending"`

	// Current is the item being synthesized or played, if any.
	Current *Item `json:"current,omitempty"`
}

// Active reports whether the snapshot shows work in progress or queued.
func (s Status) Active() bool {
	return s.Processing || s.Pending > 0
}

// Status returns a snapshot of the queue.
func (m *Manager) Status() Status {
	m.mu.Lock()
	s := Status{
		Processing: m.processing,
		Playing:    m.playing,
		Pending:    len(m.queue),
	}
	if m.current != nil {
		cur := *m.current
		s.Current = &cur
	}
	m.mu.Unlock()

	if s.Playing && m.player.State() == audio.StatePaused {
		s.Playing = false
		s.Paused = true
	}
	return s
}

// Subscribe returns a channel that receives a fresh [Status] after every
// change, and a function that ends the subscription. Slow readers only see
// the latest snapshot. The channel is closed by unsubscribe or [Manager.Close].
func (m *Manager) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	m.subMu.Lock()
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
}

// publish sends the current status to every subscriber, replacing any
// snapshot they have not read yet. m.mu must not be held.
func (m *Manager) publish() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if len(m.subs) == 0 {
		return
	}
	s := m.Status()
	for ch := range m.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
