package detection

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot, latest-wins handoff between an extractor and the
// pipeline. Put replaces any observation that was not yet taken; Next takes
// the pending one and empties the slot.
type Mailbox struct {
	mu      sync.Mutex
	obs     Observation
	full    bool
	audio   []float64
	dropped atomic.Uint64
}

// NewMailbox creates an empty mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Put stores obs as the pending observation. The caller must not modify obs
// afterwards.
func (m *Mailbox) Put(obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		m.dropped.Add(1)
	}
	m.obs = obs
	m.full = true
}

// PutAudio stages an audio buffer that is attached to the next observation
// taken without one. Audio arrives on its own channel and cadence.
func (m *Mailbox) PutAudio(samples []float64) {
	m.mu.Lock()
	m.audio = samples
	m.mu.Unlock()
}

// Next takes the pending observation, if any.
func (m *Mailbox) Next() (Observation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return Observation{}, false
	}
	obs := m.obs
	if obs.Audio == nil && m.audio != nil {
		obs.Audio = m.audio
	}
	m.obs = Observation{}
	m.full = false
	m.audio = nil
	return obs, true
}

// Pending reports whether an observation is waiting.
func (m *Mailbox) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full
}

// Dropped returns how many observations were overwritten before being taken.
func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}
