// Package refresh coalesces bursts of outcome events into single
// recompute requests. Each decision gets its own trailing-edge timer so
// a noisy decision cannot starve the others.
package refresh

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDebounce is the trailing-edge quiet period.
const DefaultDebounce = 2 * time.Second

// Debouncer fires the callback once per decision after its event burst
// settles. Safe for concurrent use.
type Debouncer struct {
	interval time.Duration
	fire     func(decisionID string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]int
	closed  bool
}

// New creates a debouncer with the given quiet period; interval <= 0
// selects the default. fire runs on a timer goroutine.
func New(interval time.Duration, fire func(decisionID string)) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounce
	}
	return &Debouncer{
		interval: interval,
		fire:     fire,
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]int),
	}
}

// Trigger registers one event for a decision. The callback fires once
// the decision has been quiet for the full interval; repeated triggers
// inside the window coalesce and push the deadline out.
func (d *Debouncer) Trigger(decisionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.pending[decisionID]++
	if t, ok := d.timers[decisionID]; ok {
		t.Reset(d.interval)
		return
	}
	d.timers[decisionID] = time.AfterFunc(d.interval, func() {
		d.expire(decisionID)
	})
}

func (d *Debouncer) expire(decisionID string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	coalesced := d.pending[decisionID]
	delete(d.pending, decisionID)
	delete(d.timers, decisionID)
	d.mu.Unlock()

	if coalesced == 0 {
		return
	}
	log.Debug().
		Str("decision_id", decisionID).
		Int("coalesced_events", coalesced).
		Msg("debounced refresh firing")
	d.fire(decisionID)
}

// Flush fires all pending decisions immediately. Used on shutdown so
// queued refreshes are not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	var due []string
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
		if d.pending[id] > 0 {
			due = append(due, id)
		}
		delete(d.pending, id)
	}
	d.mu.Unlock()

	for _, id := range due {
		d.fire(id)
	}
}

// Close stops all timers and drops pending work.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	d.pending = make(map[string]int)
}
