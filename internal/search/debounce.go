package search

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long input must stay unchanged before a search runs
const DefaultQuietPeriod = 300 * time.Millisecond

// Debouncer delivers only the latest value once no new value has arrived for
// the quiet period.
type Debouncer struct {
	quiet time.Duration
	fn    func(string)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// NewDebouncer creates a Debouncer calling fn with the settled value.
// fn runs on its own goroutine.
func NewDebouncer(quiet time.Duration, fn func(string)) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{quiet: quiet, fn: fn}
}

// Push records a new value and restarts the quiet period
func (d *Debouncer) Push(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(seq, value) })
}

// fire delivers value unless a newer push superseded it. A timer that
// already fired cannot be stopped, so the sequence check is what drops it.
func (d *Debouncer) fire(seq uint64, value string) {
	d.mu.Lock()
	current := !d.stopped && d.seq == seq
	d.mu.Unlock()
	if current {
		d.fn(value)
	}
}

// Stop discards any pending value. Later pushes are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
