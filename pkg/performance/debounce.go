package performance

import (
	"sync"
	"time"
)

type pendingCall struct {
	timer *time.Timer
	seq   uint64
}

// Debouncer collapses bursts of calls per key into one call made after the
// burst has been quiet for the debounce duration.
type Debouncer struct {
	mutex    sync.Mutex
	timers   map[string]pendingCall
	seq      uint64
	duration time.Duration
}

// NewDebouncer creates a new debouncer with the specified duration
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		timers:   make(map[string]pendingCall),
		duration: duration,
	}
}

// Debounce schedules fn after the debounce duration. Another call with the
// same key before then replaces fn and restarts the wait.
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if p, exists := d.timers[key]; exists {
		p.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.timers[key] = pendingCall{
		seq: seq,
		timer: time.AfterFunc(d.duration, func() {
			d.mutex.Lock()
			// A newer call for key owns the slot now.
			if p, ok := d.timers[key]; !ok || p.seq != seq {
				d.mutex.Unlock()
				return
			}
			delete(d.timers, key)
			d.mutex.Unlock()
			fn()
		}),
	}
}

// Pending reports how many keys have a call waiting.
func (d *Debouncer) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.timers)
}

// Clear cancels all pending debounced function calls
func (d *Debouncer) Clear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for key, p := range d.timers {
		p.timer.Stop()
		delete(d.timers, key)
	}
}
