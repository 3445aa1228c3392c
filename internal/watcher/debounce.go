package watcher

import "time"

// Debouncer groups rapid changes of one binding. It is owned by a single
// worker goroutine and is not safe for concurrent use.
type Debouncer struct {
	delay   time.Duration
	timer   *time.Timer
	pending []ChangeEvent
}

func newDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// add queues an event and restarts the quiet period.
func (d *Debouncer) add(ev ChangeEvent) {
	d.pending = append(d.pending, ev)
	if d.timer == nil {
		d.timer = time.NewTimer(d.delay)
		return
	}
	d.timer.Reset(d.delay)
}

// fired is nil while nothing is pending, so selecting on it blocks.
func (d *Debouncer) fired() <-chan time.Time {
	if d.timer == nil || len(d.pending) == 0 {
		return nil
	}
	return d.timer.C
}

// take returns the pending events, one per path in first-seen order with the
// latest event for each path, and clears the queue.
func (d *Debouncer) take() []ChangeEvent {
	latest := make(map[string]int, len(d.pending))
	var out []ChangeEvent
	for _, ev := range d.pending {
		if i, ok := latest[ev.Path]; ok {
			out[i] = ev
			continue
		}
		latest[ev.Path] = len(out)
		out = append(out, ev)
	}
	d.pending = d.pending[:0]
	return out
}

func (d *Debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
