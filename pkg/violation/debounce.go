package violation

import "time"

// Debouncer suppresses repeats of the same event type inside a cooldown
// window. Only admitted events move the window.
type Debouncer struct {
	cooldown time.Duration
	last     map[EventType]time.Time
}

// NewDebouncer creates a debouncer with the given cooldown
func NewDebouncer(cooldown time.Duration) *Debouncer {
	return &Debouncer{cooldown: cooldown, last: make(map[EventType]time.Time)}
}

// ShouldEmit reports whether an event of type t may be emitted at now, and
// records the emission if so.
func (d *Debouncer) ShouldEmit(t EventType, now time.Time) bool {
	if last, ok := d.last[t]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.last[t] = now
	return true
}

// Filter applies ShouldEmit to each event in order, returning the admitted
// ones and the suppressed ones.
func (d *Debouncer) Filter(events []Event) (admitted, suppressed []Event) {
	for _, e := range events {
		if d.ShouldEmit(e.Type, e.Timestamp) {
			admitted = append(admitted, e)
		} else {
			suppressed = append(suppressed, e)
		}
	}
	return admitted, suppressed
}

// LastEmitted returns when type t was last admitted
func (d *Debouncer) LastEmitted(t EventType) (time.Time, bool) {
	ts, ok := d.last[t]
	return ts, ok
}

// Reset clears all history
func (d *Debouncer) Reset() {
	d.last = make(map[EventType]time.Time)
}
