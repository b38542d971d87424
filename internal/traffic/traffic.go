package traffic

import (
	"sync"
	"time"
)

const retention = 5 * time.Minute

// Outcome classifies a served request for health evaluation.
type Outcome int

const (
	Success Outcome = iota
	// Failure is a server-side failure: upstream, cache write or timeout. Client errors are not failures.
	Failure
	// Denied is a rate-limit rejection (429).
	Denied
)

// Tracker keeps sliding windows of request outcomes. The health handler reads it to report
// overloaded and degraded states. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	now  func() time.Time
	hits map[Outcome][]time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, hits: make(map[Outcome][]time.Time)}
}

// SetClock overrides the time source. For tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Record stores one outcome and drops entries older than the retention period.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.hits[o] = append(t.hits[o], now)
	t.pruneLocked(now)
}

// Counts returns how many of each outcome fall inside window.
func (t *Tracker) Counts(window time.Duration) (success, failure, denied int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.hits[Success], cutoff), countSince(t.hits[Failure], cutoff), countSince(t.hits[Denied], cutoff)
}

// FailurePct is failures as a percentage of success+failure inside window; denials are excluded.
// ok is false when nothing was served in the window.
func (t *Tracker) FailurePct(window time.Duration) (pct float64, ok bool) {
	success, failure, _ := t.Counts(window)
	total := success + failure
	if total == 0 {
		return 0, false
	}
	return float64(failure) * 100 / float64(total), true
}

// DeniedPct is denials as a percentage of all outcomes inside window.
func (t *Tracker) DeniedPct(window time.Duration) (pct float64, ok bool) {
	success, failure, denied := t.Counts(window)
	total := success + failure + denied
	if total == 0 {
		return 0, false
	}
	return float64(denied) * 100 / float64(total), true
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hits = make(map[Outcome][]time.Time)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o, times := range t.hits {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.hits[o] = append(times[:0], times[i:]...)
		}
	}
}
