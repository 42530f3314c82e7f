// Package traffic keeps short sliding windows of forecast fetch outcomes and rate-limit denials.
// /health reads it to decide whether upstream is degraded.
package traffic

import (
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// retention bounds how far back any window can look.
const retention = 15 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordOutcome records a fetch outcome on the process-wide tracker.
func RecordOutcome(o models.Outcome) {
	defaultTracker.RecordOutcome(o)
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// FailureRate returns (failures, total) fetches within the window.
func FailureRate(window time.Duration) (failures, total int) {
	return defaultTracker.FailureRate(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	successTimes []time.Time
	failureTimes []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a tracker reading time from now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// RecordOutcome classifies o. CityNotFound counts as a success: upstream answered, the city is
// just unknown. ForecastUnavailable and FetchFailed count as failures.
func (t *Tracker) RecordOutcome(o models.Outcome) {
	switch o {
	case models.OutcomeSuccess, models.OutcomeCityNotFound:
		t.record(&t.successTimes)
	default:
		t.record(&t.failureTimes)
	}
}

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// FailureRate returns (failures, total) within the window. Denials are excluded.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failures = countSince(t.failureTimes, cutoff)
	return failures, failures + countSince(t.successTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.failureTimes = nil
	t.deniedTimes = nil
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

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.failureTimes)
	prune(&t.deniedTimes)
}
