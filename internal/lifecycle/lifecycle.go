// Package lifecycle tracks process state reported by /health.
package lifecycle

import (
	"sync/atomic"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// Status is the health state reported to load balancers.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusDegraded     Status = "degraded"
	StatusShuttingDown Status = "shutting-down"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// DegradedPolicy says when the fetch failure rate marks upstream as degraded.
// A zero Window or ErrorPct disables the check.
type DegradedPolicy struct {
	Window   time.Duration
	ErrorPct int
}

// Breached reports whether failures/total reaches the policy's percentage. No traffic is never a breach.
func (p DegradedPolicy) Breached(failures, total int) bool {
	if p.Window <= 0 || p.ErrorPct <= 0 || total == 0 {
		return false
	}
	return failures*100 >= p.ErrorPct*total
}

// Current returns the process status: shutting-down first, then degraded from the fetch
// failure rate recorded in traffic, otherwise healthy.
func Current(p DegradedPolicy) Status {
	if IsShuttingDown() {
		return StatusShuttingDown
	}
	if p.Window > 0 {
		if failures, total := traffic.FailureRate(p.Window); p.Breached(failures, total) {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
