package store

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryRetentionDays is the login-history retention window.
const DefaultHistoryRetentionDays = 90

// Janitor periodically sweeps expired sessions, stale login history, and
// expired persisted rate-limit rows. Grounded on
// internal/auth/service.go's StartCleanupRoutine (ticker + stop channel)
// and internal/audit/audit.go's Cleanup (retention-day deletion).
type Janitor struct {
	store            *Store
	interval         time.Duration
	retentionDays    int
	stop             chan struct{}
	statsFn          func() string
	rateLimiterSweep func() int
}

// NewJanitor constructs a janitor that sweeps every interval, retaining
// login history for retentionDays.
func NewJanitor(s *Store, interval time.Duration, retentionDays int) *Janitor {
	return &Janitor{
		store:         s,
		interval:      interval,
		retentionDays: retentionDays,
		stop:          make(chan struct{}),
	}
}

// SetStatsReporter registers a callback invoked on every sweep to log a
// one-line summary of the server's request counters (AuthServer::Stats).
// The janitor doesn't know the server's type; it only knows how to ask
// for a string to log, keeping internal/store free of an internal/server
// import.
func (j *Janitor) SetStatsReporter(fn func() string) {
	j.statsFn = fn
}

// SetRateLimiterSweeper registers the in-memory security.RateLimiter's
// Sweep method, called on every sweep to drop expired (ip, operation)
// windows. Kept as a callback, like SetStatsReporter, so internal/store
// never imports internal/security.
func (j *Janitor) SetRateLimiterSweeper(fn func() int) {
	j.rateLimiterSweep = fn
}

// Start runs the sweep loop in a background goroutine until Stop is called.
func (j *Janitor) Start() {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.sweep()
			case <-j.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (j *Janitor) Stop() {
	close(j.stop)
}

func (j *Janitor) sweep() {
	sweepID := uuid.New().String()

	sessions, err := j.store.CleanupExpiredSessions()
	if err != nil {
		log.Printf("[janitor %s] expired sessions: %v", sweepID, err)
	}

	history, err := j.store.CleanupOldLoginHistory(j.retentionDays)
	if err != nil {
		log.Printf("[janitor %s] old login history: %v", sweepID, err)
	}

	rateLimits, err := j.store.CleanupExpiredRateLimits()
	if err != nil {
		log.Printf("[janitor %s] expired rate limits: %v", sweepID, err)
	}

	var inMemoryRateLimits int
	if j.rateLimiterSweep != nil {
		inMemoryRateLimits = j.rateLimiterSweep()
	}

	if sessions > 0 || history > 0 || rateLimits > 0 || inMemoryRateLimits > 0 {
		log.Printf("[janitor %s] swept %d sessions, %d history rows, %d persisted rate-limit rows, %d in-memory rate-limit windows",
			sweepID, sessions, history, rateLimits, inMemoryRateLimits)
	}

	if j.statsFn != nil {
		log.Printf("[janitor %s] stats: %s", sweepID, j.statsFn())
	}
}
