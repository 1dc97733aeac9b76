package server

import (
	"fmt"
	"sync"
)

// Stats holds the server-wide request counters, one mutex guarding all
// five. Not wire-exposed; logged periodically by the janitor ticker.
type Stats struct {
	mu               sync.Mutex
	totalRequests    uint64
	successfulLogins uint64
	failedLogins     uint64
	registrations    uint64
	tokenValidations uint64
}

// Snapshot is an immutable copy of the counters for logging.
type Snapshot struct {
	TotalRequests    uint64
	SuccessfulLogins uint64
	FailedLogins     uint64
	Registrations    uint64
	TokenValidations uint64
}

func (s *Stats) incTotalRequests() {
	s.mu.Lock()
	s.totalRequests++
	s.mu.Unlock()
}

func (s *Stats) incSuccessfulLogins() {
	s.mu.Lock()
	s.successfulLogins++
	s.mu.Unlock()
}

func (s *Stats) incFailedLogins() {
	s.mu.Lock()
	s.failedLogins++
	s.mu.Unlock()
}

func (s *Stats) incRegistrations() {
	s.mu.Lock()
	s.registrations++
	s.mu.Unlock()
}

func (s *Stats) incTokenValidations() {
	s.mu.Lock()
	s.tokenValidations++
	s.mu.Unlock()
}

// String renders the snapshot as a single log line for the janitor.
func (snap Snapshot) String() string {
	return fmt.Sprintf("requests=%d logins_ok=%d logins_failed=%d registrations=%d validations=%d",
		snap.TotalRequests, snap.SuccessfulLogins, snap.FailedLogins, snap.Registrations, snap.TokenValidations)
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TotalRequests:    s.totalRequests,
		SuccessfulLogins: s.successfulLogins,
		FailedLogins:     s.failedLogins,
		Registrations:    s.registrations,
		TokenValidations: s.tokenValidations,
	}
}
