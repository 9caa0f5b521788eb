// Package intervene owns the per-page intervention lifecycle: the session
// state machine and the overlay rendered into the page.
package intervene

import (
	"fmt"
	"time"

	"spendguard-agent/internal/decision"
)

// Status is the session state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusAnalyzing   Status = "analyzing"
	StatusPresenting  Status = "presenting"
	StatusProceeded   Status = "proceeded"
	StatusCancelled   Status = "cancelled"
	StatusAutoExpired Status = "auto_expired"
)

// Terminal reports whether the status ends the session.
func (s Status) Terminal() bool {
	switch s {
	case StatusProceeded, StatusCancelled, StatusAutoExpired:
		return true
	}
	return false
}

// Session tracks one intervention from click suppression to resolution.
// At most one session is active per page; the owner serializes access.
type Session struct {
	TabID        string
	Decision     decision.RiskDecision
	StartedAt    time.Time
	TimerSeconds int
	status       Status
}

// NewSession starts in Idle.
func NewSession(tabID string) *Session {
	return &Session{TabID: tabID, status: StatusIdle}
}

// Status returns the current state.
func (s *Session) Status() Status {
	return s.status
}

// Begin moves Idle to Analyzing on a purchase-control activation.
func (s *Session) Begin() error {
	if s.status != StatusIdle {
		return fmt.Errorf("cannot begin analysis from %s", s.status)
	}
	s.status = StatusAnalyzing
	s.StartedAt = time.Now()
	return nil
}

// Present moves Analyzing to Presenting once an intervene decision is in
// hand. The countdown length comes from the decision.
func (s *Session) Present(d decision.RiskDecision) error {
	if s.status != StatusAnalyzing {
		return fmt.Errorf("cannot present from %s", s.status)
	}
	if !d.ShouldIntervene {
		return fmt.Errorf("decision does not call for intervention")
	}
	s.status = StatusPresenting
	s.Decision = d
	s.TimerSeconds = d.DelayMinutes * 60
	return nil
}

// Resolve moves Presenting to a terminal state. Analyzing resolves too:
// a proceed decision or fail-open ends the session without an overlay.
func (s *Session) Resolve(outcome Status) error {
	if !outcome.Terminal() {
		return fmt.Errorf("%s is not a terminal status", outcome)
	}
	switch s.status {
	case StatusPresenting:
	case StatusAnalyzing:
		if outcome == StatusCancelled {
			return fmt.Errorf("cannot cancel during analysis")
		}
	default:
		return fmt.Errorf("cannot resolve from %s", s.status)
	}
	s.status = outcome
	return nil
}

// Reset returns a terminal session to Idle for the next event.
func (s *Session) Reset() error {
	if !s.status.Terminal() {
		return fmt.Errorf("cannot reset from %s", s.status)
	}
	s.status = StatusIdle
	s.Decision = decision.RiskDecision{}
	s.TimerSeconds = 0
	return nil
}
