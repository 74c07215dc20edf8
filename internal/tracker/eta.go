package tracker

import (
	"fmt"
	"time"
)

type ETAStatus string

const (
	StatusPending ETAStatus = "pending"
	StatusArrived ETAStatus = "arrived"
	StatusExpired ETAStatus = "expired"
)

type Outcome string

const (
	OutcomeOnTime Outcome = "on_time"
	OutcomeLate   Outcome = "late"
	OutcomeNoShow Outcome = "no_show"
)

// UserETA is one participant's arrival declaration. It is mutated only
// through its transition methods and becomes immutable once terminal.
type UserETA struct {
	Participant     string
	DeclaredAt      time.Time
	Target          time.Time
	Status          ETAStatus
	ArrivedAt       *time.Time
	LatenessMinutes int
	LateNotified    bool
}

func newUserETA(participant string, declaredAt, target time.Time) (*UserETA, error) {
	if target.Before(declaredAt) {
		return nil, ErrTargetInPast
	}
	return &UserETA{
		Participant: participant,
		DeclaredAt:  declaredAt,
		Target:      target,
		Status:      StatusPending,
	}, nil
}

func (e *UserETA) Terminal() bool {
	return e.Status == StatusArrived || e.Status == StatusExpired
}

// markArrived is one-shot: a second terminal transition fails with
// ErrAlreadyTerminal, which is what enforces at-most-once stats updates.
func (e *UserETA) markArrived(at time.Time) error {
	if e.Terminal() {
		return ErrAlreadyTerminal
	}
	arrivedAt := at
	e.Status = StatusArrived
	e.ArrivedAt = &arrivedAt
	e.LatenessMinutes = latenessMinutes(at, e.Target)
	return nil
}

// expire transitions an overdue pending ETA to Expired. The recorded
// lateness is the grace window length; the stats aggregator excludes
// no-shows from lateness averages, so this value is display-only.
func (e *UserETA) expire(at time.Time, grace time.Duration) error {
	if e.Terminal() {
		return ErrAlreadyTerminal
	}
	if !e.Overdue(at, grace) {
		return fmt.Errorf("eta for %s is not past its grace deadline", e.Participant)
	}
	e.Status = StatusExpired
	e.LatenessMinutes = int(grace / time.Minute)
	return nil
}

// Overdue reports whether the grace deadline has passed without an arrival.
func (e *UserETA) Overdue(now time.Time, grace time.Duration) bool {
	if e.Status != StatusPending {
		return false
	}
	return !now.Before(e.Target.Add(grace))
}

// NewlyLate reports whether the target has passed without an arrival and
// no reminder has been sent yet. The ETA stays pending until the grace
// deadline; only the reminder flag changes.
func (e *UserETA) NewlyLate(now time.Time) bool {
	if e.Status != StatusPending || e.LateNotified {
		return false
	}
	return now.After(e.Target)
}

func (e *UserETA) markLateNotified() {
	e.LateNotified = true
}

// Outcome classifies a terminal ETA. Arrivals at or before the target
// (lateness <= 0 minutes) count as on time.
func (e *UserETA) Outcome() Outcome {
	if e.Status == StatusExpired {
		return OutcomeNoShow
	}
	if e.LatenessMinutes <= 0 {
		return OutcomeOnTime
	}
	return OutcomeLate
}

func (e *UserETA) Validate() error {
	if e.Participant == "" {
		return fmt.Errorf("eta has empty participant")
	}
	switch e.Status {
	case StatusPending, StatusArrived, StatusExpired:
	default:
		return fmt.Errorf("eta for %s has unknown status %q", e.Participant, e.Status)
	}
	if e.Target.Before(e.DeclaredAt) {
		return fmt.Errorf("eta for %s has target before declaration", e.Participant)
	}
	if e.Status == StatusArrived && e.ArrivedAt == nil {
		return fmt.Errorf("arrived eta for %s has no arrival timestamp", e.Participant)
	}
	if e.Status != StatusArrived && e.ArrivedAt != nil {
		return fmt.Errorf("non-arrived eta for %s has an arrival timestamp", e.Participant)
	}
	return nil
}

func latenessMinutes(at, target time.Time) int {
	return int(at.Sub(target) / time.Minute)
}
