package tracker

import (
	"fmt"
	"sort"
	"time"
)

// Session holds all ETAs for one activity context (a channel). Terminal
// ETAs stay in the session until the inactivity cleanup removes it, so
// /status can show the full picture of who arrived and who did not.
type Session struct {
	ContextID    string
	Users        map[string]*UserETA
	LastActivity time.Time
}

func NewSession(contextID string, now time.Time) *Session {
	return &Session{
		ContextID:    contextID,
		Users:        make(map[string]*UserETA),
		LastActivity: now,
	}
}

// DeclareETA registers a pending ETA for the participant. A participant
// with a pending ETA cannot declare a second one; a participant whose
// previous ETA is terminal may declare again, replacing the old entry
// (its outcome has already been folded into stats).
func (s *Session) DeclareETA(participant string, now, target time.Time) (*UserETA, error) {
	if existing, ok := s.Users[participant]; ok && !existing.Terminal() {
		return nil, ErrDuplicateActiveETA
	}
	eta, err := newUserETA(participant, now, target)
	if err != nil {
		return nil, err
	}
	s.Users[participant] = eta
	s.TouchActivity(now)
	return eta, nil
}

func (s *Session) RecordArrival(participant string, now time.Time) (*UserETA, error) {
	eta, ok := s.Users[participant]
	if !ok {
		return nil, ErrNoActiveETA
	}
	if err := eta.markArrived(now); err != nil {
		return nil, err
	}
	s.TouchActivity(now)
	return eta, nil
}

// SweepExpired forces the terminal transition for every pending ETA past
// its grace deadline and returns the newly expired entries so the caller
// can update stats and notify. An empty result means the session was not
// mutated.
func (s *Session) SweepExpired(now time.Time, grace time.Duration) []*UserETA {
	var expired []*UserETA
	for _, eta := range s.Users {
		if !eta.Overdue(now, grace) {
			continue
		}
		if err := eta.expire(now, grace); err != nil {
			continue
		}
		expired = append(expired, eta)
	}
	if len(expired) > 0 {
		s.TouchActivity(now)
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].Participant < expired[j].Participant
		})
	}
	return expired
}

// MarkNewlyLate flags every pending ETA whose target has passed and
// returns them so the caller can send the one-time late reminder. An
// empty result means the session was not mutated.
func (s *Session) MarkNewlyLate(now time.Time) []*UserETA {
	var late []*UserETA
	for _, eta := range s.Users {
		if !eta.NewlyLate(now) {
			continue
		}
		eta.markLateNotified()
		late = append(late, eta)
	}
	if len(late) > 0 {
		sort.Slice(late, func(i, j int) bool {
			return late[i].Participant < late[j].Participant
		})
	}
	return late
}

// Pending returns a snapshot of all non-terminal ETAs, earliest target
// first, ties broken by declaration order.
func (s *Session) Pending() []*UserETA {
	pending := make([]*UserETA, 0, len(s.Users))
	for _, eta := range s.Users {
		if !eta.Terminal() {
			pending = append(pending, eta)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].Target.Equal(pending[j].Target) {
			return pending[i].Target.Before(pending[j].Target)
		}
		if !pending[i].DeclaredAt.Equal(pending[j].DeclaredAt) {
			return pending[i].DeclaredAt.Before(pending[j].DeclaredAt)
		}
		return pending[i].Participant < pending[j].Participant
	})
	return pending
}

func (s *Session) HasPending() bool {
	for _, eta := range s.Users {
		if !eta.Terminal() {
			return true
		}
	}
	return false
}

func (s *Session) TouchActivity(now time.Time) {
	s.LastActivity = now
}

// Inactive reports whether the session has no pending ETAs and has seen
// no mutation for longer than the timeout, making it eligible for removal.
func (s *Session) Inactive(now time.Time, timeout time.Duration) bool {
	if s.HasPending() {
		return false
	}
	return now.After(s.LastActivity.Add(timeout))
}

func (s *Session) Validate() error {
	if s.ContextID == "" {
		return fmt.Errorf("session has empty context id")
	}
	for participant, eta := range s.Users {
		if eta == nil {
			return fmt.Errorf("session %s has nil eta for %s", s.ContextID, participant)
		}
		if eta.Participant != participant {
			return fmt.Errorf("session %s eta keyed by %s belongs to %s", s.ContextID, participant, eta.Participant)
		}
		if err := eta.Validate(); err != nil {
			return fmt.Errorf("session %s: %w", s.ContextID, err)
		}
	}
	return nil
}
