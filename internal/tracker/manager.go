package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foxseedlab/readyup/internal/clock"
	"github.com/foxseedlab/readyup/internal/config"
	"github.com/foxseedlab/readyup/internal/discord"
	"github.com/foxseedlab/readyup/internal/notify"
)

const (
	lockRetryAttempts = 3
	lockRetryBackoff  = 100 * time.Millisecond
)

// Manager coordinates the ETA lifecycle: every operation reloads state
// from the store under the record's lock, mutates it, and writes it back
// before returning. In-memory state is handler-local; the on-disk records
// are the only shared resource.
type Manager struct {
	cfg       *config.Config
	store     Store
	clock     clock.Clock
	discord   discord.Client
	notifier  notify.Sender
	loc       *time.Location
	botUserID string
}

func NewManager(cfg *config.Config, st Store, clk clock.Clock, dc discord.Client, notifier notify.Sender) *Manager {
	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &Manager{
		cfg:      cfg,
		store:    st,
		clock:    clk,
		discord:  dc,
		notifier: notifier,
		loc:      loc,
	}
}

func (m *Manager) SetBotUserID(id string) {
	m.botUserID = id
}

func (m *Manager) Location() *time.Location {
	return m.loc
}

type ArrivalResult struct {
	ETA             *UserETA
	Outcome         Outcome
	LatenessMinutes int
}

// DeclareETA registers a pending ETA, creating the context's session on
// first use. The session is persisted before the call returns.
func (m *Manager) DeclareETA(ctx context.Context, contextID, participant string, target time.Time) (*UserETA, error) {
	now := m.clock.Now()
	var eta *UserETA
	err := m.withLockRetry(ctx, SessionKey(contextID), func() error {
		session, err := m.store.LoadSession(ctx, contextID)
		if errors.Is(err, ErrNotFound) {
			session = NewSession(contextID, now)
		} else if err != nil {
			return m.surfaceLoadError(ctx, contextID, err)
		}
		eta, err = session.DeclareETA(participant, now, target)
		if err != nil {
			return err
		}
		return m.store.SaveSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("eta declared", "context_id", contextID, "participant", participant, "target", eta.Target)
	return eta, nil
}

// RecordArrival transitions the participant's pending ETA to Arrived and
// folds the outcome into their stats record. The stats update happens
// after the session lock is released; the one-shot terminal transition
// guarantees it runs at most once per ETA.
func (m *Manager) RecordArrival(ctx context.Context, contextID, participant string) (*ArrivalResult, error) {
	now := m.clock.Now()
	var eta *UserETA
	err := m.withLockRetry(ctx, SessionKey(contextID), func() error {
		session, err := m.store.LoadSession(ctx, contextID)
		if errors.Is(err, ErrNotFound) {
			return ErrUnknownContext
		}
		if err != nil {
			return m.surfaceLoadError(ctx, contextID, err)
		}
		eta, err = session.RecordArrival(participant, now)
		if err != nil {
			return err
		}
		return m.store.SaveSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	outcome := eta.Outcome()
	if err := m.updateStats(ctx, participant, outcome, eta.LatenessMinutes); err != nil {
		slog.Error("failed to update stats after arrival", "error", err, "context_id", contextID, "participant", participant)
	}
	slog.Info("arrival recorded", "context_id", contextID, "participant", participant, "outcome", string(outcome), "lateness_minutes", eta.LatenessMinutes)
	return &ArrivalResult{ETA: eta, Outcome: outcome, LatenessMinutes: eta.LatenessMinutes}, nil
}

// RecordArrivalAnywhere finds the context holding the participant's
// pending ETA and records the arrival there. Used for arrive-via-voice,
// where the join event does not say which channel the ETA belongs to.
func (m *Manager) RecordArrivalAnywhere(ctx context.Context, participant string) (string, *ArrivalResult, error) {
	contexts, err := m.store.ListSessionContexts(ctx)
	if err != nil {
		return "", nil, err
	}
	for _, contextID := range contexts {
		result, err := m.RecordArrival(ctx, contextID, participant)
		if err != nil {
			if errors.Is(err, ErrNoActiveETA) || errors.Is(err, ErrAlreadyTerminal) || errors.Is(err, ErrUnknownContext) {
				continue
			}
			return "", nil, err
		}
		return contextID, result, nil
	}
	return "", nil, ErrNoActiveETA
}

// GetStatus returns the context's pending ETAs, earliest target first.
func (m *Manager) GetStatus(ctx context.Context, contextID string) ([]*UserETA, error) {
	session, err := m.store.LoadSession(ctx, contextID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnknownContext
	}
	if err != nil {
		return nil, m.surfaceLoadError(ctx, contextID, err)
	}
	return session.Pending(), nil
}

func (m *Manager) GetStats(ctx context.Context, participant string) (*StatsRecord, error) {
	return m.store.LoadStats(ctx, participant)
}

func (m *Manager) GetLeaderboard(ctx context.Context) ([]*StatsRecord, error) {
	records, err := m.store.ListStats(ctx)
	if err != nil {
		return nil, err
	}
	SortForLeaderboard(records)
	return records, nil
}

// SweepAll walks every known context, expiring overdue ETAs, reminding
// newly late participants, and removing inactive sessions. Per-context
// failures are logged and skipped so one corrupt context cannot halt
// sweeping for the rest.
func (m *Manager) SweepAll(ctx context.Context) {
	contexts, err := m.store.ListSessionContexts(ctx)
	if err != nil {
		slog.Error("failed to enumerate session contexts", "error", err)
		return
	}
	for _, contextID := range contexts {
		expired, newlyLate, err := m.sweepContext(ctx, contextID)
		if err != nil {
			slog.Error("sweep failed for context", "error", err, "context_id", contextID)
			continue
		}
		for _, eta := range expired {
			m.handleNoShow(ctx, contextID, eta)
		}
		for _, eta := range newlyLate {
			m.handleLateReminder(contextID, eta)
		}
		removed, err := m.cleanupContext(ctx, contextID)
		if err != nil {
			slog.Error("cleanup failed for context", "error", err, "context_id", contextID)
			continue
		}
		if removed {
			slog.Info("inactive session removed", "context_id", contextID)
		}
	}
}

// sweepContext expires overdue ETAs and flags newly late ones in one
// context. A sweep that changes nothing performs no write, leaving the
// record byte-identical on disk.
func (m *Manager) sweepContext(ctx context.Context, contextID string) ([]*UserETA, []*UserETA, error) {
	now := m.clock.Now()
	var expired, newlyLate []*UserETA
	err := m.withLockRetry(ctx, SessionKey(contextID), func() error {
		session, err := m.store.LoadSession(ctx, contextID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return m.surfaceLoadError(ctx, contextID, err)
		}
		expired = session.SweepExpired(now, m.cfg.GracePeriod())
		newlyLate = session.MarkNewlyLate(now)
		if len(expired) == 0 && len(newlyLate) == 0 {
			return nil
		}
		return m.store.SaveSession(ctx, session)
	})
	if err != nil {
		return nil, nil, err
	}
	return expired, newlyLate, nil
}

func (m *Manager) cleanupContext(ctx context.Context, contextID string) (bool, error) {
	now := m.clock.Now()
	removed := false
	err := m.withLockRetry(ctx, SessionKey(contextID), func() error {
		session, err := m.store.LoadSession(ctx, contextID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return m.surfaceLoadError(ctx, contextID, err)
		}
		if !session.Inactive(now, m.cfg.InactivityTimeout()) {
			return nil
		}
		if err := m.store.DeleteSession(ctx, contextID); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

func (m *Manager) handleNoShow(ctx context.Context, contextID string, eta *UserETA) {
	if err := m.updateStats(ctx, eta.Participant, OutcomeNoShow, 0); err != nil {
		slog.Error("failed to update stats for no-show", "error", err, "context_id", contextID, "participant", eta.Participant)
	}
	if err := m.discord.SendChannelMessage(contextID, noShowMessage(eta.Participant)); err != nil {
		slog.Error("failed to announce no-show", "error", err, "context_id", contextID, "participant", eta.Participant)
	}
	if err := m.notifier.Send(ctx, notify.Event{
		Type:        notify.EventNoShow,
		ContextID:   contextID,
		Participant: eta.Participant,
		Target:      eta.Target,
		OccurredAt:  m.clock.Now(),
	}); err != nil {
		slog.Error("failed to send no-show webhook", "error", err, "context_id", contextID, "participant", eta.Participant)
	}
	slog.Info("eta expired as no-show", "context_id", contextID, "participant", eta.Participant, "target", eta.Target)
}

// handleLateReminder pings a participant whose target time has passed
// without an arrival. Fires once per ETA; expiry at the grace deadline
// is announced separately.
func (m *Manager) handleLateReminder(contextID string, eta *UserETA) {
	if err := m.discord.SendChannelMessage(contextID, lateReminderMessage(eta.Participant)); err != nil {
		slog.Error("failed to send late reminder", "error", err, "context_id", contextID, "participant", eta.Participant)
	}
	slog.Info("late reminder sent", "context_id", contextID, "participant", eta.Participant, "target", eta.Target)
}

func (m *Manager) updateStats(ctx context.Context, participant string, outcome Outcome, latenessMinutes int) error {
	return m.withLockRetry(ctx, StatsKey(participant), func() error {
		record, err := m.store.LoadStats(ctx, participant)
		if errors.Is(err, ErrNotFound) {
			record = NewStatsRecord(participant)
		} else if err != nil {
			return err
		}
		record.RecordOutcome(outcome, latenessMinutes)
		return m.store.SaveStats(ctx, record)
	})
}

// withLockRetry retries only lock contention, with linear backoff. The
// callback reloads state on every attempt, so re-running it is safe.
func (m *Manager) withLockRetry(ctx context.Context, key string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= lockRetryAttempts; attempt++ {
		err = m.store.WithLock(ctx, key, fn)
		if !errors.Is(err, ErrLockTimeout) {
			return err
		}
		if attempt == lockRetryAttempts {
			break
		}
		slog.Warn("record lock contended, backing off", "key", key, "attempt", attempt)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * lockRetryBackoff):
		}
	}
	return err
}

// surfaceLoadError alerts on corrupt records instead of treating them as
// fresh state. The record is never auto-repaired; an operator decides.
func (m *Manager) surfaceLoadError(ctx context.Context, contextID string, err error) error {
	if errors.Is(err, ErrCorruptData) {
		slog.Error("stored record failed validation; operator intervention required", "error", err, "context_id", contextID)
		if sendErr := m.notifier.Send(ctx, notify.Event{
			Type:       notify.EventCorruptData,
			ContextID:  contextID,
			Detail:     err.Error(),
			OccurredAt: m.clock.Now(),
		}); sendErr != nil {
			slog.Error("failed to send corrupt-data webhook", "error", sendErr, "context_id", contextID)
		}
	}
	return err
}
