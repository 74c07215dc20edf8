package tracker

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("record not found")
	// ErrCorruptData means the stored record failed validation. It is
	// surfaced loudly and never auto-repaired; silently replacing it
	// would erase punctuality history.
	ErrCorruptData = errors.New("stored record is corrupt")
	// ErrLockTimeout means another writer held the lock past the bounded wait.
	ErrLockTimeout = errors.New("timed out waiting for record lock")
)

// Store is the persistence contract for sessions and stats records.
// Implementations must survive process crashes mid-write and serialize
// concurrent read-modify-write cycles across processes.
type Store interface {
	LoadSession(ctx context.Context, contextID string) (*Session, error)
	SaveSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, contextID string) error
	ListSessionContexts(ctx context.Context) ([]string, error)

	LoadStats(ctx context.Context, participant string) (*StatsRecord, error)
	SaveStats(ctx context.Context, record *StatsRecord) error
	ListStats(ctx context.Context) ([]*StatsRecord, error)

	// WithLock runs fn while holding an exclusive lock on the key. The
	// lock is released on every exit path, including panics. Acquisition
	// is bounded; contention past the bound fails with ErrLockTimeout.
	WithLock(ctx context.Context, key string, fn func() error) error
}

// SessionKey and StatsKey name the lockable units. A session and a stats
// record never share a lock.
func SessionKey(contextID string) string {
	return "session-" + contextID
}

func StatsKey(participant string) string {
	return "stats-" + participant
}
