package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/foxseedlab/readyup/internal/tracker"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore keeps one JSON document per session context and per
// participant stats record under a single data directory. Writes go to a
// temp file in the same directory and are renamed over the target, so a
// crash mid-write never leaves a half-written record. Cross-process
// mutual exclusion uses advisory file locks, one lock file per key.
type FileStore struct {
	sessionsDir string
	statsDir    string
	locksDir    string
	lockTimeout time.Duration
}

func NewFileStore(dataDir string, lockTimeout time.Duration) (*FileStore, error) {
	s := &FileStore{
		sessionsDir: filepath.Join(dataDir, "sessions"),
		statsDir:    filepath.Join(dataDir, "stats"),
		locksDir:    filepath.Join(dataDir, "locks"),
		lockTimeout: lockTimeout,
	}
	for _, dir := range []string{s.sessionsDir, s.statsDir, s.locksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return s, nil
}

type etaDocument struct {
	Participant     string     `json:"participant"`
	DeclaredAt      time.Time  `json:"declared_at"`
	Target          time.Time  `json:"target"`
	Status          string     `json:"status"`
	ArrivedAt       *time.Time `json:"arrived_at,omitempty"`
	LatenessMinutes int        `json:"lateness_minutes"`
	LateNotified    bool       `json:"late_notified,omitempty"`
}

type sessionDocument struct {
	ContextID    string                 `json:"context_id"`
	Users        map[string]etaDocument `json:"users"`
	LastActivity time.Time              `json:"last_activity"`
}

type statsDocument struct {
	Participant        string `json:"participant"`
	OnTime             int    `json:"on_time"`
	Late               int    `json:"late"`
	NoShows            int    `json:"no_shows"`
	LatenessSumMinutes int    `json:"lateness_sum_minutes"`
	TotalTracked       int    `json:"total_tracked"`
}

func (s *FileStore) LoadSession(ctx context.Context, contextID string) (*tracker.Session, error) {
	_ = ctx
	path := s.sessionPath(contextID)
	var doc sessionDocument
	if err := readDocument(path, &doc); err != nil {
		return nil, err
	}
	session := &tracker.Session{
		ContextID:    doc.ContextID,
		Users:        make(map[string]*tracker.UserETA, len(doc.Users)),
		LastActivity: doc.LastActivity,
	}
	for participant, eta := range doc.Users {
		session.Users[participant] = &tracker.UserETA{
			Participant:     eta.Participant,
			DeclaredAt:      eta.DeclaredAt,
			Target:          eta.Target,
			Status:          tracker.ETAStatus(eta.Status),
			ArrivedAt:       eta.ArrivedAt,
			LatenessMinutes: eta.LatenessMinutes,
			LateNotified:    eta.LateNotified,
		}
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tracker.ErrCorruptData, path, err)
	}
	return session, nil
}

func (s *FileStore) SaveSession(ctx context.Context, session *tracker.Session) error {
	_ = ctx
	if err := session.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid session: %w", err)
	}
	doc := sessionDocument{
		ContextID:    session.ContextID,
		Users:        make(map[string]etaDocument, len(session.Users)),
		LastActivity: session.LastActivity,
	}
	for participant, eta := range session.Users {
		doc.Users[participant] = etaDocument{
			Participant:     eta.Participant,
			DeclaredAt:      eta.DeclaredAt,
			Target:          eta.Target,
			Status:          string(eta.Status),
			ArrivedAt:       eta.ArrivedAt,
			LatenessMinutes: eta.LatenessMinutes,
			LateNotified:    eta.LateNotified,
		}
	}
	return writeDocument(s.sessionPath(session.ContextID), doc)
}

func (s *FileStore) DeleteSession(ctx context.Context, contextID string) error {
	_ = ctx
	if err := os.Remove(s.sessionPath(contextID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete session %s: %w", contextID, err)
	}
	return nil
}

func (s *FileStore) ListSessionContexts(ctx context.Context) ([]string, error) {
	_ = ctx
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	contexts := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		contexts = append(contexts, strings.TrimSuffix(name, ".json"))
	}
	return contexts, nil
}

func (s *FileStore) LoadStats(ctx context.Context, participant string) (*tracker.StatsRecord, error) {
	_ = ctx
	path := s.statsPath(participant)
	var doc statsDocument
	if err := readDocument(path, &doc); err != nil {
		return nil, err
	}
	record := &tracker.StatsRecord{
		Participant:        doc.Participant,
		OnTime:             doc.OnTime,
		Late:               doc.Late,
		NoShows:            doc.NoShows,
		LatenessSumMinutes: doc.LatenessSumMinutes,
		TotalTracked:       doc.TotalTracked,
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tracker.ErrCorruptData, path, err)
	}
	return record, nil
}

func (s *FileStore) SaveStats(ctx context.Context, record *tracker.StatsRecord) error {
	_ = ctx
	if err := record.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid stats record: %w", err)
	}
	doc := statsDocument{
		Participant:        record.Participant,
		OnTime:             record.OnTime,
		Late:               record.Late,
		NoShows:            record.NoShows,
		LatenessSumMinutes: record.LatenessSumMinutes,
		TotalTracked:       record.TotalTracked,
	}
	return writeDocument(s.statsPath(record.Participant), doc)
}

func (s *FileStore) ListStats(ctx context.Context) ([]*tracker.StatsRecord, error) {
	entries, err := os.ReadDir(s.statsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}
	records := make([]*tracker.StatsRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		record, err := s.LoadStats(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *FileStore) WithLock(ctx context.Context, key string, fn func() error) error {
	fl := flock.New(filepath.Join(s.locksDir, sanitizeKey(key)+".lock"))
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		return fmt.Errorf("%w: %s", tracker.ErrLockTimeout, key)
	}
	defer func() {
		_ = fl.Unlock()
	}()
	return fn()
}

func (s *FileStore) sessionPath(contextID string) string {
	return filepath.Join(s.sessionsDir, sanitizeKey(contextID)+".json")
}

func (s *FileStore) statsPath(participant string) string {
	return filepath.Join(s.statsDir, sanitizeKey(participant)+".json")
}

// sanitizeKey keeps identifiers filename-safe. Discord snowflakes are
// plain digits, so this only matters for hostile or malformed input.
func sanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func readDocument(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", tracker.ErrNotFound, path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %w", tracker.ErrCorruptData, path, err)
	}
	return nil
}

// writeDocument performs the atomic replace: marshal, write a uniquely
// named temp file alongside the target, then rename over it.
func writeDocument(path string, doc any) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	tmp := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
