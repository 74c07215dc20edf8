package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/readyup/internal/clock"
	"github.com/foxseedlab/readyup/internal/config"
	"github.com/foxseedlab/readyup/internal/discord"
	"github.com/foxseedlab/readyup/internal/notify"
)

type memStore struct {
	mu             sync.Mutex
	sessions       map[string]*Session
	stats          map[string]*StatsRecord
	sessionSaves   int
	lockFailures   int
	loadSessionErr error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*Session),
		stats:    make(map[string]*StatsRecord),
	}
}

// Load and save deep-copy so handler-local mutation without a save never
// leaks into the "persisted" state, mirroring the file store.
func cloneSession(s *Session) *Session {
	out := &Session{
		ContextID:    s.ContextID,
		Users:        make(map[string]*UserETA, len(s.Users)),
		LastActivity: s.LastActivity,
	}
	for participant, eta := range s.Users {
		copied := *eta
		if eta.ArrivedAt != nil {
			at := *eta.ArrivedAt
			copied.ArrivedAt = &at
		}
		out.Users[participant] = &copied
	}
	return out
}

func (m *memStore) LoadSession(_ context.Context, contextID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadSessionErr != nil {
		return nil, m.loadSessionErr
	}
	s, ok := m.sessions[contextID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contextID)
	}
	return cloneSession(s), nil
}

func (m *memStore) SaveSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ContextID] = cloneSession(session)
	m.sessionSaves++
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, contextID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, contextID)
	return nil
}

func (m *memStore) ListSessionContexts(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contexts := make([]string, 0, len(m.sessions))
	for contextID := range m.sessions {
		contexts = append(contexts, contextID)
	}
	sort.Strings(contexts)
	return contexts, nil
}

func (m *memStore) LoadStats(_ context.Context, participant string) (*StatsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.stats[participant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, participant)
	}
	copied := *r
	return &copied, nil
}

func (m *memStore) SaveStats(_ context.Context, record *StatsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.stats[record.Participant] = &copied
	return nil
}

func (m *memStore) ListStats(_ context.Context) ([]*StatsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*StatsRecord, 0, len(m.stats))
	for _, r := range m.stats {
		copied := *r
		records = append(records, &copied)
	}
	return records, nil
}

func (m *memStore) WithLock(_ context.Context, key string, fn func() error) error {
	m.mu.Lock()
	if m.lockFailures > 0 {
		m.lockFailures--
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	m.mu.Unlock()
	return fn()
}

type sentMessage struct {
	channelID string
	content   string
}

type mockDiscordClient struct {
	mu        sync.Mutex
	sendCalls []sentMessage
}

func (m *mockDiscordClient) Connect(_ context.Context) error { return nil }
func (m *mockDiscordClient) Close() error                    { return nil }
func (m *mockDiscordClient) SendChannelMessage(channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, sentMessage{channelID: channelID, content: content})
	return nil
}
func (m *mockDiscordClient) RegisterVoiceStateUpdateHandler(_ func(discord.VoiceStateEvent)) {}
func (m *mockDiscordClient) RegisterSlashCommandHandler(_ func(discord.SlashCommandEvent))   {}
func (m *mockDiscordClient) UpsertGuildSlashCommands(_ string, _ []discord.SlashCommandDefinition) error {
	return nil
}
func (m *mockDiscordClient) GetBotUserID() (string, error) { return "bot-self", nil }
func (m *mockDiscordClient) Run() error                    { return nil }

type mockNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (m *mockNotifier) Send(_ context.Context, event notify.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                           "development",
		DiscordToken:                  "token",
		DiscordGuildID:                "guild-1",
		DataDir:                       "data",
		DisplayTimezone:               "UTC",
		ETAExpirationMinutes:          60,
		SessionInactivityTimeoutHours: 3,
		SweepIntervalSeconds:          60,
		LockTimeoutSeconds:            5,
	}
}

func newTestManager() (*Manager, *memStore, *mockDiscordClient, *mockNotifier, *clock.Fake) {
	st := newMemStore()
	dc := &mockDiscordClient{}
	notifier := &mockNotifier{}
	clk := clock.NewFake(t0)
	m := NewManager(testConfig(), st, clk, dc, notifier)
	m.SetBotUserID("bot-self")
	return m, st, dc, notifier, clk
}

func TestDeclareThenArrive_OnTime(t *testing.T) {
	m, st, _, _, clk := newTestManager()
	ctx := context.Background()

	eta, err := m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if eta.Status != StatusPending {
		t.Fatalf("expected pending, got %s", eta.Status)
	}
	if st.sessionSaves != 1 {
		t.Fatalf("expected write-through save on declare, got %d saves", st.sessionSaves)
	}

	clk.Advance(10 * time.Minute)
	result, err := m.RecordArrival(ctx, "channel-1", "alice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Outcome != OutcomeOnTime {
		t.Fatalf("expected on-time outcome, got %s", result.Outcome)
	}

	record, err := m.GetStats(ctx, "alice")
	if err != nil {
		t.Fatalf("expected stats record, got %v", err)
	}
	if record.OnTime != 1 || record.TotalTracked != 1 {
		t.Fatalf("expected one on-time outcome, got %+v", record)
	}
}

func TestArrival_LateByFiveMinutes(t *testing.T) {
	m, _, _, _, clk := newTestManager()
	ctx := context.Background()

	if _, err := m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	clk.Advance(20 * time.Minute)
	result, err := m.RecordArrival(ctx, "channel-1", "alice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Outcome != OutcomeLate {
		t.Fatalf("expected late outcome, got %s", result.Outcome)
	}
	if result.LatenessMinutes != 5 {
		t.Fatalf("expected lateness +5, got %d", result.LatenessMinutes)
	}
}

func TestDeclareETA_DuplicateActive(t *testing.T) {
	m, _, _, _, _ := newTestManager()
	ctx := context.Background()

	if _, err := m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := m.DeclareETA(ctx, "channel-1", "alice", t0.Add(30*time.Minute)); !errors.Is(err, ErrDuplicateActiveETA) {
		t.Fatalf("expected ErrDuplicateActiveETA, got %v", err)
	}
}

func TestRecordArrival_UnknownContext(t *testing.T) {
	m, _, _, _, _ := newTestManager()
	if _, err := m.RecordArrival(context.Background(), "nowhere", "alice"); !errors.Is(err, ErrUnknownContext) {
		t.Fatalf("expected ErrUnknownContext, got %v", err)
	}
}

func TestRecordArrival_AlreadyTerminalLeavesStatsAlone(t *testing.T) {
	m, _, _, _, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))
	clk.Advance(10 * time.Minute)
	if _, err := m.RecordArrival(ctx, "channel-1", "alice"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := m.RecordArrival(ctx, "channel-1", "alice"); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	record, err := m.GetStats(ctx, "alice")
	if err != nil {
		t.Fatalf("expected stats record, got %v", err)
	}
	if record.TotalTracked != 1 {
		t.Fatalf("expected stats applied exactly once, got %+v", record)
	}
}

func TestSweepAll_NoShow(t *testing.T) {
	m, st, dc, notifier, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))

	// One minute past target + grace (15 + 60 + 1).
	clk.Set(t0.Add(76 * time.Minute))
	m.SweepAll(ctx)

	record, err := m.GetStats(ctx, "alice")
	if err != nil {
		t.Fatalf("expected stats record, got %v", err)
	}
	if record.NoShows != 1 || record.OnTime != 0 || record.Late != 0 {
		t.Fatalf("expected exactly one no-show, got %+v", record)
	}
	if len(dc.sendCalls) != 1 || dc.sendCalls[0].channelID != "channel-1" {
		t.Fatalf("expected one no-show announcement to channel-1, got %v", dc.sendCalls)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != notify.EventNoShow {
		t.Fatalf("expected one no-show webhook event, got %v", notifier.events)
	}

	// A second sweep must not re-apply anything.
	savesBefore := st.sessionSaves
	m.SweepAll(ctx)
	record, _ = m.GetStats(ctx, "alice")
	if record.NoShows != 1 {
		t.Fatalf("expected no-show count unchanged after second sweep, got %+v", record)
	}
	if st.sessionSaves != savesBefore {
		t.Fatalf("expected no session write on a sweep with nothing overdue, got %d extra", st.sessionSaves-savesBefore)
	}
}

func TestSweep_NoOverdueWritesNothing(t *testing.T) {
	m, st, _, _, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(2*time.Hour))
	savesBefore := st.sessionSaves
	clk.Advance(30 * time.Minute)
	m.SweepAll(ctx)
	if st.sessionSaves != savesBefore {
		t.Fatalf("expected no write when nothing expired, got %d extra saves", st.sessionSaves-savesBefore)
	}
}

func TestCleanup_RemovesInactiveSession(t *testing.T) {
	m, _, _, _, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))
	clk.Advance(10 * time.Minute)
	if _, err := m.RecordArrival(ctx, "channel-1", "alice"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// All ETAs terminal and last activity beyond the timeout.
	clk.Advance(4 * time.Hour)
	m.SweepAll(ctx)

	if _, err := m.GetStatus(ctx, "channel-1"); !errors.Is(err, ErrUnknownContext) {
		t.Fatalf("expected ErrUnknownContext after cleanup, got %v", err)
	}

	// A fresh declaration recreates the context.
	if _, err := m.DeclareETA(ctx, "channel-1", "alice", clk.Now().Add(time.Hour)); err != nil {
		t.Fatalf("expected declare to recreate context, got %v", err)
	}
	if _, err := m.GetStatus(ctx, "channel-1"); err != nil {
		t.Fatalf("expected status after redeclare, got %v", err)
	}
}

func TestCleanup_KeepsSessionWithPendingETA(t *testing.T) {
	m, _, _, _, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(30*time.Hour))
	clk.Advance(10 * time.Hour)
	m.SweepAll(ctx)
	if _, err := m.GetStatus(ctx, "channel-1"); err != nil {
		t.Fatalf("expected session with pending eta to survive cleanup, got %v", err)
	}
}

func TestGetStatus_Ordering(t *testing.T) {
	m, _, _, _, _ := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "bob", t0.Add(time.Hour))
	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(10*time.Minute))

	pending, err := m.GetStatus(ctx, "channel-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(pending) != 2 || pending[0].Participant != "alice" || pending[1].Participant != "bob" {
		t.Fatalf("expected earliest-due first, got %v", pending)
	}
}

func TestSweepAll_LateReminderFiresOnce(t *testing.T) {
	m, st, dc, _, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))

	// Past the target, well inside the grace window.
	clk.Set(t0.Add(20 * time.Minute))
	m.SweepAll(ctx)

	if len(dc.sendCalls) != 1 || !strings.Contains(dc.sendCalls[0].content, "now late") {
		t.Fatalf("expected one late reminder, got %v", dc.sendCalls)
	}
	if _, err := m.GetStats(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no stats before a terminal transition, got %v", err)
	}
	pending, err := m.GetStatus(ctx, "channel-1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected eta still pending after reminder, got %v %v", pending, err)
	}

	// The flag is persisted, so the next sweep stays quiet and writes nothing.
	savesBefore := st.sessionSaves
	clk.Advance(time.Minute)
	m.SweepAll(ctx)
	if len(dc.sendCalls) != 1 {
		t.Fatalf("expected reminder to fire once, got %v", dc.sendCalls)
	}
	if st.sessionSaves != savesBefore {
		t.Fatalf("expected no write on the second sweep, got %d extra", st.sessionSaves-savesBefore)
	}
}

func TestSweepAll_NoReminderWhenExpiringInSameTick(t *testing.T) {
	m, _, dc, _, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))

	// First sweep only after target + grace: straight to no-show, no
	// separate late ping.
	clk.Set(t0.Add(76 * time.Minute))
	m.SweepAll(ctx)

	if len(dc.sendCalls) != 1 || !strings.Contains(dc.sendCalls[0].content, "no-show") {
		t.Fatalf("expected only the no-show announcement, got %v", dc.sendCalls)
	}
}

func TestLockTimeout_RetriedThenSucceeds(t *testing.T) {
	m, st, _, _, _ := newTestManager()
	st.lockFailures = 1
	if _, err := m.DeclareETA(context.Background(), "channel-1", "alice", t0.Add(time.Hour)); err != nil {
		t.Fatalf("expected retry to absorb one lock timeout, got %v", err)
	}
}

func TestLockTimeout_Surfaces(t *testing.T) {
	m, st, _, _, _ := newTestManager()
	st.lockFailures = lockRetryAttempts
	if _, err := m.DeclareETA(context.Background(), "channel-1", "alice", t0.Add(time.Hour)); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout after bounded retries, got %v", err)
	}
}

func TestCorruptSession_SurfacesAndAlerts(t *testing.T) {
	m, st, _, notifier, _ := newTestManager()
	st.loadSessionErr = fmt.Errorf("%w: sessions/channel-1.json", ErrCorruptData)

	if _, err := m.DeclareETA(context.Background(), "channel-1", "alice", t0.Add(time.Hour)); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData to surface, got %v", err)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != notify.EventCorruptData {
		t.Fatalf("expected corrupt-data alert, got %v", notifier.events)
	}
}

func TestHandleVoiceStateUpdate_RecordsArrival(t *testing.T) {
	m, _, dc, _, clk := newTestManager()
	ctx := context.Background()

	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))
	clk.Advance(5 * time.Minute)

	m.HandleVoiceStateUpdate(discord.VoiceStateEvent{
		GuildID:        "guild-1",
		UserID:         "alice",
		AfterChannelID: "vc-1",
	})

	record, err := m.GetStats(ctx, "alice")
	if err != nil {
		t.Fatalf("expected arrival via voice to update stats, got %v", err)
	}
	if record.OnTime != 1 {
		t.Fatalf("expected one on-time arrival, got %+v", record)
	}
	if len(dc.sendCalls) != 1 || !strings.Contains(dc.sendCalls[0].content, "via voice") {
		t.Fatalf("expected voice arrival announcement, got %v", dc.sendCalls)
	}
}

func TestHandleVoiceStateUpdate_IgnoresOtherGuildAndBots(t *testing.T) {
	m, _, dc, _, _ := newTestManager()
	ctx := context.Background()
	_, _ = m.DeclareETA(ctx, "channel-1", "alice", t0.Add(15*time.Minute))

	m.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "other-guild", UserID: "alice", AfterChannelID: "vc-1"})
	m.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", UserID: "alice", UserIsBot: true, AfterChannelID: "vc-1"})

	if len(dc.sendCalls) != 0 {
		t.Fatalf("expected no announcements, got %v", dc.sendCalls)
	}
	pending, err := m.GetStatus(ctx, "channel-1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected eta to remain pending, got %v %v", pending, err)
	}
}
