package store_test

import (
	"testing"
	"time"

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/store"
)

func newTestStore(window time.Duration) *store.Store {
	return store.New(window, nil, nil)
}

func TestStore_PushAndExpire_RoundTrip(t *testing.T) {
	s := newTestStore(300 * time.Second)
	now := time.Now()

	e := &model.LogEntry{
		Timestamp:  now.Add(-301 * time.Second),
		UserID:     101,
		IPAddress:  "10.0.0.1",
		EventType:  model.EventLogin,
		ResourceID: model.NoResource,
		Status:     model.StatusFailed,
	}
	s.PushLog(e)

	s.Mu.Lock()
	u, ok := s.LookupUserLocked(101)
	if !ok {
		t.Fatal("expected user 101 to be tracked after push")
	}
	if u.FailedAttempts != 1 {
		t.Fatalf("expected failed_attempts=1, got %d", u.FailedAttempts)
	}
	removed := s.ExpireOldLogsLocked(now)
	s.Mu.Unlock()

	if removed != 1 {
		t.Fatalf("expected 1 entry expired, got %d", removed)
	}

	s.Mu.Lock()
	u, ok = s.LookupUserLocked(101)
	s.Mu.Unlock()
	if !ok {
		t.Fatal("expired entry should leave the user present until the removal check runs")
	}
	if !u.IsEmpty() {
		t.Fatalf("expected counters to return to zero after expiry, got %+v", u)
	}
}

func TestStore_ExpireBoundary(t *testing.T) {
	s := newTestStore(300 * time.Second)
	now := time.Now()

	inWindow := &model.LogEntry{
		Timestamp: now.Add(-300 * time.Second), UserID: 1, IPAddress: "1.1.1.1",
		EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusSuccess,
	}
	expired := &model.LogEntry{
		Timestamp: now.Add(-301 * time.Second), UserID: 2, IPAddress: "2.2.2.2",
		EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusSuccess,
	}
	s.PushLog(expired)
	s.PushLog(inWindow)

	s.Mu.Lock()
	removed := s.ExpireOldLogsLocked(now)
	count := s.LogCountLocked()
	s.Mu.Unlock()

	if removed != 1 {
		t.Fatalf("expected exactly 1 expired entry (timestamp=now-301), got %d", removed)
	}
	if count != 1 {
		t.Fatalf("expected 1 entry left in window (timestamp=now-300), got %d", count)
	}
}

func TestStore_RemoveUserIfEmptyLocked_RequiresUntouchedSweep(t *testing.T) {
	s := newTestStore(300 * time.Second)
	now := time.Now()

	e := &model.LogEntry{
		Timestamp: now.Add(-301 * time.Second), UserID: 101, IPAddress: "10.0.0.1",
		EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusFailed,
	}
	s.PushLog(e)

	s.Mu.Lock()
	s.ExpireOldLogsLocked(now) // touches the user again via RemoveLogFromStatsLocked
	removedFirst := s.RemoveUserIfEmptyLocked(101)
	s.Mu.Unlock()
	if removedFirst {
		t.Fatal("user touched during this sweep must survive one more sweep before removal")
	}

	s.Mu.Lock()
	_, stillTracked := s.LookupUserLocked(101)
	removedSecond := s.RemoveUserIfEmptyLocked(101)
	s.Mu.Unlock()
	if !stillTracked {
		t.Fatal("user should still be tracked between the two removal checks")
	}
	if !removedSecond {
		t.Fatal("user untouched since the last removal check should now be removed")
	}

	s.Mu.Lock()
	_, ok := s.LookupUserLocked(101)
	s.Mu.Unlock()
	if ok {
		t.Fatal("user should no longer be tracked after the second removal check")
	}
}

func TestStore_PushAlert_OverflowDropsAndCounts(t *testing.T) {
	s := newTestStore(300 * time.Second)
	accepted := 0
	for i := 0; i < 1100; i++ {
		if s.PushAlert(model.AlertItem{UserID: int64(i), Severity: model.SeveritySuspicious, Score: 15}) {
			accepted++
		}
	}
	if accepted != 1024 {
		t.Fatalf("expected exactly 1024 accepted alerts (ring capacity), got %d", accepted)
	}

	s.Mu.Lock()
	totals := s.TotalsLocked()
	s.Mu.Unlock()
	if totals.AlertsDropped != 1100-1024 {
		t.Fatalf("expected %d dropped alerts, got %d", 1100-1024, totals.AlertsDropped)
	}
}

func TestStore_RecentAlerts_NewestFirst(t *testing.T) {
	s := newTestStore(300 * time.Second)
	for i := 0; i < 5; i++ {
		s.PushAlert(model.AlertItem{UserID: int64(i), Score: float64(i)})
	}
	recent := s.RecentAlerts(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent alerts, got %d", len(recent))
	}
	if recent[0].UserID != 4 || recent[1].UserID != 3 || recent[2].UserID != 2 {
		t.Fatalf("expected newest-first order [4,3,2], got [%d,%d,%d]",
			recent[0].UserID, recent[1].UserID, recent[2].UserID)
	}
}

func TestStore_FailedAttempts_RequiresLoginEventType(t *testing.T) {
	s := newTestStore(300 * time.Second)
	now := time.Now()

	nonLoginFailed := &model.LogEntry{
		Timestamp: now, UserID: 9, IPAddress: "7.7.7.7",
		EventType: model.EventFileAccess, ResourceID: "doc1", Status: model.StatusFailed,
	}
	loginFailed := &model.LogEntry{
		Timestamp: now, UserID: 9, IPAddress: "7.7.7.7",
		EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusFailed,
	}

	s.Mu.Lock()
	s.AddLogToStatsLocked(nonLoginFailed)
	u, _ := s.LookupUserLocked(9)
	if u.FailedAttempts != 0 {
		t.Fatalf("expected a FAILED non-LOGIN event not to count as a failed attempt, got %d", u.FailedAttempts)
	}
	s.IPMu.Lock()
	ip, _ := s.LookupIPLocked("7.7.7.7")
	if ip.FailedAttempts != 0 {
		t.Fatalf("expected a FAILED non-LOGIN event not to count as a failed IP attempt, got %d", ip.FailedAttempts)
	}
	s.IPMu.Unlock()

	s.AddLogToStatsLocked(loginFailed)
	if u.FailedAttempts != 1 {
		t.Fatalf("expected a FAILED LOGIN event to count as a failed attempt, got %d", u.FailedAttempts)
	}

	s.RemoveLogFromStatsLocked(nonLoginFailed)
	if u.FailedAttempts != 1 {
		t.Fatalf("expected removing the non-LOGIN FAILED event to leave failed_attempts unchanged, got %d", u.FailedAttempts)
	}
	s.RemoveLogFromStatsLocked(loginFailed)
	if u.FailedAttempts != 0 {
		t.Fatalf("expected removing the LOGIN FAILED event to bring failed_attempts back to 0, got %d", u.FailedAttempts)
	}
	s.Mu.Unlock()
}

func TestStore_AddRemoveLogFromStats_IsExactInverse(t *testing.T) {
	s := newTestStore(300 * time.Second)
	now := time.Now()

	entries := []*model.LogEntry{
		{Timestamp: now, UserID: 7, IPAddress: "5.5.5.5", EventType: model.EventFileAccess, ResourceID: "doc1", Status: model.StatusSuccess},
		{Timestamp: now, UserID: 7, IPAddress: "5.5.5.5", EventType: model.EventFileAccess, ResourceID: "doc2", Status: model.StatusSuccess},
		{Timestamp: now, UserID: 7, IPAddress: "6.6.6.6", EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusFailed},
	}

	s.Mu.Lock()
	for _, e := range entries {
		s.AddLogToStatsLocked(e)
	}
	u, _ := s.LookupUserLocked(7)
	if u.FailedAttempts != 1 || u.ResourceCount() != 2 || u.IPCount() != 2 {
		t.Fatalf("unexpected rollup after adds: %+v", u)
	}
	for _, e := range entries {
		s.RemoveLogFromStatsLocked(e)
	}
	if !u.IsEmpty() {
		t.Fatalf("expected rollup to return to zero after removing every add, got %+v", u)
	}
	s.Mu.Unlock()
}
