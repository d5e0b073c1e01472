package analyzer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/streamguard/streamguard/internal/analyzer"
	"github.com/streamguard/streamguard/internal/audit"
	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/scoring"
	"github.com/streamguard/streamguard/internal/store"
)

func newAnalyzer(s *store.Store) *analyzer.Analyzer {
	return analyzer.New(
		s,
		scoring.NewAdditivePolicy(scoring.DefaultWeights()),
		scoring.DefaultThresholds(),
		audit.New(audit.DefaultBounds(), nil, nil),
		nil,
		nil,
		2*time.Millisecond,
	)
}

// runToCompletion seeds the store with entries, marks ingestion done, and
// runs the Analyzer loop until it exits on its own (window drained) or a
// generous timeout elapses as a backstop.
func runToCompletion(t *testing.T, s *store.Store, entries []*model.LogEntry) []model.AlertItem {
	t.Helper()
	for _, e := range entries {
		s.PushLog(e)
	}
	s.SignalIngestionDone()

	a := newAnalyzer(s)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	a.Run(ctx)

	var all []model.AlertItem
	for {
		batch := s.PopAlertsBatch()
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}
	return all
}

func TestAnalyzer_BruteForce_TriggersUserAndIPAlert(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	now := time.Now()

	var entries []*model.LogEntry
	for i := 0; i < 80; i++ {
		entries = append(entries, &model.LogEntry{
			Timestamp: now, UserID: 101, IPAddress: "10.0.0.1",
			EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusFailed,
		})
	}

	alerts := runToCompletion(t, s, entries)

	var sawUser, sawIP bool
	for _, a := range alerts {
		if a.UserID == 101 {
			sawUser = true
		}
		if a.IsIPLevel() && a.IPAddress == "10.0.0.1" {
			sawIP = true
		}
		if a.Severity < model.SeveritySuspicious {
			t.Fatalf("expected every emitted alert to be at least SUSPICIOUS, got %v", a.Severity)
		}
	}
	if !sawUser {
		t.Fatal("expected a user-level alert for the brute-force user")
	}
	if !sawIP {
		t.Fatal("expected an IP-level alert for the brute-force source IP")
	}
}

func TestAnalyzer_ResourceCrawler_TriggersUserAlertOnly(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	now := time.Now()

	var entries []*model.LogEntry
	for i := 0; i < 80; i++ {
		entries = append(entries, &model.LogEntry{
			Timestamp: now, UserID: 102, IPAddress: "10.0.0.2",
			EventType: model.EventFileAccess, ResourceID: fmt.Sprintf("doc-%d", i), Status: model.StatusSuccess,
		})
	}

	alerts := runToCompletion(t, s, entries)

	var sawUser, sawIP bool
	for _, a := range alerts {
		if a.UserID == 102 {
			sawUser = true
		}
		if a.IsIPLevel() {
			sawIP = true
		}
	}
	if !sawUser {
		t.Fatal("expected a user-level alert once resource_count crosses THRESH_RESOURCES")
	}
	if sawIP {
		t.Fatal("expected no IP-level alert: every access succeeded, so the IP's failed_attempts stayed 0")
	}
}

func TestAnalyzer_IPHopper_TriggersUserAlertNoPerIPAlerts(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	now := time.Now()

	var entries []*model.LogEntry
	for i := 0; i < 60; i++ {
		entries = append(entries, &model.LogEntry{
			Timestamp: now, UserID: 103, IPAddress: fmt.Sprintf("10.1.0.%d", i),
			EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusFailed,
		})
	}

	alerts := runToCompletion(t, s, entries)

	var sawUser, sawIP bool
	for _, a := range alerts {
		if a.UserID == 103 {
			sawUser = true
		}
		if a.IsIPLevel() {
			sawIP = true
		}
	}
	if !sawUser {
		t.Fatal("expected a user-level alert once ip_count crosses THRESH_IPS")
	}
	if sawIP {
		t.Fatal("expected no per-IP alerts: each hopped-to IP only carries 1 failed attempt, below THRESH_FAILED_IP")
	}
}

func TestAnalyzer_QuietPeriod_NoAlerts(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	now := time.Now()

	var entries []*model.LogEntry
	for u := int64(0); u < 20; u++ {
		for i := 0; i < 30; i++ {
			status := model.StatusSuccess
			// roughly 1 in 20 events fails, well under THRESH_FAILED_IP per user.
			if i%20 == 0 {
				status = model.StatusFailed
			}
			entries = append(entries, &model.LogEntry{
				Timestamp: now, UserID: u, IPAddress: fmt.Sprintf("10.2.0.%d", u),
				EventType: model.EventLogin, ResourceID: model.NoResource, Status: status,
			})
		}
	}

	alerts := runToCompletion(t, s, entries)
	if len(alerts) != 0 {
		t.Fatalf("expected zero alerts during a quiet period, got %d", len(alerts))
	}
}

func TestAnalyzer_Run_ExitsOnContextCancellationEvenMidWindow(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	s.PushLog(&model.LogEntry{
		Timestamp: time.Now(), UserID: 1, IPAddress: "1.1.1.1",
		EventType: model.EventLogin, ResourceID: model.NoResource, Status: model.StatusSuccess,
	})
	// Ingestion never signals done: the window stays non-empty forever,
	// so only ctx cancellation can end the loop.

	a := newAnalyzer(s)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected Run to exit shortly after its context was cancelled")
	}

	s.Mu.Lock()
	analyzerDone := s.AnalyzerDoneLocked()
	s.Mu.Unlock()
	if !analyzerDone {
		t.Fatal("expected Run to signal analyzer done even when exiting via context cancellation")
	}
}
