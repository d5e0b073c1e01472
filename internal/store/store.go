// Package store — store.go
//
// The shared state at the center of the pipeline: the in-window log list,
// the per-user and per-IP rollups, and the bounded alert queue. Every field
// here is reachable from more than one goroutine, so every field here is
// guarded by one of two locks.
//
// Lock discipline (spec §5, load-bearing — do not reorder):
//
//	Mu    guards the log list, the user index, the alert queue and the
//	      two control-flags (ingestionDone, analyzerDone).
//	IPMu  guards the IP index exclusively.
//
// A goroutine that needs both never acquires them in the opposite order:
// Mu is always taken first, IPMu nested inside it. No method here takes
// IPMu and then blocks waiting on Mu.
//
// Methods are split into two families by naming convention:
//
//	PushLog, PushAlert, SignalIngestionDone, ...   acquire their lock(s)
//	                                                internally; call them
//	                                                with nothing held.
//	*Locked                                        require the matching
//	                                                lock already held by
//	                                                the caller; this is
//	                                                how the Analyzer's
//	                                                multi-step sweep stays
//	                                                inside one critical
//	                                                section.
package store

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/observability"
)

// alertRingCap is the fixed capacity of the alert queue (spec §3).
const alertRingCap = 1024

// recentRingCap is the capacity of the "last N alerts" ring read by
// RecentAlerts. It is a separate ring from the alert queue, written on
// every alert the queue accepts (SPEC_FULL.md §7).
const recentRingCap = 1024

// Store holds all pipeline state shared between the Ingestion, Analyzer and
// Alert Sink goroutines.
type Store struct {
	Mu       sync.Mutex
	NewLog   *sync.Cond
	NewAlert *sync.Cond

	Window time.Duration

	logList  *list.List // front = newest, back = oldest
	logCount int

	users        map[int64]*model.EntityStats
	touchedUsers map[int64]struct{}

	IPMu         sync.Mutex
	ips          map[string]*model.IPStats
	touchedIPs   map[string]struct{}

	alerts        []model.AlertItem
	alertHead     int
	alertCount    int
	recent        []model.AlertItem
	recentHead    int
	recentCount   int

	ingestionDone bool
	analyzerDone  bool

	totalLogsIngested  uint64
	totalLogsExpired   uint64
	totalAlertsEmitted uint64
	totalAlertsDropped uint64

	metrics *observability.Metrics
	zlog    *zap.Logger
}

// New builds an empty Store. window is the sliding evaluation window
// (spec §3, WINDOW_SECONDS); metrics and zlog may be nil in tests.
func New(window time.Duration, metrics *observability.Metrics, zlog *zap.Logger) *Store {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	s := &Store{
		Window:       window,
		logList:      list.New(),
		users:        make(map[int64]*model.EntityStats),
		touchedUsers: make(map[int64]struct{}),
		ips:          make(map[string]*model.IPStats),
		touchedIPs:   make(map[string]struct{}),
		alerts:       make([]model.AlertItem, alertRingCap),
		recent:       make([]model.AlertItem, recentRingCap),
		metrics:      metrics,
		zlog:         zlog,
	}
	s.NewLog = sync.NewCond(&s.Mu)
	s.NewAlert = sync.NewCond(&s.Mu)
	return s
}

// IngestionDoneLocked reports the ingestion-finished flag. Caller must
// hold Mu.
func (s *Store) IngestionDoneLocked() bool { return s.ingestionDone }

// AnalyzerDoneLocked reports the analyzer-finished flag. Caller must hold
// Mu.
func (s *Store) AnalyzerDoneLocked() bool { return s.analyzerDone }

// SignalIngestionDone marks ingestion as finished and wakes any Analyzer
// blocked waiting for new logs. Acquires Mu internally.
func (s *Store) SignalIngestionDone() {
	s.Mu.Lock()
	s.ingestionDone = true
	s.NewLog.Broadcast()
	s.Mu.Unlock()
}

// SignalAnalyzerDone marks the Analyzer as finished and wakes the Alert
// Sink for its final drain. Acquires Mu internally.
func (s *Store) SignalAnalyzerDone() {
	s.Mu.Lock()
	s.analyzerDone = true
	s.NewAlert.Broadcast()
	s.Mu.Unlock()
}

// LogCountLocked returns the number of entries currently in the window.
// Caller must hold Mu.
func (s *Store) LogCountLocked() int { return s.logCount }

// Totals is a point-in-time snapshot of the pipeline's aggregate counters,
// used by the dashboard's final summary.
type Totals struct {
	LogsIngested  uint64
	LogsExpired   uint64
	AlertsEmitted uint64
	AlertsDropped uint64
	ActiveUsers   int
	ActiveIPs     int
}

// TotalsLocked requires Mu held; it additionally takes IPMu internally
// (nested, per the lock order) to read the IP index size.
func (s *Store) TotalsLocked() Totals {
	s.IPMu.Lock()
	ipCount := len(s.ips)
	s.IPMu.Unlock()
	return Totals{
		LogsIngested:  s.totalLogsIngested,
		LogsExpired:   s.totalLogsExpired,
		AlertsEmitted: s.totalAlertsEmitted,
		AlertsDropped: s.totalAlertsDropped,
		ActiveUsers:   len(s.users),
		ActiveIPs:     ipCount,
	}
}
