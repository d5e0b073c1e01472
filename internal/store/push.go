// Package store — push.go
//
// push_log (spec §4.1): the Ingestion adapter's entire critical section —
// insert, roll into stats, signal — in one lock acquisition.
package store

import (
	"github.com/streamguard/streamguard/internal/model"
)

// PushLog inserts a newly-parsed entry at the head of the window, folds it
// into the user/IP rollups, and wakes the Analyzer. Acquires Mu
// internally; call with nothing held.
func (s *Store) PushLog(e *model.LogEntry) {
	s.Mu.Lock()
	s.logList.PushFront(e)
	s.logCount++
	s.totalLogsIngested++
	s.AddLogToStatsLocked(e)
	depth := s.logCount
	s.NewLog.Signal()
	s.Mu.Unlock()

	if s.metrics != nil {
		s.metrics.LogsIngestedTotal.Inc()
		s.metrics.WindowDepth.Set(float64(depth))
	}
}
