// Package store — expire.go
//
// expire_old_logs (spec §4.2), preserving original_source/window.c's
// single-critical-section shape (SPEC_FULL.md §7): each expired entry is
// unlinked and folded out of the rollups in the same lock acquisition
// that scans for it, rather than collected into a batch and freed after
// the lock is released.
package store

import (
	"time"

	"github.com/streamguard/streamguard/internal/model"
)

// ExpireOldLogsLocked walks the window from its oldest end, removing any
// entry older than s.Window relative to now, until it finds one still
// in-window or the list is empty. Caller must hold Mu. Returns the number
// of entries removed.
func (s *Store) ExpireOldLogsLocked(now time.Time) int {
	removed := 0
	for {
		back := s.logList.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*model.LogEntry)
		if now.Sub(entry.Timestamp) <= s.Window {
			break
		}
		s.logList.Remove(back)
		s.logCount--
		s.RemoveLogFromStatsLocked(entry)
		s.totalLogsExpired++
		removed++
	}
	if removed > 0 && s.metrics != nil {
		s.metrics.LogsExpiredTotal.Add(float64(removed))
		s.metrics.WindowDepth.Set(float64(s.logCount))
	}
	return removed
}
