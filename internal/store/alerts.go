// Package store — alerts.go
//
// push_alert / pop_alerts_batch (spec §4.5): the bounded, lossy queue
// between the Analyzer and the Alert Sink, plus a separate "last N alerts"
// ring (RecentAlerts, SPEC_FULL.md §7) that every accepted push also
// writes to, so draining the queue does not empty it.
package store

import (
	"go.uber.org/zap"

	"github.com/streamguard/streamguard/internal/model"
)

// PushAlert enqueues an alert for the Alert Sink. If the queue is at
// capacity the alert is dropped and counted rather than blocking the
// Analyzer — a full Alert Sink must never stall scoring. Acquires Mu
// internally; call with nothing held.
func (s *Store) PushAlert(item model.AlertItem) bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.PushAlertLocked(item)
}

// PushAlertLocked is PushAlert for a caller that already holds Mu — the
// Analyzer's evaluation sweep stays inside one critical section from
// expiry through alert emission, so it calls this instead of PushAlert.
func (s *Store) PushAlertLocked(item model.AlertItem) bool {
	if s.alertCount == alertRingCap {
		s.totalAlertsDropped++
		if s.metrics != nil {
			s.metrics.AlertsDroppedTotal.Inc()
		}
		if s.zlog != nil {
			s.zlog.Warn("alert queue full, dropping alert",
				zap.Int64("user_id", item.UserID),
				zap.String("ip", item.IPAddress))
		}
		return false
	}

	idx := (s.alertHead + s.alertCount) % alertRingCap
	s.alerts[idx] = item
	s.alertCount++
	s.totalAlertsEmitted++
	s.pushRecentLocked(item)
	s.NewAlert.Signal()

	if s.metrics != nil {
		s.metrics.AlertsEmittedTotal.Inc()
		s.metrics.AlertQueueDepth.Set(float64(s.alertCount))
	}
	return true
}

// PopAlertsBatchBlocking waits until at least one alert is queued or the
// Analyzer has finished and the queue is empty, then drains and returns
// everything queued. The returned bool is true when the Analyzer is done
// and there is nothing left to drain — the Alert Sink's signal to exit.
// Acquires Mu internally.
func (s *Store) PopAlertsBatchBlocking() ([]model.AlertItem, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	for s.alertCount == 0 && !s.analyzerDone {
		s.NewAlert.Wait()
	}
	if s.alertCount == 0 {
		return nil, true
	}
	batch := s.drainAlertsLocked()
	if s.metrics != nil {
		s.metrics.AlertQueueDepth.Set(0)
	}
	return batch, false
}

// PopAlertsBatch drains whatever is currently queued without waiting.
// Acquires Mu internally.
func (s *Store) PopAlertsBatch() []model.AlertItem {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	batch := s.drainAlertsLocked()
	if s.metrics != nil {
		s.metrics.AlertQueueDepth.Set(0)
	}
	return batch
}

func (s *Store) drainAlertsLocked() []model.AlertItem {
	if s.alertCount == 0 {
		return nil
	}
	batch := make([]model.AlertItem, s.alertCount)
	for i := 0; i < s.alertCount; i++ {
		batch[i] = s.alerts[(s.alertHead+i)%alertRingCap]
	}
	s.alertHead = 0
	s.alertCount = 0
	return batch
}

// pushRecentLocked records item into the bounded "last N alerts" ring.
// Caller must hold Mu.
func (s *Store) pushRecentLocked(item model.AlertItem) {
	idx := (s.recentHead + s.recentCount) % recentRingCap
	s.recent[idx] = item
	if s.recentCount < recentRingCap {
		s.recentCount++
	} else {
		s.recentHead = (s.recentHead + 1) % recentRingCap
	}
}

// RecentAlerts returns up to n of the most recently emitted alerts,
// newest first. Acquires Mu internally.
func (s *Store) RecentAlerts(n int) []model.AlertItem {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if n > s.recentCount {
		n = s.recentCount
	}
	out := make([]model.AlertItem, n)
	for i := 0; i < n; i++ {
		idx := (s.recentHead + s.recentCount - 1 - i + recentRingCap) % recentRingCap
		out[i] = s.recent[idx]
	}
	return out
}
