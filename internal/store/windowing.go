// Package store — windowing.go
//
// add_log_to_stats / remove_log_from_stats (spec §4.2): the O(1) rollup
// maintenance that keeps EntityStats and IPStats in sync with the log
// list as entries enter and leave the window. Every operation here is the
// exact inverse of its counterpart — removing a log undoes precisely what
// adding it did, which is what makes repeated add/expire cycles stable
// rather than drifting.
package store

import "github.com/streamguard/streamguard/internal/model"

// AddLogToStatsLocked folds one newly-ingested entry into its user's and
// IP's rollups. Caller must hold Mu; this takes IPMu nested inside it.
func (s *Store) AddLogToStatsLocked(e *model.LogEntry) {
	u := s.GetOrCreateUserLocked(e.UserID)
	if e.EventType == model.EventLogin && e.Status == model.StatusFailed {
		u.FailedAttempts++
	}
	if e.HasResource() {
		incResourceRef(u, e.ResourceID)
	}
	incIPRef(u, e.IPAddress)
	u.Events.Inc(e.EventType)

	s.IPMu.Lock()
	ip := s.GetOrCreateIPLocked(e.IPAddress)
	if e.EventType == model.EventLogin && e.Status == model.StatusFailed {
		ip.FailedAttempts++
	}
	ip.Events.Inc(e.EventType)
	if ip.WindowStart.IsZero() || e.Timestamp.Before(ip.WindowStart) {
		ip.WindowStart = e.Timestamp
	}
	s.IPMu.Unlock()
}

// RemoveLogFromStatsLocked undoes the effect of AddLogToStatsLocked for an
// entry leaving the window through expiry. Caller must hold Mu; this takes
// IPMu nested inside it.
//
// It does not delete now-empty entities from the index — that decision
// belongs to the Analyzer's evaluation sweep (RemoveUserIfEmptyLocked /
// RemoveIPIfEmptyLocked), which also has to account for whether the
// entity was touched again since.
func (s *Store) RemoveLogFromStatsLocked(e *model.LogEntry) {
	if u, ok := s.LookupUserLocked(e.UserID); ok {
		if e.EventType == model.EventLogin && e.Status == model.StatusFailed && u.FailedAttempts > 0 {
			u.FailedAttempts--
		}
		if e.HasResource() {
			decResourceRef(u, e.ResourceID)
		}
		decIPRef(u, e.IPAddress)
		u.Events.Dec(e.EventType)
		s.touchedUsers[e.UserID] = struct{}{}
	}

	s.IPMu.Lock()
	if ip, ok := s.LookupIPLocked(e.IPAddress); ok {
		if e.EventType == model.EventLogin && e.Status == model.StatusFailed && ip.FailedAttempts > 0 {
			ip.FailedAttempts--
		}
		ip.Events.Dec(e.EventType)
		s.touchedIPs[e.IPAddress] = struct{}{}
	}
	s.IPMu.Unlock()
}

func incResourceRef(u *model.EntityStats, name string) {
	for i := range u.Resources {
		if u.Resources[i].Name == name {
			u.Resources[i].RefCount++
			return
		}
	}
	u.Resources = append(u.Resources, model.ResourceRef{Name: name, RefCount: 1})
}

func decResourceRef(u *model.EntityStats, name string) {
	for i := range u.Resources {
		if u.Resources[i].Name != name {
			continue
		}
		u.Resources[i].RefCount--
		if u.Resources[i].RefCount <= 0 {
			u.Resources = append(u.Resources[:i], u.Resources[i+1:]...)
		}
		return
	}
}

func incIPRef(u *model.EntityStats, ip string) {
	for i := range u.IPs {
		if u.IPs[i].IP == ip {
			u.IPs[i].RefCount++
			return
		}
	}
	u.IPs = append(u.IPs, model.IPRef{IP: ip, RefCount: 1})
}

func decIPRef(u *model.EntityStats, ip string) {
	for i := range u.IPs {
		if u.IPs[i].IP != ip {
			continue
		}
		u.IPs[i].RefCount--
		if u.IPs[i].RefCount <= 0 {
			u.IPs = append(u.IPs[:i], u.IPs[i+1:]...)
		}
		return
	}
}
