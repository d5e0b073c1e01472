// Package store — index.go
//
// get_or_create_user / get_or_create_ip and their lookup-only and
// removal counterparts (spec §4.1, §9).
//
// Spec §9 calls out a resurrection bug: a naive "look up, and create if
// absent" helper used for the empty-entity removal check will recreate the
// very entity the caller is about to delete. Every removal path here uses
// the lookup-only variant for exactly that reason — removal never calls
// GetOrCreate.
package store

import "github.com/streamguard/streamguard/internal/model"

// GetOrCreateUserLocked returns the EntityStats for userID, creating it if
// this is the first log seen for that user in the current window. Caller
// must hold Mu.
func (s *Store) GetOrCreateUserLocked(userID int64) *model.EntityStats {
	u, ok := s.users[userID]
	if !ok {
		u = &model.EntityStats{UserID: userID}
		s.users[userID] = u
	}
	s.touchedUsers[userID] = struct{}{}
	return u
}

// LookupUserLocked returns the EntityStats for userID without creating one.
// Caller must hold Mu.
func (s *Store) LookupUserLocked(userID int64) (*model.EntityStats, bool) {
	u, ok := s.users[userID]
	return u, ok
}

// UsersLocked returns the live user index for iteration (the Analyzer's
// evaluation sweep). Caller must hold Mu and must not mutate the returned
// map directly — use RemoveUserIfEmptyLocked.
func (s *Store) UsersLocked() map[int64]*model.EntityStats {
	return s.users
}

// RemoveUserIfEmptyLocked deletes userID from the user index if its
// counters are all zero and nothing has touched it since the last sweep's
// removal check ran. Caller must hold Mu. Returns true if removed.
//
// An entity touched during the window between sweeps survives one more
// sweep untouched before it is eligible for removal, so a user whose
// counters hit zero from an expiry that happens moments before this sweep
// is not deleted out from under a concurrent GetOrCreateUserLocked caller
// that is about to add to it again.
func (s *Store) RemoveUserIfEmptyLocked(userID int64) bool {
	u, ok := s.users[userID]
	if !ok {
		return false
	}
	_, touched := s.touchedUsers[userID]
	delete(s.touchedUsers, userID)
	if !u.IsEmpty() {
		return false
	}
	if touched {
		return false
	}
	delete(s.users, userID)
	return true
}

// GetOrCreateIPLocked returns the IPStats for addr, creating it if this is
// the first log seen from that address in the current window. Caller must
// hold IPMu.
func (s *Store) GetOrCreateIPLocked(addr string) *model.IPStats {
	ip, ok := s.ips[addr]
	if !ok {
		ip = &model.IPStats{IPAddress: addr}
		s.ips[addr] = ip
	}
	s.touchedIPs[addr] = struct{}{}
	return ip
}

// LookupIPLocked returns the IPStats for addr without creating one. Caller
// must hold IPMu.
func (s *Store) LookupIPLocked(addr string) (*model.IPStats, bool) {
	ip, ok := s.ips[addr]
	return ip, ok
}

// IPIndexLocked returns the live IP index for iteration. Caller must hold
// IPMu.
func (s *Store) IPIndexLocked() map[string]*model.IPStats {
	return s.ips
}

// RemoveIPIfEmptyLocked is the IP-index analog of RemoveUserIfEmptyLocked.
// Caller must hold IPMu.
func (s *Store) RemoveIPIfEmptyLocked(addr string) bool {
	ip, ok := s.ips[addr]
	if !ok {
		return false
	}
	_, touched := s.touchedIPs[addr]
	delete(s.touchedIPs, addr)
	if !ip.IsEmpty() {
		return false
	}
	if touched {
		return false
	}
	delete(s.ips, addr)
	return true
}
