// Package model — model.go
//
// Core data types shared across the streamguard pipeline: the parsed
// LogEntry, the per-user and per-IP rollups, and the AlertItem emitted by
// the analyzer. These are the types every other package in this module
// reads or writes under the Store's locks.

package model

import (
	"fmt"
	"time"
)

// EventType is one of the four recognised event categories.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventLogin
	EventFileAccess
	EventAPICall
	EventTransaction
)

// String returns the wire-format name for the event type.
func (e EventType) String() string {
	switch e {
	case EventLogin:
		return "LOGIN"
	case EventFileAccess:
		return "FILE_ACCESS"
	case EventAPICall:
		return "API_CALL"
	case EventTransaction:
		return "TRANSACTION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(e))
	}
}

// ParseEventType maps a wire-format token to an EventType.
// Returns (EventUnknown, false) for anything not in the recognised set.
func ParseEventType(s string) (EventType, bool) {
	switch s {
	case "LOGIN":
		return EventLogin, true
	case "FILE_ACCESS":
		return EventFileAccess, true
	case "API_CALL":
		return EventAPICall, true
	case "TRANSACTION":
		return EventTransaction, true
	default:
		return EventUnknown, false
	}
}

// StatusCode is the outcome of one event.
type StatusCode uint8

const (
	StatusUnknown StatusCode = iota
	StatusSuccess
	StatusFailed
)

// String returns the wire-format name for the status code.
func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// ParseStatusCode maps a wire-format token to a StatusCode.
func ParseStatusCode(s string) (StatusCode, bool) {
	switch s {
	case "SUCCESS":
		return StatusSuccess, true
	case "FAILED":
		return StatusFailed, true
	default:
		return StatusUnknown, false
	}
}

// NoResource is the sentinel resource_id meaning "no resource".
const NoResource = "-"

// Field size limits from the wire format (spec §6). Lines with longer
// fields are not rejected outright — they are truncated by the parser,
// matching the original C implementation's fixed-size buffers.
const (
	MaxIPLen         = 39
	MaxEventTypeLen  = 15
	MaxResourceIDLen = 31
	MaxStatusLen     = 15
)

// LogEntry is one parsed event. Owned exclusively by the Store's log
// list: created by ingestion, destroyed when expiry removes it.
type LogEntry struct {
	Timestamp  time.Time
	UserID     int64
	IPAddress  string
	EventType  EventType
	ResourceID string
	Status     StatusCode
}

// HasResource reports whether the entry references a concrete resource.
func (e *LogEntry) HasResource() bool {
	return e.ResourceID != "" && e.ResourceID != NoResource
}

// ResourceRef records one distinct resource a user has touched in the
// current window, and how many in-window events reference it.
type ResourceRef struct {
	Name     string
	RefCount int
}

// IPRef records one distinct source IP a user has used in the current
// window, and how many in-window events reference it.
type IPRef struct {
	IP       string
	RefCount int
}

// EventCounts tracks, per EventType, how many in-window events of that
// type an entity has generated. Feeds the Shannon-entropy term of the
// optional Mahalanobis scoring policy (SPEC_FULL.md §3); the reference
// additive policy does not use it.
type EventCounts [5]uint64

// Inc records one more event of type e.
func (c *EventCounts) Inc(e EventType) { c[e]++ }

// Dec undoes one Inc for event type e. No-op if already zero.
func (c *EventCounts) Dec(e EventType) {
	if c[e] > 0 {
		c[e]--
	}
}

// EntityStats is the rollup for one user_id within the active window.
// All access must happen under the Store's main mutex.
type EntityStats struct {
	UserID         int64
	FailedAttempts int
	Resources      []ResourceRef
	IPs            []IPRef
	Events         EventCounts

	CurrentScore   float64
	LastAlertScore float64
	LastAlertTime  time.Time
}

// ResourceCount returns the number of distinct resources currently
// referenced by this user.
func (s *EntityStats) ResourceCount() int { return len(s.Resources) }

// IPCount returns the number of distinct source IPs currently
// referenced by this user.
func (s *EntityStats) IPCount() int { return len(s.IPs) }

// IsEmpty reports whether every counter has returned to zero, making
// the entity a candidate for removal from the user index.
func (s *EntityStats) IsEmpty() bool {
	return s.FailedAttempts == 0 && len(s.Resources) == 0 && len(s.IPs) == 0
}

// RepresentativeIP returns an arbitrary IP from the user's current set —
// the first one stored, as spec §9 allows any deterministic choice — or
// "0.0.0.0" if the user currently has no tracked IPs.
func (s *EntityStats) RepresentativeIP() string {
	if len(s.IPs) == 0 {
		return "0.0.0.0"
	}
	return s.IPs[0].IP
}

// IPStats is the rollup for one source IP address within the active
// window. All access must happen under the Store's IP mutex.
type IPStats struct {
	IPAddress      string
	FailedAttempts int
	WindowStart    time.Time
	Events         EventCounts
	LastAlertScore float64
	LastAlertTime  time.Time
}

// IsEmpty reports whether the IP's counters have returned to zero.
func (s *IPStats) IsEmpty() bool {
	return s.FailedAttempts == 0
}

// Severity is an ordinal classification derived from a numeric score.
type Severity uint8

const (
	SeverityNormal Severity = iota
	SeveritySuspicious
	SeverityHigh
	SeverityCritical
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "NORMAL"
	case SeveritySuspicious:
		return "SUSPICIOUS"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// NoUser is the sentinel UserID meaning "this alert is IP-level, not
// attributable to a single user".
const NoUser int64 = -1

// AlertItem is a bounded-size record emitted by the Analyzer and
// consumed by the Alert Sink.
type AlertItem struct {
	UserID    int64 // model.NoUser for IP-level alerts
	IPAddress string
	Score     float64
	Severity  Severity
	Timestamp time.Time

	// DecisionHash and ParentHash are set by internal/audit before the
	// alert is accepted into the queue; they give the critical-alert
	// ledger tamper-evidence (SPEC_FULL.md §4).
	DecisionHash string
	ParentHash   string
}

// IsIPLevel reports whether this alert has no associated user.
func (a *AlertItem) IsIPLevel() bool { return a.UserID == NoUser }
