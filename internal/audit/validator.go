// Package audit — validator.go
//
// AlertValidator checks every AlertItem before the Analyzer hands it to
// Store.PushAlert, and hash-chains accepted alerts so the ledger they land
// in (internal/storage) is tamper-evident. Grounded on the teacher's
// internal/governance/constitutional.go bounds-check-and-hash-chain shape,
// rewritten in plain domain terms — this is not a containment-decision
// gate, just an integrity check on outgoing alerts (SPEC_FULL.md §4).
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/observability"
)

// ViolationType categorizes why an alert was rejected.
type ViolationType string

const (
	ViolationSeverityRange  ViolationType = "severity_out_of_range"
	ViolationScoreInvalid   ViolationType = "score_nan_or_inf_or_negative"
	ViolationNonMonotonic   ViolationType = "timestamp_non_monotonic"
	ViolationMissingSubject ViolationType = "missing_subject"
)

// Violation describes one rejected alert.
type Violation struct {
	Type      ViolationType
	Message   string
	Timestamp time.Time
}

func (v *Violation) Error() string {
	return fmt.Sprintf("alert rejected [%s]: %s", v.Type, v.Message)
}

// Bounds holds the acceptance bounds the validator enforces.
type Bounds struct {
	SeverityMin uint8
	SeverityMax uint8
	// SkewTolerance is how far a new alert's timestamp may trail behind
	// the previous one before it is rejected as non-monotonic.
	SkewTolerance time.Duration
}

// DefaultBounds returns the reference acceptance bounds.
func DefaultBounds() Bounds {
	return Bounds{
		SeverityMin:   uint8(model.SeverityNormal),
		SeverityMax:   uint8(model.SeverityCritical),
		SkewTolerance: 5 * time.Second,
	}
}

// Stats is a point-in-time snapshot of validator activity.
type Stats struct {
	Verified int64
	Rejected int64
}

// AlertValidator enforces Bounds on every alert and maintains the hash
// chain. Safe for concurrent use.
type AlertValidator struct {
	mu            sync.Mutex
	bounds        Bounds
	lastTimestamp time.Time
	lastHash      string
	verified      int64
	rejected      int64
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// New builds an AlertValidator with the given bounds. metrics and logger
// may both be nil.
func New(bounds Bounds, metrics *observability.Metrics, logger *zap.Logger) *AlertValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertValidator{bounds: bounds, metrics: metrics, logger: logger}
}

// Validate checks item against the configured bounds and, if it passes,
// sets item.DecisionHash and item.ParentHash in place, chaining it to the
// previously accepted alert. Returns a *Violation (also logged, never
// panics) if the alert is rejected — the caller drops it rather than
// enqueueing it.
func (v *AlertValidator) Validate(item *model.AlertItem) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkBounds(item); err != nil {
		return v.reject(err)
	}
	if err := v.checkMonotonic(item.Timestamp); err != nil {
		return v.reject(err)
	}

	hash := v.computeHash(item)
	item.ParentHash = v.lastHash
	item.DecisionHash = hash
	v.lastHash = hash
	v.lastTimestamp = item.Timestamp
	v.verified++

	v.logger.Debug("alert validated",
		zap.Int64("user_id", item.UserID),
		zap.String("ip", item.IPAddress),
		zap.String("hash", hash[:16]))
	return nil
}

func (v *AlertValidator) checkBounds(item *model.AlertItem) error {
	sev := uint8(item.Severity)
	if sev < v.bounds.SeverityMin || sev > v.bounds.SeverityMax {
		return &Violation{
			Type:      ViolationSeverityRange,
			Message:   fmt.Sprintf("severity %d outside [%d,%d]", sev, v.bounds.SeverityMin, v.bounds.SeverityMax),
			Timestamp: time.Now(),
		}
	}
	if math.IsNaN(item.Score) || math.IsInf(item.Score, 0) || item.Score < 0 {
		return &Violation{
			Type:      ViolationScoreInvalid,
			Message:   fmt.Sprintf("score %v is invalid", item.Score),
			Timestamp: time.Now(),
		}
	}
	if !item.IsIPLevel() && item.UserID < 0 {
		return &Violation{
			Type:      ViolationMissingSubject,
			Message:   "alert has neither a user nor an IP subject",
			Timestamp: time.Now(),
		}
	}
	return nil
}

func (v *AlertValidator) checkMonotonic(ts time.Time) error {
	if v.lastTimestamp.IsZero() {
		return nil
	}
	if ts.Before(v.lastTimestamp.Add(-v.bounds.SkewTolerance)) {
		return &Violation{
			Type:      ViolationNonMonotonic,
			Message:   fmt.Sprintf("timestamp %s trails previous %s by more than %s", ts, v.lastTimestamp, v.bounds.SkewTolerance),
			Timestamp: time.Now(),
		}
	}
	return nil
}

// computeHash produces a canonical SHA-256 hash over the alert's
// immutable fields, chained to the previous hash.
func (v *AlertValidator) computeHash(item *model.AlertItem) string {
	canonical := map[string]interface{}{
		"user_id":   item.UserID,
		"ip":        item.IPAddress,
		"score":     fmt.Sprintf("%.8f", item.Score),
		"severity":  uint8(item.Severity),
		"timestamp": item.Timestamp.UnixNano(),
		"parent":    v.lastHash,
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (v *AlertValidator) reject(err error) error {
	v.rejected++
	if v.metrics != nil {
		v.metrics.AlertsRejectedTotal.Inc()
	}
	violation, _ := err.(*Violation)
	if violation != nil {
		v.logger.Warn("alert rejected by integrity validator",
			zap.String("type", string(violation.Type)),
			zap.String("message", violation.Message),
			zap.Int64("total_rejected", v.rejected))
	}
	return err
}

// Stats returns current validator activity counters.
func (v *AlertValidator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Stats{Verified: v.verified, Rejected: v.rejected}
}
