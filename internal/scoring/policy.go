// Package scoring — policy.go
//
// compute_score / compute_ip_score (spec §4.4) formalized as a pluggable
// policy, grounded on the teacher's contrib/scorer.go plugin interface.
// AdditivePolicy is the spec's required reference implementation and the
// only policy registered by default; other policies (see mahalanobis.go)
// are optional alternatives that callers construct directly.
package scoring

import (
	"fmt"
	"sync"

	"github.com/streamguard/streamguard/internal/model"
)

// EntityStatsView is the read-only slice of EntityStats a policy needs.
// Kept separate from model.EntityStats so policies never see (or can
// mutate) Store-owned fields they have no business touching.
type EntityStatsView struct {
	FailedAttempts int
	ResourceCount  int
	IPCount        int
	Events         model.EventCounts
}

// IPStatsView is the read-only slice of IPStats a policy needs.
type IPStatsView struct {
	FailedAttempts int
	Events         model.EventCounts
}

// ViewOfUser builds the view a Policy consumes from a live EntityStats.
func ViewOfUser(u *model.EntityStats) EntityStatsView {
	return EntityStatsView{
		FailedAttempts: u.FailedAttempts,
		ResourceCount:  u.ResourceCount(),
		IPCount:        u.IPCount(),
		Events:         u.Events,
	}
}

// ViewOfIP builds the view a Policy consumes from a live IPStats.
func ViewOfIP(ip *model.IPStats) IPStatsView {
	return IPStatsView{FailedAttempts: ip.FailedAttempts, Events: ip.Events}
}

// Policy computes a non-negative anomaly score for a user or an IP. A
// policy must be goroutine-safe, since a registered instance is shared by
// every caller of Get. Within the pipeline the Analyzer's single
// evaluation goroutine is the only caller.
type Policy interface {
	Name() string
	UserScore(EntityStatsView) float64
	IPScore(IPStatsView) float64
}

// Thresholds holds the severity score boundaries (spec §4.4). Evaluation
// is sequential, highest threshold first — the same shape as the
// teacher's escalation.TargetState.
type Thresholds struct {
	Suspicious float64
	High       float64
	Critical   float64
}

// DefaultThresholds returns the spec's reference severity step points.
func DefaultThresholds() Thresholds {
	return Thresholds{Suspicious: 11, High: 21, Critical: 31}
}

// ScoreToSeverity maps a score to a Severity by walking the thresholds
// from highest to lowest, exactly as escalation.TargetState walks its
// threshold table.
func ScoreToSeverity(score float64, t Thresholds) model.Severity {
	switch {
	case score >= t.Critical:
		return model.SeverityCritical
	case score >= t.High:
		return model.SeverityHigh
	case score >= t.Suspicious:
		return model.SeveritySuspicious
	default:
		return model.SeverityNormal
	}
}

// ─── Registry ───────────────────────────────────────────────────────────────
//
// Grounded on contrib.RegisterScorer / contrib.GetScorer / contrib.ListScorers.

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Policy)
)

// Register adds a policy to the registry under its Name(). Panics if a
// policy with the same name is already registered — call from init() in
// policy packages, same contract as contrib.RegisterScorer.
func Register(p Policy) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[p.Name()]; exists {
		panic(fmt.Sprintf("scoring: policy %q already registered", p.Name()))
	}
	registry[p.Name()] = p
}

// Get returns the registered policy with the given name.
func Get(name string) (Policy, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("scoring: policy %q not registered (available: %v)", name, listNames())
	}
	return p, nil
}

// List returns the names of all registered policies.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return listNames()
}

func listNames() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	return names
}
