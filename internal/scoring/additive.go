// Package scoring — additive.go
//
// AdditivePolicy is the spec's required reference scoring implementation
// (§4.4): a weighted sum of the window counters, monotonic in each input,
// calibrated so the default Thresholds are crossed at the score values
// spec §4.4 names.
package scoring

import "fmt"

// Weights holds the per-feature weight coefficients for AdditivePolicy.
// All weights must be non-negative; they need not sum to anything in
// particular, matching the teacher's escalation.Weights contract.
type Weights struct {
	FailedAttempts float64
	ResourceCount  float64
	IPCount        float64
}

// DefaultWeights returns the reference weight configuration.
func DefaultWeights() Weights {
	return Weights{
		FailedAttempts: 5.0,
		ResourceCount:  3.0,
		IPCount:        4.0,
	}
}

// AdditivePolicy computes score = sum of weight*counter over the tracked
// window counters. For IPs only FailedAttempts is meaningful, so IPScore
// uses the FailedAttempts weight alone.
type AdditivePolicy struct {
	Weights Weights
}

// NewAdditivePolicy builds an AdditivePolicy with the given weights.
// Panics if any weight is negative.
func NewAdditivePolicy(w Weights) *AdditivePolicy {
	if w.FailedAttempts < 0 || w.ResourceCount < 0 || w.IPCount < 0 {
		panic(fmt.Sprintf("scoring: negative weight in %+v", w))
	}
	return &AdditivePolicy{Weights: w}
}

func (p *AdditivePolicy) Name() string { return "additive" }

func (p *AdditivePolicy) UserScore(v EntityStatsView) float64 {
	return p.Weights.FailedAttempts*float64(v.FailedAttempts) +
		p.Weights.ResourceCount*float64(v.ResourceCount) +
		p.Weights.IPCount*float64(v.IPCount)
}

func (p *AdditivePolicy) IPScore(v IPStatsView) float64 {
	return p.Weights.FailedAttempts * float64(v.FailedAttempts)
}

func init() {
	Register(NewAdditivePolicy(DefaultWeights()))
}
