// Package scoring — mahalanobis_policy.go
//
// MahalanobisPolicy is the optional alternative scoring policy named by
// SPEC_FULL.md §3. It treats [failed_attempts, resource_count, ip_count]
// as a feature vector and scores it against a class-level baseline (one
// for users, one for IPs) rather than the spec's reference additive
// weights.
package scoring

// BaselineStore is the narrow interface MahalanobisPolicy needs from
// internal/storage, kept separate so scoring never imports storage
// directly (storage imports scoring's Baseline type instead).
type BaselineStore interface {
	UserBaseline() *Baseline
	IPBaseline() *Baseline
}

// MahalanobisPolicy scores against baselines supplied by a BaselineStore.
// Safe for concurrent use: it holds no mutable state of its own, only a
// reference to the store, which owns its own synchronization.
type MahalanobisPolicy struct {
	store  BaselineStore
	engine *engine
}

// NewMahalanobisPolicy builds a MahalanobisPolicy. entropyWeight must be
// in [0,1].
func NewMahalanobisPolicy(store BaselineStore, entropyWeight float64) *MahalanobisPolicy {
	return &MahalanobisPolicy{store: store, engine: newEngine(entropyWeight)}
}

func (p *MahalanobisPolicy) Name() string { return "mahalanobis" }

func (p *MahalanobisPolicy) UserScore(v EntityStatsView) float64 {
	x := []float64{float64(v.FailedAttempts), float64(v.ResourceCount), float64(v.IPCount)}
	score, err := p.engine.score(x, p.store.UserBaseline(), ShannonEntropy(v.Events))
	if err != nil {
		return 0
	}
	return score
}

func (p *MahalanobisPolicy) IPScore(v IPStatsView) float64 {
	x := []float64{float64(v.FailedAttempts), 0, 0}
	baseline := p.store.IPBaseline()
	if baseline != nil && len(baseline.MeanVector) != 3 {
		return 0
	}
	score, err := p.engine.score(x, baseline, ShannonEntropy(v.Events))
	if err != nil {
		return 0
	}
	return score
}

// NilBaselineStore is a BaselineStore that has never seen training data —
// every score is 0 until a real store (e.g. a storage.DB with a baseline
// written by PutUserBaseline / PutIPBaseline) is wired in. Useful for tests and for running without
// internal/storage configured.
type NilBaselineStore struct{}

func (NilBaselineStore) UserBaseline() *Baseline { return nil }
func (NilBaselineStore) IPBaseline() *Baseline   { return nil }
