// Package scoring — mahalanobis.go
//
// Mahalanobis-distance-plus-entropy scoring engine, consolidated from the
// teacher's internal/anomaly/engine.go, mahalanobis.go and entropy.go into
// one coherent implementation (those three files independently declared
// Baseline/Engine/Score, which would not have compiled together as one
// package — this keeps the math, drops the duplication).
//
//	A = (x - μ)ᵀ Σ⁻¹ (x - μ) + wₑ |ΔH|
//
// x is the feature vector [failed_attempts, resource_count, ip_count];
// Σ⁻¹ is the precomputed inverse covariance of a per-entity-class
// baseline; ΔH is the entropy delta between the entity's current and
// baseline event-type distribution. Falls back to squared Euclidean
// distance when the covariance is singular.
package scoring

import (
	"fmt"
	"math"

	"github.com/streamguard/streamguard/internal/model"
)

// Baseline holds the statistical parameters a MahalanobisPolicy scores
// against. Persisted via internal/storage.BaselineRecord.
type Baseline struct {
	MeanVector       []float64
	CovarianceMatrix [][]float64
	InvCovariance    [][]float64 // nil if CovarianceMatrix is singular
	BaselineEntropy  float64
	SampleCount      int
}

// ShannonEntropy computes H = -Σ p(eᵢ) log₂ p(eᵢ) over counts, in bits.
// Returns 0 for an empty or degenerate (single-type) distribution.
func ShannonEntropy(counts model.EventCounts) float64 {
	var total uint64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	fTotal := float64(total)
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / fTotal
		h -= p * math.Log2(p)
	}
	return h
}

// engine applies the Mahalanobis+entropy formula. It holds no per-call
// state beyond the entropy weight, so one instance is shared by every
// MahalanobisPolicy evaluation.
type engine struct {
	entropyWeight float64
}

func newEngine(entropyWeight float64) *engine {
	if entropyWeight < 0 || entropyWeight > 1 {
		panic(fmt.Sprintf("scoring: entropyWeight %f out of range [0,1]", entropyWeight))
	}
	return &engine{entropyWeight: entropyWeight}
}

// score computes A for feature vector x against baseline, given the
// entity's current entropy. Returns 0 if baseline is nil (no data yet).
func (e *engine) score(x []float64, baseline *Baseline, currentEntropy float64) (float64, error) {
	if baseline == nil {
		return 0, nil
	}
	n := len(baseline.MeanVector)
	if len(x) != n {
		return 0, fmt.Errorf("scoring: feature dimension mismatch: x has %d, baseline has %d", len(x), n)
	}

	diff := make([]float64, n)
	for i := range diff {
		diff[i] = x[i] - baseline.MeanVector[i]
	}

	var mahal float64
	if baseline.InvCovariance != nil {
		mahal = mahalanobisSquared(diff, baseline.InvCovariance)
	} else {
		mahal = euclideanSquared(diff)
	}

	deltaH := math.Abs(currentEntropy - baseline.BaselineEntropy)
	return mahal + e.entropyWeight*deltaH, nil
}

// mahalanobisSquared computes vᵀ M v. Complexity O(n²).
func mahalanobisSquared(v []float64, m [][]float64) float64 {
	n := len(v)
	mv := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			mv[i] += m[i][j] * v[j]
		}
	}
	var result float64
	for i := 0; i < n; i++ {
		result += v[i] * mv[i]
	}
	return result
}

// euclideanSquared computes the squared Euclidean norm of v.
func euclideanSquared(v []float64) float64 {
	var sum float64
	for _, vi := range v {
		sum += vi * vi
	}
	return sum
}

// InvertCovariance inverts a symmetric positive-definite matrix via
// Cholesky decomposition (LLᵀ = Σ). Returns nil if the matrix is singular
// or not positive-definite. Complexity O(n³); call only on baseline
// update, never on the scoring hot path.
func InvertCovariance(cov [][]float64) [][]float64 {
	n := len(cov)
	if n == 0 {
		return nil
	}
	l := choleskyDecompose(cov)
	if l == nil {
		return nil
	}
	linv := invertLowerTriangular(l)
	if linv == nil {
		return nil
	}
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				inv[i][j] += linv[k][i] * linv[k][j]
			}
		}
	}
	return inv
}

func choleskyDecompose(a [][]float64) [][]float64 {
	n := len(a)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil
				}
				l[i][j] = math.Sqrt(sum)
			} else {
				if l[j][j] == 0 {
					return nil
				}
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l
}

func invertLowerTriangular(l [][]float64) [][]float64 {
	n := len(l)
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
	}
	for j := 0; j < n; j++ {
		if l[j][j] == 0 {
			return nil
		}
		inv[j][j] = 1.0 / l[j][j]
		for i := j + 1; i < n; i++ {
			var sum float64
			for k := j; k < i; k++ {
				sum -= l[i][k] * inv[k][j]
			}
			inv[i][j] = sum / l[i][i]
		}
	}
	return inv
}
