package scoring_test

import (
	"math"
	"testing"

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/scoring"
)

func TestMahalanobisPolicy_NilBaseline_ScoresZero(t *testing.T) {
	p := scoring.NewMahalanobisPolicy(scoring.NilBaselineStore{}, 0.3)
	if got := p.UserScore(scoring.EntityStatsView{FailedAttempts: 50}); got != 0 {
		t.Fatalf("expected 0 with no baseline trained yet, got %v", got)
	}
}

func TestShannonEntropy_UniformVsDegenerate(t *testing.T) {
	uniform := model.EventCounts{1, 1, 1, 1, 1}
	degenerate := model.EventCounts{5, 0, 0, 0, 0}
	empty := model.EventCounts{}

	if h := scoring.ShannonEntropy(empty); h != 0 {
		t.Fatalf("expected 0 entropy for empty distribution, got %v", h)
	}
	if h := scoring.ShannonEntropy(degenerate); h != 0 {
		t.Fatalf("expected 0 entropy for single-type distribution, got %v", h)
	}
	hUniform := scoring.ShannonEntropy(uniform)
	if hUniform <= 0 {
		t.Fatalf("expected positive entropy for uniform distribution, got %v", hUniform)
	}
}

func TestInvertCovariance_Identity(t *testing.T) {
	identity := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	inv := scoring.InvertCovariance(identity)
	if inv == nil {
		t.Fatal("expected identity matrix to invert")
	}
	for i := range identity {
		for j := range identity[i] {
			if math.Abs(inv[i][j]-identity[i][j]) > 1e-9 {
				t.Fatalf("inverse of identity should be identity, got %v at (%d,%d)", inv[i][j], i, j)
			}
		}
	}
}

func TestInvertCovariance_Singular_ReturnsNil(t *testing.T) {
	singular := [][]float64{
		{1, 1},
		{1, 1},
	}
	if inv := scoring.InvertCovariance(singular); inv != nil {
		t.Fatalf("expected nil for a singular (non-positive-definite) matrix, got %v", inv)
	}
}

type fakeBaselineStore struct {
	user *scoring.Baseline
}

func (f fakeBaselineStore) UserBaseline() *scoring.Baseline { return f.user }
func (f fakeBaselineStore) IPBaseline() *scoring.Baseline   { return nil }

func TestMahalanobisPolicy_FallsBackToEuclideanWhenSingular(t *testing.T) {
	baseline := &scoring.Baseline{
		MeanVector:       []float64{0, 0, 0},
		CovarianceMatrix: [][]float64{{1, 1, 0}, {1, 1, 0}, {0, 0, 1}}, // singular
		InvCovariance:    nil,
		BaselineEntropy:  0,
	}
	p := scoring.NewMahalanobisPolicy(fakeBaselineStore{user: baseline}, 0)
	got := p.UserScore(scoring.EntityStatsView{FailedAttempts: 3, ResourceCount: 4, IPCount: 0})
	want := 3.0*3.0 + 4.0*4.0 // squared euclidean distance from origin
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected euclidean fallback score %v, got %v", want, got)
	}
}
