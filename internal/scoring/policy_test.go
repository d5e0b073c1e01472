package scoring_test

import (
	"testing"

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/scoring"
)

func TestScoreToSeverity_StepPoints(t *testing.T) {
	thresholds := scoring.DefaultThresholds()
	cases := []struct {
		score float64
		want  model.Severity
	}{
		{0, model.SeverityNormal},
		{10.99, model.SeverityNormal},
		{11, model.SeveritySuspicious},
		{20.99, model.SeveritySuspicious},
		{21, model.SeverityHigh},
		{30.99, model.SeverityHigh},
		{31, model.SeverityCritical},
		{100, model.SeverityCritical},
	}
	for _, c := range cases {
		got := scoring.ScoreToSeverity(c.score, thresholds)
		if got != c.want {
			t.Errorf("ScoreToSeverity(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestAdditivePolicy_UserScore_Monotonic(t *testing.T) {
	p := scoring.NewAdditivePolicy(scoring.DefaultWeights())

	base := scoring.EntityStatsView{FailedAttempts: 1, ResourceCount: 1, IPCount: 1}
	higher := scoring.EntityStatsView{FailedAttempts: 2, ResourceCount: 1, IPCount: 1}

	if p.UserScore(higher) < p.UserScore(base) {
		t.Fatalf("increasing failed_attempts must not decrease score: base=%v higher=%v",
			p.UserScore(base), p.UserScore(higher))
	}
}

func TestAdditivePolicy_IPScore_CrossesSuspiciousAtThreshold(t *testing.T) {
	p := scoring.NewAdditivePolicy(scoring.DefaultWeights())
	thresholds := scoring.DefaultThresholds()

	atThreshold := p.IPScore(scoring.IPStatsView{FailedAttempts: 5})
	belowThreshold := p.IPScore(scoring.IPStatsView{FailedAttempts: 4})

	if scoring.ScoreToSeverity(atThreshold, thresholds) < model.SeveritySuspicious {
		t.Fatalf("failed_attempts=5 (THRESH_FAILED_IP) must reach severity >= SUSPICIOUS, got score %v", atThreshold)
	}
	if belowThreshold >= atThreshold {
		t.Fatalf("score at failed_attempts=4 must be lower than at 5: got %v >= %v", belowThreshold, atThreshold)
	}
}

func TestAdditivePolicy_NewAdditivePolicy_PanicsOnNegativeWeight(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for negative weight")
		}
	}()
	scoring.NewAdditivePolicy(scoring.Weights{FailedAttempts: -1})
}

func TestRegistry_DuplicateRegister_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering a duplicate policy name")
		}
	}()
	scoring.Register(scoring.NewAdditivePolicy(scoring.DefaultWeights()))
}

func TestRegistry_AdditiveIsRegisteredByDefault(t *testing.T) {
	p, err := scoring.Get("additive")
	if err != nil {
		t.Fatalf("expected additive policy registered via init(), got error: %v", err)
	}
	if p.Name() != "additive" {
		t.Fatalf("expected name additive, got %s", p.Name())
	}
}

func TestRegistry_Get_UnknownPolicy(t *testing.T) {
	if _, err := scoring.Get("does-not-exist"); err == nil {
		t.Fatal("expected error for unregistered policy name")
	}
}
