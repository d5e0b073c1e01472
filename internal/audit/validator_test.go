package audit_test

import (
	"math"
	"testing"
	"time"

	"github.com/streamguard/streamguard/internal/audit"
	"github.com/streamguard/streamguard/internal/model"
)

func TestAlertValidator_Validate_Success(t *testing.T) {
	v := audit.New(audit.DefaultBounds(), nil, nil)
	item := &model.AlertItem{UserID: 101, IPAddress: "10.0.0.1", Score: 15, Severity: model.SeveritySuspicious, Timestamp: time.Now()}

	if err := v.Validate(item); err != nil {
		t.Fatalf("expected a well-formed alert to validate, got %v", err)
	}
	if item.DecisionHash == "" {
		t.Fatal("expected DecisionHash to be set")
	}
	if item.ParentHash != "" {
		t.Fatalf("expected empty ParentHash for the first alert in the chain, got %q", item.ParentHash)
	}
}

func TestAlertValidator_Validate_SeverityOutOfRange(t *testing.T) {
	v := audit.New(audit.Bounds{SeverityMin: 0, SeverityMax: 2, SkewTolerance: time.Second}, nil, nil)
	item := &model.AlertItem{UserID: 101, Score: 15, Severity: model.Severity(5), Timestamp: time.Now()}

	err := v.Validate(item)
	if err == nil {
		t.Fatal("expected severity out of configured bounds to be rejected")
	}
	var violation *audit.Violation
	if violation, _ = err.(*audit.Violation); violation == nil || violation.Type != audit.ViolationSeverityRange {
		t.Fatalf("expected ViolationSeverityRange, got %v", err)
	}
}

func TestAlertValidator_Validate_ScoreInvalid(t *testing.T) {
	cases := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1}
	for _, score := range cases {
		v := audit.New(audit.DefaultBounds(), nil, nil)
		item := &model.AlertItem{UserID: 101, Score: score, Severity: model.SeveritySuspicious, Timestamp: time.Now()}
		err := v.Validate(item)
		if err == nil {
			t.Fatalf("expected score %v to be rejected", score)
		}
		if violation, _ := err.(*audit.Violation); violation == nil || violation.Type != audit.ViolationScoreInvalid {
			t.Fatalf("expected ViolationScoreInvalid for score %v, got %v", score, err)
		}
	}
}

func TestAlertValidator_Validate_NonMonotonic(t *testing.T) {
	v := audit.New(audit.Bounds{SeverityMin: 0, SeverityMax: 3, SkewTolerance: 5 * time.Second}, nil, nil)
	base := time.Now()

	first := &model.AlertItem{UserID: 1, Score: 15, Severity: model.SeveritySuspicious, Timestamp: base}
	if err := v.Validate(first); err != nil {
		t.Fatalf("expected first alert to validate, got %v", err)
	}

	withinSkew := &model.AlertItem{UserID: 2, Score: 15, Severity: model.SeveritySuspicious, Timestamp: base.Add(-3 * time.Second)}
	if err := v.Validate(withinSkew); err != nil {
		t.Fatalf("expected alert within skew tolerance to validate, got %v", err)
	}

	beyondSkew := &model.AlertItem{UserID: 3, Score: 15, Severity: model.SeveritySuspicious, Timestamp: base.Add(-10 * time.Second)}
	err := v.Validate(beyondSkew)
	if err == nil {
		t.Fatal("expected alert beyond skew tolerance to be rejected as non-monotonic")
	}
	if violation, _ := err.(*audit.Violation); violation == nil || violation.Type != audit.ViolationNonMonotonic {
		t.Fatalf("expected ViolationNonMonotonic, got %v", err)
	}
}

func TestAlertValidator_HashChain(t *testing.T) {
	v := audit.New(audit.DefaultBounds(), nil, nil)
	base := time.Now()

	first := &model.AlertItem{UserID: 1, Score: 15, Severity: model.SeveritySuspicious, Timestamp: base}
	second := &model.AlertItem{UserID: 2, Score: 25, Severity: model.SeverityHigh, Timestamp: base.Add(time.Second)}

	if err := v.Validate(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.Validate(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ParentHash != first.DecisionHash {
		t.Fatalf("expected second.ParentHash (%s) to equal first.DecisionHash (%s)", second.ParentHash, first.DecisionHash)
	}
	if first.DecisionHash == second.DecisionHash {
		t.Fatal("expected distinct hashes for distinct alerts")
	}
}

func TestAlertValidator_Stats(t *testing.T) {
	v := audit.New(audit.DefaultBounds(), nil, nil)
	good := &model.AlertItem{UserID: 1, Score: 15, Severity: model.SeveritySuspicious, Timestamp: time.Now()}
	bad := &model.AlertItem{UserID: 1, Score: math.NaN(), Severity: model.SeveritySuspicious, Timestamp: time.Now()}

	_ = v.Validate(good)
	_ = v.Validate(bad)
	_ = v.Validate(bad)

	stats := v.Stats()
	if stats.Verified != 1 {
		t.Fatalf("expected 1 verified, got %d", stats.Verified)
	}
	if stats.Rejected != 2 {
		t.Fatalf("expected 2 rejected, got %d", stats.Rejected)
	}
}
