package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
)

func newThresholdFixture(t *testing.T, failClosed bool) (*ThresholdValidator, *fixture) {
	t.Helper()
	f := newFixture(t)
	v := NewThresholdValidator(f.users, f.investments, f.assessments, failClosed, testLogger())
	return v, f
}

func (f *fixture) seedAssessment(t *testing.T, investmentID, borrowerID string, score int) {
	t.Helper()
	level := LevelForScore(score)
	now := time.Now()
	err := f.assessments.Create(context.Background(), &Assessment{
		ID:               "ra_" + investmentID,
		InvestmentID:     investmentID,
		BorrowerID:       borrowerID,
		Version:          AssessmentVersion,
		OverallRiskScore: score,
		RiskLevel:        level,
		AssessedAt:       now,
		AssessedBy:       AssessedByAlgorithm,
		NextReassessment: now.Add(ReassessAfter(level)),
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
}

func TestValidateAllowsWithoutHistory(t *testing.T) {
	v, f := newThresholdFixture(t, false)
	f.seedBorrower(t, "usr_1", nil)

	rejection, err := v.Validate(context.Background(), "usr_1", 100000)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rejection != nil {
		t.Errorf("borrower with no history rejected: %+v", rejection)
	}
}

func TestValidateAllowsUnknownBorrower(t *testing.T) {
	v, _ := newThresholdFixture(t, false)
	rejection, err := v.Validate(context.Background(), "usr_missing", 100000)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rejection != nil {
		t.Errorf("unknown borrower rejected: %+v", rejection)
	}
}

func TestValidateAllowsNonPositiveAmount(t *testing.T) {
	v, _ := newThresholdFixture(t, false)
	for _, amount := range []float64{0, -500} {
		rejection, err := v.Validate(context.Background(), "usr_1", amount)
		if err != nil || rejection != nil {
			t.Errorf("amount %v: rejection=%v err=%v, want allow", amount, rejection, err)
		}
	}
}

func TestValidateVeryHighRiskCap(t *testing.T) {
	v, f := newThresholdFixture(t, false)
	f.seedBorrower(t, "usr_1", nil)
	f.seedAssessment(t, "inv_1", "usr_1", 10) // very_high

	// Exactly at the cap passes.
	rejection, err := v.Validate(context.Background(), "usr_1", 5000)
	if err != nil {
		t.Fatalf("Validate at cap: %v", err)
	}
	if rejection != nil {
		t.Errorf("amount 5000 rejected for very_high borrower: %+v", rejection)
	}

	// One dollar over is rejected.
	rejection, err = v.Validate(context.Background(), "usr_1", 5001)
	if err != nil {
		t.Fatalf("Validate over cap: %v", err)
	}
	if rejection == nil {
		t.Fatal("amount 5001 allowed for very_high borrower")
	}
	if rejection.Error != "Investment amount exceeds risk threshold" {
		t.Errorf("error %q unexpected", rejection.Error)
	}
	if rejection.SuggestedMaxAmount != 5000 {
		t.Errorf("suggestedMaxAmount %v, want 5000", rejection.SuggestedMaxAmount)
	}
	if rejection.RiskLevel != LevelVeryHigh {
		t.Errorf("riskLevel %s, want very_high", rejection.RiskLevel)
	}
	if rejection.Rule() != "very_high_risk_cap" {
		t.Errorf("rule %q, want very_high_risk_cap", rejection.Rule())
	}
}

func TestValidateHighRiskCap(t *testing.T) {
	v, f := newThresholdFixture(t, false)
	f.seedBorrower(t, "usr_1", nil)
	f.seedAssessment(t, "inv_1", "usr_1", 30) // high

	rejection, err := v.Validate(context.Background(), "usr_1", 15000)
	if err != nil || rejection != nil {
		t.Errorf("amount 15000: rejection=%v err=%v, want allow", rejection, err)
	}

	rejection, err = v.Validate(context.Background(), "usr_1", 15001)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rejection == nil {
		t.Fatal("amount 15001 allowed for high-risk borrower")
	}
	if rejection.SuggestedMaxAmount != 15000 {
		t.Errorf("suggestedMaxAmount %v, want 15000", rejection.SuggestedMaxAmount)
	}
}

func TestValidateLowAverageCap(t *testing.T) {
	v, f := newThresholdFixture(t, false)
	f.seedBorrower(t, "usr_1", nil)
	// Medium-level latest so the per-level caps don't trigger, but a
	// low-scoring history drags the average under 30.
	f.seedAssessment(t, "inv_1", "usr_1", 10)
	f.seedAssessment(t, "inv_2", "usr_1", 20)
	time.Sleep(time.Millisecond)
	f.seedAssessment(t, "inv_3", "usr_1", 50)

	rejection, err := v.Validate(context.Background(), "usr_1", 25001)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rejection == nil {
		t.Fatal("low-average borrower allowed above the cap")
	}
	if rejection.AverageRiskScore != 27 {
		t.Errorf("averageRiskScore %d, want 27", rejection.AverageRiskScore)
	}
	if rejection.SuggestedMaxAmount != 25000 {
		t.Errorf("suggestedMaxAmount %v, want 25000", rejection.SuggestedMaxAmount)
	}

	rejection, err = v.Validate(context.Background(), "usr_1", 25000)
	if err != nil || rejection != nil {
		t.Errorf("amount 25000: rejection=%v err=%v, want allow", rejection, err)
	}
}

func TestValidateTotalDebtCeiling(t *testing.T) {
	v, f := newThresholdFixture(t, false)
	f.seedBorrower(t, "usr_1", nil)
	f.seedAssessment(t, "inv_1", "usr_1", 70) // healthy borrower
	f.seedInvestment(t, "inv_active1", "usr_1", 30000, ledger.StatusActive)
	f.seedInvestment(t, "inv_active2", "usr_1", 10000, ledger.StatusActive)
	f.seedInvestment(t, "inv_done", "usr_1", 50000, ledger.StatusCompleted) // ignored

	// 40000 active debt + 10000 = 50000, exactly at the ceiling: allowed.
	rejection, err := v.Validate(context.Background(), "usr_1", 10000)
	if err != nil || rejection != nil {
		t.Errorf("new total 50000: rejection=%v err=%v, want allow", rejection, err)
	}

	rejection, err = v.Validate(context.Background(), "usr_1", 10001)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rejection == nil {
		t.Fatal("new total 50001 allowed")
	}
	if rejection.Error != "Total debt limit exceeded" {
		t.Errorf("error %q unexpected", rejection.Error)
	}
	if rejection.CurrentDebt == nil || *rejection.CurrentDebt != 40000 {
		t.Errorf("currentDebt %v, want 40000", rejection.CurrentDebt)
	}
	if rejection.NewTotal == nil || *rejection.NewTotal != 50001 {
		t.Errorf("newTotal %v, want 50001", rejection.NewTotal)
	}
	if rejection.AvailableCredit == nil || *rejection.AvailableCredit != 10000 {
		t.Errorf("availableCredit %v, want 10000", rejection.AvailableCredit)
	}
}

func TestValidateAvailableCreditNeverNegative(t *testing.T) {
	v, f := newThresholdFixture(t, false)
	f.seedBorrower(t, "usr_1", nil)
	f.seedAssessment(t, "inv_1", "usr_1", 70)
	f.seedInvestment(t, "inv_active", "usr_1", 60000, ledger.StatusActive)

	rejection, err := v.Validate(context.Background(), "usr_1", 100)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rejection == nil {
		t.Fatal("over-extended borrower allowed")
	}
	if rejection.AvailableCredit == nil || *rejection.AvailableCredit != 0 {
		t.Errorf("availableCredit %v, want 0", rejection.AvailableCredit)
	}
}

// failingAssessmentStore simulates a storage outage for posture tests.
type failingAssessmentStore struct {
	Store
}

func (failingAssessmentStore) ListActiveByBorrower(ctx context.Context, borrowerID string, limit int) ([]*Assessment, error) {
	return nil, errors.New("store down")
}

func TestValidateFailOpen(t *testing.T) {
	f := newFixture(t)
	f.seedBorrower(t, "usr_1", nil)
	v := NewThresholdValidator(f.users, f.investments, failingAssessmentStore{f.assessments}, false, testLogger())

	rejection, err := v.Validate(context.Background(), "usr_1", 100000)
	if err != nil {
		t.Fatalf("fail-open Validate returned error: %v", err)
	}
	if rejection != nil {
		t.Errorf("fail-open rejected: %+v", rejection)
	}
}

func TestValidateFailClosed(t *testing.T) {
	f := newFixture(t)
	f.seedBorrower(t, "usr_1", nil)
	v := NewThresholdValidator(f.users, f.investments, failingAssessmentStore{f.assessments}, true, testLogger())

	_, err := v.Validate(context.Background(), "usr_1", 100000)
	if !errors.Is(err, ErrValidationUnavailable) {
		t.Fatalf("fail-closed err = %v, want ErrValidationUnavailable", err)
	}
}
