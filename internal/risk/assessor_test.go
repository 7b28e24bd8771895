package risk

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	users       *directory.MemoryStore
	investments *ledger.MemoryStore
	assessments *MemoryStore
	sink        *notify.MemorySink
	assessor    *Assessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:       directory.NewMemoryStore(),
		investments: ledger.NewMemoryStore(),
		assessments: NewMemoryStore(),
		sink:        notify.NewMemorySink(),
	}
	f.assessor = NewAssessor(f.investments, f.users, f.assessments, f.sink, testLogger())
	return f
}

func (f *fixture) seedBorrower(t *testing.T, id string, mutate func(*directory.User)) {
	t.Helper()
	u := &directory.User{
		ID:        id,
		FirstName: "Test",
		LastName:  "Borrower",
		Email:     id + "@example.com",
		JoinedAt:  time.Now().AddDate(0, -6, 0),
	}
	if mutate != nil {
		mutate(u)
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed borrower: %v", err)
	}
}

func (f *fixture) seedInvestment(t *testing.T, id, borrowerID string, amount float64, status ledger.Status) {
	t.Helper()
	inv := &ledger.Investment{
		ID:             id,
		BorrowerID:     borrowerID,
		Amount:         amount,
		Purpose:        "Business",
		Description:    "Inventory purchase for a small retail business",
		DurationMonths: 12,
		Status:         status,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := f.investments.Create(context.Background(), inv); err != nil {
		t.Fatalf("seed investment: %v", err)
	}
}

func waitForNotifications(t *testing.T, sink *notify.MemorySink, want int) []*notify.Notification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := sink.Sent(); len(sent) >= want {
			return sent
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d notifications, got %d", want, len(sink.Sent()))
	return nil
}

func TestAssessCreatesActiveAssessment(t *testing.T) {
	f := newFixture(t)
	f.seedBorrower(t, "usr_1", nil)
	f.seedInvestment(t, "inv_1", "usr_1", 1000, ledger.StatusPending)

	a, err := f.assessor.Assess(context.Background(), "inv_1")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if a.OverallRiskScore < 0 || a.OverallRiskScore > 100 {
		t.Errorf("overall score %d out of range", a.OverallRiskScore)
	}
	if a.RiskLevel != LevelForScore(a.OverallRiskScore) {
		t.Errorf("level %s inconsistent with score %d", a.RiskLevel, a.OverallRiskScore)
	}
	if len(a.RiskFactors) != 18 {
		t.Errorf("got %d factors, want 18", len(a.RiskFactors))
	}
	if len(a.CategoryScores) != len(Categories) {
		t.Errorf("got %d categories, want %d", len(a.CategoryScores), len(Categories))
	}
	if len(a.Recommendations) == 0 {
		t.Error("no recommendations generated")
	}
	if a.Version != AssessmentVersion {
		t.Errorf("version %q, want %q", a.Version, AssessmentVersion)
	}
	if a.AssessedBy != AssessedByAlgorithm {
		t.Errorf("assessedBy %q, want algorithm", a.AssessedBy)
	}
	if !a.IsActive {
		t.Error("new assessment is not active")
	}
	wantNext := a.AssessedAt.Add(ReassessAfter(a.RiskLevel))
	if !a.NextReassessment.Equal(wantNext) {
		t.Errorf("nextReassessment %s, want %s", a.NextReassessment, wantNext)
	}
	if a.Metadata.Confidence < 0.5 || a.Metadata.Confidence > 1.0 {
		t.Errorf("confidence %v out of range", a.Metadata.Confidence)
	}

	stored, err := f.assessments.GetActive(context.Background(), "inv_1")
	if err != nil {
		t.Fatalf("GetActive after Assess: %v", err)
	}
	if stored.ID != a.ID {
		t.Errorf("stored active assessment %s, want %s", stored.ID, a.ID)
	}
}

func TestReassessDeactivatesPrior(t *testing.T) {
	f := newFixture(t)
	f.seedBorrower(t, "usr_1", nil)
	f.seedInvestment(t, "inv_1", "usr_1", 1000, ledger.StatusActive)

	first, err := f.assessor.Assess(context.Background(), "inv_1")
	if err != nil {
		t.Fatalf("first Assess: %v", err)
	}

	prev, cur, err := f.assessor.Reassess(context.Background(), "inv_1")
	if err != nil {
		t.Fatalf("Reassess: %v", err)
	}
	if prev == nil || prev.ID != first.ID {
		t.Fatalf("Reassess prev = %v, want first assessment", prev)
	}
	if cur.ID == first.ID {
		t.Error("reassessment reused the prior assessment ID")
	}

	// Exactly one active assessment survives.
	old, err := f.assessments.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Get prior: %v", err)
	}
	if old.IsActive {
		t.Error("prior assessment still active after reassessment")
	}
	if old.LastReassessment == nil {
		t.Error("prior assessment missing lastReassessment stamp")
	}
	active, err := f.assessments.GetActive(context.Background(), "inv_1")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.ID != cur.ID {
		t.Errorf("active assessment %s, want %s", active.ID, cur.ID)
	}
}

func TestAssessNotifiesBorrowerOnce(t *testing.T) {
	f := newFixture(t)
	f.seedBorrower(t, "usr_1", nil)
	f.seedInvestment(t, "inv_1", "usr_1", 1000, ledger.StatusPending)

	if _, err := f.assessor.Assess(context.Background(), "inv_1"); err != nil {
		t.Fatalf("Assess: %v", err)
	}

	sent := waitForNotifications(t, f.sink, 1)
	n := sent[0]
	if n.Type != notify.TypeAssessmentCompleted {
		t.Errorf("notification type %s, want %s", n.Type, notify.TypeAssessmentCompleted)
	}
	if n.Recipient != "usr_1" {
		t.Errorf("recipient %s, want usr_1", n.Recipient)
	}
	if n.Data["investmentId"] != "inv_1" {
		t.Errorf("data.investmentId = %v, want inv_1", n.Data["investmentId"])
	}
	if n.ActionURL != "/investments/inv_1#risk-assessment" {
		t.Errorf("actionUrl %q unexpected", n.ActionURL)
	}

	// A reassessment must not emit another completion notification.
	if _, _, err := f.assessor.Reassess(context.Background(), "inv_1"); err != nil {
		t.Fatalf("Reassess: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	completions := 0
	for _, n := range f.sink.Sent() {
		if n.Type == notify.TypeAssessmentCompleted {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("got %d completion notifications, want 1", completions)
	}
}

func TestAssessAlertsAdminsForHighRisk(t *testing.T) {
	f := newFixture(t)
	// Unverified new borrower with a default history scores deep in high risk.
	f.seedBorrower(t, "usr_risky", func(u *directory.User) {
		u.FirstName = ""
		u.LastName = ""
		u.Email = ""
		u.JoinedAt = time.Now().AddDate(0, 0, -1)
	})
	f.seedBorrower(t, "usr_admin", func(u *directory.User) {
		u.Admin = true
		u.VerificationStatus = directory.VerificationVerified
	})
	f.seedInvestment(t, "inv_old1", "usr_risky", 2000, ledger.StatusDefaulted)
	f.seedInvestment(t, "inv_old2", "usr_risky", 2000, ledger.StatusDefaulted)
	f.seedInvestment(t, "inv_old3", "usr_risky", 2000, ledger.StatusDefaulted)
	f.seedInvestment(t, "inv_old4", "usr_risky", 2000, ledger.StatusDefaulted)
	f.seedInvestment(t, "inv_new", "usr_risky", 20000, ledger.StatusPending)

	a, err := f.assessor.Assess(context.Background(), "inv_new")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.RiskLevel != LevelHigh && a.RiskLevel != LevelVeryHigh {
		t.Fatalf("expected high-risk result, got %s (score %d)", a.RiskLevel, a.OverallRiskScore)
	}

	sent := waitForNotifications(t, f.sink, 2)
	var alert *notify.Notification
	for _, n := range sent {
		if n.Type == notify.TypeHighRiskAlert {
			alert = n
		}
	}
	if alert == nil {
		t.Fatal("no high-risk admin alert sent")
	}
	if alert.Recipient != "usr_admin" {
		t.Errorf("alert recipient %s, want usr_admin", alert.Recipient)
	}
	if alert.Priority != notify.PriorityUrgent {
		t.Errorf("alert priority %s, want urgent", alert.Priority)
	}
}

func TestRecordOverrideAppendsAuditTrail(t *testing.T) {
	f := newFixture(t)
	f.seedBorrower(t, "usr_1", nil)
	f.seedInvestment(t, "inv_1", "usr_1", 1000, ledger.StatusPending)

	a, err := f.assessor.Assess(context.Background(), "inv_1")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	err = f.assessor.RecordOverride(context.Background(), a.ID, ManualOverride{
		Factor:        "verification_status",
		OriginalScore: 20,
		NewScore:      100,
		Reason:        "Verified out of band",
		OverriddenBy:  "usr_admin",
	})
	if err != nil {
		t.Fatalf("RecordOverride: %v", err)
	}

	stored, err := f.assessments.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.Overrides) != 1 {
		t.Fatalf("got %d overrides, want 1", len(stored.Overrides))
	}
	if stored.Overrides[0].OverriddenAt.IsZero() {
		t.Error("override missing timestamp")
	}
	// Recording an override never rescores the assessment.
	if stored.OverallRiskScore != a.OverallRiskScore {
		t.Errorf("override changed overall score %d → %d", a.OverallRiskScore, stored.OverallRiskScore)
	}
}

func TestRecordOverrideValidation(t *testing.T) {
	f := newFixture(t)
	err := f.assessor.RecordOverride(context.Background(), "ra_x", ManualOverride{Factor: "x"})
	if err == nil {
		t.Fatal("expected error for incomplete override")
	}
}

func TestSimilarInvestmentsExcludeSelf(t *testing.T) {
	f := newFixture(t)
	f.seedBorrower(t, "usr_1", nil)
	f.seedBorrower(t, "usr_2", nil)
	f.seedInvestment(t, "inv_target", "usr_1", 1000, ledger.StatusPending)
	f.seedInvestment(t, "inv_similar", "usr_2", 1100, ledger.StatusCompleted)
	f.seedInvestment(t, "inv_far", "usr_2", 9000, ledger.StatusCompleted)

	a, err := f.assessor.Assess(context.Background(), "inv_target")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	for _, sim := range a.Comparisons.SimilarInvestments {
		if sim.InvestmentID == "inv_target" {
			t.Error("similar investments include the investment under assessment")
		}
		if sim.InvestmentID == "inv_far" {
			t.Error("similar investments include an out-of-band amount")
		}
	}
	found := false
	for _, sim := range a.Comparisons.SimilarInvestments {
		if sim.InvestmentID == "inv_similar" {
			found = true
			if sim.Outcome != string(ledger.StatusCompleted) {
				t.Errorf("outcome %s, want completed", sim.Outcome)
			}
		}
	}
	if !found {
		t.Error("comparable investment missing from similar list")
	}
}
