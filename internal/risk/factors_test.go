package risk

import (
	"testing"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
)

func TestLevelForScoreBands(t *testing.T) {
	cases := []struct {
		score int
		want  Level
	}{
		{100, LevelVeryLow},
		{80, LevelVeryLow},
		{79, LevelLow},
		{65, LevelLow},
		{64, LevelMedium},
		{45, LevelMedium},
		{44, LevelHigh},
		{25, LevelHigh},
		{24, LevelVeryHigh},
		{0, LevelVeryHigh},
	}
	for _, tc := range cases {
		if got := LevelForScore(tc.score); got != tc.want {
			t.Errorf("LevelForScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestReassessAfterShrinksWithRisk(t *testing.T) {
	const day = 24 * time.Hour
	cases := []struct {
		level Level
		days  int
	}{
		{LevelVeryLow, 180},
		{LevelLow, 120},
		{LevelMedium, 90},
		{LevelHigh, 60},
		{LevelVeryHigh, 30},
	}
	for _, tc := range cases {
		if got := ReassessAfter(tc.level); got != time.Duration(tc.days)*day {
			t.Errorf("ReassessAfter(%s) = %s, want %d days", tc.level, got, tc.days)
		}
	}
}

func TestCategoryWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, name := range Categories {
		w, ok := CategoryWeights[name]
		if !ok {
			t.Fatalf("category %s has no weight", name)
		}
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("category weights sum to %v, want 1.0", sum)
	}
}

func TestClampScore(t *testing.T) {
	if got := clampScore(-10); got != 0 {
		t.Errorf("clampScore(-10) = %v, want 0", got)
	}
	if got := clampScore(150); got != 100 {
		t.Errorf("clampScore(150) = %v, want 100", got)
	}
	if got := clampScore(42.5); got != 42.5 {
		t.Errorf("clampScore(42.5) = %v, want 42.5", got)
	}
}

func TestAssessInvestmentAmount(t *testing.T) {
	history := []*ledger.Investment{
		{Amount: 1000}, {Amount: 1000},
	}
	cases := []struct {
		name   string
		amount float64
		hist   []*ledger.Investment
		want   float64
	}{
		{"no history", 5000, nil, 30},
		{"within usual range", 1100, history, 100},
		{"moderate increase", 1900, history, 80},
		{"large increase", 2900, history, 60},
		{"far above history", 5000, history, 30},
	}
	for _, tc := range cases {
		if got := assessInvestmentAmount(tc.amount, tc.hist); got != tc.want {
			t.Errorf("%s: assessInvestmentAmount(%v) = %v, want %v", tc.name, tc.amount, got, tc.want)
		}
	}
}

func TestAssessDebtLoad(t *testing.T) {
	cases := []struct {
		debt float64
		want float64
	}{
		{0, 100},
		{5000, 90},
		{15000, 70},
		{30000, 50},
		{30001, 20},
	}
	for _, tc := range cases {
		if got := assessDebtLoad(tc.debt); got != tc.want {
			t.Errorf("assessDebtLoad(%v) = %v, want %v", tc.debt, got, tc.want)
		}
	}
}

func TestAssessPurposeRisk(t *testing.T) {
	if got := assessPurposeRisk("Education"); got != 90 {
		t.Errorf("Education = %v, want 90", got)
	}
	if got := assessPurposeRisk("Travel"); got != 40 {
		t.Errorf("Travel = %v, want 40", got)
	}
	if got := assessPurposeRisk("Something Unmapped"); got != 30 {
		t.Errorf("unmapped purpose = %v, want 30", got)
	}
}

func TestAssessPurposeClarity(t *testing.T) {
	if got := assessPurposeClarity("", ""); got != 0 {
		t.Errorf("empty purpose and description = %v, want 0", got)
	}
	if got := assessPurposeClarity("Business", ""); got != 50 {
		t.Errorf("purpose only = %v, want 50", got)
	}
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	if got := assessPurposeClarity("Business", string(long)); got != 100 {
		t.Errorf("purpose plus long description = %v, want 100", got)
	}
}

func TestProfileCompleteness(t *testing.T) {
	full := &directory.User{
		FirstName:          "Ada",
		Email:              "ada@example.com",
		Location:           "London",
		Phone:              "+44 1234",
		VerificationStatus: directory.VerificationVerified,
	}
	if got := profileCompleteness(full); got != 100 {
		t.Errorf("complete profile = %v, want 100", got)
	}
	if got := profileCompleteness(&directory.User{}); got != 0 {
		t.Errorf("empty profile = %v, want 0", got)
	}
}

func TestConfidenceCapsAtOne(t *testing.T) {
	now := time.Now()
	s := &snapshot{
		Borrower: &directory.User{
			VerificationStatus: directory.VerificationVerified,
			MFAEnabled:         true,
			JoinedAt:           now.AddDate(-1, 0, 0),
		},
		Documents: []*directory.Document{{}, {}, {}},
		BorrowerInvestments: []*ledger.Investment{
			{Status: ledger.StatusCompleted},
		},
		Now: now,
	}
	if got := confidence(s); got != 1.0 {
		t.Errorf("full-evidence confidence = %v, want 1.0", got)
	}

	bare := &snapshot{
		Borrower: &directory.User{JoinedAt: now},
		Now:      now,
	}
	if got := confidence(bare); got != 0.5 {
		t.Errorf("no-evidence confidence = %v, want 0.5", got)
	}
}

func TestSimilarityScore(t *testing.T) {
	a := &ledger.Investment{Purpose: "Business", Amount: 1000, DurationMonths: 12}
	identical := &ledger.Investment{Purpose: "Business", Amount: 1000, DurationMonths: 12}
	if got := similarityScore(a, identical); got != 100 {
		t.Errorf("identical investments = %d, want 100", got)
	}

	different := &ledger.Investment{Purpose: "Travel", Amount: 2000, DurationMonths: 24}
	got := similarityScore(a, different)
	// No purpose match, half the amount and duration overlap: (0.5*30)*2 = 30.
	if got != 30 {
		t.Errorf("dissimilar investments = %d, want 30", got)
	}
}

func TestComputeFactorsCoversAllCategories(t *testing.T) {
	now := time.Now()
	s := &snapshot{
		Borrower: &directory.User{
			ID:       "usr_1",
			JoinedAt: now.AddDate(0, -2, 0),
		},
		Investment: &ledger.Investment{
			ID:      "inv_1",
			Purpose: "Business",
			Amount:  1000,
		},
		Now: now,
	}
	factors := computeFactors(s)
	if len(factors) != 18 {
		t.Fatalf("computeFactors returned %d factors, want 18", len(factors))
	}

	byName := make(map[string]Factor)
	for _, f := range factors {
		if f.Score < 0 || f.Score > 100 {
			t.Errorf("factor %s score %v out of range", f.Factor, f.Score)
		}
		byName[f.Factor] = f
	}

	categories := scoreCategories(factors)
	if len(categories) != len(Categories) {
		t.Fatalf("scoreCategories returned %d categories, want %d", len(categories), len(Categories))
	}
	for name, cs := range categories {
		if cs.Score < 0 || cs.Score > 100 {
			t.Errorf("category %s score %d out of range", name, cs.Score)
		}
		if cs.Weight != CategoryWeights[name] {
			t.Errorf("category %s weight %v, want %v", name, cs.Weight, CategoryWeights[name])
		}
		for _, factor := range cs.Factors {
			if _, ok := byName[factor]; !ok {
				t.Errorf("category %s references unknown factor %s", name, factor)
			}
		}
	}

	overall := overallScore(categories)
	if overall < 0 || overall > 100 {
		t.Errorf("overall score %d out of range", overall)
	}
}

func TestScoreCategoriesNeutralWithoutEvidence(t *testing.T) {
	categories := scoreCategories(nil)
	for name, cs := range categories {
		if cs.Score != 50 {
			t.Errorf("category %s without factors scored %d, want neutral 50", name, cs.Score)
		}
	}
}

func TestScoreTrend(t *testing.T) {
	mk := func(scores ...int) []*Assessment {
		var result []*Assessment
		for _, s := range scores {
			result = append(result, &Assessment{OverallRiskScore: s})
		}
		return result
	}

	if got := scoreTrend(mk(50)); got != TrendInsufficientData {
		t.Errorf("single assessment = %s, want insufficient_data", got)
	}
	if got := scoreTrend(mk(70, 60, 50)); got != TrendImproving {
		t.Errorf("rising scores = %s, want improving", got)
	}
	if got := scoreTrend(mk(40, 50, 60)); got != TrendDeteriorating {
		t.Errorf("falling scores = %s, want deteriorating", got)
	}
	if got := scoreTrend(mk(52, 50, 49)); got != TrendStable {
		t.Errorf("small movement = %s, want stable", got)
	}
	// Only the five most recent assessments count.
	if got := scoreTrend(mk(50, 50, 50, 50, 50, 90)); got != TrendStable {
		t.Errorf("sixth assessment should be ignored, got %s", got)
	}
}
