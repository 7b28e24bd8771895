package reputation

import (
	"testing"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
)

func TestLevelForBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, LevelBronze},
		{299, LevelBronze},
		{300, LevelSilver},
		{699, LevelSilver},
		{700, LevelGold},
		{1199, LevelGold},
		{1200, LevelPlatinum},
		{1999, LevelPlatinum},
		{2000, LevelDiamond},
		{3499, LevelDiamond},
		{3500, LevelMaster},
		{9999, LevelMaster},
		{10000, LevelLegend},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.score); got != tc.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestMultiplierFor(t *testing.T) {
	cases := []struct {
		level string
		want  float64
	}{
		{LevelBronze, 1.0},
		{LevelSilver, 1.2},
		{LevelGold, 1.5},
		{LevelPlatinum, 2.0},
		{LevelDiamond, 2.5},
		{LevelMaster, 3.0},
		{LevelLegend, 4.0},
		{"unknown", 1.0},
		{"", 1.0},
	}
	for _, tc := range cases {
		if got := MultiplierFor(tc.level); got != tc.want {
			t.Errorf("MultiplierFor(%q) = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func completedLoan(onTime bool) *ledger.Investment {
	due := time.Now().AddDate(0, -1, 0)
	paid := due.AddDate(0, 0, -1)
	if !onTime {
		paid = due.AddDate(0, 0, 5)
	}
	return &ledger.Investment{
		Status: ledger.StatusCompleted,
		Repayments: []ledger.Repayment{
			{DueDate: due, PaidAt: &paid, Amount: 100, Status: ledger.RepaymentCompleted},
		},
	}
}

func TestInvestmentScore(t *testing.T) {
	c := NewCalculator()

	if got := c.investmentScore(nil, nil); got != 0 {
		t.Errorf("empty history = %d, want 0", got)
	}

	// Completed on-time loan: 50 base + 25 conduct bonus.
	if got := c.investmentScore([]*ledger.Investment{completedLoan(true)}, nil); got != 75 {
		t.Errorf("on-time loan = %d, want 75", got)
	}
	if got := c.investmentScore([]*ledger.Investment{completedLoan(false)}, nil); got != 50 {
		t.Errorf("late loan = %d, want 50", got)
	}

	// Defaults can never push the factor negative.
	defaulted := []*ledger.Investment{{Status: ledger.StatusDefaulted}}
	if got := c.investmentScore(defaulted, nil); got != 0 {
		t.Errorf("defaulted loan = %d, want clamp to 0", got)
	}

	// Investing in completed loans earns 30 each.
	invested := []*ledger.Investment{
		{Status: ledger.StatusCompleted},
		{Status: ledger.StatusCompleted},
		{Status: ledger.StatusActive},
	}
	if got := c.investmentScore(nil, invested); got != 60 {
		t.Errorf("investor history = %d, want 60", got)
	}

	// Caps at 1000.
	var many []*ledger.Investment
	for i := 0; i < 50; i++ {
		many = append(many, completedLoan(true))
	}
	if got := c.investmentScore(many, nil); got != 1000 {
		t.Errorf("50 perfect loans = %d, want cap 1000", got)
	}
}

func TestInvestmentScoreMonotonic(t *testing.T) {
	c := NewCalculator()
	var history []*ledger.Investment
	prev := 0
	for i := 0; i < 25; i++ {
		history = append(history, completedLoan(true))
		got := c.investmentScore(history, nil)
		if got < prev {
			t.Fatalf("score decreased after completing a loan: %d → %d", prev, got)
		}
		prev = got
	}

	// Adding a default strictly lowers a mid-range score.
	mid := []*ledger.Investment{completedLoan(true), completedLoan(true), completedLoan(true)}
	before := c.investmentScore(mid, nil)
	after := c.investmentScore(append(mid, &ledger.Investment{Status: ledger.StatusDefaulted}), nil)
	if after >= before {
		t.Errorf("default did not lower score: %d → %d", before, after)
	}
}

func TestSocialScore(t *testing.T) {
	c := NewCalculator()

	if got := c.socialScore(&directory.User{}); got != 0 {
		t.Errorf("empty social graph = %d, want 0", got)
	}

	u := &directory.User{
		Followers: make([]string, 150), // capped at 100
		Following: make([]string, 80),  // capped at 50
		Connections: []directory.Connection{
			{Strength: 0.9}, // strong: 10
			{Strength: 0.6}, // medium: 5
			{Strength: 0.2}, // weak: 0
		},
		SocialLinks: map[string]string{
			"twitter": "x", "github": "y", "linkedin": "z",
			"site": "w", "blog": "v", "extra": "u", // capped at 5
		},
	}
	// 100*2 + 50 + 10 + 5 + 5*20 = 365
	if got := c.socialScore(u); got != 365 {
		t.Errorf("social score = %d, want 365", got)
	}
}

func TestVerificationScore(t *testing.T) {
	c := NewCalculator()

	u := &directory.User{
		VerificationStatus: directory.VerificationVerified,
		KYCLevel:           directory.KYCEnhanced,
		EmailVerified:      true,
		PhoneVerified:      true,
	}
	docs := []*directory.Document{
		{Status: directory.VerificationVerified},
		{Status: directory.VerificationPending}, // not counted
	}
	// 300 + 50 + 200 + 50 + 50 = 650, capped at 600.
	if got := c.verificationScore(u, docs); got != 600 {
		t.Errorf("verification score = %d, want cap 600", got)
	}

	pending := &directory.User{VerificationStatus: directory.VerificationPending}
	if got := c.verificationScore(pending, nil); got != 150 {
		t.Errorf("pending verification = %d, want 150", got)
	}
}

func TestAgeScore(t *testing.T) {
	c := NewCalculator()
	now := time.Now()
	cases := []struct {
		days int
		want int
	}{
		{400, 320},
		{200, 240},
		{100, 160},
		{40, 80},
		{10, 40},
		{2, 20},
	}
	for _, tc := range cases {
		u := &directory.User{JoinedAt: now.AddDate(0, 0, -tc.days)}
		if got := c.ageScore(u, now); got != tc.want {
			t.Errorf("ageScore(%d days) = %d, want %d", tc.days, got, tc.want)
		}
	}
}

func TestProfileScore(t *testing.T) {
	c := NewCalculator()

	if got := c.profileScore(&directory.User{}); got != 0 {
		t.Errorf("empty profile = %d, want 0", got)
	}

	full := &directory.User{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
		Bio: "x", Location: "x", Occupation: "x", Education: "x", Skills: "x",
		ProfilePicture: "x",
	}
	if got := c.profileScore(full); got != 280 {
		t.Errorf("full profile = %d, want 280", got)
	}
}

func TestCalculateBlendsFactors(t *testing.T) {
	c := NewCalculator()
	u := &directory.User{
		ID:                 "usr_1",
		FirstName:          "Ada",
		LastName:           "Lovelace",
		Email:              "ada@example.com",
		VerificationStatus: directory.VerificationVerified,
		EmailVerified:      true,
		JoinedAt:           time.Now().AddDate(-2, 0, 0),
	}

	score := c.Calculate(u, nil, nil, nil)
	if score.UserID != "usr_1" {
		t.Errorf("userId %s, want usr_1", score.UserID)
	}
	if len(score.Factors) != len(factorSpecs) {
		t.Errorf("got %d factors, want %d", len(score.Factors), len(factorSpecs))
	}
	if score.Total < 0 || score.Total > MaxScore {
		t.Errorf("total %d out of range", score.Total)
	}
	if score.Level != LevelFor(score.Total) {
		t.Errorf("level %s inconsistent with total %d", score.Level, score.Total)
	}
	if score.Multiplier != MultiplierFor(score.Level) {
		t.Errorf("multiplier %v inconsistent with level %s", score.Multiplier, score.Level)
	}

	// Verification 350 * 15% + age 320 * 8% + profile 93 * 7% = 84.61.
	want := 85
	if score.Total != want {
		t.Errorf("total %d, want %d", score.Total, want)
	}
}
