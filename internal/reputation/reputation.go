// Package reputation computes platform reputation scores.
//
// A user's reputation is a weighted blend of six factors: investment conduct,
// social graph, verification depth, engagement, account age, and profile
// completeness. Totals range 0 to 10000 and map to seven levels, each with a
// privilege multiplier used elsewhere on the platform.
package reputation

import (
	"context"
	"math"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
)

// MaxScore is the reputation ceiling.
const MaxScore = 10000

// Level names, lowest to highest.
const (
	LevelBronze   = "bronze"
	LevelSilver   = "silver"
	LevelGold     = "gold"
	LevelPlatinum = "platinum"
	LevelDiamond  = "diamond"
	LevelMaster   = "master"
	LevelLegend   = "legend"
)

// levelBand is one reputation tier.
type levelBand struct {
	Name       string
	Min        int
	Max        int
	Multiplier float64
}

// levels are ordered ascending; LevelFor walks them top-down.
var levels = []levelBand{
	{LevelBronze, 0, 299, 1.0},
	{LevelSilver, 300, 699, 1.2},
	{LevelGold, 700, 1199, 1.5},
	{LevelPlatinum, 1200, 1999, 2.0},
	{LevelDiamond, 2000, 3499, 2.5},
	{LevelMaster, 3500, 9999, 3.0},
	{LevelLegend, 10000, math.MaxInt32, 4.0},
}

// LevelFor maps a score to its level name.
func LevelFor(score int) string {
	for i := len(levels) - 1; i >= 0; i-- {
		if score >= levels[i].Min {
			return levels[i].Name
		}
	}
	return LevelBronze
}

// MultiplierFor returns the privilege multiplier for a level name.
// Unknown levels get the neutral 1.0.
func MultiplierFor(level string) float64 {
	for _, band := range levels {
		if band.Name == level {
			return band.Multiplier
		}
	}
	return 1.0
}

// Factor names.
const (
	FactorInvestment   = "investment"
	FactorSocial       = "social"
	FactorVerification = "verification"
	FactorEngagement   = "engagement"
	FactorAge          = "age"
	FactorProfile      = "profile"
)

// factorSpec is one factor's contribution to the total: Weight is a percent,
// MaxPoints caps the raw factor score.
type factorSpec struct {
	Weight    int
	MaxPoints int
}

// factorSpecs drives the weighted total. On-time repayment conduct is folded
// into the investment factor rather than scored separately.
var factorSpecs = map[string]factorSpec{
	FactorInvestment:   {Weight: 25, MaxPoints: 1000},
	FactorSocial:       {Weight: 15, MaxPoints: 600},
	FactorVerification: {Weight: 15, MaxPoints: 600},
	FactorEngagement:   {Weight: 10, MaxPoints: 400},
	FactorAge:          {Weight: 8, MaxPoints: 320},
	FactorProfile:      {Weight: 7, MaxPoints: 280},
}

// Score is a computed reputation with its factor breakdown.
type Score struct {
	UserID     string         `json:"userId"`
	Total      int            `json:"total"`
	Level      string         `json:"level"`
	Multiplier float64        `json:"multiplier"`
	Factors    map[string]int `json:"factors"`
	ComputedAt time.Time      `json:"computedAt"`
}

// Snapshot is one historical reputation record.
type Snapshot struct {
	UserID     string         `json:"userId"`
	Score      int            `json:"score"`
	Level      string         `json:"level"`
	Factors    map[string]int `json:"factors,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// SnapshotStore persists reputation history.
type SnapshotStore interface {
	Append(ctx context.Context, s *Snapshot) error
	// History returns the user's snapshots, newest first, up to limit.
	History(ctx context.Context, userID string, limit int) ([]*Snapshot, error)
}

// Calculator computes reputation scores. It is stateless and safe for
// concurrent use.
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a reputation calculator.
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// Calculate computes the user's reputation from their profile, investment
// history, and uploaded documents. borrowed is the user's history as a
// borrower, invested as an investor.
func (c *Calculator) Calculate(u *directory.User, borrowed, invested []*ledger.Investment, docs []*directory.Document) *Score {
	now := c.now()
	factors := map[string]int{
		FactorInvestment:   c.investmentScore(borrowed, invested),
		FactorSocial:       c.socialScore(u),
		FactorVerification: c.verificationScore(u, docs),
		FactorEngagement:   c.engagementScore(u, now),
		FactorAge:          c.ageScore(u, now),
		FactorProfile:      c.profileScore(u),
	}

	var total float64
	for name, raw := range factors {
		total += float64(raw) * float64(factorSpecs[name].Weight) / 100
	}
	score := clampTotal(int(math.Round(total)))
	level := LevelFor(score)

	return &Score{
		UserID:     u.ID,
		Total:      score,
		Level:      level,
		Multiplier: MultiplierFor(level),
		Factors:    factors,
		ComputedAt: now,
	}
}

// investmentScore rewards completed loans and punishes defaults. Loans repaid
// with every installment on time earn a conduct bonus.
func (c *Calculator) investmentScore(borrowed, invested []*ledger.Investment) int {
	score := 0
	for _, inv := range borrowed {
		switch inv.Status {
		case ledger.StatusCompleted:
			score += 50
			if inv.RepaidOnTime() {
				score += 25
			}
		case ledger.StatusDefaulted:
			score -= 100
		}
	}
	for _, inv := range invested {
		if inv.Status == ledger.StatusCompleted {
			score += 30
		}
	}
	return clampFactor(score, factorSpecs[FactorInvestment].MaxPoints)
}

func (c *Calculator) socialScore(u *directory.User) int {
	score := min(len(u.Followers), 100) * 2
	score += min(len(u.Following), 50)
	for _, conn := range u.Connections {
		switch {
		case conn.Strength >= 0.8:
			score += 10
		case conn.Strength >= 0.5:
			score += 5
		}
	}
	score += min(len(u.SocialLinks), 5) * 20
	return clampFactor(score, factorSpecs[FactorSocial].MaxPoints)
}

func (c *Calculator) verificationScore(u *directory.User, docs []*directory.Document) int {
	score := 0
	switch u.VerificationStatus {
	case directory.VerificationVerified:
		score += 300
	case directory.VerificationPending:
		score += 150
	}
	for _, d := range docs {
		if d.Status == directory.VerificationVerified {
			score += 50
		}
	}
	switch u.KYCLevel {
	case directory.KYCBasic:
		score += 100
	case directory.KYCEnhanced:
		score += 200
	case directory.KYCPremium:
		score += 300
	}
	if u.EmailVerified {
		score += 50
	}
	if u.PhoneVerified {
		score += 50
	}
	return clampFactor(score, factorSpecs[FactorVerification].MaxPoints)
}

func (c *Calculator) engagementScore(u *directory.User, now time.Time) int {
	score := min(u.LoginCount, 100) * 2

	if !u.LastActive.IsZero() {
		days := now.Sub(u.LastActive).Hours() / 24
		switch {
		case days <= 7:
			score += 100
		case days <= 30:
			score += 50
		case days <= 90:
			score += 25
		}
	}

	completed := 0
	for _, field := range []string{u.Bio, u.Location, u.Occupation, u.Education, u.Skills} {
		if field != "" {
			completed++
		}
	}
	score += completed * 200 / 5

	score += len(u.Badges) * 30
	return clampFactor(score, factorSpecs[FactorEngagement].MaxPoints)
}

func (c *Calculator) ageScore(u *directory.User, now time.Time) int {
	days := now.Sub(u.JoinedAt).Hours() / 24
	switch {
	case days >= 365:
		return 320
	case days >= 180:
		return 240
	case days >= 90:
		return 160
	case days >= 30:
		return 80
	case days >= 7:
		return 40
	default:
		return 20
	}
}

func (c *Calculator) profileScore(u *directory.User) int {
	fields := []string{
		u.FirstName, u.LastName, u.Email, u.Bio, u.Location,
		u.Occupation, u.Education, u.Skills, u.ProfilePicture,
	}
	completed := 0
	for _, field := range fields {
		if field != "" {
			completed++
		}
	}
	return completed * factorSpecs[FactorProfile].MaxPoints / len(fields)
}

func clampFactor(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func clampTotal(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
