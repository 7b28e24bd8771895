// Package risk implements multi-factor risk scoring for funding requests.
//
// Every investment is evaluated against 7 weighted categories:
// creditworthiness, financial stability, reputation history, investment
// purpose, documentation quality, platform behavior, and external validation.
// Scores range from 0 (highest risk) to 100 (lowest risk) and map to five
// risk levels that drive underwriting recommendations, per-level investment
// ceilings, and reassessment cadence.
package risk

import (
	"context"
	"errors"
	"time"
)

// AssessmentVersion identifies the scoring model that produced an assessment.
const AssessmentVersion = "1.0"

var (
	ErrAssessmentNotFound = errors.New("risk assessment not found")
	// ErrConflict signals a concurrent write to the same investment's
	// active assessment. Callers retry once with a fresh read.
	ErrConflict = errors.New("assessment persistence conflict")
)

// Level represents a risk tier derived from the overall score.
type Level string

const (
	LevelVeryLow  Level = "very_low"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

// LevelForScore maps an overall risk score to its level.
// The bands are fixed: higher scores mean lower risk.
func LevelForScore(score int) Level {
	switch {
	case score >= 80:
		return LevelVeryLow
	case score >= 65:
		return LevelLow
	case score >= 45:
		return LevelMedium
	case score >= 25:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

// ReassessAfter returns how long an assessment at the given level stays
// current before the scheduler picks it up again.
func ReassessAfter(level Level) time.Duration {
	const month = 30 * 24 * time.Hour
	switch level {
	case LevelVeryLow:
		return 6 * month
	case LevelLow:
		return 4 * month
	case LevelMedium:
		return 3 * month
	case LevelHigh:
		return 2 * month
	default:
		return 1 * month
	}
}

// Category names for the 7 scoring categories.
const (
	CategoryCreditworthiness     = "creditworthiness"
	CategoryFinancialStability   = "financial_stability"
	CategoryReputationHistory    = "reputation_history"
	CategoryInvestmentPurpose    = "investment_purpose"
	CategoryDocumentationQuality = "documentation_quality"
	CategoryPlatformBehavior     = "platform_behavior"
	CategoryExternalValidation   = "external_validation"
)

// Categories lists all category names in scoring order.
var Categories = []string{
	CategoryCreditworthiness,
	CategoryFinancialStability,
	CategoryReputationHistory,
	CategoryInvestmentPurpose,
	CategoryDocumentationQuality,
	CategoryPlatformBehavior,
	CategoryExternalValidation,
}

// CategoryWeights is the single source of truth for category weighting.
// Weights sum to 1.0.
var CategoryWeights = map[string]float64{
	CategoryCreditworthiness:     0.25,
	CategoryFinancialStability:   0.20,
	CategoryReputationHistory:    0.15,
	CategoryInvestmentPurpose:    0.15,
	CategoryDocumentationQuality: 0.10,
	CategoryPlatformBehavior:     0.10,
	CategoryExternalValidation:   0.05,
}

// Factor is a single piece of atomic evidence feeding a category score.
type Factor struct {
	Factor    string      `json:"factor"`
	Value     interface{} `json:"value"`
	Weight    float64     `json:"weight"` // within its category, [0,1]
	Score     float64     `json:"score"`  // [0,100]
	Reasoning string      `json:"reasoning"`
}

// CategoryScore aggregates the factors belonging to one category.
type CategoryScore struct {
	Score   int      `json:"score"`  // [0,100]
	Weight  float64  `json:"weight"` // category weight in the overall score
	Factors []string `json:"factors"`
}

// DecisionType classifies an underwriting recommendation.
type DecisionType string

const (
	DecisionApprove            DecisionType = "approve"
	DecisionConditionalApprove DecisionType = "conditional_approve"
	DecisionRequestMoreInfo    DecisionType = "request_more_info"
	DecisionReject             DecisionType = "reject"
	DecisionMonitor            DecisionType = "monitor"
)

// Range is an inclusive min/max pair.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Recommendation is a generated underwriting recommendation. It is always
// derived from the risk level via the fixed policy table, never hand-authored.
type Recommendation struct {
	Type            DecisionType `json:"type"`
	Reasoning       string       `json:"reasoning"`
	Conditions      []string     `json:"conditions,omitempty"`
	InterestRate    *Range       `json:"suggestedInterestRate,omitempty"`
	AmountFraction  *Range       `json:"suggestedAmount,omitempty"`
	MonitoringFlags []string     `json:"monitoringFlags,omitempty"`
}

// RecommendationsFor returns the fixed recommendation set for a risk level.
func RecommendationsFor(level Level) []Recommendation {
	switch level {
	case LevelVeryLow:
		return []Recommendation{{
			Type:           DecisionApprove,
			Reasoning:      "Excellent risk profile with strong indicators across all categories",
			InterestRate:   &Range{Min: 3, Max: 8},
			AmountFraction: &Range{Min: 0.8, Max: 1.0},
		}}
	case LevelLow:
		return []Recommendation{{
			Type:            DecisionApprove,
			Reasoning:       "Good risk profile with minor concerns that can be monitored",
			InterestRate:    &Range{Min: 6, Max: 12},
			AmountFraction:  &Range{Min: 0.7, Max: 0.9},
			MonitoringFlags: []string{"payment_schedule", "communication_responsiveness"},
		}}
	case LevelMedium:
		return []Recommendation{{
			Type:      DecisionConditionalApprove,
			Reasoning: "Moderate risk requiring additional safeguards and monitoring",
			Conditions: []string{
				"Require additional documentation",
				"Implement milestone-based funding",
				"Increase monitoring frequency",
			},
			InterestRate:    &Range{Min: 10, Max: 18},
			AmountFraction:  &Range{Min: 0.5, Max: 0.8},
			MonitoringFlags: []string{"payment_schedule", "purpose_verification", "financial_updates"},
		}}
	case LevelHigh:
		return []Recommendation{{
			Type:      DecisionRequestMoreInfo,
			Reasoning: "High risk requiring substantial additional information before approval",
			Conditions: []string{
				"Provide comprehensive financial statements",
				"Submit additional references",
				"Complete enhanced verification process",
				"Consider co-signer requirement",
			},
			InterestRate:   &Range{Min: 15, Max: 25},
			AmountFraction: &Range{Min: 0.3, Max: 0.6},
		}}
	default:
		return []Recommendation{{
			Type:      DecisionReject,
			Reasoning: "Very high risk profile with multiple concerning factors",
			Conditions: []string{
				"Improve credit history",
				"Provide additional collateral",
				"Complete financial counseling",
				"Reapply after 6 months with improved profile",
			},
		}}
	}
}

// ManualOverride records a human correction to a factor score. It is an
// audit trail only; recording one never silently mutates the overall score.
type ManualOverride struct {
	Factor        string    `json:"factor"`
	OriginalScore float64   `json:"originalScore"`
	NewScore      float64   `json:"newScore"`
	Reason        string    `json:"reason"`
	OverriddenBy  string    `json:"overriddenBy"`
	OverriddenAt  time.Time `json:"overriddenAt"`
}

// Trend classifies the direction of a borrower's recent score history.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendStable           Trend = "stable"
	TrendDeteriorating    Trend = "deteriorating"
	TrendInsufficientData Trend = "insufficient_data"
)

// SimilarInvestment references a comparable investment and its outcome.
type SimilarInvestment struct {
	InvestmentID    string   `json:"investmentId"`
	SimilarityScore int      `json:"similarityScore"` // [0,100]
	Outcome         string   `json:"outcome"`
	RelevantFactors []string `json:"relevantFactors"`
}

// PriorAssessment summarizes one earlier assessment for trend analysis.
type PriorAssessment struct {
	AssessmentID string    `json:"assessmentId"`
	RiskScore    int       `json:"riskScore"`
	AssessedAt   time.Time `json:"assessedAt"`
}

// HistoricalComparisons groups similar-investment references and the
// borrower's own score trend.
type HistoricalComparisons struct {
	SimilarInvestments []SimilarInvestment `json:"similarInvestments,omitempty"`
	PriorAssessments   []PriorAssessment   `json:"previousAssessments,omitempty"`
	RiskTrend          Trend               `json:"riskTrend"`
}

// AlgorithmMetadata describes how an assessment was computed.
type AlgorithmMetadata struct {
	ModelVersion    string    `json:"modelVersion"`
	ComputationTime int64     `json:"computationTimeMs"`
	DataSourcesUsed []string  `json:"dataSourcesUsed"`
	Confidence      float64   `json:"confidence"` // [0,1]
	LastUpdated     time.Time `json:"lastUpdated"`
}

// AssessedBy identifies whether the assessment came from the algorithm,
// a human, or both.
type AssessedBy string

const (
	AssessedByAlgorithm AssessedBy = "algorithm"
	AssessedByManual    AssessedBy = "manual"
	AssessedByHybrid    AssessedBy = "hybrid"
)

// Assessment is a point-in-time risk evaluation of one investment.
// Exactly one assessment per investment is active at any time; reassessment
// deactivates the prior record rather than mutating it, preserving history.
type Assessment struct {
	ID               string                   `json:"id"`
	InvestmentID     string                   `json:"investmentId"`
	BorrowerID       string                   `json:"borrowerId"`
	Version          string                   `json:"assessmentVersion"`
	OverallRiskScore int                      `json:"overallRiskScore"` // [0,100]
	RiskLevel        Level                    `json:"riskLevel"`
	RiskFactors      []Factor                 `json:"riskFactors"`
	CategoryScores   map[string]CategoryScore `json:"categoryScores"`
	Recommendations  []Recommendation         `json:"recommendations"`
	Metadata         AlgorithmMetadata        `json:"algorithmMetadata"`
	Overrides        []ManualOverride         `json:"manualOverrides,omitempty"`
	Comparisons      HistoricalComparisons    `json:"historicalComparisons"`
	AssessedAt       time.Time                `json:"assessedAt"`
	AssessedBy       AssessedBy               `json:"assessedBy"`
	LastReassessment *time.Time               `json:"lastReassessment,omitempty"`
	NextReassessment time.Time                `json:"nextReassessment"`
	IsActive         bool                     `json:"isActive"`
}

// Store persists risk assessments.
type Store interface {
	// Create inserts a new assessment. Returns ErrConflict when another
	// active assessment already exists for the same investment.
	Create(ctx context.Context, a *Assessment) error
	// Get returns an assessment by its ID.
	Get(ctx context.Context, id string) (*Assessment, error)
	// GetActive returns the active assessment for an investment.
	GetActive(ctx context.Context, investmentID string) (*Assessment, error)
	// Deactivate marks an assessment inactive and stamps lastReassessment.
	Deactivate(ctx context.Context, id string, at time.Time) error
	// AppendOverride appends a manual override to an assessment's audit trail.
	AppendOverride(ctx context.Context, id string, o ManualOverride) error
	// ListActiveByBorrower returns the borrower's active assessments,
	// newest first, up to limit.
	ListActiveByBorrower(ctx context.Context, borrowerID string, limit int) ([]*Assessment, error)
	// ListOverdue returns active assessments whose nextReassessment is
	// before now, up to limit.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Assessment, error)
	// ListActiveSince returns active assessments assessed on or after the
	// cutoff, for reporting.
	ListActiveSince(ctx context.Context, cutoff time.Time) ([]*Assessment, error)
	// ListActiveByBorrowerSince returns the borrower's active assessments
	// assessed on or after the cutoff, oldest first, for trend queries.
	ListActiveByBorrowerSince(ctx context.Context, borrowerID string, cutoff time.Time) ([]*Assessment, error)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
