package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/metrics"
)

// Per-rule thresholds. Boundaries are inclusive on the allowed side: an
// amount exactly at the cap passes, one dollar over is rejected.
const (
	veryHighRiskCap  = 5000
	highRiskCap      = 15000
	lowAverageCap    = 25000
	lowAverageScore  = 30
	totalDebtCeiling = 50000
)

// ErrValidationUnavailable is returned in fail-closed mode when the stores
// backing validation cannot be read.
var ErrValidationUnavailable = errors.New("risk validation unavailable")

// Rejection explains why an investment was blocked. Fields beyond Error and
// Details are populated per rule.
type Rejection struct {
	Error              string   `json:"error"`
	Details            string   `json:"details"`
	RiskLevel          Level    `json:"riskLevel,omitempty"`
	RiskScore          int      `json:"riskScore,omitempty"`
	AverageRiskScore   int      `json:"averageRiskScore,omitempty"`
	SuggestedMaxAmount float64  `json:"suggestedMaxAmount,omitempty"`
	CurrentDebt        *float64 `json:"currentDebt,omitempty"`
	NewTotal           *float64 `json:"newTotal,omitempty"`
	MaxAllowed         *float64 `json:"maxAllowed,omitempty"`
	AvailableCredit    *float64 `json:"availableCredit,omitempty"`

	rule string
}

// Rule names the threshold rule that produced this rejection.
func (r *Rejection) Rule() string { return r.rule }

// ThresholdValidator gates investment creation on the borrower's risk
// history. It is read-only: validation never creates or mutates assessments.
type ThresholdValidator struct {
	users       directory.Store
	investments ledger.Store
	assessments Store
	failClosed  bool
	logger      *slog.Logger
}

// NewThresholdValidator creates a validator. With failClosed false (the
// default posture) store errors are logged and the investment is allowed;
// with failClosed true they surface as ErrValidationUnavailable.
func NewThresholdValidator(users directory.Store, investments ledger.Store, assessments Store, failClosed bool, logger *slog.Logger) *ThresholdValidator {
	return &ThresholdValidator{
		users:       users,
		investments: investments,
		assessments: assessments,
		failClosed:  failClosed,
		logger:      logger,
	}
}

// Validate checks the proposed investment against the threshold rules in
// order and returns the first violation, or nil when the investment may
// proceed. Borrowers with no risk history always pass.
func (v *ThresholdValidator) Validate(ctx context.Context, borrowerID string, amount float64) (*Rejection, error) {
	if amount <= 0 {
		return nil, nil
	}

	if _, err := v.users.Get(ctx, borrowerID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, nil
		}
		return nil, v.degrade("user lookup", err)
	}

	history, err := v.assessments.ListActiveByBorrower(ctx, borrowerID, trendWindow)
	if err != nil {
		return nil, v.degrade("assessment lookup", err)
	}
	if len(history) == 0 {
		return nil, nil
	}

	latest := history[0]
	if latest.RiskLevel == LevelVeryHigh && amount > veryHighRiskCap {
		return v.reject(&Rejection{
			Error:              "Investment amount exceeds risk threshold",
			Details:            "High-risk borrowers are limited to investments under $5,000",
			RiskLevel:          latest.RiskLevel,
			RiskScore:          latest.OverallRiskScore,
			SuggestedMaxAmount: veryHighRiskCap,
			rule:               "very_high_risk_cap",
		}), nil
	}
	if latest.RiskLevel == LevelHigh && amount > highRiskCap {
		return v.reject(&Rejection{
			Error:              "Investment amount exceeds risk threshold",
			Details:            "Medium-high risk borrowers are limited to investments under $15,000",
			RiskLevel:          latest.RiskLevel,
			RiskScore:          latest.OverallRiskScore,
			SuggestedMaxAmount: highRiskCap,
			rule:               "high_risk_cap",
		}), nil
	}

	var sum int
	for _, a := range history {
		sum += a.OverallRiskScore
	}
	avg := float64(sum) / float64(len(history))
	if avg < lowAverageScore && amount > lowAverageCap {
		return v.reject(&Rejection{
			Error:              "Investment amount exceeds risk threshold",
			Details:            "Based on your risk history, please consider a smaller investment amount",
			AverageRiskScore:   int(math.Round(avg)),
			SuggestedMaxAmount: lowAverageCap,
			rule:               "low_average_cap",
		}), nil
	}

	active, err := v.investments.ListByBorrower(ctx, borrowerID, ledger.StatusActive)
	if err != nil {
		return nil, v.degrade("investment lookup", err)
	}
	var currentDebt float64
	for _, inv := range active {
		currentDebt += inv.Amount
	}
	if newTotal := currentDebt + amount; newTotal > totalDebtCeiling {
		available := math.Max(0, totalDebtCeiling-currentDebt)
		return v.reject(&Rejection{
			Error:           "Total debt limit exceeded",
			Details:         fmt.Sprintf("Approving this investment would bring your total active debt to $%.2f, above the $%d platform limit", newTotal, totalDebtCeiling),
			CurrentDebt:     &currentDebt,
			NewTotal:        &newTotal,
			MaxAllowed:      f64(totalDebtCeiling),
			AvailableCredit: &available,
			rule:            "total_debt_ceiling",
		}), nil
	}

	return nil, nil
}

func (v *ThresholdValidator) reject(r *Rejection) *Rejection {
	metrics.ThresholdRejectionsTotal.WithLabelValues(r.rule).Inc()
	v.logger.Info("investment rejected by risk threshold", "rule", r.rule, "error", r.Error)
	return r
}

// degrade applies the configured failure posture to a store error.
func (v *ThresholdValidator) degrade(op string, err error) error {
	if v.failClosed {
		return fmt.Errorf("%w: %s: %v", ErrValidationUnavailable, op, err)
	}
	v.logger.Warn("threshold validation degraded, allowing investment", "op", op, "error", err)
	return nil
}

func f64(v float64) *float64 { return &v }
