package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/idgen"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/metrics"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/notify"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/syncutil"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/traces"
)

// similarAmountBand bounds the amount window for similar-investment lookups.
const (
	similarAmountLow   = 0.7
	similarAmountHigh  = 1.3
	similarLimit       = 10
	trendWindow        = 5
	notifyScoreDelta   = 10
	notifySendTimeout  = 10 * time.Second
	priorHistoryWindow = 5
)

// Assessor computes and persists risk assessments. All collaborator access
// goes through injected interfaces so the assessor is testable with the
// in-memory implementations.
type Assessor struct {
	investments ledger.Store
	users       directory.Store
	assessments Store
	sink        notify.Sink
	locks       *syncutil.ShardedMutex
	logger      *slog.Logger
	now         func() time.Time
}

// NewAssessor creates an assessor wired to the given stores and sink.
func NewAssessor(investments ledger.Store, users directory.Store, assessments Store, sink notify.Sink, logger *slog.Logger) *Assessor {
	return &Assessor{
		investments: investments,
		users:       users,
		assessments: assessments,
		sink:        sink,
		locks:       &syncutil.ShardedMutex{},
		logger:      logger,
		now:         time.Now,
	}
}

// Assess evaluates the investment and persists the result as the active
// assessment. If this is the investment's first assessment, the borrower is
// notified and, for high-risk results, verified admins are alerted.
func (a *Assessor) Assess(ctx context.Context, investmentID string) (*Assessment, error) {
	prev, cur, err := a.assess(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		a.notifyAssessed(cur)
	}
	return cur, nil
}

// Reassess re-evaluates the investment, returning both the superseded
// assessment and the new one so callers can compare scores. The scheduler
// uses this to decide whether the borrower should be told about the change.
func (a *Assessor) Reassess(ctx context.Context, investmentID string) (prev, cur *Assessment, err error) {
	return a.assess(ctx, investmentID)
}

func (a *Assessor) assess(ctx context.Context, investmentID string) (prev, cur *Assessment, err error) {
	ctx, span := traces.StartSpan(ctx, "risk.assess", traces.InvestmentID(investmentID))
	defer span.End()

	// Serialize per investment so concurrent triggers cannot race the
	// deactivate-then-create sequence.
	unlock := a.locks.Lock(investmentID)
	defer unlock()

	started := a.now()
	defer func() {
		metrics.AssessmentDuration.Observe(a.now().Sub(started).Seconds())
	}()

	inv, err := a.investments.Get(ctx, investmentID)
	if err != nil {
		metrics.AssessmentFailuresTotal.WithLabelValues("investment_lookup").Inc()
		return nil, nil, fmt.Errorf("load investment %s: %w", investmentID, err)
	}

	borrower, err := a.users.Get(ctx, inv.BorrowerID)
	if err != nil {
		metrics.AssessmentFailuresTotal.WithLabelValues("borrower_lookup").Inc()
		return nil, nil, fmt.Errorf("load borrower %s: %w", inv.BorrowerID, err)
	}

	snap, err := a.gather(ctx, inv, borrower)
	if err != nil {
		metrics.AssessmentFailuresTotal.WithLabelValues("history_lookup").Inc()
		return nil, nil, err
	}

	cur = a.score(snap)
	cur.Comparisons = a.compare(ctx, snap)
	cur.Metadata.ComputationTime = a.now().Sub(started).Milliseconds()

	prev, err = a.persist(ctx, cur)
	if err != nil {
		metrics.AssessmentFailuresTotal.WithLabelValues("persist").Inc()
		return nil, nil, err
	}

	span.SetAttributes(traces.RiskScore(cur.OverallRiskScore), traces.RiskLevel(string(cur.RiskLevel)))
	metrics.AssessmentsTotal.WithLabelValues(string(cur.RiskLevel)).Inc()
	a.logger.Info("risk assessment completed",
		"investment_id", inv.ID,
		"borrower_id", inv.BorrowerID,
		"score", cur.OverallRiskScore,
		"level", cur.RiskLevel,
		"confidence", cur.Metadata.Confidence,
	)
	return prev, cur, nil
}

// gather loads everything the factor scorers need up front.
func (a *Assessor) gather(ctx context.Context, inv *ledger.Investment, borrower *directory.User) (*snapshot, error) {
	docs, err := a.users.ListDocuments(ctx, borrower.ID)
	if err != nil {
		return nil, fmt.Errorf("load documents for %s: %w", borrower.ID, err)
	}
	borrowed, err := a.investments.ListByBorrower(ctx, borrower.ID, "")
	if err != nil {
		return nil, fmt.Errorf("load borrower history for %s: %w", borrower.ID, err)
	}
	// The investment under assessment is not part of its own history.
	history := borrowed[:0:0]
	for _, b := range borrowed {
		if b.ID != inv.ID {
			history = append(history, b)
		}
	}
	invested, err := a.investments.ListByInvestor(ctx, borrower.ID)
	if err != nil {
		return nil, fmt.Errorf("load investor history for %s: %w", borrower.ID, err)
	}
	return &snapshot{
		Borrower:            borrower,
		Investment:          inv,
		Documents:           docs,
		BorrowerInvestments: history,
		InvestorHistory:     invested,
		Now:                 a.now(),
	}, nil
}

// score runs the full factor pipeline and assembles the assessment record.
func (a *Assessor) score(s *snapshot) *Assessment {
	now := a.now()
	factors := computeFactors(s)
	categories := scoreCategories(factors)
	overall := overallScore(categories)
	level := LevelForScore(overall)

	return &Assessment{
		ID:               idgen.WithPrefix("ra_"),
		InvestmentID:     s.Investment.ID,
		BorrowerID:       s.Borrower.ID,
		Version:          AssessmentVersion,
		OverallRiskScore: overall,
		RiskLevel:        level,
		RiskFactors:      factors,
		CategoryScores:   categories,
		Recommendations:  RecommendationsFor(level),
		Metadata: AlgorithmMetadata{
			ModelVersion: AssessmentVersion,
			DataSourcesUsed: []string{
				"user_profile",
				"investment_history",
				"documents",
				"platform_activity",
			},
			Confidence:  confidence(s),
			LastUpdated: now,
		},
		AssessedAt:       now,
		AssessedBy:       AssessedByAlgorithm,
		NextReassessment: now.Add(ReassessAfter(level)),
		IsActive:         true,
	}
}

// compare builds the historical comparison block: similar investments by
// purpose and amount band, plus the borrower's own score trend. Comparison
// failures degrade to an empty block rather than failing the assessment.
func (a *Assessor) compare(ctx context.Context, s *snapshot) HistoricalComparisons {
	comparisons := HistoricalComparisons{RiskTrend: TrendInsufficientData}

	similar, err := a.investments.ListSimilar(ctx, ledger.SimilarQuery{
		Purpose:   s.Investment.Purpose,
		MinAmount: s.Investment.Amount * similarAmountLow,
		MaxAmount: s.Investment.Amount * similarAmountHigh,
		ExcludeID: s.Investment.ID,
		Limit:     similarLimit,
	})
	if err != nil {
		a.logger.Warn("similar investment lookup failed", "investment_id", s.Investment.ID, "error", err)
	}
	for _, sim := range similar {
		comparisons.SimilarInvestments = append(comparisons.SimilarInvestments, SimilarInvestment{
			InvestmentID:    sim.ID,
			SimilarityScore: similarityScore(s.Investment, sim),
			Outcome:         string(sim.Status),
			RelevantFactors: []string{"purpose", "amount", "duration"},
		})
	}

	priors, err := a.assessments.ListActiveByBorrower(ctx, s.Borrower.ID, priorHistoryWindow)
	if err != nil {
		a.logger.Warn("prior assessment lookup failed", "borrower_id", s.Borrower.ID, "error", err)
		return comparisons
	}
	for _, p := range priors {
		comparisons.PriorAssessments = append(comparisons.PriorAssessments, PriorAssessment{
			AssessmentID: p.ID,
			RiskScore:    p.OverallRiskScore,
			AssessedAt:   p.AssessedAt,
		})
	}
	comparisons.RiskTrend = scoreTrend(priors)
	return comparisons
}

// scoreTrend classifies the direction of recent assessments (newest first).
// Movement within 5 points is noise.
func scoreTrend(assessments []*Assessment) Trend {
	if len(assessments) > trendWindow {
		assessments = assessments[:trendWindow]
	}
	if len(assessments) < 2 {
		return TrendInsufficientData
	}
	recent := assessments[0].OverallRiskScore
	oldest := assessments[len(assessments)-1].OverallRiskScore
	switch {
	case recent > oldest+5:
		return TrendImproving
	case recent < oldest-5:
		return TrendDeteriorating
	default:
		return TrendStable
	}
}

// persist deactivates the prior active assessment, then creates the new one.
// A Create conflict means another writer won the race after our read; the
// sequence is retried once with a fresh read.
func (a *Assessor) persist(ctx context.Context, cur *Assessment) (*Assessment, error) {
	var prev *Assessment
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := a.assessments.GetActive(ctx, cur.InvestmentID)
		switch {
		case errors.Is(err, ErrAssessmentNotFound):
			// First assessment for this investment.
		case err != nil:
			return nil, fmt.Errorf("load active assessment for %s: %w", cur.InvestmentID, err)
		default:
			prev = existing
			if err := a.assessments.Deactivate(ctx, existing.ID, cur.AssessedAt); err != nil {
				return nil, fmt.Errorf("deactivate assessment %s: %w", existing.ID, err)
			}
			cur.LastReassessment = &cur.AssessedAt
		}

		err = a.assessments.Create(ctx, cur)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("create assessment for %s: %w", cur.InvestmentID, err)
		}
		a.logger.Warn("assessment create conflict, retrying", "investment_id", cur.InvestmentID)
	}
	return nil, fmt.Errorf("create assessment for %s: %w", cur.InvestmentID, ErrConflict)
}

// RecordOverride appends a manual factor correction to an assessment's audit
// trail. The stored scores are never recomputed; the override is evidence for
// the next reassessment, not a mutation of this one.
func (a *Assessor) RecordOverride(ctx context.Context, assessmentID string, o ManualOverride) error {
	if o.Factor == "" || o.Reason == "" || o.OverriddenBy == "" {
		return errors.New("override requires factor, reason, and overriddenBy")
	}
	o.OverriddenAt = a.now()
	if err := a.assessments.AppendOverride(ctx, assessmentID, o); err != nil {
		return err
	}
	a.logger.Info("manual override recorded",
		"assessment_id", assessmentID,
		"factor", o.Factor,
		"overridden_by", o.OverriddenBy,
	)
	return nil
}

// BorrowerTrend returns the borrower's active assessments within the window,
// oldest first, with the classified trend direction.
func (a *Assessor) BorrowerTrend(ctx context.Context, borrowerID string, window time.Duration) ([]*Assessment, Trend, error) {
	cutoff := a.now().Add(-window)
	history, err := a.assessments.ListActiveByBorrowerSince(ctx, borrowerID, cutoff)
	if err != nil {
		return nil, TrendInsufficientData, err
	}
	// scoreTrend expects newest first.
	reversed := make([]*Assessment, len(history))
	for i, h := range history {
		reversed[len(history)-1-i] = h
	}
	return history, scoreTrend(reversed), nil
}

// notifyAssessed tells the borrower their investment was assessed and alerts
// verified admins when the result is high risk. Delivery is asynchronous and
// never blocks or fails the assessment.
func (a *Assessor) notifyAssessed(cur *Assessment) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
		defer cancel()

		priority := notify.PriorityMedium
		if cur.RiskLevel == LevelHigh || cur.RiskLevel == LevelVeryHigh {
			priority = notify.PriorityHigh
		}
		n := &notify.Notification{
			ID:        idgen.WithPrefix("ntf_"),
			Recipient: cur.BorrowerID,
			Type:      notify.TypeAssessmentCompleted,
			Title:     "Risk Assessment Complete",
			Message: fmt.Sprintf("Your investment has been assessed with a risk score of %d/100 (%s risk).",
				cur.OverallRiskScore, cur.RiskLevel),
			Category: "investment",
			Priority: priority,
			Data: map[string]interface{}{
				"investmentId": cur.InvestmentID,
				"riskScore":    cur.OverallRiskScore,
				"riskLevel":    cur.RiskLevel,
				"assessmentId": cur.ID,
			},
			ActionURL: fmt.Sprintf("/investments/%s#risk-assessment", cur.InvestmentID),
			CreatedAt: a.now(),
		}
		if err := a.sink.Send(ctx, n); err != nil {
			a.logger.Warn("assessment notification failed", "investment_id", cur.InvestmentID, "error", err)
		}

		if cur.RiskLevel == LevelHigh || cur.RiskLevel == LevelVeryHigh {
			a.alertAdmins(ctx, cur)
		}
	}()
}

func (a *Assessor) alertAdmins(ctx context.Context, cur *Assessment) {
	admins, err := a.users.ListAdmins(ctx)
	if err != nil {
		a.logger.Warn("admin lookup for high-risk alert failed", "error", err)
		return
	}
	for _, admin := range admins {
		n := &notify.Notification{
			ID:        idgen.WithPrefix("ntf_"),
			Recipient: admin.ID,
			Type:      notify.TypeHighRiskAlert,
			Title:     "High Risk Investment Alert",
			Message: fmt.Sprintf("A new investment with %s risk has been created and requires review.",
				cur.RiskLevel),
			Category: "security",
			Priority: notify.PriorityUrgent,
			Data: map[string]interface{}{
				"investmentId": cur.InvestmentID,
				"riskScore":    cur.OverallRiskScore,
				"riskLevel":    cur.RiskLevel,
				"assessmentId": cur.ID,
			},
			ActionURL: fmt.Sprintf("/risk-assessment/review/%s", cur.ID),
			CreatedAt: a.now(),
		}
		if err := a.sink.Send(ctx, n); err != nil {
			a.logger.Warn("high-risk admin alert failed", "admin_id", admin.ID, "error", err)
		}
	}
}
