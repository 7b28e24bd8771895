package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/idgen"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/metrics"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/notify"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/traces"
)

// batchLimit bounds one reassessment sweep. Anything left over is picked up
// on the next tick.
const batchLimit = 200

// Scheduler periodically re-evaluates assessments whose review date has
// passed. One item failing never stops the batch.
type Scheduler struct {
	assessor    *Assessor
	assessments Store
	investments ledger.Store
	sink        notify.Sink
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	stop chan struct{}
}

// NewScheduler creates a reassessment scheduler that sweeps at the given
// interval.
func NewScheduler(assessor *Assessor, assessments Store, investments ledger.Store, sink notify.Sink, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		assessor:    assessor,
		assessments: assessments,
		investments: investments,
		sink:        sink,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
		stop:        make(chan struct{}, 1),
	}
}

// Start runs the sweep loop until Stop is called or ctx is done.
// Call in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reassessment scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("reassessment sweep failed", "error", err)
			}
		}
	}
}

// Stop signals the sweep loop to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

// RunOnce sweeps all overdue assessments once. Items whose investment is no
// longer active are skipped; individual failures are counted and logged.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, span := traces.StartSpan(ctx, "risk.reassess_sweep")
	defer span.End()

	overdue, err := s.assessments.ListOverdue(ctx, s.now(), batchLimit)
	if err != nil {
		return fmt.Errorf("list overdue assessments: %w", err)
	}
	if len(overdue) == 0 {
		return nil
	}

	s.logger.Info("reassessment sweep starting", "overdue", len(overdue))
	for _, old := range overdue {
		if err := s.reassessOne(ctx, old); err != nil {
			metrics.ReassessmentItemsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("reassessment failed",
				"assessment_id", old.ID,
				"investment_id", old.InvestmentID,
				"error", err,
			)
		}
	}
	return nil
}

func (s *Scheduler) reassessOne(ctx context.Context, old *Assessment) error {
	inv, err := s.investments.Get(ctx, old.InvestmentID)
	if err != nil {
		return fmt.Errorf("load investment: %w", err)
	}
	if inv.Status != ledger.StatusActive {
		metrics.ReassessmentItemsTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug("skipping reassessment of non-active investment",
			"investment_id", inv.ID, "status", inv.Status)
		return nil
	}

	prev, cur, err := s.assessor.Reassess(ctx, old.InvestmentID)
	if err != nil {
		return err
	}
	metrics.ReassessmentItemsTotal.WithLabelValues("reassessed").Inc()

	if prev != nil && scoreChanged(prev, cur) {
		s.notifyUpdated(ctx, prev, cur)
	}
	return nil
}

// scoreChanged reports whether the change is worth telling the borrower
// about: a swing of 10 points or more, or a different risk level.
func scoreChanged(prev, cur *Assessment) bool {
	diff := cur.OverallRiskScore - prev.OverallRiskScore
	if diff < 0 {
		diff = -diff
	}
	return diff >= notifyScoreDelta || prev.RiskLevel != cur.RiskLevel
}

func (s *Scheduler) notifyUpdated(ctx context.Context, prev, cur *Assessment) {
	priority := notify.PriorityMedium
	if cur.RiskLevel == LevelHigh || cur.RiskLevel == LevelVeryHigh {
		priority = notify.PriorityHigh
	}
	n := &notify.Notification{
		ID:        idgen.WithPrefix("ntf_"),
		Recipient: cur.BorrowerID,
		Type:      notify.TypeAssessmentUpdated,
		Title:     "Risk Assessment Updated",
		Message: fmt.Sprintf("Your risk profile has been updated. New score: %d/100 (%s risk).",
			cur.OverallRiskScore, cur.RiskLevel),
		Category: "investment",
		Priority: priority,
		Data: map[string]interface{}{
			"investmentId":    cur.InvestmentID,
			"oldScore":        prev.OverallRiskScore,
			"newScore":        cur.OverallRiskScore,
			"scoreDifference": cur.OverallRiskScore - prev.OverallRiskScore,
			"oldRiskLevel":    prev.RiskLevel,
			"newRiskLevel":    cur.RiskLevel,
		},
		CreatedAt: s.now(),
	}
	if err := s.sink.Send(ctx, n); err != nil {
		s.logger.Warn("reassessment notification failed",
			"investment_id", cur.InvestmentID, "error", err)
	}
}

// Report summarizes active assessments produced within a timeframe.
type Report struct {
	TimeframeDays    int            `json:"timeframeDays"`
	TotalAssessments int            `json:"totalAssessments"`
	AverageRiskScore int            `json:"averageRiskScore"`
	HighRiskPercent  int            `json:"highRiskPercentage"`
	RiskDistribution map[Level]int  `json:"riskDistribution"`
	CategoryAverages map[string]int `json:"categoryAverages"`
	GeneratedAt      time.Time      `json:"generatedAt"`
}

// BuildReport aggregates active assessments from the last timeframeDays days.
func (s *Scheduler) BuildReport(ctx context.Context, timeframeDays int) (*Report, error) {
	cutoff := s.now().AddDate(0, 0, -timeframeDays)
	assessments, err := s.assessments.ListActiveSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list assessments since %s: %w", cutoff.Format(time.RFC3339), err)
	}

	report := &Report{
		TimeframeDays:    timeframeDays,
		TotalAssessments: len(assessments),
		RiskDistribution: make(map[Level]int),
		CategoryAverages: make(map[string]int),
		GeneratedAt:      s.now(),
	}
	if len(assessments) == 0 {
		return report, nil
	}

	var scoreSum, highRisk int
	categorySums := make(map[string]int)
	for _, a := range assessments {
		scoreSum += a.OverallRiskScore
		report.RiskDistribution[a.RiskLevel]++
		if a.RiskLevel == LevelHigh || a.RiskLevel == LevelVeryHigh {
			highRisk++
		}
		for category, cs := range a.CategoryScores {
			categorySums[category] += cs.Score
		}
	}

	n := float64(len(assessments))
	report.AverageRiskScore = int(math.Round(float64(scoreSum) / n))
	report.HighRiskPercent = int(math.Round(float64(highRisk) / n * 100))
	for category, sum := range categorySums {
		report.CategoryAverages[category] = int(math.Round(float64(sum) / n))
	}
	return report, nil
}
