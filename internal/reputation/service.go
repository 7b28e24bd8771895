package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/idgen"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/metrics"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/notify"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/traces"
)

const defaultHistoryLimit = 20

// Service computes, persists, and serves reputation scores.
type Service struct {
	users       directory.Store
	investments ledger.Store
	snapshots   SnapshotStore
	sink        notify.Sink
	calculator  *Calculator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a reputation service.
func NewService(users directory.Store, investments ledger.Store, snapshots SnapshotStore, sink notify.Sink, logger *slog.Logger) *Service {
	return &Service{
		users:       users,
		investments: investments,
		snapshots:   snapshots,
		sink:        sink,
		calculator:  NewCalculator(),
		logger:      logger,
		now:         time.Now,
	}
}

// Compute recalculates the user's reputation from scratch, persists the
// derived fields on the user record, and appends a history snapshot. The
// user is notified when their level changes.
func (s *Service) Compute(ctx context.Context, userID string) (*Score, error) {
	ctx, span := traces.StartSpan(ctx, "reputation.compute", traces.UserID(userID))
	defer span.End()

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	borrowed, err := s.investments.ListByBorrower(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("load borrower history for %s: %w", userID, err)
	}
	invested, err := s.investments.ListByInvestor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load investor history for %s: %w", userID, err)
	}
	docs, err := s.users.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load documents for %s: %w", userID, err)
	}

	score := s.calculator.Calculate(u, borrowed, invested, docs)
	previousLevel := u.ReputationLevel

	if err := s.persist(ctx, score, "recompute"); err != nil {
		return nil, err
	}
	metrics.ReputationRecomputesTotal.Inc()

	if previousLevel != "" && previousLevel != score.Level {
		s.notifyLevelChange(u.ID, previousLevel, score)
	}

	s.logger.Info("reputation computed",
		"user_id", userID,
		"score", score.Total,
		"level", score.Level,
	)
	return score, nil
}

// AwardResult describes a manual point adjustment.
type AwardResult struct {
	PreviousScore int    `json:"previousScore"`
	NewScore      int    `json:"newScore"`
	PreviousLevel string `json:"previousLevel"`
	NewLevel      string `json:"newLevel"`
	PointsAwarded int    `json:"pointsAwarded"`
	Reason        string `json:"reason"`
}

// AwardPoints applies a manual adjustment on top of the user's current score.
// Points can be negative; the result never drops below zero.
func (s *Service) AwardPoints(ctx context.Context, userID string, points int, reason string) (*AwardResult, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	previousScore := u.ReputationScore
	previousLevel := u.ReputationLevel
	if previousLevel == "" {
		previousLevel = LevelFor(previousScore)
	}
	newScore := clampTotal(previousScore + points)
	newLevel := LevelFor(newScore)

	score := &Score{
		UserID:     userID,
		Total:      newScore,
		Level:      newLevel,
		Multiplier: MultiplierFor(newLevel),
		ComputedAt: s.now(),
	}
	if err := s.persist(ctx, score, reason); err != nil {
		return nil, err
	}
	if previousLevel != newLevel {
		s.notifyLevelChange(userID, previousLevel, score)
	}

	s.logger.Info("reputation points awarded",
		"user_id", userID,
		"points", points,
		"reason", reason,
		"new_score", newScore,
	)
	return &AwardResult{
		PreviousScore: previousScore,
		NewScore:      newScore,
		PreviousLevel: previousLevel,
		NewLevel:      newLevel,
		PointsAwarded: points,
		Reason:        reason,
	}, nil
}

func (s *Service) persist(ctx context.Context, score *Score, reason string) error {
	if err := s.users.UpdateReputation(ctx, score.UserID, score.Total, score.Level, score.ComputedAt); err != nil {
		return fmt.Errorf("persist reputation for %s: %w", score.UserID, err)
	}
	snapshot := &Snapshot{
		UserID:     score.UserID,
		Score:      score.Total,
		Level:      score.Level,
		Factors:    score.Factors,
		Reason:     reason,
		RecordedAt: score.ComputedAt,
	}
	if err := s.snapshots.Append(ctx, snapshot); err != nil {
		// History is best-effort; the authoritative score is already saved.
		s.logger.Warn("reputation snapshot append failed", "user_id", score.UserID, "error", err)
	}
	return nil
}

func (s *Service) notifyLevelChange(userID, previousLevel string, score *Score) {
	n := &notify.Notification{
		ID:        idgen.WithPrefix("ntf_"),
		Recipient: userID,
		Type:      notify.TypeReputationChanged,
		Title:     "Reputation Level Changed",
		Message: fmt.Sprintf("Your reputation level is now %s (score %d/%d).",
			score.Level, score.Total, MaxScore),
		Category: "reputation",
		Priority: notify.PriorityMedium,
		Data: map[string]interface{}{
			"previousLevel": previousLevel,
			"newLevel":      score.Level,
			"score":         score.Total,
			"multiplier":    score.Multiplier,
		},
		CreatedAt: s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.sink.Send(ctx, n); err != nil {
			s.logger.Warn("reputation notification failed", "user_id", userID, "error", err)
		}
	}()
}

// LeaderboardEntry is one row of the reputation leaderboard.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	Level          string `json:"level"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Leaderboard returns the top scored users.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	users, err := s.users.ListTopReputation(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:           i + 1,
			UserID:         u.ID,
			Name:           u.DisplayName(),
			Score:          u.ReputationScore,
			Level:          u.ReputationLevel,
			ProfilePicture: u.ProfilePicture,
		})
	}
	return entries, nil
}

// Distribution returns per-level user counts and average scores, averages
// rounded to two decimals.
func (s *Service) Distribution(ctx context.Context) (map[string]directory.LevelStats, error) {
	dist, err := s.users.ReputationDistribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("load distribution: %w", err)
	}
	for level, stats := range dist {
		stats.AvgScore = math.Round(stats.AvgScore*100) / 100
		dist[level] = stats
	}
	return dist, nil
}

// History returns the user's reputation snapshots, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.snapshots.History(ctx, userID, limit)
}
