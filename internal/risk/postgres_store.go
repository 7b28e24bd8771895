package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists risk assessments in PostgreSQL.
//
// The single-active-per-investment invariant is enforced by a partial unique
// index, so concurrent writers racing past GetActive still cannot create two
// active rows. The loser gets ErrConflict and retries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id                 VARCHAR(40) PRIMARY KEY,
			investment_id      VARCHAR(40) NOT NULL,
			borrower_id        VARCHAR(40) NOT NULL,
			version            VARCHAR(10) NOT NULL,
			overall_risk_score INTEGER NOT NULL CHECK (overall_risk_score BETWEEN 0 AND 100),
			risk_level         VARCHAR(12) NOT NULL,
			payload            JSONB NOT NULL DEFAULT '{}',
			assessed_at        TIMESTAMPTZ NOT NULL,
			assessed_by        VARCHAR(12) NOT NULL DEFAULT 'algorithm',
			last_reassessment  TIMESTAMPTZ,
			next_reassessment  TIMESTAMPTZ NOT NULL,
			is_active          BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_risk_assessments_active
			ON risk_assessments (investment_id) WHERE is_active;

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_borrower
			ON risk_assessments (borrower_id, assessed_at DESC) WHERE is_active;

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_due
			ON risk_assessments (next_reassessment) WHERE is_active;
	`)
	return err
}

// assessmentPayload carries the structured parts of an assessment in one
// JSONB column.
type assessmentPayload struct {
	RiskFactors     []Factor                 `json:"riskFactors"`
	CategoryScores  map[string]CategoryScore `json:"categoryScores"`
	Recommendations []Recommendation         `json:"recommendations"`
	Metadata        AlgorithmMetadata        `json:"algorithmMetadata"`
	Overrides       []ManualOverride         `json:"manualOverrides,omitempty"`
	Comparisons     HistoricalComparisons    `json:"historicalComparisons"`
}

func (s *PostgresStore) Create(ctx context.Context, a *Assessment) error {
	payload, err := json.Marshal(assessmentPayload{
		RiskFactors:     a.RiskFactors,
		CategoryScores:  a.CategoryScores,
		Recommendations: a.Recommendations,
		Metadata:        a.Metadata,
		Overrides:       a.Overrides,
		Comparisons:     a.Comparisons,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal assessment payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (
			id, investment_id, borrower_id, version, overall_risk_score,
			risk_level, payload, assessed_at, assessed_by,
			last_reassessment, next_reassessment, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		a.ID, a.InvestmentID, a.BorrowerID, a.Version, a.OverallRiskScore,
		string(a.RiskLevel), payload, a.AssessedAt, string(a.AssessedBy),
		nullTimePtr(a.LastReassessment), a.NextReassessment, a.IsActive,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

const assessmentColumns = `id, investment_id, borrower_id, version, overall_risk_score,
	risk_level, payload, assessed_at, assessed_by,
	last_reassessment, next_reassessment, is_active`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Assessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM risk_assessments WHERE id = $1`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssessmentNotFound
	}
	return a, err
}

func (s *PostgresStore) GetActive(ctx context.Context, investmentID string) (*Assessment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+assessmentColumns+` FROM risk_assessments
		WHERE investment_id = $1 AND is_active
	`, investmentID)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssessmentNotFound
	}
	return a, err
}

func (s *PostgresStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE risk_assessments SET is_active = FALSE, last_reassessment = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to deactivate assessment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAssessmentNotFound
	}
	return nil
}

func (s *PostgresStore) AppendOverride(ctx context.Context, id string, o ManualOverride) error {
	override, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal override: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE risk_assessments SET payload = jsonb_set(
			payload,
			'{manualOverrides}',
			COALESCE(payload->'manualOverrides', '[]'::jsonb) || $2::jsonb
		)
		WHERE id = $1
	`, id, override)
	if err != nil {
		return fmt.Errorf("failed to append override: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAssessmentNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveByBorrower(ctx context.Context, borrowerID string, limit int) ([]*Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryAssessments(ctx, `
		SELECT `+assessmentColumns+` FROM risk_assessments
		WHERE borrower_id = $1 AND is_active
		ORDER BY assessed_at DESC
		LIMIT $2
	`, borrowerID, limit)
}

func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Assessment, error) {
	if limit <= 0 {
		limit = batchLimit
	}
	return s.queryAssessments(ctx, `
		SELECT `+assessmentColumns+` FROM risk_assessments
		WHERE is_active AND next_reassessment < $1
		ORDER BY next_reassessment ASC
		LIMIT $2
	`, now, limit)
}

func (s *PostgresStore) ListActiveSince(ctx context.Context, cutoff time.Time) ([]*Assessment, error) {
	return s.queryAssessments(ctx, `
		SELECT `+assessmentColumns+` FROM risk_assessments
		WHERE is_active AND assessed_at >= $1
		ORDER BY assessed_at ASC
	`, cutoff)
}

func (s *PostgresStore) ListActiveByBorrowerSince(ctx context.Context, borrowerID string, cutoff time.Time) ([]*Assessment, error) {
	return s.queryAssessments(ctx, `
		SELECT `+assessmentColumns+` FROM risk_assessments
		WHERE borrower_id = $1 AND is_active AND assessed_at >= $2
		ORDER BY assessed_at ASC
	`, borrowerID, cutoff)
}

func (s *PostgresStore) queryAssessments(ctx context.Context, query string, args ...interface{}) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			continue
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssessment(row rowScanner) (*Assessment, error) {
	var a Assessment
	var payloadRaw []byte
	var level, assessedBy string
	var lastReassessment sql.NullTime

	err := row.Scan(
		&a.ID, &a.InvestmentID, &a.BorrowerID, &a.Version, &a.OverallRiskScore,
		&level, &payloadRaw, &a.AssessedAt, &assessedBy,
		&lastReassessment, &a.NextReassessment, &a.IsActive,
	)
	if err != nil {
		return nil, err
	}

	var payload assessmentPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessment payload: %w", err)
	}
	a.RiskFactors = payload.RiskFactors
	a.CategoryScores = payload.CategoryScores
	a.Recommendations = payload.Recommendations
	a.Metadata = payload.Metadata
	a.Overrides = payload.Overrides
	a.Comparisons = payload.Comparisons

	a.RiskLevel = Level(level)
	a.AssessedBy = AssessedBy(assessedBy)
	if lastReassessment.Valid {
		a.LastReassessment = &lastReassessment.Time
	}
	return &a, nil
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
