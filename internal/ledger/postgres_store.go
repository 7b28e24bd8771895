package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists investments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed investment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the investments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS investments (
			id              VARCHAR(40) PRIMARY KEY,
			borrower_id     VARCHAR(40) NOT NULL,
			investor_id     VARCHAR(40) NOT NULL DEFAULT '',
			amount          NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			purpose         TEXT NOT NULL DEFAULT '',
			description     TEXT NOT NULL DEFAULT '',
			duration_months INTEGER NOT NULL DEFAULT 0,
			status          VARCHAR(12) NOT NULL CHECK (status IN ('pending', 'active', 'completed', 'defaulted', 'cancelled')),
			repayments      JSONB NOT NULL DEFAULT '[]',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_investments_borrower
			ON investments (borrower_id, status);

		CREATE INDEX IF NOT EXISTS idx_investments_purpose_amount
			ON investments (purpose, amount);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, inv *Investment) error {
	repayments, err := json.Marshal(inv.Repayments)
	if err != nil {
		return fmt.Errorf("failed to marshal repayments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO investments (id, borrower_id, investor_id, amount, purpose, description, duration_months, status, repayments, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		inv.ID, inv.BorrowerID, inv.InvestorID, inv.Amount, inv.Purpose,
		inv.Description, inv.DurationMonths, string(inv.Status), repayments,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}
	return nil
}

const investmentColumns = `id, borrower_id, investor_id, amount, purpose, description, duration_months, status, repayments, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Investment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id)
	inv, err := scanInvestment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvestmentNotFound
	}
	return inv, err
}

func (s *PostgresStore) Update(ctx context.Context, inv *Investment) error {
	repayments, err := json.Marshal(inv.Repayments)
	if err != nil {
		return fmt.Errorf("failed to marshal repayments: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE investments SET
			investor_id = $2, amount = $3, purpose = $4, description = $5,
			duration_months = $6, status = $7, repayments = $8, updated_at = NOW()
		WHERE id = $1
	`,
		inv.ID, inv.InvestorID, inv.Amount, inv.Purpose, inv.Description,
		inv.DurationMonths, string(inv.Status), repayments,
	)
	if err != nil {
		return fmt.Errorf("failed to update investment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrInvestmentNotFound
	}
	return nil
}

func (s *PostgresStore) ListByBorrower(ctx context.Context, borrowerID string, status Status) ([]*Investment, error) {
	if status == "" {
		return s.queryInvestments(ctx, `
			SELECT `+investmentColumns+` FROM investments
			WHERE borrower_id = $1 ORDER BY created_at
		`, borrowerID)
	}
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+` FROM investments
		WHERE borrower_id = $1 AND status = $2 ORDER BY created_at
	`, borrowerID, string(status))
}

func (s *PostgresStore) ListByInvestor(ctx context.Context, investorID string) ([]*Investment, error) {
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+` FROM investments
		WHERE investor_id = $1 ORDER BY created_at
	`, investorID)
}

func (s *PostgresStore) ListSimilar(ctx context.Context, q SimilarQuery) ([]*Investment, error) {
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+` FROM investments
		WHERE purpose = $1 AND amount BETWEEN $2 AND $3 AND id <> $4
		ORDER BY created_at
		LIMIT $5
	`, q.Purpose, q.MinAmount, q.MaxAmount, q.ExcludeID, q.Limit)
}

func (s *PostgresStore) queryInvestments(ctx context.Context, query string, args ...interface{}) ([]*Investment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			continue
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvestment(row rowScanner) (*Investment, error) {
	var inv Investment
	var status string
	var repaymentsRaw []byte
	err := row.Scan(
		&inv.ID, &inv.BorrowerID, &inv.InvestorID, &inv.Amount, &inv.Purpose,
		&inv.Description, &inv.DurationMonths, &status, &repaymentsRaw,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	_ = json.Unmarshal(repaymentsRaw, &inv.Repayments)
	return &inv, nil
}
