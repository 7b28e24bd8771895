package reputation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresSnapshotStore persists reputation history in PostgreSQL.
type PostgresSnapshotStore struct {
	db *sql.DB
}

// NewPostgresSnapshotStore creates a PostgreSQL-backed snapshot store.
func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

// Migrate creates the reputation_snapshots table if it doesn't exist.
func (s *PostgresSnapshotStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reputation_snapshots (
			id          BIGSERIAL PRIMARY KEY,
			user_id     VARCHAR(40) NOT NULL,
			score       INTEGER NOT NULL,
			level       VARCHAR(16) NOT NULL,
			factors     JSONB NOT NULL DEFAULT '{}',
			reason      TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reputation_snapshots_user
			ON reputation_snapshots (user_id, recorded_at DESC);
	`)
	return err
}

func (s *PostgresSnapshotStore) Append(ctx context.Context, snap *Snapshot) error {
	factors, err := json.Marshal(snap.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reputation_snapshots (user_id, score, level, factors, reason, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, snap.UserID, snap.Score, snap.Level, factors, snap.Reason, snap.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) History(ctx context.Context, userID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, score, level, factors, reason, recorded_at
		FROM reputation_snapshots
		WHERE user_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Snapshot
	for rows.Next() {
		var snap Snapshot
		var factorsRaw []byte
		if err := rows.Scan(&snap.UserID, &snap.Score, &snap.Level, &factorsRaw, &snap.Reason, &snap.RecordedAt); err != nil {
			continue
		}
		_ = json.Unmarshal(factorsRaw, &snap.Factors)
		result = append(result, &snap)
	}
	return result, rows.Err()
}
