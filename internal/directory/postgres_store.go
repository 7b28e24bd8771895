package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists users and documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users and documents tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                    VARCHAR(40) PRIMARY KEY,
			first_name            TEXT NOT NULL DEFAULT '',
			last_name             TEXT NOT NULL DEFAULT '',
			email                 TEXT NOT NULL DEFAULT '',
			phone                 TEXT NOT NULL DEFAULT '',
			profile               JSONB NOT NULL DEFAULT '{}',
			is_admin              BOOLEAN NOT NULL DEFAULT FALSE,
			verification_status   VARCHAR(16) NOT NULL DEFAULT 'unverified',
			kyc_level             VARCHAR(16) NOT NULL DEFAULT 'none',
			email_verified        BOOLEAN NOT NULL DEFAULT FALSE,
			phone_verified        BOOLEAN NOT NULL DEFAULT FALSE,
			mfa_enabled           BOOLEAN NOT NULL DEFAULT FALSE,
			social                JSONB NOT NULL DEFAULT '{}',
			login_count           INTEGER NOT NULL DEFAULT 0,
			last_active           TIMESTAMPTZ,
			joined_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reputation_score      INTEGER NOT NULL DEFAULT 0,
			reputation_level      VARCHAR(16) NOT NULL DEFAULT '',
			reputation_updated_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_users_reputation
			ON users (reputation_score DESC) WHERE reputation_level <> '';

		CREATE TABLE IF NOT EXISTS documents (
			id               VARCHAR(40) PRIMARY KEY,
			user_id          VARCHAR(40) NOT NULL REFERENCES users(id),
			doc_type         VARCHAR(20) NOT NULL,
			status           VARCHAR(16) NOT NULL DEFAULT 'pending',
			virus_scan_clean BOOLEAN NOT NULL DEFAULT FALSE,
			is_unique        BOOLEAN NOT NULL DEFAULT FALSE,
			uploaded_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents (user_id);
	`)
	return err
}

// profileJSON carries the free-text profile fields in one JSONB column.
type profileJSON struct {
	Bio            string `json:"bio,omitempty"`
	Location       string `json:"location,omitempty"`
	Occupation     string `json:"occupation,omitempty"`
	Education      string `json:"education,omitempty"`
	Skills         string `json:"skills,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// socialJSON carries the social-graph fields in one JSONB column.
type socialJSON struct {
	Followers   []string          `json:"followers,omitempty"`
	Following   []string          `json:"following,omitempty"`
	Connections []Connection      `json:"connections,omitempty"`
	SocialLinks map[string]string `json:"socialLinks,omitempty"`
	Badges      []string          `json:"badges,omitempty"`
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	profile, social, err := marshalUserJSON(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, first_name, last_name, email, phone, profile, is_admin,
			verification_status, kyc_level, email_verified, phone_verified,
			mfa_enabled, social, login_count, last_active, joined_at,
			reputation_score, reputation_level, reputation_updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Phone, profile, u.Admin,
		string(u.VerificationStatus), string(u.KYCLevel), u.EmailVerified, u.PhoneVerified,
		u.MFAEnabled, social, u.LoginCount, nullTime(u.LastActive), u.JoinedAt,
		u.ReputationScore, u.ReputationLevel, nullTime(u.ReputationUpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, first_name, last_name, email, phone, profile, is_admin,
	verification_status, kyc_level, email_verified, phone_verified,
	mfa_enabled, social, login_count, last_active, joined_at,
	reputation_score, reputation_level, reputation_updated_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *PostgresStore) Update(ctx context.Context, u *User) error {
	profile, social, err := marshalUserJSON(u)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			first_name = $2, last_name = $3, email = $4, phone = $5,
			profile = $6, is_admin = $7, verification_status = $8,
			kyc_level = $9, email_verified = $10, phone_verified = $11,
			mfa_enabled = $12, social = $13, login_count = $14,
			last_active = $15
		WHERE id = $1
	`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Phone,
		profile, u.Admin, string(u.VerificationStatus),
		string(u.KYCLevel), u.EmailVerified, u.PhoneVerified,
		u.MFAEnabled, social, u.LoginCount,
		nullTime(u.LastActive),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateReputation(ctx context.Context, id string, score int, level string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET reputation_score = $2, reputation_level = $3, reputation_updated_at = $4
		WHERE id = $1
	`, id, score, level, at)
	if err != nil {
		return fmt.Errorf("failed to update reputation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) ListAdmins(ctx context.Context) ([]*User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_admin AND verification_status = 'verified'
	`)
}

func (s *PostgresStore) ListTopReputation(ctx context.Context, limit int) ([]*User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE reputation_level <> ''
		ORDER BY reputation_score DESC
		LIMIT $1
	`, limit)
}

func (s *PostgresStore) ListStaleReputation(ctx context.Context, before time.Time, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE reputation_updated_at IS NULL OR reputation_updated_at < $1
		ORDER BY reputation_updated_at ASC NULLS FIRST
		LIMIT $2
	`, before, limit)
}

func (s *PostgresStore) ReputationDistribution(ctx context.Context) (map[string]LevelStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reputation_level, COUNT(*), AVG(reputation_score)
		FROM users
		WHERE reputation_level <> ''
		GROUP BY reputation_level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reputation distribution: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]LevelStats)
	for rows.Next() {
		var level string
		var stats LevelStats
		if err := rows.Scan(&level, &stats.Count, &stats.AvgScore); err != nil {
			continue
		}
		result[level] = stats
	}
	return result, rows.Err()
}

func (s *PostgresStore) AddDocument(ctx context.Context, d *Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, doc_type, status, virus_scan_clean, is_unique, uploaded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, d.ID, d.UserID, string(d.Type), string(d.Status), d.VirusScanClean, d.Unique, d.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, doc_type, status, virus_scan_clean, is_unique, uploaded_at
		FROM documents WHERE user_id = $1 ORDER BY uploaded_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Document
	for rows.Next() {
		var d Document
		var docType, status string
		if err := rows.Scan(&d.ID, &d.UserID, &docType, &status, &d.VirusScanClean, &d.Unique, &d.UploadedAt); err != nil {
			continue
		}
		d.Type = DocumentType(docType)
		d.Status = VerificationStatus(status)
		result = append(result, &d)
	}
	return result, rows.Err()
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			continue
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var profileRaw, socialRaw []byte
	var status, kyc string
	var lastActive, repUpdated sql.NullTime

	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &profileRaw, &u.Admin,
		&status, &kyc, &u.EmailVerified, &u.PhoneVerified,
		&u.MFAEnabled, &socialRaw, &u.LoginCount, &lastActive, &u.JoinedAt,
		&u.ReputationScore, &u.ReputationLevel, &repUpdated,
	)
	if err != nil {
		return nil, err
	}

	var profile profileJSON
	_ = json.Unmarshal(profileRaw, &profile)
	u.Bio = profile.Bio
	u.Location = profile.Location
	u.Occupation = profile.Occupation
	u.Education = profile.Education
	u.Skills = profile.Skills
	u.ProfilePicture = profile.ProfilePicture

	var social socialJSON
	_ = json.Unmarshal(socialRaw, &social)
	u.Followers = social.Followers
	u.Following = social.Following
	u.Connections = social.Connections
	u.SocialLinks = social.SocialLinks
	u.Badges = social.Badges

	u.VerificationStatus = VerificationStatus(status)
	u.KYCLevel = KYCLevel(kyc)
	if lastActive.Valid {
		u.LastActive = lastActive.Time
	}
	if repUpdated.Valid {
		u.ReputationUpdatedAt = repUpdated.Time
	}
	return &u, nil
}

func marshalUserJSON(u *User) ([]byte, []byte, error) {
	profile, err := json.Marshal(profileJSON{
		Bio:            u.Bio,
		Location:       u.Location,
		Occupation:     u.Occupation,
		Education:      u.Education,
		Skills:         u.Skills,
		ProfilePicture: u.ProfilePicture,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	social, err := json.Marshal(socialJSON{
		Followers:   u.Followers,
		Following:   u.Following,
		Connections: u.Connections,
		SocialLinks: u.SocialLinks,
		Badges:      u.Badges,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal social: %w", err)
	}
	return profile, social, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
