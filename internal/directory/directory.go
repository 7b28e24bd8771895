// Package directory manages user profiles for the lending platform.
//
// It is the system of record for identity, verification state, social graph,
// and uploaded documents — the inputs both scoring engines read. The
// reputation fields on User are owned by the reputation package and written
// back through UpdateReputation.
package directory

import (
	"context"
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// VerificationStatus is the user's identity verification state.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
)

// KYCLevel is the depth of know-your-customer checks completed.
type KYCLevel string

const (
	KYCNone     KYCLevel = "none"
	KYCBasic    KYCLevel = "basic"
	KYCEnhanced KYCLevel = "enhanced"
	KYCPremium  KYCLevel = "premium"
)

// DocumentType classifies an uploaded document.
type DocumentType string

const (
	DocBankStatement DocumentType = "bank_statement"
	DocIncomeProof   DocumentType = "income_proof"
	DocTaxDocument   DocumentType = "tax_document"
	DocIdentity      DocumentType = "identity"
	DocOther         DocumentType = "other"
)

// FinancialDocumentTypes are the document types that count toward the
// financial-documents risk factor.
var FinancialDocumentTypes = map[DocumentType]bool{
	DocBankStatement: true,
	DocIncomeProof:   true,
	DocTaxDocument:   true,
}

// Document is an uploaded supporting document.
type Document struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId"`
	Type           DocumentType       `json:"type"`
	Status         VerificationStatus `json:"status"`
	VirusScanClean bool               `json:"virusScanClean"`
	Unique         bool               `json:"unique"` // passed the duplicate check
	UploadedAt     time.Time          `json:"uploadedAt"`
}

// Connection is an edge in the social graph with a computed strength.
type Connection struct {
	UserID   string  `json:"userId"`
	Strength float64 `json:"strength"` // [0,1]
}

// User is a platform member. Profile fields feed the reputation and risk
// scorers; reputation fields are derived and written by the reputation
// package only.
type User struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Location       string `json:"location,omitempty"`
	Occupation     string `json:"occupation,omitempty"`
	Education      string `json:"education,omitempty"`
	Skills         string `json:"skills,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`

	Admin              bool               `json:"admin"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	KYCLevel           KYCLevel           `json:"kycLevel"`
	EmailVerified      bool               `json:"emailVerified"`
	PhoneVerified      bool               `json:"phoneVerified"`
	MFAEnabled         bool               `json:"mfaEnabled"`

	Followers   []string          `json:"followers,omitempty"`
	Following   []string          `json:"following,omitempty"`
	Connections []Connection      `json:"connections,omitempty"`
	SocialLinks map[string]string `json:"socialLinks,omitempty"`
	Badges      []string          `json:"badges,omitempty"`

	LoginCount int       `json:"loginCount"`
	LastActive time.Time `json:"lastActive"`
	JoinedAt   time.Time `json:"joinedAt"`

	ReputationScore     int       `json:"reputationScore"`
	ReputationLevel     string    `json:"reputationLevel,omitempty"`
	ReputationUpdatedAt time.Time `json:"reputationUpdatedAt,omitempty"`
}

// Verified reports whether the user has completed identity verification.
func (u *User) Verified() bool {
	return u.VerificationStatus == VerificationVerified
}

// DisplayName is the user's full name for leaderboards and notifications.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// LevelStats summarizes one reputation level for distribution reports.
type LevelStats struct {
	Count    int     `json:"count"`
	AvgScore float64 `json:"avgScore"`
}

// Store persists users and their documents.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, u *User) error
	// UpdateReputation writes the derived reputation fields.
	UpdateReputation(ctx context.Context, id string, score int, level string, at time.Time) error
	// ListAdmins returns verified admin users, for high-risk alerts.
	ListAdmins(ctx context.Context) ([]*User, error)
	// ListTopReputation returns scored users ordered by score descending.
	ListTopReputation(ctx context.Context, limit int) ([]*User, error)
	// ListStaleReputation returns users whose reputation was last computed
	// before the cutoff (or never), up to limit.
	ListStaleReputation(ctx context.Context, before time.Time, limit int) ([]*User, error)
	// ReputationDistribution returns per-level counts and average scores.
	ReputationDistribution(ctx context.Context) (map[string]LevelStats, error)
	AddDocument(ctx context.Context, d *Document) error
	ListDocuments(ctx context.Context, userID string) ([]*Document, error)
}
