// Package ledger tracks investments and their repayment schedules.
//
// It is the system of record the risk engine reads: a borrower's active
// debt, completion history, and defaults all come from here. Creating an
// investment is gated by the risk threshold validator and followed by an
// automatic risk assessment; both hooks are injected so the ledger stays
// decoupled from the scoring engine.
package ledger

import (
	"context"
	"errors"
	"time"
)

var ErrInvestmentNotFound = errors.New("investment not found")

// Status is the lifecycle state of an investment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDefaulted Status = "defaulted"
	StatusCancelled Status = "cancelled"
)

// RepaymentStatus is the state of one scheduled repayment.
type RepaymentStatus string

const (
	RepaymentPending   RepaymentStatus = "pending"
	RepaymentCompleted RepaymentStatus = "completed"
	RepaymentLate      RepaymentStatus = "late"
)

// Repayment is one installment in an investment's repayment schedule.
type Repayment struct {
	DueDate time.Time       `json:"dueDate"`
	PaidAt  *time.Time      `json:"paidAt,omitempty"`
	Amount  float64         `json:"amount"`
	Status  RepaymentStatus `json:"status"`
}

// OnTime reports whether the repayment was completed on or before its due date.
func (r Repayment) OnTime() bool {
	return r.Status == RepaymentCompleted && r.PaidAt != nil && !r.PaidAt.After(r.DueDate)
}

// Investment is a funding request from a borrower, optionally funded by an
// investor.
type Investment struct {
	ID             string      `json:"id"`
	BorrowerID     string      `json:"borrowerId"`
	InvestorID     string      `json:"investorId,omitempty"`
	Amount         float64     `json:"amount"`
	Purpose        string      `json:"purpose"`
	Description    string      `json:"description"`
	DurationMonths int         `json:"durationMonths"`
	Status         Status      `json:"status"`
	Repayments     []Repayment `json:"repaymentSchedule,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// RepaidOnTime reports whether the investment completed with every
// installment paid on or before its due date.
func (inv *Investment) RepaidOnTime() bool {
	if inv.Status != StatusCompleted || len(inv.Repayments) == 0 {
		return false
	}
	for _, r := range inv.Repayments {
		if !r.OnTime() {
			return false
		}
	}
	return true
}

// SimilarQuery selects comparable investments for historical comparison.
type SimilarQuery struct {
	Purpose   string
	MinAmount float64
	MaxAmount float64
	ExcludeID string
	Limit     int
}

// Store persists investments.
type Store interface {
	Create(ctx context.Context, inv *Investment) error
	Get(ctx context.Context, id string) (*Investment, error)
	Update(ctx context.Context, inv *Investment) error
	// ListByBorrower returns the borrower's investments, optionally
	// filtered by status (empty status means all).
	ListByBorrower(ctx context.Context, borrowerID string, status Status) ([]*Investment, error)
	// ListByInvestor returns investments funded by the given investor.
	ListByInvestor(ctx context.Context, investorID string) ([]*Investment, error)
	// ListSimilar returns investments matching the query, excluding the
	// given ID.
	ListSimilar(ctx context.Context, q SimilarQuery) ([]*Investment, error)
}
