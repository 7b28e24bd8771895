package ledger

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/idgen"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/logging"
)

// CreationGate is consulted before an investment is created. A non-nil
// rejection payload aborts creation and is returned to the caller verbatim.
// The risk package provides the production implementation; the indirection
// keeps the ledger free of a dependency on the scoring engine.
type CreationGate interface {
	CheckInvestment(ctx context.Context, borrowerID string, amount float64) (rejection interface{}, err error)
}

// CreationHook runs after an investment is persisted. Implementations must
// not block; the production hook kicks off the initial risk assessment.
type CreationHook interface {
	InvestmentCreated(ctx context.Context, investmentID string)
}

// Handler provides HTTP endpoints for investments
type Handler struct {
	store Store
	gate  CreationGate
	hook  CreationHook
}

// NewHandler creates a new investment handler. gate and hook may be nil.
func NewHandler(store Store, gate CreationGate, hook CreationHook) *Handler {
	return &Handler{store: store, gate: gate, hook: hook}
}

// RegisterRoutes sets up investment endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/investments", h.CreateInvestment)
	r.GET("/investments/:id", h.GetInvestment)
	r.PATCH("/investments/:id/status", h.UpdateStatus)
	r.GET("/investments/borrower/:borrowerId", h.ListByBorrower)
}

// createRequest is the body for creating an investment.
type createRequest struct {
	BorrowerID     string  `json:"borrowerId" binding:"required"`
	InvestorID     string  `json:"investorId"`
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	Purpose        string  `json:"purpose" binding:"required"`
	Description    string  `json:"description"`
	DurationMonths int     `json:"durationMonths" binding:"required,gt=0"`
}

// CreateInvestment creates an investment. The request is first checked
// against the risk thresholds; a rejection is returned as-is with 422.
// POST /v1/investments
func (h *Handler) CreateInvestment(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "borrowerId, amount, purpose, and durationMonths are required",
		})
		return
	}

	ctx := c.Request.Context()
	if h.gate != nil {
		rejection, err := h.gate.CheckInvestment(ctx, req.BorrowerID, req.Amount)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "validation_unavailable",
				"message": "Risk validation is temporarily unavailable",
			})
			return
		}
		if rejection != nil {
			c.JSON(http.StatusUnprocessableEntity, rejection)
			return
		}
	}

	now := time.Now()
	inv := &Investment{
		ID:             idgen.WithPrefix("inv_"),
		BorrowerID:     req.BorrowerID,
		InvestorID:     req.InvestorID,
		Amount:         req.Amount,
		Purpose:        req.Purpose,
		Description:    req.Description,
		DurationMonths: req.DurationMonths,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.Create(ctx, inv); err != nil {
		logging.L(ctx).Error("investment create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create investment",
		})
		return
	}

	if h.hook != nil {
		h.hook.InvestmentCreated(ctx, inv.ID)
	}

	c.JSON(http.StatusCreated, gin.H{"investment": inv})
}

// GetInvestment returns one investment by ID.
// GET /v1/investments/:id
func (h *Handler) GetInvestment(c *gin.Context) {
	inv, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrInvestmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "investment_not_found",
				"message": "Investment not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to load investment",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"investment": inv})
}

// statusRequest is the body for a status transition.
type statusRequest struct {
	Status Status `json:"status" binding:"required"`
}

var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusActive:    true,
	StatusCompleted: true,
	StatusDefaulted: true,
	StatusCancelled: true,
}

// UpdateStatus transitions an investment's lifecycle state.
// PATCH /v1/investments/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status must be one of pending, active, completed, defaulted, cancelled",
		})
		return
	}

	ctx := c.Request.Context()
	inv, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrInvestmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "investment_not_found",
				"message": "Investment not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to load investment",
		})
		return
	}

	inv.Status = req.Status
	inv.UpdatedAt = time.Now()
	if err := h.store.Update(ctx, inv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "update_failed",
			"message": "Failed to update investment",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"investment": inv})
}

// ListByBorrower returns a borrower's investments, optionally filtered by
// status.
// GET /v1/investments/borrower/:borrowerId?status=active
func (h *Handler) ListByBorrower(c *gin.Context) {
	status := Status(c.Query("status"))
	if status != "" && !validStatuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "unknown status filter",
		})
		return
	}

	investments, err := h.store.ListByBorrower(c.Request.Context(), c.Param("borrowerId"), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to list investments",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"investments": investments,
		"count":       len(investments),
	})
}
