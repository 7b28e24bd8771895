package risk

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for risk assessments
type Handler struct {
	assessor  *Assessor
	validator *ThresholdValidator
	scheduler *Scheduler
	store     Store
}

// NewHandler creates a new risk handler
func NewHandler(assessor *Assessor, validator *ThresholdValidator, scheduler *Scheduler, store Store) *Handler {
	return &Handler{
		assessor:  assessor,
		validator: validator,
		scheduler: scheduler,
		store:     store,
	}
}

// RegisterRoutes sets up risk assessment endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/risk/assess/:investmentId", h.AssessInvestment)
	r.GET("/risk/investment/:investmentId", h.GetActiveAssessment)
	r.GET("/risk/assessment/:id", h.GetAssessment)
	r.POST("/risk/assessment/:id/override", h.RecordOverride)
	r.POST("/risk/validate", h.ValidateThreshold)
	r.GET("/risk/trends/:borrowerId", h.GetBorrowerTrend)
	r.GET("/risk/report", h.GetReport)
}

// AssessInvestment runs a fresh risk assessment for an investment.
// POST /v1/risk/assess/:investmentId
func (h *Handler) AssessInvestment(c *gin.Context) {
	investmentID := c.Param("investmentId")

	assessment, err := h.assessor.Assess(c.Request.Context(), investmentID)
	if err != nil {
		status := http.StatusInternalServerError
		code := "assessment_failed"
		if errors.Is(err, ErrConflict) {
			status = http.StatusConflict
			code = "assessment_conflict"
		}
		c.JSON(status, gin.H{
			"error":   code,
			"message": "Failed to assess investment",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"assessment": assessment})
}

// GetActiveAssessment returns the active assessment for an investment.
// GET /v1/risk/investment/:investmentId
func (h *Handler) GetActiveAssessment(c *gin.Context) {
	investmentID := c.Param("investmentId")

	assessment, err := h.store.GetActive(c.Request.Context(), investmentID)
	if err != nil {
		if errors.Is(err, ErrAssessmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "assessment_not_found",
				"message": "No active risk assessment for this investment",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to load risk assessment",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"assessment": assessment})
}

// GetAssessment returns one assessment by ID, active or historical.
// GET /v1/risk/assessment/:id
func (h *Handler) GetAssessment(c *gin.Context) {
	id := c.Param("id")

	assessment, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAssessmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "assessment_not_found",
				"message": "Risk assessment not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to load risk assessment",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"assessment": assessment})
}

// overrideRequest is the body for recording a manual factor override.
type overrideRequest struct {
	Factor        string  `json:"factor" binding:"required"`
	OriginalScore float64 `json:"originalScore"`
	NewScore      float64 `json:"newScore"`
	Reason        string  `json:"reason" binding:"required"`
	OverriddenBy  string  `json:"overriddenBy" binding:"required"`
}

// RecordOverride appends a manual override to an assessment's audit trail.
// POST /v1/risk/assessment/:id/override
func (h *Handler) RecordOverride(c *gin.Context) {
	id := c.Param("id")

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "factor, reason, and overriddenBy are required",
		})
		return
	}

	err := h.assessor.RecordOverride(c.Request.Context(), id, ManualOverride{
		Factor:        req.Factor,
		OriginalScore: req.OriginalScore,
		NewScore:      req.NewScore,
		Reason:        req.Reason,
		OverriddenBy:  req.OverriddenBy,
	})
	if err != nil {
		if errors.Is(err, ErrAssessmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "assessment_not_found",
				"message": "Risk assessment not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "override_failed",
			"message": "Failed to record override",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// validateRequest is the body for a threshold pre-check.
type validateRequest struct {
	BorrowerID string  `json:"borrowerId" binding:"required"`
	Amount     float64 `json:"amount"`
}

// ValidateThreshold checks a proposed investment against the risk thresholds
// without creating anything.
// POST /v1/risk/validate
func (h *Handler) ValidateThreshold(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'borrowerId'",
		})
		return
	}

	rejection, err := h.validator.Validate(c.Request.Context(), req.BorrowerID, req.Amount)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "validation_unavailable",
			"message": "Risk validation is temporarily unavailable",
		})
		return
	}
	if rejection != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"allowed":   false,
			"rejection": rejection,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowed": true})
}

// GetBorrowerTrend returns the borrower's recent assessments and trend.
// GET /v1/risk/trends/:borrowerId?days=90
func (h *Handler) GetBorrowerTrend(c *gin.Context) {
	borrowerID := c.Param("borrowerId")

	days := 90
	if d := c.Query("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			days = parsed
			if days > 365 {
				days = 365
			}
		}
	}

	history, trend, err := h.assessor.BorrowerTrend(c.Request.Context(), borrowerID, time.Duration(days)*24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to query risk trend",
		})
		return
	}

	points := make([]gin.H, 0, len(history))
	for _, a := range history {
		points = append(points, gin.H{
			"assessmentId": a.ID,
			"investmentId": a.InvestmentID,
			"riskScore":    a.OverallRiskScore,
			"riskLevel":    a.RiskLevel,
			"assessedAt":   a.AssessedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"borrowerId": borrowerID,
		"days":       days,
		"trend":      trend,
		"points":     points,
	})
}

// GetReport returns an aggregate risk report.
// GET /v1/risk/report?days=30
func (h *Handler) GetReport(c *gin.Context) {
	days := 30
	if d := c.Query("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			days = parsed
			if days > 365 {
				days = 365
			}
		}
	}

	report, err := h.scheduler.BuildReport(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "report_failed",
			"message": "Failed to build risk report",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}
