package reputation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
)

// Handler provides HTTP endpoints for reputation
type Handler struct {
	service *Service
	users   directory.Store
}

// NewHandler creates a new reputation handler
func NewHandler(service *Service, users directory.Store) *Handler {
	return &Handler{service: service, users: users}
}

// RegisterRoutes sets up reputation endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reputation/:userId", h.GetReputation)
	r.POST("/reputation/:userId/recompute", h.Recompute)
	r.POST("/reputation/:userId/award", h.AwardPoints)
	r.GET("/reputation/:userId/history", h.GetHistory)
	r.GET("/reputation/leaderboard", h.GetLeaderboard)
	r.GET("/reputation/distribution", h.GetDistribution)
}

// GetReputation returns the user's stored reputation.
// GET /v1/reputation/:userId
func (h *Handler) GetReputation(c *gin.Context) {
	userID := c.Param("userId")

	u, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "user_not_found",
				"message": "User not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to load user",
		})
		return
	}

	level := u.ReputationLevel
	if level == "" {
		level = LevelFor(u.ReputationScore)
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":     u.ID,
		"score":      u.ReputationScore,
		"level":      level,
		"multiplier": MultiplierFor(level),
		"updatedAt":  u.ReputationUpdatedAt,
	})
}

// Recompute recalculates the user's reputation from scratch.
// POST /v1/reputation/:userId/recompute
func (h *Handler) Recompute(c *gin.Context) {
	userID := c.Param("userId")

	score, err := h.service.Compute(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "user_not_found",
				"message": "User not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "compute_failed",
			"message": "Failed to compute reputation",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reputation": score})
}

// awardRequest is the body for a manual point adjustment.
type awardRequest struct {
	Points int    `json:"points" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AwardPoints applies a manual point adjustment.
// POST /v1/reputation/:userId/award
func (h *Handler) AwardPoints(c *gin.Context) {
	userID := c.Param("userId")

	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "points and reason are required",
		})
		return
	}

	result, err := h.service.AwardPoints(c.Request.Context(), userID, req.Points, req.Reason)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "user_not_found",
				"message": "User not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "award_failed",
			"message": "Failed to award points",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"award": result})
}

// GetHistory returns the user's reputation snapshots, newest first.
// GET /v1/reputation/:userId/history?limit=20
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.Param("userId")

	limit := defaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 100 {
				limit = 100
			}
		}
	}

	snapshots, err := h.service.History(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to query reputation history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":    userID,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// GetLeaderboard returns the top scored users.
// GET /v1/reputation/leaderboard?limit=10
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 10
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 100 {
				limit = 100
			}
		}
	}

	entries, err := h.service.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to load leaderboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// GetDistribution returns per-level user counts and average scores.
// GET /v1/reputation/distribution
func (h *Handler) GetDistribution(c *gin.Context) {
	dist, err := h.service.Distribution(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to load distribution",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"distribution": dist})
}
