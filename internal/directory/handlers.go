package directory

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/idgen"
)

// Handler provides HTTP endpoints for users and documents
type Handler struct {
	store Store
}

// NewHandler creates a new directory handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up user endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)
	r.PUT("/users/:id", h.UpdateUser)
	r.POST("/users/:id/documents", h.AddDocument)
	r.GET("/users/:id/documents", h.ListDocuments)
}

// createUserRequest is the body for registering a user.
type createUserRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone"`
	Bio       string `json:"bio"`
	Location  string `json:"location"`
}

// CreateUser registers a platform member.
// POST /v1/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "firstName, lastName, and a valid email are required",
		})
		return
	}

	u := &User{
		ID:                 idgen.WithPrefix("usr_"),
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Email:              req.Email,
		Phone:              req.Phone,
		Bio:                req.Bio,
		Location:           req.Location,
		VerificationStatus: VerificationUnverified,
		KYCLevel:           KYCNone,
		JoinedAt:           time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), u); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create user",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

// GetUser returns one user by ID.
// GET /v1/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
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
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// UpdateUser replaces the user's mutable profile and verification fields.
// PUT /v1/users/:id
func (h *Handler) UpdateUser(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
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

	var u User
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid user payload",
		})
		return
	}
	// Identity and derived fields are not client-writable.
	u.ID = existing.ID
	u.JoinedAt = existing.JoinedAt
	u.ReputationScore = existing.ReputationScore
	u.ReputationLevel = existing.ReputationLevel
	u.ReputationUpdatedAt = existing.ReputationUpdatedAt

	if err := h.store.Update(ctx, &u); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "update_failed",
			"message": "Failed to update user",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// addDocumentRequest is the body for uploading document metadata.
type addDocumentRequest struct {
	Type           DocumentType       `json:"type" binding:"required"`
	Status         VerificationStatus `json:"status"`
	VirusScanClean bool               `json:"virusScanClean"`
	Unique         bool               `json:"unique"`
}

// AddDocument records an uploaded document for a user.
// POST /v1/users/:id/documents
func (h *Handler) AddDocument(c *gin.Context) {
	userID := c.Param("id")

	var req addDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "type is required",
		})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.Get(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
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

	status := req.Status
	if status == "" {
		status = VerificationPending
	}
	d := &Document{
		ID:             idgen.WithPrefix("doc_"),
		UserID:         userID,
		Type:           req.Type,
		Status:         status,
		VirusScanClean: req.VirusScanClean,
		Unique:         req.Unique,
		UploadedAt:     time.Now(),
	}
	if err := h.store.AddDocument(ctx, d); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to add document",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": d})
}

// ListDocuments returns a user's documents, newest first.
// GET /v1/users/:id/documents
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.store.ListDocuments(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to list documents",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"count":     len(docs),
	})
}
