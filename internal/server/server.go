// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/config"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/health"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/idgen"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/logging"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/metrics"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/notify"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ratelimit"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/realtime"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/reputation"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/risk"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/security"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/traces"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	users       directory.Store
	investments ledger.Store
	assessments risk.Store
	snapshots   reputation.SnapshotStore
	sink        notify.Sink

	assessor   *risk.Assessor
	validator  *risk.ThresholdValidator
	scheduler  *risk.Scheduler
	reputation *reputation.Service
	repWorker  *reputation.Worker

	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	healthChecks *health.Registry

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	tracesClose  func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSink sets a custom notification sink (for testing)
func WithSink(sink notify.Sink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, cfg.LogFormat),
		healthChecks: health.NewRegistry(),
	}

	// Apply options first (may set sink/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		userStore := directory.NewPostgresStore(db)
		if err := userStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate user store", "error", err)
		}
		s.users = userStore

		investmentStore := ledger.NewPostgresStore(db)
		if err := investmentStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate investment store", "error", err)
		}
		s.investments = investmentStore

		assessmentStore := risk.NewPostgresStore(db)
		if err := assessmentStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate assessment store", "error", err)
		}
		s.assessments = assessmentStore

		snapshotStore := reputation.NewPostgresSnapshotStore(db)
		if err := snapshotStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate snapshot store", "error", err)
		}
		s.snapshots = snapshotStore

		s.healthChecks.Register("database", health.DatabaseChecker(db))
	} else {
		s.users = directory.NewMemoryStore()
		s.investments = ledger.NewMemoryStore()
		s.assessments = risk.NewMemoryStore()
		s.snapshots = reputation.NewMemorySnapshotStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Notification sink (webhook if configured, otherwise in-memory)
	if s.sink == nil {
		if cfg.NotifyWebhookURL != "" {
			if err := security.ValidateEndpointURL(cfg.NotifyWebhookURL); err != nil {
				return nil, fmt.Errorf("invalid NOTIFY_WEBHOOK_URL: %w", err)
			}
			s.sink = notify.NewWebhookSink(cfg.NotifyWebhookURL, cfg.WebhookSecret, s.logger)
			s.logger.Info("webhook notifications enabled", "url", cfg.NotifyWebhookURL)
		} else {
			s.sink = notify.NewMemorySink()
			s.logger.Info("notifications enabled (in-memory)")
		}
	}

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Mirror notifications onto the WebSocket hub so dashboards see scoring
	// events without polling.
	sink := notify.Sink(&broadcastSink{inner: s.sink, hub: s.realtimeHub})

	// Risk engine
	s.assessor = risk.NewAssessor(s.investments, s.users, s.assessments, sink, s.logger)
	s.validator = risk.NewThresholdValidator(s.users, s.investments, s.assessments, cfg.ThresholdFailClosed, s.logger)
	s.scheduler = risk.NewScheduler(s.assessor, s.assessments, s.investments, sink, cfg.ReassessInterval, s.logger)
	s.logger.Info("risk engine enabled", "fail_closed", cfg.ThresholdFailClosed)

	// Reputation engine
	s.reputation = reputation.NewService(s.users, s.investments, s.snapshots, sink, s.logger)
	s.repWorker = reputation.NewWorker(
		s.reputation,
		cfg.ReputationRefreshInterval,
		cfg.ReputationMaxAge,
		cfg.ReputationBatchSize,
		s.logger,
	)
	s.logger.Info("reputation engine enabled",
		"refresh_interval", cfg.ReputationRefreshInterval,
		"max_age", cfg.ReputationMaxAge,
	)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Users and documents
	directory.NewHandler(s.users).RegisterRoutes(v1)

	// Investments, gated on risk thresholds; creation kicks off the initial
	// assessment in the background.
	gate := &thresholdGate{validator: s.validator}
	hook := &assessmentHook{
		assessor: s.assessor,
		hub:      s.realtimeHub,
		logger:   s.logger,
	}
	ledger.NewHandler(s.investments, gate, hook).RegisterRoutes(v1)

	// Risk assessments
	risk.NewHandler(s.assessor, s.validator, s.scheduler, s.assessments).RegisterRoutes(v1)

	// Reputation
	reputation.NewHandler(s.reputation, s.users).RegisterRoutes(v1)

	// Realtime hub stats (for dashboards)
	v1.GET("/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthChecks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Blockvest Risk & Reputation Engine",
		"description": "Risk scoring and reputation for social lending",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesClose = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start reassessment scheduler
	go s.scheduler.Start(runCtx)

	// Start reputation refresh worker
	go s.repWorker.Start(runCtx)

	// Sample DB pool stats into Prometheus
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, scheduler, worker)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop the reassessment scheduler
	s.scheduler.Stop()
	s.logger.Info("reassessment scheduler stopped")

	// Stop the reputation worker
	s.repWorker.Stop()
	s.logger.Info("reputation worker stopped")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.tracesClose != nil {
		if err := s.tracesClose(ctx); err != nil {
			s.logger.Warn("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// thresholdGate adapts risk.ThresholdValidator to ledger.CreationGate.
type thresholdGate struct {
	validator *risk.ThresholdValidator
}

func (g *thresholdGate) CheckInvestment(ctx context.Context, borrowerID string, amount float64) (interface{}, error) {
	rejection, err := g.validator.Validate(ctx, borrowerID, amount)
	if err != nil {
		return nil, err
	}
	if rejection == nil {
		// Returning the nil *Rejection directly would produce a non-nil
		// interface value and the handler would reject every request.
		return nil, nil
	}
	return rejection, nil
}

// assessmentHook adapts risk.Assessor to ledger.CreationHook. The initial
// assessment runs in the background so investment creation stays fast.
type assessmentHook struct {
	assessor *risk.Assessor
	hub      *realtime.Hub
	logger   *slog.Logger
}

func (h *assessmentHook) InvestmentCreated(ctx context.Context, investmentID string) {
	h.hub.BroadcastAssessment(realtime.EventInvestmentCreated, map[string]interface{}{
		"investmentId": investmentID,
	})

	requestID := logging.RequestID(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if requestID != "" {
			ctx = logging.WithRequestID(ctx, requestID)
		}

		assessment, err := h.assessor.Assess(ctx, investmentID)
		if err != nil {
			h.logger.Error("initial assessment failed",
				"investment_id", investmentID, "error", err)
			return
		}
		h.hub.BroadcastAssessment(realtime.EventAssessmentCompleted, map[string]interface{}{
			"investmentId": assessment.InvestmentID,
			"borrowerId":   assessment.BorrowerID,
			"riskScore":    assessment.OverallRiskScore,
			"riskLevel":    assessment.RiskLevel,
		})
	}()
}

// broadcastSink mirrors notifications onto the realtime hub before delegating
// to the configured sink.
type broadcastSink struct {
	inner notify.Sink
	hub   *realtime.Hub
}

func (s *broadcastSink) Send(ctx context.Context, n *notify.Notification) error {
	switch n.Type {
	case notify.TypeAssessmentUpdated:
		data := map[string]interface{}{"borrowerId": n.Recipient}
		for k, v := range n.Data {
			data[k] = v
		}
		// Reassessment payloads carry newScore; expose it under the key
		// subscription filters match on.
		if score, ok := data["newScore"]; ok {
			data["riskScore"] = score
		}
		s.hub.BroadcastAssessment(realtime.EventAssessmentUpdated, data)
	case notify.TypeReputationChanged:
		data := map[string]interface{}{"userId": n.Recipient}
		for k, v := range n.Data {
			data[k] = v
		}
		s.hub.BroadcastReputationChange(data)
	}
	return s.inner.Send(ctx, n)
}
