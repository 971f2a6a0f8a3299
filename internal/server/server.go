// Package server wires the dashboard, its scorers and the realtime stream
// into one HTTP server.
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

	"github.com/mbd888/fraudscope/internal/catalog"
	"github.com/mbd888/fraudscope/internal/charts"
	"github.com/mbd888/fraudscope/internal/circuitbreaker"
	"github.com/mbd888/fraudscope/internal/config"
	"github.com/mbd888/fraudscope/internal/dashboard"
	"github.com/mbd888/fraudscope/internal/health"
	"github.com/mbd888/fraudscope/internal/idgen"
	"github.com/mbd888/fraudscope/internal/logging"
	"github.com/mbd888/fraudscope/internal/metrics"
	"github.com/mbd888/fraudscope/internal/predict"
	"github.com/mbd888/fraudscope/internal/ratelimit"
	"github.com/mbd888/fraudscope/internal/realtime"
	"github.com/mbd888/fraudscope/internal/retry"
	"github.com/mbd888/fraudscope/internal/risk"
	"github.com/mbd888/fraudscope/internal/security"
	"github.com/mbd888/fraudscope/internal/traces"
	"github.com/mbd888/fraudscope/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	store       risk.Store
	engine      *risk.Engine
	breaker     *circuitbreaker.Breaker
	predictor   *predict.Client
	charts      *charts.Manager
	renderer    charts.Renderer
	realtimeHub *realtime.Hub
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	drain       time.Duration

	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

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

// WithStore sets the audit store, bypassing DATABASE_URL (for testing)
func WithStore(store risk.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithRenderer replaces the PNG chart renderer. A nil renderer leaves the
// registry empty and makes rebuilds fail.
func WithRenderer(r charts.Renderer) Option {
	return func(s *Server) {
		s.renderer = r
	}
}

// WithShutdownDrain sets how long Shutdown waits for load balancers to stop
// sending traffic.
func WithShutdownDrain(d time.Duration) Option {
	return func(s *Server) {
		s.drain = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logging.New(cfg.LogLevel, cfg.LogFormat),
		renderer: charts.NewPNGRenderer(),
		drain:    5 * time.Second,
	}

	// Apply options first (may set logger/store)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if cfg.RemoteEnabled() {
		if err := security.ValidatePredictURL(cfg.PredictURL); err != nil {
			return nil, fmt.Errorf("invalid PREDICT_URL: %w", err)
		}
	}

	// Audit storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.store == nil {
		if cfg.DatabaseURL != "" {
			if err := s.openDatabase(ctx); err != nil {
				return nil, err
			}
		} else {
			s.store = risk.NewMemoryStore()
			s.logger.Info("using in-memory audit store")
		}
	}

	s.engine = risk.NewEngine(s.store).WithJitter(risk.NewUniformJitter(cfg.JitterSeed))

	s.breaker = circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown).
		OnChange(func(endpoint string, from, to circuitbreaker.State) {
			s.logger.Warn("remote scoring breaker transition",
				"endpoint", endpoint,
				"from", from.String(),
				"to", to.String(),
			)
		})
	s.predictor = predict.New(cfg.PredictURL, cfg.PredictTimeout, s.engine).
		WithBreaker(s.breaker).
		WithStore(s.store)
	if s.predictor.RemoteEnabled() {
		s.logger.Info("remote scoring enabled", "endpoint", s.predictor.Endpoint(), "timeout", cfg.PredictTimeout)
	} else {
		s.logger.Info("remote scoring disabled, using local rules")
	}

	s.charts = charts.NewManager(s.renderer, charts.DashboardSurface(), s.logger)

	s.realtimeHub = realtime.NewHub(s.logger).
		WithGreeting(realtime.StatsGreeting(catalog.DashboardStats()))
	s.logger.Info("realtime streaming enabled")

	s.health = s.buildHealth()

	s.rateLimiter = ratelimit.New(ratelimit.FromRPM(cfg.RateLimitRPM))

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

func (s *Server) openDatabase(ctx context.Context) error {
	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.Do(ctx, retry.Startup, s.logger, "database ping", func(int) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pctx)
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	store := risk.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		s.logger.Warn("failed to migrate audit store", "error", err)
	}

	s.db = db
	s.store = store
	s.logger.Info("using PostgreSQL audit store", "url", maskDSN(s.cfg.DatabaseURL))
	return nil
}

// pinger is an audit store that can report connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) buildHealth() *health.Registry {
	reg := health.NewRegistry()

	if p, ok := s.store.(pinger); ok {
		reg.Register("audit_store", func(ctx context.Context) health.Status {
			if err := p.Ping(ctx); err != nil {
				return health.Status{Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		})
	}

	if s.predictor.RemoteEnabled() {
		endpoint := s.predictor.Endpoint()
		reg.RegisterOptional("remote_scoring", func(context.Context) health.Status {
			state := s.breaker.State(endpoint)
			return health.Status{
				Healthy: state != circuitbreaker.StateOpen,
				Detail:  breakerDetail(state, s.breaker.Snapshot(), endpoint),
			}
		})
	}

	reg.RegisterOptional("charts", func(context.Context) health.Status {
		n := s.charts.Len()
		return health.Status{Healthy: n > 0, Detail: fmt.Sprintf("%d live", n)}
	})

	return reg
}

func breakerDetail(state circuitbreaker.State, snapshot []circuitbreaker.EndpointStatus, endpoint string) string {
	detail := "breaker " + state.String()
	for _, es := range snapshot {
		if es.Endpoint == endpoint && es.Failures > 0 {
			detail += fmt.Sprintf(", %d consecutive failures", es.Failures)
		}
	}
	return detail
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
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	dashboard.NewHandler(s.engine, s.predictor).
		WithStore(s.store).
		WithCharts(s.charts).
		WithHub(s.realtimeHub).
		WithHealth(s.health).
		RegisterRoutes(&s.router.RouterGroup, s.rateLimiter.Middleware())

	s.router.NoRoute(dashboard.NotFound)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

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
	report := s.health.Check(c.Request.Context())
	if !report.Healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": report.Checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "degraded": report.Degraded})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches background work: tracing, the realtime hub, DB stats and
// the initial chart build. It returns once the server is ready to serve.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, risk.ModelVersion, s.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	s.shutdownTraces = shutdownTraces

	go s.realtimeHub.Run(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	if err := s.charts.RebuildAll(runCtx, charts.DefaultSpecs()); err != nil {
		// the dashboard still works without charts
		s.logger.Warn("initial chart build failed", "error", err)
	}

	s.ready.Store(true)
	s.logger.Info("server ready")
	return nil
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"remote", s.predictor.RemoteEnabled(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
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

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.httpSrv != nil && s.drain > 0 {
		time.Sleep(s.drain)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
