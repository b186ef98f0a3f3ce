// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, compression,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-donation-backend/internal/config"
	"github.com/tbourn/go-donation-backend/internal/domain"
	"github.com/tbourn/go-donation-backend/internal/http/handlers"
	"github.com/tbourn/go-donation-backend/internal/http/middleware"
	"github.com/tbourn/go-donation-backend/internal/repo"
	"github.com/tbourn/go-donation-backend/internal/services"
)

// linkRepoShim adapts the repository free functions to the services.LinkRepo
// interface expected by the pool services. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type linkRepoShim struct{}

// GetLinkByURL proxies repo.GetLinkByURL.
func (linkRepoShim) GetLinkByURL(ctx context.Context, db *gorm.DB, url string) (*domain.PaymentLink, error) {
	return repo.GetLinkByURL(ctx, db, url)
}

// ListEligible proxies repo.ListEligible.
func (linkRepoShim) ListEligible(ctx context.Context, db *gorm.DB, amount int, now time.Time, reserveTTL, claimGrace time.Duration) ([]domain.PaymentLink, error) {
	return repo.ListEligible(ctx, db, amount, now, reserveTTL, claimGrace)
}

// CountEligible proxies repo.CountEligible.
func (linkRepoShim) CountEligible(ctx context.Context, db *gorm.DB, amount int, now time.Time, reserveTTL, claimGrace time.Duration) (int64, error) {
	return repo.CountEligible(ctx, db, amount, now, reserveTTL, claimGrace)
}

// ListStaleClaimed proxies repo.ListStaleClaimed.
func (linkRepoShim) ListStaleClaimed(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.PaymentLink, error) {
	return repo.ListStaleClaimed(ctx, db, cutoff)
}

// MarkReserved proxies repo.MarkReserved.
func (linkRepoShim) MarkReserved(ctx context.Context, db *gorm.DB, id, fromStatus string, fromReservedAt *time.Time, now time.Time) error {
	return repo.MarkReserved(ctx, db, id, fromStatus, fromReservedAt, now)
}

// MarkClaimed proxies repo.MarkClaimed.
func (linkRepoShim) MarkClaimed(ctx context.Context, db *gorm.DB, id, claimant string, now time.Time) error {
	return repo.MarkClaimed(ctx, db, id, claimant, now)
}

// MarkAvailable proxies repo.MarkAvailable.
func (linkRepoShim) MarkAvailable(ctx context.Context, db *gorm.DB, id string) error {
	return repo.MarkAvailable(ctx, db, id)
}

// MarkVerified proxies repo.MarkVerified.
func (linkRepoShim) MarkVerified(ctx context.Context, db *gorm.DB, id string) error {
	return repo.MarkVerified(ctx, db, id)
}

// Collaborators bundles the external dependencies injected into the route
// tree: the balance oracle and the Telegram client. Either may be nil; the
// services degrade gracefully (no verification oracle means the sweeper
// reports failures, no notifier means alerts are skipped).
type Collaborators struct {
	Oracle   services.BalanceOracle
	Notifier services.Notifier
	Greeter  handlers.Greeter
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), compression, rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the pool API under cfg.APIBasePath plus the bot webhook at the root.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Rate limiter (per IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Collaborators, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs (served only when enabled)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/collaborators
	allocSvc := services.NewAllocationService(db, linkRepoShim{}, deps.Notifier, cfg.Amounts)
	allocSvc.ReserveTTL = cfg.ReserveTTL
	allocSvc.ClaimGrace = cfg.ClaimGrace
	allocSvc.LowStockThreshold = cfg.LowStockThreshold
	allocSvc.StoreRetries = cfg.StoreRetries

	verifySvc := services.NewVerificationService(db, linkRepoShim{}, deps.Oracle, deps.Notifier)
	verifySvc.Tolerance = cfg.VerifyTolerance

	sweepSvc := services.NewSweeperService(db, linkRepoShim{}, verifySvc)
	sweepSvc.Grace = cfg.ClaimGrace

	h := handlers.New(allocSvc, verifySvc, sweepSvc, deps.Greeter, cfg.VerifyOnClaim)

	// Pool API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/reserve", h.Reserve)
		api.POST("/reserve", h.Confirm)

		// GET supported alongside POST so external cron services can trigger it.
		api.GET("/cleanup", h.Cleanup)
		api.POST("/cleanup", h.Cleanup)
	}

	// Bot webhook lives at the root, matching the URL registered with Telegram.
	r.POST("/webhook", h.Webhook)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
