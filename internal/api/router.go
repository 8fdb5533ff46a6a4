// Package api wires together the HTTP routes of the audit service.
//
// Route grouping philosophy:
//   - /healthz is unauthenticated so orchestrators can probe liveness without
//     credentials.
//   - Everything under /api/v1/ requires a verified identity token, and the
//     audit read endpoints additionally require the audit read scope. Audit
//     data includes user identities and IP addresses, so it is never exposed
//     to unauthenticated callers.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/stockledger/stockledger/internal/api/auditlog"
	"github.com/stockledger/stockledger/internal/audit"
	"github.com/stockledger/stockledger/internal/config"
	"github.com/stockledger/stockledger/internal/db/repositories"
	"github.com/stockledger/stockledger/internal/jobs"
	"github.com/stockledger/stockledger/internal/middleware"
)

// BackgroundServices holds resources started by NewRouter that must be
// released during graceful shutdown. The caller (cmd/server) is responsible
// for calling Shutdown() after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiter  *middleware.RateLimiter
	redisClient  *redis.Client
	retentionJob *jobs.RetentionJob
}

// Shutdown stops background goroutines and closes shared connections.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retentionJob != nil {
		bg.retentionJob.Stop()
	}
	if bg.rateLimiter != nil {
		bg.rateLimiter.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, database *sqlx.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	auditRepo := repositories.NewAuditRepository(database)
	queryService := audit.NewQueryService(auditRepo)
	auditHandler := auditlog.NewHandler(queryService, cfg.Audit.StatsWindow())

	// Operator retention policy. Disabled by default; the trail is append-only
	// unless the operator opts in.
	if cfg.Audit.RetentionDays > 0 {
		bg.retentionJob = jobs.NewRetentionJob(auditRepo, cfg.Audit.RetentionDays)
		bg.retentionJob.Start(context.Background(), 24*time.Hour)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	if cfg.Security.RateLimiting.Enabled {
		rlConfig := middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		}

		// The limit is shared across replicas when Redis is configured;
		// otherwise each instance enforces it independently.
		var limiter middleware.Limiter
		if cfg.Redis.Addr != "" {
			bg.redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			limiter = middleware.NewRedisRateLimiter(bg.redisClient, rlConfig)
			slog.Info("rate limiting enabled", "backend", "redis", "addr", cfg.Redis.Addr)
		} else {
			rl := middleware.NewRateLimiter(rlConfig)
			bg.rateLimiter = rl
			limiter = rl
			slog.Info("rate limiting enabled", "backend", "memory")
		}
		router.Use(middleware.RateLimitMiddleware(limiter))
	}

	router.GET("/healthz", healthCheckHandler(database))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		read := v1.Group("")
		read.Use(middleware.RequireScope(cfg.Auth.AuditReadScope))
		{
			read.GET("/audit-logs", auditHandler.GetAuditLogs)
			read.GET("/audit-stats", auditHandler.GetAuditStats)
		}
	}

	return router, bg
}

// healthCheckHandler reports service health, including database connectivity.
func healthCheckHandler(database *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
