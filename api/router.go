package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unfurl/api/handler"
	"github.com/use-agent/unfurl/api/middleware"
	"github.com/use-agent/unfurl/config"
	"github.com/use-agent/unfurl/resolver"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:   Recovery → Logger
//	/resolve: Auth (if enabled) → RateLimit
//
// Health and info endpoints are intentionally outside auth so monitoring
// probes always work, and neither of them ever touches the renderer.
func NewRouter(rp handler.Resolver, validator *resolver.SourceValidator, stats handler.StatsProvider, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/", handler.Info())
	r.GET("/health", handler.Health(stats, startTime))

	// Protected group — auth + rate limit.
	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/resolve", handler.Resolve(validator, rp, cfg.Webhook))

	return r
}
