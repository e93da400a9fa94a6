package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrapeworker/api/handler"
	"github.com/use-agent/scrapeworker/api/middleware"
	"github.com/use-agent/scrapeworker/config"
	"github.com/use-agent/scrapeworker/jobs"
	"github.com/use-agent/scrapeworker/models"
)

// NewRouter creates a configured Gin engine with all routes and
// middleware.
//
// Middleware chain: Recovery → request logger → (per-route) Auth.
// Health endpoints are intentionally outside auth so monitoring probes
// always work.
func NewRouter(jm *jobs.Manager, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/healthz", handler.Health(jm))
	r.GET("/health", handler.Health(jm))

	auth := middleware.Auth(cfg.Auth.Token)
	reqDefaults := models.RequestDefaults{
		TimeoutMs:  cfg.Browser.TimeoutMs,
		BlockMedia: cfg.Browser.BlockMedia,
		Stealth:    cfg.Browser.StealthEnabled,
	}

	r.POST("/v1/scrape", auth, handler.PostScrape(jm, reqDefaults))
	r.GET("/v1/scrape/:jobId", auth, handler.GetScrapeStatus(jm))
	r.DELETE("/v1/scrape/:jobId", auth, handler.DeleteScrape(jm))

	// /scrape mirrors /v1/scrape, except POST which redirects per
	// spec §6's route table.
	r.POST("/scrape", auth, handler.RedirectScrape())
	r.GET("/scrape/:jobId", auth, handler.GetScrapeStatus(jm))
	r.DELETE("/scrape/:jobId", auth, handler.DeleteScrape(jm))

	return r
}

// requestLogger is a slog-based structured access logger, grounded on
// the teacher's gin.Logger() usage but emitting through log/slog, the
// ambient logging library used everywhere outside gin's own middleware.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
