package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unfurl/models"
)

// Version is the service version reported by the health and info endpoints.
const Version = "0.1.0"

// StatsProvider reports renderer session usage.
type StatsProvider interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /health.
//
// Reports session utilisation and degrades status when > 80% of session
// slots are in use. It never creates a renderer session: liveness probes
// must stay cheap.
func Health(sp StatsProvider, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sp.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Timestamp: time.Now().Unix(),
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Sessions:  stats,
			Version:   Version,
		})
	}
}
