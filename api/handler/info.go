package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unfurl/models"
)

// Info returns a handler for GET / with basic service metadata.
func Info() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.InfoResponse{
			Service:     "unfurl",
			Version:     Version,
			Endpoint:    "POST /resolve",
			Description: "resolves opaque source URLs to temporary direct-download links",
		})
	}
}
