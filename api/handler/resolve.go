package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/unfurl/config"
	"github.com/use-agent/unfurl/models"
	"github.com/use-agent/unfurl/webhook"
)

// Resolver walks the resolution chain for one source URL.
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) (*models.ResolutionResult, error)
}

// Resolve returns a handler for POST /resolve.
//
// Orchestration flow:
//  1. Parse & validate the request body.
//  2. Source Validator — rejected requests never reach the pipeline, so
//     no renderer session is ever created for them.
//  3. Pipeline.Resolve → final download URL + advisory expiry.
//  4. Shape the response; failures are opaque (stage detail stays in logs).
func Resolve(validator SourceValidator, rp Resolver, whCfg config.WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "source_url is required and must be a valid URL",
				},
			})
			return
		}

		resolutionID := uuid.NewString()

		if verr := validator.Validate(req.SourceURL); verr != nil {
			slog.Warn("source rejected",
				"resolutionID", resolutionID,
				"sourceURL", req.SourceURL,
				"error", verr,
			)
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error:   verr.ToDetail(),
			})
			return
		}

		slog.Info("resolution started",
			"resolutionID", resolutionID,
			"sourceURL", req.SourceURL,
		)

		result, err := rp.Resolve(c.Request.Context(), req.SourceURL)
		if err != nil {
			respondError(c, resolutionID, req.SourceURL, err, whCfg)
			return
		}

		slog.Info("resolution completed",
			"resolutionID", resolutionID,
			"sourceURL", req.SourceURL,
			"expiresAt", result.ExpiresAt.Unix(),
			"durationMs", time.Since(start).Milliseconds(),
		)

		if whCfg.URL != "" {
			webhook.DeliverAsync(whCfg.URL, whCfg.Secret, &webhook.Event{
				Type:         webhook.EventResolutionCompleted,
				ResolutionID: resolutionID,
				Timestamp:    time.Now().Unix(),
				Data: map[string]any{
					"source_url": req.SourceURL,
					"expires_at": result.ExpiresAt.Unix(),
				},
			})
		}

		c.JSON(http.StatusOK, models.ResolveResponse{
			DirectDownloadURL: result.DirectDownloadURL,
			ExpiresAt:         result.ExpiresAt.Unix(),
		})
	}
}

// SourceValidator gates source URLs before the pipeline runs.
type SourceValidator interface {
	Validate(rawURL string) *models.ResolveError
}

// respondError logs the full internal failure and writes an opaque error
// response. Stage and pattern detail would reveal chain internals to API
// consumers, so callers only ever see "resolution failed" (or a capacity
// signal, which is not chain-internal).
func respondError(c *gin.Context, resolutionID, sourceURL string, err error, whCfg config.WebhookConfig) {
	var rerr *models.ResolveError
	if !errors.As(err, &rerr) {
		rerr = models.NewResolveError(models.ErrCodeInternal, err.Error(), err)
	}

	slog.Error("resolution failed",
		"resolutionID", resolutionID,
		"sourceURL", sourceURL,
		"stage", rerr.Stage,
		"code", rerr.Code,
		"error", rerr,
	)

	if whCfg.URL != "" {
		webhook.DeliverAsync(whCfg.URL, whCfg.Secret, &webhook.Event{
			Type:         webhook.EventResolutionFailed,
			ResolutionID: resolutionID,
			Timestamp:    time.Now().Unix(),
			Data: map[string]any{
				"source_url": sourceURL,
				"code":       rerr.Code,
			},
		})
	}

	if rerr.Code == models.ErrCodeCapacity {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Success: false,
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeCapacity,
				Message: "server is at capacity, retry later",
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeResolutionFailed,
			Message: "resolution failed",
		},
	})
}
