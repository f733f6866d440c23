package models

import "time"

// ResolveResponse is the success response for POST /resolve.
type ResolveResponse struct {
	// DirectDownloadURL is the resolved time-limited download URL.
	DirectDownloadURL string `json:"direct_download_url"`

	// ExpiresAt is the unix-seconds timestamp after which the URL should
	// be considered stale. Advisory only; the downstream host owns the
	// real signature lifetime.
	ExpiresAt int64 `json:"expires_at"`
}

// ErrorResponse is the body for all non-2xx responses.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ResolutionResult is the pipeline's terminal output before it is shaped
// into a ResolveResponse at the API boundary.
type ResolutionResult struct {
	DirectDownloadURL string
	ObtainedAt        time.Time
	ExpiresAt         time.Time
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string       `json:"status"` // "healthy" or "degraded"
	Timestamp int64        `json:"timestamp"`
	Uptime    string       `json:"uptime"`
	Sessions  SessionStats `json:"sessions"`
	Version   string       `json:"version"`
}

// SessionStats reports the state of the renderer session pool.
type SessionStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
}

// InfoResponse is the response for GET /.
type InfoResponse struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Endpoint    string `json:"endpoint"`
	Description string `json:"description"`
}
