package models

// ResolveRequest is the payload for POST /resolve.
type ResolveRequest struct {
	// SourceURL is the opaque landing URL to resolve. Required. Its host
	// must match an entry of the configured source allow-list.
	SourceURL string `json:"source_url" binding:"required,url"`
}
