package resolver

import (
	"net/url"
	"strings"

	"github.com/use-agent/unfurl/models"
)

// SourceValidator gates resolution requests on the configured allow-list.
// A rejected request never reaches the pipeline, so the renderer can never
// be pointed at arbitrary (or internal) hosts.
type SourceValidator struct {
	allowed []string
}

// NewSourceValidator creates a validator over the given allowed hosts.
// Entries are matched case-insensitively against the source URL's host,
// either exactly or as a parent domain of it.
func NewSourceValidator(allowed []string) *SourceValidator {
	hosts := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if h := strings.ToLower(strings.TrimSpace(a)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &SourceValidator{allowed: hosts}
}

// Validate checks a raw source URL against the allow-list. An empty
// allow-list fails closed: every request is rejected rather than every
// request being allowed through a vacuous check.
func (v *SourceValidator) Validate(rawURL string) *models.ResolveError {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return models.NewResolveError(
			models.ErrCodeInvalidInput,
			"source_url must be an absolute URL",
			err,
		)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.NewResolveError(
			models.ErrCodeInvalidInput,
			"source_url must use http or https",
			nil,
		)
	}

	if len(v.allowed) == 0 {
		return models.NewResolveError(
			models.ErrCodeNotAllowed,
			"no source hosts are configured; all requests are rejected",
			nil,
		)
	}

	host := strings.ToLower(u.Hostname())
	for _, entry := range v.allowed {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return nil
		}
	}
	return models.NewResolveError(
		models.ErrCodeNotAllowed,
		"source_url host is not an allowed source",
		nil,
	)
}
