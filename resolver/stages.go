package resolver

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/unfurl/models"
)

// landingFormScript submits the interstitial verification form the portal
// renders before revealing the token page.
const landingFormScript = `() => document.getElementById('landing').submit()`

// locatePortalLink scans every anchor on the current page for an href
// carrying the configured portal domain. The first match wins; source
// pages list the portal link once, before any mirror links.
func (p *Pipeline) locatePortalLink(sess Session) (string, *models.ResolveError) {
	links, err := sess.Links()
	if err != nil {
		return "", models.NewStageError(StagePortalLink, models.ErrCodeNavigation,
			"failed to read page links", err)
	}
	for _, href := range links {
		if strings.Contains(href, p.cfg.PortalDomain) {
			return href, nil
		}
	}
	return "", models.NewStageError(StagePortalLink, models.ErrCodeStageNotFound,
		"no portal link found among page anchors", nil)
}

// submitLandingForm checks the rendered portal page for the #landing
// interstitial form and, when present, submits it and waits out the
// resulting navigation. Absence of the form is not an error: it means the
// portal skipped the interstitial and we are already on the token page.
func (p *Pipeline) submitLandingForm(ctx context.Context, sess Session) *models.ResolveError {
	content, err := sess.Content()
	if err != nil {
		return models.NewStageError(StageNavigatePortal, models.ErrCodeNavigation,
			"failed to read portal page", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		slog.Warn("portal page did not parse, treating as already landed", "error", err)
		return nil
	}
	if doc.Find("#landing").Length() == 0 {
		return nil
	}

	if err := sess.RunScript(landingFormScript); err != nil {
		// Best effort, like the interstitial itself: some portal variants
		// render the form but auto-submit it before we act.
		slog.Warn("landing form submit failed, continuing", "error", err)
		return nil
	}
	return p.settle(ctx, StageNavigatePortal)
}

// buildTokenRules compiles the access-token rule set: the fixed-prefix hex
// token first, then a bare long hex string for portal variants that strip
// the prefix.
func buildTokenRules(prefix string) (RuleSet, error) {
	primary, err := NewRule("prefixed-token", regexp.QuoteMeta(prefix)+`[a-f0-9]{12,}`)
	if err != nil {
		return RuleSet{}, err
	}
	fallback, err := NewRule("bare-hex", `\b[a-f0-9]{16,}\b`)
	if err != nil {
		return RuleSet{}, err
	}
	return NewRuleSet(primary, fallback), nil
}

// buildDistributionRules compiles the distribution-link rule set: the
// configured CDN host pattern first, then a generic cdn-subdomain path.
func buildDistributionRules(cdnPattern string) (RuleSet, error) {
	primary, err := NewRule("configured-cdn", cdnPattern)
	if err != nil {
		return RuleSet{}, err
	}
	fallback, err := NewRule("generic-cdn", `cdn[a-z0-9.-]*\.[a-z]{2,}/[a-z0-9:._/-]+`)
	if err != nil {
		return RuleSet{}, err
	}
	return NewRuleSet(primary, fallback), nil
}

// buildFinalRules compiles the final-URL rule set, strictest host match
// first and a media-file-extension catch-all last.
func buildFinalRules(finalPattern string) (RuleSet, error) {
	primary, err := NewRule("exact-host", finalPattern)
	if err != nil {
		return RuleSet{}, err
	}
	looser, err := NewRule("host-substring", `https://[a-z0-9.-]*googleusercontent\.com/[^\s"'<>]+`)
	if err != nil {
		return RuleSet{}, err
	}
	media, err := NewRule("media-extension", `https?://[^\s"'<>]+\.(?:mp4|m4v|mkv|webm|mov|avi|zip)(?:\?[^\s"'<>]*)?`)
	if err != nil {
		return RuleSet{}, err
	}
	return NewRuleSet(primary, looser, media), nil
}
