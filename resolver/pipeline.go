package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/unfurl/config"
	"github.com/use-agent/unfurl/models"
)

// Stage names. They identify where in the chain a failure happened, both
// in internal diagnostics and in the error's Stage field.
const (
	StageNavigateSource       = "navigate source"
	StagePortalLink           = "portal link"
	StageNavigatePortal       = "navigate portal"
	StageAccessToken          = "access token"
	StageNavigateToken        = "navigate token link"
	StageDistributionLink     = "distribution link"
	StageNavigateDistribution = "navigate distribution"
	StageFinalLink            = "final link"
)

// resultTTL is the advisory lifetime attached to every resolved URL. The
// downstream host owns the real signature lifetime; this only tells the
// caller when to stop trusting the result.
const resultTTL = 300 * time.Second

// Session is one isolated script-executing rendering context. The pipeline
// opens exactly one per resolution and guarantees Close runs on every exit
// path. Cookies and redirect state accumulated early in the chain stay
// valid through the final stage because all stages share the session.
type Session interface {
	// Open navigates to url, bounded by timeout. Timeout errors must wrap
	// context.DeadlineExceeded.
	Open(ctx context.Context, url string, timeout time.Duration) error

	// Content returns the rendered HTML of the current page.
	Content() (string, error)

	// Links returns the href of every anchor element on the current page.
	Links() ([]string, error)

	// RunScript evaluates JavaScript in the page context.
	RunScript(code string) error

	// Close tears down the context. Must be idempotent.
	Close()
}

// SessionFactory creates renderer sessions. Implementations enforce the
// concurrent-session bound and fail fast when it is exhausted.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Pipeline walks the fixed multi-hop resolution chain: source page →
// portal link → portal (optional landing form) → access token → token
// link → distribution link → distribution page → final download URL.
// Stages run strictly in order; each one's artifact feeds the next, and
// the first unrecoverable failure aborts the rest of the chain.
type Pipeline struct {
	cfg      config.ResolverConfig
	sessions SessionFactory

	tokenRules RuleSet
	distRules  RuleSet
	finalRules RuleSet
}

// New compiles the stage rule sets from cfg and returns a ready Pipeline.
func New(cfg config.ResolverConfig, sessions SessionFactory) (*Pipeline, error) {
	tokenRules, err := buildTokenRules(cfg.TokenPrefix)
	if err != nil {
		return nil, fmt.Errorf("resolver: token rules: %w", err)
	}
	distRules, err := buildDistributionRules(cfg.CDNPattern)
	if err != nil {
		return nil, fmt.Errorf("resolver: distribution rules: %w", err)
	}
	finalRules, err := buildFinalRules(cfg.FinalPattern)
	if err != nil {
		return nil, fmt.Errorf("resolver: final rules: %w", err)
	}

	return &Pipeline{
		cfg:        cfg,
		sessions:   sessions,
		tokenRules: tokenRules,
		distRules:  distRules,
		finalRules: finalRules,
	}, nil
}

// Resolve walks the chain for one source URL and returns the final
// download URL with its advisory expiry. The renderer session is opened
// once and closed exactly once, whichever stage fails.
func (p *Pipeline) Resolve(ctx context.Context, sourceURL string) (*models.ResolutionResult, error) {
	sess, err := p.sessions.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	// Open the source page.
	if rerr := p.navigate(ctx, sess, StageNavigateSource, sourceURL); rerr != nil {
		return nil, rerr
	}

	// Locate the portal link among the source page anchors.
	portalLink, rerr := p.locatePortalLink(sess)
	if rerr != nil {
		return nil, rerr
	}
	slog.Debug("portal link located", "href", portalLink)

	// Open the portal; submit the landing form if one is present.
	if rerr := p.navigate(ctx, sess, StageNavigatePortal, portalLink); rerr != nil {
		return nil, rerr
	}
	if rerr := p.submitLandingForm(ctx, sess); rerr != nil {
		return nil, rerr
	}

	// Extract the access token from the rendered portal page.
	token, rerr := p.extract(sess, StageAccessToken, p.tokenRules)
	if rerr != nil {
		return nil, rerr
	}
	slog.Debug("access token extracted", "token", token)

	// Follow the derived token link.
	tokenURL := fmt.Sprintf("https://%s/?go=%s", p.cfg.PortalDomain, token)
	if rerr := p.navigate(ctx, sess, StageNavigateToken, tokenURL); rerr != nil {
		return nil, rerr
	}

	// Extract the distribution link.
	distLink, rerr := p.extract(sess, StageDistributionLink, p.distRules)
	if rerr != nil {
		return nil, rerr
	}
	distURL := "https://" + distLink
	slog.Debug("distribution link extracted", "url", distURL)

	// Open the distribution page.
	if rerr := p.navigate(ctx, sess, StageNavigateDistribution, distURL); rerr != nil {
		return nil, rerr
	}

	// Extract the final download URL.
	finalURL, rerr := p.extract(sess, StageFinalLink, p.finalRules)
	if rerr != nil {
		return nil, rerr
	}

	now := time.Now()
	return &models.ResolutionResult{
		DirectDownloadURL: finalURL,
		ObtainedAt:        now,
		ExpiresAt:         now.Add(resultTTL),
	}, nil
}

// navigate opens url in the session and then settles, converting failures
// into stage-attributed errors.
func (p *Pipeline) navigate(ctx context.Context, sess Session, stage, url string) *models.ResolveError {
	if err := sess.Open(ctx, url, p.cfg.NavTimeout); err != nil {
		return categorizeNav(stage, err)
	}
	return p.settle(ctx, stage)
}

// settle pauses for the configured delay so client-side scripts can finish
// before content is read. Honors caller cancellation.
func (p *Pipeline) settle(ctx context.Context, stage string) *models.ResolveError {
	if p.cfg.SettleDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.cfg.SettleDelay):
		return nil
	case <-ctx.Done():
		return models.NewStageError(stage, models.ErrCodeNavTimeout, "canceled while settling", ctx.Err())
	}
}

// extract reads the rendered content and runs the stage's ordered rules
// against it. An absent artifact is a hard failure: a silently defaulted
// artifact would resolve to a broken or unrelated download.
func (p *Pipeline) extract(sess Session, stage string, rules RuleSet) (string, *models.ResolveError) {
	content, err := sess.Content()
	if err != nil {
		return "", models.NewStageError(stage, models.ErrCodeNavigation, "failed to read rendered content", err)
	}
	value, rule, ok := rules.FirstMatch(content)
	if !ok {
		return "", models.NewStageError(stage, models.ErrCodeStageNotFound,
			fmt.Sprintf("no %s found in rendered content", stage), nil)
	}
	slog.Debug("artifact extracted", "stage", stage, "rule", rule)
	return value, nil
}

// categorizeNav wraps raw navigation errors into typed ResolveErrors so
// the API layer can map them to HTTP status codes.
func categorizeNav(stage string, err error) *models.ResolveError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewStageError(stage, models.ErrCodeNavTimeout, "navigation exceeded its bound", err)
	case errors.Is(err, context.Canceled):
		return models.NewStageError(stage, models.ErrCodeNavTimeout, "request canceled", err)
	default:
		return models.NewStageError(stage, models.ErrCodeNavigation, "navigation failed", err)
	}
}
