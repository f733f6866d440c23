package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/use-agent/unfurl/config"
	"github.com/use-agent/unfurl/models"
)

// fakePage is rendered state the fake session serves for one URL.
type fakePage struct {
	content string
	links   []string
}

// fakeSession is a scripted renderer session: Open switches the current
// page to whatever the fixture holds for the target URL.
type fakeSession struct {
	pages       map[string]fakePage
	openErr     map[string]error
	current     fakePage
	opened      []string
	scriptsRun  []string
	afterSubmit *fakePage // page served after the landing form is submitted
	closed      int
}

func (s *fakeSession) Open(ctx context.Context, url string, timeout time.Duration) error {
	if err, ok := s.openErr[url]; ok {
		return err
	}
	s.opened = append(s.opened, url)
	s.current = s.pages[url]
	return nil
}

func (s *fakeSession) Content() (string, error) { return s.current.content, nil }

func (s *fakeSession) Links() ([]string, error) { return s.current.links, nil }

func (s *fakeSession) RunScript(code string) error {
	s.scriptsRun = append(s.scriptsRun, code)
	if s.afterSubmit != nil {
		s.current = *s.afterSubmit
	}
	return nil
}

func (s *fakeSession) Close() { s.closed++ }

type fakeFactory struct {
	sess    *fakeSession
	err     error
	created int
}

func (f *fakeFactory) NewSession(ctx context.Context) (Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	return f.sess, nil
}

func testCfg() config.ResolverConfig {
	return config.ResolverConfig{
		PortalDomain:   "portal.example.test",
		TokenPrefix:    "token-",
		CDNPattern:     `cdn\.dist\.example\.test/[a-z0-9]+`,
		FinalPattern:   `https://video-downloads\.googleusercontent\.com/[^\s"'<>]+`,
		AllowedSources: []string{"links.example.test"},
		NavTimeout:     5 * time.Second,
		SettleDelay:    0, // no settle pauses in tests
	}
}

const (
	srcURL   = "https://links.example.test/archives/146649"
	portal   = "https://portal.example.test/x"
	tokenURL = "https://portal.example.test/?go=token-ab12cd34ef56ab12"
	distURL  = "https://cdn.dist.example.test/abc123"
	finalURL = "https://video-downloads.googleusercontent.com/final123"
)

// happyChain is the full 4-page chain without a landing form.
func happyChain() map[string]fakePage {
	return map[string]fakePage{
		srcURL: {
			links: []string{"https://ads.example.net/banner", portal},
		},
		portal: {
			content: `<html><body>your token: token-ab12cd34ef56ab12</body></html>`,
		},
		tokenURL: {
			content: `<html><body><script>dl("cdn.dist.example.test/abc123")</script></body></html>`,
		},
		distURL: {
			content: `<html><body><a href="https://video-downloads.googleusercontent.com/final123">go</a></body></html>`,
		},
	}
}

func TestResolve_FullChain(t *testing.T) {
	sess := &fakeSession{pages: happyChain()}
	factory := &fakeFactory{sess: sess}
	p, err := New(testCfg(), factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, rerr := p.Resolve(context.Background(), srcURL)
	if rerr != nil {
		t.Fatalf("Resolve: %v", rerr)
	}
	if result.DirectDownloadURL != finalURL {
		t.Errorf("DirectDownloadURL = %q, want %q", result.DirectDownloadURL, finalURL)
	}
	if got := result.ExpiresAt.Sub(result.ObtainedAt); got != 300*time.Second {
		t.Errorf("expiry delta = %v, want 300s", got)
	}
	if sess.closed != 1 {
		t.Errorf("session closed %d times, want exactly 1", sess.closed)
	}

	// Stages navigate in the fixed chain order.
	wantOrder := []string{srcURL, portal, tokenURL, distURL}
	if len(sess.opened) != len(wantOrder) {
		t.Fatalf("opened %v, want %v", sess.opened, wantOrder)
	}
	for i, u := range wantOrder {
		if sess.opened[i] != u {
			t.Errorf("navigation %d = %q, want %q", i, sess.opened[i], u)
		}
	}

	// No landing form on the portal page, so nothing was submitted.
	if len(sess.scriptsRun) != 0 {
		t.Errorf("scripts run = %v, want none", sess.scriptsRun)
	}
}

func TestResolve_LandingFormSubmitted(t *testing.T) {
	pages := happyChain()
	pages[portal] = fakePage{
		content: `<html><body><form id="landing" method="post"></form></body></html>`,
	}
	sess := &fakeSession{
		pages:       pages,
		afterSubmit: &fakePage{content: `ready: token-ab12cd34ef56ab12`},
	}
	factory := &fakeFactory{sess: sess}
	p, err := New(testCfg(), factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, rerr := p.Resolve(context.Background(), srcURL)
	if rerr != nil {
		t.Fatalf("Resolve: %v", rerr)
	}
	if result.DirectDownloadURL != finalURL {
		t.Errorf("DirectDownloadURL = %q, want %q", result.DirectDownloadURL, finalURL)
	}
	if len(sess.scriptsRun) != 1 {
		t.Fatalf("scripts run = %v, want exactly the landing submit", sess.scriptsRun)
	}
}

func TestResolve_TokenFallbackPattern(t *testing.T) {
	pages := happyChain()
	// Prefix stripped by the portal variant; bare hex is still present.
	pages[tokenURLBare()] = pages[tokenURL]
	pages[portal] = fakePage{content: `raw ab12cd34ef56ab12 here`}
	sess := &fakeSession{pages: pages}
	factory := &fakeFactory{sess: sess}
	p, err := New(testCfg(), factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, rerr := p.Resolve(context.Background(), srcURL)
	if rerr != nil {
		t.Fatalf("Resolve with fallback token: %v", rerr)
	}
	if result.DirectDownloadURL != finalURL {
		t.Errorf("DirectDownloadURL = %q, want %q", result.DirectDownloadURL, finalURL)
	}
}

func tokenURLBare() string {
	return "https://portal.example.test/?go=ab12cd34ef56ab12"
}

func TestResolve_MissingPortalLink(t *testing.T) {
	pages := happyChain()
	pages[srcURL] = fakePage{links: []string{"https://ads.example.net/banner"}}
	sess := &fakeSession{pages: pages}
	factory := &fakeFactory{sess: sess}
	p, err := New(testCfg(), factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, rerr := p.Resolve(context.Background(), srcURL)
	if rerr == nil {
		t.Fatal("expected failure")
	}
	var re *models.ResolveError
	if !errors.As(rerr, &re) {
		t.Fatalf("error type = %T", rerr)
	}
	if re.Code != models.ErrCodeStageNotFound {
		t.Errorf("code = %s, want %s", re.Code, models.ErrCodeStageNotFound)
	}
	if re.Stage != StagePortalLink {
		t.Errorf("stage = %q, want %q", re.Stage, StagePortalLink)
	}
	if sess.closed != 1 {
		t.Errorf("session closed %d times, want exactly 1", sess.closed)
	}
	// The chain aborted before any further navigation.
	if len(sess.opened) != 1 {
		t.Errorf("opened %v, want only the source page", sess.opened)
	}
}

func TestResolve_NavigationTimeout(t *testing.T) {
	sess := &fakeSession{
		pages: happyChain(),
		openErr: map[string]error{
			tokenURL: fmt.Errorf("navigate: %w", context.DeadlineExceeded),
		},
	}
	factory := &fakeFactory{sess: sess}
	p, err := New(testCfg(), factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, rerr := p.Resolve(context.Background(), srcURL)
	if rerr == nil {
		t.Fatal("expected failure")
	}
	var re *models.ResolveError
	if !errors.As(rerr, &re) {
		t.Fatalf("error type = %T", rerr)
	}
	if re.Code != models.ErrCodeNavTimeout {
		t.Errorf("code = %s, want %s", re.Code, models.ErrCodeNavTimeout)
	}
	if re.Stage != StageNavigateToken {
		t.Errorf("stage = %q, want %q", re.Stage, StageNavigateToken)
	}
	if sess.closed != 1 {
		t.Errorf("session closed %d times, want exactly 1", sess.closed)
	}
}

func TestResolve_MissingFinalLink(t *testing.T) {
	pages := happyChain()
	pages[distURL] = fakePage{content: `<html><body>come back later</body></html>`}
	sess := &fakeSession{pages: pages}
	factory := &fakeFactory{sess: sess}
	p, err := New(testCfg(), factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, rerr := p.Resolve(context.Background(), srcURL)
	var re *models.ResolveError
	if !errors.As(rerr, &re) {
		t.Fatalf("expected ResolveError, got %v", rerr)
	}
	if re.Stage != StageFinalLink || re.Code != models.ErrCodeStageNotFound {
		t.Errorf("got stage %q code %s", re.Stage, re.Code)
	}
}

func TestResolve_SessionSetupFailurePropagates(t *testing.T) {
	want := models.NewResolveError(models.ErrCodeCapacity, "all renderer sessions are in use", nil)
	factory := &fakeFactory{err: want}
	p, err := New(testCfg(), factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, rerr := p.Resolve(context.Background(), srcURL)
	var re *models.ResolveError
	if !errors.As(rerr, &re) {
		t.Fatalf("expected ResolveError, got %v", rerr)
	}
	if re.Code != models.ErrCodeCapacity {
		t.Errorf("code = %s, want %s", re.Code, models.ErrCodeCapacity)
	}
}

func TestResolve_CanceledWhileSettling(t *testing.T) {
	cfg := testCfg()
	cfg.SettleDelay = time.Minute
	sess := &fakeSession{pages: happyChain()}
	factory := &fakeFactory{sess: sess}
	p, err := New(cfg, factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, rerr := p.Resolve(ctx, srcURL)
	var re *models.ResolveError
	if !errors.As(rerr, &re) {
		t.Fatalf("expected ResolveError, got %v", rerr)
	}
	if re.Code != models.ErrCodeNavTimeout {
		t.Errorf("code = %s, want %s", re.Code, models.ErrCodeNavTimeout)
	}
	if sess.closed != 1 {
		t.Errorf("session closed %d times, want exactly 1", sess.closed)
	}
}

func TestNew_BadConfiguredPattern(t *testing.T) {
	cfg := testCfg()
	cfg.CDNPattern = `[unclosed`
	if _, err := New(cfg, &fakeFactory{}); err == nil {
		t.Fatal("expected error for invalid CDN pattern")
	}
}
