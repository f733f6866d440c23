package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/unfurl/config"
	"github.com/use-agent/unfurl/models"
	"github.com/ysmood/gson"
)

// defaultUserAgent masks headless Chrome's default user agent, which is an
// immediate bot tell on the intermediary pages.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// session is one isolated renderer context backing a single resolution
// request: its own incognito browser context, its own tab, its own cookies.
type session struct {
	page      *rod.Page
	incog     *rod.Browser
	release   func()
	once      sync.Once
	navigated bool
}

func newSession(ctx context.Context, b *rod.Browser, cfg config.BrowserConfig, release func()) (*session, error) {
	incog, err := b.Incognito()
	if err != nil {
		return nil, models.NewResolveError(
			models.ErrCodeSessionSetup,
			"failed to create incognito context",
			err,
		)
	}

	page, err := incog.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewResolveError(
			models.ErrCodeSessionSetup,
			"failed to open page",
			err,
		)
	}

	if cfg.Stealth {
		// Must be installed before the first navigation to take effect.
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
		_ = proto.NetworkSetUserAgentOverride{UserAgent: defaultUserAgent}.Call(page)
	}

	return &session{page: page, incog: incog, release: release}, nil
}

// Open navigates the session's tab to url and waits for the DOM to
// stabilise, all within the given timeout. The returned error wraps
// context.DeadlineExceeded when the bound is hit, so callers can classify
// timeouts with errors.Is.
func (s *session) Open(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(navCtx)

	// A search-engine referer on the entry page makes the chain entry
	// look like an organic click; later hops carry their real referers.
	if !s.navigated {
		if h := searchReferer(url); h != nil {
			_ = proto.NetworkSetExtraHTTPHeaders{Headers: h}.Call(p)
		}
		s.navigated = true
	}

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		// Busy pages may never converge; proceed with the current DOM.
		slog.Debug("WaitDOMStable did not converge, proceeding",
			"url", url, "error", err,
		)
	}
	return nil
}

// Content returns the rendered HTML of the current page.
func (s *session) Content() (string, error) {
	html, err := s.page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return html, nil
}

// Links returns the href of every anchor element on the current page,
// resolved to absolute URLs by the browser.
func (s *session) Links() ([]string, error) {
	res, err := s.page.Eval(`() => Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`)
	if err != nil {
		return nil, fmt.Errorf("collect anchor hrefs: %w", err)
	}
	arr := res.Value.Arr()
	links := make([]string, 0, len(arr))
	for _, v := range arr {
		if href := v.Str(); href != "" {
			links = append(links, href)
		}
	}
	return links, nil
}

// searchReferer builds a Google-search Referer header for the target's
// host. Returns nil when the target does not parse.
func searchReferer(target string) proto.NetworkHeaders {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return proto.NetworkHeaders{
		"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
	}
}

// RunScript evaluates JavaScript in the page context, discarding the result.
func (s *session) RunScript(code string) error {
	_, err := s.page.Eval(code)
	return err
}

// Close tears down the tab and its incognito context and releases the
// capacity slot. Safe to call multiple times; only the first call acts.
// Uses the original page reference (no request context) so cleanup still
// works after the caller's deadline has expired.
func (s *session) Close() {
	s.once.Do(func() {
		if err := s.page.Close(); err != nil {
			slog.Warn("session cleanup: failed to close page", "error", err)
		}
		if err := (proto.TargetDisposeBrowserContext{
			BrowserContextID: s.incog.BrowserContextID,
		}).Call(s.incog); err != nil {
			slog.Warn("session cleanup: failed to dispose context", "error", err)
		}
		s.release()
	})
}
