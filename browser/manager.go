package browser

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/unfurl/config"
	"github.com/use-agent/unfurl/models"
	"github.com/use-agent/unfurl/resolver"
)

// Manager owns the shared Chrome process and hands out isolated renderer
// sessions. It is safe for concurrent use. Session capacity is bounded:
// each live session holds one slot, and acquisition beyond the bound fails
// fast with a capacity error rather than degrading every open session.
type Manager struct {
	browser        *rod.Browser
	cfg            config.BrowserConfig
	slots          chan struct{}
	activeSessions atomic.Int32
}

// NewManager launches a headless browser and prepares the session slots.
func NewManager(cfg config.BrowserConfig) (*Manager, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Hardening + stealth flags ─────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewResolveError(
			models.ErrCodeSessionSetup,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewResolveError(
			models.ErrCodeSessionSetup,
			"failed to connect to browser",
			err,
		)
	}

	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1
	}
	slog.Info("session manager ready", "maxSessions", maxSessions)

	return &Manager{
		browser: b,
		cfg:     cfg,
		slots:   make(chan struct{}, maxSessions),
	}, nil
}

// NewSession acquires a capacity slot and opens an isolated incognito
// context with a fresh tab. Concurrent resolutions never share cookies or
// navigation state. The returned session must be closed by the caller;
// Close releases the slot exactly once.
func (m *Manager) NewSession(ctx context.Context) (resolver.Session, error) {
	select {
	case m.slots <- struct{}{}:
	default:
		return nil, models.NewResolveError(
			models.ErrCodeCapacity,
			"all renderer sessions are in use",
			nil,
		)
	}

	sess, err := newSession(ctx, m.browser, m.cfg, func() {
		<-m.slots
		m.activeSessions.Add(-1)
	})
	if err != nil {
		<-m.slots
		return nil, err
	}
	m.activeSessions.Add(1)
	return sess, nil
}

// Stats returns a snapshot of session usage.
func (m *Manager) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    cap(m.slots),
		ActiveSessions: int(m.activeSessions.Load()),
	}
}

// Close kills the browser process. Call this on graceful shutdown to
// prevent zombie Chrome processes.
func (m *Manager) Close() {
	slog.Info("session manager shutting down: closing browser")
	m.browser.MustClose()
	slog.Info("session manager shutdown complete")
}
