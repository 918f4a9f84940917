package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	Headless            bool   `json:"headless"`
	UserAgent           string `json:"user_agent"`
	ViewportWidth       int    `json:"viewport_width"`
	ViewportHeight      int    `json:"viewport_height"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:       false,
		UserAgent:      defaultUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	}
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// hardeningFlags suppress the obvious automation fingerprints before any
// page is loaded.
var hardeningFlags = [][2]string{
	{"disable-blink-features", "AutomationControlled"},
	{"disable-infobars", ""},
	{"disable-dev-shm-usage", ""},
	{"no-sandbox", ""},
}

// Cookie is one record of the persisted credential bundle, in the browser
// export format produced by the cookie extraction tooling.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// Session is an exclusively-owned browser context. It is not safe for
// concurrent use; one run owns one session.
type Session struct {
	cfg      Config
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Open launches a hardened Chromium and opens a blank page. Failure here is
// fatal for the run: without a session nothing downstream can proceed.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	l := launcher.New().Headless(cfg.Headless)
	for _, f := range hardeningFlags {
		if f[1] == "" {
			l = l.Set(flags.Flag(f[0]))
		} else {
			l = l.Set(flags.Flag(f[0]), f[1])
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("create page: %w", err)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	if err := (proto.NetworkSetUserAgentOverride{UserAgent: ua}).Call(page); err != nil {
		log.Warn("failed to override user agent", zap.Error(err))
	}

	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			log.Warn("failed to set viewport", zap.Error(err))
		}
	}

	log.Info("browser session opened", zap.Bool("headless", cfg.Headless))
	return &Session{cfg: cfg, log: log, launcher: l, browser: b, page: page}, nil
}

// InjectCookies navigates to baseURL so the cookie jar has a document context,
// then applies the credential bundle one record at a time. Records that fail
// to apply are skipped; a partial set is not fatal here, it simply surfaces
// later as a failed login.
func (s *Session) InjectCookies(ctx context.Context, baseURL string, cookies []Cookie) error {
	if err := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).Navigate(baseURL); err != nil {
		return fmt.Errorf("navigate %s: %w", baseURL, err)
	}
	_ = s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).WaitLoad()

	applied := 0
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if err := s.page.SetCookies([]*proto.NetworkCookieParam{param}); err != nil {
			s.log.Debug("skipped cookie", zap.String("name", c.Name), zap.Error(err))
			continue
		}
		applied++
	}

	s.log.Info("credential bundle applied",
		zap.Int("applied", applied),
		zap.Int("total", len(cookies)))
	return nil
}

// Page returns the session's page behind the capability surface.
func (s *Session) Page() Page {
	return &rodPage{page: s.page, navTimeout: s.cfg.NavigationTimeout()}
}

// Close releases the page, browser, and launcher. Safe to call on any path.
func (s *Session) Close() {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
	s.log.Info("browser session closed")
}
