// Package browser loads rendered pages through a headless Chrome driven by
// go-rod. Each collection stage opens its own Session and closes it when the
// stage ends.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/config"
)

// Page is the rendered content of one URL.
type Page struct {
	URL   string
	Title string
	HTML  string
}

// Loader opens page-loading sessions.
type Loader interface {
	Open(ctx context.Context) (Session, error)
}

// Session loads pages in one isolated browser context.
type Session interface {
	Load(ctx context.Context, url string) (*Page, error)
	Close() error
}

// Rod launches Chrome lazily on the first Open and shares the process across
// sessions. Every session gets its own incognito context.
type Rod struct {
	cfg config.BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRod creates a Loader backed by go-rod.
func NewRod(cfg config.BrowserConfig) *Rod {
	return &Rod{cfg: cfg}
}

func (r *Rod) navigationTimeout() time.Duration {
	if r.cfg.NavigationTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.cfg.NavigationTimeoutSecs) * time.Second
}

func (r *Rod) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(r.cfg.Headless)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, eris.Wrap(err, "browser: connect to chrome")
	}
	zap.L().Debug("browser: connected", zap.String("control_url", controlURL))
	r.browser = b
	return b, nil
}

// Open starts a new incognito session.
func (r *Rod) Open(ctx context.Context) (Session, error) {
	b, err := r.connect()
	if err != nil {
		return nil, err
	}
	incognito, err := b.Context(ctx).Incognito()
	if err != nil {
		return nil, eris.Wrap(err, "browser: incognito context")
	}
	return &rodSession{browser: incognito, timeout: r.navigationTimeout()}, nil
}

// Close shuts down the shared Chrome process.
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return eris.Wrap(err, "browser: close")
}

type rodSession struct {
	browser *rod.Browser
	timeout time.Duration
}

func (s *rodSession) Load(ctx context.Context, url string) (*Page, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}
	defer page.Close() //nolint:errcheck

	p := page.Context(ctx).Timeout(s.timeout)
	if err := p.Navigate(url); err != nil {
		return nil, eris.Wrapf(err, "browser: navigate %s", url)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, eris.Wrapf(err, "browser: wait load %s", url)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, eris.Wrapf(err, "browser: read html %s", url)
	}
	out := &Page{URL: url, HTML: html}
	if info, err := p.Info(); err == nil {
		out.Title = info.Title
		out.URL = info.URL
	}
	return out, nil
}

func (s *rodSession) Close() error {
	return eris.Wrap(s.browser.Close(), "browser: close session")
}
