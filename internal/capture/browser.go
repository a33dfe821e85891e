// internal/capture/browser.go
package capture

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	cdpnetwork "github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/archiver"
)

// BrowserConfig controls the headless browser used for live capture.
type BrowserConfig struct {
	Headless  bool
	Args      []string
	UserAgent string
	// Settle is how long to wait after the document is ready so scripts can
	// finish building the page.
	Settle time.Duration
}

const (
	jsInnerText   = `document.body ? document.body.innerText : ""`
	jsStylesheets = `Array.from(document.styleSheets).map(function (s) { return s.href; }).filter(Boolean)`
)

var _ archiver.PageSource = (*BrowserSource)(nil)

// BrowserSource captures a page rendered by a headless Chrome. The page is
// loaded on first use; every capture runs against that same tab.
type BrowserSource struct {
	pageURL *url.URL
	cfg     BrowserConfig
	logger  *zap.Logger

	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	// mu serializes actions on the tab.
	mu      sync.Mutex
	loaded  bool
	loadErr error
}

// NewBrowserSource prepares a browser for pageURL. No process is started
// until the first capture. Close releases it.
func NewBrowserSource(parent context.Context, pageURL *url.URL, cfg BrowserConfig, logger *zap.Logger) *BrowserSource {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, execOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	return &BrowserSource{
		pageURL:     pageURL,
		cfg:         cfg,
		logger:      logger.Named("browser").With(zap.String("url", pageURL.String())),
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}
}

// execOptions layers the configuration over chromedp's defaults.
func execOptions(cfg BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		key, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if key == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Close shuts down the tab and the browser process.
func (s *BrowserSource) Close() {
	s.tabCancel()
	s.allocCancel()
}

// run executes actions on the tab, loading the page first if needed. ctx
// bounds this call only; cancelling it leaves the tab open.
func (s *BrowserSource) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.loaded = true
		started := time.Now()
		s.loadErr = chromedp.Run(runCtx,
			chromedp.Navigate(s.pageURL.String()),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(s.cfg.Settle),
		)
		if s.loadErr != nil {
			s.loadErr = fmt.Errorf("failed to load page in browser: %w", s.loadErr)
		} else {
			s.logger.Debug("Page rendered.", zap.Duration("elapsed", time.Since(started)))
		}
	}
	if s.loadErr != nil {
		return s.loadErr
	}
	return chromedp.Run(runCtx, actions...)
}

// HTML returns the rendered document's outer HTML.
func (s *BrowserSource) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture DOM: %w", err)
	}
	return html, nil
}

// Text returns the body's rendered text.
func (s *BrowserSource) Text(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Evaluate(jsInnerText, &text)); err != nil {
		return "", fmt.Errorf("failed to capture page text: %w", err)
	}
	return text, nil
}

// StylesheetURLs returns the hrefs of every stylesheet the page loaded,
// including ones inserted by scripts.
func (s *BrowserSource) StylesheetURLs(ctx context.Context) ([]string, error) {
	var hrefs []string
	if err := s.run(ctx, chromedp.Evaluate(jsStylesheets, &hrefs)); err != nil {
		return nil, fmt.Errorf("failed to list stylesheets: %w", err)
	}
	return hrefs, nil
}

// Cookies returns the browser's cookies for the page.
func (s *BrowserSource) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*cdpnetwork.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = cdpnetwork.GetCookies().WithURLs([]string{s.pageURL.String()}).Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture cookies: %w", err)
	}
	return convertCookies(cookies), nil
}

// convertCookies maps CDP cookies to net/http cookies. Session cookies
// (negative or zero expiry) keep a zero Expires.
func convertCookies(in []*cdpnetwork.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 && !c.Session {
			sec, frac := math.Modf(c.Expires)
			hc.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		out = append(out, hc)
	}
	return out
}
