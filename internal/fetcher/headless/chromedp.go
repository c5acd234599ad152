// Package headless drives the archive's list pages through headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultScriptTimeout     = 5 * time.Second
)

// anchorsScript collects every anchor with its resolved href, rendered text and
// the rendered text of its parent element.
const anchorsScript = `Array.from(document.querySelectorAll('a')).map(a => ({
	href: a.href || '',
	text: (a.innerText || a.textContent || '').trim(),
	parentText: a.parentElement ? (a.parentElement.innerText || a.parentElement.textContent || '').trim() : ''
}))`

// Config controls the browser session.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	DisableImages     bool
	// ExecPath overrides Chrome discovery when set.
	ExecPath string
}

// Session implements archive.Browser with a single long-lived Chrome tab.
// It is not safe for concurrent use.
type Session struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// Open launches Chrome and returns a ready session. Callers must Close it.
func Open(cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
	)
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}
	if err := chromedp.Run(browserCtx, s.setupAction()); err != nil {
		s.Close()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return s, nil
}

// Close tears down the tab, the browser and the allocator.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.browserCancel()
	s.allocCancel()
}

// Load navigates to rawURL, then waits up to wait for the document body.
// Only the body wait maps to archive.ErrPageTimeout; a navigation that
// exceeds the navigation timeout is a plain error.
func (s *Session) Load(ctx context.Context, rawURL string, wait time.Duration) error {
	navCtx, cancelNav := context.WithTimeout(s.browserCtx, s.navTimeout())
	defer cancelNav()
	stop := forwardCancel(ctx, cancelNav)
	defer stop()

	if err := chromedp.Run(navCtx, chromedp.Navigate(rawURL)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigate %s: %w", rawURL, ctx.Err())
		}
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	waitCtx, cancelWait := context.WithTimeout(navCtx, wait)
	defer cancelWait()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		switch {
		case ctx.Err() != nil:
			return fmt.Errorf("wait body %s: %w", rawURL, ctx.Err())
		case errors.Is(waitCtx.Err(), context.DeadlineExceeded) && navCtx.Err() == nil:
			return fmt.Errorf("wait body %s: %w", rawURL, archive.ErrPageTimeout)
		default:
			return fmt.Errorf("wait body %s: %w", rawURL, err)
		}
	}
	return nil
}

// Anchors returns the anchors of the current document.
func (s *Session) Anchors(ctx context.Context) ([]archive.Anchor, error) {
	var anchors []archive.Anchor
	err := s.run(ctx, chromedp.Evaluate(anchorsScript, &anchors))
	if err != nil {
		return nil, fmt.Errorf("collect anchors: %w", err)
	}
	return anchors, nil
}

// Cookies returns the browser's cookies for the current document.
func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return toHTTPCookies(cookies), nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, defaultScriptTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func toHTTPCookies(src []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(src))
	for _, c := range src {
		if c == nil {
			continue
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}

// forwardCancel cancels a browser-scoped task when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
