// Package collyfetcher implements the plain HTTP session using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/metrics"
)

const defaultTimeout = 5 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// BaseURL scopes cookies that arrive without a domain.
	BaseURL string
}

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements archive.Fetcher using the Colly collector. It issues one
// request at a time and shares a single cookie jar across requests.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
	}
}

// SeedCookies replaces the cookie jar with the given cookies. Only name, value
// and path are kept, so the cookies are replayed to their host regardless of
// the browser's secure/same-site flags.
func (f *Fetcher) SeedCookies(cookies []*http.Cookie) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	byHost := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		host, err := f.cookieURL(c)
		if err != nil {
			f.logger.Debug("dropping cookie without usable domain", zap.String("name", c.Name), zap.Error(err))
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		byHost[host] = append(byHost[host], &http.Cookie{Name: c.Name, Value: c.Value, Path: path})
	}
	for raw, set := range byHost {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse cookie url: %w", err)
		}
		jar.SetCookies(u, set)
	}
	f.baseCollector.SetCookieJar(jar)
	return nil
}

// Cookies returns the cookies the session would send to rawURL.
func (f *Fetcher) Cookies(rawURL string) []*http.Cookie {
	return f.baseCollector.Cookies(rawURL)
}

// Fetch executes a single HTTP GET using Colly. Non-2xx statuses are returned
// as responses, not errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (archive.Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return archive.Response{}, err
		}
	}
	var (
		result   archive.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		metrics.ObserveFetch(rawURL, 0, time.Since(start), 0)
		return archive.Response{}, err
	}
	metrics.ObserveFetch(rawURL, result.StatusCode, time.Since(start), len(result.Body))
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *archive.Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = archive.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) cookieURL(c *http.Cookie) (string, error) {
	scheme := "https"
	host := strings.TrimPrefix(c.Domain, ".")
	if base, err := url.Parse(f.cfg.BaseURL); err == nil && base.Host != "" {
		scheme = base.Scheme
		if host == "" {
			host = base.Host
		}
	}
	if host == "" {
		return "", fmt.Errorf("cookie %q has no domain and no base url is configured", c.Name)
	}
	return scheme + "://" + host + "/", nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
