package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
)

// Browser implements archive.Browser over plain HTTP for archives that render
// server-side. Anchors come from the raw markup; no JavaScript runs.
type Browser struct {
	fetcher *Fetcher
	page    *url.URL
	body    []byte
}

// NewBrowser wraps a Fetcher. The Browser shares the Fetcher's cookie jar.
func NewBrowser(fetcher *Fetcher) *Browser {
	return &Browser{fetcher: fetcher}
}

// Load fetches rawURL and keeps its body for Anchors.
func (b *Browser) Load(ctx context.Context, rawURL string, wait time.Duration) error {
	loadCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	resp, err := b.fetcher.Fetch(loadCtx, rawURL)
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			return fmt.Errorf("load %s: %w", rawURL, archive.ErrPageTimeout)
		}
		return fmt.Errorf("load %s: %w", rawURL, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("load %s: status %d", rawURL, resp.StatusCode)
	}
	page, err := url.Parse(resp.URL)
	if err != nil {
		return fmt.Errorf("parse page url: %w", err)
	}
	b.page = page
	b.body = resp.Body
	return nil
}

// Anchors returns every <a> on the loaded page with hrefs resolved to absolute URLs.
func (b *Browser) Anchors(context.Context) ([]archive.Anchor, error) {
	if b.page == nil {
		return nil, errors.New("no page loaded")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	var anchors []archive.Anchor
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		anchors = append(anchors, archive.Anchor{
			Href:       b.resolve(s.AttrOr("href", "")),
			Text:       strings.TrimSpace(s.Text()),
			ParentText: strings.TrimSpace(s.Parent().Text()),
		})
	})
	return anchors, nil
}

// Cookies returns the session cookies for the loaded page.
func (b *Browser) Cookies(context.Context) ([]*http.Cookie, error) {
	if b.page == nil {
		return nil, nil
	}
	return b.fetcher.Cookies(b.page.String()), nil
}

func (b *Browser) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.page.ResolveReference(ref).String()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
