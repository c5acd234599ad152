package archive

import (
	"context"
	"net/http"
	"time"
)

// Browser loads list pages and exposes their anchors. Implementations hold one
// page at a time; Anchors reflects the most recent successful Load.
type Browser interface {
	// Load navigates to url and waits up to wait for the document body.
	// A wait that expires returns an error wrapping ErrPageTimeout.
	Load(ctx context.Context, url string, wait time.Duration) error
	Anchors(ctx context.Context) ([]Anchor, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
}

// Fetcher performs plain HTTP GETs outside the browser.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
	// SeedCookies replaces the session cookies with the given set.
	SeedCookies(cookies []*http.Cookie) error
}

// DetailExtractor turns one detail URL into a ReactionRecord.
// ok is false when the detail must be skipped and not counted.
type DetailExtractor interface {
	Extract(ctx context.Context, detailURL string) (record ReactionRecord, ok bool)
}
