package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type fakeBrowser struct {
	pages    map[string][]Anchor
	loadErrs map[string]error
	cookies  []*http.Cookie
	current  string
	loads    []string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		pages:    make(map[string][]Anchor),
		loadErrs: make(map[string]error),
	}
}

func (b *fakeBrowser) Load(_ context.Context, url string, _ time.Duration) error {
	b.loads = append(b.loads, url)
	if err, ok := b.loadErrs[url]; ok {
		return err
	}
	if _, ok := b.pages[url]; !ok {
		return fmt.Errorf("navigate %s: %w", url, errors.New("net::ERR_NAME_NOT_RESOLVED"))
	}
	b.current = url
	return nil
}

func (b *fakeBrowser) Anchors(context.Context) ([]Anchor, error) {
	return b.pages[b.current], nil
}

func (b *fakeBrowser) Cookies(context.Context) ([]*http.Cookie, error) {
	return b.cookies, nil
}

type fakeFetcher struct {
	seeded []*http.Cookie
}

func (f *fakeFetcher) Fetch(context.Context, string) (Response, error) {
	return Response{}, errors.New("not used")
}

func (f *fakeFetcher) SeedCookies(cookies []*http.Cookie) error {
	f.seeded = cookies
	return nil
}

type fakeExtractor struct {
	skip  map[string]bool
	calls []string
}

func (e *fakeExtractor) Extract(_ context.Context, detailURL string) (ReactionRecord, bool) {
	e.calls = append(e.calls, detailURL)
	if e.skip[detailURL] {
		return ReactionRecord{}, false
	}
	smiles := "A>B"
	return ReactionRecord{DetailsURL: detailURL, OverallReactionSMILES: &smiles}, true
}

func detailAnchors(prefix string, n int) []Anchor {
	anchors := make([]Anchor, 0, n)
	for i := 0; i < n; i++ {
		anchors = append(anchors, Anchor{Href: fmt.Sprintf("%s/detail/%d", prefix, i), Text: "Details"})
	}
	return anchors
}
