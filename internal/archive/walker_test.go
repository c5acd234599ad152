package archive

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	page0 = "https://kmt.example/archive/doi/10.1021%2Facs.orglett.1c00001/start/0"
	page1 = "https://kmt.example/archive/doi/10.1021%2Facs.orglett.1c00001/start/10"
	page2 = "https://kmt.example/archive/doi/10.1021%2Facs.orglett.1c00001/start/20"
)

func newTestWalker(browser Browser, extractor DetailExtractor, maxDetails int) (*Walker, *fakeFetcher) {
	fetcher := &fakeFetcher{}
	w := NewWalker(WalkerConfig{DetailsText: "Details", MaxDetails: maxDetails}, browser, fetcher, extractor, nil)
	return w, fetcher
}

func TestWalkFollowsNextPages(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.cookies = []*http.Cookie{{Name: "session", Value: "abc"}}
	browser.pages[page0] = append(detailAnchors("p0", 2),
		Anchor{Href: page0, Text: ">"},
		Anchor{Href: page1, Text: "Next >"},
	)
	browser.pages[page1] = append(detailAnchors("p1", 1),
		Anchor{Href: "https://kmt.example/help", Text: "Next steps"},
	)
	extractor := &fakeExtractor{}

	w, fetcher := newTestWalker(browser, extractor, 0)
	paper := w.Walk(context.Background(), Entry{StartURL: page0})

	require.NotNil(t, paper.DOI)
	assert.Equal(t, "10.1021%2Facs.orglett.1c00001", *paper.DOI)
	assert.Equal(t, 3, paper.DetailsScanned)
	assert.Len(t, paper.Reactions, 3)
	assert.Nil(t, paper.Error)
	assert.Equal(t, []string{page0, page1}, browser.loads)
	assert.Equal(t, []string{"p0/detail/0", "p0/detail/1", "p1/detail/0"}, extractor.calls)
	require.Len(t, fetcher.seeded, 1)
	assert.Equal(t, "session", fetcher.seeded[0].Name)
}

func TestWalkStopsWhenNoDetails(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[page0] = []Anchor{{Href: page1, Text: "Next"}}
	browser.pages[page1] = detailAnchors("p1", 1)

	w, _ := newTestWalker(browser, &fakeExtractor{}, 0)
	paper := w.Walk(context.Background(), Entry{StartURL: page0})

	assert.Zero(t, paper.DetailsScanned)
	assert.NotNil(t, paper.Reactions)
	assert.Equal(t, []string{page0}, browser.loads)
}

func TestWalkTimeoutEndsWithoutError(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[page0] = append(detailAnchors("p0", 1), Anchor{Href: page1, Text: "Next"})
	browser.loadErrs[page1] = fmt.Errorf("wait ready: %w", ErrPageTimeout)

	w, _ := newTestWalker(browser, &fakeExtractor{}, 0)
	paper := w.Walk(context.Background(), Entry{StartURL: page0})

	assert.Equal(t, 1, paper.DetailsScanned)
	assert.Nil(t, paper.Error)
}

func TestWalkNavigationFailureRecordsError(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	w, _ := newTestWalker(browser, &fakeExtractor{}, 0)
	paper := w.Walk(context.Background(), Entry{StartURL: page0})

	require.NotNil(t, paper.Error)
	assert.Contains(t, *paper.Error, "ERR_NAME_NOT_RESOLVED")
	assert.Nil(t, paper.DOI)
}

func TestWalkRespectsDetailCap(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[page0] = append(detailAnchors("p0", 4), Anchor{Href: page1, Text: "Next"})
	browser.pages[page1] = append(detailAnchors("p1", 4), Anchor{Href: page2, Text: "Next"})
	browser.pages[page2] = detailAnchors("p2", 4)
	extractor := &fakeExtractor{}

	w, _ := newTestWalker(browser, extractor, 6)
	paper := w.Walk(context.Background(), Entry{StartURL: page0})

	assert.Equal(t, 6, paper.DetailsScanned)
	assert.Len(t, extractor.calls, 6)
	assert.Equal(t, []string{page0, page1}, browser.loads)
}

func TestWalkTerminatesOnNextLinkCycle(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[page0] = append(detailAnchors("p0", 1), Anchor{Href: page1, Text: "Next"})
	browser.pages[page1] = append(detailAnchors("p1", 1),
		Anchor{Href: page1, Text: "Next"},
		Anchor{Href: page0, Text: "Next"},
	)

	w, _ := newTestWalker(browser, &fakeExtractor{}, 0)
	paper := w.Walk(context.Background(), Entry{StartURL: page0})

	assert.Equal(t, []string{page0, page1}, browser.loads)
	assert.Equal(t, 2, paper.DetailsScanned)
	assert.LessOrEqual(t, paper.DetailsScanned, DefaultMaxDetails)
}

func TestWalkSkippedDetailsAreNotCounted(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[page0] = detailAnchors("p0", 3)
	extractor := &fakeExtractor{skip: map[string]bool{"p0/detail/1": true}}

	w, _ := newTestWalker(browser, extractor, 0)
	paper := w.Walk(context.Background(), Entry{StartURL: page0})

	assert.Equal(t, 2, paper.DetailsScanned)
	require.Len(t, paper.Reactions, 2)
	assert.Equal(t, "p0/detail/2", paper.Reactions[1].DetailsURL)
}

func TestWalkCanceledContextRecordsError(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[page0] = detailAnchors("p0", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w, _ := newTestWalker(browser, &fakeExtractor{}, 0)
	paper := w.Walk(ctx, Entry{StartURL: page0})

	require.NotNil(t, paper.Error)
	assert.Equal(t, context.Canceled.Error(), *paper.Error)
	assert.Empty(t, browser.loads)
}
