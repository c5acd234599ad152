package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const archiveURL = "https://kmt.example/archive"

func TestListerScanMatchesLinkText(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[archiveURL] = []Anchor{
		{Href: "https://kmt.example/archive/doi/10.1/a/start/0", Text: "reaction data", ParentText: "Smith et al. Org. Lett. 2021 reaction data"},
		{Href: "https://kmt.example/about", Text: "About"},
		{Href: "", Text: "reaction data", ParentText: "broken"},
		{Href: "https://kmt.example/archive/doi/10.2/b/start/0", Text: "view reaction data", ParentText: "No year here"},
	}

	lister := NewLister(ListerConfig{ArchiveURL: archiveURL, LinkText: "reaction data"}, browser, nil)
	entries := lister.Scan(context.Background())

	require.Len(t, entries, 2)
	assert.Equal(t, "https://kmt.example/archive/doi/10.1/a/start/0", entries[0].StartURL)
	assert.Equal(t, 2021, entries[0].Year)
	assert.Equal(t, "No year here", entries[1].TitleText)
	assert.Zero(t, entries[1].Year)
}

func TestListerScanNoMatchesReturnsEmpty(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.pages[archiveURL] = []Anchor{{Href: "https://kmt.example/x", Text: "Home"}}

	entries := NewLister(ListerConfig{ArchiveURL: archiveURL, LinkText: "reaction data"}, browser, nil).
		Scan(context.Background())
	require.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestListerScanPageFailureReturnsEmpty(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.loadErrs[archiveURL] = fmt.Errorf("wait body: %w", ErrPageTimeout)

	entries := NewLister(ListerConfig{ArchiveURL: archiveURL, LinkText: "reaction data"}, browser, nil).
		Scan(context.Background())
	require.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.True(t, errors.Is(browser.loadErrs[archiveURL], ErrPageTimeout))
}

func TestParseYear(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"Published 1998, revised 2003": 1998,
		"J. Org. Chem. 2020, 85, 1234": 2020,
		"page 12345":                   0,
		"":                             0,
	}
	for text, want := range cases {
		assert.Equal(t, want, ParseYear(text), text)
	}
}

func TestLimit(t *testing.T) {
	t.Parallel()

	entries := []Entry{{StartURL: "a"}, {StartURL: "b"}, {StartURL: "c"}}
	assert.Len(t, Limit(entries, 1), 1)
	assert.Len(t, Limit(entries, 0), 3)
	assert.Len(t, Limit(entries, 10), 3)
}
