package archive

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/metrics"
)

var doiPattern = regexp.MustCompile(`doi/(.*?)/start`)

// DefaultMaxDetails caps the detail pages processed for one paper.
const DefaultMaxDetails = 200

// WalkerConfig controls pagination over one paper's result list.
type WalkerConfig struct {
	// DetailsText is matched as a substring of detail anchor text.
	DetailsText string
	PageWait    time.Duration
	MaxDetails  int
}

// Walker follows the paginated result list of one Entry.
type Walker struct {
	cfg       WalkerConfig
	browser   Browser
	fetcher   Fetcher
	extractor DetailExtractor
	logger    *zap.Logger
}

// NewWalker builds a Walker.
func NewWalker(
	cfg WalkerConfig,
	browser Browser,
	fetcher Fetcher,
	extractor DetailExtractor,
	logger *zap.Logger,
) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DetailsText == "" {
		cfg.DetailsText = "Details"
	}
	if cfg.PageWait <= 0 {
		cfg.PageWait = 3 * time.Second
	}
	if cfg.MaxDetails <= 0 {
		cfg.MaxDetails = DefaultMaxDetails
	}
	return &Walker{
		cfg:       cfg,
		browser:   browser,
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
	}
}

// Walk paginates from entry.StartURL and extracts every detail page it finds.
// It never fails; a browser failure other than a wait timeout lands in the
// record's Error field.
func (w *Walker) Walk(ctx context.Context, entry Entry) PaperRecord {
	paper := PaperRecord{Reactions: []ReactionRecord{}}
	w.seedCookies(ctx)

	visited := make(map[string]struct{})
	current := entry.StartURL
	for page := 1; current != ""; page++ {
		if err := ctx.Err(); err != nil {
			paper.Error = stringPtr(err.Error())
			break
		}
		visited[current] = struct{}{}

		if err := w.browser.Load(ctx, current, w.cfg.PageWait); err != nil {
			if errors.Is(err, ErrPageTimeout) {
				metrics.ObserveListPage("timeout")
			} else {
				metrics.ObserveListPage("error")
				paper.Error = stringPtr(err.Error())
			}
			w.logger.Debug("list page load ended pagination", zap.String("url", current), zap.Error(err))
			break
		}
		metrics.ObserveListPage("loaded")
		if paper.DOI == nil {
			if m := doiPattern.FindStringSubmatch(current); m != nil {
				paper.DOI = stringPtr(m[1])
			}
		}

		anchors, err := w.browser.Anchors(ctx)
		if err != nil {
			w.logger.Warn("reading list page anchors failed", zap.String("url", current), zap.Error(err))
		}
		details := detailURLs(anchors, w.cfg.DetailsText)
		if len(details) == 0 {
			break
		}
		next := nextPageURL(anchors, current, visited)

		w.logger.Info("processing list page",
			zap.Int("page", page),
			zap.Int("details", len(details)),
			zap.String("url", current),
		)
		w.processDetails(ctx, details, &paper)

		if paper.DetailsScanned >= w.cfg.MaxDetails {
			w.logger.Info("detail limit reached", zap.Int("limit", w.cfg.MaxDetails))
			break
		}
		current = next
	}

	if paper.Error != nil {
		metrics.ObservePaper("error")
	} else {
		metrics.ObservePaper("ok")
	}
	w.logger.Info("finished paper",
		zap.String("doi", Value(paper.DOI)),
		zap.Int("scanned", paper.DetailsScanned),
	)
	return paper
}

func (w *Walker) processDetails(ctx context.Context, details []string, paper *PaperRecord) {
	for _, detailURL := range details {
		if paper.DetailsScanned >= w.cfg.MaxDetails || ctx.Err() != nil {
			return
		}
		record, ok := w.extractor.Extract(ctx, detailURL)
		if !ok {
			continue
		}
		paper.Reactions = append(paper.Reactions, record)
		paper.DetailsScanned++
	}
}

func (w *Walker) seedCookies(ctx context.Context) {
	cookies, err := w.browser.Cookies(ctx)
	if err != nil {
		w.logger.Warn("reading browser cookies failed", zap.Error(err))
		return
	}
	if err := w.fetcher.SeedCookies(cookies); err != nil {
		w.logger.Warn("seeding http session cookies failed", zap.Error(err))
	}
}

func detailURLs(anchors []Anchor, marker string) []string {
	var urls []string
	for _, a := range anchors {
		if a.Href == "" || !strings.Contains(a.Text, marker) {
			continue
		}
		urls = append(urls, a.Href)
	}
	return urls
}

// nextPageURL picks the first "Next"/">" anchor that points at an unvisited list page.
func nextPageURL(anchors []Anchor, current string, visited map[string]struct{}) string {
	for _, a := range anchors {
		if !strings.Contains(a.Text, "Next") && !strings.Contains(a.Text, ">") {
			continue
		}
		if a.Href == "" || !strings.Contains(a.Href, "start") || a.Href == current {
			continue
		}
		if _, seen := visited[a.Href]; seen {
			continue
		}
		return a.Href
	}
	return ""
}
