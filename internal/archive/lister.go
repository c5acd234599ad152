package archive

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ListerConfig controls how the archive index is read.
type ListerConfig struct {
	ArchiveURL string
	// LinkText is matched as a substring of each anchor's text.
	LinkText string
	Wait     time.Duration
}

// Lister reads the archive index page.
type Lister struct {
	cfg     ListerConfig
	browser Browser
	logger  *zap.Logger
}

// NewLister builds a Lister.
func NewLister(cfg ListerConfig, browser Browser, logger *zap.Logger) *Lister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 5 * time.Second
	}
	return &Lister{cfg: cfg, browser: browser, logger: logger}
}

// Scan loads the archive index and returns every matching Entry in page order.
// Page-level failures are logged and yield an empty list.
func (l *Lister) Scan(ctx context.Context) []Entry {
	l.logger.Info("loading archive", zap.String("url", l.cfg.ArchiveURL))
	if err := l.browser.Load(ctx, l.cfg.ArchiveURL, l.cfg.Wait); err != nil {
		l.logger.Error("error scanning archive", zap.Error(err))
		return []Entry{}
	}
	anchors, err := l.browser.Anchors(ctx)
	if err != nil {
		l.logger.Error("error scanning archive", zap.Error(err))
		return []Entry{}
	}

	entries := make([]Entry, 0, len(anchors))
	matched := 0
	for _, a := range anchors {
		if !strings.Contains(a.Text, l.cfg.LinkText) {
			continue
		}
		matched++
		if a.Href == "" {
			l.logger.Debug("skipping archive anchor without href", zap.String("text", a.Text))
			continue
		}
		entries = append(entries, Entry{
			StartURL:  a.Href,
			TitleText: a.ParentText,
			Year:      ParseYear(a.ParentText),
		})
	}
	l.logger.Info("found papers in archive", zap.Int("total", matched))
	return entries
}

// ParseYear returns the first four-digit year in text, or zero.
func ParseYear(text string) int {
	match := yearPattern.FindString(text)
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}

// Limit returns at most maxPapers entries; zero or less keeps them all.
func Limit(entries []Entry, maxPapers int) []Entry {
	if maxPapers <= 0 || len(entries) <= maxPapers {
		return entries
	}
	return entries[:maxPapers]
}
