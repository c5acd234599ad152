package archive

import (
	"context"

	"go.uber.org/zap"
)

// Scraper runs the full archive pipeline: scan, limit, then walk each entry.
type Scraper struct {
	lister    *Lister
	walker    *Walker
	maxPapers int
	logger    *zap.Logger
}

// NewScraper wires a Lister and Walker together. maxPapers <= 0 walks every entry.
func NewScraper(lister *Lister, walker *Walker, maxPapers int, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		lister:    lister,
		walker:    walker,
		maxPapers: maxPapers,
		logger:    logger,
	}
}

// Run scrapes the archive sequentially and returns one PaperRecord per walked entry.
func (s *Scraper) Run(ctx context.Context) []PaperRecord {
	entries := s.lister.Scan(ctx)
	if len(entries) == 0 {
		s.logger.Warn("no links found")
		return []PaperRecord{}
	}
	limited := Limit(entries, s.maxPapers)
	if len(limited) < len(entries) {
		s.logger.Info("paper limit applied", zap.Int("processing", len(limited)), zap.Int("available", len(entries)))
	}

	results := make([]PaperRecord, 0, len(limited))
	for i, entry := range limited {
		if ctx.Err() != nil {
			s.logger.Warn("scrape canceled", zap.Int("completed", i), zap.Error(ctx.Err()))
			break
		}
		s.logger.Info("starting paper",
			zap.Int("index", i+1),
			zap.Int("total", len(limited)),
			zap.String("title", truncate(entry.TitleText, 50)),
			zap.Int("year", entry.Year),
		)
		results = append(results, s.walker.Walk(ctx, entry))
	}
	return results
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
