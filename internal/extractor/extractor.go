// Package extractor fetches reaction detail pages and their XML exports.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/metrics"
	"github.com/JakeFAU/kmt-crawler/internal/reactionxml"
)

// DefaultLinkText is the exact anchor text of the XML export link.
const DefaultLinkText = "XML"

// Config controls detail extraction.
type Config struct {
	// BaseURL is the origin prefixed to root-relative XML links.
	BaseURL  string
	LinkText string
}

// Extractor implements archive.DetailExtractor.
type Extractor struct {
	base     string
	linkText string
	fetcher  archive.Fetcher
	logger   *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, fetcher archive.Fetcher, logger *zap.Logger) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be an absolute origin", cfg.BaseURL)
	}
	if cfg.LinkText == "" {
		cfg.LinkText = DefaultLinkText
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		base:     base.Scheme + "://" + base.Host,
		linkText: cfg.LinkText,
		fetcher:  fetcher,
		logger:   logger,
	}, nil
}

// Extract fetches detailURL, follows its XML link and parses the export.
// A failed or non-200 detail fetch, or a failed XML transport, returns ok=false.
// A page without an XML link, or a non-200 XML response, still yields a record
// with no reaction string and no molecules.
func (e *Extractor) Extract(ctx context.Context, detailURL string) (archive.ReactionRecord, bool) {
	logger := e.logger.With(zap.String("details_url", detailURL))

	resp, err := e.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		logger.Debug("detail fetch failed", zap.Error(err))
		metrics.ObserveDetail("skipped")
		return archive.ReactionRecord{}, false
	}
	if resp.StatusCode != http.StatusOK {
		logger.Debug("detail fetch returned non-200", zap.Int("status_code", resp.StatusCode))
		metrics.ObserveDetail("skipped")
		return archive.ReactionRecord{}, false
	}

	record := archive.ReactionRecord{
		DetailsURL: detailURL,
		Molecules:  []archive.MoleculeRecord{},
	}

	xmlURL, err := e.FindXMLLink(resp.Body, detailURL)
	if err != nil {
		logger.Debug("detail page has no xml link", zap.Error(err))
		metrics.ObserveXML("missing_link")
		metrics.ObserveDetail("recorded")
		return record, true
	}

	xmlResp, err := e.fetcher.Fetch(ctx, xmlURL)
	if err != nil {
		logger.Debug("xml fetch failed", zap.String("xml_url", xmlURL), zap.Error(err))
		metrics.ObserveXML("error")
		metrics.ObserveDetail("skipped")
		return archive.ReactionRecord{}, false
	}
	if xmlResp.StatusCode != http.StatusOK {
		logger.Debug("xml fetch returned non-200",
			zap.String("xml_url", xmlURL),
			zap.Int("status_code", xmlResp.StatusCode),
		)
		metrics.ObserveXML("non_ok")
		metrics.ObserveDetail("recorded")
		return record, true
	}

	parsed := reactionxml.Parse(string(xmlResp.Body))
	record.OverallReactionSMILES = parsed.SMILES
	for _, m := range parsed.Molecules {
		record.Molecules = append(record.Molecules, archive.MoleculeRecord{
			Role:     m.Role,
			InChIKey: m.InChIKey,
			SMILES:   m.SMILES,
			Name:     m.Name,
			Ratio:    m.Ratio,
		})
	}
	metrics.ObserveXML("ok")
	metrics.ObserveDetail("recorded")
	return record, true
}

// FindXMLLink returns the resolved target of the first anchor whose text is
// exactly the configured link text.
func (e *Extractor) FindXMLLink(body []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", err)
	}
	anchor := doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Text() == e.linkText
	}).First()
	if anchor.Length() == 0 {
		return "", archive.ErrNoXMLLink
	}
	href, ok := anchor.Attr("href")
	if !ok || href == "" {
		return "", fmt.Errorf("xml anchor without href: %w", archive.ErrNoXMLLink)
	}
	return e.Resolve(href, pageURL)
}

// Resolve turns href into an absolute URL. Absolute hrefs are kept, root-relative
// hrefs get the base origin, anything else resolves against pageURL.
func (e *Extractor) Resolve(href, pageURL string) (string, error) {
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
		return e.base + href, nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse xml href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return href, nil
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url %q: %w", pageURL, err)
	}
	return page.ResolveReference(ref).String(), nil
}
