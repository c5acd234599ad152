// Package app runs one scrape end to end: scrape, export, persist, announce.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/output"
	"github.com/JakeFAU/kmt-crawler/internal/publisher"
)

// Scraper produces the papers of one run.
type Scraper interface {
	Run(ctx context.Context) []archive.PaperRecord
}

// Exporter stores the rendered documents.
type Exporter interface {
	Export(ctx context.Context, subdir string, papers []archive.PaperRecord) ([]output.Artifact, error)
}

// RecordSaver persists papers row by row.
type RecordSaver interface {
	SavePapers(ctx context.Context, runID string, papers []archive.PaperRecord) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps groups the collaborators of a Runner. Records, Publisher and Summary
// are optional.
type Deps struct {
	Scraper   Scraper
	Exporter  Exporter
	Records   RecordSaver
	Publisher publisher.Publisher
	Clock     Clock
	IDs       IDGenerator
	Summary   io.Writer
	Logger    *zap.Logger
}

// Options tune a Runner.
type Options struct {
	Topic string
	// PrefixRunID stores documents under a directory named after the run id.
	PrefixRunID bool
}

// Result describes a finished run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Papers     []archive.PaperRecord
	Artifacts  []output.Artifact
}

// Runner executes a scrape and hands the results to every configured sink.
type Runner struct {
	deps Deps
	opts Options
}

// NewRunner validates deps and builds a Runner.
func NewRunner(deps Deps, opts Options) (*Runner, error) {
	if deps.Scraper == nil {
		return nil, fmt.Errorf("scraper is required")
	}
	if deps.Exporter == nil {
		return nil, fmt.Errorf("exporter is required")
	}
	if deps.Clock == nil || deps.IDs == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	if deps.Publisher != nil && opts.Topic == "" {
		return nil, fmt.Errorf("publisher topic is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{deps: deps, opts: opts}, nil
}

// Run scrapes once. When the archive yields no papers nothing is written.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return Result{}, err
	}
	logger := r.deps.Logger.With(zap.String("run_id", runID))
	res := Result{RunID: runID, StartedAt: r.deps.Clock.Now()}

	res.Papers = r.deps.Scraper.Run(ctx)
	res.FinishedAt = r.deps.Clock.Now()
	if len(res.Papers) == 0 {
		logger.Warn("no papers scraped; nothing written")
		return res, nil
	}

	subdir := ""
	if r.opts.PrefixRunID {
		subdir = runID
	}
	// Export runs on a fresh context so an interrupted scrape still saves what it has.
	exportCtx := context.WithoutCancel(ctx)
	res.Artifacts, err = r.deps.Exporter.Export(exportCtx, subdir, res.Papers)
	if err != nil {
		return res, fmt.Errorf("export papers: %w", err)
	}

	if r.deps.Records != nil {
		if err := r.deps.Records.SavePapers(exportCtx, runID, res.Papers); err != nil {
			return res, fmt.Errorf("save papers: %w", err)
		}
		logger.Info("saved papers to database", zap.Int("papers", len(res.Papers)))
	}

	if r.deps.Publisher != nil {
		ev := publisher.NewExportCompleted(runID, res.StartedAt, res.FinishedAt, res.Papers, res.Artifacts)
		id, err := r.deps.Publisher.Publish(exportCtx, r.opts.Topic, ev)
		if err != nil {
			return res, fmt.Errorf("publish export notification: %w", err)
		}
		logger.Info("published export notification", zap.String("topic", r.opts.Topic), zap.String("message_id", id))
	}

	if r.deps.Summary != nil {
		output.PrintSummary(r.deps.Summary, res.Papers)
	}
	logger.Info("run complete",
		zap.Int("papers", len(res.Papers)),
		zap.Int("artifacts", len(res.Artifacts)),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}
