// Package publisher announces finished exports to downstream consumers.
package publisher

import (
	"context"
	"time"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/output"
)

// EventExportCompleted is the event type of ExportCompleted.
const EventExportCompleted = "kmt.export.completed"

// Publisher sends a JSON payload to a named topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ExportCompleted is published once per run after every document is stored.
type ExportCompleted struct {
	Event      string            `json:"event"`
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Papers     int               `json:"papers"`
	Failed     int               `json:"failed_papers"`
	Reactions  int               `json:"reactions"`
	Artifacts  []output.Artifact `json:"artifacts"`
}

// NewExportCompleted summarizes a run's papers and stored documents.
func NewExportCompleted(runID string, startedAt, finishedAt time.Time, papers []archive.PaperRecord, artifacts []output.Artifact) ExportCompleted {
	ev := ExportCompleted{
		Event:      EventExportCompleted,
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Papers:     len(papers),
		Artifacts:  artifacts,
	}
	if ev.Artifacts == nil {
		ev.Artifacts = []output.Artifact{}
	}
	for _, p := range papers {
		if p.Error != nil {
			ev.Failed++
		}
		ev.Reactions += len(p.Reactions)
	}
	return ev
}

// EventType is attached to the message as the "event" attribute.
func (e ExportCompleted) EventType() string {
	return e.Event
}
