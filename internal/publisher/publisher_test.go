package publisher_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/output"
	"github.com/JakeFAU/kmt-crawler/internal/publisher"
	"github.com/JakeFAU/kmt-crawler/internal/publisher/memory"
)

func TestNewExportCompleted(t *testing.T) {
	failure := "timeout"
	papers := []archive.PaperRecord{
		{Reactions: []archive.ReactionRecord{{DetailsURL: "a"}, {DetailsURL: "b"}}},
		{Error: &failure, Reactions: []archive.ReactionRecord{{DetailsURL: "c"}}},
	}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	ev := publisher.NewExportCompleted("run-1", start, end, papers, nil)
	assert.Equal(t, publisher.EventExportCompleted, ev.Event)
	assert.Equal(t, 2, ev.Papers)
	assert.Equal(t, 1, ev.Failed)
	assert.Equal(t, 3, ev.Reactions)
	assert.NotNil(t, ev.Artifacts)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"artifacts":[]`)
	assert.Contains(t, string(data), `"finished_at":"2026-03-01T10:01:00Z"`)
}

func TestMemoryPublisherSatisfiesInterface(t *testing.T) {
	var pub publisher.Publisher = memory.New()
	ev := publisher.NewExportCompleted("run-2", time.Now(), time.Now(), nil, []output.Artifact{{Name: "kmt_output.json"}})
	id, err := pub.Publish(context.Background(), "kmt-exports", ev)
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
}
