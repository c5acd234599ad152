package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "kmt-exports", map[string]string{"run_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "kmt-audit", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "kmt-exports", msgs[0].Topic)
	assert.Equal(t, "kmt-audit", msgs[1].Topic)

	msgs[0].Topic = "modified"
	assert.Equal(t, "kmt-exports", pub.Messages()[0].Topic)
}

func TestPublisherRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "", nil)
	require.Error(t, err)
	assert.Empty(t, New().Messages())
}
