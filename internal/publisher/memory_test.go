package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPublishCapturesEvents(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	id, err := m.Publish(context.Background(), "sync-events", map[string]string{"job_id": "j1"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id)

	events := m.Events()
	require.Len(t, events, 1)
	require.Equal(t, "sync-events", events[0].Topic)
	require.JSONEq(t, `{"job_id":"j1"}`, string(events[0].Payload))
}

func TestMemoryPublishRejectsUnmarshalable(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	_, err := m.Publish(context.Background(), "sync-events", func() {})
	require.Error(t, err)
	require.Empty(t, m.Events())
}
