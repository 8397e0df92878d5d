package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/cigraph/internal/taskgraph"
	"github.com/vk/cigraph/internal/testutil"
)

func sampleGraph(t *testing.T) *taskgraph.Graph {
	t.Helper()
	now := testutil.FixedClock().Now()
	return &taskgraph.Graph{
		Tasks: []*taskgraph.Descriptor{
			{
				Label:    "lint",
				TaskID:   "task-0",
				Created:  now,
				Deadline: now.Add(time.Hour),
				Payload:  taskgraph.Payload{Image: "python:3.12"},
				Metadata: taskgraph.Metadata{Name: "lint"},
			},
		},
		Skipped: []taskgraph.Skip{{Label: "release", Reason: "gate \"tag-release\" is closed"}},
	}
}

func TestWriterPublisher(t *testing.T) {
	testCases := []struct {
		name   string
		indent bool
	}{
		{name: "compact", indent: false},
		{name: "indented", indent: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewWriter(&buf, tc.indent)

			require.NoError(t, p.Publish(context.Background(), sampleGraph(t)))
			require.NoError(t, p.Close())

			var out map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			tasks := out["tasks"].([]any)
			require.Len(t, tasks, 1)
			assert.Equal(t, "task-0", tasks[0].(map[string]any)["taskId"])
			assert.Equal(t, tc.indent, bytes.Contains(buf.Bytes(), []byte("\n  ")))
		})
	}
}

func TestWriterPublisher_NilGraph(t *testing.T) {
	p := NewWriter(&bytes.Buffer{}, false)
	assert.Error(t, p.Publish(context.Background(), nil))
}

func TestToWire(t *testing.T) {
	out, err := toWire(sampleGraph(t))
	require.NoError(t, err)

	skipped := out["skipped"].([]any)
	require.Len(t, skipped, 1)
	assert.Equal(t, "release", skipped[0].(map[string]any)["label"])
	assert.NotContains(t, out, "reason")
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	assert.NoError(t, p.Publish(context.Background(), sampleGraph(t)))
	assert.NoError(t, p.Close())
}

func TestDialSocketIO_InvalidURL(t *testing.T) {
	testCases := []struct {
		name string
		url  string
	}{
		{name: "unparsable", url: "://bad"},
		{name: "relative", url: "/socket.io"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DialSocketIO(context.Background(), SocketIOConfig{URL: tc.url})
			assert.Error(t, err)
		})
	}
}

func TestDialSocketIO_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DialSocketIO(ctx, SocketIOConfig{URL: "http://127.0.0.1:1", Timeout: time.Second})
	assert.Error(t, err)
}
