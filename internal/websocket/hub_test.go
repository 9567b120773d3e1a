package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/tracker"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(zap.NewNop())
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestHub_RoutesByTopic(t *testing.T) {
	h := startHub(t)

	all := NewClient(AllJobs, nil)
	one := NewClient("job-1", nil)
	other := NewClient("job-2", nil)
	h.Register(all)
	h.Register(one)
	h.Register(other)

	h.Changed(context.Background(), tracker.Change{Updated: []model.Job{{
		ID: "job-1", Kind: model.KindLookComposite, Status: model.JobStatusProcessing, Progress: 42,
	}}})

	for _, c := range []*Client{all, one} {
		msg := receive(t, c)
		assert.Equal(t, model.WSMessageTypeProgress, msg["type"])
		assert.Equal(t, "job-1", msg["jobId"])
		assert.EqualValues(t, 42, msg["progress"])
	}

	select {
	case <-other.Send:
		t.Fatal("job-2 subscriber got job-1 update")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_TerminalAndRemovedMessages(t *testing.T) {
	h := startHub(t)
	c := NewClient(AllJobs, nil)
	h.Register(c)

	h.Changed(context.Background(), tracker.Change{
		Updated: []model.Job{
			{ID: "a", Status: model.JobStatusCompleted, ResultURLs: []string{"u"}},
			{ID: "b", Status: model.JobStatusFailed, Error: "boom"},
		},
		Removed: []string{"c"},
	})

	assert.Equal(t, model.WSMessageTypeComplete, receive(t, c)["type"])

	failed := receive(t, c)
	assert.Equal(t, model.WSMessageTypeError, failed["type"])
	assert.Equal(t, "boom", failed["error"].(map[string]interface{})["message"])

	removed := receive(t, c)
	assert.Equal(t, model.WSMessageTypeRemoved, removed["type"])
	assert.Equal(t, "c", removed["jobId"])
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zap.NewNop())
	stopped := make(chan struct{})
	go func() { h.Run(ctx); close(stopped) }()

	a := NewClient("x", nil)
	b := NewClient("y", nil)
	h.Register(a)
	h.Register(b)

	h.Unregister(a)
	<-a.Done()

	cancel()
	<-stopped
	<-b.Done()

	// calls after shutdown return immediately
	h.Unregister(b)
	late := NewClient("z", nil)
	h.Register(late)
	<-late.Done()
}
