package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/config"
)

func newTestWorker(t *testing.T, handler http.HandlerFunc) *WorkerClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWorkerClient(&config.WorkerConfig{
		BaseURL: srv.URL + "/",
		APIKey:  "key-1",
		Timeout: 5,
	}, zap.NewNop())
}

func TestWorkerClient_GetRenderStatus(t *testing.T) {
	wc := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/renders/ext-1", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id":"ext-1","status":"processing","angles":[{"label":"front","status":"completed","url":"https://cdn/front.png"},{"label":"back","status":"pending"}]}`)
	})

	rs, err := wc.GetRenderStatus(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "processing", rs.Status)
	require.Len(t, rs.Angles, 2)
	assert.Equal(t, "https://cdn/front.png", rs.Angles[0].URL)
}

func TestWorkerClient_GetGenerationStatus(t *testing.T) {
	wc := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generations/look_composites/ext-9", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"ext-9","status":"completed","url":"https://cdn/look.png"}`)
	})

	gs, err := wc.GetGenerationStatus(context.Background(), "look_composites", "ext-9")
	require.NoError(t, err)
	assert.Equal(t, "completed", gs.Status)
	assert.Equal(t, "https://cdn/look.png", gs.URL)
}

func TestWorkerClient_Submit(t *testing.T) {
	wc := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/v1/renders":
			assert.JSONEq(t, `{"product":"p1"}`, string(body))
			_, _ = io.WriteString(w, `{"job_id":"ext-r","status":"queued"}`)
		case "/v1/generations/model_portraits":
			assert.JSONEq(t, `{}`, string(body))
			_, _ = io.WriteString(w, `{"job_id":"ext-g","status":"queued"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	resp, err := wc.SubmitRender(context.Background(), json.RawMessage(`{"product":"p1"}`))
	require.NoError(t, err)
	assert.Equal(t, "ext-r", resp.JobID)

	resp, err = wc.SubmitGeneration(context.Background(), "model_portraits", nil)
	require.NoError(t, err)
	assert.Equal(t, "ext-g", resp.JobID)
}

func TestWorkerClient_ErrorStatus(t *testing.T) {
	wc := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	})

	_, err := wc.GetRenderStatus(context.Background(), "ext-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestWorkerClient_BadJSON(t *testing.T) {
	wc := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	})

	_, err := wc.GetGenerationStatus(context.Background(), "creative_stills", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestWorkerClient_IsConfigured(t *testing.T) {
	assert.False(t, NewWorkerClient(&config.WorkerConfig{}, zap.NewNop()).IsConfigured())
	assert.True(t, NewWorkerClient(&config.WorkerConfig{BaseURL: "http://w"}, zap.NewNop()).IsConfigured())
}
