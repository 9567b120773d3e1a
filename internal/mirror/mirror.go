// Package mirror copies the artifacts of completed jobs into our own bucket
// so they outlive the worker's retention window.
package mirror

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/client"
	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/tracker"
)

const jobTimeout = 2 * time.Minute

// Mirror uploads result URLs of completed jobs to an ObjectStore.
// Failures are logged and never affect the job.
type Mirror struct {
	store      client.ObjectStore
	httpClient *http.Client
	logger     *zap.Logger

	mu   sync.Mutex
	seen map[string]bool
	wg   sync.WaitGroup
}

func New(store client.ObjectStore, logger *zap.Logger) *Mirror {
	return &Mirror{
		store:      store,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.Named("mirror"),
		seen:       make(map[string]bool),
	}
}

// Changed implements tracker.Listener
func (m *Mirror) Changed(ctx context.Context, c tracker.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range c.Removed {
		delete(m.seen, id)
	}

	for _, job := range c.Updated {
		if job.Status != model.JobStatusCompleted || len(job.ResultURLs) == 0 || m.seen[job.ID] {
			continue
		}
		m.seen[job.ID] = true

		m.wg.Add(1)
		go func(job model.Job) {
			defer m.wg.Done()
			jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
			defer cancel()
			urls := m.Copy(jctx, job)
			m.logger.Info("mirrored artifacts",
				zap.String("job_id", job.ID),
				zap.String("kind", string(job.Kind)),
				zap.Int("total", len(job.ResultURLs)),
				zap.Strings("urls", urls))
		}(job)
	}
}

// Wait blocks until in-flight copies finish
func (m *Mirror) Wait() {
	m.wg.Wait()
}

// Copy uploads every artifact of job and returns the mirrored URLs
func (m *Mirror) Copy(ctx context.Context, job model.Job) []string {
	log := m.logger.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))

	var out []string
	for i, src := range job.ResultURLs {
		key := ObjectKey(job, i, src)
		dst, err := m.copyOne(ctx, key, src)
		if err != nil {
			log.Warn("failed to mirror artifact", zap.String("url", src), zap.Error(err))
			continue
		}
		out = append(out, dst)
	}
	return out
}

func (m *Mirror) copyOne(ctx context.Context, key, src string) (string, error) {
	exists, err := m.store.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return m.store.PublicURL(key), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artifact download failed (status %d)", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return m.store.Upload(ctx, key, resp.Body, contentType)
}

// ObjectKey is generations/{kind}/{subject}/{jobId}/{n}{ext}
func ObjectKey(job model.Job, n int, src string) string {
	subject := job.SubjectID
	if subject == "" {
		subject = "unassigned"
	}
	return fmt.Sprintf("generations/%s/%s/%s/%d%s", job.Kind, subject, job.ID, n, extension(src))
}

func extension(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if ext == "" || mime.TypeByExtension(ext) == "" {
		return ""
	}
	return ext
}
