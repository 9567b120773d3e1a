package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/model"
)

// JobStore is the durable record of in-flight jobs. The whole collection is
// written on every save so a restart can resume from any point.
type JobStore struct {
	backend Backend
	key     string
	logger  *zap.Logger
}

func NewJobStore(backend Backend, namespace string, logger *zap.Logger) *JobStore {
	return &JobStore{
		backend: backend,
		key:     Key(namespace, JobsKey),
		logger:  logger.Named("jobstore"),
	}
}

// Load returns the persisted jobs that are still processing and younger than
// hardTimeout. Everything else is dropped and the filtered set is written back.
func (s *JobStore) Load(ctx context.Context, now time.Time, hardTimeout time.Duration) ([]model.Job, error) {
	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored []model.Job
	if err := json.Unmarshal(data, &stored); err != nil {
		// A corrupt record must not wedge the tracker; start clean.
		s.logger.Warn("discarding unreadable job collection", zap.Error(err))
		return nil, s.Save(ctx, nil)
	}

	kept := make([]model.Job, 0, len(stored))
	for _, job := range stored {
		if job.Status != model.JobStatusProcessing {
			s.logger.Debug("evicting terminal job", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
			continue
		}
		if now.Sub(job.StartedAt) > hardTimeout {
			s.logger.Info("evicting stale job", zap.String("job_id", job.ID), zap.Time("started_at", job.StartedAt))
			continue
		}
		kept = append(kept, job)
	}

	if err := s.Save(ctx, kept); err != nil {
		return kept, err
	}
	return kept, nil
}

// Save replaces the persisted collection with jobs
func (s *JobStore) Save(ctx context.Context, jobs []model.Job) error {
	if jobs == nil {
		jobs = []model.Job{}
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}
	return s.backend.Set(ctx, s.key, data)
}
