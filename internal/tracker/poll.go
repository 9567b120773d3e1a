package tracker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/makeasinger/gentrack/internal/client"
	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/progress"
)

// Run polls while at least one job is processing and idles otherwise.
// It returns when ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		if r.ProcessingCount() == 0 {
			ticker.Stop()
			r.logger.Debug("poll loop idle")
			select {
			case <-ctx.Done():
				return nil
			case <-r.wake:
			}
			ticker.Reset(r.opts.PollInterval)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

type outcome struct {
	id    string
	patch model.JobPatch
	skip  bool
}

// Tick sweeps every processing job once. All jobs are judged against the
// same clock reading; checks run concurrently, results apply in one batch.
func (r *Registry) Tick(ctx context.Context) {
	now := r.opts.Now()

	r.mu.Lock()
	var active []model.Job
	for _, j := range r.jobs {
		if j.Status == model.JobStatusProcessing {
			active = append(active, j.Clone())
		}
	}
	r.mu.Unlock()

	if len(active) == 0 {
		return
	}

	outcomes := make([]outcome, len(active))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)

	for i, job := range active {
		i, job := i, job
		outcomes[i].id = job.ID

		if now.Sub(job.StartedAt) > r.opts.HardTimeout {
			outcomes[i].patch = failedPatch(expiredMessage)
			continue
		}

		checker, ok := r.checkers[job.Kind]
		if job.ExternalJobID == "" || !ok {
			outcomes[i].patch = r.estimatePatch(job, now)
			continue
		}

		g.Go(func() error {
			outcomes[i] = r.check(ctx, checker, job, now)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	var updated []model.Job
	for _, o := range outcomes {
		if o.skip {
			continue
		}
		idx := r.indexLocked(o.id)
		// removed or already finished while the checks were in flight
		if idx < 0 || r.jobs[idx].Status != model.JobStatusProcessing {
			continue
		}
		r.applyLocked(&r.jobs[idx], o.patch)
		updated = append(updated, r.jobs[idx].Clone())
	}

	if len(updated) == 0 {
		r.mu.Unlock()
		return
	}
	r.commitLocked(ctx, Change{Updated: updated})
}

func (r *Registry) check(ctx context.Context, checker client.StatusChecker, job model.Job, now time.Time) outcome {
	log := r.logger.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))

	res, err := checker.Check(ctx, job)
	switch {
	case errors.Is(err, client.ErrNoExternalID):
		return outcome{id: job.ID, patch: r.estimatePatch(job, now)}
	case err != nil:
		log.Warn("status check failed, retrying next tick", zap.Error(err))
		return outcome{id: job.ID, skip: true}
	}

	var patch model.JobPatch
	switch res.Status {
	case model.JobStatusCompleted:
		patch.Status = statusPtr(model.JobStatusCompleted)
	case model.JobStatusFailed:
		patch = failedPatch(res.Error)
	default:
		p := res.Progress
		if p == 0 {
			p = progress.Estimate(job.StartedAt, now, r.opts.expectedFor(job.Kind))
		}
		patch.Progress = &p
	}

	if res.UnitStatuses != nil {
		patch.UnitStatuses = res.UnitStatuses
		units := res.CompletedUnits
		patch.CompletedUnits = &units
	}
	if res.ResultURLs != nil {
		patch.ResultURLs = res.ResultURLs
	}

	log.Debug("status checked", zap.String("status", string(res.Status)), zap.Int("progress", res.Progress))
	return outcome{id: job.ID, patch: patch}
}

func (r *Registry) estimatePatch(job model.Job, now time.Time) model.JobPatch {
	p := progress.Estimate(job.StartedAt, now, r.opts.expectedFor(job.Kind))
	return model.JobPatch{Progress: &p}
}

func failedPatch(msg string) model.JobPatch {
	return model.JobPatch{Status: statusPtr(model.JobStatusFailed), Error: &msg}
}

func statusPtr(s model.JobStatus) *model.JobStatus { return &s }
