package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/client"
	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/service"
	"github.com/makeasinger/gentrack/internal/tracker"
)

// Submitter is the part of WorkerClient that starts generations
type Submitter interface {
	SubmitRender(ctx context.Context, submission json.RawMessage) (*client.SubmitResponse, error)
	SubmitGeneration(ctx context.Context, resource string, submission json.RawMessage) (*client.SubmitResponse, error)
}

// SubmitWorker delivers queued submissions to the remote worker and hands
// the returned id to the tracker.
type SubmitWorker struct {
	submitter Submitter
	service   *service.GenerationService
	logger    *zap.Logger
}

// NewSubmitWorker creates a new submit worker
func NewSubmitWorker(submitter Submitter, svc *service.GenerationService, logger *zap.Logger) *SubmitWorker {
	return &SubmitWorker{
		submitter: submitter,
		service:   svc,
		logger:    logger.Named("submit_worker"),
	}
}

// ProcessTask handles submit task processing
func (w *SubmitWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.SubmitTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	log := w.logger.With(zap.String("job_id", payload.JobID), zap.String("kind", string(payload.Kind)))

	job, err := w.service.Get(payload.JobID)
	if errors.Is(err, tracker.ErrJobNotFound) {
		// removed or superseded before we got to it
		log.Info("job no longer tracked, dropping submission")
		return nil
	}
	if job.ExternalJobID != "" || job.Status.Terminal() {
		log.Info("job already submitted", zap.String("external_job_id", job.ExternalJobID))
		return nil
	}

	resp, err := w.submit(ctx, &payload)
	if err == nil && resp.JobID == "" {
		err = errors.New("worker returned no job id")
	}
	if err != nil {
		if w.finalAttempt(ctx) {
			log.Warn("submission failed, giving up", zap.Error(err))
			w.service.Fail(ctx, payload.JobID, fmt.Sprintf("Submission failed: %v", err))
		} else {
			log.Warn("submission failed, will retry", zap.Error(err))
		}
		return err
	}

	if !w.service.AttachExternalID(ctx, payload.JobID, resp.JobID) {
		log.Info("job removed while submitting", zap.String("external_job_id", resp.JobID))
		return nil
	}

	log.Info("submission accepted", zap.String("external_job_id", resp.JobID))
	return nil
}

func (w *SubmitWorker) submit(ctx context.Context, p *model.SubmitTaskPayload) (*client.SubmitResponse, error) {
	if p.Kind == model.KindMultiAngleRender {
		return w.submitter.SubmitRender(ctx, p.Submission)
	}

	resource := p.BackingResource
	if resource == "" {
		resource = p.Kind.DefaultResource()
	}
	return w.submitter.SubmitGeneration(ctx, resource, p.Submission)
}

// finalAttempt is true when asynq will not retry this task again, or when the
// handler runs outside asynq.
func (w *SubmitWorker) finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
