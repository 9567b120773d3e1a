package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/notice"
	"github.com/makeasinger/gentrack/internal/tracker"
)

const TaskTypeSubmit = "generation:submit"

// AgentQueue names the submission queue of one agent. A job only exists in
// the registry of the agent that registered it, so that agent alone may
// consume its submissions.
func AgentQueue(base, agentID string) string {
	return base + ":" + agentID
}

// TaskEnqueuer is the part of asynq.Client the service needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GenerationService is the entry point for callers of the tracker
type GenerationService struct {
	registry *tracker.Registry
	notifier *notice.Notifier
	remote   tracker.RemoteSignal
	enqueuer TaskEnqueuer
	queue    string
	maxRetry int
	logger   *zap.Logger
}

// NewGenerationService creates the service. enqueuer may be nil when
// submissions are made by the caller itself.
func NewGenerationService(registry *tracker.Registry, notifier *notice.Notifier, remote tracker.RemoteSignal, enqueuer TaskEnqueuer, queue string, maxRetry int, logger *zap.Logger) *GenerationService {
	return &GenerationService{
		registry: registry,
		notifier: notifier,
		remote:   remote,
		enqueuer: enqueuer,
		queue:    queue,
		maxRetry: maxRetry,
		logger:   logger.Named("service"),
	}
}

// Queue is the asynq queue submissions are enqueued on
func (s *GenerationService) Queue() string {
	return s.queue
}

// Register starts tracking a job and, when a submission is attached, queues
// it for delivery to the worker.
func (s *GenerationService) Register(ctx context.Context, req *model.RegisterRequest) (*model.RegisterResponse, error) {
	job, err := s.registry.Register(ctx, model.RegisterParams{
		Kind:            req.Kind,
		SubjectName:     req.SubjectName,
		SubjectID:       req.SubjectID,
		BackingResource: req.BackingResource,
		ExpectedUnits:   req.ExpectedUnits,
	})
	if err != nil {
		return nil, err
	}

	resp := &model.RegisterResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StartedAt: job.StartedAt,
	}

	switch {
	case req.ExternalJobID != "":
		s.AttachExternalID(ctx, job.ID, req.ExternalJobID)
	case len(req.Submission) > 0 && s.enqueuer != nil:
		if err := s.enqueueSubmit(ctx, job, req.Submission); err != nil {
			s.Fail(ctx, job.ID, "Submission could not be queued")
			return nil, err
		}
		resp.Submitted = true
	}

	return resp, nil
}

func (s *GenerationService) enqueueSubmit(ctx context.Context, job model.Job, submission json.RawMessage) error {
	task, err := NewSubmitTask(&model.SubmitTaskPayload{
		JobID:           job.ID,
		Kind:            job.Kind,
		BackingResource: job.BackingResource,
		Submission:      submission,
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := s.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.MaxRetry(s.maxRetry),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("submission queued", zap.String("job_id", job.ID), zap.String("task_id", info.ID))
	return nil
}

// NewSubmitTask builds the asynq task delivering a submission to the worker
func NewSubmitTask(payload *model.SubmitTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeSubmit, data), nil
}

// Update applies caller-supplied fields
func (s *GenerationService) Update(ctx context.Context, jobID string, req *model.UpdateRequest) (model.Job, error) {
	patch := model.JobPatch{
		ExternalJobID:   req.ExternalJobID,
		BackingResource: req.BackingResource,
		ExpectedUnits:   req.ExpectedUnits,
	}
	if !s.registry.Update(ctx, jobID, patch) {
		return model.Job{}, tracker.ErrJobNotFound
	}
	return s.Get(jobID)
}

// AttachExternalID records the worker's id so the job can be polled
func (s *GenerationService) AttachExternalID(ctx context.Context, jobID, externalID string) bool {
	return s.registry.Update(ctx, jobID, model.JobPatch{ExternalJobID: &externalID})
}

// Fail marks a job failed with msg
func (s *GenerationService) Fail(ctx context.Context, jobID, msg string) bool {
	status := model.JobStatusFailed
	return s.registry.Update(ctx, jobID, model.JobPatch{Status: &status, Error: &msg})
}

// Get returns one job
func (s *GenerationService) Get(jobID string) (model.Job, error) {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return model.Job{}, tracker.ErrJobNotFound
	}
	return job, nil
}

// List returns every tracked job
func (s *GenerationService) List() []model.Job {
	return s.registry.Jobs()
}

// Remove stops tracking a job
func (s *GenerationService) Remove(ctx context.Context, jobID string) error {
	if !s.registry.Remove(ctx, jobID) {
		return tracker.ErrJobNotFound
	}
	return nil
}

// ClearTerminal dismisses every finished job
func (s *GenerationService) ClearTerminal(ctx context.Context) int {
	return s.registry.ClearTerminal(ctx)
}

// Running reports the running and blocked flags for tier
func (s *GenerationService) Running(tier model.Tier) *model.RunningResponse {
	return &model.RunningResponse{
		Running:    s.registry.IsAnythingRunning(tier),
		Blocked:    s.registry.Blocked(tier),
		Processing: s.registry.ProcessingCount(),
		Remote:     s.remote != nil && s.remote.RemoteRunning(),
	}
}

// Notices lists unacknowledged completions
func (s *GenerationService) Notices() *model.NoticesResponse {
	kinds := s.notifier.Kinds()
	if kinds == nil {
		kinds = []model.Kind{}
	}
	return &model.NoticesResponse{
		Kinds:    kinds,
		Subjects: s.notifier.Subjects(),
	}
}

// AcknowledgeKind clears the kind-level notice
func (s *GenerationService) AcknowledgeKind(ctx context.Context, kind model.Kind) error {
	return s.notifier.AcknowledgeKind(ctx, kind)
}

// AcknowledgeSubject clears one subject's notice
func (s *GenerationService) AcknowledgeSubject(ctx context.Context, kind model.Kind, subjectID string) error {
	return s.notifier.AcknowledgeSubject(ctx, kind, subjectID)
}
