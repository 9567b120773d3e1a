package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/client"
	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/notice"
	"github.com/makeasinger/gentrack/internal/service"
	"github.com/makeasinger/gentrack/internal/storage"
	"github.com/makeasinger/gentrack/internal/tracker"
)

type fakeSubmitter struct {
	renders     int
	generations []string
	jobID       string
	err         error
}

func (f *fakeSubmitter) SubmitRender(ctx context.Context, submission json.RawMessage) (*client.SubmitResponse, error) {
	f.renders++
	if f.err != nil {
		return nil, f.err
	}
	return &client.SubmitResponse{JobID: f.jobID}, nil
}

func (f *fakeSubmitter) SubmitGeneration(ctx context.Context, resource string, submission json.RawMessage) (*client.SubmitResponse, error) {
	f.generations = append(f.generations, resource)
	if f.err != nil {
		return nil, f.err
	}
	return &client.SubmitResponse{JobID: f.jobID}, nil
}

func setup(t *testing.T, sub *fakeSubmitter) (*SubmitWorker, *service.GenerationService) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	reg := tracker.New(storage.NewJobStore(backend, "s", zap.NewNop()), nil,
		tracker.Options{PollInterval: time.Hour}, zap.NewNop())
	svc := service.NewGenerationService(reg, notice.New(backend, "s", zap.NewNop()), nil, nil, "generations", 3, zap.NewNop())
	return NewSubmitWorker(sub, svc, zap.NewNop()), svc
}

func register(t *testing.T, svc *service.GenerationService, kind model.Kind) model.Job {
	t.Helper()
	resp, err := svc.Register(context.Background(), &model.RegisterRequest{Kind: kind, SubjectName: "x"})
	require.NoError(t, err)
	job, err := svc.Get(resp.JobID)
	require.NoError(t, err)
	return job
}

func task(t *testing.T, job model.Job) *asynq.Task {
	t.Helper()
	tk, err := service.NewSubmitTask(&model.SubmitTaskPayload{
		JobID:           job.ID,
		Kind:            job.Kind,
		BackingResource: job.BackingResource,
		Submission:      json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return tk
}

func TestProcessTask_AttachesExternalID(t *testing.T) {
	sub := &fakeSubmitter{jobID: "ext-42"}
	w, svc := setup(t, sub)

	render := register(t, svc, model.KindMultiAngleRender)
	still := register(t, svc, model.KindCreativeStill)

	require.NoError(t, w.ProcessTask(context.Background(), task(t, render)))
	require.NoError(t, w.ProcessTask(context.Background(), task(t, still)))

	assert.Equal(t, 1, sub.renders)
	assert.Equal(t, []string{"creative_stills"}, sub.generations)

	got, _ := svc.Get(render.ID)
	assert.Equal(t, "ext-42", got.ExternalJobID)
	got, _ = svc.Get(still.ID)
	assert.Equal(t, "ext-42", got.ExternalJobID)
}

func TestProcessTask_SkipsAlreadySubmitted(t *testing.T) {
	sub := &fakeSubmitter{jobID: "ext-2"}
	w, svc := setup(t, sub)
	job := register(t, svc, model.KindLookComposite)
	svc.AttachExternalID(context.Background(), job.ID, "ext-1")

	require.NoError(t, w.ProcessTask(context.Background(), task(t, job)))
	assert.Empty(t, sub.generations)
}

func TestProcessTask_JobGone(t *testing.T) {
	sub := &fakeSubmitter{jobID: "ext"}
	w, svc := setup(t, sub)
	job := register(t, svc, model.KindLookComposite)
	require.NoError(t, svc.Remove(context.Background(), job.ID))

	require.NoError(t, w.ProcessTask(context.Background(), task(t, job)))
	assert.Empty(t, sub.generations)
}

func TestProcessTask_FinalFailureFailsJob(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("worker API error (status 503)")}
	w, svc := setup(t, sub)
	job := register(t, svc, model.KindModelPortrait)

	err := w.ProcessTask(context.Background(), task(t, job))
	require.Error(t, err)

	got, _ := svc.Get(job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "status 503")
}

func TestProcessTask_EmptyExternalID(t *testing.T) {
	w, svc := setup(t, &fakeSubmitter{})
	job := register(t, svc, model.KindLookComposite)

	require.Error(t, w.ProcessTask(context.Background(), task(t, job)))
	got, _ := svc.Get(job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestProcessTask_BadPayload(t *testing.T) {
	w, _ := setup(t, &fakeSubmitter{})
	err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeSubmit, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

// broker routes tasks by queue name the way a shared Redis does
type broker struct {
	queues map[string][]*asynq.Task
}

func (b *broker) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	queue := "default"
	for _, opt := range opts {
		if opt.Type() == asynq.QueueOpt {
			queue = opt.Value().(string)
		}
	}
	b.queues[queue] = append(b.queues[queue], task)
	return &asynq.TaskInfo{ID: task.Type(), Queue: queue}, nil
}

// drain runs every task on the agent's own queue through w
func (b *broker) drain(t *testing.T, svc *service.GenerationService, w *SubmitWorker) {
	t.Helper()
	tasks := b.queues[svc.Queue()]
	delete(b.queues, svc.Queue())
	for _, tk := range tasks {
		require.NoError(t, w.ProcessTask(context.Background(), tk))
	}
}

func TestSharedRedis_SubmissionsStayWithOwner(t *testing.T) {
	backend := storage.NewMemoryBackend()
	b := &broker{queues: map[string][]*asynq.Task{}}

	newAgent := func(agentID string, sub *fakeSubmitter) (*service.GenerationService, *SubmitWorker) {
		reg := tracker.New(storage.NewJobStore(backend, "s", zap.NewNop()), nil,
			tracker.Options{PollInterval: time.Hour}, zap.NewNop())
		svc := service.NewGenerationService(reg, notice.New(backend, "s", zap.NewNop()), nil, b,
			service.AgentQueue("generations", agentID), 3, zap.NewNop())
		return svc, NewSubmitWorker(sub, svc, zap.NewNop())
	}

	subA := &fakeSubmitter{jobID: "ext-a"}
	subB := &fakeSubmitter{jobID: "ext-b"}
	svcA, workerA := newAgent("agent-a", subA)
	svcB, workerB := newAgent("agent-b", subB)

	resp, err := svcA.Register(context.Background(), &model.RegisterRequest{
		Kind: model.KindLookComposite, SubjectName: "Look", Submission: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	require.True(t, resp.Submitted)

	// B polls first and must not see A's submission
	b.drain(t, svcB, workerB)
	assert.Empty(t, subB.generations)

	b.drain(t, svcA, workerA)
	assert.Equal(t, []string{"look_composites"}, subA.generations)

	job, err := svcA.Get(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "ext-a", job.ExternalJobID)
	assert.Empty(t, b.queues)
}
