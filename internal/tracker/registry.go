// Package tracker owns the set of in-flight generation jobs: registration,
// write-through persistence, the poll loop and change fan-out.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/client"
	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/storage"
)

// Registry tracks generation jobs for one agent
type Registry struct {
	mu     sync.Mutex
	jobs   []model.Job
	timers map[string]*time.Timer

	// held while listeners run so changes are delivered in order
	notifyMu  sync.Mutex
	listeners []Listener
	remote    RemoteSignal

	store    *storage.JobStore
	checkers map[model.Kind]client.StatusChecker
	opts     Options
	logger   *zap.Logger
	wake     chan struct{}
}

// New creates a registry. Call Load before Run to resume persisted jobs.
func New(store *storage.JobStore, checkers map[model.Kind]client.StatusChecker, opts Options, logger *zap.Logger) *Registry {
	return &Registry{
		timers:   make(map[string]*time.Timer),
		store:    store,
		checkers: checkers,
		opts:     opts.withDefaults(),
		logger:   logger.Named("tracker"),
		wake:     make(chan struct{}, 1),
	}
}

// AddListener subscribes l to every subsequent change
func (r *Registry) AddListener(l Listener) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.listeners = append(r.listeners, l)
}

// SetRemote wires the cross-agent running signal
func (r *Registry) SetRemote(remote RemoteSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = remote
}

// Load restores persisted jobs, dropping terminal and expired ones
func (r *Registry) Load(ctx context.Context) error {
	jobs, err := r.store.Load(ctx, r.opts.Now(), r.opts.HardTimeout)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	r.mu.Lock()
	r.jobs = jobs
	r.logger.Info("restored jobs", zap.Int("count", len(jobs)))
	r.commitLocked(ctx, Change{Updated: cloneAll(jobs)})
	r.signal()
	return nil
}

// Register starts tracking a new job in processing state.
// Any existing job of the same kind is replaced.
func (r *Registry) Register(ctx context.Context, params model.RegisterParams) (model.Job, error) {
	if !params.Kind.Valid() {
		return model.Job{}, fmt.Errorf("%w: %q", ErrUnknownKind, params.Kind)
	}

	r.mu.Lock()

	if r.processingLocked() >= r.opts.MaxConcurrent {
		r.mu.Unlock()
		r.logger.Info("register rejected at capacity",
			zap.String("kind", string(params.Kind)),
			zap.Int("max", r.opts.MaxConcurrent))
		return model.Job{}, ErrAtCapacity
	}

	var removed []string
	kept := r.jobs[:0]
	for _, j := range r.jobs {
		if j.Kind == params.Kind {
			r.stopTimerLocked(j.ID)
			removed = append(removed, j.ID)
			continue
		}
		kept = append(kept, j)
	}
	r.jobs = kept

	resource := params.BackingResource
	if resource == "" {
		resource = params.Kind.DefaultResource()
	}

	job := model.Job{
		ID:              uuid.New().String(),
		Kind:            params.Kind,
		KindLabel:       params.Kind.Label(),
		SubjectName:     params.SubjectName,
		SubjectID:       params.SubjectID,
		BackingResource: resource,
		Status:          model.JobStatusProcessing,
		StartedAt:       r.opts.Now(),
		ExpectedUnits:   params.ExpectedUnits,
	}
	r.jobs = append(r.jobs, job)

	r.logger.Info("registered job",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("subject", job.SubjectName),
		zap.Strings("replaced", removed))

	r.commitLocked(ctx, Change{Updated: []model.Job{job.Clone()}, Removed: removed})
	r.signal()
	return job.Clone(), nil
}

// Update merges patch into the job. It returns false if the job is gone.
func (r *Registry) Update(ctx context.Context, id string, patch model.JobPatch) bool {
	r.mu.Lock()

	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return false
	}

	r.applyLocked(&r.jobs[idx], patch)
	r.commitLocked(ctx, Change{Updated: []model.Job{r.jobs[idx].Clone()}})
	r.signal()
	return true
}

// Remove stops tracking a job. It returns false if the job is gone.
func (r *Registry) Remove(ctx context.Context, id string) bool {
	r.mu.Lock()

	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return false
	}

	r.stopTimerLocked(id)
	r.jobs = append(r.jobs[:idx], r.jobs[idx+1:]...)
	r.commitLocked(ctx, Change{Removed: []string{id}})
	return true
}

// ClearTerminal removes every completed or failed job and returns how many went
func (r *Registry) ClearTerminal(ctx context.Context) int {
	r.mu.Lock()

	var removed []string
	kept := r.jobs[:0]
	for _, j := range r.jobs {
		if j.Status.Terminal() {
			r.stopTimerLocked(j.ID)
			removed = append(removed, j.ID)
			continue
		}
		kept = append(kept, j)
	}
	r.jobs = kept

	if len(removed) == 0 {
		r.mu.Unlock()
		return 0
	}
	r.commitLocked(ctx, Change{Removed: removed})
	return len(removed)
}

// Jobs returns a copy of every tracked job in registration order
func (r *Registry) Jobs() []model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAll(r.jobs)
}

// Get returns a copy of one job
func (r *Registry) Get(id string) (model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(id); idx >= 0 {
		return r.jobs[idx].Clone(), true
	}
	return model.Job{}, false
}

// ProcessingCount is the number of jobs this agent is still waiting on
func (r *Registry) ProcessingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processingLocked()
}

// IsAnythingRunning reports local work, and for throttled tiers also work
// another agent of the session announced.
func (r *Registry) IsAnythingRunning(tier model.Tier) bool {
	r.mu.Lock()
	local := r.processingLocked()
	remote := r.remote
	r.mu.Unlock()

	if local > 0 {
		return true
	}
	return tier.Throttled() && remote != nil && remote.RemoteRunning()
}

// Blocked reports whether a caller on tier should be refused a new generation
func (r *Registry) Blocked(tier model.Tier) bool {
	if tier.Throttled() {
		return r.IsAnythingRunning(tier)
	}
	return r.ProcessingCount() >= r.opts.MaxConcurrent
}

// applyLocked merges patch into job, keeping status forward-only and
// progress non-decreasing while processing.
func (r *Registry) applyLocked(job *model.Job, patch model.JobPatch) {
	if patch.ExternalJobID != nil {
		job.ExternalJobID = *patch.ExternalJobID
	}
	if patch.BackingResource != nil {
		job.BackingResource = *patch.BackingResource
	}
	if patch.ExpectedUnits != nil {
		job.ExpectedUnits = *patch.ExpectedUnits
	}
	if patch.CompletedUnits != nil {
		job.CompletedUnits = *patch.CompletedUnits
	}
	if patch.UnitStatuses != nil {
		job.UnitStatuses = append([]model.UnitResult(nil), patch.UnitStatuses...)
	}
	if patch.ResultURLs != nil {
		job.ResultURLs = append([]string(nil), patch.ResultURLs...)
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}

	if job.Status != model.JobStatusProcessing {
		return
	}

	if patch.Progress != nil && *patch.Progress > job.Progress {
		job.Progress = min(*patch.Progress, 99)
	}

	if patch.Status == nil || !patch.Status.Terminal() {
		return
	}

	now := r.opts.Now()
	job.Status = *patch.Status
	job.CompletedAt = &now
	if job.Status == model.JobStatusCompleted {
		job.Progress = 100
	}

	r.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("status", string(job.Status)),
		zap.String("error", job.Error))

	r.scheduleDismissLocked(job.ID)
}

func (r *Registry) scheduleDismissLocked(id string) {
	if r.opts.DismissAfter <= 0 {
		return
	}
	r.stopTimerLocked(id)
	r.timers[id] = time.AfterFunc(r.opts.DismissAfter, func() {
		r.Remove(context.Background(), id)
	})
}

func (r *Registry) stopTimerLocked(id string) {
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// commitLocked persists the current set, then releases r.mu and delivers c to
// listeners. The caller must hold r.mu and must not touch it afterwards.
func (r *Registry) commitLocked(ctx context.Context, c Change) {
	if err := r.store.Save(ctx, r.jobs); err != nil {
		r.logger.Warn("failed to persist jobs", zap.Error(err))
	}
	c.Jobs = cloneAll(r.jobs)

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	for _, l := range r.listeners {
		l.Changed(ctx, c)
	}
}

// signal wakes an idle poll loop
func (r *Registry) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) indexLocked(id string) int {
	for i := range r.jobs {
		if r.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) processingLocked() int {
	n := 0
	for _, j := range r.jobs {
		if j.Status == model.JobStatusProcessing {
			n++
		}
	}
	return n
}

func cloneAll(jobs []model.Job) []model.Job {
	out := make([]model.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}
