// Package notice records "finished since last visited" badges per kind and
// per subject. Notices outlive the jobs that produced them.
package notice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/storage"
	"github.com/makeasinger/gentrack/internal/tracker"
)

// Notifier turns processing→completed transitions into durable notices
type Notifier struct {
	mu          sync.Mutex
	backend     storage.Backend
	kindsKey    string
	subjectsKey string
	logger      *zap.Logger

	prev     map[string]model.JobStatus
	kinds    []model.Kind
	subjects map[model.Kind][]string
}

// New creates a notifier persisting under namespace
func New(backend storage.Backend, namespace string, logger *zap.Logger) *Notifier {
	return &Notifier{
		backend:     backend,
		kindsKey:    storage.Key(namespace, storage.NoticeKindsKey),
		subjectsKey: storage.Key(namespace, storage.NoticeSubjectsKey),
		logger:      logger.Named("notice"),
		prev:        make(map[string]model.JobStatus),
		subjects:    make(map[model.Kind][]string),
	}
}

// Load reads persisted notices. Unreadable records are treated as empty.
func (n *Notifier) Load(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var kinds []model.Kind
	if err := n.read(ctx, n.kindsKey, &kinds); err != nil {
		return err
	}
	subjects := make(map[model.Kind][]string)
	if err := n.read(ctx, n.subjectsKey, &subjects); err != nil {
		return err
	}
	if subjects == nil {
		subjects = make(map[model.Kind][]string)
	}

	n.kinds = kinds
	n.subjects = subjects
	return nil
}

// Changed implements tracker.Listener
func (n *Notifier) Changed(ctx context.Context, c tracker.Change) {
	n.Observe(ctx, c.Jobs)
}

// Observe compares jobs with the previous snapshot and records a notice for
// every job that moved from processing to completed.
func (n *Notifier) Observe(ctx context.Context, jobs []model.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var kindsDirty, subjectsDirty bool
	next := make(map[string]model.JobStatus, len(jobs))

	for _, j := range jobs {
		next[j.ID] = j.Status
		if prev, ok := n.prev[j.ID]; !ok || prev != model.JobStatusProcessing || j.Status != model.JobStatusCompleted {
			continue
		}

		n.logger.Info("generation completed",
			zap.String("job_id", j.ID),
			zap.String("kind", string(j.Kind)),
			zap.String("subject_id", j.SubjectID))

		if !slices.Contains(n.kinds, j.Kind) {
			n.kinds = append(n.kinds, j.Kind)
			kindsDirty = true
		}
		if j.SubjectID != "" && !slices.Contains(n.subjects[j.Kind], j.SubjectID) {
			n.subjects[j.Kind] = append(n.subjects[j.Kind], j.SubjectID)
			subjectsDirty = true
		}
	}
	n.prev = next

	if kindsDirty {
		n.write(ctx, n.kindsKey, n.kinds)
	}
	if subjectsDirty {
		n.write(ctx, n.subjectsKey, n.subjects)
	}
}

// Kinds returns the kinds with an unacknowledged completion
func (n *Notifier) Kinds() []model.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.kinds)
}

// Subjects returns the completed subject ids per kind
func (n *Notifier) Subjects() map[model.Kind][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[model.Kind][]string, len(n.subjects))
	for k, ids := range n.subjects {
		out[k] = slices.Clone(ids)
	}
	return out
}

// HasSubject reports whether subjectID has an unacknowledged completion under kind
func (n *Notifier) HasSubject(kind model.Kind, subjectID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Contains(n.subjects[kind], subjectID)
}

// AcknowledgeKind clears the kind-level notice
func (n *Notifier) AcknowledgeKind(ctx context.Context, kind model.Kind) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx := slices.Index(n.kinds, kind)
	if idx < 0 {
		return nil
	}
	n.kinds = slices.Delete(n.kinds, idx, idx+1)
	return n.write(ctx, n.kindsKey, n.kinds)
}

// AcknowledgeSubject clears one subject's notice under kind
func (n *Notifier) AcknowledgeSubject(ctx context.Context, kind model.Kind, subjectID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := n.subjects[kind]
	idx := slices.Index(ids, subjectID)
	if idx < 0 {
		return nil
	}
	ids = slices.Delete(ids, idx, idx+1)
	if len(ids) == 0 {
		delete(n.subjects, kind)
	} else {
		n.subjects[kind] = ids
	}
	return n.write(ctx, n.subjectsKey, n.subjects)
}

func (n *Notifier) read(ctx context.Context, key string, dst interface{}) error {
	raw, err := n.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		n.logger.Warn("discarding unreadable notices", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (n *Notifier) write(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := n.backend.Set(ctx, key, raw); err != nil {
		n.logger.Warn("failed to persist notices", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
