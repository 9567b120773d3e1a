package notice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/storage"
)

func job(id string, kind model.Kind, subject string, status model.JobStatus) model.Job {
	return model.Job{ID: id, Kind: kind, SubjectID: subject, Status: status}
}

func TestObserve_OnlyProcessingToCompleted(t *testing.T) {
	ctx := context.Background()
	n := New(storage.NewMemoryBackend(), "s", zap.NewNop())

	// First sighting as completed is not a transition
	n.Observe(ctx, []model.Job{job("a", model.KindLookComposite, "p1", model.JobStatusCompleted)})
	assert.Empty(t, n.Kinds())

	n.Observe(ctx, []model.Job{
		job("b", model.KindMultiAngleRender, "p1", model.JobStatusProcessing),
		job("c", model.KindCreativeStill, "p2", model.JobStatusProcessing),
	})
	n.Observe(ctx, []model.Job{
		job("b", model.KindMultiAngleRender, "p1", model.JobStatusCompleted),
		job("c", model.KindCreativeStill, "p2", model.JobStatusFailed),
	})

	assert.Equal(t, []model.Kind{model.KindMultiAngleRender}, n.Kinds())
	assert.Equal(t, map[model.Kind][]string{model.KindMultiAngleRender: {"p1"}}, n.Subjects())

	// Repeated observation of the same completed job adds nothing
	n.Observe(ctx, []model.Job{job("b", model.KindMultiAngleRender, "p1", model.JobStatusCompleted)})
	assert.Len(t, n.Kinds(), 1)
}

func TestObserve_NoSubjectStillMarksKind(t *testing.T) {
	ctx := context.Background()
	n := New(storage.NewMemoryBackend(), "s", zap.NewNop())

	n.Observe(ctx, []model.Job{job("a", model.KindModelPortrait, "", model.JobStatusProcessing)})
	n.Observe(ctx, []model.Job{job("a", model.KindModelPortrait, "", model.JobStatusCompleted)})

	assert.Equal(t, []model.Kind{model.KindModelPortrait}, n.Kinds())
	assert.Empty(t, n.Subjects())
}

func TestNotices_SurviveJobRemovalAndReload(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	n := New(backend, "s", zap.NewNop())

	n.Observe(ctx, []model.Job{job("a", model.KindLookComposite, "p9", model.JobStatusProcessing)})
	n.Observe(ctx, []model.Job{job("a", model.KindLookComposite, "p9", model.JobStatusCompleted)})
	n.Observe(ctx, nil)

	assert.True(t, n.HasSubject(model.KindLookComposite, "p9"))

	reloaded := New(backend, "s", zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []model.Kind{model.KindLookComposite}, reloaded.Kinds())
	assert.True(t, reloaded.HasSubject(model.KindLookComposite, "p9"))
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	n := New(backend, "s", zap.NewNop())

	n.Observe(ctx, []model.Job{
		job("a", model.KindLookComposite, "p1", model.JobStatusProcessing),
		job("b", model.KindCreativeStill, "p2", model.JobStatusProcessing),
	})
	n.Observe(ctx, []model.Job{
		job("a", model.KindLookComposite, "p1", model.JobStatusCompleted),
		job("b", model.KindCreativeStill, "p2", model.JobStatusCompleted),
	})

	require.NoError(t, n.AcknowledgeKind(ctx, model.KindLookComposite))
	assert.Equal(t, []model.Kind{model.KindCreativeStill}, n.Kinds())
	// subject notices are acknowledged separately
	assert.True(t, n.HasSubject(model.KindLookComposite, "p1"))

	require.NoError(t, n.AcknowledgeSubject(ctx, model.KindLookComposite, "p1"))
	require.NoError(t, n.AcknowledgeSubject(ctx, model.KindLookComposite, "p1"))
	assert.False(t, n.HasSubject(model.KindLookComposite, "p1"))

	reloaded := New(backend, "s", zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []model.Kind{model.KindCreativeStill}, reloaded.Kinds())
	assert.Equal(t, map[model.Kind][]string{model.KindCreativeStill: {"p2"}}, reloaded.Subjects())
}

func TestLoad_CorruptRecords(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Set(ctx, storage.Key("s", storage.NoticeKindsKey), []byte("{")))
	require.NoError(t, backend.Set(ctx, storage.Key("s", storage.NoticeSubjectsKey), []byte("null")))

	n := New(backend, "s", zap.NewNop())
	require.NoError(t, n.Load(ctx))
	assert.Empty(t, n.Kinds())

	n.Observe(ctx, []model.Job{job("a", model.KindLookComposite, "p1", model.JobStatusProcessing)})
	n.Observe(ctx, []model.Job{job("a", model.KindLookComposite, "p1", model.JobStatusCompleted)})
	assert.True(t, n.HasSubject(model.KindLookComposite, "p1"))
}
