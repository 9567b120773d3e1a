package client

import (
	"context"
	"errors"
	"strings"

	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/progress"
)

// ErrNoExternalID is returned for jobs whose submission has not been acknowledged yet
var ErrNoExternalID = errors.New("job has no external id")

// StatusChecker asks the remote side where a job stands
type StatusChecker interface {
	Check(ctx context.Context, job model.Job) (*model.StatusResult, error)
}

// RenderStatusSource is the subset of WorkerClient used for multi-angle renders
type RenderStatusSource interface {
	GetRenderStatus(ctx context.Context, externalID string) (*RenderStatus, error)
}

// GenerationStatusSource is the subset of WorkerClient used for single artifacts
type GenerationStatusSource interface {
	GetGenerationStatus(ctx context.Context, resource, externalID string) (*GenerationStatus, error)
}

// NewCheckers returns the status strategy for every known kind
func NewCheckers(worker *WorkerClient) map[model.Kind]StatusChecker {
	single := &SingleArtifactChecker{source: worker}
	return map[model.Kind]StatusChecker{
		model.KindMultiAngleRender: &MultiAngleChecker{source: worker},
		model.KindLookComposite:    single,
		model.KindCreativeStill:    single,
		model.KindModelPortrait:    single,
	}
}

// MultiAngleChecker follows a render angle by angle.
// A "partial" render counts as completed: whatever angles finished are usable.
type MultiAngleChecker struct {
	source RenderStatusSource
}

func NewMultiAngleChecker(source RenderStatusSource) *MultiAngleChecker {
	return &MultiAngleChecker{source: source}
}

func (c *MultiAngleChecker) Check(ctx context.Context, job model.Job) (*model.StatusResult, error) {
	if job.ExternalJobID == "" {
		return nil, ErrNoExternalID
	}

	rs, err := c.source.GetRenderStatus(ctx, job.ExternalJobID)
	if err != nil {
		return nil, err
	}

	result := &model.StatusResult{Status: model.JobStatusProcessing}
	for _, a := range rs.Angles {
		unit := model.UnitResult{Label: a.Label, URL: a.URL, Status: unitStatus(a.Status)}
		if unit.Status == model.UnitStatusCompleted {
			result.CompletedUnits++
			if a.URL != "" {
				result.ResultURLs = append(result.ResultURLs, a.URL)
			}
		}
		result.UnitStatuses = append(result.UnitStatuses, unit)
	}

	switch strings.ToLower(rs.Status) {
	case "completed", "partial":
		result.Status = model.JobStatusCompleted
	case "failed", "error":
		result.Status = model.JobStatusFailed
		result.Error = rs.Error
		if result.Error == "" {
			result.Error = "render failed"
		}
	default:
		expected := job.ExpectedUnits
		if expected == 0 {
			expected = len(rs.Angles)
		}
		if result.CompletedUnits > 0 && expected > 0 {
			result.Progress = progress.FromUnits(result.CompletedUnits, expected)
		}
	}

	return result, nil
}

// SingleArtifactChecker follows jobs that end in one or a few final URLs
type SingleArtifactChecker struct {
	source GenerationStatusSource
}

func NewSingleArtifactChecker(source GenerationStatusSource) *SingleArtifactChecker {
	return &SingleArtifactChecker{source: source}
}

func (c *SingleArtifactChecker) Check(ctx context.Context, job model.Job) (*model.StatusResult, error) {
	if job.ExternalJobID == "" {
		return nil, ErrNoExternalID
	}

	resource := job.BackingResource
	if resource == "" {
		resource = job.Kind.DefaultResource()
	}

	gs, err := c.source.GetGenerationStatus(ctx, resource, job.ExternalJobID)
	if err != nil {
		return nil, err
	}

	result := &model.StatusResult{Status: model.JobStatusProcessing}
	switch strings.ToLower(gs.Status) {
	case "completed", "success":
		result.Status = model.JobStatusCompleted
		result.ResultURLs = gs.URLs
		if len(result.ResultURLs) == 0 && gs.URL != "" {
			result.ResultURLs = []string{gs.URL}
		}
	case "failed", "error":
		result.Status = model.JobStatusFailed
		result.Error = gs.Error
		if result.Error == "" {
			result.Error = "generation failed"
		}
	}

	return result, nil
}

func unitStatus(s string) model.UnitStatus {
	switch strings.ToLower(s) {
	case "completed", "done", "success":
		return model.UnitStatusCompleted
	case "failed", "error":
		return model.UnitStatusFailed
	case "processing", "running":
		return model.UnitStatusProcessing
	default:
		return model.UnitStatusPending
	}
}
