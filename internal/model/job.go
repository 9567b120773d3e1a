package model

import "time"

// Job is one tracked generation delegated to the remote worker
type Job struct {
	ID              string       `json:"id"`
	Kind            Kind         `json:"kind"`
	KindLabel       string       `json:"kindLabel"`
	SubjectName     string       `json:"subjectName"`
	SubjectID       string       `json:"subjectId,omitempty"`
	ExternalJobID   string       `json:"externalJobId,omitempty"`
	BackingResource string       `json:"backingResource,omitempty"`
	Progress        int          `json:"progress"`
	Status          JobStatus    `json:"status"`
	Error           string       `json:"error,omitempty"`
	StartedAt       time.Time    `json:"startedAt"`
	CompletedAt     *time.Time   `json:"completedAt,omitempty"`
	ExpectedUnits   int          `json:"expectedUnits,omitempty"`
	CompletedUnits  int          `json:"completedUnits,omitempty"`
	UnitStatuses    []UnitResult `json:"unitStatuses,omitempty"`
	ResultURLs      []string     `json:"resultUrls,omitempty"`
}

// UnitResult is the state of one sub-artifact, e.g. a camera angle
type UnitResult struct {
	Label  string     `json:"label"`
	URL    string     `json:"url,omitempty"`
	Status UnitStatus `json:"status"`
}

// Clone returns a deep copy so callers never share slices with the registry
func (j Job) Clone() Job {
	out := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.UnitStatuses != nil {
		out.UnitStatuses = append([]UnitResult(nil), j.UnitStatuses...)
	}
	if j.ResultURLs != nil {
		out.ResultURLs = append([]string(nil), j.ResultURLs...)
	}
	return out
}

// JobPatch carries the fields Update merges into a job. Nil means "leave as is".
type JobPatch struct {
	ExternalJobID   *string
	BackingResource *string
	Progress        *int
	Status          *JobStatus
	Error           *string
	ExpectedUnits   *int
	CompletedUnits  *int
	UnitStatuses    []UnitResult
	ResultURLs      []string
}

// RegisterParams describes a new job
type RegisterParams struct {
	Kind            Kind
	SubjectName     string
	SubjectID       string
	BackingResource string
	ExpectedUnits   int
}

// StatusResult is what a status check learned about a job from the remote side
type StatusResult struct {
	Status         JobStatus
	Progress       int // 0 when the remote side reported nothing usable
	Error          string
	CompletedUnits int
	UnitStatuses   []UnitResult
	ResultURLs     []string
}
