package model

import (
	"encoding/json"
	"time"
)

// RegisterRequest represents the request to start tracking a generation
type RegisterRequest struct {
	Kind            Kind            `json:"kind" validate:"required,oneof=multi_angle_render look_composite creative_still model_portrait"`
	SubjectName     string          `json:"subjectName" validate:"required,max=200"`
	SubjectID       string          `json:"subjectId" validate:"omitempty,max=128"`
	BackingResource string          `json:"backingResource" validate:"omitempty,max=64"`
	ExpectedUnits   int             `json:"expectedUnits" validate:"omitempty,min=1,max=64"`
	ExternalJobID   string          `json:"externalJobId" validate:"omitempty,max=128"`
	Submission      json.RawMessage `json:"submission,omitempty"`
}

// RegisterResponse represents the response when a generation is registered
type RegisterResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Submitted bool      `json:"submitted"`
	StartedAt time.Time `json:"startedAt"`
}

// UpdateRequest represents the caller-supplied fields of a job
type UpdateRequest struct {
	ExternalJobID   *string `json:"externalJobId" validate:"omitempty,min=1,max=128"`
	BackingResource *string `json:"backingResource" validate:"omitempty,min=1,max=64"`
	ExpectedUnits   *int    `json:"expectedUnits" validate:"omitempty,min=1,max=64"`
}

// RunningResponse reports the cross-tab aware running flag
type RunningResponse struct {
	Running    bool `json:"running"`
	Blocked    bool `json:"blocked"`
	Processing int  `json:"processing"`
	Remote     bool `json:"remote"`
}

// NoticesResponse lists unacknowledged completions
type NoticesResponse struct {
	Kinds    []Kind            `json:"kinds"`
	Subjects map[Kind][]string `json:"subjects"`
}

// SubmitTaskPayload is the queued submission of a job to the remote worker
type SubmitTaskPayload struct {
	JobID           string          `json:"jobId"`
	Kind            Kind            `json:"kind"`
	BackingResource string          `json:"backingResource"`
	Submission      json.RawMessage `json:"submission"`
}
