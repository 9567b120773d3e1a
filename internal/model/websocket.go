package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypeRemoved  = "removed"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type           string    `json:"type"`
	JobID          string    `json:"jobId"`
	Kind           Kind      `json:"kind"`
	Progress       int       `json:"progress"`
	Status         JobStatus `json:"status"`
	CompletedUnits int       `json:"completedUnits,omitempty"`
	ExpectedUnits  int       `json:"expectedUnits,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type       string   `json:"type"`
	JobID      string   `json:"jobId"`
	Kind       Kind     `json:"kind"`
	SubjectID  string   `json:"subjectId,omitempty"`
	ResultURLs []string `json:"resultUrls"`
}

// WSErrorMessage represents a failed job
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Kind  Kind    `json:"kind"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSRemovedMessage tells subscribers a job is no longer tracked
type WSRemovedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}
