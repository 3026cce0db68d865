package model

import "time"

// Job represents a background job in the system
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"` // "generate" or "separate"
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"` // JSON, persisted with the record
	Result      []byte     `json:"result,omitempty"`  // JSON, persisted with the record
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// Job types
const (
	JobTypeGenerate = "generate"
	JobTypeSeparate = "separate"
)

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further status transition can occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut, JobStatusCanceled:
		return true
	}
	return false
}

// GenerateJobPayload contains the data for a ComfyUI workflow job
type GenerateJobPayload struct {
	WorkflowPath string                            `json:"workflowPath,omitempty"`
	PromptText   string                            `json:"promptText,omitempty"`
	Overrides    map[string]map[string]interface{} `json:"overrides,omitempty"`
	MaxWait      int                               `json:"maxWait,omitempty"` // seconds
}

// SeparateJobPayload contains the data for a UVR5 separation job
type SeparateJobPayload struct {
	AudioPath    string `json:"audioPath"`
	ModelName    string `json:"modelName,omitempty"`
	OutputFormat string `json:"outputFormat,omitempty"`
	MaxWait      int    `json:"maxWait,omitempty"` // seconds
}
