package model

import "time"

// GenerateStartRequest starts a ComfyUI workflow job
type GenerateStartRequest struct {
	WorkflowPath string                            `json:"workflowPath" validate:"omitempty"`
	PromptText   string                            `json:"promptText" validate:"omitempty,max=2000"`
	Overrides    map[string]map[string]interface{} `json:"overrides" validate:"omitempty"`
	MaxWait      int                               `json:"maxWait" validate:"omitempty,min=1,max=3600"`
}

// GenerateStartResponse is returned when a workflow job is accepted
type GenerateStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// GenerateStatusResponse reports workflow job progress
type GenerateStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// GenerateResultResponse is the result of a completed workflow job
type GenerateResultResponse struct {
	JobID      string          `json:"jobId"`
	PromptID   string          `json:"promptId"`
	Artifacts  []SavedArtifact `json:"artifacts"`
	FailedURLs []string        `json:"failedFiles,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// QueueStatusResponse reports backend queue depth
type QueueStatusResponse struct {
	Running int `json:"running"`
	Pending int `json:"pending"`
}
