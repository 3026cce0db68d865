package model

import "time"

// SeparateStartRequest starts a UVR5 separation job. The audio file is
// referenced by a server-local path or arrives as a multipart upload.
type SeparateStartRequest struct {
	AudioPath    string `json:"audioPath" validate:"required"`
	ModelName    string `json:"modelName" validate:"omitempty"`
	OutputFormat string `json:"outputFormat" validate:"omitempty,oneof=wav flac mp3"`
	MaxWait      int    `json:"maxWait" validate:"omitempty,min=1,max=3600"`
}

// SeparateStartResponse is returned when a separation job is accepted
type SeparateStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// SeparateStatusResponse reports separation job progress
type SeparateStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SeparateResultResponse is the result of a completed separation job
type SeparateResultResponse struct {
	JobID     string          `json:"jobId"`
	Backend   string          `json:"backendJobId,omitempty"`
	Artifacts []SavedArtifact `json:"artifacts"`
	CreatedAt time.Time       `json:"createdAt"`
}
