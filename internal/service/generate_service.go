package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/model"
)

// GenerateService manages ComfyUI workflow jobs
type GenerateService struct {
	jobStore
	asynqClient *asynq.Client
	comfy       *client.ComfyUIClient
}

func NewGenerateService(redisClient *redis.Client, asynqClient *asynq.Client, comfy *client.ComfyUIClient) *GenerateService {
	return &GenerateService{
		jobStore:    jobStore{redis: redisClient},
		asynqClient: asynqClient,
		comfy:       comfy,
	}
}

// StartGenerate queues a new workflow job
func (s *GenerateService) StartGenerate(ctx context.Context, req *model.GenerateStartRequest) (*model.GenerateStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeGenerate,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
	}

	payload := &model.GenerateJobPayload{
		WorkflowPath: req.WorkflowPath,
		PromptText:   req.PromptText,
		Overrides:    req.Overrides,
		MaxWait:      req.MaxWait,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job.Payload = payloadBytes

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newJobTask(TaskTypeGenerate, jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("generate"),
		asynq.MaxRetry(0),
		asynq.Retention(jobRetention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a workflow job
func (s *GenerateService) GetStatus(ctx context.Context, jobID string) (*model.GenerateStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.GenerateStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		RetryCount:  job.RetryCount,
	}, nil
}

// GetResult returns the artifacts of a completed workflow job
func (s *GenerateService) GetResult(ctx context.Context, jobID string) (*model.GenerateResultResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded {
		return nil, fmt.Errorf("job not completed")
	}

	var result model.GenerateResultResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// CancelGenerate stops waiting for a job locally. The backend job
// itself keeps running; there is no remote cancellation.
func (s *GenerateService) CancelGenerate(ctx context.Context, jobID string) (*model.GenerateStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, fmt.Errorf("job already completed")
	}

	job.Status = model.JobStatusCanceled
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}

	return s.GetStatus(ctx, jobID)
}

// QueueStatus reports the backend's running/pending queue counts
func (s *GenerateService) QueueStatus(ctx context.Context) (*model.QueueStatusResponse, error) {
	state, err := s.comfy.GetQueue(ctx)
	if err != nil {
		return nil, err
	}

	return &model.QueueStatusResponse{
		Running: len(state.Running),
		Pending: len(state.Pending),
	}, nil
}
