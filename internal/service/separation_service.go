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

// SeparationService manages UVR5 source-separation jobs
type SeparationService struct {
	jobStore
	asynqClient *asynq.Client
	uvr5        *client.UVR5Client
}

func NewSeparationService(redisClient *redis.Client, asynqClient *asynq.Client, uvr5 *client.UVR5Client) *SeparationService {
	return &SeparationService{
		jobStore:    jobStore{redis: redisClient},
		asynqClient: asynqClient,
		uvr5:        uvr5,
	}
}

// StartSeparate queues a new separation job
func (s *SeparationService) StartSeparate(ctx context.Context, req *model.SeparateStartRequest) (*model.SeparateStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeSeparate,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
	}

	payload := &model.SeparateJobPayload{
		AudioPath:    req.AudioPath,
		ModelName:    req.ModelName,
		OutputFormat: req.OutputFormat,
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

	task, err := newJobTask(TaskTypeSeparate, jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("separate"),
		asynq.MaxRetry(0),
		asynq.Retention(jobRetention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.SeparateStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a separation job
func (s *SeparationService) GetStatus(ctx context.Context, jobID string) (*model.SeparateStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.SeparateStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetResult returns the artifacts of a completed separation job
func (s *SeparationService) GetResult(ctx context.Context, jobID string) (*model.SeparateResultResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded {
		return nil, fmt.Errorf("job not completed")
	}

	var result model.SeparateResultResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// Models lists the separation models hosted on the backend
func (s *SeparationService) Models(ctx context.Context) ([]model.ModelInfo, error) {
	return s.uvr5.ListModels(ctx)
}
