package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/audioforge/api/internal/model"
)

const (
	TaskTypeGenerate = "generate:process"
	TaskTypeSeparate = "separate:process"

	jobRetention = 24 * time.Hour
)

// jobStore holds redis-backed job records shared by the generation and
// separation services. Records expire with the task retention window.
type jobStore struct {
	redis *redis.Client
}

func (s *jobStore) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, jobRetention).Err()
}

func (s *jobStore) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// UpdateJobProgress updates job progress (called by workers)
func (s *jobStore) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks a job as succeeded and stores its result
func (s *jobStore) CompleteJob(ctx context.Context, jobID string, result interface{}) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks a job as failed
func (s *jobStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	return s.finishJob(ctx, jobID, model.JobStatusFailed, errMsg)
}

// TimeOutJob marks a job as timed out. Distinct from failure so
// callers can tell "the request was bad" from "the wait ran out".
func (s *jobStore) TimeOutJob(ctx context.Context, jobID string, errMsg string) error {
	return s.finishJob(ctx, jobID, model.JobStatusTimedOut, errMsg)
}

func (s *jobStore) finishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = status
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

func newJobTask(taskType, jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
