package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/model"
	"github.com/audioforge/api/internal/service"
	"github.com/audioforge/api/internal/websocket"
)

func newSeparationWorker(t *testing.T, cfg *config.UVR5Config) (*SeparationWorker, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	uvr5 := client.NewUVR5Client(cfg)
	separationService := service.NewSeparationService(rdb, nil, uvr5)
	store := artifact.NewStore(t.TempDir())

	hub := websocket.NewHub()
	go hub.Run()

	return NewSeparationWorker(separationService, uvr5, store, nil, hub, cfg), rdb
}

func seedSeparateJob(t *testing.T, rdb *redis.Client, jobID string) {
	t.Helper()
	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeSeparate,
		Status:    model.JobStatusQueued,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("failed to marshal job: %v", err)
	}
	if err := rdb.Set(context.Background(), "job:"+jobID, data, time.Hour).Err(); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
}

func separateTask(t *testing.T, jobID string, payload *model.SeparateJobPayload) *asynq.Task {
	t.Helper()
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	data, err := json.Marshal(map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payloadBytes),
	})
	if err != nil {
		t.Fatalf("failed to marshal task payload: %v", err)
	}
	return asynq.NewTask(service.TaskTypeSeparate, data)
}

func writeAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mixdown.wav")
	if err := os.WriteFile(path, []byte("wav-bytes"), 0o644); err != nil {
		t.Fatalf("failed to write audio file: %v", err)
	}
	return path
}

func TestSeparationWorker_InlineResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/separate", func(w http.ResponseWriter, r *http.Request) {
		// synchronous server: stems arrive inline, no job ID
		fmt.Fprint(w, `{"status":"completed","stems":{"vocals":"vocal-bytes","instrumental":"inst-bytes"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.UVR5Config{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 5}
	worker, rdb := newSeparationWorker(t, cfg)
	seedSeparateJob(t, rdb, "sep-1")

	task := separateTask(t, "sep-1", &model.SeparateJobPayload{AudioPath: writeAudioFile(t)})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "sep-1")
	if job.Status != model.JobStatusSucceeded {
		t.Fatalf("expected succeeded status, got %q (error: %v)", job.Status, job.Error)
	}

	var result model.SeparateResultResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(result.Artifacts) != 2 {
		t.Fatalf("expected 2 stem artifacts, got %d", len(result.Artifacts))
	}
	for _, art := range result.Artifacts {
		data, err := os.ReadFile(art.Path)
		if err != nil {
			t.Fatalf("failed to read saved stem: %v", err)
		}
		if len(data) == 0 {
			t.Errorf("empty stem file %s", art.Path)
		}
	}
}

func TestSeparationWorker_AsyncPolling(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/separate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"job_id":"uvr-1","status":"processing"}`)
	})
	polls := 0
	mux.HandleFunc("/api/result/uvr-1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 3 {
			fmt.Fprint(w, `{"job_id":"uvr-1","status":"processing"}`)
			return
		}
		fmt.Fprint(w, `{"job_id":"uvr-1","status":"completed","stems":{"vocals":"out/vocals.wav"}}`)
	})
	mux.HandleFunc("/api/download/uvr-1/vocals", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("separated-vocals"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.UVR5Config{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 5}
	worker, rdb := newSeparationWorker(t, cfg)
	seedSeparateJob(t, rdb, "sep-2")

	task := separateTask(t, "sep-2", &model.SeparateJobPayload{AudioPath: writeAudioFile(t)})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "sep-2")
	if job.Status != model.JobStatusSucceeded {
		t.Fatalf("expected succeeded status, got %q (error: %v)", job.Status, job.Error)
	}

	var result model.SeparateResultResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Backend != "uvr-1" {
		t.Errorf("expected backend job uvr-1, got %q", result.Backend)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].Kind != model.OutputKindVocals {
		t.Fatalf("unexpected artifacts: %+v", result.Artifacts)
	}

	data, err := os.ReadFile(result.Artifacts[0].Path)
	if err != nil {
		t.Fatalf("failed to read saved stem: %v", err)
	}
	if string(data) != "separated-vocals" {
		t.Errorf("unexpected stem contents: %q", data)
	}
}

func TestSeparationWorker_WaitExpiryIsTimedOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/separate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"job_id":"uvr-slow","status":"processing"}`)
	})
	mux.HandleFunc("/api/result/", func(w http.ResponseWriter, r *http.Request) {
		// never completes
		fmt.Fprint(w, `{"job_id":"uvr-slow","status":"processing"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.UVR5Config{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 0}
	worker, rdb := newSeparationWorker(t, cfg)
	seedSeparateJob(t, rdb, "sep-3")

	task := separateTask(t, "sep-3", &model.SeparateJobPayload{AudioPath: writeAudioFile(t)})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "sep-3")
	if job.Status != model.JobStatusTimedOut {
		t.Fatalf("expected timed_out status for an expired wait, got %q", job.Status)
	}
}

func TestSeparationWorker_UnrecognizedStemsIsFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/separate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"completed","stems":{"karaoke":"x"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.UVR5Config{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 5}
	worker, rdb := newSeparationWorker(t, cfg)
	seedSeparateJob(t, rdb, "sep-4")

	task := separateTask(t, "sep-4", &model.SeparateJobPayload{AudioPath: writeAudioFile(t)})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "sep-4")
	if job.Status != model.JobStatusFailed {
		t.Fatalf("expected failed status, got %q", job.Status)
	}
}

func TestSeparationWorker_MissingAudioFileIsFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.UVR5Config{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 5}
	worker, rdb := newSeparationWorker(t, cfg)
	seedSeparateJob(t, rdb, "sep-5")

	task := separateTask(t, "sep-5", &model.SeparateJobPayload{AudioPath: "/does/not/exist.wav"})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "sep-5")
	if job.Status != model.JobStatusFailed {
		t.Fatalf("expected failed status, got %q", job.Status)
	}
}
