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

// newGenerateWorker wires a worker against a stub ComfyUI server and a
// miniredis-backed job store. No mirror is configured.
func newGenerateWorker(t *testing.T, cfg *config.ComfyUIConfig) (*GenerateWorker, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	comfy := client.NewComfyUIClient(cfg)
	generateService := service.NewGenerateService(rdb, nil, comfy)
	store := artifact.NewStore(t.TempDir())

	hub := websocket.NewHub()
	go hub.Run()

	return NewGenerateWorker(generateService, comfy, store, nil, hub, cfg), rdb
}

func seedGenerateJob(t *testing.T, rdb *redis.Client, jobID string) {
	t.Helper()
	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeGenerate,
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

func loadJob(t *testing.T, rdb *redis.Client, jobID string) *model.Job {
	t.Helper()
	data, err := rdb.Get(context.Background(), "job:"+jobID).Bytes()
	if err != nil {
		t.Fatalf("failed to load job record: %v", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		t.Fatalf("failed to decode job record: %v", err)
	}
	return &job
}

func generateTask(t *testing.T, jobID string, payload *model.GenerateJobPayload) *asynq.Task {
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
	return asynq.NewTask(service.TaskTypeGenerate, data)
}

func writeWorkflowFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	graph := `{"6":{"class_type":"CLIPTextEncode","inputs":{"text":"placeholder","clip":["4",1]}}}`
	if err := os.WriteFile(path, []byte(graph), 0o644); err != nil {
		t.Fatalf("failed to write workflow file: %v", err)
	}
	return path
}

func TestGenerateWorker_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prompt_id":"prompt-ok"}`)
	})
	mux.HandleFunc("/history/prompt-ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prompt-ok":{"outputs":{"9":{"audio":[{"filename":"song.flac","subfolder":"","type":"output"}]}}}}`)
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("flac-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.ComfyUIConfig{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 5}
	worker, rdb := newGenerateWorker(t, cfg)
	seedGenerateJob(t, rdb, "gen-1")

	task := generateTask(t, "gen-1", &model.GenerateJobPayload{
		WorkflowPath: writeWorkflowFile(t),
		PromptText:   "ambient pads",
	})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "gen-1")
	if job.Status != model.JobStatusSucceeded {
		t.Fatalf("expected succeeded status, got %q (error: %v)", job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}

	var result model.GenerateResultResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.PromptID != "prompt-ok" || len(result.Artifacts) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Artifacts[0].Kind != model.OutputKindAudio {
		t.Errorf("expected audio artifact, got %q", result.Artifacts[0].Kind)
	}

	data, err := os.ReadFile(result.Artifacts[0].Path)
	if err != nil {
		t.Fatalf("failed to read saved artifact: %v", err)
	}
	if string(data) != "flac-bytes" {
		t.Errorf("unexpected artifact contents: %q", data)
	}
}

func TestGenerateWorker_WaitExpiryIsTimedOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prompt_id":"prompt-slow"}`)
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		// never completes
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.ComfyUIConfig{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 0}
	worker, rdb := newGenerateWorker(t, cfg)
	seedGenerateJob(t, rdb, "gen-2")

	task := generateTask(t, "gen-2", &model.GenerateJobPayload{WorkflowPath: writeWorkflowFile(t)})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "gen-2")
	if job.Status != model.JobStatusTimedOut {
		t.Fatalf("expected timed_out status for an expired wait, got %q", job.Status)
	}
	if job.Error == nil {
		t.Error("expected error message on timed-out job")
	}
}

func TestGenerateWorker_SubmissionRejectionIsFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		// response without a prompt_id
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.ComfyUIConfig{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 5}
	worker, rdb := newGenerateWorker(t, cfg)
	seedGenerateJob(t, rdb, "gen-3")

	task := generateTask(t, "gen-3", &model.GenerateJobPayload{WorkflowPath: writeWorkflowFile(t)})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "gen-3")
	if job.Status != model.JobStatusFailed {
		t.Fatalf("expected failed status for a rejected submission, got %q", job.Status)
	}
}

func TestGenerateWorker_UnreachableBackendIsFailed(t *testing.T) {
	cfg := &config.ComfyUIConfig{BaseURL: "http://127.0.0.1:1", Timeout: 1, PollInterval: 0, MaxWait: 5}
	worker, rdb := newGenerateWorker(t, cfg)
	seedGenerateJob(t, rdb, "gen-4")

	task := generateTask(t, "gen-4", &model.GenerateJobPayload{WorkflowPath: "unused.json"})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "gen-4")
	if job.Status != model.JobStatusFailed {
		t.Fatalf("expected failed status, got %q", job.Status)
	}
	if job.Error == nil || *job.Error != "ComfyUI backend is not reachable" {
		t.Errorf("unexpected error message: %v", job.Error)
	}
}

func TestGenerateWorker_MissingWorkflowPathIsFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// neither the payload nor the config names a workflow
	cfg := &config.ComfyUIConfig{BaseURL: srv.URL, Timeout: 5, PollInterval: 0, MaxWait: 5}
	worker, rdb := newGenerateWorker(t, cfg)
	seedGenerateJob(t, rdb, "gen-5")

	task := generateTask(t, "gen-5", &model.GenerateJobPayload{})
	if err := worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	job := loadJob(t, rdb, "gen-5")
	if job.Status != model.JobStatusFailed {
		t.Fatalf("expected failed status, got %q", job.Status)
	}
}
