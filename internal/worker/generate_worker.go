package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/model"
	"github.com/audioforge/api/internal/service"
	"github.com/audioforge/api/internal/websocket"
	"github.com/audioforge/api/internal/workflow"
)

// GenerateWorker executes ComfyUI workflow jobs: health gate, template
// load and injection, submission, completion monitoring, output
// resolution and artifact persistence.
type GenerateWorker struct {
	generateService *service.GenerateService
	comfy           *client.ComfyUIClient
	store           *artifact.Store
	mirror          client.ArtifactMirror
	hub             *websocket.Hub
	cfg             *config.ComfyUIConfig
}

// NewGenerateWorker creates a new generate worker
func NewGenerateWorker(
	generateService *service.GenerateService,
	comfy *client.ComfyUIClient,
	store *artifact.Store,
	mirror client.ArtifactMirror,
	hub *websocket.Hub,
	cfg *config.ComfyUIConfig,
) *GenerateWorker {
	return &GenerateWorker{
		generateService: generateService,
		comfy:           comfy,
		store:           store,
		mirror:          mirror,
		hub:             hub,
		cfg:             cfg,
	}
}

// ProcessTask handles workflow task processing
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting generate job: %s", jobID)

	var payload model.GenerateJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal generate payload: %w", err)
	}

	// Step 1: health gate before any other request
	w.updateProgress(ctx, jobID, 5, "Checking backend health...")
	if !w.comfy.CheckHealth(ctx) {
		w.failJob(ctx, jobID, "ComfyUI backend is not reachable")
		return nil
	}

	// Step 2: load the workflow template
	w.updateProgress(ctx, jobID, 10, "Loading workflow...")
	workflowPath := payload.WorkflowPath
	if workflowPath == "" {
		workflowPath = w.cfg.WorkflowPath
	}
	if workflowPath == "" {
		w.failJob(ctx, jobID, "No workflow path configured")
		return nil
	}

	graph, err := workflow.Load(workflowPath)
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		return nil
	}

	// Step 3: inject prompt text and explicit overrides
	if payload.PromptText != "" {
		graph.InjectText(payload.PromptText)
	}
	if len(payload.Overrides) > 0 {
		graph.ApplyOverrides(payload.Overrides)
	}

	// Step 4: submit
	w.updateProgress(ctx, jobID, 20, "Queueing workflow...")
	promptID, err := w.comfy.QueuePrompt(ctx, graph, uuid.New().String())
	if err != nil {
		w.reportFailure(ctx, jobID, fmt.Errorf("workflow submission failed: %w", err))
		return nil
	}

	// Step 5: wait for completion
	maxWait := time.Duration(w.cfg.MaxWait) * time.Second
	if payload.MaxWait > 0 {
		maxWait = time.Duration(payload.MaxWait) * time.Second
	}
	pollInterval := time.Duration(w.cfg.PollInterval) * time.Second

	w.updateProgress(ctx, jobID, 30, "Waiting for workflow completion...")
	if !w.comfy.WaitForCompletion(ctx, promptID, maxWait, pollInterval) {
		w.reportFailure(ctx, jobID, client.WaitTimeout("workflow wait", maxWait))
		return nil
	}

	// Step 6: resolve outputs; only reached for a completed prompt
	w.updateProgress(ctx, jobID, 70, "Resolving outputs...")
	outputs, err := w.comfy.OutputFiles(ctx, promptID)
	if err != nil {
		w.reportFailure(ctx, jobID, fmt.Errorf("output resolution failed: %w", err))
		return nil
	}
	if len(outputs) == 0 {
		w.failJob(ctx, jobID, "Workflow completed but produced no output files")
		return nil
	}

	// Step 7: download and persist; partial failures are skipped
	w.updateProgress(ctx, jobID, 80, "Downloading artifacts...")
	saved := w.store.SaveBatch(ctx, outputs,
		func(ctx context.Context, desc model.OutputDescriptor) ([]byte, error) {
			return w.comfy.DownloadFile(ctx, desc.Filename, desc.Subfolder, "output")
		},
		func(desc model.OutputDescriptor) string {
			ext := path.Ext(desc.Filename)
			if ext != "" {
				ext = ext[1:]
			}
			return artifact.Filename(string(desc.Kind), payload.PromptText, ext)
		},
	)
	if len(saved) == 0 {
		w.failJob(ctx, jobID, "Workflow completed but no artifacts could be downloaded")
		return nil
	}

	if w.mirror != nil {
		w.updateProgress(ctx, jobID, 90, "Mirroring artifacts...")
		saved = w.mirrorArtifacts(ctx, jobID, saved)
	}

	result := &model.GenerateResultResponse{
		JobID:     jobID,
		PromptID:  promptID,
		Artifacts: saved,
		CreatedAt: time.Now(),
	}

	if err := w.generateService.CompleteJob(ctx, jobID, result); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, model.JobTypeGenerate, result)
	log.Printf("Generate job %s completed: %d artifact(s)", jobID, len(saved))
	return nil
}

// mirrorArtifacts uploads saved files to object storage; mirror
// failures keep the local copy authoritative.
func (w *GenerateWorker) mirrorArtifacts(ctx context.Context, jobID string, saved []model.SavedArtifact) []model.SavedArtifact {
	for i, art := range saved {
		key := fmt.Sprintf("generate/%s/%s", jobID, path.Base(art.Path))
		url, err := w.uploadFile(ctx, key, art.Path)
		if err != nil {
			log.Printf("Mirror upload failed for %s: %v", art.Path, err)
			continue
		}
		saved[i].RemoteURL = url
	}
	return saved
}

func (w *GenerateWorker) uploadFile(ctx context.Context, key, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return w.mirror.Upload(ctx, key, bytes.NewReader(data), "application/octet-stream")
}

func (w *GenerateWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.generateService.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.hub.BroadcastProgress(jobID, model.JobTypeGenerate, progress, model.JobStatusRunning, step)
}

// reportFailure routes err to the timed_out or failed terminal state
// based on its error kind.
func (w *GenerateWorker) reportFailure(ctx context.Context, jobID string, err error) {
	if client.IsTimeout(err) {
		w.timeOutJob(ctx, jobID, err.Error())
		return
	}
	w.failJob(ctx, jobID, err.Error())
}

func (w *GenerateWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.generateService.FailJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	w.hub.BroadcastError(jobID, "GENERATE_FAILED", errMsg)
}

func (w *GenerateWorker) timeOutJob(ctx context.Context, jobID, errMsg string) {
	if err := w.generateService.TimeOutJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job as timed out: %v", err)
	}
	w.hub.BroadcastError(jobID, "GENERATE_TIMEOUT", errMsg)
}
