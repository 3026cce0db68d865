package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/model"
	"github.com/audioforge/api/internal/service"
	"github.com/audioforge/api/internal/websocket"
)

// SeparationWorker executes UVR5 separation jobs. The backend answers
// submission either with a job ID to poll or with the finished result
// inline; both paths converge on stem download and persistence.
type SeparationWorker struct {
	separationService *service.SeparationService
	uvr5              *client.UVR5Client
	store             *artifact.Store
	mirror            client.ArtifactMirror
	hub               *websocket.Hub
	cfg               *config.UVR5Config
}

// NewSeparationWorker creates a new separation worker
func NewSeparationWorker(
	separationService *service.SeparationService,
	uvr5 *client.UVR5Client,
	store *artifact.Store,
	mirror client.ArtifactMirror,
	hub *websocket.Hub,
	cfg *config.UVR5Config,
) *SeparationWorker {
	return &SeparationWorker{
		separationService: separationService,
		uvr5:              uvr5,
		store:             store,
		mirror:            mirror,
		hub:               hub,
		cfg:               cfg,
	}
}

// ProcessTask handles separation task processing
func (w *SeparationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting separation job: %s", jobID)

	var payload model.SeparateJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal separation payload: %w", err)
	}

	// Step 1: health gate before any other request
	w.updateProgress(ctx, jobID, 5, "Checking backend health...")
	if !w.uvr5.CheckHealth(ctx) {
		w.failJob(ctx, jobID, "UVR5 backend is not reachable")
		return nil
	}

	// Step 2: open the source audio
	audioFile, err := os.Open(payload.AudioPath)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Cannot open audio file %s: %v", payload.AudioPath, err))
		return nil
	}
	defer audioFile.Close()

	// Step 3: submit
	w.updateProgress(ctx, jobID, 15, "Submitting audio for separation...")
	submitted, err := w.uvr5.SeparateAudio(ctx, filepath.Base(payload.AudioPath), audioFile, payload.ModelName, payload.OutputFormat)
	if err != nil {
		w.reportFailure(ctx, jobID, fmt.Errorf("separation submission failed: %w", err))
		return nil
	}

	// Step 4: wait for completion unless the server answered inline
	result := submitted
	if submitted.JobID != "" && !submitted.Completed() {
		maxWait := time.Duration(w.cfg.MaxWait) * time.Second
		if payload.MaxWait > 0 {
			maxWait = time.Duration(payload.MaxWait) * time.Second
		}
		pollInterval := time.Duration(w.cfg.PollInterval) * time.Second

		w.updateProgress(ctx, jobID, 30, "Waiting for separation...")
		polled, ok := w.uvr5.WaitForSeparation(ctx, submitted.JobID, maxWait, pollInterval)
		if !ok {
			w.reportFailure(ctx, jobID, client.WaitTimeout("separation wait", maxWait))
			return nil
		}
		result = polled
	}

	// Step 5: resolve the stem descriptors
	w.updateProgress(ctx, jobID, 70, "Resolving stems...")
	outputs := client.StemOutputs(submitted.JobID, result)
	if len(outputs) == 0 {
		w.failJob(ctx, jobID, "Separation completed but produced no recognized stems")
		return nil
	}

	// Step 6: download and persist; partial failures are skipped
	format := payload.OutputFormat
	if format == "" {
		format = "wav"
	}
	baseName := strings.TrimSuffix(filepath.Base(payload.AudioPath), filepath.Ext(payload.AudioPath))

	w.updateProgress(ctx, jobID, 80, "Downloading stems...")
	saved := w.store.SaveBatch(ctx, outputs,
		func(ctx context.Context, desc model.OutputDescriptor) ([]byte, error) {
			if desc.JobToken == "" {
				// synchronous server: stem data arrived inline
				return client.InlineStemData(result, string(desc.Kind))
			}
			return w.uvr5.DownloadStem(ctx, desc.JobToken, string(desc.Kind))
		},
		func(desc model.OutputDescriptor) string {
			return artifact.Filename(string(desc.Kind), baseName, format)
		},
	)
	if len(saved) == 0 {
		w.failJob(ctx, jobID, "Separation completed but no stems could be downloaded")
		return nil
	}

	if w.mirror != nil {
		w.updateProgress(ctx, jobID, 90, "Mirroring stems...")
		saved = w.mirrorArtifacts(ctx, jobID, saved)
	}

	jobResult := &model.SeparateResultResponse{
		JobID:     jobID,
		Backend:   submitted.JobID,
		Artifacts: saved,
		CreatedAt: time.Now(),
	}

	if err := w.separationService.CompleteJob(ctx, jobID, jobResult); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, model.JobTypeSeparate, jobResult)
	log.Printf("Separation job %s completed: %d stem(s)", jobID, len(saved))
	return nil
}

func (w *SeparationWorker) mirrorArtifacts(ctx context.Context, jobID string, saved []model.SavedArtifact) []model.SavedArtifact {
	for i, art := range saved {
		data, err := os.ReadFile(art.Path)
		if err != nil {
			log.Printf("Mirror read failed for %s: %v", art.Path, err)
			continue
		}
		key := fmt.Sprintf("separate/%s/%s", jobID, path.Base(art.Path))
		url, err := w.mirror.Upload(ctx, key, bytes.NewReader(data), "application/octet-stream")
		if err != nil {
			log.Printf("Mirror upload failed for %s: %v", art.Path, err)
			continue
		}
		saved[i].RemoteURL = url
	}
	return saved
}

func (w *SeparationWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.separationService.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.hub.BroadcastProgress(jobID, model.JobTypeSeparate, progress, model.JobStatusRunning, step)
}

// reportFailure routes err to the timed_out or failed terminal state
// based on its error kind.
func (w *SeparationWorker) reportFailure(ctx context.Context, jobID string, err error) {
	if client.IsTimeout(err) {
		w.timeOutJob(ctx, jobID, err.Error())
		return
	}
	w.failJob(ctx, jobID, err.Error())
}

func (w *SeparationWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.separationService.FailJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	w.hub.BroadcastError(jobID, "SEPARATE_FAILED", errMsg)
}

func (w *SeparationWorker) timeOutJob(ctx context.Context, jobID, errMsg string) {
	if err := w.separationService.TimeOutJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job as timed out: %v", err)
	}
	w.hub.BroadcastError(jobID, "SEPARATE_TIMEOUT", errMsg)
}
