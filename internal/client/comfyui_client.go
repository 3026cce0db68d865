package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/model"
	"github.com/audioforge/api/internal/workflow"
)

// WorkflowRunner defines the interface for graph-based generation backends
type WorkflowRunner interface {
	CheckHealth(ctx context.Context) bool
	QueuePrompt(ctx context.Context, graph workflow.Graph, clientID string) (string, error)
	WaitForCompletion(ctx context.Context, promptID string, maxWait, pollInterval time.Duration) bool
	OutputFiles(ctx context.Context, promptID string) ([]model.OutputDescriptor, error)
	DownloadFile(ctx context.Context, filename, subfolder, fileType string) ([]byte, error)
}

// ComfyUIClient implements WorkflowRunner against a ComfyUI server.
// Each client owns one connection pool for its lifetime.
type ComfyUIClient struct {
	httpClient *http.Client
	baseURL    string
}

// promptResponse is the body of POST /prompt
type promptResponse struct {
	PromptID string `json:"prompt_id"`
}

// historyEntry is one completed record under GET /history/{id}
type historyEntry struct {
	Outputs map[string]nodeOutput `json:"outputs"`
}

// nodeOutput holds the typed file lists a node produced. Kinds beyond
// images and audio are ignored, not errors.
type nodeOutput struct {
	Images []fileRef `json:"images"`
	Audio  []fileRef `json:"audio"`
}

type fileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// QueueState is the body of GET /queue
type QueueState struct {
	Running [][]interface{} `json:"queue_running"`
	Pending [][]interface{} `json:"queue_pending"`
}

// NewComfyUIClient creates a new ComfyUI client
func NewComfyUIClient(cfg *config.ComfyUIConfig) *ComfyUIClient {
	return &ComfyUIClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.BaseURL,
	}
}

// CheckHealth probes GET /system_stats. Any transport error or non-2xx
// status is reported as unhealthy, never as an error. Safe to call
// repeatedly; no side effects.
func (c *ComfyUIClient) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		log.Printf("[ComfyUI] health check failed: %v", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[ComfyUI] health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// QueuePrompt submits a workflow graph and returns the backend-issued
// prompt ID. A response without a prompt ID is a submission failure.
func (c *ComfyUIClient) QueuePrompt(ctx context.Context, graph workflow.Graph, clientID string) (string, error) {
	if clientID == "" {
		clientID = uuid.New().String()
	}

	payload := map[string]interface{}{
		"prompt":    graph,
		"client_id": clientID,
	}

	var result promptResponse
	if err := c.postJSON(ctx, "/prompt", payload, &result); err != nil {
		return "", backendErr(KindSubmission, "queue workflow", err)
	}

	if result.PromptID == "" {
		return "", backendErr(KindSubmission, "queue workflow", fmt.Errorf("no prompt_id in response"))
	}

	log.Printf("[ComfyUI] queued prompt %s (client %s)", result.PromptID, clientID)
	return result.PromptID, nil
}

// GetQueue returns the backend's running/pending queue state.
func (c *ComfyUIClient) GetQueue(ctx context.Context) (*QueueState, error) {
	var state QueueState
	if err := c.getJSON(ctx, "/queue", &state); err != nil {
		return nil, backendErr(KindConnectivity, "get queue", err)
	}
	return &state, nil
}

// getHistory fetches the history record for a prompt. The backend keys
// the response by prompt ID; an absent key means still executing.
func (c *ComfyUIClient) getHistory(ctx context.Context, promptID string) (map[string]historyEntry, error) {
	var history map[string]historyEntry
	if err := c.getJSON(ctx, "/history/"+url.PathEscape(promptID), &history); err != nil {
		return nil, err
	}
	return history, nil
}

// WaitForCompletion polls the history endpoint at a fixed interval
// until the prompt's record carries an outputs section, or maxWait
// elapses. Transient poll errors are logged and treated as "not yet
// complete". The deadline is checked at each iteration boundary, so a
// success record that lands only after the deadline has elapsed is
// reported as a timeout.
func (c *ComfyUIClient) WaitForCompletion(ctx context.Context, promptID string, maxWait, pollInterval time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		history, err := c.getHistory(ctx, promptID)
		if err != nil {
			log.Printf("[ComfyUI] poll #%d (prompt=%s) error: %v", attempt, promptID, err)
		} else if entry, ok := history[promptID]; ok && len(entry.Outputs) > 0 {
			log.Printf("[ComfyUI] prompt %s completed after %d polls", promptID, attempt)
			return true
		}

		select {
		case <-ctx.Done():
			log.Printf("[ComfyUI] poll (prompt=%s) context cancelled", promptID)
			return false
		case <-time.After(pollInterval):
		}
	}

	log.Printf("[ComfyUI] prompt %s did not complete within %v", promptID, maxWait)
	return false
}

// OutputFiles flattens a completed prompt's history record into typed
// output descriptors. It returns a submission-kind error if the record
// is missing, so callers never resolve outputs for an unfinished job.
func (c *ComfyUIClient) OutputFiles(ctx context.Context, promptID string) ([]model.OutputDescriptor, error) {
	history, err := c.getHistory(ctx, promptID)
	if err != nil {
		return nil, backendErr(KindConnectivity, "get history", err)
	}

	entry, ok := history[promptID]
	if !ok {
		return nil, backendErr(KindSubmission, "resolve outputs", fmt.Errorf("no history record for prompt %s", promptID))
	}

	var files []model.OutputDescriptor
	for nodeID, out := range entry.Outputs {
		for _, img := range out.Images {
			files = append(files, model.OutputDescriptor{
				Kind:      model.OutputKindImage,
				Filename:  img.Filename,
				Subfolder: img.Subfolder,
				NodeID:    nodeID,
				JobToken:  promptID,
			})
		}
		for _, aud := range out.Audio {
			files = append(files, model.OutputDescriptor{
				Kind:      model.OutputKindAudio,
				Filename:  aud.Filename,
				Subfolder: aud.Subfolder,
				NodeID:    nodeID,
				JobToken:  promptID,
			})
		}
	}

	return files, nil
}

// DownloadFile fetches raw artifact bytes from GET /view.
func (c *ComfyUIClient) DownloadFile(ctx context.Context, filename, subfolder, fileType string) ([]byte, error) {
	if fileType == "" {
		fileType = "output"
	}

	params := url.Values{}
	params.Set("filename", filename)
	params.Set("type", fileType)
	if subfolder != "" {
		params.Set("subfolder", subfolder)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+params.Encode(), nil)
	if err != nil {
		return nil, backendErr(KindDownload, "download "+filename, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindDownload, "download "+filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindDownload, "download "+filename, fmt.Errorf("status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindDownload, "download "+filename, err)
	}

	return data, nil
}

// postJSON sends a POST request with JSON body and parses the response
func (c *ComfyUIClient) postJSON(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, result)
}

// getJSON sends a GET request and parses the JSON response
func (c *ComfyUIClient) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *ComfyUIClient) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("comfyui error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
