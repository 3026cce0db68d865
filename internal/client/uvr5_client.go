package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/model"
)

// StemSeparator defines the interface for the source-separation backend
type StemSeparator interface {
	CheckHealth(ctx context.Context) bool
	SeparateAudio(ctx context.Context, filename string, audio io.Reader, modelName, outputFormat string) (*SeparationResult, error)
	SeparationResultFor(ctx context.Context, jobID string) (*SeparationResult, error)
	WaitForSeparation(ctx context.Context, jobID string, maxWait, pollInterval time.Duration) (*SeparationResult, bool)
	DownloadStem(ctx context.Context, jobID, stemType string) ([]byte, error)
	ListModels(ctx context.Context) ([]model.ModelInfo, error)
}

// UVR5Client implements StemSeparator for a UVR5 server. Some server
// builds answer POST /api/separate with a job ID to poll, others with
// the finished result inline; a non-empty job_id marks the async path.
type UVR5Client struct {
	httpClient *http.Client
	baseURL    string
}

// SeparationResult is the status/result record for a separation job.
// Stems maps stem name to backend-side location; only the keys matter
// for output resolution, the bytes come from DownloadStem.
type SeparationResult struct {
	JobID  string                     `json:"job_id,omitempty"`
	Status string                     `json:"status,omitempty"`
	Stems  map[string]json.RawMessage `json:"stems,omitempty"`
}

// Completed reports whether the record carries a terminal-success
// stems section.
func (r *SeparationResult) Completed() bool {
	return r != nil && len(r.Stems) > 0
}

type uvrModelList struct {
	Models []string `json:"models"`
}

// NewUVR5Client creates a new UVR5 client
func NewUVR5Client(cfg *config.UVR5Config) *UVR5Client {
	return &UVR5Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.BaseURL,
	}
}

// CheckHealth probes GET /health. Transport errors and non-2xx are
// reported as unhealthy, never as an error.
func (c *UVR5Client) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		log.Printf("[UVR5] health check failed: %v", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[UVR5] health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// SeparateAudio uploads audio for stem separation. The returned record
// either carries a job ID to poll or, on synchronous servers, the
// finished stems inline.
func (c *UVR5Client) SeparateAudio(ctx context.Context, filename string, audio io.Reader, modelName, outputFormat string) (*SeparationResult, error) {
	if modelName == "" {
		modelName = "UVR-MDX-NET-Inst_HQ_3"
	}
	if outputFormat == "" {
		outputFormat = "wav"
	}

	fields := map[string]string{
		"model_name":    modelName,
		"output_format": outputFormat,
		"stem_naming":   "standard",
	}

	body, contentType, err := encodeMultipart("audio_file", filename, audio, fields)
	if err != nil {
		return nil, backendErr(KindSubmission, "separate audio", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/separate", body)
	if err != nil {
		return nil, backendErr(KindSubmission, "separate audio", err)
	}
	req.Header.Set("Content-Type", contentType)

	log.Printf("[UVR5] → POST /api/separate (model=%s)", modelName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindConnectivity, "separate audio", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindConnectivity, "separate audio", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindSubmission, "separate audio",
			fmt.Errorf("uvr5 error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var result SeparationResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, backendErr(KindSubmission, "separate audio", err)
	}

	return &result, nil
}

// SeparationResultFor fetches the status record for a separation job.
func (c *UVR5Client) SeparationResultFor(ctx context.Context, jobID string) (*SeparationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/result/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, backendErr(KindConnectivity, "get separation result", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindConnectivity, "get separation result", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindConnectivity, "get separation result", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindConnectivity, "get separation result",
			fmt.Errorf("uvr5 error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var result SeparationResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, backendErr(KindConnectivity, "get separation result", err)
	}

	return &result, nil
}

// WaitForSeparation polls the result endpoint at a fixed interval
// until the record carries a stems section, or maxWait elapses.
// Transient poll errors are logged and treated as "not yet complete".
// The deadline is checked at each iteration boundary; a success record
// landing after it has elapsed counts as a timeout (ok=false).
func (c *UVR5Client) WaitForSeparation(ctx context.Context, jobID string, maxWait, pollInterval time.Duration) (*SeparationResult, bool) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		result, err := c.SeparationResultFor(ctx, jobID)
		if err != nil {
			log.Printf("[UVR5] poll #%d (job=%s) error: %v", attempt, jobID, err)
		} else if result.Completed() {
			log.Printf("[UVR5] job %s completed after %d polls", jobID, attempt)
			return result, true
		}

		select {
		case <-ctx.Done():
			log.Printf("[UVR5] poll (job=%s) context cancelled", jobID)
			return nil, false
		case <-time.After(pollInterval):
		}
	}

	log.Printf("[UVR5] job %s did not complete within %v", jobID, maxWait)
	return nil, false
}

// StemOutputs flattens a completed separation record into typed output
// descriptors. Stem names outside the controlled vocabulary are
// skipped, keeping resolution forward-compatible with servers that
// add stem types.
func StemOutputs(jobID string, result *SeparationResult) []model.OutputDescriptor {
	if !result.Completed() {
		return nil
	}

	var files []model.OutputDescriptor
	for name := range result.Stems {
		if !model.IsStemKind(name) {
			log.Printf("[UVR5] skipping unrecognized stem kind %q", name)
			continue
		}
		files = append(files, model.OutputDescriptor{
			Kind:     model.OutputKind(name),
			Filename: name,
			JobToken: jobID,
		})
	}

	return files
}

// InlineStemData extracts stem bytes delivered inline by synchronous
// servers. JSON strings are decoded; anything else is returned as the
// raw value bytes.
func InlineStemData(result *SeparationResult, stemType string) ([]byte, error) {
	raw, ok := result.Stems[stemType]
	if !ok {
		return nil, backendErr(KindDownload, "inline "+stemType+" stem", fmt.Errorf("stem not present"))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s), nil
	}
	return []byte(raw), nil
}

// DownloadStem fetches the raw bytes of one separated stem.
func (c *UVR5Client) DownloadStem(ctx context.Context, jobID, stemType string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/download/%s/%s", c.baseURL, url.PathEscape(jobID), url.PathEscape(stemType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backendErr(KindDownload, "download "+stemType+" stem", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindDownload, "download "+stemType+" stem", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindDownload, "download "+stemType+" stem", fmt.Errorf("status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindDownload, "download "+stemType+" stem", err)
	}

	return data, nil
}

// ListModels returns the separation models available on the server.
func (c *UVR5Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models", nil)
	if err != nil {
		return nil, backendErr(KindConnectivity, "list models", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindConnectivity, "list models", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindConnectivity, "list models", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindConnectivity, "list models",
			fmt.Errorf("uvr5 error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var list uvrModelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, backendErr(KindConnectivity, "list models", err)
	}

	models := make([]model.ModelInfo, 0, len(list.Models))
	for _, name := range list.Models {
		models = append(models, model.ModelInfo{Name: name})
	}
	return models, nil
}
