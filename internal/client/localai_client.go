package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/model"
)

// SpeechBackend defines the interface for the speech/audio model server
type SpeechBackend interface {
	CheckHealth(ctx context.Context) bool
	TextToSpeech(ctx context.Context, req *TTSRequest) ([]byte, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader, modelName string) (*model.TranscriptionResponse, error)
	GenerateAudio(ctx context.Context, req *AudioGenRequest) ([]byte, error)
	ListModels(ctx context.Context) ([]model.ModelInfo, error)
}

// LocalAIClient implements SpeechBackend for a LocalAI server. This is
// a synchronous backend: requests block until the result bytes arrive,
// there is no job token to poll.
type LocalAIClient struct {
	httpClient *http.Client
	baseURL    string
}

// TTSRequest is the wire request for POST /v1/audio/speech
type TTSRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// AudioGenRequest is the wire request for POST /v1/audio/generations
type AudioGenRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Duration    float64 `json:"duration,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// NewLocalAIClient creates a new LocalAI client
func NewLocalAIClient(cfg *config.LocalAIConfig) *LocalAIClient {
	return &LocalAIClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.BaseURL,
	}
}

// CheckHealth probes GET /readyz. Transport errors and non-2xx are
// reported as unhealthy, never as an error.
func (c *LocalAIClient) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		log.Printf("[LocalAI] health check failed: %v", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[LocalAI] health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// TextToSpeech synthesizes speech and returns the raw audio bytes.
func (c *LocalAIClient) TextToSpeech(ctx context.Context, req *TTSRequest) ([]byte, error) {
	if req.Model == "" {
		req.Model = "tts-1"
	}
	if req.Voice == "" {
		req.Voice = "alloy"
	}

	data, err := c.postForBytes(ctx, "/v1/audio/speech", req)
	if err != nil {
		return nil, backendErr(KindSubmission, "generate speech", err)
	}
	return data, nil
}

// Transcribe uploads audio as multipart form data and returns the
// transcription.
func (c *LocalAIClient) Transcribe(ctx context.Context, filename string, audio io.Reader, modelName string) (*model.TranscriptionResponse, error) {
	if modelName == "" {
		modelName = "whisper-1"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, backendErr(KindSubmission, "transcribe audio", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, backendErr(KindSubmission, "transcribe audio", err)
	}
	if err := writer.WriteField("model", modelName); err != nil {
		return nil, backendErr(KindSubmission, "transcribe audio", err)
	}
	if err := writer.Close(); err != nil {
		return nil, backendErr(KindSubmission, "transcribe audio", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return nil, backendErr(KindSubmission, "transcribe audio", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindConnectivity, "transcribe audio", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindConnectivity, "transcribe audio", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindSubmission, "transcribe audio",
			fmt.Errorf("localai error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var result model.TranscriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, backendErr(KindSubmission, "transcribe audio", err)
	}

	return &result, nil
}

// GenerateAudio generates audio from a text prompt and returns the
// raw bytes.
func (c *LocalAIClient) GenerateAudio(ctx context.Context, req *AudioGenRequest) ([]byte, error) {
	if req.Model == "" {
		req.Model = "musicgen"
	}

	data, err := c.postForBytes(ctx, "/v1/audio/generations", req)
	if err != nil {
		return nil, backendErr(KindSubmission, "generate audio", err)
	}
	return data, nil
}

// ListModels returns the models hosted on the server.
func (c *LocalAIClient) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
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
			fmt.Errorf("localai error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var list modelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, backendErr(KindConnectivity, "list models", err)
	}

	models := make([]model.ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, model.ModelInfo{Name: m.ID})
	}
	return models, nil
}

// postForBytes sends a JSON POST and returns the raw response body.
func (c *LocalAIClient) postForBytes(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[LocalAI] → POST %s", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("localai error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
