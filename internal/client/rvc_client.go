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
	"net/url"
	"strconv"
	"time"

	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/model"
)

// VoiceConverter defines the interface for the voice-conversion backend
type VoiceConverter interface {
	CheckHealth(ctx context.Context) bool
	ConvertVoice(ctx context.Context, filename string, audio io.Reader, params *model.VoiceConvertParams) ([]byte, error)
	ListModels(ctx context.Context) ([]model.VoiceModelInfo, error)
	ModelInfo(ctx context.Context, name string) (*model.VoiceModelInfo, error)
}

// RVCClient implements VoiceConverter for an RVC server. Conversion is
// synchronous: the response body is the converted audio itself.
type RVCClient struct {
	httpClient *http.Client
	baseURL    string
}

type voiceModelList struct {
	Models []model.VoiceModelInfo `json:"models"`
}

// TrainResponse is the backend's acknowledgment of a training job
type TrainResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// NewRVCClient creates a new RVC client
func NewRVCClient(cfg *config.RVCConfig) *RVCClient {
	return &RVCClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.BaseURL,
	}
}

// CheckHealth probes GET /health. Transport errors and non-2xx are
// reported as unhealthy, never as an error.
func (c *RVCClient) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		log.Printf("[RVC] health check failed: %v", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[RVC] health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ConvertVoice uploads audio with conversion parameters and returns
// the converted audio bytes.
func (c *RVCClient) ConvertVoice(ctx context.Context, filename string, audio io.Reader, params *model.VoiceConvertParams) ([]byte, error) {
	fields := map[string]string{
		"model_name":        params.ModelName,
		"pitch_shift":       strconv.Itoa(params.PitchShift),
		"filter_radius":     strconv.Itoa(params.FilterRadius),
		"index_rate":        strconv.FormatFloat(params.IndexRate, 'f', -1, 64),
		"rms_mix_rate":      strconv.FormatFloat(params.RMSMixRate, 'f', -1, 64),
		"protect_voiceless": strconv.FormatFloat(params.ProtectVoiceless, 'f', -1, 64),
		"output_format":     params.OutputFormat,
	}
	if params.OutputFormat == "" {
		fields["output_format"] = "wav"
	}

	body, contentType, err := encodeMultipart("audio_file", filename, audio, fields)
	if err != nil {
		return nil, backendErr(KindSubmission, "convert voice", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/convert", body)
	if err != nil {
		return nil, backendErr(KindSubmission, "convert voice", err)
	}
	req.Header.Set("Content-Type", contentType)

	log.Printf("[RVC] → POST /api/convert (model=%s)", params.ModelName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindConnectivity, "convert voice", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindConnectivity, "convert voice", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindSubmission, "convert voice",
			fmt.Errorf("rvc error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	return respBody, nil
}

// ListModels returns the voice models available on the server.
func (c *RVCClient) ListModels(ctx context.Context) ([]model.VoiceModelInfo, error) {
	var list voiceModelList
	if err := c.getJSON(ctx, "/api/models", &list); err != nil {
		return nil, backendErr(KindConnectivity, "list models", err)
	}
	return list.Models, nil
}

// ModelInfo returns details for one voice model.
func (c *RVCClient) ModelInfo(ctx context.Context, name string) (*model.VoiceModelInfo, error) {
	var info model.VoiceModelInfo
	if err := c.getJSON(ctx, "/api/models/"+url.PathEscape(name), &info); err != nil {
		return nil, backendErr(KindConnectivity, "get model info", err)
	}
	return &info, nil
}

// TrainModel submits training audio and returns the backend's job
// acknowledgment. Training completion is not monitored here.
func (c *RVCClient) TrainModel(ctx context.Context, modelName, filename string, audio io.Reader, epochs int) (*TrainResponse, error) {
	fields := map[string]string{
		"model_name": modelName,
		"epochs":     strconv.Itoa(epochs),
	}

	body, contentType, err := encodeMultipart("training_files", filename, audio, fields)
	if err != nil {
		return nil, backendErr(KindSubmission, "train model", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/train", body)
	if err != nil {
		return nil, backendErr(KindSubmission, "train model", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backendErr(KindConnectivity, "train model", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendErr(KindConnectivity, "train model", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendErr(KindSubmission, "train model",
			fmt.Errorf("rvc error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var result TrainResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, backendErr(KindSubmission, "train model", err)
	}

	return &result, nil
}

func (c *RVCClient) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

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
		return fmt.Errorf("rvc error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// encodeMultipart builds a multipart body with one file part and the
// given form fields, returning the body and its content type.
func encodeMultipart(fileField, filename string, file io.Reader, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy file data: %w", err)
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
