package e2e

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
)

func convertRequest(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if withFile {
		part, err := writer.CreateFormFile("audio_file", "take.wav")
		if err != nil {
			t.Fatalf("failed to build multipart body: %v", err)
		}
		part.Write([]byte("fake-audio"))
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, "/v1/voice/conversions", &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestVoiceConvert(t *testing.T) {
	ta := setupApp(t)

	req := convertRequest(t, map[string]string{
		"model_name":  "singer-v2",
		"pitch_shift": "2",
	}, true)

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	art, ok := body["artifact"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'artifact' in response, got %v", body)
	}
	path, _ := art["path"].(string)
	if !strings.Contains(path, "converted_") || !strings.HasSuffix(path, ".wav") {
		t.Errorf("unexpected artifact path: %q", path)
	}
}

func TestVoiceConvert_NoFile(t *testing.T) {
	ta := setupApp(t)

	req := convertRequest(t, map[string]string{"model_name": "singer-v2"}, false)

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestVoiceConvert_MissingModel(t *testing.T) {
	ta := setupApp(t)

	req := convertRequest(t, nil, true)

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok || errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", body)
	}
}

func TestVoiceModels(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/v1/voice/models", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	models, ok := body["models"].([]interface{})
	if !ok || len(models) != 1 {
		t.Fatalf("expected 1 model, got %v", body["models"])
	}
}

func TestVoiceModelInfo(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/v1/voice/models/singer-v2", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["name"] != "singer-v2" {
		t.Errorf("unexpected model info: %v", body)
	}
}
