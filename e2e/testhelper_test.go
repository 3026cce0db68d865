package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/handler"
	"github.com/audioforge/api/internal/service"
)

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app wired against stub media backends. Only
// the synchronous surface is mounted; the async job pipeline runs over
// miniredis in the service and worker package tests.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	localAISrv := stubLocalAI(t)
	rvcSrv := stubRVC(t)

	localAIClient := client.NewLocalAIClient(&config.LocalAIConfig{BaseURL: localAISrv.URL, Timeout: 5})
	rvcClient := client.NewRVCClient(&config.RVCConfig{BaseURL: rvcSrv.URL, Timeout: 5})

	// Unreachable backends for the probe-aggregation tests
	comfyClient := client.NewComfyUIClient(&config.ComfyUIConfig{BaseURL: "http://127.0.0.1:1", Timeout: 1})
	uvr5Client := client.NewUVR5Client(&config.UVR5Config{BaseURL: "http://127.0.0.1:1", Timeout: 1})

	validate := validator.New()
	store := artifact.NewStore(t.TempDir())

	speechService := service.NewSpeechService(localAIClient, store, nil)
	voiceService := service.NewVoiceService(rvcClient, store, nil)

	speechHandler := handler.NewSpeechHandler(speechService, validate)
	voiceHandler := handler.NewVoiceHandler(voiceService, validate)
	backendsHandler := handler.NewBackendsHandler(map[string]handler.HealthProber{
		"comfyui": comfyClient,
		"localai": localAIClient,
		"rvc":     rvcClient,
		"uvr5":    uvr5Client,
	}, nil)

	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/v1")
	v1.Get("/backends", backendsHandler.Status)

	speech := v1.Group("/speech")
	speech.Post("/", speechHandler.Synthesize)
	speech.Post("/transcriptions", speechHandler.Transcribe)
	speech.Get("/models", speechHandler.Models)
	v1.Post("/audio", speechHandler.GenerateAudio)

	voice := v1.Group("/voice")
	voice.Post("/conversions", voiceHandler.Convert)
	voice.Get("/models", voiceHandler.Models)
	voice.Get("/models/:name", voiceHandler.ModelInfo)

	return &testApp{app: app}
}

// stubLocalAI serves the LocalAI surface the speech service hits.
func stubLocalAI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stub-mp3-bytes"))
	})
	mux.HandleFunc("/v1/audio/generations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stub-wav-bytes"))
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"stub transcript","language":"en"}`))
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"tts-1"},{"id":"whisper-1"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// stubRVC serves the RVC surface the voice service hits.
func stubRVC(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/convert", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stub-converted-audio"))
	})
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"singer-v2","sampleRate":40000}]}`))
	})
	mux.HandleFunc("/api/models/singer-v2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"singer-v2","sampleRate":40000,"version":"v2"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus fails the test if the response status differs.
func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}
