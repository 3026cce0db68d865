package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/model"
)

type stubSpeechBackend struct {
	audio []byte
}

func (s *stubSpeechBackend) CheckHealth(ctx context.Context) bool { return true }

func (s *stubSpeechBackend) TextToSpeech(ctx context.Context, req *client.TTSRequest) ([]byte, error) {
	return s.audio, nil
}

func (s *stubSpeechBackend) Transcribe(ctx context.Context, filename string, audio io.Reader, modelName string) (*model.TranscriptionResponse, error) {
	return &model.TranscriptionResponse{Text: "stub transcript"}, nil
}

func (s *stubSpeechBackend) GenerateAudio(ctx context.Context, req *client.AudioGenRequest) ([]byte, error) {
	return s.audio, nil
}

func (s *stubSpeechBackend) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return nil, nil
}

// captureMirror records the context and key each upload arrived with.
type captureMirror struct {
	ctx context.Context
	key string
}

func (m *captureMirror) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	m.ctx = ctx
	m.key = key
	return "https://cdn.example.com/" + key, nil
}

func (m *captureMirror) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type ctxKey string

func TestSynthesize_MirrorGetsRequestContext(t *testing.T) {
	mirror := &captureMirror{}
	svc := NewSpeechService(&stubSpeechBackend{audio: []byte("mp3-bytes")}, artifact.NewStore(t.TempDir()), mirror)

	ctx := context.WithValue(context.Background(), ctxKey("req"), "r-1")
	resp, err := svc.Synthesize(ctx, &model.SpeechRequest{Text: "hello world"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if mirror.ctx == nil {
		t.Fatal("mirror upload never happened")
	}
	if got := mirror.ctx.Value(ctxKey("req")); got != "r-1" {
		t.Errorf("expected the request context to reach the mirror, got value %v", got)
	}
	if !strings.HasPrefix(mirror.key, "tts/") {
		t.Errorf("expected tts/ key prefix, got %q", mirror.key)
	}
	if resp.Artifact.RemoteURL == "" {
		t.Error("expected RemoteURL on the mirrored artifact")
	}
}

func TestGenerateAudio_MirrorGetsRequestContext(t *testing.T) {
	mirror := &captureMirror{}
	svc := NewSpeechService(&stubSpeechBackend{audio: []byte("wav-bytes")}, artifact.NewStore(t.TempDir()), mirror)

	ctx := context.WithValue(context.Background(), ctxKey("req"), "r-2")
	if _, err := svc.GenerateAudio(ctx, &model.AudioGenerationRequest{Prompt: "rain on glass"}); err != nil {
		t.Fatalf("GenerateAudio failed: %v", err)
	}

	if mirror.ctx == nil {
		t.Fatal("mirror upload never happened")
	}
	if got := mirror.ctx.Value(ctxKey("req")); got != "r-2" {
		t.Errorf("expected the request context to reach the mirror, got value %v", got)
	}
	if !strings.HasPrefix(mirror.key, "audio/") {
		t.Errorf("expected audio/ key prefix, got %q", mirror.key)
	}
}
