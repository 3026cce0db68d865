package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/model"
)

type stubVoiceConverter struct {
	audio []byte
}

func (s *stubVoiceConverter) CheckHealth(ctx context.Context) bool { return true }

func (s *stubVoiceConverter) ConvertVoice(ctx context.Context, filename string, audio io.Reader, params *model.VoiceConvertParams) ([]byte, error) {
	return s.audio, nil
}

func (s *stubVoiceConverter) ListModels(ctx context.Context) ([]model.VoiceModelInfo, error) {
	return nil, nil
}

func (s *stubVoiceConverter) ModelInfo(ctx context.Context, name string) (*model.VoiceModelInfo, error) {
	return &model.VoiceModelInfo{Name: name}, nil
}

func TestConvert_MirrorGetsRequestContext(t *testing.T) {
	mirror := &captureMirror{}
	svc := NewVoiceService(&stubVoiceConverter{audio: []byte("converted-bytes")}, artifact.NewStore(t.TempDir()), mirror)

	ctx := context.WithValue(context.Background(), ctxKey("req"), "r-3")
	resp, err := svc.Convert(ctx, "take.wav", strings.NewReader("wav-bytes"), &model.VoiceConvertParams{ModelName: "singer-v2"})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if mirror.ctx == nil {
		t.Fatal("mirror upload never happened")
	}
	if got := mirror.ctx.Value(ctxKey("req")); got != "r-3" {
		t.Errorf("expected the request context to reach the mirror, got value %v", got)
	}
	if !strings.HasPrefix(mirror.key, "voice/") {
		t.Errorf("expected voice/ key prefix, got %q", mirror.key)
	}
	if resp.Artifact.RemoteURL == "" {
		t.Error("expected RemoteURL on the mirrored artifact")
	}
}
