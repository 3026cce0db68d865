package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/model"
)

// VoiceService fronts the synchronous RVC voice-conversion backend
type VoiceService struct {
	backend client.VoiceConverter
	store   *artifact.Store
	mirror  client.ArtifactMirror
}

func NewVoiceService(backend client.VoiceConverter, store *artifact.Store, mirror client.ArtifactMirror) *VoiceService {
	return &VoiceService{
		backend: backend,
		store:   store,
		mirror:  mirror,
	}
}

// Convert runs voice conversion on uploaded audio and persists the
// converted result
func (s *VoiceService) Convert(ctx context.Context, filename string, audio io.Reader, params *model.VoiceConvertParams) (*model.VoiceConvertResponse, error) {
	if !s.backend.CheckHealth(ctx) {
		return nil, fmt.Errorf("voice backend is not reachable")
	}

	data, err := s.backend.ConvertVoice(ctx, filename, audio, params)
	if err != nil {
		return nil, err
	}

	format := params.OutputFormat
	if format == "" {
		format = "wav"
	}

	name := artifact.Filename("converted", params.ModelName, format)
	path, err := s.store.Save(name, data)
	if err != nil {
		return nil, err
	}

	saved := model.SavedArtifact{
		Kind: model.OutputKindAudio,
		Path: path,
		Size: int64(len(data)),
	}

	if s.mirror != nil {
		url, err := s.mirror.Upload(ctx, "voice/"+name, bytes.NewReader(data), "audio/"+format)
		if err != nil {
			log.Printf("[Voice] mirror upload failed for %s: %v", name, err)
		} else {
			saved.RemoteURL = url
		}
	}

	return &model.VoiceConvertResponse{Artifact: saved}, nil
}

// Models lists the voice models hosted on the backend
func (s *VoiceService) Models(ctx context.Context) ([]model.VoiceModelInfo, error) {
	return s.backend.ListModels(ctx)
}

// ModelInfo returns details for one voice model
func (s *VoiceService) ModelInfo(ctx context.Context, name string) (*model.VoiceModelInfo, error) {
	return s.backend.ModelInfo(ctx, name)
}
