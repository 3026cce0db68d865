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

// SpeechService fronts the synchronous LocalAI backend. No job token
// exists for these operations: the backend replies with the result
// bytes, which become a one-element artifact batch.
type SpeechService struct {
	backend client.SpeechBackend
	store   *artifact.Store
	mirror  client.ArtifactMirror
}

func NewSpeechService(backend client.SpeechBackend, store *artifact.Store, mirror client.ArtifactMirror) *SpeechService {
	return &SpeechService{
		backend: backend,
		store:   store,
		mirror:  mirror,
	}
}

// Synthesize converts text to speech and persists the audio
func (s *SpeechService) Synthesize(ctx context.Context, req *model.SpeechRequest) (*model.SpeechResponse, error) {
	if !s.backend.CheckHealth(ctx) {
		return nil, fmt.Errorf("speech backend is not reachable")
	}

	format := req.ResponseFormat
	if format == "" {
		format = "mp3"
	}

	data, err := s.backend.TextToSpeech(ctx, &client.TTSRequest{
		Model:          req.Model,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: format,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, err
	}

	saved, err := s.persist(ctx, "tts", req.Text, format, data)
	if err != nil {
		return nil, err
	}

	return &model.SpeechResponse{Artifact: *saved}, nil
}

// Transcribe converts uploaded speech to text
func (s *SpeechService) Transcribe(ctx context.Context, filename string, audio io.Reader, modelName string) (*model.TranscriptionResponse, error) {
	if !s.backend.CheckHealth(ctx) {
		return nil, fmt.Errorf("speech backend is not reachable")
	}

	return s.backend.Transcribe(ctx, filename, audio, modelName)
}

// GenerateAudio produces audio from a text prompt and persists it
func (s *SpeechService) GenerateAudio(ctx context.Context, req *model.AudioGenerationRequest) (*model.AudioGenerationResponse, error) {
	if !s.backend.CheckHealth(ctx) {
		return nil, fmt.Errorf("speech backend is not reachable")
	}

	data, err := s.backend.GenerateAudio(ctx, &client.AudioGenRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Duration:    req.Duration,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	saved, err := s.persist(ctx, "audio", req.Prompt, "wav", data)
	if err != nil {
		return nil, err
	}

	return &model.AudioGenerationResponse{Artifact: *saved}, nil
}

// Models lists the models hosted on the backend
func (s *SpeechService) Models(ctx context.Context) ([]model.ModelInfo, error) {
	return s.backend.ListModels(ctx)
}

// persist writes the bytes with a derived filename and, when a mirror
// is configured, uploads a copy to object storage.
func (s *SpeechService) persist(ctx context.Context, prefix, content, ext string, data []byte) (*model.SavedArtifact, error) {
	name := artifact.Filename(prefix, content, ext)

	path, err := s.store.Save(name, data)
	if err != nil {
		return nil, err
	}

	saved := &model.SavedArtifact{
		Kind: model.OutputKindAudio,
		Path: path,
		Size: int64(len(data)),
	}

	if s.mirror != nil {
		url, err := s.mirror.Upload(ctx, prefix+"/"+name, bytes.NewReader(data), "audio/"+ext)
		if err != nil {
			log.Printf("[Speech] mirror upload failed for %s: %v", name, err)
		} else {
			saved.RemoteURL = url
		}
	}

	return saved, nil
}
