package model

// SpeechRequest converts text to speech via LocalAI
type SpeechRequest struct {
	Text           string  `json:"text" validate:"required,max=5000"`
	Model          string  `json:"model" validate:"omitempty"`
	Voice          string  `json:"voice" validate:"omitempty"`
	ResponseFormat string  `json:"responseFormat" validate:"omitempty,oneof=mp3 opus aac flac wav pcm"`
	Speed          float64 `json:"speed" validate:"omitempty,min=0.25,max=4"`
}

// SpeechResponse reports the saved speech artifact
type SpeechResponse struct {
	Artifact SavedArtifact `json:"artifact"`
}

// TranscriptionResponse is the result of speech-to-text
type TranscriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// AudioGenerationRequest generates audio from a text prompt
type AudioGenerationRequest struct {
	Prompt      string  `json:"prompt" validate:"required,max=2000"`
	Model       string  `json:"model" validate:"omitempty"`
	Duration    float64 `json:"duration" validate:"omitempty,min=1,max=300"`
	Temperature float64 `json:"temperature" validate:"omitempty,min=0,max=2"`
}

// AudioGenerationResponse reports the saved generated-audio artifact
type AudioGenerationResponse struct {
	Artifact SavedArtifact `json:"artifact"`
}

// ModelInfo describes one backend-hosted model
type ModelInfo struct {
	Name string `json:"name"`
	Size string `json:"size,omitempty"`
}
