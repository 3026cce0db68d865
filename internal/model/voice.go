package model

// VoiceConvertParams are the tunables for an RVC conversion. The audio
// itself arrives as a multipart upload alongside these form fields.
type VoiceConvertParams struct {
	ModelName        string  `json:"modelName" validate:"required"`
	PitchShift       int     `json:"pitchShift" validate:"omitempty,min=-12,max=12"`
	FilterRadius     int     `json:"filterRadius" validate:"omitempty,min=0,max=7"`
	IndexRate        float64 `json:"indexRate" validate:"omitempty,min=0,max=1"`
	RMSMixRate       float64 `json:"rmsMixRate" validate:"omitempty,min=0,max=1"`
	ProtectVoiceless float64 `json:"protectVoiceless" validate:"omitempty,min=0,max=0.5"`
	OutputFormat     string  `json:"outputFormat" validate:"omitempty,oneof=wav mp3 flac"`
}

// VoiceConvertResponse reports the saved converted-audio artifact
type VoiceConvertResponse struct {
	Artifact SavedArtifact `json:"artifact"`
}

// VoiceModelInfo describes one RVC voice model
type VoiceModelInfo struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Version    string `json:"version,omitempty"`
}
