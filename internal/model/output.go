package model

// OutputKind classifies a single backend-produced file.
type OutputKind string

const (
	OutputKindImage        OutputKind = "image"
	OutputKindAudio        OutputKind = "audio"
	OutputKindVocals       OutputKind = "vocals"
	OutputKindInstrumental OutputKind = "instrumental"
	OutputKindDrums        OutputKind = "drums"
	OutputKindBass         OutputKind = "bass"
	OutputKindOther        OutputKind = "other"
)

// StemKinds is the controlled vocabulary for separation backends.
// Anything outside this set in a separation result is skipped.
var StemKinds = []OutputKind{
	OutputKindVocals, OutputKindInstrumental,
	OutputKindDrums, OutputKindBass, OutputKindOther,
}

// IsStemKind reports whether name is one of the recognized stem kinds.
func IsStemKind(name string) bool {
	for _, k := range StemKinds {
		if string(k) == name {
			return true
		}
	}
	return false
}

// OutputDescriptor describes one retrievable result file of a completed
// job. Descriptors are only ever produced from a terminal-success job
// record, never speculatively.
type OutputDescriptor struct {
	Kind      OutputKind `json:"kind"`
	Filename  string     `json:"filename"`
	Subfolder string     `json:"subfolder,omitempty"`
	NodeID    string     `json:"nodeId,omitempty"`
	JobToken  string     `json:"jobToken,omitempty"`
}

// SavedArtifact records one successfully persisted download.
type SavedArtifact struct {
	Kind      OutputKind `json:"kind"`
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	RemoteURL string     `json:"remoteUrl,omitempty"`
}
