// Package artifact persists downloaded backend output to the local
// filesystem with collision-resistant filenames.
package artifact

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/audioforge/api/internal/model"
)

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// Store writes artifacts under one output directory. The directory is
// created on first write; failure to create it is a hard error.
type Store struct {
	dir string
}

// Fetcher retrieves the raw bytes for one output descriptor.
type Fetcher func(ctx context.Context, desc model.OutputDescriptor) ([]byte, error)

// Namer derives the local filename for one descriptor. A nil Namer
// keeps the backend's own filename.
type Namer func(desc model.OutputDescriptor) string

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Filename derives a collision-resistant name: prefix, a slug of the
// originating content, a timestamp, and a short unique suffix so rapid
// repeated calls with identical content never silently overwrite.
func Filename(prefix, content, ext string) string {
	timestamp := time.Now().Format("20060102_150405")
	short := uuid.New().String()[:8]

	slug := slugStrip.ReplaceAllString(content, "")
	if len(slug) > 30 {
		slug = slug[:30]
	}
	slug = strings.Trim(slugCollapse.ReplaceAllString(slug, "_"), "_")

	if slug != "" {
		return fmt.Sprintf("%s_%s_%s_%s.%s", prefix, slug, timestamp, short, ext)
	}
	return fmt.Sprintf("%s_%s_%s.%s", prefix, timestamp, short, ext)
}

// Save writes one artifact all-or-nothing: the bytes land in a temp
// file first and are renamed into place, so a failed write never
// leaves a partial artifact behind.
func (s *Store) Save(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", s.dir, err)
	}

	target := filepath.Join(s.dir, name)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}

	return target, nil
}

// SaveBatch fetches and persists every descriptor. One artifact's
// failure is logged and skipped; the rest of the batch proceeds, so
// the return value is the list of paths that were actually saved.
func (s *Store) SaveBatch(ctx context.Context, descs []model.OutputDescriptor, fetch Fetcher, name Namer) []model.SavedArtifact {
	var saved []model.SavedArtifact

	for _, desc := range descs {
		data, err := fetch(ctx, desc)
		if err != nil {
			log.Printf("[Artifact] fetch failed for %s: %v", desc.Filename, err)
			continue
		}

		localName := desc.Filename
		if name != nil {
			localName = name(desc)
		}

		path, err := s.Save(localName, data)
		if err != nil {
			log.Printf("[Artifact] save failed for %s: %v", desc.Filename, err)
			continue
		}

		saved = append(saved, model.SavedArtifact{
			Kind: desc.Kind,
			Path: path,
			Size: int64(len(data)),
		})
	}

	return saved
}
