package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// manifestFile sits at the root of the store directory and pins the
// embedding space the records live in.
const manifestFile = "manifest.json"

// Manifest records the configuration the store was created with. Every
// query embedding must come from the same provider/model the records were
// embedded with, so the identity is persisted and checked on open.
type Manifest struct {
	EmbedderModel string    `json:"embedder_model"`
	Dimension     int       `json:"dimension"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewManifest builds a manifest for a store created now.
func NewManifest(embedderModel string, dimension int) Manifest {
	return Manifest{
		EmbedderModel: embedderModel,
		Dimension:     dimension,
		CreatedAt:     time.Now().UTC(),
	}
}

func manifestPath(dir string) string {
	return filepath.Join(dir, manifestFile)
}

func readManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(manifestPath(dir))
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing %s: %w", manifestFile, err)
	}
	if m.EmbedderModel == "" || m.Dimension < 1 {
		return Manifest{}, fmt.Errorf("manifest at %s is incomplete", manifestPath(dir))
	}
	return m, nil
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath(dir), data, 0o600); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
