// Package manifest reads, validates and rewrites the collection.json
// manifest describing a collection and its raster layers.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spatial-data-tools/stac-manager/internal/items"
)

// FileName is the manifest filename expected inside every input folder.
const FileName = "collection.json"

// Manifest is the declarative input describing a collection.
type Manifest struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	License     string                `json:"license,omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
	Items       []items.ManifestEntry `json:"items"`

	// raw retains the decoded document for schema validation and for
	// passthrough when rewriting items.
	raw map[string]any
}

// Load reads and decodes <folder>/collection.json. The folder must exist
// and contain the manifest.
func Load(folder string) (*Manifest, error) {
	path := filepath.Join(folder, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			abs, _ := filepath.Abs(path)
			return nil, fmt.Errorf("folder %s does not exist or does not contain %s (looked at %s)",
				folder, FileName, abs)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m.raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Validate checks the manifest against the embedded JSON Schema and the
// legend metadata consistency rules.
func (m *Manifest) Validate() error {
	if err := validateSchema(m.raw); err != nil {
		return err
	}
	return validateLegend(m.Metadata)
}

// ValidateLayers checks that every layer file referenced by the manifest
// exists inside folder.
func (m *Manifest) ValidateLayers(folder string) error {
	for _, entry := range m.Items {
		path := filepath.Join(folder, entry.Assets.InputFile)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("layer file %s referenced by item %s does not exist", path, entry.ID)
		}
	}
	return nil
}

// Meta extracts the collection-level fields consumed by the aggregate
// builder.
func (m *Manifest) Meta() (id, title, description, license string, metadata map[string]any) {
	return m.ID, m.Title, m.Description, m.License, m.Metadata
}

// Encode renders doc as the pretty-printed manifest representation.
func Encode(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}
