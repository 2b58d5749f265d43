// Package config loads manager settings from a YAML file with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spatial-data-tools/stac-manager/internal/logging"
)

// Settings is the full configuration for a manager invocation.
type Settings struct {
	Catalog CatalogConfig  `yaml:"catalog"`
	Storage StorageConfig  `yaml:"storage"`
	Paths   PathsConfig    `yaml:"paths"`
	Logging logging.Config `yaml:"logging"`
}

// CatalogConfig points at the STAC API and its authentication endpoint.
type CatalogConfig struct {
	URL      string `yaml:"url"`       // e.g. http://localhost:8082
	AuthPath string `yaml:"auth_path"` // e.g. /auth/token
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StorageConfig selects the object store bucket holding published layers.
type StorageConfig struct {
	// BucketURL is a gocloud.dev bucket URL, e.g.
	// azblob://cog-layers, s3://cog-layers?region=eu-west-1 or
	// file:///var/lib/stac-manager/store.
	BucketURL string `yaml:"bucket_url"`

	// PublicBaseURL is the externally reachable prefix under which
	// uploaded keys resolve, e.g. https://account.blob.core.windows.net/cog-layers.
	PublicBaseURL string `yaml:"public_base_url"`
}

// PathsConfig holds the local working directories.
type PathsConfig struct {
	InputDir  string `yaml:"input_dir"`  // parent of per-collection input folders
	OutputDir string `yaml:"output_dir"` // parent of per-collection conversion output
}

// Load reads settings from path (optional; empty path loads defaults) and
// applies STAC_MANAGER_* environment overrides.
func Load(path string) (Settings, error) {
	s := Settings{
		Catalog: CatalogConfig{
			URL:      "http://localhost:8082",
			AuthPath: "/auth/token",
		},
		Paths: PathsConfig{
			InputDir:  "input",
			OutputDir: "output",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&s)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that the settings are internally consistent.
func (s Settings) Validate() error {
	if s.Catalog.URL == "" {
		return fmt.Errorf("catalog.url is required")
	}
	if !strings.HasPrefix(s.Catalog.URL, "http://") && !strings.HasPrefix(s.Catalog.URL, "https://") {
		return fmt.Errorf("catalog.url must be an http(s) URL, got %q", s.Catalog.URL)
	}
	if s.Storage.BucketURL != "" && s.Storage.PublicBaseURL == "" {
		return fmt.Errorf("storage.public_base_url is required when storage.bucket_url is set")
	}
	return nil
}

// InputFolder returns the input directory for a named collection folder.
func (s Settings) InputFolder(folder string) string {
	return filepath.Join(s.Paths.InputDir, folder)
}

// OutputFolder returns the conversion output directory for a named folder.
func (s Settings) OutputFolder(folder string) string {
	return filepath.Join(s.Paths.OutputDir, folder)
}

func applyEnv(s *Settings) {
	setenv := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setenv(&s.Catalog.URL, "STAC_MANAGER_CATALOG_URL")
	setenv(&s.Catalog.AuthPath, "STAC_MANAGER_AUTH_PATH")
	setenv(&s.Catalog.Username, "STAC_MANAGER_USERNAME")
	setenv(&s.Catalog.Password, "STAC_MANAGER_PASSWORD")
	setenv(&s.Storage.BucketURL, "STAC_MANAGER_BUCKET_URL")
	setenv(&s.Storage.PublicBaseURL, "STAC_MANAGER_PUBLIC_BASE_URL")
	setenv(&s.Paths.InputDir, "STAC_MANAGER_INPUT_DIR")
	setenv(&s.Paths.OutputDir, "STAC_MANAGER_OUTPUT_DIR")
	setenv(&s.Logging.Format, "STAC_MANAGER_LOG_FORMAT")
	setenv(&s.Logging.Level, "STAC_MANAGER_LOG_LEVEL")
}
