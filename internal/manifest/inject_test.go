package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseManifest = `{
  "id": "landcover",
  "title": "Land cover",
  "description": "Yearly land cover layers",
  "metadata": {"data_type": "Clasificada"},
  "items": [
    {"id": "stale", "year": "1990", "assets": {"input_file": "gone.tif"}}
  ]
}`

func setupFolder(t *testing.T, rasters ...string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(baseManifest), 0o644))
	for _, name := range rasters {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("tif"), 0o644))
	}
	return dir
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestInjectRewritesItems(t *testing.T) {
	dir := setupFolder(t, "loss_2006-2010.tif", "loss_2012.tif")

	path, err := Inject(dir, InjectOptions{MakeBackup: false}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	doc := readDoc(t, path)
	assert.Equal(t, "landcover", doc["id"], "other fields stay untouched")
	assert.Equal(t, "Land cover", doc["title"])

	itemsField, ok := doc["items"].([]any)
	require.True(t, ok)
	require.Len(t, itemsField, 2)

	first := itemsField[0].(map[string]any)
	assert.Equal(t, "2006-2010", first["id"])
	assert.Equal(t, "2010", first["year"])
	assert.Equal(t, "loss_2006-2010.tif",
		first["assets"].(map[string]any)["input_file"])

	second := itemsField[1].(map[string]any)
	assert.Equal(t, "2012", second["id"])
	assert.Equal(t, "2012", second["year"])
}

func TestInjectWritesTimestampedBackup(t *testing.T) {
	dir := setupFolder(t, "loss_2012.tif")
	fixed := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	_, err := Inject(dir, InjectOptions{
		MakeBackup: true,
		Now:        func() time.Time { return fixed },
	}, nil)
	require.NoError(t, err)

	backupPath := filepath.Join(dir, "collection.backup.20240315-103000.json")
	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.JSONEq(t, baseManifest, string(data), "backup holds the original content")
}

func TestInjectBackupDirOverride(t *testing.T) {
	dir := setupFolder(t, "loss_2012.tif")
	backups := filepath.Join(t.TempDir(), "backups")

	_, err := Inject(dir, InjectOptions{MakeBackup: true, BackupDir: backups}, nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "collection.backup.")
}

func TestInjectOutputPath(t *testing.T) {
	dir := setupFolder(t, "loss_2012.tif")
	out := filepath.Join(t.TempDir(), "nested", "collection.json")

	path, err := Inject(dir, InjectOptions{OutputPath: out, MakeBackup: false}, nil)
	require.NoError(t, err)
	assert.Equal(t, out, path)

	// The input manifest stays as it was.
	original := readDoc(t, filepath.Join(dir, FileName))
	itemsField := original["items"].([]any)
	require.Len(t, itemsField, 1)
	assert.Equal(t, "stale", itemsField[0].(map[string]any)["id"])

	rewritten := readDoc(t, out)
	require.Len(t, rewritten["items"].([]any), 1)
}

func TestInjectDuplicateIDWritesNothing(t *testing.T) {
	dir := setupFolder(t, "a_2012.tif", "b_2012.tif")

	_, err := Inject(dir, InjectOptions{MakeBackup: true}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2012")

	// Target untouched, no backup written.
	doc := readDoc(t, filepath.Join(dir, FileName))
	itemsField := doc["items"].([]any)
	require.Len(t, itemsField, 1)
	assert.Equal(t, "stale", itemsField[0].(map[string]any)["id"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "backup")
	}
}

func TestInjectNoRasterFiles(t *testing.T) {
	dir := setupFolder(t)
	_, err := Inject(dir, InjectOptions{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no raster files")
}

func TestInjectMissingFolder(t *testing.T) {
	_, err := Inject(filepath.Join(t.TempDir(), "nope"), InjectOptions{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestInjectMissingManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_2012.tif"), []byte("tif"), 0o644))

	_, err := Inject(dir, InjectOptions{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), FileName)
}
