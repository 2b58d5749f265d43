package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spatial-data-tools/stac-manager/internal/config"
)

func openTestStore(t *testing.T) *BlobStore {
	t.Helper()
	s, err := Open(context.Background(), config.StorageConfig{
		BucketURL:     "file://" + t.TempDir(),
		PublicBaseURL: "https://cdn.example.com/layers/",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeLayer(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cover_2010.tif")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadAndExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	url, err := s.Upload(ctx, "landcover/cover_2010.tif", writeLayer(t, "cog-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/layers/landcover/cover_2010.tif", url)

	ok, err := s.Exists(ctx, "landcover/cover_2010.tif")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "landcover/missing.tif")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadMissingLocalFile(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Upload(context.Background(), "landcover/x.tif", filepath.Join(t.TempDir(), "nope.tif"))
	require.Error(t, err)
}

func TestDeleteByURLAndByKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	url, err := s.Upload(ctx, "landcover/cover_2010.tif", writeLayer(t, "a"))
	require.NoError(t, err)
	_, err = s.Upload(ctx, "landcover/cover_2015.tif", writeLayer(t, "b"))
	require.NoError(t, err)

	// Delete accepts the public URL the ledger records.
	require.NoError(t, s.Delete(ctx, url))
	ok, err := s.Exists(ctx, "landcover/cover_2010.tif")
	require.NoError(t, err)
	assert.False(t, ok)

	// And a bare key.
	require.NoError(t, s.Delete(ctx, "landcover/cover_2015.tif"))
	ok, err = s.Exists(ctx, "landcover/cover_2015.tif")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAbsentBlobIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Delete(context.Background(), "landcover/never-uploaded.tif"))
}

func TestURLKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	key := "landcover/cover_2010.tif"
	assert.Equal(t, key, s.Key(s.URL(key)))
	assert.Equal(t, key, s.Key(key), "plain keys pass through")
	assert.Equal(t, key, s.Key("/"+key), "leading slash is stripped")
}

func TestOpenRequiresBucketURL(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{})
	require.Error(t, err)
}
