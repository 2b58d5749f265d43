package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `{
  "id": "landcover",
  "title": "Land cover",
  "description": "Yearly land cover layers",
  "items": [
    {"id": "2010", "year": "2010", "assets": {"input_file": "cover_2010.tif"}},
    {"id": "2015", "year": "2015", "assets": {"input_file": "cover_2015.tif"}}
  ]
}`

func TestParseAndValidate(t *testing.T) {
	m, err := Parse([]byte(validManifest))
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, "landcover", m.ID)
	assert.Equal(t, "Land cover", m.Title)
	require.Len(t, m.Items, 2)
	assert.Equal(t, "cover_2010.tif", m.Items[0].Assets.InputFile)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	m, err := Parse([]byte(`{"id": "x", "items": []}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate(), "title and description are required")
}

func TestValidateRejectsBadYear(t *testing.T) {
	m, err := Parse([]byte(`{
	  "id": "x", "title": "T", "description": "D",
	  "items": [{"id": "a", "year": "15", "assets": {"input_file": "a.tif"}}]
	}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestValidateLegendClassified(t *testing.T) {
	m, err := Parse([]byte(`{
	  "id": "x", "title": "T", "description": "D", "items": [],
	  "metadata": {
	    "data_type": "Clasificada",
	    "properties": {
	      "values": [1, 2],
	      "colors": ["#fff", "#000"],
	      "classes": ["water", "forest"]
	    }
	  }
	}`))
	require.NoError(t, err)
	require.NoError(t, m.Validate())
}

func TestValidateLegendClassifiedLengthMismatch(t *testing.T) {
	m, err := Parse([]byte(`{
	  "id": "x", "title": "T", "description": "D", "items": [],
	  "metadata": {
	    "data_type": "Clasificada",
	    "properties": {
	      "values": [1, 2, 3],
	      "colors": ["#fff", "#000"],
	      "classes": ["water", "forest"]
	    }
	  }
	}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestValidateLegendContinuous(t *testing.T) {
	m, err := Parse([]byte(`{
	  "id": "x", "title": "T", "description": "D", "items": [],
	  "metadata": {
	    "data_type": "Continua",
	    "properties": {
	      "class": "ndvi",
	      "colors": ["#000", "#888", "#fff"],
	      "values": [0, 1]
	    }
	  }
	}`))
	require.NoError(t, err)
	require.NoError(t, m.Validate())
}

func TestValidateLegendContinuousBadShapes(t *testing.T) {
	m, err := Parse([]byte(`{
	  "id": "x", "title": "T", "description": "D", "items": [],
	  "metadata": {
	    "data_type": "Continua",
	    "properties": {
	      "class": "ndvi",
	      "colors": ["#000", "#fff"],
	      "values": [0, 1]
	    }
	  }
	}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestValidateLegendUnknownDataType(t *testing.T) {
	m, err := Parse([]byte(`{
	  "id": "x", "title": "T", "description": "D", "items": [],
	  "metadata": {"data_type": "Mystery"}
	}`))
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestLoadMissingFolder(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection.json")
}

func TestValidateLayers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(validManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover_2010.tif"), []byte("x"), 0o644))

	m, err := Load(dir)
	require.NoError(t, err)

	err = m.ValidateLayers(dir)
	require.Error(t, err, "cover_2015.tif is missing")
	assert.Contains(t, err.Error(), "cover_2015.tif")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover_2015.tif"), []byte("x"), 0o644))
	assert.NoError(t, m.ValidateLayers(dir))
}
