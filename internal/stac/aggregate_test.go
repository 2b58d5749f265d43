package stac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spatial-data-tools/stac-manager/internal/items"
)

func testMeta() CollectionMeta {
	return CollectionMeta{
		ID:          "landcover",
		Title:       "Land cover",
		Description: "Yearly land cover layers",
	}
}

func enriched(id, year string, bbox [4]float64) items.Item {
	return items.Item{
		ID:         id,
		Year:       year,
		SourceFile: id + ".tif",
		Properties: map[string]any{"proj:epsg": 4326},
		BBox:       bbox,
		Resolution: 30,
		EPSG:       4326,
	}
}

func TestBuildCollectionExtents(t *testing.T) {
	set := []items.Item{
		enriched("2010", "2010", [4]float64{0, 0, 10, 10}),
		enriched("2015", "2015", [4]float64{5, 5, 15, 15}),
	}

	c, err := BuildCollection(testMeta(), set, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "landcover", c.ID)
	assert.Equal(t, "Collection", c.Type)
	require.Len(t, c.Extent.Spatial.BBox, 1)
	assert.Equal(t, []float64{0, 0, 15, 15}, c.Extent.Spatial.BBox[0])

	require.Len(t, c.Extent.Temporal.Interval, 1)
	assert.Equal(t, "2010-01-01T00:00:00Z", c.Extent.Temporal.Interval[0][0])
	assert.Equal(t, "2015-12-31T00:00:00Z", c.Extent.Temporal.Interval[0][1])
}

func TestBuildCollectionEmptySetIsPreconditionFailure(t *testing.T) {
	_, err := BuildCollection(testMeta(), nil, "", nil)
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestBuildCollectionNameOverride(t *testing.T) {
	set := []items.Item{enriched("2010", "2010", [4]float64{0, 0, 1, 1})}
	c, err := BuildCollection(testMeta(), set, "custom-name", nil)
	require.NoError(t, err)
	assert.Equal(t, "custom-name", c.ID)
}

func TestBuildCollectionResolutionSummary(t *testing.T) {
	a := enriched("2010", "2010", [4]float64{0, 0, 1, 1})
	b := enriched("2011", "2011", [4]float64{0, 0, 1, 1})
	c := enriched("2012", "2012", [4]float64{0, 0, 1, 1})
	a.Resolution = 30
	b.Resolution = 10
	c.Resolution = 30

	col, err := BuildCollection(testMeta(), []items.Item{a, b, c}, "", nil)
	require.NoError(t, err)
	require.Contains(t, col.Summaries, "pixel_resolutions")
	assert.Equal(t, []float64{10, 30}, col.Summaries["pixel_resolutions"])
}

func TestBuildCollectionSummaryFailureIsNonFatal(t *testing.T) {
	a := enriched("2010", "2010", [4]float64{0, 0, 1, 1})
	a.Resolution = 0 // unknown, summary cannot be built

	col, err := BuildCollection(testMeta(), []items.Item{a}, "", nil)
	require.NoError(t, err)
	assert.NotContains(t, col.Summaries, "pixel_resolutions")
}

func TestBuildCollectionDefaultLicense(t *testing.T) {
	set := []items.Item{enriched("2010", "2010", [4]float64{0, 0, 1, 1})}
	c, err := BuildCollection(testMeta(), set, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLicense, c.License)
}

func TestBuildItems(t *testing.T) {
	set := []items.Item{
		enriched("2006-2010", "2010", [4]float64{0, 0, 10, 10}),
		enriched("2012", "2012", [4]float64{2, 2, 8, 8}),
	}

	recs, err := BuildItems("landcover", set)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, "2006-2010", first.ID)
	assert.Equal(t, "Feature", first.Type)
	assert.Equal(t, "landcover", first.Collection)
	assert.Equal(t, []float64{0, 0, 10, 10}, first.BBox)
	assert.Equal(t, "2010-12-31T00:00:00Z", first.Properties["datetime"])
	assert.Equal(t, 4326, first.Properties["proj:epsg"])
	assert.Equal(t, []string{ProjectionExtension}, first.StacExtensions)

	var geometry struct {
		Type        string          `json:"type"`
		Coordinates [][][2]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(first.Geometry, &geometry))
	assert.Equal(t, "Polygon", geometry.Type)
	require.Len(t, geometry.Coordinates, 1)
	ring := geometry.Coordinates[0]
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[len(ring)-1], "footprint ring must be closed")
}

func TestBuildItemsMissingEPSGFails(t *testing.T) {
	it := enriched("2010", "2010", [4]float64{0, 0, 1, 1})
	delete(it.Properties, "proj:epsg")

	_, err := BuildItems("landcover", []items.Item{it})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proj:epsg")
}

func TestEndOfYear(t *testing.T) {
	assert.Equal(t, "2015-12-31T00:00:00Z", EndOfYear(2015).Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "2000-12-31T00:00:00Z", EndOfYear(2000).Format("2006-01-02T15:04:05Z07:00"))
}

func TestCollectionValidate(t *testing.T) {
	set := []items.Item{enriched("2010", "2010", [4]float64{0, 0, 1, 1})}
	c, err := BuildCollection(testMeta(), set, "", nil)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	broken := *c
	broken.Description = ""
	assert.Error(t, broken.Validate())

	broken = *c
	broken.Extent.Spatial.BBox = [][]float64{{5, 5, 1, 1}}
	assert.Error(t, broken.Validate())
}
