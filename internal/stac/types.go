// Package stac holds the catalog record types and the aggregate builder
// that folds an item set into a collection record.
package stac

import (
	"encoding/json"
	"fmt"
	"time"

	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const (
	// Version is the STAC version stamped on produced records.
	Version = "1.0.0"

	// ProjectionExtension is the schema URL for the projection extension.
	ProjectionExtension = "https://stac-extensions.github.io/projection/v1.0.0/schema.json"

	// MediaTypeCOG is the media type of a Cloud Optimized GeoTIFF asset.
	MediaTypeCOG = "image/tiff; application=geotiff; profile=cloud-optimized"

	// DefaultLicense is used when the manifest does not declare a license.
	DefaultLicense = "proprietary"
)

// Collection is the top-level aggregate record. Immutable once uploading
// begins, except for attaching derived summaries.
type Collection struct {
	Type           string         `json:"type"`
	StacVersion    string         `json:"stac_version"`
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	License        string         `json:"license"`
	Extent         Extent         `json:"extent"`
	Links          []Link         `json:"links"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Summaries      map[string]any `json:"summaries,omitempty"`
	StacExtensions []string       `json:"stac_extensions,omitempty"`
}

// Extent couples the spatial and temporal coverage of a collection.
type Extent struct {
	Spatial  SpatialExtent  `json:"spatial"`
	Temporal TemporalExtent `json:"temporal"`
}

// SpatialExtent is a list of bounding boxes; the first entry is the union
// of all item bboxes.
type SpatialExtent struct {
	BBox [][]float64 `json:"bbox"`
}

// TemporalExtent is a list of [start, end] RFC3339 timestamps.
type TemporalExtent struct {
	Interval [][]string `json:"interval"`
}

// Link is a STAC hypermedia link.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// Item is one layer record within a collection.
type Item struct {
	Type           string           `json:"type"`
	StacVersion    string           `json:"stac_version"`
	StacExtensions []string         `json:"stac_extensions,omitempty"`
	ID             string           `json:"id"`
	Collection     string           `json:"collection,omitempty"`
	Geometry       json.RawMessage  `json:"geometry"`
	BBox           []float64        `json:"bbox"`
	Properties     map[string]any   `json:"properties"`
	Assets         map[string]Asset `json:"assets"`
	Links          []Link           `json:"links"`
}

// Asset is a downloadable artifact attached to an item.
type Asset struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// AddAsset attaches an asset under key, initializing the map if needed.
func (it *Item) AddAsset(key string, asset Asset) {
	if it.Assets == nil {
		it.Assets = map[string]Asset{}
	}
	it.Assets[key] = asset
}

// Validate checks structural invariants of the collection record before
// any network call.
func (c *Collection) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("collection id is empty")
	}
	if c.Type != "Collection" {
		return fmt.Errorf("collection %s: type must be \"Collection\", got %q", c.ID, c.Type)
	}
	if c.Description == "" {
		return fmt.Errorf("collection %s: description is required", c.ID)
	}
	if len(c.Extent.Spatial.BBox) == 0 || len(c.Extent.Spatial.BBox[0]) != 4 {
		return fmt.Errorf("collection %s: spatial extent must hold one 4-element bbox", c.ID)
	}
	bbox := c.Extent.Spatial.BBox[0]
	if bbox[0] > bbox[2] || bbox[1] > bbox[3] {
		return fmt.Errorf("collection %s: degenerate spatial extent %v", c.ID, bbox)
	}
	if len(c.Extent.Temporal.Interval) == 0 || len(c.Extent.Temporal.Interval[0]) != 2 {
		return fmt.Errorf("collection %s: temporal extent must hold one [start, end] interval", c.ID)
	}
	for _, ts := range c.Extent.Temporal.Interval[0] {
		if _, err := time.Parse(time.RFC3339, ts); err != nil {
			return fmt.Errorf("collection %s: bad temporal bound %q: %w", c.ID, ts, err)
		}
	}
	return nil
}

// Validate checks structural invariants of an item record.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("item id is empty")
	}
	if len(it.BBox) != 4 {
		return fmt.Errorf("item %s: bbox must have 4 elements", it.ID)
	}
	if len(it.Geometry) == 0 {
		return fmt.Errorf("item %s: geometry is missing", it.ID)
	}
	if _, ok := it.Properties["datetime"]; !ok {
		return fmt.Errorf("item %s: datetime property is missing", it.ID)
	}
	if _, ok := it.Properties["proj:epsg"]; !ok {
		return fmt.Errorf("item %s is missing proj:epsg", it.ID)
	}
	return nil
}

// FootprintGeometry builds the GeoJSON polygon matching a bbox, ring
// closed and wound as lower-left, upper-left, upper-right, lower-right.
func FootprintGeometry(bbox [4]float64) (json.RawMessage, error) {
	minX, minY, maxX, maxY := bbox[0], bbox[1], bbox[2], bbox[3]
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		minX, maxY,
		maxX, maxY,
		maxX, minY,
		minX, minY,
	}, []int{10})

	data, err := geojson.Marshal(poly)
	if err != nil {
		return nil, fmt.Errorf("encode footprint: %w", err)
	}
	return json.RawMessage(data), nil
}

// EndOfYear returns the last day of year at midnight UTC, i.e.
// Jan 1 of the following year minus one day.
func EndOfYear(year int) time.Time {
	return time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// StartOfYear returns Jan 1 of year at midnight UTC.
func StartOfYear(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
