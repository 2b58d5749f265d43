package stac

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spatial-data-tools/stac-manager/internal/items"
)

// ErrNoItems is returned when a collection would be built from an empty
// item set; extents are undefined in that case.
var ErrNoItems = errors.New("collection has no items")

// CollectionMeta carries the manifest fields that feed the collection
// record directly.
type CollectionMeta struct {
	ID          string
	Title       string
	Description string
	License     string
	Metadata    map[string]any
}

// BuildCollection folds the enriched item set into a collection record:
// the union bounding box of all item bboxes and the [Jan 1 of min year,
// Dec 31 of max year] interval. nameOverride, when non-empty, replaces the
// manifest's declared id. The record is validated before being returned.
func BuildCollection(meta CollectionMeta, set []items.Item, nameOverride string, log *slog.Logger) (*Collection, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(set) == 0 {
		return nil, ErrNoItems
	}

	bbox := set[0].BBox
	minYear, err := set[0].YearInt()
	if err != nil {
		return nil, err
	}
	maxYear := minYear

	for _, it := range set[1:] {
		if it.BBox[0] < bbox[0] {
			bbox[0] = it.BBox[0]
		}
		if it.BBox[1] < bbox[1] {
			bbox[1] = it.BBox[1]
		}
		if it.BBox[2] > bbox[2] {
			bbox[2] = it.BBox[2]
		}
		if it.BBox[3] > bbox[3] {
			bbox[3] = it.BBox[3]
		}

		year, err := it.YearInt()
		if err != nil {
			return nil, err
		}
		if year < minYear {
			minYear = year
		}
		if year > maxYear {
			maxYear = year
		}
	}

	id := meta.ID
	if nameOverride != "" {
		id = nameOverride
	}
	license := meta.License
	if license == "" {
		license = DefaultLicense
	}

	c := &Collection{
		Type:        "Collection",
		StacVersion: Version,
		ID:          id,
		Title:       meta.Title,
		Description: meta.Description,
		License:     license,
		Extent: Extent{
			Spatial: SpatialExtent{
				BBox: [][]float64{{bbox[0], bbox[1], bbox[2], bbox[3]}},
			},
			Temporal: TemporalExtent{
				Interval: [][]string{{
					StartOfYear(minYear).Format(time.RFC3339),
					EndOfYear(maxYear).Format(time.RFC3339),
				}},
			},
		},
		Links:    []Link{},
		Metadata: meta.Metadata,
	}

	attachResolutionSummary(c, set, log)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	log.Info("collection validated", "collection", c.ID,
		"items", len(set), "years", fmt.Sprintf("%d-%d", minYear, maxYear))
	return c, nil
}

// attachResolutionSummary records the sorted, de-duplicated pixel
// resolutions observed across the item set. Best effort: a malformed
// resolution only drops the summary, never the collection.
func attachResolutionSummary(c *Collection, set []items.Item, log *slog.Logger) {
	uniq := make(map[float64]struct{}, len(set))
	for _, it := range set {
		if it.Resolution <= 0 {
			log.Warn("skipping pixel resolution summary",
				"collection", c.ID, "item", it.ID, "resolution", it.Resolution)
			return
		}
		uniq[it.Resolution] = struct{}{}
	}

	resolutions := make([]float64, 0, len(uniq))
	for r := range uniq {
		resolutions = append(resolutions, r)
	}
	sort.Float64s(resolutions)

	if c.Summaries == nil {
		c.Summaries = map[string]any{}
	}
	c.Summaries["pixel_resolutions"] = resolutions
}

// BuildItems constructs the per-item catalog records from the enriched
// item set, in the set's order. Each record carries the bbox-derived
// footprint, the end-of-year timestamp and the projection extension.
func BuildItems(collectionID string, set []items.Item) ([]Item, error) {
	out := make([]Item, 0, len(set))

	for _, it := range set {
		year, err := it.YearInt()
		if err != nil {
			return nil, err
		}

		geometry, err := FootprintGeometry(it.BBox)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}

		props := make(map[string]any, len(it.Properties)+1)
		for k, v := range it.Properties {
			props[k] = v
		}
		props["datetime"] = EndOfYear(year).Format(time.RFC3339)

		rec := Item{
			Type:           "Feature",
			StacVersion:    Version,
			StacExtensions: []string{ProjectionExtension},
			ID:             it.ID,
			Collection:     collectionID,
			Geometry:       geometry,
			BBox:           it.BBox[:],
			Properties:     props,
			Assets:         map[string]Asset{},
			Links:          []Link{},
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
