package items

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spatial-data-tools/stac-manager/internal/raster"
)

// EPSGProperty is the item property carrying the resolved spatial
// reference identifier.
const EPSGProperty = "proj:epsg"

// EPSGSource tags how an item's EPSG code was determined.
type EPSGSource int

const (
	// EPSGExisting means the property was already present on the item.
	EPSGExisting EPSGSource = iota
	// EPSGNative means the reader resolved the file's CRS directly.
	EPSGNative
	// EPSGInit means the code was parsed from a namespace:code descriptor.
	EPSGInit
	// EPSGCode means the descriptor was a bare numeric code.
	EPSGCode
)

func (s EPSGSource) String() string {
	switch s {
	case EPSGExisting:
		return "existing"
	case EPSGNative:
		return "native"
	case EPSGInit:
		return "init"
	case EPSGCode:
		return "code"
	default:
		return "unknown"
	}
}

// ResolveError reports an item whose spatial reference could not be
// determined. Fatal for the whole run: downstream catalog consumers
// require proj:epsg.
type ResolveError struct {
	ItemID string
	Path   string
	CRS    string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("missing %s for item %s (file: %s, CRS: %s)",
		EPSGProperty, e.ItemID, e.Path, e.CRS)
}

// Enricher resolves raster metadata and spatial reference identifiers for
// item stubs.
type Enricher struct {
	reader raster.MetadataReader
	log    *slog.Logger
}

// NewEnricher creates an Enricher backed by the given metadata reader.
func NewEnricher(reader raster.MetadataReader, log *slog.Logger) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{reader: reader, log: log.With("component", "enricher")}
}

// Enrich fills the derived fields on every item in place, reading each
// item's source file from folder. Items are processed in slice order.
func (e *Enricher) Enrich(ctx context.Context, folder string, items []Item) error {
	for i := range items {
		if err := e.enrichOne(ctx, folder, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enricher) enrichOne(ctx context.Context, folder string, it *Item) error {
	path := filepath.Join(folder, it.SourceFile)
	e.log.Info("retrieving metadata", "item", it.ID, "file", path)

	md, err := e.reader.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("read metadata for item %s: %w", it.ID, err)
	}

	it.BBox = md.BBox
	it.CRS = md.CRS.String()
	it.Resolution = md.Resolution
	it.PixelType = md.PixelType

	epsg, source, err := e.resolveEPSG(ctx, path, md, it)
	if err != nil {
		return err
	}

	it.EPSG = epsg
	if source != EPSGExisting {
		// Write back so later stages see the property as already present.
		it.Properties[EPSGProperty] = epsg
		e.log.Info("resolved spatial reference",
			"item", it.ID, "epsg", epsg, "source", source.String())
	} else {
		e.log.Info("keeping existing spatial reference", "item", it.ID, "epsg", epsg)
	}
	return nil
}

// resolveEPSG applies the fallback chain: existing property, native
// reader resolution, namespace:code descriptor, bare numeric descriptor.
func (e *Enricher) resolveEPSG(ctx context.Context, path string, md *raster.Metadata, it *Item) (int, EPSGSource, error) {
	if code := existingEPSG(it.Properties); code > 0 {
		return code, EPSGExisting, nil
	}

	code, err := e.reader.EPSG(ctx, path)
	if err != nil {
		e.log.Info("native EPSG resolution failed", "file", path, "error", err)
	} else if code > 0 {
		return code, EPSGNative, nil
	}

	if md.CRS.Init != "" {
		if parts := strings.SplitN(md.CRS.Init, ":", 2); len(parts) == 2 {
			if code, err := strconv.Atoi(parts[1]); err == nil && code > 0 {
				return code, EPSGInit, nil
			}
		}
	}

	if md.CRS.Code > 0 {
		return md.CRS.Code, EPSGCode, nil
	}

	return 0, 0, &ResolveError{ItemID: it.ID, Path: path, CRS: md.CRS.String()}
}

// existingEPSG returns a positive integer proj:epsg from properties, or 0.
// JSON decoding yields float64 for numbers, so both forms are accepted.
func existingEPSG(props map[string]any) int {
	switch v := props[EPSGProperty].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 && v == float64(int(v)) {
			return int(v)
		}
	}
	return 0
}
