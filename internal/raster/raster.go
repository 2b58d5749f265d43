// Package raster defines the contracts for reading geospatial raster
// metadata and converting raster layers to Cloud Optimized GeoTIFF.
package raster

import (
	"context"
	"strconv"
)

// CRSRef describes the coordinate reference system of a raster as reported
// by the underlying reader. Exactly which fields are populated depends on
// how the file declares its CRS.
type CRSRef struct {
	// Code is set when the descriptor is a bare numeric authority code.
	Code int
	// Init is the "namespace:code" form (e.g. "epsg:32718"), if present.
	Init string
	// WKT is the raw well-known-text descriptor, kept for error messages.
	WKT string
}

// String returns the most specific available representation, for logs and
// error messages.
func (c CRSRef) String() string {
	switch {
	case c.Init != "":
		return c.Init
	case c.Code > 0:
		return strconv.Itoa(c.Code)
	default:
		return c.WKT
	}
}

// Metadata is the geometric description of one raster layer.
type Metadata struct {
	// BBox is minX, minY, maxX, maxY in the raster's CRS.
	BBox [4]float64
	// CRS is the file's CRS descriptor.
	CRS CRSRef
	// Resolution is the pixel size along the X axis.
	Resolution float64
	// PixelType is the band data type, e.g. "uint8", "float32".
	PixelType string
}

// MetadataReader extracts metadata from a raster file.
type MetadataReader interface {
	// Read returns the raster's metadata, or an error if the file cannot
	// be opened or understood.
	Read(ctx context.Context, path string) (*Metadata, error)

	// EPSG resolves the raster's CRS to a numeric EPSG code. Returns 0
	// with a nil error when the CRS has no direct EPSG equivalent.
	EPSG(ctx context.Context, path string) (int, error)
}

// Converter turns a source raster into a Cloud Optimized GeoTIFF.
type Converter interface {
	// Convert reads sourceFile (relative to inputDir) and writes the
	// converted layer under outputDir using the same relative name,
	// creating outputDir if missing. Returns the output path.
	Convert(ctx context.Context, sourceFile, inputDir, outputDir string) (string, error)
}
