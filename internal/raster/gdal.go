package raster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// GDAL implements MetadataReader and Converter on top of the gdalinfo,
// gdal_translate and gdaladdo command line tools.
type GDAL struct{}

// NewGDAL returns a GDAL-backed reader/converter. It fails when the
// required binaries are not on PATH.
func NewGDAL() (*GDAL, error) {
	for _, bin := range []string{"gdalinfo", "gdal_translate", "gdaladdo"} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, fmt.Errorf("required tool %s not found on PATH: %w", bin, err)
		}
	}
	return &GDAL{}, nil
}

// gdalInfo mirrors the subset of `gdalinfo -json` output we consume.
type gdalInfo struct {
	CornerCoordinates struct {
		LowerLeft  []float64 `json:"lowerLeft"`
		UpperRight []float64 `json:"upperRight"`
	} `json:"cornerCoordinates"`
	GeoTransform []float64 `json:"geoTransform"`
	Bands        []struct {
		Type string `json:"type"`
	} `json:"bands"`
	CoordinateSystem struct {
		WKT string `json:"wkt"`
	} `json:"coordinateSystem"`
	STAC struct {
		ProjEPSG int `json:"proj:epsg"`
	} `json:"stac"`
}

var initPattern = regexp.MustCompile(`(?i)\bAUTHORITY\[\"(EPSG)\",\"(\d+)\"\]\s*\]\s*$`)

// Read extracts bbox, CRS descriptor, pixel size and band type via gdalinfo.
func (g *GDAL) Read(ctx context.Context, path string) (*Metadata, error) {
	out, err := exec.CommandContext(ctx, "gdalinfo", "-json", path).Output()
	if err != nil {
		return nil, fmt.Errorf("gdalinfo %s: %w", path, err)
	}

	var info gdalInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse gdalinfo output for %s: %w", path, err)
	}

	ll := info.CornerCoordinates.LowerLeft
	ur := info.CornerCoordinates.UpperRight
	if len(ll) < 2 || len(ur) < 2 {
		return nil, fmt.Errorf("gdalinfo output for %s has no corner coordinates", path)
	}

	md := &Metadata{
		BBox: [4]float64{ll[0], ll[1], ur[0], ur[1]},
		CRS:  CRSRef{WKT: info.CoordinateSystem.WKT},
	}
	if len(info.GeoTransform) >= 2 {
		md.Resolution = info.GeoTransform[1]
	}
	if len(info.Bands) > 0 {
		md.PixelType = strings.ToLower(info.Bands[0].Type)
	}
	if info.STAC.ProjEPSG > 0 {
		md.CRS.Code = info.STAC.ProjEPSG
	} else if m := initPattern.FindStringSubmatch(info.CoordinateSystem.WKT); m != nil {
		md.CRS.Init = strings.ToLower(m[1]) + ":" + m[2]
	}
	return md, nil
}

// EPSG resolves the file's CRS to an EPSG code, 0 when unavailable.
func (g *GDAL) EPSG(ctx context.Context, path string) (int, error) {
	md, err := g.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	if md.CRS.Code > 0 {
		return md.CRS.Code, nil
	}
	if md.CRS.Init != "" {
		parts := strings.SplitN(md.CRS.Init, ":", 2)
		if len(parts) == 2 {
			if code, err := strconv.Atoi(parts[1]); err == nil {
				return code, nil
			}
		}
	}
	return 0, nil
}

// Convert produces a tiled, DEFLATE-compressed COG with overviews:
// 512x512 blocks, ZLEVEL=9, overview levels 2..32.
func (g *GDAL) Convert(ctx context.Context, sourceFile, inputDir, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	src := filepath.Join(inputDir, sourceFile)
	dst := filepath.Join(outputDir, sourceFile)

	tmpDir, err := os.MkdirTemp("", "stac-manager-cog-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmp := filepath.Join(tmpDir, filepath.Base(sourceFile))

	if err := run(ctx, "gdal_translate", src, tmp); err != nil {
		return "", fmt.Errorf("copy %s to temp: %w", sourceFile, err)
	}

	if err := run(ctx, "gdaladdo",
		"-r", "average",
		"--config", "GDAL_TIFF_OVR_BLOCKSIZE", "512",
		tmp, "2", "4", "8", "16", "32",
	); err != nil {
		return "", fmt.Errorf("build overviews for %s: %w", sourceFile, err)
	}

	if err := run(ctx, "gdal_translate",
		"-co", "TILED=YES",
		"-co", "COPY_SRC_OVERVIEWS=YES",
		"-co", "COMPRESS=DEFLATE",
		"-co", "ZLEVEL=9",
		"--config", "GDAL_TIFF_OVR_BLOCKSIZE", "512",
		"-co", "BLOCKXSIZE=512",
		"-co", "BLOCKYSIZE=512",
		"-co", "PREDICTOR=1",
		"-co", "PROFILE=GeoTIFF",
		tmp, dst,
	); err != nil {
		return "", fmt.Errorf("convert %s to COG: %w", sourceFile, err)
	}

	return dst, nil
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
