// Package items derives the canonical item set for a collection and
// enriches each item with raster metadata.
package items

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Item is one raster layer entry within a collection. Derived fields are
// filled by Enrich and must not be user supplied.
type Item struct {
	ID         string         `json:"id"`
	Year       string         `json:"year"`
	SourceFile string         `json:"source_file"`
	Properties map[string]any `json:"properties,omitempty"`

	// Set by Enrich.
	BBox       [4]float64
	CRS        string
	Resolution float64
	PixelType  string
	EPSG       int
}

// YearInt returns the item's representative year as an integer.
func (it Item) YearInt() (int, error) {
	y, err := strconv.Atoi(it.Year)
	if err != nil || y <= 0 {
		return 0, fmt.Errorf("item %s has invalid year %q", it.ID, it.Year)
	}
	return y, nil
}

var (
	// ErrDuplicateID is returned when two filenames derive the same item id.
	ErrDuplicateID = errors.New("duplicate item id")

	periodPattern = regexp.MustCompile(`(?P<start>\d{4})\s*[-_]\s*(?P<end>\d{4})`)
	yearPattern   = regexp.MustCompile(`\d{4}`)
)

// FromManifest builds item stubs from declarative manifest entries. No
// inference happens in this mode; fields are copied as-is and the result
// is sorted ascending by numeric year.
func FromManifest(entries []ManifestEntry) ([]Item, error) {
	out := make([]Item, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		it := Item{
			ID:         e.ID,
			Year:       e.Year,
			SourceFile: e.Assets.InputFile,
			Properties: e.Properties,
		}
		if it.Properties == nil {
			it.Properties = map[string]any{}
		}
		if _, err := it.YearInt(); err != nil {
			return nil, err
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, it.ID)
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}

	sortByYear(out)
	return out, nil
}

// ManifestEntry is the raw item shape inside collection.json.
type ManifestEntry struct {
	ID         string         `json:"id"`
	Year       string         `json:"year"`
	Assets     EntryAssets    `json:"assets"`
	Properties map[string]any `json:"properties,omitempty"`
}

// EntryAssets names the input raster of a manifest entry.
type EntryAssets struct {
	InputFile string `json:"input_file"`
}

// FromFilenames infers item stubs from raster filenames. A period pattern
// (two 4-digit years separated by '-' or '_') takes priority; otherwise
// the maximum 4-digit run in the name becomes both id and year. Filenames
// matching neither fail the whole batch, as does any repeated derived id.
func FromFilenames(filenames []string) ([]Item, error) {
	names := append([]string(nil), filenames...)
	sort.Strings(names)

	out := make([]Item, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		id, year, err := inferLabel(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q derived from %q", ErrDuplicateID, id, name)
		}
		seen[id] = struct{}{}

		out = append(out, Item{
			ID:         id,
			Year:       year,
			SourceFile: name,
			Properties: map[string]any{},
		})
	}

	sortByYear(out)
	return out, nil
}

// inferLabel extracts the temporal label from one filename.
func inferLabel(name string) (id, year string, err error) {
	if m := periodPattern.FindStringSubmatch(name); m != nil {
		start, _ := strconv.Atoi(m[periodPattern.SubexpIndex("start")])
		end, _ := strconv.Atoi(m[periodPattern.SubexpIndex("end")])
		if start > end {
			start, end = end, start
		}
		return fmt.Sprintf("%d-%d", start, end), strconv.Itoa(end), nil
	}

	matches := yearPattern.FindAllString(name, -1)
	if len(matches) == 0 {
		return "", "", fmt.Errorf(
			"filename %q does not contain a 4-digit year or year range; rename the file", name)
	}
	max := 0
	for _, m := range matches {
		y, _ := strconv.Atoi(m)
		if y > max {
			max = y
		}
	}
	return strconv.Itoa(max), strconv.Itoa(max), nil
}

// IsRasterFile reports whether name looks like an input raster layer.
func IsRasterFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".tif")
}

func sortByYear(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		yi, _ := strconv.Atoi(items[i].Year)
		yj, _ := strconv.Atoi(items[j].Year)
		return yi < yj
	})
}
