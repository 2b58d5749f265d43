package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spatial-data-tools/stac-manager/internal/items"
)

// InjectOptions controls a manifest rewrite.
type InjectOptions struct {
	// OutputPath, when set, receives the rewritten manifest instead of
	// overwriting <folder>/collection.json.
	OutputPath string

	// MakeBackup writes a timestamped copy of the original manifest
	// before the target is overwritten.
	MakeBackup bool

	// BackupDir overrides where the backup lands. Default: alongside
	// OutputPath when given, else the input folder itself.
	BackupDir string

	// Now supplies the backup timestamp; nil uses the wall clock.
	Now func() time.Time
}

// Inject rewrites the items array of <folder>/collection.json from the
// raster filenames found in folder, leaving every other manifest field
// untouched. Returns the path written.
func Inject(folder string, opts InjectOptions, log *slog.Logger) (string, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "inject")

	absFolder, _ := filepath.Abs(folder)
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("input folder does not exist: %s", absFolder)
	}

	templatePath := filepath.Join(folder, FileName)
	base, err := os.ReadFile(templatePath)
	if err != nil {
		absTemplate, _ := filepath.Abs(templatePath)
		return "", fmt.Errorf("%s not found at: %s", FileName, absTemplate)
	}

	doc, err := Parse(base)
	if err != nil {
		return "", err
	}

	rasters, err := listRasterFiles(folder)
	if err != nil {
		return "", err
	}
	if len(rasters) == 0 {
		return "", fmt.Errorf("no raster files found in %s", absFolder)
	}
	log.Info("scanned input folder", "folder", absFolder, "rasters", len(rasters))

	derived, err := items.FromFilenames(rasters)
	if err != nil {
		return "", err
	}

	entries := make([]any, 0, len(derived))
	for _, it := range derived {
		log.Info("derived item", "file", it.SourceFile, "id", it.ID, "year", it.Year)
		entries = append(entries, map[string]any{
			"id":   it.ID,
			"year": it.Year,
			"assets": map[string]any{
				"input_file": it.SourceFile,
			},
		})
	}

	out := make(map[string]any, len(doc.raw))
	for k, v := range doc.raw {
		out[k] = v
	}
	out["items"] = entries

	targetPath := opts.OutputPath
	if targetPath == "" {
		targetPath = templatePath
	}

	if opts.MakeBackup {
		if err := writeBackup(base, folder, opts, log); err != nil {
			return "", err
		}
	}

	encoded, err := Encode(out)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(targetPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(targetPath, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write manifest %s: %w", targetPath, err)
	}

	absTarget, _ := filepath.Abs(targetPath)
	log.Info("manifest updated", "path", absTarget)
	return targetPath, nil
}

// writeBackup snapshots the original manifest next to the rewrite target.
func writeBackup(original []byte, folder string, opts InjectOptions, log *slog.Logger) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ts := now().Format("20060102-150405")

	destDir := opts.BackupDir
	switch {
	case destDir != "":
	case opts.OutputPath != "":
		destDir = filepath.Dir(opts.OutputPath)
		if destDir == "" {
			destDir = "."
		}
	default:
		destDir = folder
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create backup directory %s: %w", destDir, err)
	}

	backupPath := filepath.Join(destDir, fmt.Sprintf("collection.backup.%s.json", ts))
	if err := os.WriteFile(backupPath, original, 0o644); err != nil {
		return fmt.Errorf("write backup %s: %w", backupPath, err)
	}

	absBackup, _ := filepath.Abs(backupPath)
	log.Info("backup saved", "path", absBackup)
	return nil
}

// listRasterFiles returns the raster filenames directly inside folder.
func listRasterFiles(folder string) ([]string, error) {
	dirents, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}
	var out []string
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if items.IsRasterFile(d.Name()) {
			out = append(out, d.Name())
		}
	}
	return out, nil
}
