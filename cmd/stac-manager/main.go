// Command stac-manager validates, converts, and publishes geospatial
// layer collections to a STAC catalog and its object store.
//
// Usage:
//
//	stac-manager create   -f FOLDER [-c NAME] [-o] [--delete-local-cog]
//	stac-manager validate -f FOLDER [-c NAME]
//	stac-manager remove   -c NAME
//	stac-manager inject   -f FOLDER [--output PATH] [--no-backup]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spatial-data-tools/stac-manager/internal/catalog"
	"github.com/spatial-data-tools/stac-manager/internal/config"
	"github.com/spatial-data-tools/stac-manager/internal/logging"
	"github.com/spatial-data-tools/stac-manager/internal/manifest"
	"github.com/spatial-data-tools/stac-manager/internal/publisher"
	"github.com/spatial-data-tools/stac-manager/internal/raster"
	"github.com/spatial-data-tools/stac-manager/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "stac-manager: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "create":
		return runCreate(ctx, args)
	case "validate":
		return runValidate(ctx, args)
	case "remove":
		return runRemove(ctx, args)
	case "inject":
		return runInject(args)
	case "version":
		fmt.Printf("stac-manager %s (%s)\n", Version, GitSHA)
		return nil
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `stac-manager: STAC collection manager

Commands:
  create    Validate, convert and publish a collection
  validate  Validate the folder structure and collection.json only
  remove    Remove a collection from the catalog and object store
  inject    Rewrite collection.json items from raster filenames
  version   Print version information

Run "stac-manager COMMAND -h" for command flags.`)
}

// loadSettings reads the config file named by -config plus env overrides.
func loadSettings(path string) (config.Settings, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Settings{}, err
	}
	logging.Setup(cfg.Logging)
	return cfg, nil
}

// newPublisher wires the full collaborator set for commands that touch
// the catalog or the object store.
func newPublisher(ctx context.Context, cfg config.Settings) (*publisher.Publisher, func(), error) {
	api, err := catalog.New(cfg.Catalog.URL, cfg.Catalog.AuthPath, catalog.Credentials{
		Username: cfg.Catalog.Username,
		Password: cfg.Catalog.Password,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	gdal, err := raster.NewGDAL()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	p := publisher.New(cfg, api, store, gdal, gdal)
	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}
	return p, cleanup, nil
}

func runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	configPath := fs.String("config", "", "path to settings.yaml")
	folder := fs.String("f", "", "input folder name (required)")
	collection := fs.String("c", "", "collection name override")
	overwrite := fs.Bool("o", false, "overwrite the collection if it already exists")
	deleteLocal := fs.Bool("delete-local-cog", false, "delete local converted layers after upload")
	fs.Parse(args)

	if *folder == "" {
		return fmt.Errorf("create: -f FOLDER is required")
	}

	cfg, err := loadSettings(*configPath)
	if err != nil {
		return err
	}

	p, cleanup, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return p.Create(ctx, publisher.CreateOptions{
		Folder:      *folder,
		Collection:  *collection,
		Overwrite:   *overwrite,
		DeleteLocal: *deleteLocal,
	})
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to settings.yaml")
	folder := fs.String("f", "", "input folder name (required)")
	collection := fs.String("c", "", "collection name override")
	fs.Parse(args)

	if *folder == "" {
		return fmt.Errorf("validate: -f FOLDER is required")
	}

	cfg, err := loadSettings(*configPath)
	if err != nil {
		return err
	}

	gdal, err := raster.NewGDAL()
	if err != nil {
		return err
	}

	// Validation never reaches the catalog or the store.
	p := publisher.New(cfg, nil, nil, gdal, gdal)
	return p.Validate(ctx, *folder, *collection)
}

func runRemove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", "", "path to settings.yaml")
	collection := fs.String("c", "", "collection name (required)")
	fs.Parse(args)

	if *collection == "" {
		return fmt.Errorf("remove: -c NAME is required")
	}

	cfg, err := loadSettings(*configPath)
	if err != nil {
		return err
	}

	p, cleanup, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return p.Remove(ctx, *collection)
}

func runInject(args []string) error {
	fs := flag.NewFlagSet("inject", flag.ExitOnError)
	configPath := fs.String("config", "", "path to settings.yaml")
	folder := fs.String("f", "", "input folder name (required)")
	output := fs.String("output", "", "output path (default: overwrite the input manifest)")
	noBackup := fs.Bool("no-backup", false, "skip the timestamped manifest backup")
	backupDir := fs.String("backup-dir", "", "directory for manifest backups")
	fs.Parse(args)

	if *folder == "" {
		return fmt.Errorf("inject: -f FOLDER is required")
	}

	cfg, err := loadSettings(*configPath)
	if err != nil {
		return err
	}

	_, err = manifest.Inject(cfg.InputFolder(*folder), manifest.InjectOptions{
		OutputPath: *output,
		MakeBackup: !*noBackup,
		BackupDir:  *backupDir,
	}, nil)
	return err
}
