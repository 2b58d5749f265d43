// Package publisher orchestrates the build-and-sync pipeline for one
// collection: derive items, enrich metadata, build the aggregate record,
// and synchronize records and layer files with the catalog server and the
// object store.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spatial-data-tools/stac-manager/internal/catalog"
	"github.com/spatial-data-tools/stac-manager/internal/config"
	"github.com/spatial-data-tools/stac-manager/internal/items"
	"github.com/spatial-data-tools/stac-manager/internal/logging"
	"github.com/spatial-data-tools/stac-manager/internal/manifest"
	"github.com/spatial-data-tools/stac-manager/internal/raster"
	"github.com/spatial-data-tools/stac-manager/internal/stac"
	"github.com/spatial-data-tools/stac-manager/internal/storage"
)

// ErrCollectionExists is returned by Create when the target collection is
// already on the server and overwrite was not requested.
var ErrCollectionExists = errors.New("collection already exists")

// Publisher drives the create/validate/remove flows against the catalog
// and the object store. A Publisher is safe to reuse across runs, but
// concurrent runs against the same collection id are not: the existence
// check is not transactional and callers must serialize externally.
type Publisher struct {
	cfg       config.Settings
	catalog   catalog.API
	store     storage.Store
	reader    raster.MetadataReader
	converter raster.Converter
	log       *slog.Logger
}

// New wires a Publisher from its collaborators.
func New(cfg config.Settings, api catalog.API, store storage.Store, reader raster.MetadataReader, converter raster.Converter) *Publisher {
	return &Publisher{
		cfg:       cfg,
		catalog:   api,
		store:     store,
		reader:    reader,
		converter: converter,
		log:       logging.Component("publisher"),
	}
}

// CreateOptions parameterize one create run.
type CreateOptions struct {
	// Folder names the input folder under the configured input dir.
	Folder string
	// Collection overrides the manifest's declared id when non-empty.
	Collection string
	// Overwrite allows replacing an existing remote collection.
	Overwrite bool
	// DeleteLocal removes leftover converted files and the output
	// directory after a successful upload.
	DeleteLocal bool
}

// build is the in-memory state assembled for one run.
type build struct {
	set        []items.Item
	collection *stac.Collection
	records    []stac.Item
}

// assemble validates the input folder and produces the full in-memory
// collection state: derived items, enriched metadata, aggregate record
// and per-item records. No remote side effects.
func (p *Publisher) assemble(ctx context.Context, folder, nameOverride string, log *slog.Logger) (*build, error) {
	m, err := manifest.Load(folder)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.ValidateLayers(folder); err != nil {
		return nil, err
	}

	set, err := items.FromManifest(m.Items)
	if err != nil {
		return nil, err
	}

	enricher := items.NewEnricher(p.reader, log)
	if err := enricher.Enrich(ctx, folder, set); err != nil {
		return nil, err
	}

	id, title, description, license, metadata := m.Meta()
	collection, err := stac.BuildCollection(stac.CollectionMeta{
		ID:          id,
		Title:       title,
		Description: description,
		License:     license,
		Metadata:    metadata,
	}, set, nameOverride, log)
	if err != nil {
		return nil, err
	}

	records, err := stac.BuildItems(collection.ID, set)
	if err != nil {
		return nil, err
	}

	return &build{set: set, collection: collection, records: records}, nil
}

// Validate runs the full local pipeline for the named input folder
// without touching the catalog or the object store.
func (p *Publisher) Validate(ctx context.Context, folder, nameOverride string) error {
	log := p.log.With("folder", folder)
	_, err := p.assemble(ctx, p.cfg.InputFolder(folder), nameOverride, log)
	if err != nil {
		return err
	}
	log.Info("validation successful")
	return nil
}

// Create runs the whole pipeline: validate, check existence, convert,
// upload layers, upload the collection record, upload item records. On a
// failure after the first blob upload, every blob written this run is
// best-effort deleted; the collection record itself is never rolled back.
func (p *Publisher) Create(ctx context.Context, opts CreateOptions) error {
	inputDir := p.cfg.InputFolder(opts.Folder)
	outputDir := p.cfg.OutputFolder(opts.Folder)

	b, err := p.assemble(ctx, inputDir, opts.Collection, p.log.With("folder", opts.Folder))
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := logging.RunLogger(runID, b.collection.ID)

	// Existence check and conditional remove happen before any
	// conversion: an aborted run must leave zero side effects.
	existed, err := p.checkExisting(ctx, b.collection.ID, opts.Overwrite, log)
	if err != nil {
		return err
	}
	if existed {
		log.Info("previous collection removed")
	}

	if err := p.convertLayers(ctx, b, inputDir, outputDir, log); err != nil {
		return err
	}

	ledger := NewLedger()
	if err := p.uploadAll(ctx, b, outputDir, ledger, log); err != nil {
		log.Error("upload failed, rolling back uploaded blobs",
			"uploaded", ledger.Len(), "error", err)
		ledger.Drain(ctx, p.store, log)
		return err
	}

	if opts.DeleteLocal {
		p.cleanupLocal(b, outputDir, log)
	}

	log.Info("collection uploaded successfully", "items", len(b.records))
	return nil
}

// checkExisting queries the catalog for the collection, aborting when it
// exists and overwrite is not set, or removing it when overwrite is set.
// Reports whether a previous collection was removed.
func (p *Publisher) checkExisting(ctx context.Context, collectionID string, overwrite bool, log *slog.Logger) (bool, error) {
	exists, err := p.catalog.Exists(ctx, collectionPath(collectionID))
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", collectionID, err)
	}
	if !exists {
		return false, nil
	}
	if !overwrite {
		return false, fmt.Errorf("%w: %s; rerun with --overwrite to replace it",
			ErrCollectionExists, collectionID)
	}
	if err := p.removeRemote(ctx, collectionID, log); err != nil {
		return false, err
	}
	return true, nil
}

// convertLayers converts every item's source raster into outputDir.
// Items whose converted output already exists are skipped, which makes
// re-runs of an interrupted pipeline cheap.
func (p *Publisher) convertLayers(ctx context.Context, b *build, inputDir, outputDir string, log *slog.Logger) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	for _, it := range b.set {
		dst := filepath.Join(outputDir, it.SourceFile)
		if _, err := os.Stat(dst); err == nil {
			log.Info("skipping conversion, output exists", "item", it.ID, "file", dst)
			continue
		}

		log.Info("converting layer", "item", it.ID, "file", it.SourceFile)
		if _, err := p.converter.Convert(ctx, it.SourceFile, inputDir, outputDir); err != nil {
			return fmt.Errorf("convert %s: %w", it.SourceFile, err)
		}
	}
	return nil
}

// uploadAll is the upload phase: layers first, then the collection
// record, then the item records, in the deriver's year-ascending order.
// Any error aborts immediately; the caller drains the ledger.
func (p *Publisher) uploadAll(ctx context.Context, b *build, outputDir string, ledger *Ledger, log *slog.Logger) error {
	if err := p.uploadLayers(ctx, b, outputDir, ledger, log); err != nil {
		return err
	}

	log.Info("uploading collection record")
	if err := p.catalog.CreateOrUpdate(ctx, "/collections", b.collection); err != nil {
		return fmt.Errorf("upload collection %s: %w", b.collection.ID, err)
	}

	itemsPath := collectionPath(b.collection.ID) + "/items"
	for i := range b.records {
		rec := &b.records[i]
		log.Info("uploading item record", "item", rec.ID)
		if err := p.catalog.CreateOrUpdate(ctx, itemsPath, rec); err != nil {
			return fmt.Errorf("upload item %s: %w", rec.ID, err)
		}
	}
	return nil
}

// uploadLayers pushes each converted layer to the object store under
// <collection id>/<source file>, records the URL in the ledger, attaches
// the asset and self link to the item record, and reclaims the local
// file. The local
// delete is irreversible: a later upload failure cannot re-upload without
// reconversion, an accepted gap in the compensation guarantee.
func (p *Publisher) uploadLayers(ctx context.Context, b *build, outputDir string, ledger *Ledger, log *slog.Logger) error {
	for i, it := range b.set {
		localPath := filepath.Join(outputDir, it.SourceFile)
		key := b.collection.ID + "/" + it.SourceFile

		log.Info("uploading layer", "item", it.ID, "key", key)
		url, err := p.store.Upload(ctx, key, localPath)
		if err != nil {
			return fmt.Errorf("upload layer %s: %w", it.SourceFile, err)
		}

		ledger.Record(url)

		if err := os.Remove(localPath); err != nil {
			log.Warn("failed to remove local converted file", "path", localPath, "error", err)
		}

		b.records[i].AddAsset(it.ID, stac.Asset{Href: url, Type: stac.MediaTypeCOG})
		b.records[i].Links = append(b.records[i].Links, stac.Link{Rel: "self", Href: url})
	}
	return nil
}

// cleanupLocal removes leftover converted files and drops the output
// directory when it ends up empty. Failures only log: cleanup outcome
// never decides the run's.
func (p *Publisher) cleanupLocal(b *build, outputDir string, log *slog.Logger) {
	for _, it := range b.set {
		path := filepath.Join(outputDir, it.SourceFile)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove converted file", "path", path, "error", err)
		}
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		log.Warn("failed to read output directory", "path", outputDir, "error", err)
		return
	}
	if len(entries) == 0 {
		if err := os.Remove(outputDir); err != nil {
			log.Warn("failed to remove output directory", "path", outputDir, "error", err)
		}
	}
}

// Remove deletes a collection from the catalog along with every asset
// blob its items reference.
func (p *Publisher) Remove(ctx context.Context, collectionID string) error {
	if collectionID == "" {
		return fmt.Errorf("missing collection id to remove")
	}
	return p.removeRemote(ctx, collectionID, p.log.With("collection", collectionID))
}

// removeRemote enumerates the collection's items, deletes each asset blob
// from the object store, then deletes the collection record.
func (p *Publisher) removeRemote(ctx context.Context, collectionID string, log *slog.Logger) error {
	log.Info("removing collection from server")

	var page struct {
		Features []struct {
			Assets map[string]stac.Asset `json:"assets"`
		} `json:"features"`
	}
	if err := p.catalog.GetJSON(ctx, collectionPath(collectionID)+"/items", &page); err != nil {
		return fmt.Errorf("remove collection %s: list items: %w", collectionID, err)
	}

	for _, feature := range page.Features {
		for _, asset := range feature.Assets {
			log.Info("deleting layer blob", "url", asset.Href)
			if err := p.store.Delete(ctx, asset.Href); err != nil {
				return fmt.Errorf("remove collection %s: delete blob %s: %w",
					collectionID, asset.Href, err)
			}
		}
	}

	if _, err := p.catalog.Delete(ctx, collectionPath(collectionID)); err != nil {
		return fmt.Errorf("remove collection %s: %w", collectionID, err)
	}

	log.Info("collection removed")
	return nil
}

func collectionPath(id string) string {
	return "/collections/" + id
}
