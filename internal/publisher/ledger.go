package publisher

import (
	"context"
	"log/slog"
)

// blobDeleter is the slice of the object store the ledger needs to drain.
type blobDeleter interface {
	Delete(ctx context.Context, urlOrKey string) error
}

// Ledger is the compensation log for one sync run. Every blob URL
// successfully written this run is recorded here, in upload order; the
// ledger is the single source of truth for what must be deleted when the
// run aborts.
type Ledger struct {
	urls []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends an uploaded blob URL. Must be called immediately after
// the upload succeeds, before any dependent catalog write.
func (l *Ledger) Record(url string) {
	l.urls = append(l.urls, url)
}

// Len reports how many blobs the ledger tracks.
func (l *Ledger) Len() int {
	return len(l.urls)
}

// URLs returns the recorded URLs in upload order.
func (l *Ledger) URLs() []string {
	return append([]string(nil), l.urls...)
}

// Drain best-effort deletes every recorded blob, in upload order. Delete
// failures are logged and counted but never propagated: compensation must
// not mask the error that triggered it.
func (l *Ledger) Drain(ctx context.Context, store blobDeleter, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	failed := 0
	for _, url := range l.urls {
		if err := store.Delete(ctx, url); err != nil {
			failed++
			log.Error("failed to clean up uploaded blob", "url", url, "error", err)
			continue
		}
		log.Info("removed uploaded blob", "url", url)
	}
	if failed > 0 {
		log.Error("rollback incomplete", "failed", failed, "total", len(l.urls))
	}
	l.urls = nil
}
