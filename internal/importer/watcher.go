// Package importer ingests documents dropped into a watched directory.
package importer

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tkralj/gradivo/internal/docstore"
)

// settleDelay is how long a file must stay quiet before it is considered
// fully written. Drop-folder writers copy in multiple chunks.
const settleDelay = 500 * time.Millisecond

// IngestedCallback is called after a dropped file has been stored, with the
// file name and the resulting document id.
type IngestedCallback func(name string, documentID int64)

// Watch starts an fsnotify watcher on dir and ingests every file written
// into it until ctx is cancelled. Stored files are removed from the
// directory. Files already present at startup are ingested first.
func Watch(ctx context.Context, docs *docstore.Store, dir string, logger *slog.Logger, cb IngestedCallback) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("importer: started", slog.String("dir", dir))

	sweepExisting(ctx, docs, dir, logger, cb)

	// pending tracks files waiting out their settle delay.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settleDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("importer: stopped")
			return nil

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < settleDelay {
					continue
				}
				delete(pending, path)
				ingestFile(ctx, docs, path, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				delete(pending, ev.Name)
				continue
			}
			if info, statErr := os.Stat(ev.Name); statErr != nil || info.IsDir() {
				continue
			}
			pending[ev.Name] = time.Now()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("importer: error", slog.String("error", watchErr.Error()))
		}
	}
}

// sweepExisting ingests files that were dropped while the importer was down.
func sweepExisting(ctx context.Context, docs *docstore.Store, dir string, logger *slog.Logger, cb IngestedCallback) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("importer: initial sweep failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ingestFile(ctx, docs, filepath.Join(dir, e.Name()), logger, cb)
	}
}

func ingestFile(ctx context.Context, docs *docstore.Store, path string, logger *slog.Logger, cb IngestedCallback) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("importer: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if len(data) == 0 {
		return
	}

	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(name))

	id, err := docs.Ingest(ctx, data, name, mimeType)
	if err != nil {
		logger.Warn("importer: ingest failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("importer: remove failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	logger.Info("importer: stored", slog.String("name", name), slog.Int64("document_id", id))
	if cb != nil {
		cb(name, id)
	}
}
