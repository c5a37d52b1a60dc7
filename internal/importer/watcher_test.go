package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tkralj/gradivo/internal/docstore"
	"github.com/tkralj/gradivo/internal/testutil"
)

func waitIngested(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingestion")
		return 0
	}
}

func TestWatchIngestsDroppedFile(t *testing.T) {
	pools := testutil.TestPools(t)
	docs := docstore.New(pools)
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingested := make(chan int64, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, docs, dir, logger, func(name string, id int64) {
			ingested <- id
		})
	}()

	// Give the watcher a moment to register before dropping the file.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "zapisnik.txt")
	if err := os.WriteFile(path, []byte("zapisnik sa sjednice"), 0o644); err != nil {
		t.Fatal(err)
	}

	id := waitIngested(t, ingested)
	doc, err := docs.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if doc.FileName != "zapisnik.txt" {
		t.Errorf("file name = %q", doc.FileName)
	}
	if doc.MimeType == "" {
		t.Error("expected mime type derived from extension")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("dropped file should be removed after ingestion")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

func TestWatchSweepsExistingFiles(t *testing.T) {
	pools := testutil.TestPools(t)
	docs := docstore.New(pools)
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := os.WriteFile(filepath.Join(dir, "old.txt"), []byte("left behind"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingested := make(chan int64, 1)
	go func() {
		_ = Watch(ctx, docs, dir, logger, func(name string, id int64) {
			ingested <- id
		})
	}()

	id := waitIngested(t, ingested)
	doc, err := docs.Retrieve(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.FileName != "old.txt" {
		t.Errorf("file name = %q", doc.FileName)
	}
}
