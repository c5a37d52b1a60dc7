// Package docstore persists binary documents deduplicated by content hash.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"

	"github.com/tkralj/gradivo/internal/apperr"
	"github.com/tkralj/gradivo/internal/checksum"
	"github.com/tkralj/gradivo/internal/dbpool"
)

// Document is one stored binary payload with its metadata.
type Document struct {
	ID        int64     `json:"id"`
	Data      []byte    `json:"-"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the content-addressable document store over the content domain.
// Ingestion of identical payloads is collapsed per hash, so at most one row
// exists per distinct SHA-256; the UNIQUE(sha256) constraint backstops
// writers racing from other processes.
type Store struct {
	pools *dbpool.Pools
	group singleflight.Group
}

// New creates a Store backed by the given pools.
func New(pools *dbpool.Pools) *Store {
	return &Store{pools: pools}
}

// Ingest stores payload and returns the document id. A payload whose hash is
// already present returns the existing id without writing bytes.
func (s *Store) Ingest(ctx context.Context, payload []byte, fileName, mimeType string) (int64, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("docstore: empty payload: %w", apperr.ErrValidation)
	}
	if fileName == "" {
		fileName = "file"
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	sha := checksum.Sum(payload)

	v, err, _ := s.group.Do(sha, func() (any, error) {
		return s.ingest(ctx, sha, payload, fileName, mimeType)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *Store) ingest(ctx context.Context, sha string, payload []byte, fileName, mimeType string) (int64, error) {
	ctx, cancel := s.pools.WithTimeout(ctx)
	defer cancel()

	if id, err := s.lookup(ctx, sha); err == nil {
		return id, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return 0, err
	}

	res, err := s.pools.ExecContext(ctx, dbpool.DomainContent,
		`INSERT INTO documents (blob, file_name, mime_type, size_bytes, sha256) VALUES (?, ?, ?, ?, ?)`,
		payload, fileName, mimeType, int64(len(payload)), sha)
	if err != nil {
		// A concurrent writer may have won the unique race; resolve by
		// re-reading the surviving row.
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return s.lookup(ctx, sha)
		}
		return 0, fmt.Errorf("docstore: insert: %w: %w", apperr.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("docstore: insert id: %w", err)
	}
	return id, nil
}

func (s *Store) lookup(ctx context.Context, sha string) (int64, error) {
	row, err := s.pools.QueryContext(ctx, dbpool.DomainContent,
		`SELECT id FROM documents WHERE sha256 = ? LIMIT 1`, sha)
	if err != nil {
		return 0, fmt.Errorf("docstore: lookup: %w: %w", apperr.ErrStorage, err)
	}
	defer row.Close()
	if !row.Next() {
		if err := row.Err(); err != nil {
			return 0, fmt.Errorf("docstore: lookup: %w: %w", apperr.ErrStorage, err)
		}
		return 0, apperr.ErrNotFound
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Retrieve returns a stored document with its payload.
func (s *Store) Retrieve(ctx context.Context, id int64) (*Document, error) {
	ctx, cancel := s.pools.WithTimeout(ctx)
	defer cancel()

	db, err := s.pools.DB(dbpool.DomainContent)
	if err != nil {
		return nil, err
	}
	doc := &Document{ID: id}
	err = db.QueryRowContext(ctx,
		`SELECT blob, file_name, mime_type, size_bytes, sha256, created_at FROM documents WHERE id = ?`, id).
		Scan(&doc.Data, &doc.FileName, &doc.MimeType, &doc.SizeBytes, &doc.SHA256, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("docstore: document %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: retrieve %d: %w: %w", id, apperr.ErrStorage, err)
	}
	return doc, nil
}

// SweepOrphans deletes documents no content block references. Retention is
// the default policy; this is an administrative operation.
func (s *Store) SweepOrphans(ctx context.Context) (int64, error) {
	ctx, cancel := s.pools.WithTimeout(ctx)
	defer cancel()

	res, err := s.pools.ExecContext(ctx, dbpool.DomainContent,
		`DELETE FROM documents WHERE id NOT IN (SELECT document_id FROM content_blocks WHERE document_id IS NOT NULL)`)
	if err != nil {
		return 0, fmt.Errorf("docstore: sweep orphans: %w: %w", apperr.ErrStorage, err)
	}
	return res.RowsAffected()
}

// DispositionHeaders returns the download framing headers for a document:
// stored MIME type and an inline content disposition derived from the
// stored file name (RFC 5987 encoding).
func DispositionHeaders(doc *Document) map[string]string {
	return map[string]string{
		"Content-Type":        doc.MimeType,
		"Content-Disposition": `inline; filename*=UTF-8''` + url.PathEscape(doc.FileName),
		"Content-Length":      strconv.FormatInt(int64(len(doc.Data)), 10),
		"Cache-Control":       "no-store",
		"Accept-Ranges":       "none",
	}
}
