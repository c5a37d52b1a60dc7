// Package content maintains the page hierarchy and its ordered content
// blocks, and composes uploaded documents into pages.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/tkralj/gradivo/internal/apperr"
	"github.com/tkralj/gradivo/internal/checksum"
	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/docstore"
)

// Composer resolves pages, lists their block subtrees, and runs batch
// ingestion of mixed text/image/document items.
type Composer struct {
	pools *dbpool.Pools
	docs  *docstore.Store
}

// New creates a Composer over the content domain.
func New(pools *dbpool.Pools, docs *docstore.Store) *Composer {
	return &Composer{pools: pools, docs: docs}
}

// ResolvePage resolves a page by numeric id or by slug.
func (c *Composer) ResolvePage(ctx context.Context, locator string) (*Page, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("content: empty page locator: %w", apperr.ErrValidation)
	}
	if id, err := strconv.ParseInt(locator, 10, 64); err == nil {
		return c.pageBy(ctx, `id = ?`, id)
	}
	return c.pageBy(ctx, `slug = ?`, locator)
}

// PageByID returns one page by id.
func (c *Composer) PageByID(ctx context.Context, id int64) (*Page, error) {
	return c.pageBy(ctx, `id = ?`, id)
}

func (c *Composer) pageBy(ctx context.Context, where string, arg any) (*Page, error) {
	ctx, cancel := c.pools.WithTimeout(ctx)
	defer cancel()

	db, err := c.pools.DB(dbpool.DomainContent)
	if err != nil {
		return nil, err
	}
	p := &Page{}
	var parent sql.NullInt64
	err = db.QueryRowContext(ctx,
		`SELECT id, parent_id, title, slug, position, created_at, updated_at FROM pages WHERE `+where+` LIMIT 1`, arg).
		Scan(&p.ID, &parent, &p.Title, &p.Slug, &p.Position, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content: page %v: %w", arg, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("content: resolve page: %w: %w", apperr.ErrStorage, err)
	}
	if parent.Valid {
		p.ParentID = &parent.Int64
	}
	return p, nil
}

// CreatePage inserts a page. A duplicate slug fails with ErrConflict.
func (c *Composer) CreatePage(ctx context.Context, title, slug string, parentID *int64, position int64) (*Page, error) {
	title = strings.TrimSpace(title)
	slug = strings.TrimSpace(slug)
	if title == "" || slug == "" {
		return nil, fmt.Errorf("content: title and slug are required: %w", apperr.ErrValidation)
	}

	ctx, cancel := c.pools.WithTimeout(ctx)
	defer cancel()

	var parent any
	if parentID != nil {
		parent = *parentID
	}
	res, err := c.pools.ExecContext(ctx, dbpool.DomainContent,
		`INSERT INTO pages (parent_id, title, slug, position) VALUES (?, ?, ?, ?)`,
		parent, title, slug, position)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("content: slug %q: %w", slug, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("content: create page: %w: %w", apperr.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("content: create page id: %w", err)
	}
	return c.PageByID(ctx, id)
}

// ListBlocks returns a page's blocks with joined document metadata, ordered
// by (position, id). With includeDescendants the whole subtree under the
// page is traversed via the parent links and ordering becomes
// (page_id, position, id).
func (c *Composer) ListBlocks(ctx context.Context, pageID int64, includeDescendants bool) ([]Block, error) {
	ctx, cancel := c.pools.WithTimeout(ctx)
	defer cancel()

	var q string
	if includeDescendants {
		q = `
WITH RECURSIVE subtree(id) AS (
	SELECT id FROM pages WHERE id = ?
	UNION ALL
	SELECT p.id FROM pages p JOIN subtree s ON p.parent_id = s.id
)
SELECT b.id, b.page_id, b.kind, b.text_content, b.external_url, b.document_id,
       b.position, b.created_at, b.updated_at,
       d.file_name, d.mime_type, d.size_bytes, d.sha256
FROM content_blocks b
LEFT JOIN documents d ON d.id = b.document_id
WHERE b.page_id IN (SELECT id FROM subtree)
ORDER BY b.page_id, b.position, b.id`
	} else {
		q = `
SELECT b.id, b.page_id, b.kind, b.text_content, b.external_url, b.document_id,
       b.position, b.created_at, b.updated_at,
       d.file_name, d.mime_type, d.size_bytes, d.sha256
FROM content_blocks b
LEFT JOIN documents d ON d.id = b.document_id
WHERE b.page_id = ?
ORDER BY b.position, b.id`
	}

	rows, err := c.pools.QueryContext(ctx, dbpool.DomainContent, q, pageID)
	if err != nil {
		return nil, fmt.Errorf("content: list blocks: %w: %w", apperr.ErrStorage, err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// BlockByID returns one block with joined document metadata.
func (c *Composer) BlockByID(ctx context.Context, id int64) (*Block, error) {
	ctx, cancel := c.pools.WithTimeout(ctx)
	defer cancel()

	rows, err := c.pools.QueryContext(ctx, dbpool.DomainContent, `
SELECT b.id, b.page_id, b.kind, b.text_content, b.external_url, b.document_id,
       b.position, b.created_at, b.updated_at,
       d.file_name, d.mime_type, d.size_bytes, d.sha256
FROM content_blocks b
LEFT JOIN documents d ON d.id = b.document_id
WHERE b.id = ? LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("content: block %d: %w: %w", id, apperr.ErrStorage, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("content: block %d: %w", id, apperr.ErrNotFound)
	}
	return scanBlock(rows)
}

// DeleteBlock removes one block. Documents it referenced are retained.
func (c *Composer) DeleteBlock(ctx context.Context, id int64) error {
	ctx, cancel := c.pools.WithTimeout(ctx)
	defer cancel()

	res, err := c.pools.ExecContext(ctx, dbpool.DomainContent,
		`DELETE FROM content_blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("content: delete block %d: %w: %w", id, apperr.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("content: block %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// BatchIngest creates one block per descriptor in input order, appending
// after the page's current highest position. Binary payloads go through the
// document store and are deduplicated both within the request (per-request
// hash cache) and globally. An item with neither a matching upload nor a
// URL is skipped; item-level failures never abort siblings and earlier
// inserts are not rolled back.
func (c *Composer) BatchIngest(ctx context.Context, locator string, items []BlockItem, uploads map[string]Upload) (*BatchResult, error) {
	page, err := c.ResolvePage(ctx, locator)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("content: batch: page locator %q does not resolve: %w", locator, apperr.ErrValidation)
		}
		return nil, err
	}

	base, err := c.maxPosition(ctx, page.ID)
	if err != nil {
		return nil, err
	}

	// Uploads are addressable both by field key and by original file name.
	fileMap := make(map[string]Upload, len(uploads)*2)
	for key, up := range uploads {
		fileMap[key] = up
		if up.FileName != "" {
			fileMap[up.FileName] = up
		}
	}

	res := &BatchResult{
		OpID:             uuid.NewString(),
		PageID:           page.ID,
		CreatedDocuments: make(map[string]int64),
	}
	shaCache := make(map[string]int64)

	for i, item := range items {
		if err := item.Validate(); err != nil {
			res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: err.Error()})
			continue
		}
		pos := base + int64(len(res.CreatedBlocks)) + 1

		switch {
		case item.Kind.IsText():
			text := item.Text
			if text == "" {
				text = item.Label
			}
			b, err := c.insertBlock(ctx, page.ID, item.Kind, &text, nil, nil, pos)
			if err != nil {
				res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: err.Error()})
				continue
			}
			res.CreatedBlocks = append(res.CreatedBlocks, *b)

		case item.Kind.IsBinary():
			up, ok := c.matchUpload(fileMap, item)
			if !ok {
				if item.URL == "" {
					res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: "no matching upload and no url"})
					continue
				}
				var label *string
				if item.Label != "" {
					label = &item.Label
				}
				b, err := c.insertBlock(ctx, page.ID, item.Kind, label, &item.URL, nil, pos)
				if err != nil {
					res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: err.Error()})
					continue
				}
				res.CreatedBlocks = append(res.CreatedBlocks, *b)
				continue
			}

			sha := checksum.Sum(up.Data)
			docID, cached := shaCache[sha]
			if !cached {
				docID, err = c.docs.Ingest(ctx, up.Data, up.FileName, up.MimeType)
				if err != nil {
					res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: err.Error()})
					continue
				}
				shaCache[sha] = docID
			}
			res.CreatedDocuments[up.FileName] = docID

			label := item.Label
			if label == "" {
				label = up.FileName
			}
			b, err := c.insertBlock(ctx, page.ID, item.Kind, &label, nil, &docID, pos)
			if err != nil {
				res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: err.Error()})
				continue
			}
			res.CreatedBlocks = append(res.CreatedBlocks, *b)
		}
	}

	slog.Info("batch ingestion finished",
		slog.String("op_id", res.OpID),
		slog.Int64("page_id", page.ID),
		slog.Int("created_blocks", len(res.CreatedBlocks)),
		slog.Int("created_documents", len(res.CreatedDocuments)),
		slog.Int("skipped", len(res.Skipped)))
	return res, nil
}

// matchUpload resolves an item's payload by field key, then file name, then
// display label.
func (c *Composer) matchUpload(fileMap map[string]Upload, item BlockItem) (Upload, bool) {
	for _, key := range []string{item.FileKey, item.FileName, item.Label} {
		if key == "" {
			continue
		}
		if up, ok := fileMap[key]; ok {
			return up, true
		}
	}
	return Upload{}, false
}

func (c *Composer) maxPosition(ctx context.Context, pageID int64) (int64, error) {
	ctx, cancel := c.pools.WithTimeout(ctx)
	defer cancel()

	db, err := c.pools.DB(dbpool.DomainContent)
	if err != nil {
		return 0, err
	}
	var pos int64
	err = db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM content_blocks WHERE page_id = ?`, pageID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("content: max position: %w: %w", apperr.ErrStorage, err)
	}
	return pos, nil
}

func (c *Composer) insertBlock(ctx context.Context, pageID int64, kind Kind, text, url *string, docID *int64, pos int64) (*Block, error) {
	ctx, cancel := c.pools.WithTimeout(ctx)
	defer cancel()

	res, err := c.pools.ExecContext(ctx, dbpool.DomainContent,
		`INSERT INTO content_blocks (page_id, kind, text_content, external_url, document_id, position) VALUES (?, ?, ?, ?, ?, ?)`,
		pageID, string(kind), deref(text), deref(url), derefInt(docID), pos)
	if err != nil {
		return nil, fmt.Errorf("content: insert block: %w: %w", apperr.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return c.BlockByID(ctx, id)
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func scanBlock(rows *sql.Rows) (*Block, error) {
	b := &Block{}
	var (
		text, url      sql.NullString
		docID          sql.NullInt64
		fileName, mime sql.NullString
		sizeBytes      sql.NullInt64
		sha            sql.NullString
	)
	if err := rows.Scan(&b.ID, &b.PageID, &b.Kind, &text, &url, &docID,
		&b.Position, &b.CreatedAt, &b.UpdatedAt,
		&fileName, &mime, &sizeBytes, &sha); err != nil {
		return nil, fmt.Errorf("content: scan block: %w", err)
	}
	if text.Valid {
		b.TextContent = &text.String
	}
	if url.Valid {
		b.ExternalURL = &url.String
	}
	if docID.Valid {
		b.DocumentID = &docID.Int64
		b.Document = &DocumentMeta{
			ID:        docID.Int64,
			FileName:  fileName.String,
			MimeType:  mime.String,
			SizeBytes: sizeBytes.Int64,
			SHA256:    sha.String,
		}
	}
	return b, nil
}
