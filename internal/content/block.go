package content

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tkralj/gradivo/internal/apperr"
)

// Kind enumerates the block variants.
type Kind string

// Block kinds.
const (
	KindTitle    Kind = "title"
	KindSubtitle Kind = "subtitle"
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// IsText reports whether the kind carries inline text as its content source.
func (k Kind) IsText() bool {
	return k == KindTitle || k == KindSubtitle || k == KindText
}

// IsBinary reports whether the kind references a stored document or an
// external URL.
func (k Kind) IsBinary() bool {
	return k == KindImage || k == KindDocument
}

// Page is one node of the page tree. Root pages have a nil ParentID.
type Page struct {
	ID        int64     `json:"id"`
	ParentID  *int64    `json:"parent_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Position  int64     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Block is one ordered content block of a page. Exactly one of TextContent,
// ExternalURL, DocumentID is the content source, chosen by Kind.
type Block struct {
	ID          int64         `json:"id"`
	PageID      int64         `json:"page_id"`
	Kind        Kind          `json:"kind"`
	TextContent *string       `json:"text_content,omitempty"`
	ExternalURL *string       `json:"external_url,omitempty"`
	DocumentID  *int64        `json:"document_id,omitempty"`
	Position    int64         `json:"position"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Document    *DocumentMeta `json:"document,omitempty"`
}

// DocumentMeta is the stored-document metadata joined onto document blocks.
type DocumentMeta struct {
	ID        int64  `json:"id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// BlockItem is one batch-ingestion descriptor. Text kinds carry Text; binary
// kinds reference an uploaded payload by FileKey or FileName, or fall back
// to an external URL.
type BlockItem struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	Label    string `json:"label,omitempty"`
	FileKey  string `json:"file_key,omitempty"`
	FileName string `json:"file_name,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Validate enforces the per-kind required fields. Binary kinds are not
// required to name a payload here: matching against the request's uploads
// happens at ingestion time, and an unmatched item is skipped, not rejected.
func (it BlockItem) Validate() error {
	err := validation.ValidateStruct(&it,
		validation.Field(&it.Kind, validation.Required,
			validation.In(KindTitle, KindSubtitle, KindText, KindImage, KindDocument)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}
	if it.Kind.IsText() && it.Text == "" && it.Label == "" {
		return fmt.Errorf("%w: %s block requires text", apperr.ErrValidation, it.Kind)
	}
	return nil
}

// Upload is one binary payload accompanying a batch request, keyed by the
// caller-supplied field identifier.
type Upload struct {
	Data     []byte
	FileName string
	MimeType string
}

// SkippedItem records one batch descriptor that was not turned into a block,
// with the reason. Skips never abort sibling items.
type SkippedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of one batch ingestion. CreatedDocuments maps
// uploaded file names to their deduplicated document ids.
type BatchResult struct {
	OpID             string           `json:"op_id"`
	PageID           int64            `json:"page_id"`
	CreatedBlocks    []Block          `json:"created_blocks"`
	CreatedDocuments map[string]int64 `json:"created_documents"`
	Skipped          []SkippedItem    `json:"skipped,omitempty"`
}
