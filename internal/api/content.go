package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tkralj/gradivo/internal/content"
	"github.com/tkralj/gradivo/internal/docstore"
)

const maxUploadBytes = 100 << 20 // 100 MB

// CreatePage handles POST /api/pages.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Title    string `json:"title"`
		Slug     string `json:"slug"`
		ParentID *int64 `json:"parent_id"`
		Position int64  `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	page, err := h.composer.CreatePage(r.Context(), req.Title, req.Slug, req.ParentID, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

// ListPageBlocks handles GET /api/pages/{locator}/blocks. The locator is a
// numeric page id or a slug; children=true includes the page's subtree.
func (h *Handler) ListPageBlocks(w http.ResponseWriter, r *http.Request) {
	page, err := h.composer.ResolvePage(r.Context(), chi.URLParam(r, "locator"))
	if err != nil {
		writeError(w, err)
		return
	}
	includeDescendants, _ := strconv.ParseBool(r.URL.Query().Get("children"))

	blocks, err := h.composer.ListBlocks(r.Context(), page.ID, includeDescendants)
	if err != nil {
		writeError(w, err)
		return
	}
	if blocks == nil {
		blocks = []content.Block{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page":   page,
		"blocks": blocks,
	})
}

// BatchIngest handles POST /api/documents/batch (multipart/form-data).
// The "items" field carries the JSON descriptor list; file parts are matched
// against descriptors by field name or file name. Without an items field,
// one document descriptor is synthesized per file part.
func (h *Handler) BatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("upload too large or invalid multipart"))
		return
	}

	locator := r.FormValue("pageId")
	if locator == "" {
		locator = r.FormValue("pageSlug")
	}
	if locator == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("pageId or pageSlug is required"))
		return
	}

	uploads := make(map[string]content.Upload)
	var fileKeys []string
	if r.MultipartForm != nil {
		for key, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			hdr := headers[0]
			f, err := hdr.Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("unreadable file part: "+key))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("unreadable file part: "+key))
				return
			}
			uploads[key] = content.Upload{
				Data:     data,
				FileName: hdr.Filename,
				MimeType: hdr.Header.Get("Content-Type"),
			}
			fileKeys = append(fileKeys, key)
		}
	}

	var items []content.BlockItem
	if raw := r.FormValue("items"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("field 'items' is not a valid JSON array"))
			return
		}
	} else {
		for _, key := range fileKeys {
			items = append(items, content.BlockItem{
				Kind:    content.KindDocument,
				Label:   uploads[key].FileName,
				FileKey: key,
			})
		}
	}

	res, err := h.composer.BatchIngest(r.Context(), locator, items, uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// DownloadDocument handles GET /api/documents/{id}/download, streaming the
// stored bytes with the stored MIME type and a disposition derived from the
// stored file name.
func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	doc, err := h.docs.Retrieve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	serveDocument(w, doc)
}

// DownloadBlock handles GET /api/blocks/{id}/download: a document block
// streams its stored document, an external-URL block redirects.
func (h *Handler) DownloadBlock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	block, err := h.composer.BlockByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	switch {
	case block.DocumentID != nil:
		doc, err := h.docs.Retrieve(r.Context(), *block.DocumentID)
		if err != nil {
			writeError(w, err)
			return
		}
		serveDocument(w, doc)
	case block.ExternalURL != nil:
		http.Redirect(w, r, *block.ExternalURL, http.StatusFound)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("block has neither a document nor an external url"))
	}
}

// DeleteBlock handles DELETE /api/blocks/{id}.
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	if err := h.composer.DeleteBlock(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SweepOrphans handles POST /api/admin/documents/sweep.
func (h *Handler) SweepOrphans(w http.ResponseWriter, r *http.Request) {
	n, err := h.docs.SweepOrphans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func serveDocument(w http.ResponseWriter, doc *docstore.Document) {
	for k, v := range docstore.DispositionHeaders(doc) {
		w.Header().Set(k, v)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}
