package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tkralj/gradivo/internal/apperr"
	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/gateway"
)

// gw resolves the gateway for the {domain} URL parameter.
func (h *Handler) gw(r *http.Request) (*gateway.Gateway, error) {
	domain := dbpool.Domain(chi.URLParam(r, "domain"))
	g, ok := h.gateways[domain]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q: %w", domain, apperr.ErrValidation)
	}
	return g, nil
}

// ListTables handles GET /api/db/{domain} (discovery mode).
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	g, err := h.gw(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := g.Select(r.Context(), nil, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": res.Tables})
}

// SelectTable handles GET /api/db/{domain}/{table} with an optional
// field/op/value query predicate.
func (h *Handler) SelectTable(w http.ResponseWriter, r *http.Request) {
	g, err := h.gw(r)
	if err != nil {
		writeError(w, err)
		return
	}
	table := chi.URLParam(r, "table")

	var conds []gateway.Cond
	q := r.URL.Query()
	if field := q.Get("field"); field != "" {
		op := q.Get("op")
		if op == "" {
			op = "="
		}
		conds = append(conds, gateway.Cond{Field: field, Op: op, Value: q.Get("value")})
	}

	res, err := g.Select(r.Context(), strings.Split(table, ","), conds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// InsertRow handles POST /api/db/{domain}/{table}. The field map is
// whitelisted against the introspected columns before insertion.
func (h *Handler) InsertRow(w http.ResponseWriter, r *http.Request) {
	g, err := h.gw(r)
	if err != nil {
		writeError(w, err)
		return
	}
	table := chi.URLParam(r, "table")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var fields gateway.Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	res, err := g.Insert(r.Context(), table, g.FilterFields(r.Context(), table, fields))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// UpdateRow handles PUT /api/db/{domain}/{table}/{id}. Zero affected rows is
// reported as such, not as an error.
func (h *Handler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	g, err := h.gw(r)
	if err != nil {
		writeError(w, err)
		return
	}
	table := chi.URLParam(r, "table")
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var fields gateway.Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	res, err := g.Update(r.Context(), table,
		[]gateway.Cond{gateway.Eq("id", id)},
		g.FilterFields(r.Context(), table, fields))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteRow handles DELETE /api/db/{domain}/{table}/{id}.
func (h *Handler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	g, err := h.gw(r)
	if err != nil {
		writeError(w, err)
		return
	}
	table := chi.URLParam(r, "table")
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}

	res, err := g.Delete(r.Context(), table, []gateway.Cond{gateway.Eq("id", id)})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// InvalidateSchema handles POST /api/admin/schema/invalidate. With a table
// query parameter it busts one cache entry, otherwise the whole cache.
func (h *Handler) InvalidateSchema(w http.ResponseWriter, r *http.Request) {
	domain := dbpool.Domain(r.URL.Query().Get("domain"))
	table := r.URL.Query().Get("table")

	if domain != "" && table != "" {
		h.intro.Invalidate(domain, table)
	} else {
		h.intro.InvalidateAll()
	}
	w.WriteHeader(http.StatusNoContent)
}
