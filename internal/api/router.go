// Package api wires the core gateway, composer, and document store to HTTP.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/tkralj/gradivo/internal/content"
	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/docstore"
	"github.com/tkralj/gradivo/internal/gateway"
	"github.com/tkralj/gradivo/internal/schema"
)

// Handler holds API route handlers.
type Handler struct {
	gateways map[dbpool.Domain]*gateway.Gateway
	intro    *schema.Introspector
	composer *content.Composer
	docs     *docstore.Store
}

// NewHandler creates a new Handler.
func NewHandler(gateways map[dbpool.Domain]*gateway.Gateway, intro *schema.Introspector, composer *content.Composer, docs *docstore.Store) *Handler {
	return &Handler{gateways: gateways, intro: intro, composer: composer, docs: docs}
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(gateways map[dbpool.Domain]*gateway.Gateway, intro *schema.Introspector, composer *content.Composer, docs *docstore.Store) chi.Router {
	h := NewHandler(gateways, intro, composer, docs)

	r := chi.NewRouter()

	// Generic table CRUD per domain.
	r.Get("/db/{domain}", h.ListTables)
	r.Get("/db/{domain}/{table}", h.SelectTable)
	r.Post("/db/{domain}/{table}", h.InsertRow)
	r.Put("/db/{domain}/{table}/{id}", h.UpdateRow)
	r.Delete("/db/{domain}/{table}/{id}", h.DeleteRow)

	// Pages and blocks.
	r.Post("/pages", h.CreatePage)
	r.Get("/pages/{locator}/blocks", h.ListPageBlocks)
	r.Delete("/blocks/{id}", h.DeleteBlock)
	r.Get("/blocks/{id}/download", h.DownloadBlock)

	// Documents.
	r.Post("/documents/batch", h.BatchIngest)
	r.Get("/documents/{id}/download", h.DownloadDocument)

	// Administration.
	r.Post("/admin/schema/invalidate", h.InvalidateSchema)
	r.Post("/admin/documents/sweep", h.SweepOrphans)

	return r
}
