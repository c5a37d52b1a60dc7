// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes administrative tools over the data gateway and page composer via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tkralj/gradivo/internal/content"
	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/gateway"
)

// Server wraps the MCP server with gradivo tools.
type Server struct {
	mcp      *server.MCPServer
	gateways map[dbpool.Domain]*gateway.Gateway
	composer *content.Composer
}

// New creates a new MCP server with all tools registered.
func New(gateways map[dbpool.Domain]*gateway.Gateway, composer *content.Composer) *Server {
	s := &Server{gateways: gateways, composer: composer}

	s.mcp = server.NewMCPServer(
		"Gradivo",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tables",
		mcp.WithDescription("List the tables of a logical database domain."),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Domain name: records or content")),
	), s.listTables)

	s.mcp.AddTool(mcp.NewTool("query_table",
		mcp.WithDescription("Select rows from one table, optionally filtered by a single field/op/value predicate."),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Domain name: records or content")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithString("field", mcp.Description("Optional predicate column")),
		mcp.WithString("op", mcp.Description("Predicate operator (default =)")),
		mcp.WithString("value", mcp.Description("Predicate value")),
	), s.queryTable)

	s.mcp.AddTool(mcp.NewTool("get_page",
		mcp.WithDescription("Resolve a page by numeric id or slug."),
		mcp.WithString("locator", mcp.Required(), mcp.Description("Page id or slug")),
	), s.getPage)

	s.mcp.AddTool(mcp.NewTool("list_page_blocks",
		mcp.WithDescription("List a page's ordered content blocks with document metadata."),
		mcp.WithString("locator", mcp.Required(), mcp.Description("Page id or slug")),
		mcp.WithString("children", mcp.Description("Set to true to include the page's whole subtree")),
	), s.listPageBlocks)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) gw(req mcp.CallToolRequest) (*gateway.Gateway, error) {
	name, err := req.RequireString("domain")
	if err != nil {
		return nil, err
	}
	g, ok := s.gateways[dbpool.Domain(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown domain: %s", name)
	}
	return g, nil
}

func (s *Server) listTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.gw(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tables, err := g.Tables(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(tables, "\n")), nil
}

func (s *Server) queryTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.gw(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	table, err := req.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var conds []gateway.Cond
	if field, fieldErr := req.RequireString("field"); fieldErr == nil && field != "" {
		op := "="
		if o, opErr := req.RequireString("op"); opErr == nil && o != "" {
			op = o
		}
		value := ""
		if v, valErr := req.RequireString("value"); valErr == nil {
			value = v
		}
		conds = append(conds, gateway.Cond{Field: field, Op: op, Value: value})
	}

	res, err := g.Select(ctx, []string{table}, conds)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	locator, err := req.RequireString("locator")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.composer.ResolvePage(ctx, locator)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(page, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPageBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	locator, err := req.RequireString("locator")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	includeDescendants := false
	if v, childErr := req.RequireString("children"); childErr == nil {
		includeDescendants, _ = strconv.ParseBool(v)
	}

	page, err := s.composer.ResolvePage(ctx, locator)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blocks, err := s.composer.ListBlocks(ctx, page.ID, includeDescendants)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(blocks, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
