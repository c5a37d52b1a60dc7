// Package gateway implements generic, schema-validated CRUD over the
// dynamic tables of one logical database domain.
package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tkralj/gradivo/internal/apperr"
	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/schema"
)

// Record is one row as a column-to-value mapping.
type Record map[string]any

// TableResult holds the outcome of one table inside a multi-table select.
// A failing table carries its error inline; it never aborts sibling tables.
type TableResult struct {
	Rows []Record `json:"rows,omitempty"`
	Err  string   `json:"error,omitempty"`
}

// SelectResult is the outcome of Select. When the request named no tables,
// Tables lists every table in the domain instead (discovery mode).
type SelectResult struct {
	Tables  []string               `json:"tables,omitempty"`
	Results map[string]TableResult `json:"results,omitempty"`
}

// InsertResult is the outcome of Insert. Tables is populated only for the
// blank-table discovery shortcut.
type InsertResult struct {
	InsertedID int64    `json:"inserted_id,omitempty"`
	Tables     []string `json:"tables,omitempty"`
}

// ExecResult is the outcome of Update and Delete. Affected of 0 is success;
// callers must check the count rather than assume a row changed.
type ExecResult struct {
	Affected int64    `json:"affected_rows"`
	Tables   []string `json:"tables,omitempty"`
}

// Gateway issues validated statements against exactly one domain.
type Gateway struct {
	pools  *dbpool.Pools
	domain dbpool.Domain
	intro  *schema.Introspector
}

// New creates a Gateway bound to one domain.
func New(pools *dbpool.Pools, domain dbpool.Domain, intro *schema.Introspector) *Gateway {
	return &Gateway{pools: pools, domain: domain, intro: intro}
}

// Domain returns the domain this gateway is bound to.
func (g *Gateway) Domain() dbpool.Domain {
	return g.domain
}

// Introspector returns the schema introspector, so callers can pre-filter
// field maps before Insert and Update.
func (g *Gateway) Introspector() *schema.Introspector {
	return g.intro
}

// Tables lists every user table in the domain.
func (g *Gateway) Tables(ctx context.Context) ([]string, error) {
	ctx, cancel := g.pools.WithTimeout(ctx)
	defer cancel()

	rows, err := g.pools.QueryContext(ctx, g.domain,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("gateway: list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Select queries each requested table independently and concurrently. A
// per-table failure is reported inline for that table only. An empty table
// list switches to discovery mode and returns the domain's table names.
func (g *Gateway) Select(ctx context.Context, tables []string, conds []Cond) (*SelectResult, error) {
	wanted := make([]string, 0, len(tables))
	for _, t := range tables {
		if t = strings.TrimSpace(t); t != "" {
			wanted = append(wanted, t)
		}
	}
	if len(wanted) == 0 {
		list, err := g.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return &SelectResult{Tables: list}, nil
	}

	res := &SelectResult{Results: make(map[string]TableResult, len(wanted))}
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for _, table := range wanted {
		eg.Go(func() error {
			tr := g.selectOne(egCtx, table, conds)
			mu.Lock()
			res.Results[table] = tr
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait() // goroutines never return errors; failures are inline
	return res, nil
}

func (g *Gateway) selectOne(ctx context.Context, table string, conds []Cond) TableResult {
	where, args, err := g.compileConds(ctx, table, conds)
	if err != nil {
		return TableResult{Err: err.Error()}
	}

	ctx, cancel := g.pools.WithTimeout(ctx)
	defer cancel()

	q := `SELECT * FROM ` + dbpool.QuoteIdent(table) + where
	rows, err := g.pools.QueryContext(ctx, g.domain, q, args...)
	if err != nil {
		return TableResult{Err: err.Error()}
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return TableResult{Err: err.Error()}
	}
	return TableResult{Rows: records}
}

// Insert writes one row. A blank table name is the discovery shortcut; an
// empty field map fails with ErrValidation before touching the database.
func (g *Gateway) Insert(ctx context.Context, table string, fields Record) (*InsertResult, error) {
	if strings.TrimSpace(table) == "" {
		list, err := g.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return &InsertResult{Tables: list}, nil
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("gateway: insert into %s: no data: %w", table, apperr.ErrValidation)
	}

	cols := make([]string, 0, len(fields))
	holders := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for k, v := range fields {
		cols = append(cols, dbpool.QuoteIdent(k))
		holders = append(holders, "?")
		args = append(args, normalizeValue(v))
	}

	ctx, cancel := g.pools.WithTimeout(ctx)
	defer cancel()

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		dbpool.QuoteIdent(table), strings.Join(cols, ", "), strings.Join(holders, ", "))
	res, err := g.pools.ExecContext(ctx, g.domain, q, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: insert into %s: %w: %w", table, apperr.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("gateway: insert id: %w", err)
	}
	return &InsertResult{InsertedID: id}, nil
}

// Update modifies rows matching conds. Zero affected rows is success. At
// least one predicate is required; a full-table update must be spelled out
// by the caller through an always-true predicate, never implied.
func (g *Gateway) Update(ctx context.Context, table string, conds []Cond, fields Record) (*ExecResult, error) {
	if strings.TrimSpace(table) == "" {
		list, err := g.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Tables: list}, nil
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("gateway: update %s: no data: %w", table, apperr.ErrValidation)
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("gateway: update %s: predicate required: %w", table, apperr.ErrValidation)
	}

	where, whereArgs, err := g.compileConds(ctx, table, conds)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+len(whereArgs))
	for k, v := range fields {
		sets = append(sets, dbpool.QuoteIdent(k)+" = ?")
		args = append(args, normalizeValue(v))
	}
	args = append(args, whereArgs...)

	ctx, cancel := g.pools.WithTimeout(ctx)
	defer cancel()

	q := fmt.Sprintf(`UPDATE %s SET %s%s`, dbpool.QuoteIdent(table), strings.Join(sets, ", "), where)
	res, err := g.pools.ExecContext(ctx, g.domain, q, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: update %s: %w: %w", table, apperr.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("gateway: update rows affected: %w", err)
	}
	return &ExecResult{Affected: n}, nil
}

// Delete removes rows matching conds. Same predicate requirement as Update.
func (g *Gateway) Delete(ctx context.Context, table string, conds []Cond) (*ExecResult, error) {
	if strings.TrimSpace(table) == "" {
		list, err := g.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Tables: list}, nil
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("gateway: delete from %s: predicate required: %w", table, apperr.ErrValidation)
	}

	where, args, err := g.compileConds(ctx, table, conds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := g.pools.WithTimeout(ctx)
	defer cancel()

	q := `DELETE FROM ` + dbpool.QuoteIdent(table) + where
	res, err := g.pools.ExecContext(ctx, g.domain, q, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: delete from %s: %w: %w", table, apperr.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("gateway: delete rows affected: %w", err)
	}
	return &ExecResult{Affected: n}, nil
}

// FilterFields returns a copy of fields restricted to the table's
// introspected columns. Handlers call this before Insert and Update.
func (g *Gateway) FilterFields(ctx context.Context, table string, fields Record) Record {
	cols := g.intro.Columns(ctx, g.domain, table)
	out := make(Record, len(fields))
	for k, v := range fields {
		if _, ok := cols[k]; ok {
			out[k] = v
		}
	}
	return out
}

// normalizeValue serializes composite values (slices, maps, structs) to a
// JSON text representation before storage. Scalars and raw bytes pass
// through unchanged.
func normalizeValue(v any) any {
	switch v.(type) {
	case nil, string, []byte, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// scanRecords reads every row into a Record keyed by column name.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			// The driver hands TEXT back as []byte, which encoding/json
			// would render as base64.
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = vals[i]
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
