// Package schema discovers and caches the legal column set of dynamic tables.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tkralj/gradivo/internal/dbpool"
)

// Introspector resolves table column sets per domain with a TTL cache.
//
// Columns never fails: any discovery problem (unknown table, connectivity,
// empty probe) yields an empty set, meaning "nothing is whitelisted".
type Introspector struct {
	pools *dbpool.Pools
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]entry
	group singleflight.Group
}

type entry struct {
	cols    map[string]struct{}
	expires time.Time
}

// New creates an Introspector backed by the given pools. Cached column sets
// expire after ttl and are re-discovered on next access.
func New(pools *dbpool.Pools, ttl time.Duration) *Introspector {
	return &Introspector{
		pools: pools,
		ttl:   ttl,
		cache: make(map[string]entry),
	}
}

// Columns returns the set of column names for table in domain. The returned
// map is shared and must not be mutated by callers.
func (in *Introspector) Columns(ctx context.Context, domain dbpool.Domain, table string) map[string]struct{} {
	key := string(domain) + ":" + table

	in.mu.RLock()
	e, ok := in.cache[key]
	in.mu.RUnlock()
	if ok && time.Now().Before(e.expires) {
		return e.cols
	}

	// Collapse concurrent cold-key discoveries into one query.
	v, _, _ := in.group.Do(key, func() (any, error) {
		cols := in.discover(ctx, domain, table)
		in.mu.Lock()
		in.cache[key] = entry{cols: cols, expires: time.Now().Add(in.ttl)}
		in.mu.Unlock()
		return cols, nil
	})
	return v.(map[string]struct{})
}

// Invalidate drops the cached column set for one table.
func (in *Introspector) Invalidate(domain dbpool.Domain, table string) {
	in.mu.Lock()
	delete(in.cache, string(domain)+":"+table)
	in.mu.Unlock()
}

// InvalidateAll drops every cached column set.
func (in *Introspector) InvalidateAll() {
	in.mu.Lock()
	in.cache = make(map[string]entry)
	in.mu.Unlock()
}

// discover tries schema metadata first, then falls back to a LIMIT 1 probe.
// An unknown table or an empty probe result yields an empty set.
func (in *Introspector) discover(ctx context.Context, domain dbpool.Domain, table string) map[string]struct{} {
	ctx, cancel := in.pools.WithTimeout(ctx)
	defer cancel()

	if cols := in.fromTableInfo(ctx, domain, table); len(cols) > 0 {
		return cols
	}
	return in.fromProbe(ctx, domain, table)
}

// fromTableInfo reads column names from the pragma_table_info metadata
// function. Preferred: schema-only and works for empty tables.
func (in *Introspector) fromTableInfo(ctx context.Context, domain dbpool.Domain, table string) map[string]struct{} {
	rows, err := in.pools.QueryContext(ctx, domain, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil
		}
		if name = strings.TrimSpace(name); name != "" {
			cols[name] = struct{}{}
		}
	}
	if rows.Err() != nil {
		return nil
	}
	return cols
}

// fromProbe derives column names from a bounded SELECT against the table
// itself. An empty table yields an empty set through this path.
func (in *Introspector) fromProbe(ctx context.Context, domain dbpool.Domain, table string) map[string]struct{} {
	q := fmt.Sprintf(`SELECT * FROM %s LIMIT 1`, dbpool.QuoteIdent(table))
	rows, err := in.pools.QueryContext(ctx, domain, q)
	if err != nil {
		return map[string]struct{}{}
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	if !rows.Next() {
		return cols
	}
	names, err := rows.Columns()
	if err != nil {
		return cols
	}
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			cols[name] = struct{}{}
		}
	}
	return cols
}
