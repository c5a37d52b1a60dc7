// Package dbpool owns one pooled SQLite handle per logical database domain.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Domain identifies one logical database. Every statement issued through a
// gateway targets exactly one domain; cross-domain joins are impossible by
// construction.
type Domain string

// Known domains.
const (
	// DomainRecords holds membership records and news items.
	DomainRecords Domain = "records"
	// DomainContent holds the page tree, content blocks, and documents.
	DomainContent Domain = "content"
)

// Valid reports whether d names a known domain.
func (d Domain) Valid() bool {
	return d == DomainRecords || d == DomainContent
}

// Pools holds one *sql.DB per domain plus the statement timeout applied to
// every database call made through it.
type Pools struct {
	dbs         map[Domain]*sql.DB
	stmtTimeout time.Duration
}

// Open opens (or creates) both domain databases, applies their bootstrap
// schemas, and returns the pool set.
func Open(recordsPath, contentPath string, stmtTimeout time.Duration) (*Pools, error) {
	p := &Pools{
		dbs:         make(map[Domain]*sql.DB, 2),
		stmtTimeout: stmtTimeout,
	}
	for _, d := range []struct {
		domain Domain
		path   string
		schema string
	}{
		{DomainRecords, recordsPath, recordsSchemaSQL},
		{DomainContent, contentPath, contentSchemaSQL},
	} {
		conn, err := open(d.path, d.schema)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("dbpool: open %s: %w", d.domain, err)
		}
		p.dbs[d.domain] = conn
	}
	return p, nil
}

func open(path, schema string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return conn, nil
}

// DB returns the handle for a domain.
func (p *Pools) DB(domain Domain) (*sql.DB, error) {
	db, ok := p.dbs[domain]
	if !ok {
		return nil, fmt.Errorf("dbpool: unknown domain %q", domain)
	}
	return db, nil
}

// WithTimeout derives a context carrying the configured statement timeout.
// Callers must invoke the returned cancel func once the operation, including
// any row iteration, has finished.
func (p *Pools) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.stmtTimeout)
}

// QueryContext runs a parameterized query against a domain.
func (p *Pools) QueryContext(ctx context.Context, domain Domain, query string, args ...any) (*sql.Rows, error) {
	db, err := p.DB(domain)
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

// ExecContext runs a parameterized statement against a domain.
func (p *Pools) ExecContext(ctx context.Context, domain Domain, query string, args ...any) (sql.Result, error) {
	db, err := p.DB(domain)
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

// Close closes every open domain handle, returning the first error seen.
func (p *Pools) Close() error {
	var first error
	for _, db := range p.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
