package schema

import (
	"context"
	"testing"
	"time"

	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/testutil"
)

func TestColumnsKnownTable(t *testing.T) {
	pools := testutil.TestPools(t)
	in := New(pools, time.Minute)
	ctx := context.Background()

	cols := in.Columns(ctx, dbpool.DomainContent, "pages")
	for _, want := range []string{"id", "parent_id", "title", "slug", "position"} {
		if _, ok := cols[want]; !ok {
			t.Errorf("pages columns missing %q: %v", want, cols)
		}
	}
}

func TestColumnsStableAcrossCalls(t *testing.T) {
	pools := testutil.TestPools(t)
	in := New(pools, time.Minute)
	ctx := context.Background()

	first := in.Columns(ctx, dbpool.DomainRecords, "members")
	for i := 0; i < 5; i++ {
		again := in.Columns(ctx, dbpool.DomainRecords, "members")
		if len(again) != len(first) {
			t.Fatalf("call %d: columns changed: %d != %d", i, len(again), len(first))
		}
	}
}

func TestColumnsUnknownTable(t *testing.T) {
	pools := testutil.TestPools(t)
	in := New(pools, time.Minute)

	cols := in.Columns(context.Background(), dbpool.DomainRecords, "nope")
	if len(cols) != 0 {
		t.Errorf("expected empty set for unknown table, got %v", cols)
	}
}

func TestInvalidateObservesNewSchema(t *testing.T) {
	pools := testutil.TestPools(t)
	in := New(pools, time.Hour)
	ctx := context.Background()

	// Warm the cache with the table absent.
	if cols := in.Columns(ctx, dbpool.DomainRecords, "extras"); len(cols) != 0 {
		t.Fatalf("expected empty set before create, got %v", cols)
	}

	if _, err := pools.ExecContext(ctx, dbpool.DomainRecords,
		`CREATE TABLE extras (id INTEGER PRIMARY KEY, note TEXT)`); err != nil {
		t.Fatal(err)
	}

	// Still cached empty.
	if cols := in.Columns(ctx, dbpool.DomainRecords, "extras"); len(cols) != 0 {
		t.Fatalf("expected cached empty set, got %v", cols)
	}

	in.Invalidate(dbpool.DomainRecords, "extras")
	cols := in.Columns(ctx, dbpool.DomainRecords, "extras")
	if _, ok := cols["note"]; !ok {
		t.Errorf("expected fresh columns after invalidate, got %v", cols)
	}
}

func TestTTLExpiry(t *testing.T) {
	pools := testutil.TestPools(t)
	in := New(pools, 10*time.Millisecond)
	ctx := context.Background()

	if cols := in.Columns(ctx, dbpool.DomainRecords, "ttl_t"); len(cols) != 0 {
		t.Fatalf("expected empty set, got %v", cols)
	}
	if _, err := pools.ExecContext(ctx, dbpool.DomainRecords,
		`CREATE TABLE ttl_t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	cols := in.Columns(ctx, dbpool.DomainRecords, "ttl_t")
	if _, ok := cols["id"]; !ok {
		t.Errorf("expected rediscovery after TTL, got %v", cols)
	}
}
