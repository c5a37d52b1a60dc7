// Package testutil provides shared test helpers for setting up the
// two-domain database fixture.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/tkralj/gradivo/internal/dbpool"
)

// TestPools creates temporary records and content databases that are
// automatically cleaned up.
func TestPools(t *testing.T) *dbpool.Pools {
	t.Helper()
	records := tempDBFile(t, "gradivo-records-test-*.db")
	content := tempDBFile(t, "gradivo-content-test-*.db")

	pools, err := dbpool.Open(records, content, 5*time.Second)
	if err != nil {
		t.Fatalf("dbpool.Open: %v", err)
	}
	t.Cleanup(func() { pools.Close() })
	return pools
}

func tempDBFile(t *testing.T, pattern string) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}
