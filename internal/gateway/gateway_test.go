package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tkralj/gradivo/internal/apperr"
	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/schema"
	"github.com/tkralj/gradivo/internal/testutil"
)

func testGateway(t *testing.T, domain dbpool.Domain) *Gateway {
	t.Helper()
	pools := testutil.TestPools(t)
	return New(pools, domain, schema.New(pools, time.Minute))
}

func TestSelectDiscoveryMode(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	res, err := g.Select(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := map[string]bool{"members": false, "news": false}
	for _, name := range res.Tables {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("table list missing %q: %v", name, res.Tables)
		}
	}
}

func TestSelectBlankTablesOnlyIsDiscovery(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	res, err := g.Select(context.Background(), []string{"", "  "}, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Tables) == 0 {
		t.Fatal("expected discovery mode for blank table names")
	}
}

func TestInsertEmptyFields(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	_, err := g.Insert(context.Background(), "members", Record{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	res, err := g.Select(context.Background(), []string{"members"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(res.Results["members"].Rows); n != 0 {
		t.Errorf("expected no rows written, got %d", n)
	}
}

func TestInsertBlankTableIsDiscovery(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	res, err := g.Insert(context.Background(), "  ", Record{"x": 1})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(res.Tables) == 0 {
		t.Fatal("expected table list for blank table name")
	}
}

func TestInsertSelectRoundTrip(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)
	ctx := context.Background()

	ins, err := g.Insert(ctx, "members", Record{
		"first_name": "Ana",
		"last_name":  "Horvat",
		"member_no":  "000123",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ins.InsertedID == 0 {
		t.Fatal("expected non-zero inserted id")
	}

	res, err := g.Select(ctx, []string{"members"}, []Cond{Eq("id", ins.InsertedID)})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	rows := res.Results["members"].Rows
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := rows[0]["first_name"]; got != "Ana" {
		t.Errorf("first_name = %v, want Ana", got)
	}
}

func TestInsertSerializesCompositeValues(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)
	ctx := context.Background()

	ins, err := g.Insert(ctx, "news", Record{
		"title": "skupstina",
		"body":  map[string]any{"sections": []string{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res, err := g.Select(ctx, []string{"news"}, []Cond{Eq("id", ins.InsertedID)})
	if err != nil {
		t.Fatal(err)
	}
	body, _ := res.Results["news"].Rows[0]["body"].(string)
	if body != `{"sections":["a","b"]}` {
		t.Errorf("body = %q, want JSON text", body)
	}
}

func TestSelectPerTableFailureIsolation(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	res, err := g.Select(context.Background(), []string{"members", "missing_table"}, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if tr := res.Results["members"]; tr.Err != "" {
		t.Errorf("members should succeed, got error %q", tr.Err)
	}
	if tr := res.Results["missing_table"]; tr.Err == "" {
		t.Error("missing_table should carry an inline error")
	}
}

func TestUpdateMissingRowAffectsZero(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	res, err := g.Update(context.Background(), "members",
		[]Cond{Eq("id", 99999)}, Record{"first_name": "Ivo"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Affected != 0 {
		t.Errorf("affected = %d, want 0", res.Affected)
	}
}

func TestUpdateRequiresPredicate(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	_, err := g.Update(context.Background(), "members", nil, Record{"first_name": "Ivo"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)
	ctx := context.Background()

	ins, err := g.Insert(ctx, "members", Record{"first_name": "Marko"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.Delete(ctx, "members", []Cond{Eq("id", ins.InsertedID)})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.Affected != 1 {
		t.Errorf("affected = %d, want 1", res.Affected)
	}
}

func TestCondRejectsUnknownOperator(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	res, err := g.Select(context.Background(), []string{"members"},
		[]Cond{{Field: "id", Op: "; DROP TABLE members", Value: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Results["members"].Err == "" {
		t.Fatal("expected inline error for forbidden operator")
	}
}

func TestCondRejectsUnknownColumn(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	_, err := g.Update(context.Background(), "members",
		[]Cond{Eq("evil\" = 1 --", 1)}, Record{"first_name": "x"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFilterFields(t *testing.T) {
	g := testGateway(t, dbpool.DomainRecords)

	out := g.FilterFields(context.Background(), "members", Record{
		"first_name": "Ana",
		"bogus":      "x",
	})
	if _, ok := out["bogus"]; ok {
		t.Error("bogus column should be filtered out")
	}
	if out["first_name"] != "Ana" {
		t.Error("known column should survive filtering")
	}
}
