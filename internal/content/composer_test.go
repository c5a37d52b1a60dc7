package content

import (
	"context"
	"errors"
	"testing"

	"github.com/tkralj/gradivo/internal/apperr"
	"github.com/tkralj/gradivo/internal/docstore"
	"github.com/tkralj/gradivo/internal/testutil"
)

func testComposer(t *testing.T) *Composer {
	t.Helper()
	pools := testutil.TestPools(t)
	return New(pools, docstore.New(pools))
}

func mustPage(t *testing.T, c *Composer, title, slug string, parentID *int64) *Page {
	t.Helper()
	p, err := c.CreatePage(context.Background(), title, slug, parentID, 0)
	if err != nil {
		t.Fatalf("CreatePage %s: %v", slug, err)
	}
	return p
}

func TestResolvePageByIDAndSlug(t *testing.T) {
	c := testComposer(t)
	ctx := context.Background()
	p := mustPage(t, c, "Home", "home", nil)

	byID, err := c.ResolvePage(ctx, "1")
	if err != nil || byID.ID != p.ID {
		t.Fatalf("resolve by id: %v %+v", err, byID)
	}
	bySlug, err := c.ResolvePage(ctx, "home")
	if err != nil || bySlug.ID != p.ID {
		t.Fatalf("resolve by slug: %v %+v", err, bySlug)
	}
	if _, err := c.ResolvePage(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreatePageSlugConflict(t *testing.T) {
	c := testComposer(t)
	mustPage(t, c, "One", "dup", nil)
	_, err := c.CreatePage(context.Background(), "Two", "dup", nil, 0)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBatchIngestPreservesOrder(t *testing.T) {
	c := testComposer(t)
	mustPage(t, c, "Docs", "docs", nil)

	items := []BlockItem{
		{Kind: KindTitle, Text: "Statut"},
		{Kind: KindText, Text: "Uvod"},
		{Kind: KindDocument, FileKey: "f1"},
		{Kind: KindImage, URL: "https://example.com/grb.png"},
	}
	uploads := map[string]Upload{
		"f1": {Data: []byte("pdf bytes"), FileName: "statut.pdf", MimeType: "application/pdf"},
	}

	res, err := c.BatchIngest(context.Background(), "docs", items, uploads)
	if err != nil {
		t.Fatalf("BatchIngest: %v", err)
	}
	if len(res.CreatedBlocks) != 4 {
		t.Fatalf("created = %d, want 4", len(res.CreatedBlocks))
	}
	for i := 1; i < len(res.CreatedBlocks); i++ {
		if res.CreatedBlocks[i].Position <= res.CreatedBlocks[i-1].Position {
			t.Fatalf("positions not strictly increasing: %d then %d",
				res.CreatedBlocks[i-1].Position, res.CreatedBlocks[i].Position)
		}
	}
	if res.CreatedBlocks[0].Kind != KindTitle || res.CreatedBlocks[3].Kind != KindImage {
		t.Error("block order does not match input order")
	}
	if res.CreatedDocuments["statut.pdf"] == 0 {
		t.Error("expected created document id for statut.pdf")
	}
}

func TestBatchIngestAppendsAfterExistingBlocks(t *testing.T) {
	c := testComposer(t)
	mustPage(t, c, "P", "p", nil)
	ctx := context.Background()

	first, err := c.BatchIngest(ctx, "p", []BlockItem{{Kind: KindText, Text: "a"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.BatchIngest(ctx, "p", []BlockItem{{Kind: KindText, Text: "b"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.CreatedBlocks[0].Position <= first.CreatedBlocks[0].Position {
		t.Errorf("second batch should append after first: %d <= %d",
			second.CreatedBlocks[0].Position, first.CreatedBlocks[0].Position)
	}
}

func TestBatchIngestDeduplicatesWithinRequest(t *testing.T) {
	c := testComposer(t)
	mustPage(t, c, "Dl", "dl", nil)
	payload := []byte("identical ten")

	items := []BlockItem{
		{Kind: KindDocument, FileKey: "f1"},
		{Kind: KindDocument, FileKey: "f2"},
	}
	uploads := map[string]Upload{
		"f1": {Data: payload, FileName: "one.pdf", MimeType: "application/pdf"},
		"f2": {Data: payload, FileName: "two.pdf", MimeType: "application/pdf"},
	}

	res, err := c.BatchIngest(context.Background(), "dl", items, uploads)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CreatedBlocks) != 2 {
		t.Fatalf("created = %d, want 2", len(res.CreatedBlocks))
	}
	if *res.CreatedBlocks[0].DocumentID != *res.CreatedBlocks[1].DocumentID {
		t.Error("both blocks should reference the same document")
	}
	if res.CreatedDocuments["one.pdf"] != res.CreatedDocuments["two.pdf"] {
		t.Error("both file names should map to one document id")
	}
}

func TestBatchIngestSkipsUnmatchedItem(t *testing.T) {
	c := testComposer(t)
	mustPage(t, c, "S", "s", nil)

	items := []BlockItem{
		{Kind: KindText, Text: "kept"},
		{Kind: KindDocument, FileKey: "nope"},
		{Kind: KindText, Text: "also kept"},
	}
	res, err := c.BatchIngest(context.Background(), "s", items, nil)
	if err != nil {
		t.Fatalf("batch should not fail as a whole: %v", err)
	}
	if len(res.CreatedBlocks) != 2 {
		t.Fatalf("created = %d, want 2", len(res.CreatedBlocks))
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Index != 1 {
		t.Fatalf("skipped = %+v, want item 1", res.Skipped)
	}
}

func TestBatchIngestUnresolvableLocator(t *testing.T) {
	c := testComposer(t)
	_, err := c.BatchIngest(context.Background(), "ghost", []BlockItem{{Kind: KindText, Text: "x"}}, nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestListBlocksSubtree(t *testing.T) {
	c := testComposer(t)
	ctx := context.Background()

	root := mustPage(t, c, "Root", "root", nil)
	child := mustPage(t, c, "Child", "child", &root.ID)
	grand := mustPage(t, c, "Grand", "grand", &child.ID)

	for _, tc := range []struct {
		slug string
		text string
	}{
		{"root", "r1"}, {"child", "c1"}, {"grand", "g1"}, {"root", "r2"},
	} {
		if _, err := c.BatchIngest(ctx, tc.slug, []BlockItem{{Kind: KindText, Text: tc.text}}, nil); err != nil {
			t.Fatal(err)
		}
	}

	own, err := c.ListBlocks(ctx, root.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 2 {
		t.Fatalf("own blocks = %d, want 2", len(own))
	}

	all, err := c.ListBlocks(ctx, root.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("subtree blocks = %d, want 4", len(all))
	}

	// Superset of the page's own blocks.
	ownIDs := make(map[int64]bool)
	for _, b := range own {
		ownIDs[b.ID] = true
	}
	found := 0
	for _, b := range all {
		if ownIDs[b.ID] {
			found++
		}
	}
	if found != len(own) {
		t.Error("subtree listing must include every own block")
	}

	// Ordered by (page_id, position, id).
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if cur.PageID < prev.PageID {
			t.Fatal("subtree listing not ordered by page_id")
		}
		if cur.PageID == prev.PageID && cur.Position < prev.Position {
			t.Fatal("subtree listing not ordered by position within page")
		}
	}
	_ = grand
}

func TestListBlocksJoinsDocumentMetadata(t *testing.T) {
	c := testComposer(t)
	mustPage(t, c, "M", "m", nil)
	ctx := context.Background()

	uploads := map[string]Upload{
		"f": {Data: []byte("blob"), FileName: "f.bin", MimeType: "application/octet-stream"},
	}
	if _, err := c.BatchIngest(ctx, "m", []BlockItem{{Kind: KindDocument, FileKey: "f"}}, uploads); err != nil {
		t.Fatal(err)
	}

	page, _ := c.ResolvePage(ctx, "m")
	blocks, err := c.ListBlocks(ctx, page.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].Document == nil {
		t.Fatalf("expected one block with document metadata, got %+v", blocks)
	}
	if blocks[0].Document.FileName != "f.bin" || blocks[0].Document.SizeBytes != 4 {
		t.Errorf("document metadata = %+v", blocks[0].Document)
	}
}

func TestDeleteBlockRetainsDocument(t *testing.T) {
	c := testComposer(t)
	mustPage(t, c, "D", "d", nil)
	ctx := context.Background()

	uploads := map[string]Upload{
		"f": {Data: []byte("retained"), FileName: "r.bin", MimeType: ""},
	}
	res, err := c.BatchIngest(ctx, "d", []BlockItem{{Kind: KindDocument, FileKey: "f"}}, uploads)
	if err != nil {
		t.Fatal(err)
	}
	block := res.CreatedBlocks[0]

	if err := c.DeleteBlock(ctx, block.ID); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	if _, err := c.docs.Retrieve(ctx, *block.DocumentID); err != nil {
		t.Errorf("document should be retained after block deletion: %v", err)
	}
	if err := c.DeleteBlock(ctx, block.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestBlockItemValidation(t *testing.T) {
	cases := []struct {
		name    string
		item    BlockItem
		wantErr bool
	}{
		{"title with text", BlockItem{Kind: KindTitle, Text: "t"}, false},
		{"text without text", BlockItem{Kind: KindText}, true},
		{"unknown kind", BlockItem{Kind: Kind("video")}, true},
		{"missing kind", BlockItem{}, true},
		{"document without payload", BlockItem{Kind: KindDocument}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.item.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("validation errors must wrap ErrValidation, got %v", err)
			}
		})
	}
}
