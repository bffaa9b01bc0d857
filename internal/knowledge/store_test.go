package knowledge_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/replymate/replymate/internal/backoff"
	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/knowledge"
	"github.com/replymate/replymate/internal/log"
	"github.com/replymate/replymate/internal/testutil"
	"github.com/replymate/replymate/internal/vector"
)

var testCategories = []string{"account", "billing", "technical", "product", "general"}

func testPolicy() backoff.Policy {
	return backoff.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newTestStore(t *testing.T, embedder genai.Embedder) (*knowledge.Store, *knowledge.SQLiteQuerier, vector.Index) {
	t.Helper()

	queries := knowledge.NewSQLiteQuerier(testutil.OpenTestDB(t))
	index := vector.NewMemory()
	store := knowledge.New(queries, embedder, index, testCategories, testPolicy(), log.NewNop())
	return store, queries, index
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t, &testutil.HashEmbedder{})
	ctx := context.Background()

	put, err := store.Put(ctx, knowledge.Document{
		Title:    "Password Reset",
		Body:     "Use the forgot password link on the login page.",
		Category: "Account",
		Tags:     []string{"Password", "login", "password"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if put.ID == "" {
		t.Error("Put() should assign an id when none is given")
	}
	if put.Category != "account" {
		t.Errorf("Put() category = %q, want normalized %q", put.Category, "account")
	}

	got, err := store.Get(ctx, put.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != put.Title || got.Body != put.Body {
		t.Errorf("Get() = %+v, want %+v", got, put)
	}
	wantTags := []string{"login", "password"}
	if len(got.Tags) != len(wantTags) {
		t.Fatalf("Get() tags = %v, want deduplicated %v", got.Tags, wantTags)
	}
	for i, tag := range wantTags {
		if got.Tags[i] != tag {
			t.Errorf("Get() tags[%d] = %q, want %q", i, got.Tags[i], tag)
		}
	}
}

func TestStore_PutValidation(t *testing.T) {
	store, _, _ := newTestStore(t, &testutil.HashEmbedder{})

	tests := []struct {
		name    string
		doc     knowledge.Document
		wantErr error
	}{
		{
			name:    "empty title",
			doc:     knowledge.Document{Body: "body", Category: "general"},
			wantErr: knowledge.ErrInvalidDocument,
		},
		{
			name:    "blank body",
			doc:     knowledge.Document{Title: "title", Body: "   ", Category: "general"},
			wantErr: knowledge.ErrInvalidDocument,
		},
		{
			name:    "unknown category",
			doc:     knowledge.Document{Title: "title", Body: "body", Category: "shipping"},
			wantErr: knowledge.ErrUnknownCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Put(context.Background(), tt.doc)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Put() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_PutRetriesTransientEmbeddingFailure(t *testing.T) {
	embedder := &testutil.HashEmbedder{
		Err:       genai.ErrEmbeddingUnavailable,
		FailFirst: 1,
	}
	store, _, _ := newTestStore(t, embedder)

	_, err := store.Put(context.Background(), knowledge.Document{
		Title:    "Refunds",
		Body:     "Refunds take 5-7 business days.",
		Category: "billing",
	})
	if err != nil {
		t.Fatalf("Put() error = %v, want retry to recover", err)
	}
	if calls := len(embedder.Calls()); calls != 2 {
		t.Errorf("embedder called %d times, want 2", calls)
	}
}

func TestStore_PutGivesUpAfterMaxAttempts(t *testing.T) {
	embedder := &testutil.HashEmbedder{Err: genai.ErrEmbeddingUnavailable}
	store, _, _ := newTestStore(t, embedder)

	_, err := store.Put(context.Background(), knowledge.Document{
		Title:    "Refunds",
		Body:     "Refunds take 5-7 business days.",
		Category: "billing",
	})
	if !errors.Is(err, genai.ErrEmbeddingUnavailable) {
		t.Fatalf("Put() error = %v, want %v", err, genai.ErrEmbeddingUnavailable)
	}
	if calls := len(embedder.Calls()); calls != 3 {
		t.Errorf("embedder called %d times, want MaxAttempts=3", calls)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store, _, _ := newTestStore(t, &testutil.HashEmbedder{})

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, knowledge.ErrNotFound) {
		t.Errorf("Get() error = %v, want %v", err, knowledge.ErrNotFound)
	}
}

func TestStore_DeleteRemovesFromIndexAndIsIdempotent(t *testing.T) {
	store, _, index := newTestStore(t, &testutil.HashEmbedder{})
	ctx := context.Background()

	doc, err := store.Put(ctx, knowledge.Document{
		Title:    "Billing",
		Body:     "Check your dashboard for transactions.",
		Category: "billing",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, doc.ID); !errors.Is(err, knowledge.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want %v", err, knowledge.ErrNotFound)
	}
	if n, _ := index.Len(ctx); n != 0 {
		t.Errorf("index holds %d entries after delete, want 0", n)
	}

	// Deleting an absent id is a no-op.
	if err := store.Delete(ctx, doc.ID); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestStore_ListFilters(t *testing.T) {
	store, _, _ := newTestStore(t, &testutil.HashEmbedder{})
	ctx := context.Background()

	docs := []knowledge.Document{
		{Title: "Login Help", Body: "Reset your password.", Category: "account", Tags: []string{"login"}},
		{Title: "Invoices", Body: "Download invoices from the dashboard.", Category: "billing", Tags: []string{"invoice"}},
		{Title: "Refunds", Body: "Refunds take 5-7 business days.", Category: "billing", Tags: []string{"refund", "invoice"}},
	}
	for _, doc := range docs {
		if _, err := store.Put(ctx, doc); err != nil {
			t.Fatalf("Put(%q) error = %v", doc.Title, err)
		}
	}

	tests := []struct {
		name   string
		filter knowledge.Filter
		want   int
	}{
		{name: "no filter", filter: knowledge.Filter{}, want: 3},
		{name: "by category", filter: knowledge.Filter{Category: "billing"}, want: 2},
		{name: "by tag", filter: knowledge.Filter{Tag: "invoice"}, want: 2},
		{name: "category and tag", filter: knowledge.Filter{Category: "billing", Tag: "refund"}, want: 1},
		{name: "limit", filter: knowledge.Filter{Limit: 1}, want: 1},
		{name: "no match", filter: knowledge.Filter{Tag: "nonexistent"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() returned %d documents, want %d", len(got), tt.want)
			}
		})
	}

	if _, err := store.List(ctx, knowledge.Filter{Category: "shipping"}); !errors.Is(err, knowledge.ErrUnknownCategory) {
		t.Errorf("List() with unknown category error = %v, want %v", err, knowledge.ErrUnknownCategory)
	}
}

func TestStore_RebuildRestoresIndex(t *testing.T) {
	embedder := &testutil.HashEmbedder{}
	queries := knowledge.NewSQLiteQuerier(testutil.OpenTestDB(t))
	ctx := context.Background()

	first := knowledge.New(queries, embedder, vector.NewMemory(), testCategories, testPolicy(), log.NewNop())
	doc, err := first.Put(ctx, knowledge.Document{
		Title:    "Feature Requests",
		Body:     "Describe the feature you would like to see.",
		Category: "product",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// A fresh process starts with an empty index and rebuilds from rows.
	index := vector.NewMemory()
	second := knowledge.New(queries, embedder, index, testCategories, testPolicy(), log.NewNop())
	loaded, err := second.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if loaded != 1 {
		t.Errorf("Rebuild() loaded %d documents, want 1", loaded)
	}

	vec, err := embedder.Embed(ctx, doc.Body)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	entries, err := index.Query(ctx, vec, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != doc.ID {
		t.Errorf("Query() after rebuild = %v, want entry for %q", entries, doc.ID)
	}
}

func TestStore_SeedOnlyPopulatesEmptyStore(t *testing.T) {
	store, _, _ := newTestStore(t, &testutil.HashEmbedder{})
	ctx := context.Background()

	if err := store.Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 5 {
		t.Fatalf("Count() after seed = %d, want 5", count)
	}

	if err := store.Delete(ctx, "seed-refund-policy"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Seed(ctx); err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	count, _ = store.Count(ctx)
	if count != 4 {
		t.Errorf("Count() after re-seed = %d, want 4 (seed must not overwrite a curated store)", count)
	}
}

func TestImporter_ImportDirectory(t *testing.T) {
	store, _, _ := newTestStore(t, &testutil.HashEmbedder{})
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "shipping-times.md", "Orders ship within 2 business days.")
	writeFile(t, dir, "warranty.txt", "All products carry a one year warranty.")
	writeFile(t, dir, "faq.json", `{"title":"API Limits","body":"The API allows 100 requests per minute.","category":"technical","tags":["api","limits"]}`)
	writeFile(t, dir, "ignore.csv", "not,imported")
	writeFile(t, dir, "huge.txt", string(make([]byte, knowledge.MaxFileSizeForEmbedding+1)))

	importer := knowledge.NewImporter(store, "general")
	result, err := importer.ImportDirectory(ctx, dir)
	if err != nil {
		t.Fatalf("ImportDirectory() error = %v", err)
	}
	if result.FilesAdded != 3 {
		t.Errorf("FilesAdded = %d, want 3", result.FilesAdded)
	}
	if result.FilesSkipped != 2 {
		t.Errorf("FilesSkipped = %d, want 2", result.FilesSkipped)
	}
	if result.FilesFailed != 0 {
		t.Errorf("FilesFailed = %d, want 0", result.FilesFailed)
	}

	docs, err := store.List(ctx, knowledge.Filter{Category: "technical"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "API Limits" {
		t.Errorf("imported JSON document = %+v, want title %q", docs, "API Limits")
	}

	// Re-importing must update in place, not duplicate.
	if _, err := importer.ImportDirectory(ctx, dir); err != nil {
		t.Fatalf("second ImportDirectory() error = %v", err)
	}
	count, _ := store.Count(ctx)
	if count != 3 {
		t.Errorf("Count() after re-import = %d, want 3", count)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}
