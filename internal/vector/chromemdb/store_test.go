package chromemdb

import (
	"context"
	"testing"

	"github.com/siterag/siterag/internal/vector"
)

func oneHot(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func testEntries() []vector.Entry {
	return []vector.Entry{
		{
			ChunkID: "chunk-a",
			Vector:  oneHot(4, 0),
			Metadata: vector.Metadata{
				SourceURL: "https://example.com/a",
				Text:      "alpha text",
			},
		},
		{
			ChunkID: "chunk-b",
			Vector:  oneHot(4, 1),
			Metadata: vector.Metadata{
				SourceURL: "https://example.com/b",
				Text:      "beta text",
			},
		},
		{
			ChunkID: "chunk-c",
			Vector:  oneHot(4, 2),
			Metadata: vector.Metadata{
				SourceURL: "https://example.com/c",
				Text:      "gamma text",
			},
		},
	}
}

func TestUpsertQueryRoundTrip(t *testing.T) {
	store, err := NewMemoryStore("pages")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Upsert(ctx, testEntries()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	hits, err := store.Query(ctx, oneHot(4, 1), 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ChunkID != "chunk-b" {
		t.Errorf("nearest hit = %q, want chunk-b", hits[0].ChunkID)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("nearest score = %f, want ~1", hits[0].Score)
	}
	if hits[0].Metadata.SourceURL != "https://example.com/b" || hits[0].Metadata.Text != "beta text" {
		t.Errorf("metadata did not round-trip: %+v", hits[0].Metadata)
	}
}

func TestUpsertOverwritesSameChunkID(t *testing.T) {
	store, err := NewMemoryStore("pages")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	ctx := context.Background()

	entry := testEntries()[0]
	if err := store.Upsert(ctx, []vector.Entry{entry}); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}

	entry.Metadata.Text = "replacement text"
	if err := store.Upsert(ctx, []vector.Entry{entry}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d after re-upsert, want 1", count)
	}

	hits, err := store.Query(ctx, entry.Vector, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 || hits[0].Metadata.Text != "replacement text" {
		t.Errorf("hits = %+v, want single hit with replacement text", hits)
	}
}

func TestQueryClampsTopK(t *testing.T) {
	store, err := NewMemoryStore("pages")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Upsert(ctx, testEntries()[:1]); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := store.Query(ctx, oneHot(4, 0), 10)
	if err != nil {
		t.Fatalf("Query with topK above count: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}

func TestQueryEmptyStore(t *testing.T) {
	store, err := NewMemoryStore("pages")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}

	hits, err := store.Query(context.Background(), oneHot(4, 0), 5)
	if err != nil {
		t.Fatalf("Query on empty store: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits from empty store", len(hits))
	}
}

func TestQueryRejectsNonPositiveTopK(t *testing.T) {
	store, err := NewMemoryStore("pages")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}

	if _, err := store.Query(context.Background(), oneHot(4, 0), 0); err == nil {
		t.Error("topK 0 should be rejected")
	}
}

func TestPersistentStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewStore(dir, "pages")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := first.Upsert(ctx, testEntries()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewStore(dir, "pages")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	count, err := second.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("count after reopen = %d, want 3", count)
	}

	hits, err := second.Query(ctx, oneHot(4, 2), 1)
	if err != nil {
		t.Fatalf("Query after reopen: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "chunk-c" {
		t.Errorf("hits after reopen = %+v", hits)
	}
}
