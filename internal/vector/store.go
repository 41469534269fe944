package vector

import "context"

// Metadata travels with every stored vector and comes back on query.
type Metadata struct {
	SourceURL string
	Text      string
}

// Entry is one embedded chunk keyed by its deterministic chunk ID.
type Entry struct {
	ChunkID  string
	Vector   []float32
	Metadata Metadata
}

// Hit is one nearest-neighbor result, higher score meaning closer.
type Hit struct {
	ChunkID  string
	Score    float32
	Metadata Metadata
}

// Store is the retrieval index behind indexing and question answering.
// Upsert must be idempotent on ChunkID: re-indexing the same session must
// overwrite entries, never duplicate them.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
