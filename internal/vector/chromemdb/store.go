package chromemdb

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/pkg/logger"
)

// Store keeps embeddings in an embedded chromem-go collection persisted on
// local disk. It is the default backend: nothing external to run, and the
// index survives restarts through the files under path.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func NewStore(path, collectionName string) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db: %w", err)
	}
	return newStore(db, collectionName, path)
}

// NewMemoryStore keeps everything in process memory, for tests and
// throwaway runs.
func NewMemoryStore(collectionName string) (*Store, error) {
	return newStore(chromem.NewDB(), collectionName, "")
}

func newStore(db *chromem.DB, collectionName, path string) (*Store, error) {
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", collectionName, err)
	}

	logger.Info("Chromem vector store ready",
		zap.String("collection", collectionName),
		zap.String("path", path),
		zap.Int("documents", collection.Count()))

	return &Store{db: db, collection: collection}, nil
}

// Upsert writes entries under their chunk IDs. chromem replaces documents
// with an existing ID, which is what makes re-indexing idempotent here.
func (s *Store) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ChunkID,
			Content:   e.Metadata.Text,
			Embedding: e.Vector,
			Metadata: map[string]string{
				"source_url": e.Metadata.SourceURL,
			},
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vec []float32, topK int) ([]vector.Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	// chromem rejects nResults above the document count, so clamp.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	hits := make([]vector.Hit, len(results))
	for i, r := range results {
		hits[i] = vector.Hit{
			ChunkID: r.ID,
			Score:   r.Similarity,
			Metadata: vector.Metadata{
				SourceURL: r.Metadata["source_url"],
				Text:      r.Content,
			},
		}
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return int64(s.collection.Count()), nil
}

// Close is a no-op; chromem persists on every write.
func (s *Store) Close() error {
	return nil
}
