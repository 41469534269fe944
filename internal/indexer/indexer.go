package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/chunker"
	"github.com/siterag/siterag/internal/storage/models"
	"github.com/siterag/siterag/internal/storage/sqlite"
	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/pkg/logger"
	"github.com/siterag/siterag/pkg/utils"
)

// SessionSource loads the crawl session being indexed.
type SessionSource interface {
	LatestSession() (*models.CrawlSession, error)
	SessionPages(sessionID string) ([]models.PageRecord, error)
}

// Embedder turns chunk text into vectors. The model parameter may be empty,
// in which case the backend's configured default applies.
type Embedder interface {
	EmbedWithModel(ctx context.Context, text, model string) ([]float32, error)
}

// EmbeddingCache memoizes embeddings across indexing runs, keyed by a hash
// of model and text. Optional; cache failures only cost a recompute.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
}

type Result struct {
	SessionID   string
	PageCount   int
	ChunkCount  int
	VectorCount int
	Errors      []string
}

// Indexer chunks the latest crawl session, embeds every chunk and upserts
// the vectors. One bad chunk never aborts the rest: per-chunk failures are
// collected as error strings, so VectorCount plus the number of per-chunk
// errors always equals ChunkCount.
type Indexer struct {
	sessions SessionSource
	embedder Embedder
	store    vector.Store
	cache    EmbeddingCache
	cacheTTL time.Duration
}

// New creates an Indexer. cache may be nil when no cache is configured.
func New(sessions SessionSource, embedder Embedder, store vector.Store, cache EmbeddingCache, cacheTTL time.Duration) *Indexer {
	return &Indexer{
		sessions: sessions,
		embedder: embedder,
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (ix *Indexer) Index(ctx context.Context, opts Options) (*Result, error) {
	session, err := ix.sessions.LatestSession()
	if errors.Is(err, sqlite.ErrNoSession) {
		return &Result{Errors: []string{"no crawl session found, run a crawl first"}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest session: %w", err)
	}

	pages, err := ix.sessions.SessionPages(session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session pages: %w", err)
	}

	chunks, err := chunker.Split(pages, opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SessionID:  session.ID,
		PageCount:  len(pages),
		ChunkCount: len(chunks),
	}
	if len(chunks) == 0 {
		result.Errors = append(result.Errors, "no text chunks produced from latest crawl")
		return result, nil
	}

	started := time.Now()

	for _, chunk := range chunks {
		embedding, err := ix.embed(ctx, chunk.Text, opts.EmbeddingModel)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embed %s: %v", chunk.ID, err))
			continue
		}

		entry := vector.Entry{
			ChunkID: chunk.ID,
			Vector:  embedding,
			Metadata: vector.Metadata{
				SourceURL: chunk.SourceURL,
				Text:      chunk.Text,
			},
		}
		if err := ix.store.Upsert(ctx, []vector.Entry{entry}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", chunk.ID, err))
			continue
		}

		result.VectorCount++
	}

	logger.Info("Indexing finished",
		zap.String("session_id", session.ID),
		zap.Int("pages", result.PageCount),
		zap.Int("chunks", result.ChunkCount),
		zap.Int("vectors", result.VectorCount),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", time.Since(started)))

	return result, nil
}

func (ix *Indexer) embed(ctx context.Context, text, model string) ([]float32, error) {
	if ix.cache == nil {
		return ix.embedder.EmbedWithModel(ctx, text, model)
	}

	key := utils.HashKey(model, text)
	cached, ok, err := ix.cache.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	embedding, err := ix.embedder.EmbedWithModel(ctx, text, model)
	if err != nil {
		return nil, err
	}

	if err := ix.cache.SetEmbedding(ctx, key, embedding, ix.cacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return embedding, nil
}
