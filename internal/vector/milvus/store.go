package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/pkg/logger"
)

// Store keeps embeddings in a Milvus (or Zilliz Cloud) collection. The chunk
// ID is the primary key and writes go through Upsert, so re-indexing a
// session overwrites rows instead of duplicating them.
type Store struct {
	client     client.Client
	collection string
	dimension  int
}

func NewStore(ctx context.Context, endpoint, collectionName string, dimension int) (*Store, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	s := &Store{
		client:     c,
		collection: collectionName,
		dimension:  dimension,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	logger.Info("Milvus vector store ready",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.Int("dimension", dimension))

	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "siterag page chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.dimension),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "source_url",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := entity.NewIndexIVFFlat(entity.COSINE, 1024)
	if err := s.client.CreateIndex(ctx, s.collection, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", s.collection))
	return nil
}

func (s *Store) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	texts := make([]string, len(entries))
	sourceURLs := make([]string, len(entries))

	for i, e := range entries {
		chunkIDs[i] = e.ChunkID
		embeddings[i] = e.Vector
		texts[i] = e.Metadata.Text
		sourceURLs[i] = e.Metadata.SourceURL
	}

	_, err := s.client.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", s.dimension, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source_url", sourceURLs),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return nil
}

func (s *Store) Query(ctx context.Context, vec []float32, topK int) ([]vector.Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	sp, _ := entity.NewIndexIVFFlatSearchParam(16)

	searchResult, err := s.client.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"chunk_id", "text", "source_url"},
		[]entity.Vector{entity.FloatVector(vec)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []vector.Hit
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		sourceURLCol := sr.Fields.GetColumn("source_url")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.Get(i)
			text, _ := textCol.Get(i)
			sourceURL, _ := sourceURLCol.Get(i)

			hits = append(hits, vector.Hit{
				ChunkID: chunkID.(string),
				Score:   sr.Scores[i],
				Metadata: vector.Metadata{
					SourceURL: sourceURL.(string),
					Text:      text.(string),
				},
			})
		}
	}

	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}

	count, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected row_count %q: %w", stats["row_count"], err)
	}
	return count, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
