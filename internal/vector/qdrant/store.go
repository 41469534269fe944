package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/pkg/logger"
)

// Store keeps embeddings in a qdrant collection over gRPC. Point IDs are
// UUIDs derived from the chunk ID, so upserting the same chunk overwrites
// instead of duplicating.
type Store struct {
	client     *qd.Client
	collection string
	dimension  int
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client, err := qd.NewClient(&qd.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	logger.Info("Qdrant vector store ready",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
		zap.Int("dimension", cfg.Dimension))

	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qd.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &qd.PointStruct{
			Id:      qd.NewID(pointID(e.ChunkID)),
			Vectors: qd.NewVectors(e.Vector...),
			Payload: qd.NewValueMap(map[string]any{
				"chunk_id":   e.ChunkID,
				"source_url": e.Metadata.SourceURL,
				"text":       e.Metadata.Text,
			}),
		}
	}

	wait := true
	if _, err := s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vec []float32, topK int) ([]vector.Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qd.QueryPoints{
		CollectionName: s.collection,
		Query:          qd.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	hits := make([]vector.Hit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, vector.Hit{
			ChunkID: payload["chunk_id"].GetStringValue(),
			Score:   p.GetScore(),
			Metadata: vector.Metadata{
				SourceURL: payload["source_url"].GetStringValue(),
				Text:      payload["text"].GetStringValue(),
			},
		})
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection info: %w", err)
	}
	return int64(info.GetPointsCount()), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// pointID derives a stable UUID from the chunk ID; qdrant only accepts UUID
// or integer point IDs.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}
