package chunker

import (
	"fmt"

	"github.com/siterag/siterag/internal/storage/models"
	"github.com/siterag/siterag/pkg/utils"
)

// Split cuts the cleaned text of every page into overlapping windows of
// chunkSize runes, with chunkOverlap runes shared between neighbors. Offsets
// are rune offsets, so multi-byte text never splits mid-character. Chunk IDs
// are deterministic per source URL and position, which keeps re-indexing the
// same session idempotent downstream.
func Split(pages []models.PageRecord, chunkSize, chunkOverlap int) ([]models.Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got overlap %d with size %d", chunkOverlap, chunkSize)
	}

	stride := chunkSize - chunkOverlap
	var chunks []models.Chunk

	for _, page := range pages {
		runes := []rune(page.CleanedText)
		if len(runes) == 0 {
			continue
		}

		index := 0
		for start := 0; start < len(runes); start += stride {
			end := start + chunkSize
			if end > len(runes) {
				end = len(runes)
			}

			chunks = append(chunks, models.Chunk{
				ID:          ChunkID(page.URL, index),
				SourceURL:   page.URL,
				Text:        string(runes[start:end]),
				StartOffset: start,
				EndOffset:   end,
				Index:       index,
			})
			index++

			if end == len(runes) {
				break
			}
		}
	}

	return chunks, nil
}

// ChunkID derives the stable vector-store key for chunk index of url.
func ChunkID(url string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", utils.HashString(url), index)
}
