package services

import (
	"encoding/base64"
	"fmt"
	"strings"

	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/google/uuid"
)

// ChunkerService partitions extracted document text for summarization.
type ChunkerService struct {
	maxChunkSize int
}

// NewChunkerService creates a chunker with the given maximum chunk size in
// characters. Non-positive sizes fall back to 2000.
func NewChunkerService(maxChunkSize int) *ChunkerService {
	if maxChunkSize <= 0 {
		maxChunkSize = 2000
	}
	return &ChunkerService{maxChunkSize: maxChunkSize}
}

// SplitText partitions text into an ordered, exhaustive, non-overlapping
// sequence of chunks, each at most maxChunkSize characters; the final chunk
// may be shorter. Boundaries are fixed-size over runes so the split never
// lands inside a multi-byte character. Identical input always yields
// identical boundaries. Empty input yields no chunks.
func (cs *ChunkerService) SplitText(text string) []models.TextChunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	chunks := make([]models.TextChunk, 0, (len(runes)+cs.maxChunkSize-1)/cs.maxChunkSize)
	for start := 0; start < len(runes); start += cs.maxChunkSize {
		end := start + cs.maxChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.TextChunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
		})
	}
	return chunks
}

// MaxChunkSize reports the configured chunk size.
func (cs *ChunkerService) MaxChunkSize() int {
	return cs.maxChunkSize
}

// BuildContentChunks enriches pipeline chunks with storage metadata.
func (cs *ChunkerService) BuildContentChunks(chunks []models.TextChunk) []models.ContentChunk {
	result := make([]models.ContentChunk, len(chunks))
	offset := 0
	for i, chunk := range chunks {
		charCount := len([]rune(chunk.Text))
		result[i] = models.ContentChunk{
			ChunkID:    uuid.NewString(),
			Text:       chunk.Text,
			Order:      chunk.Index,
			StartIndex: offset,
			EndIndex:   offset + charCount,
			CharCount:  charCount,
			WordCount:  len(strings.Fields(chunk.Text)),
		}
		offset += charCount
	}
	return result
}

// CompressChunk compresses a chunk for storage
func CompressChunk(chunk models.ContentChunk) (models.ContentChunk, error) {
	compressed, compression, err := utils.CompressText(chunk.Text)
	if err != nil {
		return chunk, err
	}

	chunk.Compressed = true
	chunk.Compression = string(compression)
	chunk.Text = base64.StdEncoding.EncodeToString(compressed)

	return chunk, nil
}

// DecompressChunk decompresses a chunk for retrieval
func DecompressChunk(chunk models.ContentChunk) (models.ContentChunk, error) {
	if !chunk.Compressed {
		return chunk, nil
	}

	compressed, err := base64.StdEncoding.DecodeString(chunk.Text)
	if err != nil {
		return chunk, fmt.Errorf("failed to decode chunk: %w", err)
	}

	decompressed, err := utils.DecompressText(compressed, utils.CompressionAlgorithm(chunk.Compression))
	if err != nil {
		return chunk, fmt.Errorf("failed to decompress chunk: %w", err)
	}

	chunk.Text = decompressed
	chunk.Compressed = false
	chunk.Compression = ""

	return chunk, nil
}

// CompressChunksForStorage compresses all chunks for database storage
func CompressChunksForStorage(chunks []models.ContentChunk) ([]models.ContentChunk, error) {
	compressedChunks := make([]models.ContentChunk, len(chunks))

	for i, chunk := range chunks {
		compressed, err := CompressChunk(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to compress chunk %d: %w", i, err)
		}
		compressedChunks[i] = compressed
	}

	return compressedChunks, nil
}

// DecompressChunksForRetrieval decompresses all chunks for retrieval
func DecompressChunksForRetrieval(chunks []models.ContentChunk) ([]models.ContentChunk, error) {
	decompressedChunks := make([]models.ContentChunk, len(chunks))

	for i, chunk := range chunks {
		decompressed, err := DecompressChunk(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk %d: %w", i, err)
		}
		decompressedChunks[i] = decompressed
	}

	return decompressedChunks, nil
}

// filterEmpty removes empty strings from slice
func filterEmpty(slice []string) []string {
	result := make([]string, 0, len(slice))
	for _, s := range slice {
		if len(strings.TrimSpace(s)) > 0 {
			result = append(result, s)
		}
	}
	return result
}
