package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"brand-deck-platform/internal/ai"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// vectorIndexName is the Atlas Vector Search index on document_chunks.
const vectorIndexName = "chunk_vector_index"

// RetrievalService finds the document chunks most relevant to a question
// for grounded Q&A. Atlas Vector Search runs first when enabled; keyword
// scoring over the chunk index is the fallback and the default. The index
// holds no sensitive documents, so everything retrieved here may be quoted
// in a remote prompt.
type RetrievalService struct {
	config        *config.Config
	chunkIndexCol *mongo.Collection
}

// NewRetrievalService creates a retrieval service over the chunk index
func NewRetrievalService(cfg *config.Config, chunkIndexCol *mongo.Collection) *RetrievalService {
	return &RetrievalService{
		config:        cfg,
		chunkIndexCol: chunkIndexCol,
	}
}

// TopChunks returns up to limit chunks ranked by relevance to the question.
func (r *RetrievalService) TopChunks(ctx context.Context, brandID primitive.ObjectID, question string, limit int) ([]models.DocChunkIndex, error) {
	if limit <= 0 {
		limit = 3
	}

	if r.config.VectorSearchEnabled {
		chunks, err := r.vectorSearch(ctx, brandID, question, limit)
		if err == nil && len(chunks) > 0 {
			return chunks, nil
		}
		if err != nil {
			log.Printf("⚠️ Vector search failed, falling back to keyword scoring: %v", err)
		}
	}

	return r.keywordSearch(ctx, brandID, question, limit)
}

// vectorSearch embeds the question and runs an Atlas $vectorSearch stage.
func (r *RetrievalService) vectorSearch(ctx context.Context, brandID primitive.ObjectID, question string, limit int) ([]models.DocChunkIndex, error) {
	vec, err := ai.GenerateEmbedding(ctx, r.config, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         vectorIndexName,
			"path":          "vector",
			"queryVector":   vec,
			"numCandidates": limit * 15,
			"limit":         limit,
			"filter":        bson.M{"brand_id": brandID},
		}}},
	}

	cursor, err := r.chunkIndexCol.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.DocChunkIndex
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode vector search results: %w", err)
	}
	return chunks, nil
}

// keywordSearch loads the brand's index and ranks it by query word
// frequency.
func (r *RetrievalService) keywordSearch(ctx context.Context, brandID primitive.ObjectID, question string, limit int) ([]models.DocChunkIndex, error) {
	cursor, err := r.chunkIndexCol.Find(ctx, bson.M{"brand_id": brandID})
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk index: %w", err)
	}
	defer cursor.Close(ctx)

	var indexed []models.DocChunkIndex
	if err := cursor.All(ctx, &indexed); err != nil {
		return nil, fmt.Errorf("failed to decode chunk index: %w", err)
	}

	return rankChunksByKeywords(question, indexed, limit), nil
}

// rankChunksByKeywords scores chunks by occurrences of the question's
// words, ignoring words of one or two characters, and returns the top
// scorers. Chunks that match nothing are dropped.
func rankChunksByKeywords(question string, indexed []models.DocChunkIndex, limit int) []models.DocChunkIndex {
	queryWords := strings.Fields(strings.ToLower(question))
	if len(queryWords) == 0 {
		return nil
	}

	type scoredChunk struct {
		chunk models.DocChunkIndex
		score int
	}

	var scored []scoredChunk
	for _, chunk := range indexed {
		chunkLower := strings.ToLower(chunk.Text)
		score := 0

		for _, word := range queryWords {
			if len(word) > 2 {
				score += strings.Count(chunkLower, word)
			}
		}

		if score > 0 {
			scored = append(scored, scoredChunk{chunk: chunk, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if len(scored) < limit {
		limit = len(scored)
	}

	result := make([]models.DocChunkIndex, 0, limit)
	for i := 0; i < limit; i++ {
		result = append(result, scored[i].chunk)
	}
	return result
}
