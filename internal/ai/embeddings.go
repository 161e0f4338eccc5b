package ai

import (
	"context"
	"fmt"

	"brand-deck-platform/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GenerateEmbedding returns an embedding vector for the given text, used to
// index corpus chunks for deck Q&A retrieval. Default provider is Google
// Generative AI (text-embedding-004).
func GenerateEmbedding(ctx context.Context, cfg *config.Config, text string) ([]float32, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		defer client.Close()

		model := client.EmbeddingModel(cfg.EmbeddingsModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, fmt.Errorf("no embedding returned")
		}

		return resp.Embedding.Values, nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}
