package services

import (
	"context"
	"fmt"
	"strings"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"
)

// TextGenerator is the remote completion backend the pipeline stages run
// their prompts against. internal/ai provides the production
// implementation; tests substitute a stub.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SummarizationService turns chunked document text into per-chunk
// summaries and merges them into one master summary per deck build.
type SummarizationService struct {
	generator TextGenerator
	config    *config.Config
}

// NewSummarizationService creates a new summarization service.
func NewSummarizationService(generator TextGenerator, cfg *config.Config) *SummarizationService {
	return &SummarizationService{
		generator: generator,
		config:    cfg,
	}
}

// SummarizeChunk produces a bounded abstractive summary of one chunk.
// Chunks already inside the target word budget pass through unchanged;
// anything longer goes through the model, so a long chunk is never
// returned verbatim.
func (ss *SummarizationService) SummarizeChunk(ctx context.Context, chunk models.TextChunk) (models.ChunkSummary, error) {
	text := strings.TrimSpace(chunk.Text)
	if len(strings.Fields(text)) <= ss.config.ChunkSummaryMax {
		return models.ChunkSummary{Index: chunk.Index, Text: text}, nil
	}

	resp, err := ss.generator.Generate(ctx, ss.buildChunkPrompt(text))
	if err != nil {
		return models.ChunkSummary{}, fmt.Errorf("chunk %d summarization failed: %w", chunk.Index, err)
	}

	summary := strings.TrimSpace(resp)
	if summary == "" {
		return models.ChunkSummary{}, fmt.Errorf("chunk %d summarization returned no content: %w", chunk.Index, utils.ErrBackendUnavailable)
	}

	return models.ChunkSummary{Index: chunk.Index, Text: summary}, nil
}

// SummarizeChunks summarizes a document's chunks one by one. Chunk order
// is the only ordering signal the merge step gets, so it is preserved
// exactly. The first failed chunk aborts the document; the caller decides
// whether to drop that document's contribution or fail the build.
func (ss *SummarizationService) SummarizeChunks(ctx context.Context, chunks []models.TextChunk) ([]models.ChunkSummary, error) {
	summaries := make([]models.ChunkSummary, 0, len(chunks))
	for _, chunk := range chunks {
		summary, err := ss.SummarizeChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// MergeSummaries combines ordered chunk summaries into one cohesive
// passage within the master word budget. Order is kept as given, with no
// re-ranking by importance. Zero summaries yield an explicitly empty
// master summary rather than an error or a model call.
func (ss *SummarizationService) MergeSummaries(ctx context.Context, summaries []models.ChunkSummary) (models.MasterSummary, error) {
	if len(summaries) == 0 {
		return models.MasterSummary{Empty: true}, nil
	}

	parts := make([]string, len(summaries))
	for i, s := range summaries {
		parts[i] = strings.TrimSpace(s.Text)
	}
	joined := strings.Join(parts, "\n\n")

	// A single summary inside the budget is already cohesive. Running it
	// through the model again would only invite fabricated content.
	if len(summaries) == 1 && len(strings.Fields(joined)) <= ss.config.MasterSummaryMax {
		return models.MasterSummary{Text: joined}, nil
	}

	resp, err := ss.generator.Generate(ctx, ss.buildMergePrompt(joined))
	if err != nil {
		return models.MasterSummary{}, fmt.Errorf("summary merge failed: %w", err)
	}

	merged := strings.TrimSpace(resp)
	if merged == "" {
		return models.MasterSummary{}, fmt.Errorf("summary merge returned no content: %w", utils.ErrBackendUnavailable)
	}

	return models.MasterSummary{Text: merged}, nil
}

// FallbackMasterSummary is the placeholder used when the merge call fails
// after retries. It joins the chunk summaries as-is, so the reader still
// gets real content, just not a rewritten passage.
func FallbackMasterSummary(summaries []models.ChunkSummary) models.MasterSummary {
	if len(summaries) == 0 {
		return models.MasterSummary{Empty: true}
	}
	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return models.MasterSummary{Empty: true}
	}
	return models.MasterSummary{Text: strings.Join(parts, "\n\n")}
}

func (ss *SummarizationService) buildChunkPrompt(text string) string {
	return fmt.Sprintf(`Summarize the following document section in %d to %d words, preserving:
1. Key facts and figures
2. Names, numbers, and technical terms
3. Main topics and themes

Do not copy the section verbatim and do not add information that is not in it.

Section:
%s

Summary:`, ss.config.ChunkSummaryMin, ss.config.ChunkSummaryMax, truncateText(text, 8000))
}

func (ss *SummarizationService) buildMergePrompt(joined string) string {
	return fmt.Sprintf(`Combine the following section summaries into one cohesive summary of %d to %d words. Keep the sections in their given order and do not introduce facts that are not present in them.

Section summaries:
%s

Combined summary:`, ss.config.MasterSummaryMin, ss.config.MasterSummaryMax, truncateText(joined, 16000))
}

// truncateText truncates text to the specified byte length.
func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
