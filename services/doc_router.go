package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

// Routing states. A document is in exactly one of them once routed; the
// terminal state is "merged into corpus".
const (
	RoutedRemote = "ROUTED_REMOTE"
	RoutedLocal  = "ROUTED_LOCAL"
)

// SensitiveSummaryMarker prefixes local-path summaries inside the
// combined corpus. Downstream stages treat marked sections as final
// summaries, never as raw text to re-process.
const SensitiveSummaryMarker = "[SENSITIVE DOCUMENT SUMMARY]"

// RoutableDocument pairs a document with its extracted text, which is all
// the router needs to know about it.
type RoutableDocument struct {
	ID        string
	Name      string
	Sensitive bool
	Text      string
}

// DocumentContribution is one document's processed output, ready for
// corpus assembly. Failed contributions carry the error and nothing else.
type DocumentContribution struct {
	DocumentID   string
	Route        string
	CorpusText   string
	Summaries    []models.ChunkSummary
	LocalPlots   []LocalPlot
	LocalMetrics []models.ExtractedMetric
	Failed       bool
	Err          error
}

// DocumentRouter sends each document down the remote or local processing
// path. The local path never shares document text with the remote model:
// sensitive text reaches only the local sidecar (or the in-process
// heuristic), and only the resulting summary rejoins the corpus. That
// containment is a security requirement, not an optimization.
type DocumentRouter struct {
	chunker    *ChunkerService
	summarizer *SummarizationService
	localAI    *LocalAIClient
	config     *config.Config
}

// NewDocumentRouter creates a new document router.
func NewDocumentRouter(chunker *ChunkerService, summarizer *SummarizationService, localAI *LocalAIClient, cfg *config.Config) *DocumentRouter {
	return &DocumentRouter{
		chunker:    chunker,
		summarizer: summarizer,
		localAI:    localAI,
		config:     cfg,
	}
}

// RouteAndProcess runs every document through its path, in input order.
// When batchSensitive is false the per-document flags are not consulted
// at all; the whole batch takes the remote path. A failed remote document
// yields a failed contribution rather than aborting the batch.
func (dr *DocumentRouter) RouteAndProcess(ctx context.Context, docs []RoutableDocument, batchSensitive bool) []DocumentContribution {
	contributions := make([]DocumentContribution, 0, len(docs))

	for _, doc := range docs {
		if batchSensitive && doc.Sensitive {
			contributions = append(contributions, dr.processLocal(ctx, doc))
		} else {
			contributions = append(contributions, dr.processRemote(ctx, doc))
		}
	}

	return contributions
}

// processRemote chunks the document and summarizes it through the remote
// model. The raw text itself becomes the document's corpus contribution.
func (dr *DocumentRouter) processRemote(ctx context.Context, doc RoutableDocument) DocumentContribution {
	contribution := DocumentContribution{
		DocumentID: doc.ID,
		Route:      RoutedRemote,
	}

	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return contribution
	}

	chunks := dr.chunker.SplitText(text)
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
	}

	summaries, err := dr.summarizer.SummarizeChunks(ctx, chunks)
	if err != nil {
		log.Printf("⚠️ Remote processing failed for document %s: %v", doc.ID, err)
		contribution.Failed = true
		contribution.Err = fmt.Errorf("document %s: %w", doc.ID, err)
		return contribution
	}

	contribution.CorpusText = text
	contribution.Summaries = summaries
	return contribution
}

// processLocal analyzes the document through the local sidecar. Only the
// produced summary, marked as such, rejoins the corpus; the raw text
// stays on this side of the boundary. The local path cannot fail: the
// sidecar client degrades to the deterministic heuristic on its own.
func (dr *DocumentRouter) processLocal(ctx context.Context, doc RoutableDocument) DocumentContribution {
	contribution := DocumentContribution{
		DocumentID: doc.ID,
		Route:      RoutedLocal,
	}

	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return contribution
	}

	result := dr.localAI.ProcessDocument(ctx, text)

	summary := strings.TrimSpace(result.Summary)
	if summary != "" {
		contribution.CorpusText = SensitiveSummaryMarker + "\n" + summary
		contribution.Summaries = []models.ChunkSummary{{Index: 0, Text: summary}}
	}
	contribution.LocalPlots = result.PlotData

	for _, line := range result.Metrics {
		if metric, ok := ParseMetricString(line); ok {
			contribution.LocalMetrics = append(contribution.LocalMetrics, metric)
		}
	}

	return contribution
}
