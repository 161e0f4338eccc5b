package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"
)

// ProgressFunc receives coarse build progress for status reporting. Stages
// arrive in order with a non-decreasing percent.
type ProgressFunc func(stage string, percent int)

// BuildOptions tune one deck build.
type BuildOptions struct {
	// BatchSensitive is the caller's aggregate hint that the batch may
	// contain sensitive documents. When false the router skips per-document
	// flag inspection entirely.
	BatchSensitive bool

	// TopChartCount overrides the configured top-tier chart count when
	// positive.
	TopChartCount int

	// OnProgress, when set, is called at each stage boundary.
	OnProgress ProgressFunc
}

// DeckBuilder runs the document-to-insight pipeline for one deck build:
// routing, summarization, structured extraction, chart generation and
// competitive analysis. Every stage writes into its own dedicated field of
// the eventual ProcessingResult, which is constructed exactly once at the
// end of Build and never mutated afterwards.
type DeckBuilder struct {
	router      *DocumentRouter
	summarizer  *SummarizationService
	extractor   *DataExtractor
	charts      *ChartGenerator
	competitive *CompetitiveAnalyzer
	config      *config.Config
}

// NewDeckBuilder creates a deck builder from its stage services.
func NewDeckBuilder(
	router *DocumentRouter,
	summarizer *SummarizationService,
	extractor *DataExtractor,
	charts *ChartGenerator,
	competitive *CompetitiveAnalyzer,
	cfg *config.Config,
) *DeckBuilder {
	return &DeckBuilder{
		router:      router,
		summarizer:  summarizer,
		extractor:   extractor,
		charts:      charts,
		competitive: competitive,
		config:      cfg,
	}
}

// Build processes a document batch end to end and returns the complete
// ProcessingResult. Individual backend failures degrade the affected stage
// to its fallback value; the build itself fails only when the brand name is
// missing or when every document in a non-empty batch failed.
func (db *DeckBuilder) Build(ctx context.Context, brandName, brandColor string, docs []RoutableDocument, opts BuildOptions) (*models.ProcessingResult, error) {
	brandName = strings.TrimSpace(brandName)
	if brandName == "" {
		return nil, fmt.Errorf("brand name is required: %w", utils.ErrMalformedInput)
	}

	progress := func(stage string, percent int) {
		if opts.OnProgress != nil {
			opts.OnProgress(stage, percent)
		}
	}

	progress("routing", 10)
	contributions := db.router.RouteAndProcess(ctx, docs, opts.BatchSensitive)

	failed := 0
	for _, c := range contributions {
		if c.Failed {
			failed++
		}
	}
	if len(docs) > 0 && failed == len(docs) {
		return nil, fmt.Errorf("all %d documents failed processing: %w", len(docs), utils.ErrBackendUnavailable)
	}

	var (
		corpusParts []string
		summaries   []models.ChunkSummary
		localPlots  []LocalPlot
		provenance  models.Provenance
	)
	for _, c := range contributions {
		provenance.Documents = append(provenance.Documents, models.DocumentProvenance{
			DocumentID: c.DocumentID,
			Route:      c.Route,
			Failed:     c.Failed,
		})
		if c.Failed {
			provenance.FailedDocuments++
			continue
		}
		if c.Route == RoutedLocal {
			provenance.LocalDocuments++
		} else {
			provenance.RemoteDocuments++
		}
		if c.CorpusText != "" {
			corpusParts = append(corpusParts, c.CorpusText)
		}
		summaries = append(summaries, c.Summaries...)
		localPlots = append(localPlots, c.LocalPlots...)
	}
	corpus := strings.Join(corpusParts, "\n\n")

	progress("summarizing", 40)
	master, err := db.summarizer.MergeSummaries(ctx, summaries)
	if err != nil {
		log.Printf("⚠️ Master summary merge failed, joining chunk summaries instead: %v", err)
		master = FallbackMasterSummary(summaries)
	}

	progress("extracting", 60)
	payload, err := db.extractor.Extract(ctx, corpus, brandName)
	if err != nil {
		log.Printf("⚠️ Structured extraction unavailable, continuing with empty payload: %v", err)
	}
	payload.KeyMetrics = mergeLocalMetrics(payload.KeyMetrics, contributions)

	progress("charting", 75)
	charts := db.charts.Generate(payload, localPlots, brandColor, brandName, opts.TopChartCount)

	progress("competitive", 90)
	analysis, err := db.competitive.Analyze(ctx, corpus, brandName)
	if err != nil {
		log.Printf("⚠️ Competitive analysis unavailable, using the generic fallback: %v", err)
	}

	result := &models.ProcessingResult{
		Corpus:      corpus,
		Summary:     master,
		Tables:      payload.Tables,
		Metrics:     payload.KeyMetrics,
		TimeSeries:  payload.TimeSeries,
		Charts:      charts,
		Competitive: analysis,
		Provenance:  provenance,
		BrandName:   brandName,
		BrandColor:  brandColor,
		TextColor:   DeriveContrastText(brandColor),
		BuiltAt:     time.Now().UTC(),
	}

	progress("done", 100)
	return result, nil
}

// mergeLocalMetrics appends locally parsed metrics that corpus-wide
// extraction did not already yield, matching on case-insensitive name. On a
// name collision the corpus-wide metric wins.
func mergeLocalMetrics(metrics []models.ExtractedMetric, contributions []DocumentContribution) []models.ExtractedMetric {
	seen := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		seen[strings.ToLower(m.Name)] = true
	}
	for _, c := range contributions {
		if c.Failed {
			continue
		}
		for _, m := range c.LocalMetrics {
			key := strings.ToLower(m.Name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			metrics = append(metrics, m)
		}
	}
	return metrics
}
