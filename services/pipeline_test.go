package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"brand-deck-platform/utils"
)

// scriptedGenerator routes prompts to canned responses by substring match,
// so one stub can serve the summarization, extraction and competitive
// stages of a full build.
type scriptedGenerator struct {
	prompts []string
	scripts []promptScript
}

type promptScript struct {
	match    string
	response string
	err      error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	for _, s := range g.scripts {
		if strings.Contains(prompt, s.match) {
			return s.response, s.err
		}
	}
	return "", errors.New("unexpected prompt")
}

func newTestDeckBuilder(gen TextGenerator, sidecarURL string) *DeckBuilder {
	cfg := localTestConfig(sidecarURL)
	cfg.ChunkSize = 2000
	cfg.ChunkSummaryMin = 100
	cfg.ChunkSummaryMax = 150
	cfg.MasterSummaryMin = 200
	cfg.MasterSummaryMax = 300
	cfg.TopChartCount = 5

	router := NewDocumentRouter(
		NewChunkerService(cfg.ChunkSize),
		NewSummarizationService(gen, cfg),
		NewLocalAIClient(cfg),
		cfg,
	)
	return NewDeckBuilder(
		router,
		NewSummarizationService(gen, cfg),
		NewDataExtractor(gen, cfg),
		NewChartGenerator(cfg),
		NewCompetitiveAnalyzer(gen, cfg),
		cfg,
	)
}

func TestDeckBuilderEndToEnd(t *testing.T) {
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LocalProcessResponse{
			Summary: "Internal expansion plans target three new regions next year.",
			Metrics: []string{"Headcount: 120"},
			PlotData: []LocalPlot{
				{Title: "Key Topics Analysis", Type: "bar", Labels: []string{"expansion", "regions"}, Values: []float64{20, 15}},
			},
			ProcessedWithAI: true,
		})
	}))
	defer sidecar.Close()

	gen := &scriptedGenerator{scripts: []promptScript{
		{match: "Combine the following section summaries", response: "Acme grew revenue to $12.5 million while planning regional expansion."},
		{match: "business analyst extracting structured data", response: `{"tables": [], "keyMetrics": [{"name": "Revenue", "value": "$12.5 million", "trend": "up"}], "timeSeriesData": []}`},
		{match: "competitive intelligence analyst", response: `{"competitors": [], "positioning": {"narrative": "Acme leads its niche."}, "landscape": {"intensity": "moderate"}, "recommendations": ["Expand carefully."]}`},
	}}
	builder := newTestDeckBuilder(gen, sidecar.URL)

	docs := []RoutableDocument{
		{ID: "doc-public", Sensitive: false, Text: "Revenue: $12.5 million, up 35%"},
		{ID: "doc-secret", Sensitive: true, Text: "Confidential planning dossier covering internal reorganization details."},
	}

	var stages []string
	result, err := builder.Build(context.Background(), "Acme", "#112233", docs, BuildOptions{
		BatchSensitive: true,
		OnProgress:     func(stage string, percent int) { stages = append(stages, stage) },
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(result.Corpus, "Revenue: $12.5 million, up 35%") {
		t.Error("corpus should contain the raw public document text")
	}
	if !strings.Contains(result.Corpus, SensitiveSummaryMarker+"\nInternal expansion plans") {
		t.Error("corpus should contain the marked local summary")
	}
	if strings.Contains(result.Corpus, "dossier") {
		t.Error("corpus must not contain raw sensitive text")
	}
	for _, prompt := range gen.prompts {
		if strings.Contains(prompt, "dossier") {
			t.Fatal("sensitive document text leaked into a remote payload")
		}
	}
	if len(gen.prompts) != 3 {
		t.Errorf("expected merge, extraction and competitive calls only, got %d prompts", len(gen.prompts))
	}

	var revenue *float64
	for _, m := range result.Metrics {
		if m.Name == "Revenue" {
			if m.Unit != "millions-of-dollars" {
				t.Errorf("Revenue unit = %q, want millions-of-dollars", m.Unit)
			}
			v := m.Value
			revenue = &v
		}
	}
	if revenue == nil || *revenue != 12.5 {
		t.Fatalf("expected Revenue metric with value 12.5, got %+v", result.Metrics)
	}

	foundHeadcount := false
	for _, m := range result.Metrics {
		if m.Name == "Headcount" && m.Value == 120 {
			foundHeadcount = true
		}
	}
	if !foundHeadcount {
		t.Error("locally parsed metric should be merged into the result")
	}

	if result.Provenance.RemoteDocuments != 1 || result.Provenance.LocalDocuments != 1 || result.Provenance.FailedDocuments != 0 {
		t.Errorf("unexpected provenance %+v", result.Provenance)
	}
	routes := make(map[string]string, len(result.Provenance.Documents))
	for _, d := range result.Provenance.Documents {
		routes[d.DocumentID] = d.Route
	}
	if routes["doc-public"] != RoutedRemote || routes["doc-secret"] != RoutedLocal {
		t.Errorf("per-document routes not recorded, got %v", routes)
	}
	if result.Summary.Text != "Acme grew revenue to $12.5 million while planning regional expansion." {
		t.Errorf("unexpected master summary %q", result.Summary.Text)
	}
	if !result.Competitive.Generated {
		t.Error("competitive analysis should be model generated")
	}
	if len(result.Charts.Top) == 0 {
		t.Error("metric tiles should land in the top tier")
	}
	if len(result.Charts.Additional) == 0 {
		t.Error("the local plot should land in the additional tier")
	}
	if result.TextColor != "#ffffff" {
		t.Errorf("dark brand color should pick light text, got %q", result.TextColor)
	}
	if result.BuiltAt.IsZero() {
		t.Error("BuiltAt should be set")
	}

	if len(stages) == 0 || stages[len(stages)-1] != "done" {
		t.Errorf("progress should end at done, got %v", stages)
	}
}

func TestDeckBuilderRequiresBrandName(t *testing.T) {
	gen := &scriptedGenerator{}
	builder := newTestDeckBuilder(gen, "http://127.0.0.1:1")

	_, err := builder.Build(context.Background(), "  ", "#112233", nil, BuildOptions{})
	if !errors.Is(err, utils.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if len(gen.prompts) != 0 {
		t.Error("validation must happen before any model call")
	}
}

func TestDeckBuilderAllDocumentsFailed(t *testing.T) {
	gen := &scriptedGenerator{scripts: []promptScript{
		{match: "Summarize the following document section", err: errors.New("backend down")},
	}}
	builder := newTestDeckBuilder(gen, "http://127.0.0.1:1")

	long := strings.Repeat("words that force a real summarization call for this document ", 40)
	docs := []RoutableDocument{
		{ID: "doc-1", Text: long},
		{ID: "doc-2", Text: long},
	}

	_, err := builder.Build(context.Background(), "Acme", "#112233", docs, BuildOptions{})
	if !errors.Is(err, utils.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable when every document fails, got %v", err)
	}
}

func TestDeckBuilderDegradesStageByStage(t *testing.T) {
	// Every prompt errors: the failed long document is dropped, extraction
	// and competitive fall back, and the build still completes.
	gen := &scriptedGenerator{}
	builder := newTestDeckBuilder(gen, "http://127.0.0.1:1")

	docs := []RoutableDocument{
		{ID: "doc-public", Sensitive: false, Text: "Quarterly revenue grew across all product lines."},
		{ID: "doc-failed", Sensitive: false, Text: strings.Repeat("long document that needs a model summary to contribute anything here ", 40)},
		{ID: "doc-secret", Sensitive: true, Text: "Budget: $2 million\nConfidential expansion roadmap for internal planning purposes only."},
	}

	result, err := builder.Build(context.Background(), "Acme", "#112233", docs, BuildOptions{BatchSensitive: true})
	if err != nil {
		t.Fatalf("partial failure must not abort the build: %v", err)
	}

	if result.Provenance.FailedDocuments != 1 || result.Provenance.RemoteDocuments != 1 || result.Provenance.LocalDocuments != 1 {
		t.Errorf("unexpected provenance %+v", result.Provenance)
	}
	if result.Summary.Empty || result.Summary.Text == "" {
		t.Error("surviving contributions should still produce a summary")
	}
	if !strings.Contains(result.Summary.Text, "Quarterly revenue grew") {
		t.Errorf("fallback summary should keep the surviving content, got %q", result.Summary.Text)
	}

	foundBudget := false
	for _, m := range result.Metrics {
		if m.Name == "Budget" && m.Value == 2 && m.Unit == "millions-of-dollars" {
			foundBudget = true
		}
	}
	if !foundBudget {
		t.Errorf("heuristic metric should survive extraction failure, got %+v", result.Metrics)
	}

	if result.Competitive.Generated {
		t.Error("competitive fallback must be marked as not generated")
	}
	if !strings.Contains(result.Competitive.Positioning.Narrative, "Acme") {
		t.Error("generic fallback narrative should name the brand")
	}
	if len(result.Tables) != 0 || len(result.TimeSeries) != 0 {
		t.Error("failed extraction contributes no tables or series")
	}
}

func TestDeckBuilderMergeFailureJoinsSummaries(t *testing.T) {
	gen := &scriptedGenerator{scripts: []promptScript{
		{match: "Combine the following section summaries", err: errors.New("merge quota exhausted")},
		{match: "business analyst extracting structured data", response: `{"tables": [], "keyMetrics": [], "timeSeriesData": []}`},
		{match: "competitive intelligence analyst", response: `{"competitors": [], "positioning": {}, "landscape": {}, "recommendations": []}`},
	}}
	builder := newTestDeckBuilder(gen, "http://127.0.0.1:1")

	docs := []RoutableDocument{
		{ID: "doc-1", Text: "First short document about revenue."},
		{ID: "doc-2", Text: "Second short document about growth."},
	}

	result, err := builder.Build(context.Background(), "Acme", "#112233", docs, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "First short document about revenue.\n\nSecond short document about growth."
	if result.Summary.Text != want {
		t.Errorf("merge failure should fall back to joined summaries:\ngot  %q\nwant %q", result.Summary.Text, want)
	}
}

func TestDeckBuilderTopChartCountOverride(t *testing.T) {
	gen := &scriptedGenerator{scripts: []promptScript{
		{match: "business analyst extracting structured data", response: `{"tables": [], "keyMetrics": [
			{"name": "Revenue", "value": "$10 million"},
			{"name": "Margin", "value": "40%"},
			{"name": "Users", "value": "52,000"}
		], "timeSeriesData": []}`},
		{match: "competitive intelligence analyst", response: `{"competitors": [], "positioning": {}, "landscape": {}, "recommendations": []}`},
	}}
	builder := newTestDeckBuilder(gen, "http://127.0.0.1:1")

	docs := []RoutableDocument{
		{ID: "doc-1", Text: "Short document naming three headline figures."},
	}

	result, err := builder.Build(context.Background(), "Acme", "#112233", docs, BuildOptions{TopChartCount: 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Charts.Top) != 2 {
		t.Errorf("top tier should honor the override, got %d charts", len(result.Charts.Top))
	}
	if len(result.Charts.Additional) != 1 {
		t.Errorf("overflow should land in the additional tier, got %d charts", len(result.Charts.Additional))
	}
}
