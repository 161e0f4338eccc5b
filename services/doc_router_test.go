package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestRouter(gen *stubGenerator, sidecarURL string) *DocumentRouter {
	cfg := localTestConfig(sidecarURL)
	cfg.ChunkSummaryMin = 100
	cfg.ChunkSummaryMax = 150
	cfg.MasterSummaryMin = 200
	cfg.MasterSummaryMax = 300

	return NewDocumentRouter(
		NewChunkerService(2000),
		NewSummarizationService(gen, cfg),
		NewLocalAIClient(cfg),
		cfg,
	)
}

func TestRouterSensitiveTextNeverReachesRemote(t *testing.T) {
	gen := &stubGenerator{response: "Remote summary of public material."}
	router := newTestRouter(gen, "http://127.0.0.1:1")

	// The marker token sits past the third sentence, so even the
	// extractive local summary cannot carry it into the corpus.
	sensitiveText := "Internal planning document for the next fiscal year. " +
		"It covers staffing and budget allocations across departments. " +
		"Nothing in here is cleared for external processing. " +
		"Codename CONFIDENTIAL-BLUEFIN must never appear in any remote payload."

	publicText := strings.Repeat("Public marketing copy describing products and revenue growth across markets. ", 30)

	docs := []RoutableDocument{
		{ID: "doc-public", Sensitive: false, Text: publicText},
		{ID: "doc-secret", Sensitive: true, Text: sensitiveText},
	}

	contributions := router.RouteAndProcess(context.Background(), docs, true)
	if len(contributions) != 2 {
		t.Fatalf("expected 2 contributions, got %d", len(contributions))
	}

	if len(gen.prompts) == 0 {
		t.Fatal("the long public document should have produced remote calls")
	}
	for _, prompt := range gen.prompts {
		if strings.Contains(prompt, "CONFIDENTIAL-BLUEFIN") {
			t.Fatal("sensitive document text leaked into a remote payload")
		}
		if strings.Contains(prompt, "Internal planning document") {
			t.Fatal("sensitive document text leaked into a remote payload")
		}
	}

	secret := contributions[1]
	if secret.Route != RoutedLocal {
		t.Errorf("sensitive document should route local, got %q", secret.Route)
	}
	if !strings.HasPrefix(secret.CorpusText, SensitiveSummaryMarker) {
		t.Errorf("local contribution must carry the summary marker: %q", secret.CorpusText)
	}
	if strings.Contains(secret.CorpusText, "CONFIDENTIAL-BLUEFIN") {
		t.Error("corpus summary should not carry content beyond the leading sentences")
	}

	public := contributions[0]
	if public.Route != RoutedRemote {
		t.Errorf("public document should route remote, got %q", public.Route)
	}
	if public.CorpusText != strings.TrimSpace(publicText) {
		t.Error("remote contribution should be the raw text")
	}
}

func TestRouterFastPathSkipsFlagInspection(t *testing.T) {
	gen := &stubGenerator{response: "summary"}
	router := newTestRouter(gen, "http://127.0.0.1:1")

	docs := []RoutableDocument{
		{ID: "doc-1", Sensitive: true, Text: "Short note about quarterly revenue figures and growth."},
	}

	contributions := router.RouteAndProcess(context.Background(), docs, false)
	if contributions[0].Route != RoutedRemote {
		t.Errorf("batch hint without sensitive content routes everything remote, got %q", contributions[0].Route)
	}
}

func TestRouterRemoteFailureIsolatedPerDocument(t *testing.T) {
	gen := &stubGenerator{err: errors.New("backend unavailable")}
	router := newTestRouter(gen, "http://127.0.0.1:1")

	docs := []RoutableDocument{
		{ID: "doc-long", Sensitive: false, Text: strings.Repeat("many words that force a real summarization call here ", 40)},
		{ID: "doc-secret", Sensitive: true, Text: "Confidential revenue projections covering the next planning cycle in detail."},
	}

	contributions := router.RouteAndProcess(context.Background(), docs, true)

	if !contributions[0].Failed {
		t.Error("remote failure should mark the document's contribution failed")
	}
	if contributions[0].CorpusText != "" {
		t.Error("failed contribution must not add corpus text")
	}
	if contributions[1].Failed {
		t.Error("local path must not be affected by remote failures")
	}
	if contributions[1].CorpusText == "" {
		t.Error("local contribution should still carry its summary")
	}
}

func TestRouterLocalContributionShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LocalProcessResponse{
			Summary:  "Internal metrics improved across the board.",
			Keywords: []string{"metrics", "internal"},
			Metrics:  []string{"Revenue: $3 million", "not a metric line"},
			PlotData: []LocalPlot{
				{Title: "Key Topics Analysis", Type: "bar", Labels: []string{"metrics", "internal"}, Values: []float64{20, 15}},
			},
			ProcessedWithAI: true,
			Model:           "llama-3.2-1b",
		})
	}))
	defer srv.Close()

	gen := &stubGenerator{}
	router := newTestRouter(gen, srv.URL)

	docs := []RoutableDocument{
		{ID: "doc-secret", Sensitive: true, Text: "Sensitive financial planning text for internal use only."},
	}
	contributions := router.RouteAndProcess(context.Background(), docs, true)

	c := contributions[0]
	if c.Route != RoutedLocal || c.Failed {
		t.Fatalf("unexpected contribution state %+v", c)
	}
	want := SensitiveSummaryMarker + "\nInternal metrics improved across the board."
	if c.CorpusText != want {
		t.Errorf("corpus text:\ngot  %q\nwant %q", c.CorpusText, want)
	}
	if len(c.Summaries) != 1 || c.Summaries[0].Text != "Internal metrics improved across the board." {
		t.Errorf("unexpected summaries %+v", c.Summaries)
	}
	if len(c.LocalMetrics) != 1 {
		t.Fatalf("expected 1 parsed metric, got %d", len(c.LocalMetrics))
	}
	if c.LocalMetrics[0].Name != "Revenue" || c.LocalMetrics[0].Value != 3 || c.LocalMetrics[0].Unit != "millions-of-dollars" {
		t.Errorf("unexpected metric %+v", c.LocalMetrics[0])
	}
	if len(c.LocalPlots) != 1 || c.LocalPlots[0].Type != "bar" {
		t.Errorf("unexpected plots %+v", c.LocalPlots)
	}
	if len(gen.prompts) != 0 {
		t.Error("local-only batch must not touch the remote model")
	}
}

func TestRouterEmptyTextDocuments(t *testing.T) {
	gen := &stubGenerator{}
	router := newTestRouter(gen, "http://127.0.0.1:1")

	docs := []RoutableDocument{
		{ID: "doc-empty-remote", Sensitive: false, Text: "   "},
		{ID: "doc-empty-local", Sensitive: true, Text: ""},
	}
	contributions := router.RouteAndProcess(context.Background(), docs, true)

	for i, c := range contributions {
		if c.Failed {
			t.Errorf("contribution %d: empty text is not a failure", i)
		}
		if c.CorpusText != "" || len(c.Summaries) != 0 {
			t.Errorf("contribution %d: empty text should contribute nothing, got %+v", i, c)
		}
	}
	if len(gen.prompts) != 0 {
		t.Error("empty documents must not hit any backend")
	}
}
