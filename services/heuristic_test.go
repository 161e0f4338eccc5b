package services

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestHeuristicSummarizeLeadingSentences(t *testing.T) {
	h := NewHeuristicService()
	text := "Acme Corporation reported strong quarterly results. Revenue grew across all segments this year. The board approved a new expansion plan. This fourth sentence must not appear."

	summary := h.Summarize(text, 300)
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
	if !strings.HasSuffix(summary, ".") {
		t.Errorf("summary should end with a period: %q", summary)
	}
	if !strings.Contains(summary, "Acme Corporation") {
		t.Errorf("summary should keep the first sentence: %q", summary)
	}
	if strings.Contains(summary, "fourth sentence") {
		t.Errorf("summary should only keep the first three sentences: %q", summary)
	}
}

func TestHeuristicSummarizeSkipsShortFragments(t *testing.T) {
	h := NewHeuristicService()
	text := "Q3 Report. Revenue grew forty percent against the prior year baseline. Done."

	summary := h.Summarize(text, 300)
	if strings.Contains(summary, "Q3 Report") {
		t.Errorf("short heading fragment should be skipped: %q", summary)
	}
	if !strings.Contains(summary, "Revenue grew forty percent") {
		t.Errorf("long sentence should survive: %q", summary)
	}
}

func TestHeuristicSummarizeTruncation(t *testing.T) {
	h := NewHeuristicService()
	text := strings.Repeat("word ", 50) + "end of the very long first sentence."

	summary := h.Summarize(text, 40)
	if len([]rune(summary)) > 41 {
		t.Errorf("summary exceeds max length plus closing period: %d runes", len([]rune(summary)))
	}
}

func TestHeuristicSummarizeEmptyInput(t *testing.T) {
	h := NewHeuristicService()
	if got := h.Summarize("", 300); got != "" {
		t.Errorf("empty input should yield empty summary, got %q", got)
	}
}

func TestHeuristicKeywordsDeterministic(t *testing.T) {
	h := NewHeuristicService()
	text := "Acme Platform drives revenue growth through customer engagement. The platform strategy emphasizes market expansion and technology innovation. Customer retention improved while revenue climbed."

	first := h.ExtractKeywords(text, 10)
	second := h.ExtractKeywords(text, 10)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("keyword extraction not deterministic:\n%v\n%v", first, second)
	}
	if len(first) == 0 {
		t.Fatal("expected keywords from business text")
	}
}

func TestHeuristicKeywordsFilterStopWords(t *testing.T) {
	h := NewHeuristicService()
	text := "The revenue and the growth of the market through their strategy."

	for _, kw := range h.ExtractKeywords(text, 10) {
		if heuristicStopWords[kw] {
			t.Errorf("stop word %q leaked into keywords", kw)
		}
	}
}

func TestHeuristicKeywordsBusinessTerms(t *testing.T) {
	h := NewHeuristicService()
	text := "Quarterly revenue exceeded forecast while customer acquisition accelerated."

	keywords := h.ExtractKeywords(text, 10)
	joined := strings.Join(keywords, " ")
	if !strings.Contains(joined, "revenue") {
		t.Errorf("expected revenue in keywords, got %v", keywords)
	}
	if !strings.Contains(joined, "customer") {
		t.Errorf("expected customer in keywords, got %v", keywords)
	}
}

func TestHeuristicKeywordsCap(t *testing.T) {
	h := NewHeuristicService()
	text := "Revenue profit sales growth market customer product service strategy technology digital platform solution system process management innovation."

	if got := h.ExtractKeywords(text, 3); len(got) > 3 {
		t.Errorf("expected at most 3 keywords, got %d: %v", len(got), got)
	}
}

func TestHeuristicScrapeMetrics(t *testing.T) {
	h := NewHeuristicService()
	text := "Annual Revenue: $12.5 million\nGrowth Rate: 35%\nMission: deliver excellence\nEmployee Count: 450 people\nrandom line without structure"

	metrics := h.ScrapeMetrics(text)
	if len(metrics) != 3 {
		t.Fatalf("expected 3 metrics, got %d: %v", len(metrics), metrics)
	}
	if metrics[0] != "Annual Revenue: $12.5 million" {
		t.Errorf("unexpected first metric: %q", metrics[0])
	}
	for _, m := range metrics {
		if strings.Contains(m, "Mission") {
			t.Errorf("value without digits should be rejected: %q", m)
		}
	}
}

func TestHeuristicScrapeMetricsStripsNumbering(t *testing.T) {
	h := NewHeuristicService()
	text := "1. Gross Margin: 68%\n- Monthly Users: 2.3 million"

	metrics := h.ScrapeMetrics(text)
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %v", metrics)
	}
	if metrics[0] != "Gross Margin: 68%" {
		t.Errorf("numbering prefix should be stripped: %q", metrics[0])
	}
}

func TestHeuristicScrapeMetricsDedupeAndCap(t *testing.T) {
	h := NewHeuristicService()

	dup := strings.Repeat("Revenue: $5 million\n", 4)
	if got := h.ScrapeMetrics(dup); len(got) != 1 {
		t.Errorf("duplicate lines should collapse to one metric, got %v", got)
	}

	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, fmt.Sprintf("Metric %c: %d", 'A'+i, (i+1)*10))
	}
	if got := h.ScrapeMetrics(strings.Join(lines, "\n")); len(got) > 8 {
		t.Errorf("metrics should be capped at 8, got %d", len(got))
	}
}

func TestHeuristicPlotsAlignLabelsAndValues(t *testing.T) {
	h := NewHeuristicService()

	plots := h.buildPlots([]string{"revenue", "growth", "market"})
	if len(plots) != 1 {
		t.Fatalf("three keywords should yield one plot, got %d", len(plots))
	}
	if plots[0].Type != "bar" || plots[0].Title != "Key Topics Analysis" {
		t.Errorf("unexpected first plot: %+v", plots[0])
	}
	if len(plots[0].Labels) != len(plots[0].Values) {
		t.Errorf("labels and values must align: %d vs %d", len(plots[0].Labels), len(plots[0].Values))
	}

	plots = h.buildPlots([]string{"revenue", "growth", "market", "customer", "product"})
	if len(plots) != 2 {
		t.Fatalf("five keywords should yield two plots, got %d", len(plots))
	}
	if plots[1].Type != "pie" {
		t.Errorf("second plot should be a pie chart, got %q", plots[1].Type)
	}
	if len(plots[1].Labels) != 4 || len(plots[1].Values) != 4 {
		t.Errorf("pie plot should carry four aligned entries: %+v", plots[1])
	}
}

func TestHeuristicPlotsEmptyKeywords(t *testing.T) {
	h := NewHeuristicService()
	if plots := h.buildPlots(nil); len(plots) != 0 {
		t.Errorf("no keywords should yield no plots, got %v", plots)
	}
}

func TestHeuristicProcessShape(t *testing.T) {
	h := NewHeuristicService()
	text := "Acme Corporation grew revenue to $12.5 million this year. Customer growth reached 35% across all market segments. The expansion strategy targets three new regions.\nAnnual Revenue: $12.5 million"

	result := h.Process(text, 300, 10)
	if !result.ProcessedLocally {
		t.Error("heuristic results are always local")
	}
	if result.ProcessedWithAI {
		t.Error("heuristic results must not claim model backing")
	}
	if result.Model != "heuristic" {
		t.Errorf("unexpected model label %q", result.Model)
	}
	if result.TextLength != len(text) {
		t.Errorf("text length mismatch: got %d want %d", result.TextLength, len(text))
	}
	if result.Summary == "" || len(result.Keywords) == 0 {
		t.Errorf("expected summary and keywords, got %+v", result)
	}
	if result.Insights == "" {
		t.Error("expected fallback insights text")
	}
}
