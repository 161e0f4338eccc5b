package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"brand-deck-platform/internal/config"
)

func newTestAnalyzer(gen *stubGenerator) *CompetitiveAnalyzer {
	return NewCompetitiveAnalyzer(gen, &config.Config{MaxCorpusChars: 60000})
}

const competitiveJSON = `{
  "competitors": [
    {"name": "Rival Corp", "relationship": "direct", "strengths": ["scale"], "weaknesses": ["slow releases"], "marketPosition": "incumbent"},
    {"name": "Phantom Inc", "relationship": "direct", "strengths": ["unknown"]},
    {"name": "Adjacent Labs", "relationship": "indirect"}
  ],
  "positioning": {
    "advantages": ["faster onboarding"],
    "differentiators": ["design-led product"],
    "threats": ["pricing pressure"],
    "opportunities": ["regional expansion"],
    "narrative": "Acme holds a challenger position against Rival Corp."
  },
  "landscape": {"marketSize": "$4B", "growthRate": "12% annually", "trends": ["consolidation"], "intensity": "high"},
  "recommendations": ["Invest in onboarding flows"]
}`

const competitiveCorpus = "Acme competes with Rival Corp in the mid-market. Rival Corp leads on scale while Acme wins on onboarding speed."

func TestAnalyzeEmptyCorpus(t *testing.T) {
	gen := &stubGenerator{}
	ca := newTestAnalyzer(gen)

	analysis, err := ca.Analyze(context.Background(), "  ", "Acme")
	if err != nil {
		t.Fatalf("empty corpus should not fail: %v", err)
	}
	if analysis.Generated {
		t.Error("empty corpus should yield the generic fallback")
	}
	if len(gen.prompts) != 0 {
		t.Error("empty corpus must not hit the model")
	}
}

func TestAnalyzeBackendFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("backend down")}
	ca := newTestAnalyzer(gen)

	analysis, err := ca.Analyze(context.Background(), competitiveCorpus, "Acme")
	if err == nil {
		t.Error("backend failure should surface as an error")
	}
	if analysis.Generated {
		t.Error("fallback must be marked as not generated")
	}
	if analysis.Competitors == nil || len(analysis.Competitors) != 0 {
		t.Errorf("fallback competitor list must be present and empty: %v", analysis.Competitors)
	}
}

func TestParseAnalysisGroundedCompetitors(t *testing.T) {
	ca := newTestAnalyzer(&stubGenerator{})
	analysis := ca.ParseAnalysis(competitiveJSON, competitiveCorpus, "Acme")

	if !analysis.Generated {
		t.Fatal("valid response should be marked generated")
	}
	if len(analysis.Competitors) != 2 {
		t.Fatalf("expected 2 competitors after grounding, got %d: %+v", len(analysis.Competitors), analysis.Competitors)
	}
	if analysis.Competitors[0].Name != "Rival Corp" || analysis.Competitors[0].Relationship != "direct" {
		t.Errorf("evidenced direct competitor should survive: %+v", analysis.Competitors[0])
	}
	for _, c := range analysis.Competitors {
		if c.Name == "Phantom Inc" {
			t.Error("direct competitor absent from the corpus must be dropped")
		}
	}
	if analysis.Competitors[1].Name != "Adjacent Labs" || analysis.Competitors[1].Relationship != "indirect" {
		t.Errorf("inferred indirect competitor should pass through: %+v", analysis.Competitors[1])
	}

	if analysis.Landscape.Intensity != "high" {
		t.Errorf("unexpected landscape %+v", analysis.Landscape)
	}
	if len(analysis.Recommendations) != 1 {
		t.Errorf("unexpected recommendations %v", analysis.Recommendations)
	}
}

func TestParseAnalysisFencedResponse(t *testing.T) {
	ca := newTestAnalyzer(&stubGenerator{})
	analysis := ca.ParseAnalysis("```json\n"+competitiveJSON+"\n```", competitiveCorpus, "Acme")

	if !analysis.Generated {
		t.Error("fenced response should parse like bare JSON")
	}
}

func TestParseAnalysisGarbageFallsBack(t *testing.T) {
	ca := newTestAnalyzer(&stubGenerator{})

	for _, raw := range []string{"", "not json", "{broken json"} {
		analysis := ca.ParseAnalysis(raw, competitiveCorpus, "Acme")
		if analysis.Generated {
			t.Errorf("unparseable input %q must yield the fallback", raw)
		}
		if analysis.Competitors == nil || len(analysis.Competitors) != 0 {
			t.Errorf("fallback competitor list must be present and empty for %q", raw)
		}
	}
}

func TestParseAnalysisDropsSelfReference(t *testing.T) {
	ca := newTestAnalyzer(&stubGenerator{})
	raw := `{"competitors": [{"name": "Acme", "relationship": "direct"}], "positioning": {}, "landscape": {}, "recommendations": []}`

	analysis := ca.ParseAnalysis(raw, "Acme competes in its market.", "Acme")
	if len(analysis.Competitors) != 0 {
		t.Errorf("the brand itself must never be listed as a competitor: %+v", analysis.Competitors)
	}
}

func TestGenericCompetitiveFallbackShape(t *testing.T) {
	fallback := GenericCompetitiveFallback("Acme")

	if fallback.Generated {
		t.Error("fallback must be marked as not generated")
	}
	if fallback.Competitors == nil || len(fallback.Competitors) != 0 {
		t.Error("fallback competitor list must be present and empty")
	}
	if !strings.Contains(fallback.Positioning.Narrative, "Acme") {
		t.Errorf("fallback narrative should name the brand: %q", fallback.Positioning.Narrative)
	}
	if len(fallback.Positioning.Advantages) == 0 || len(fallback.Recommendations) == 0 {
		t.Error("fallback should carry generic positioning copy")
	}
}

func TestAnalyzeParsesModelResponse(t *testing.T) {
	gen := &stubGenerator{response: competitiveJSON}
	ca := newTestAnalyzer(gen)

	analysis, err := ca.Analyze(context.Background(), competitiveCorpus, "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !analysis.Generated {
		t.Error("expected generated analysis from valid response")
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one model call, saw %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "Acme") || !strings.Contains(gen.prompts[0], competitiveCorpus[:20]) {
		t.Error("prompt should carry the brand name and corpus")
	}
}
