package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

// CompetitiveAnalyzer produces the competitive section of a deck from the
// combined corpus. Findings must be evidenced in the corpus; when the
// model cannot deliver that, the analyzer returns a fixed generic
// fallback with Generated false so it never reads as a real finding.
type CompetitiveAnalyzer struct {
	generator TextGenerator
	config    *config.Config
}

// NewCompetitiveAnalyzer creates a new competitive analyzer.
func NewCompetitiveAnalyzer(generator TextGenerator, cfg *config.Config) *CompetitiveAnalyzer {
	return &CompetitiveAnalyzer{
		generator: generator,
		config:    cfg,
	}
}

// GenericCompetitiveFallback is the fixed low-confidence analysis used
// when no grounded analysis is possible. The competitor list stays empty
// and the copy is deliberately generic so it cannot be mistaken for an
// extracted fact.
func GenericCompetitiveFallback(brandName string) models.CompetitiveAnalysis {
	return models.CompetitiveAnalysis{
		Competitors: []models.CompetitorProfile{},
		Positioning: models.Positioning{
			Advantages:      []string{"Established brand identity", "Documented product and service offering"},
			Differentiators: []string{"Positioning grounded in the brand's own materials"},
			Threats:         []string{"General competitive pressure in the broader market"},
			Opportunities:   []string{"Expansion into adjacent segments", "Deeper engagement with existing customers"},
			Narrative:       fmt.Sprintf("%s operates in a competitive environment. The supplied documents did not support a deeper competitive read.", brandName),
		},
		Landscape: models.Landscape{
			Intensity: "unknown",
		},
		Recommendations: []string{
			"Collect competitor-specific market data",
			"Track market share and pricing against named competitors",
		},
		Generated: false,
	}
}

type rawCompetitive struct {
	Competitors []struct {
		Name           string            `json:"name"`
		Relationship   string            `json:"relationship"`
		Strengths      []string          `json:"strengths"`
		Weaknesses     []string          `json:"weaknesses"`
		MarketPosition string            `json:"marketPosition"`
		Metrics        map[string]string `json:"metrics"`
	} `json:"competitors"`
	Positioning struct {
		Advantages      []string `json:"advantages"`
		Differentiators []string `json:"differentiators"`
		Threats         []string `json:"threats"`
		Opportunities   []string `json:"opportunities"`
		Narrative       string   `json:"narrative"`
	} `json:"positioning"`
	Landscape struct {
		MarketSize string   `json:"marketSize"`
		GrowthRate string   `json:"growthRate"`
		Trends     []string `json:"trends"`
		Intensity  string   `json:"intensity"`
	} `json:"landscape"`
	Recommendations []string `json:"recommendations"`
}

// Analyze runs competitive analysis over the corpus. The returned
// analysis is always renderable; a backend failure is reported alongside
// the generic fallback so the pipeline can log it and keep going.
func (ca *CompetitiveAnalyzer) Analyze(ctx context.Context, corpus, brandName string) (models.CompetitiveAnalysis, error) {
	if strings.TrimSpace(corpus) == "" {
		return GenericCompetitiveFallback(brandName), nil
	}

	resp, err := ca.generator.Generate(ctx, ca.buildPrompt(corpus, brandName))
	if err != nil {
		return GenericCompetitiveFallback(brandName), fmt.Errorf("competitive analysis failed: %w", err)
	}

	return ca.ParseAnalysis(resp, corpus, brandName), nil
}

// ParseAnalysis turns a raw model response into a typed analysis. Parse
// failures collapse to the generic fallback. Direct competitors whose
// names do not appear in the corpus are dropped; indirect ones may be
// inferred from context and pass through.
func (ca *CompetitiveAnalyzer) ParseAnalysis(raw, corpus, brandName string) models.CompetitiveAnalysis {
	cleaned := extractJSONObject(stripCodeFences(raw))
	if cleaned == "" {
		return GenericCompetitiveFallback(brandName)
	}

	var parsed rawCompetitive
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		log.Printf("⚠️ Competitive response did not parse, using generic fallback: %v", err)
		return GenericCompetitiveFallback(brandName)
	}

	corpusLower := strings.ToLower(corpus)
	competitors := make([]models.CompetitorProfile, 0, len(parsed.Competitors))
	for _, c := range parsed.Competitors {
		name := strings.TrimSpace(c.Name)
		if name == "" || strings.EqualFold(name, brandName) {
			continue
		}
		relationship := normalizeRelationship(c.Relationship)
		if relationship == "direct" && !strings.Contains(corpusLower, strings.ToLower(name)) {
			log.Printf("⚠️ Dropping competitor %q: not evidenced in corpus", name)
			continue
		}
		competitors = append(competitors, models.CompetitorProfile{
			Name:           name,
			Relationship:   relationship,
			Strengths:      trimAll(c.Strengths),
			Weaknesses:     trimAll(c.Weaknesses),
			MarketPosition: strings.TrimSpace(c.MarketPosition),
			Metrics:        c.Metrics,
		})
	}

	return models.CompetitiveAnalysis{
		Competitors: competitors,
		Positioning: models.Positioning{
			Advantages:      trimAll(parsed.Positioning.Advantages),
			Differentiators: trimAll(parsed.Positioning.Differentiators),
			Threats:         trimAll(parsed.Positioning.Threats),
			Opportunities:   trimAll(parsed.Positioning.Opportunities),
			Narrative:       strings.TrimSpace(parsed.Positioning.Narrative),
		},
		Landscape: models.Landscape{
			MarketSize: strings.TrimSpace(parsed.Landscape.MarketSize),
			GrowthRate: strings.TrimSpace(parsed.Landscape.GrowthRate),
			Trends:     trimAll(parsed.Landscape.Trends),
			Intensity:  strings.TrimSpace(parsed.Landscape.Intensity),
		},
		Recommendations: trimAll(parsed.Recommendations),
		Generated:       true,
	}
}

func (ca *CompetitiveAnalyzer) buildPrompt(corpus, brandName string) string {
	maxChars := 60000
	if ca.config.MaxCorpusChars > 0 {
		maxChars = ca.config.MaxCorpusChars
	}

	return fmt.Sprintf(`You are a competitive intelligence analyst working for the brand "%s".

Analyze the document corpus below and return ONLY a JSON object, no prose, matching exactly this shape:
{
  "competitors": [{"name": "string", "relationship": "direct|indirect", "strengths": ["string"], "weaknesses": ["string"], "marketPosition": "string", "metrics": {"label": "value"}}],
  "positioning": {"advantages": ["string"], "differentiators": ["string"], "threats": ["string"], "opportunities": ["string"], "narrative": "string"},
  "landscape": {"marketSize": "string", "growthRate": "string", "trends": ["string"], "intensity": "low|moderate|high"},
  "recommendations": ["string"]
}

Rules:
1. Only name competitors that the corpus itself mentions. Never invent company names.
2. Indirect competitors may be inferred from context, marked "indirect".
3. Ground every strength, weakness and figure in the corpus.
4. Use empty arrays or empty strings where the corpus has nothing to say.

Corpus:
%s

JSON:`, brandName, truncateText(corpus, maxChars))
}

func normalizeRelationship(r string) string {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "direct":
		return "direct"
	case "indirect":
		return "indirect"
	}
	return "indirect"
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
