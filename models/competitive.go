package models

// CompetitorProfile describes one competitor evidenced in the corpus.
// Competitors are never invented; indirect ones may be inferred from context.
type CompetitorProfile struct {
	Name           string            `bson:"name" json:"name"`
	Relationship   string            `bson:"relationship" json:"relationship"` // direct or indirect
	Strengths      []string          `bson:"strengths,omitempty" json:"strengths,omitempty"`
	Weaknesses     []string          `bson:"weaknesses,omitempty" json:"weaknesses,omitempty"`
	MarketPosition string            `bson:"market_position,omitempty" json:"market_position,omitempty"`
	Metrics        map[string]string `bson:"metrics,omitempty" json:"metrics,omitempty"`
}

// Positioning captures how the brand sits against the field.
type Positioning struct {
	Advantages      []string `bson:"advantages,omitempty" json:"advantages,omitempty"`
	Differentiators []string `bson:"differentiators,omitempty" json:"differentiators,omitempty"`
	Threats         []string `bson:"threats,omitempty" json:"threats,omitempty"`
	Opportunities   []string `bson:"opportunities,omitempty" json:"opportunities,omitempty"`
	Narrative       string   `bson:"narrative,omitempty" json:"narrative,omitempty"`
}

// Landscape is the market-level view extracted from the corpus.
type Landscape struct {
	MarketSize string   `bson:"market_size,omitempty" json:"market_size,omitempty"`
	GrowthRate string   `bson:"growth_rate,omitempty" json:"growth_rate,omitempty"`
	Trends     []string `bson:"trends,omitempty" json:"trends,omitempty"`
	Intensity  string   `bson:"intensity,omitempty" json:"intensity,omitempty"`
}

// CompetitiveAnalysis is the full competitive section of a deck. Generated
// is false when the analysis is the generic fallback rather than a model
// finding, so renderers can flag it as low confidence.
type CompetitiveAnalysis struct {
	Competitors     []CompetitorProfile `bson:"competitors" json:"competitors"`
	Positioning     Positioning         `bson:"positioning" json:"positioning"`
	Landscape       Landscape           `bson:"landscape" json:"landscape"`
	Recommendations []string            `bson:"recommendations,omitempty" json:"recommendations,omitempty"`
	Generated       bool                `bson:"generated" json:"generated"`
}
