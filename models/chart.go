package models

// Chart kind constants. The set is closed; renderers switch on it.
const (
	ChartKindComparison   = "categorical-comparison"
	ChartKindDistribution = "proportional-distribution"
	ChartKindMetricTile   = "key-metric-tile"
)

// ChartSpec is a renderer-agnostic description of one chart. Labels and
// Values have equal length for the comparison and distribution kinds; the
// metric-tile kind carries Metrics instead.
type ChartSpec struct {
	Title        string            `bson:"title" json:"title"`
	Kind         string            `bson:"kind" json:"kind"`
	Labels       []string          `bson:"labels,omitempty" json:"labels,omitempty"`
	Values       []float64         `bson:"values,omitempty" json:"values,omitempty"`
	Metrics      []ExtractedMetric `bson:"metrics,omitempty" json:"metrics,omitempty"`
	Colors       []string          `bson:"colors,omitempty" json:"colors,omitempty"`
	BorderColors []string          `bson:"border_colors,omitempty" json:"border_colors,omitempty"`
	TextColor    string            `bson:"text_color,omitempty" json:"text_color,omitempty"`
	Source       string            `bson:"source,omitempty" json:"source,omitempty"` // table title or series name the spec came from
}
