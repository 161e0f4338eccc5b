package models

import "time"

// TextChunk is one fixed-size slice of a document's extracted text.
// Chunks are ephemeral; they exist only while a deck build is running.
type TextChunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	DocumentID string `json:"document_id,omitempty"`
}

// ChunkSummary is the bounded abstractive summary of a single chunk.
type ChunkSummary struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// MasterSummary is the merged summary over all chunk summaries of a corpus.
// Empty marks the zero-summaries case so callers can render a placeholder
// instead of an empty paragraph.
type MasterSummary struct {
	Text  string `json:"text"`
	Empty bool   `json:"empty"`
}

// ExtractedMetric is a single KPI-style figure pulled out of the corpus.
// Value and Unit are independently interpretable: "Revenue: $12.5 million"
// yields Value 12.5 with a millions-of-dollars unit, RawValue keeps the
// original token.
type ExtractedMetric struct {
	Name     string  `bson:"name" json:"name"`
	Value    float64 `bson:"value" json:"value"`
	RawValue string  `bson:"raw_value,omitempty" json:"raw_value,omitempty"`
	Unit     string  `bson:"unit,omitempty" json:"unit,omitempty"`
	Trend    string  `bson:"trend,omitempty" json:"trend,omitempty"` // up, down, flat or empty
}

// ExtractedTable is a rectangular table pulled out of the corpus. Every row
// has exactly len(Headers) cells once it has passed the repair step.
type ExtractedTable struct {
	Title   string     `bson:"title" json:"title"`
	Headers []string   `bson:"headers" json:"headers"`
	Rows    [][]string `bson:"rows" json:"rows"`
}

// TimeSeriesPoint is one dated observation of a named series.
type TimeSeriesPoint struct {
	Series string  `bson:"series" json:"series"`
	Period string  `bson:"period" json:"period"`
	Value  float64 `bson:"value" json:"value"`
}

// ExtractionPayload is the parsed structured-data response. A parse failure
// yields the zero value of this struct, never an error.
type ExtractionPayload struct {
	Tables     []ExtractedTable  `json:"tables"`
	KeyMetrics []ExtractedMetric `json:"keyMetrics"`
	TimeSeries []TimeSeriesPoint `json:"timeSeriesData"`
}

// DocumentProvenance records the path one document took during a build.
type DocumentProvenance struct {
	DocumentID string `bson:"document_id" json:"document_id"`
	Route      string `bson:"route" json:"route"`
	Failed     bool   `bson:"failed,omitempty" json:"failed,omitempty"`
}

// Provenance records how each document of a deck build was processed,
// per document and in aggregate. It never carries document content.
type Provenance struct {
	RemoteDocuments int                  `bson:"remote_documents" json:"remote_documents"`
	LocalDocuments  int                  `bson:"local_documents" json:"local_documents"`
	FailedDocuments int                  `bson:"failed_documents" json:"failed_documents"`
	Documents       []DocumentProvenance `bson:"documents,omitempty" json:"documents,omitempty"`
}

// ChartSet splits generated chart specs into the KPI-level top tier and the
// long tail shown behind a fold.
type ChartSet struct {
	Top        []ChartSpec `bson:"top" json:"top"`
	Additional []ChartSpec `bson:"additional" json:"additional"`
}

// ProcessingResult is the complete output of one deck build. It is
// constructed once by the result builder and never mutated afterwards;
// rebuilds produce a new deck with a new result.
type ProcessingResult struct {
	Corpus      string              `bson:"corpus" json:"corpus"`
	Summary     MasterSummary       `bson:"summary" json:"summary"`
	Tables      []ExtractedTable    `bson:"tables" json:"tables"`
	Metrics     []ExtractedMetric   `bson:"metrics" json:"metrics"`
	TimeSeries  []TimeSeriesPoint   `bson:"time_series" json:"time_series"`
	Charts      ChartSet            `bson:"charts" json:"charts"`
	Competitive CompetitiveAnalysis `bson:"competitive" json:"competitive"`
	Provenance  Provenance          `bson:"provenance" json:"provenance"`
	BrandName   string              `bson:"brand_name" json:"brand_name"`
	BrandColor  string              `bson:"brand_color" json:"brand_color"`
	TextColor   string              `bson:"text_color" json:"text_color"`
	BuiltAt     time.Time           `bson:"built_at" json:"built_at"`
}
