package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

// DataExtractor pulls tables, key metrics and time series out of a deck's
// combined corpus with a prompt-and-parse call against the remote model.
// Extraction is best-effort: any response that cannot be parsed into the
// expected schema collapses to the named empty payload.
type DataExtractor struct {
	generator TextGenerator
	config    *config.Config
}

// NewDataExtractor creates a new structured data extractor.
func NewDataExtractor(generator TextGenerator, cfg *config.Config) *DataExtractor {
	return &DataExtractor{
		generator: generator,
		config:    cfg,
	}
}

// EmptyExtraction is the fallback payload for empty corpora and
// unparseable extraction responses. All sections are present and empty so
// downstream stages render an empty state instead of failing.
func EmptyExtraction() models.ExtractionPayload {
	return models.ExtractionPayload{
		Tables:     []models.ExtractedTable{},
		KeyMetrics: []models.ExtractedMetric{},
		TimeSeries: []models.TimeSeriesPoint{},
	}
}

// rawExtraction is the wire shape of the extraction response. Values may
// legitimately arrive as numbers or strings depending on the model run, so
// cells decode through flexValue instead of failing the whole payload.
type rawExtraction struct {
	Tables []struct {
		Title   string        `json:"title"`
		Headers []flexValue   `json:"headers"`
		Rows    [][]flexValue `json:"rows"`
	} `json:"tables"`
	KeyMetrics []struct {
		Name  string    `json:"name"`
		Value flexValue `json:"value"`
		Unit  string    `json:"unit"`
		Trend string    `json:"trend"`
	} `json:"keyMetrics"`
	TimeSeriesData []struct {
		Series string    `json:"series"`
		Period string    `json:"period"`
		Value  flexValue `json:"value"`
	} `json:"timeSeriesData"`
}

// flexValue accepts a JSON string or number and keeps it as text.
type flexValue string

func (v *flexValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = flexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = flexValue(n.String())
		return nil
	}
	return fmt.Errorf("value is neither string nor number")
}

var metricNumberPattern = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)

// Extract runs structured data extraction over the corpus. The returned
// payload is always usable; a backend failure is reported alongside the
// empty payload so the pipeline can log it and keep going.
func (de *DataExtractor) Extract(ctx context.Context, corpus, brandName string) (models.ExtractionPayload, error) {
	if strings.TrimSpace(corpus) == "" {
		return EmptyExtraction(), nil
	}

	resp, err := de.generator.Generate(ctx, de.buildExtractionPrompt(corpus, brandName))
	if err != nil {
		return EmptyExtraction(), fmt.Errorf("data extraction failed: %w", err)
	}

	return de.ParsePayload(resp), nil
}

// ParsePayload turns a raw model response into a typed extraction payload.
// The response is untrusted text: code fences are stripped, the JSON
// object located, then the schema decoded and repaired. Anything that
// fails on the way yields the empty payload, never an error.
func (de *DataExtractor) ParsePayload(raw string) models.ExtractionPayload {
	cleaned := extractJSONObject(stripCodeFences(raw))
	if cleaned == "" {
		return EmptyExtraction()
	}

	var parsed rawExtraction
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		log.Printf("⚠️ Extraction response did not parse, using empty payload: %v", err)
		return EmptyExtraction()
	}

	tables := make([]models.ExtractedTable, 0, len(parsed.Tables))
	for _, t := range parsed.Tables {
		headers := make([]string, len(t.Headers))
		for i, h := range t.Headers {
			headers[i] = string(h)
		}
		rows := make([][]string, len(t.Rows))
		for i, row := range t.Rows {
			rows[i] = make([]string, len(row))
			for j, cell := range row {
				rows[i][j] = string(cell)
			}
		}
		tables = append(tables, models.ExtractedTable{Title: t.Title, Headers: headers, Rows: rows})
	}

	metrics := make([]models.ExtractedMetric, 0, len(parsed.KeyMetrics))
	for _, m := range parsed.KeyMetrics {
		name := strings.TrimSpace(m.Name)
		rawValue := strings.TrimSpace(string(m.Value))
		if name == "" || rawValue == "" {
			continue
		}
		value, unit, ok := parseMetricValue(rawValue)
		if !ok {
			continue
		}
		if u := strings.TrimSpace(m.Unit); u != "" {
			unit = u
		}
		metrics = append(metrics, models.ExtractedMetric{
			Name:     name,
			Value:    value,
			RawValue: rawValue,
			Unit:     unit,
			Trend:    normalizeTrend(m.Trend),
		})
	}

	series := make([]models.TimeSeriesPoint, 0, len(parsed.TimeSeriesData))
	for _, p := range parsed.TimeSeriesData {
		name := strings.TrimSpace(p.Series)
		period := strings.TrimSpace(p.Period)
		if name == "" || period == "" {
			continue
		}
		value, _, ok := parseMetricValue(string(p.Value))
		if !ok {
			continue
		}
		series = append(series, models.TimeSeriesPoint{Series: name, Period: period, Value: value})
	}

	return models.ExtractionPayload{
		Tables:     repairTables(tables),
		KeyMetrics: metrics,
		TimeSeries: series,
	}
}

func (de *DataExtractor) buildExtractionPrompt(corpus, brandName string) string {
	return fmt.Sprintf(`You are a business analyst extracting structured data for the brand "%s".

Analyze the document corpus below and return ONLY a JSON object, no prose, matching exactly this shape:
{
  "tables": [{"title": "string", "headers": ["string"], "rows": [["string"]]}],
  "keyMetrics": [{"name": "string", "value": "string", "unit": "string", "trend": "up|down|flat"}],
  "timeSeriesData": [{"series": "string", "period": "string", "value": 0}]
}

Rules:
1. Only include figures that appear in the corpus. Never invent numbers.
2. Every table row must have exactly as many cells as there are headers.
3. Keep the original value formatting in "value" (for example "$12.5 million").
4. Use an empty array for any section with nothing to report.

Corpus:
%s

JSON:`, brandName, truncateText(corpus, de.maxCorpusChars()))
}

func (de *DataExtractor) maxCorpusChars() int {
	if de.config.MaxCorpusChars > 0 {
		return de.config.MaxCorpusChars
	}
	return 60000
}

// stripCodeFences removes markdown code-fence markers around a model
// response, including a language tag on the opening fence.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject slices out the outermost JSON object so stray prose
// around the payload does not break decoding. Returns "" when there is no
// object at all.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// repairTables enforces the rectangular-table invariant: rows are padded
// or truncated to the header count, and tables without a single usable
// header are dropped before anything reaches the chart generator.
func repairTables(tables []models.ExtractedTable) []models.ExtractedTable {
	repaired := make([]models.ExtractedTable, 0, len(tables))
	for _, table := range tables {
		headers := make([]string, len(table.Headers))
		usable := false
		for i, hdr := range table.Headers {
			headers[i] = strings.TrimSpace(hdr)
			if headers[i] != "" {
				usable = true
			}
		}
		if !usable {
			continue
		}

		rows := make([][]string, len(table.Rows))
		for i, row := range table.Rows {
			fixed := make([]string, len(headers))
			for j := range fixed {
				if j < len(row) {
					fixed[j] = strings.TrimSpace(row[j])
				}
			}
			rows[i] = fixed
		}

		repaired = append(repaired, models.ExtractedTable{
			Title:   strings.TrimSpace(table.Title),
			Headers: headers,
			Rows:    rows,
		})
	}
	return repaired
}

// ParseMetricString parses a "Name: Value" metric line, the shape both
// the local sidecar and the heuristic produce.
func ParseMetricString(s string) (models.ExtractedMetric, bool) {
	name, rawValue, ok := strings.Cut(s, ":")
	if !ok {
		return models.ExtractedMetric{}, false
	}
	name = strings.TrimSpace(name)
	rawValue = strings.TrimSpace(rawValue)
	if name == "" || rawValue == "" {
		return models.ExtractedMetric{}, false
	}

	value, unit, ok := parseMetricValue(rawValue)
	if !ok {
		return models.ExtractedMetric{}, false
	}

	return models.ExtractedMetric{Name: name, Value: value, RawValue: rawValue, Unit: unit}, true
}

// parseMetricValue extracts the numeric value and a normalized unit from a
// raw metric value like "$12.5 million", "35%" or "450 people".
func parseMetricValue(raw string) (float64, string, bool) {
	match := metricNumberPattern.FindString(raw)
	if match == "" {
		return 0, "", false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSuffix(match, "."), ",", ""), 64)
	if err != nil {
		return 0, "", false
	}

	lower := strings.ToLower(raw)
	currency := strings.ContainsAny(raw, "$€£")

	scale := ""
	switch {
	case strings.Contains(lower, "billion"):
		scale = "billions"
	case strings.Contains(lower, "million"):
		scale = "millions"
	case strings.Contains(lower, "thousand"):
		scale = "thousands"
	}
	if scale == "" {
		// Compact suffixes like 12.5M or $3B, only when directly attached.
		if i := strings.Index(raw, match); i >= 0 {
			suffix := raw[i+len(match):]
			if len(suffix) > 0 && (len(suffix) == 1 || !unicode.IsLetter(rune(suffix[1]))) {
				switch suffix[0] {
				case 'B':
					scale = "billions"
				case 'M':
					scale = "millions"
				case 'K', 'k':
					scale = "thousands"
				}
			}
		}
	}

	switch {
	case scale != "" && currency:
		return value, scale + "-of-dollars", true
	case currency:
		return value, "dollars", true
	case strings.Contains(raw, "%") || strings.Contains(lower, "percent"):
		return value, "percent", true
	case scale != "":
		return value, scale, true
	}

	// A short trailing word, e.g. "450 people", becomes a free-form unit.
	rest := strings.TrimSpace(strings.Replace(raw, match, "", 1))
	rest = strings.Trim(rest, " .,")
	if rest != "" && len(rest) <= 20 && isAlphaPhrase(strings.ToLower(rest)) {
		return value, strings.ToLower(rest), true
	}
	return value, "", true
}

func normalizeTrend(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "up":
		return "up"
	case "down":
		return "down"
	case "flat":
		return "flat"
	}
	return ""
}
