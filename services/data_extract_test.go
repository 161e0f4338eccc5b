package services

import (
	"context"
	"errors"
	"testing"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

func newTestExtractor(gen *stubGenerator) *DataExtractor {
	return NewDataExtractor(gen, &config.Config{MaxCorpusChars: 60000})
}

const extractionJSON = `{
  "tables": [
    {"title": "Quarterly Revenue", "headers": ["Quarter", "Revenue"], "rows": [["Q1", "$2M"], ["Q2", "$3M"]]}
  ],
  "keyMetrics": [
    {"name": "Revenue", "value": "$12.5 million", "trend": "up"},
    {"name": "Growth Rate", "value": "35%"}
  ],
  "timeSeriesData": [
    {"series": "Revenue", "period": "Q1 2025", "value": 2},
    {"series": "Revenue", "period": "Q2 2025", "value": "3"}
  ]
}`

func TestExtractEmptyCorpus(t *testing.T) {
	gen := &stubGenerator{}
	de := newTestExtractor(gen)

	payload, err := de.Extract(context.Background(), "   ", "Acme")
	if err != nil {
		t.Fatalf("empty corpus should not fail: %v", err)
	}
	if len(payload.Tables) != 0 || len(payload.KeyMetrics) != 0 || len(payload.TimeSeries) != 0 {
		t.Errorf("empty corpus should yield empty payload: %+v", payload)
	}
	if len(gen.prompts) != 0 {
		t.Error("empty corpus must not hit the model")
	}
}

func TestExtractBackendFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("backend timeout")}
	de := newTestExtractor(gen)

	payload, err := de.Extract(context.Background(), "Revenue grew to $12.5 million.", "Acme")
	if err == nil {
		t.Error("backend failure should surface as an error")
	}
	if payload.Tables == nil || payload.KeyMetrics == nil || payload.TimeSeries == nil {
		t.Error("payload must stay usable even when the backend fails")
	}
}

func TestParsePayloadCleanJSON(t *testing.T) {
	de := newTestExtractor(&stubGenerator{})
	payload := de.ParsePayload(extractionJSON)

	if len(payload.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(payload.Tables))
	}
	if payload.Tables[0].Title != "Quarterly Revenue" || len(payload.Tables[0].Rows) != 2 {
		t.Errorf("unexpected table %+v", payload.Tables[0])
	}

	if len(payload.KeyMetrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(payload.KeyMetrics))
	}
	revenue := payload.KeyMetrics[0]
	if revenue.Name != "Revenue" || revenue.Value != 12.5 {
		t.Errorf("unexpected revenue metric %+v", revenue)
	}
	if revenue.Unit != "millions-of-dollars" {
		t.Errorf("revenue unit should normalize to millions-of-dollars, got %q", revenue.Unit)
	}
	if revenue.RawValue != "$12.5 million" {
		t.Errorf("raw value should be preserved, got %q", revenue.RawValue)
	}
	if revenue.Trend != "up" {
		t.Errorf("trend should carry through, got %q", revenue.Trend)
	}

	if len(payload.TimeSeries) != 2 {
		t.Fatalf("expected 2 time series points, got %d", len(payload.TimeSeries))
	}
	if payload.TimeSeries[1].Value != 3 {
		t.Errorf("string-typed value should still parse, got %v", payload.TimeSeries[1].Value)
	}
}

func TestParsePayloadCodeFenced(t *testing.T) {
	de := newTestExtractor(&stubGenerator{})
	payload := de.ParsePayload("```json\n" + extractionJSON + "\n```")

	if len(payload.Tables) != 1 || len(payload.KeyMetrics) != 2 {
		t.Errorf("fenced response should parse like bare JSON: %+v", payload)
	}
}

func TestParsePayloadProseWrapped(t *testing.T) {
	de := newTestExtractor(&stubGenerator{})
	payload := de.ParsePayload("Here is the extracted data:\n" + extractionJSON + "\nLet me know if you need more.")

	if len(payload.KeyMetrics) != 2 {
		t.Errorf("prose around the object should be ignored: %+v", payload)
	}
}

func TestParsePayloadGarbageFallsBack(t *testing.T) {
	de := newTestExtractor(&stubGenerator{})

	for _, raw := range []string{"", "no json here", "{broken", `{"tables": "not an array"}`} {
		payload := de.ParsePayload(raw)
		if payload.Tables == nil || payload.KeyMetrics == nil || payload.TimeSeries == nil {
			t.Errorf("fallback payload must carry empty sections, not nil: %q", raw)
		}
		if len(payload.Tables) != 0 || len(payload.KeyMetrics) != 0 || len(payload.TimeSeries) != 0 {
			t.Errorf("unparseable input %q should yield empty payload: %+v", raw, payload)
		}
	}
}

func TestRepairTablesRectangular(t *testing.T) {
	tables := []models.ExtractedTable{
		{
			Title:   "Mixed Rows",
			Headers: []string{"Region", "Revenue", "Growth"},
			Rows: [][]string{
				{"North", "$2M"},
				{"South", "$3M", "12%", "extra cell"},
			},
		},
		{
			Title:   "No Headers",
			Headers: []string{"", "  "},
			Rows:    [][]string{{"orphan", "row"}},
		},
	}

	repaired := repairTables(tables)
	if len(repaired) != 1 {
		t.Fatalf("header-less table should be dropped, got %d tables", len(repaired))
	}
	for _, row := range repaired[0].Rows {
		if len(row) != len(repaired[0].Headers) {
			t.Errorf("row width %d does not match header count %d", len(row), len(repaired[0].Headers))
		}
	}
	if repaired[0].Rows[0][2] != "" {
		t.Errorf("short row should be padded with empty cells, got %q", repaired[0].Rows[0][2])
	}
	if repaired[0].Rows[1][2] != "12%" {
		t.Errorf("long row should be truncated after repair, got %v", repaired[0].Rows[1])
	}
}

func TestParseMetricString(t *testing.T) {
	metric, ok := ParseMetricString("Annual Revenue: $12.5 million")
	if !ok {
		t.Fatal("expected metric to parse")
	}
	if metric.Name != "Annual Revenue" || metric.Value != 12.5 || metric.Unit != "millions-of-dollars" {
		t.Errorf("unexpected metric %+v", metric)
	}

	if _, ok := ParseMetricString("line without separator"); ok {
		t.Error("line without a colon should not parse")
	}
	if _, ok := ParseMetricString("Mission: deliver excellence"); ok {
		t.Error("value without a number should not parse")
	}
}

func TestParseMetricValueUnits(t *testing.T) {
	cases := []struct {
		raw   string
		value float64
		unit  string
	}{
		{"$12.5 million", 12.5, "millions-of-dollars"},
		{"$3B", 3, "billions-of-dollars"},
		{"1.2 billion", 1.2, "billions"},
		{"35%", 35, "percent"},
		{"15% YoY", 15, "percent"},
		{"450 people", 450, "people"},
		{"2,300", 2300, ""},
		{"$980", 980, "dollars"},
	}

	for _, tc := range cases {
		value, unit, ok := parseMetricValue(tc.raw)
		if !ok {
			t.Errorf("%q should parse", tc.raw)
			continue
		}
		if value != tc.value || unit != tc.unit {
			t.Errorf("%q: got (%v, %q), want (%v, %q)", tc.raw, value, unit, tc.value, tc.unit)
		}
	}

	if _, _, ok := parseMetricValue("no numbers at all"); ok {
		t.Error("value without digits should not parse")
	}
}

func TestParseMetricTrendNormalization(t *testing.T) {
	de := newTestExtractor(&stubGenerator{})
	payload := de.ParsePayload(`{"tables": [], "keyMetrics": [
		{"name": "A", "value": "5", "trend": "UP"},
		{"name": "B", "value": "6", "trend": "sideways"}
	], "timeSeriesData": []}`)

	if payload.KeyMetrics[0].Trend != "up" {
		t.Errorf("trend should be lowercased, got %q", payload.KeyMetrics[0].Trend)
	}
	if payload.KeyMetrics[1].Trend != "" {
		t.Errorf("unknown trend should collapse to empty, got %q", payload.KeyMetrics[1].Trend)
	}
}
