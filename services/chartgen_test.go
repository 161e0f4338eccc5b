package services

import (
	"strings"
	"testing"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

func newTestChartGenerator() *ChartGenerator {
	return NewChartGenerator(&config.Config{TopChartCount: 5})
}

func metricFor(name string, value float64) models.ExtractedMetric {
	return models.ExtractedMetric{Name: name, Value: value}
}

func TestGenerateEmptyPayload(t *testing.T) {
	cg := newTestChartGenerator()
	set := cg.Generate(EmptyExtraction(), nil, "#4e79a7", "Acme", 0)

	if set.Top == nil || set.Additional == nil {
		t.Fatal("chart tiers must be empty lists, not nil")
	}
	if len(set.Top) != 0 || len(set.Additional) != 0 {
		t.Errorf("empty payload should yield no charts: %+v", set)
	}
}

func TestGenerateRankingAndTiers(t *testing.T) {
	cg := newTestChartGenerator()
	payload := models.ExtractionPayload{
		KeyMetrics: []models.ExtractedMetric{
			metricFor("Revenue", 12.5),
			metricFor("Growth Rate", 35),
			metricFor("Headcount", 450),
		},
		Tables: []models.ExtractedTable{
			{Title: "Revenue by Region", Headers: []string{"Region", "Revenue"}, Rows: [][]string{{"North", "5"}, {"South", "3"}}},
			{Title: "Users by Plan", Headers: []string{"Plan", "Users"}, Rows: [][]string{{"Free", "900"}, {"Pro", "100"}}},
		},
		TimeSeries: []models.TimeSeriesPoint{
			{Series: "Revenue", Period: "Q1", Value: 2},
			{Series: "Revenue", Period: "Q2", Value: 3},
		},
	}

	set := cg.Generate(payload, nil, "#4e79a7", "Acme", 0)
	if len(set.Top) != 5 {
		t.Fatalf("expected 5 top charts, got %d", len(set.Top))
	}
	for i := 0; i < 3; i++ {
		if set.Top[i].Kind != models.ChartKindMetricTile {
			t.Errorf("top slot %d should be a metric tile, got %q", i, set.Top[i].Kind)
		}
	}
	if set.Top[3].Kind != models.ChartKindComparison || set.Top[4].Kind != models.ChartKindComparison {
		t.Errorf("table charts should follow the tiles: %+v", set.Top)
	}
	if len(set.Additional) != 1 {
		t.Fatalf("overflow should land in the additional tier, got %d", len(set.Additional))
	}
	if !strings.Contains(set.Additional[0].Title, "Over Time") {
		t.Errorf("expected the trend chart in the additional tier, got %q", set.Additional[0].Title)
	}
}

func TestGenerateRespectsTopCountOverride(t *testing.T) {
	cg := newTestChartGenerator()
	payload := models.ExtractionPayload{
		KeyMetrics: []models.ExtractedMetric{
			metricFor("A", 1), metricFor("B", 2), metricFor("C", 3),
		},
	}

	set := cg.Generate(payload, nil, "#4e79a7", "Acme", 2)
	if len(set.Top) != 2 || len(set.Additional) != 1 {
		t.Errorf("override of 2 should split 2/1, got %d/%d", len(set.Top), len(set.Additional))
	}
}

func TestTableChartComparison(t *testing.T) {
	cg := newTestChartGenerator()
	table := models.ExtractedTable{
		Title:   "Quarterly Revenue",
		Headers: []string{"Quarter", "Revenue"},
		Rows:    [][]string{{"Q1", "$2M"}, {"Q2", "$3M"}},
	}

	spec, ok := cg.tableChart(table, "#4e79a7", "#ffffff")
	if !ok {
		t.Fatal("expected a chart from a numeric two-column table")
	}
	if spec.Kind != models.ChartKindComparison {
		t.Errorf("expected comparison kind, got %q", spec.Kind)
	}
	if len(spec.Labels) != 2 || spec.Labels[0] != "Q1" {
		t.Errorf("unexpected labels %v", spec.Labels)
	}
	if spec.Values[0] != 2 || spec.Values[1] != 3 {
		t.Errorf("unexpected values %v", spec.Values)
	}
	if len(spec.Colors) != 2 || len(spec.BorderColors) != 2 {
		t.Errorf("colors must align with values: %v / %v", spec.Colors, spec.BorderColors)
	}
}

func TestTableChartDistributionByTitle(t *testing.T) {
	cg := newTestChartGenerator()
	table := models.ExtractedTable{
		Title:   "Market Share Breakdown",
		Headers: []string{"Competitor", "Share"},
		Rows:    [][]string{{"Acme", "55"}, {"Rival", "30"}},
	}

	spec, ok := cg.tableChart(table, "#4e79a7", "#ffffff")
	if !ok {
		t.Fatal("expected a chart")
	}
	if spec.Kind != models.ChartKindDistribution {
		t.Errorf("share table should become a distribution, got %q", spec.Kind)
	}
}

func TestTableChartDistributionBySum(t *testing.T) {
	cg := newTestChartGenerator()
	table := models.ExtractedTable{
		Title:   "Customer Segments",
		Headers: []string{"Segment", "Percent"},
		Rows:    [][]string{{"Enterprise", "40"}, {"SMB", "35"}, {"Consumer", "25"}},
	}

	spec, ok := cg.tableChart(table, "#4e79a7", "#ffffff")
	if !ok {
		t.Fatal("expected a chart")
	}
	if spec.Kind != models.ChartKindDistribution {
		t.Errorf("values summing to 100 should become a distribution, got %q", spec.Kind)
	}
}

func TestTableChartSkipsUnchartable(t *testing.T) {
	cg := newTestChartGenerator()

	textual := models.ExtractedTable{
		Title:   "Leadership",
		Headers: []string{"Name", "Role"},
		Rows:    [][]string{{"Jordan", "CEO"}, {"Casey", "CTO"}},
	}
	if _, ok := cg.tableChart(textual, "#4e79a7", "#ffffff"); ok {
		t.Error("table without a numeric column should not chart")
	}

	long := models.ExtractedTable{
		Title:   "Daily Numbers",
		Headers: []string{"Day", "Value"},
	}
	for i := 0; i < maxChartableRows+1; i++ {
		long.Rows = append(long.Rows, []string{"day", "1"})
	}
	if _, ok := cg.tableChart(long, "#4e79a7", "#ffffff"); ok {
		t.Error("oversized table should not chart")
	}
}

func TestSeriesChartsGroupByName(t *testing.T) {
	cg := newTestChartGenerator()
	points := []models.TimeSeriesPoint{
		{Series: "Revenue", Period: "Q1", Value: 2},
		{Series: "Users", Period: "Q1", Value: 100},
		{Series: "Revenue", Period: "Q2", Value: 3},
		{Series: "Users", Period: "Q2", Value: 140},
		{Series: "Churn", Period: "Q1", Value: 5},
	}

	specs := cg.seriesCharts(points, "#4e79a7", "#ffffff")
	if len(specs) != 2 {
		t.Fatalf("expected 2 trend charts (single-point series dropped), got %d", len(specs))
	}
	if specs[0].Title != "Revenue Over Time" {
		t.Errorf("series order should follow first appearance, got %q", specs[0].Title)
	}
	if len(specs[0].Labels) != 2 || specs[0].Labels[1] != "Q2" {
		t.Errorf("unexpected period labels %v", specs[0].Labels)
	}
}

func TestLocalPlotsLandInAdditionalTier(t *testing.T) {
	cg := newTestChartGenerator()
	payload := models.ExtractionPayload{
		KeyMetrics: []models.ExtractedMetric{metricFor("Revenue", 12.5)},
	}
	localPlots := []LocalPlot{
		{Title: "Key Topics Analysis", Type: "bar", Labels: []string{"growth", "market"}, Values: []float64{20, 15}},
		{Title: "Business Focus Areas", Type: "pie", Labels: []string{"a", "b", "c", "d"}, Values: []float64{30, 25, 25, 20}},
		{Title: "Broken", Type: "bar", Labels: []string{"x", "y"}, Values: []float64{1}},
	}

	set := cg.Generate(payload, localPlots, "#4e79a7", "Acme", 0)
	if len(set.Top) != 1 {
		t.Fatalf("only the metric tile belongs in the top tier, got %d", len(set.Top))
	}
	if len(set.Additional) != 2 {
		t.Fatalf("valid local plots belong in the additional tier, got %d", len(set.Additional))
	}
	if set.Additional[0].Kind != models.ChartKindComparison {
		t.Errorf("bar plot should map to comparison, got %q", set.Additional[0].Kind)
	}
	if set.Additional[1].Kind != models.ChartKindDistribution {
		t.Errorf("pie plot should map to distribution, got %q", set.Additional[1].Kind)
	}
}

func TestGenerateTextColorBinary(t *testing.T) {
	cg := newTestChartGenerator()
	payload := models.ExtractionPayload{
		KeyMetrics: []models.ExtractedMetric{metricFor("Revenue", 12.5)},
	}

	for _, color := range []string{"#000000", "#ffffff", "#1a1a2e", "#ffd700"} {
		set := cg.Generate(payload, nil, color, "Acme", 0)
		got := set.Top[0].TextColor
		if got != "#000000" && got != "#ffffff" {
			t.Errorf("text color for %s must be one of the two tokens, got %q", color, got)
		}
	}
}
