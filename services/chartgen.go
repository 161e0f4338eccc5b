package services

import (
	"fmt"
	"strings"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

// Tables with more rows than this stay tables; too many categories to
// read as a single comparison chart.
const maxChartableRows = 8

// ChartGenerator turns extracted tables, metrics and time series into
// renderer-agnostic chart specs colored from the brand's primary color.
type ChartGenerator struct {
	config *config.Config
}

// NewChartGenerator creates a new chart generator.
func NewChartGenerator(cfg *config.Config) *ChartGenerator {
	return &ChartGenerator{config: cfg}
}

var distributionTitleWords = []string{"share", "distribution", "breakdown", "split", "mix", "composition", "allocation"}

// Generate builds the ranked chart set. Insertion order is the ranking:
// metric tiles first, then short table charts, then time-series trends.
// The first topCount specs form the top tier (config default when
// topCount is zero). Plots from the local sidecar always land in the
// additional tier; they come from a single document and should not
// displace corpus-wide signal.
func (cg *ChartGenerator) Generate(payload models.ExtractionPayload, localPlots []LocalPlot, brandColor, brandName string, topCount int) models.ChartSet {
	textColor := DeriveContrastText(brandColor)

	var ranked []models.ChartSpec

	for _, metric := range payload.KeyMetrics {
		fills, borders := DeriveSeriesColors(brandColor, 1)
		ranked = append(ranked, models.ChartSpec{
			Title:        metric.Name,
			Kind:         models.ChartKindMetricTile,
			Metrics:      []models.ExtractedMetric{metric},
			Colors:       fills,
			BorderColors: borders,
			TextColor:    textColor,
			Source:       metric.Name,
		})
	}

	for _, table := range payload.Tables {
		if spec, ok := cg.tableChart(table, brandColor, textColor); ok {
			ranked = append(ranked, spec)
		}
	}

	ranked = append(ranked, cg.seriesCharts(payload.TimeSeries, brandColor, textColor)...)

	if topCount <= 0 {
		topCount = cg.config.TopChartCount
	}
	if topCount <= 0 {
		topCount = 5
	}

	set := models.ChartSet{
		Top:        []models.ChartSpec{},
		Additional: []models.ChartSpec{},
	}
	for i, spec := range ranked {
		if i < topCount {
			set.Top = append(set.Top, spec)
		} else {
			set.Additional = append(set.Additional, spec)
		}
	}

	for _, plot := range localPlots {
		if spec, ok := cg.localChart(plot, brandColor, brandName, textColor); ok {
			set.Additional = append(set.Additional, spec)
		}
	}

	return set
}

// tableChart converts a short table with a numeric column into a chart.
// Tables that do not fit (too long, no numeric column, too few usable
// rows) are skipped and stay table-only in the result.
func (cg *ChartGenerator) tableChart(table models.ExtractedTable, brandColor, textColor string) (models.ChartSpec, bool) {
	if len(table.Headers) < 2 || len(table.Rows) < 2 || len(table.Rows) > maxChartableRows {
		return models.ChartSpec{}, false
	}

	valueCol := -1
	for col := 1; col < len(table.Headers); col++ {
		if columnNumeric(table.Rows, col) {
			valueCol = col
			break
		}
	}
	if valueCol == -1 {
		return models.ChartSpec{}, false
	}

	labels := make([]string, 0, len(table.Rows))
	values := make([]float64, 0, len(table.Rows))
	for _, row := range table.Rows {
		label := strings.TrimSpace(row[0])
		if label == "" {
			continue
		}
		value, _, ok := parseMetricValue(row[valueCol])
		if !ok {
			continue
		}
		labels = append(labels, label)
		values = append(values, value)
	}
	if len(labels) < 2 {
		return models.ChartSpec{}, false
	}

	kind := models.ChartKindComparison
	if isDistributionTable(table.Title, values) {
		kind = models.ChartKindDistribution
	}

	var fills, borders []string
	if kind == models.ChartKindDistribution {
		fills, borders = DeriveDistributionColors(brandColor, len(values))
	} else {
		fills, borders = DeriveSeriesColors(brandColor, len(values))
	}

	title := strings.TrimSpace(table.Title)
	if title == "" {
		title = fmt.Sprintf("%s by %s", table.Headers[valueCol], table.Headers[0])
	}

	return models.ChartSpec{
		Title:        title,
		Kind:         kind,
		Labels:       labels,
		Values:       values,
		Colors:       fills,
		BorderColors: borders,
		TextColor:    textColor,
		Source:       table.Title,
	}, true
}

// seriesCharts builds one trend chart per named series, keeping the
// extractor's point order as the period order.
func (cg *ChartGenerator) seriesCharts(points []models.TimeSeriesPoint, brandColor, textColor string) []models.ChartSpec {
	var order []string
	grouped := make(map[string][]models.TimeSeriesPoint)
	for _, p := range points {
		if _, ok := grouped[p.Series]; !ok {
			order = append(order, p.Series)
		}
		grouped[p.Series] = append(grouped[p.Series], p)
	}

	specs := make([]models.ChartSpec, 0, len(order))
	for _, name := range order {
		series := grouped[name]
		if len(series) < 2 {
			continue
		}
		labels := make([]string, len(series))
		values := make([]float64, len(series))
		for i, p := range series {
			labels[i] = p.Period
			values[i] = p.Value
		}
		fills, borders := DeriveSeriesColors(brandColor, len(series))
		specs = append(specs, models.ChartSpec{
			Title:        fmt.Sprintf("%s Over Time", name),
			Kind:         models.ChartKindComparison,
			Labels:       labels,
			Values:       values,
			Colors:       fills,
			BorderColors: borders,
			TextColor:    textColor,
			Source:       name,
		})
	}
	return specs
}

// localChart maps a sidecar plot onto the canonical chart kinds. Pie
// becomes a proportional distribution, bar and line become categorical
// comparisons. Plots with mismatched labels and values are dropped.
func (cg *ChartGenerator) localChart(plot LocalPlot, brandColor, brandName, textColor string) (models.ChartSpec, bool) {
	n := len(plot.Labels)
	if n == 0 || n != len(plot.Values) {
		return models.ChartSpec{}, false
	}

	kind := models.ChartKindComparison
	if strings.EqualFold(plot.Type, "pie") {
		kind = models.ChartKindDistribution
	}

	var fills, borders []string
	if kind == models.ChartKindDistribution {
		fills, borders = DeriveDistributionColors(brandColor, n)
	} else {
		fills, borders = DeriveSeriesColors(brandColor, n)
	}

	title := strings.TrimSpace(plot.Title)
	if title == "" {
		title = fmt.Sprintf("%s Overview", brandName)
	}

	labels := make([]string, n)
	copy(labels, plot.Labels)
	values := make([]float64, n)
	copy(values, plot.Values)

	return models.ChartSpec{
		Title:        title,
		Kind:         kind,
		Labels:       labels,
		Values:       values,
		Colors:       fills,
		BorderColors: borders,
		TextColor:    textColor,
		Source:       title,
	}, true
}

func columnNumeric(rows [][]string, col int) bool {
	seen := false
	for _, row := range rows {
		if col >= len(row) {
			return false
		}
		cell := strings.TrimSpace(row[col])
		if cell == "" {
			continue
		}
		if _, _, ok := parseMetricValue(cell); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// isDistributionTable decides whether a charted table reads as parts of a
// whole: either the title says so or the values sum to roughly 100.
func isDistributionTable(title string, values []float64) bool {
	lower := strings.ToLower(title)
	for _, word := range distributionTitleWords {
		if strings.Contains(lower, word) {
			return true
		}
	}

	sum := 0.0
	for _, v := range values {
		if v < 0 {
			return false
		}
		sum += v
	}
	return sum >= 98 && sum <= 102
}
