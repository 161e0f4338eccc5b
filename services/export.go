package services

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// Workbook sheet names, in tab order.
const (
	sheetSummary     = "Summary"
	sheetMetrics     = "Key Metrics"
	sheetTables      = "Tables"
	sheetTimeSeries  = "Time Series"
	sheetCompetitive = "Competitors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportService turns a completed deck result into a downloadable XLSX
// workbook. It reads only the deck passed in; loading and access checks
// happen before the export is requested.
type ExportService struct{}

// NewExportService creates a new export service
func NewExportService() *ExportService {
	return &ExportService{}
}

// workbookStyles holds the style IDs registered once per workbook.
type workbookStyles struct {
	header  int // brand-colored header rows
	section int // bold section labels
	wrap    int // wrapped long-form text
}

// Workbook builds the XLSX workbook for a completed deck. Sheets are always
// present even when their section is empty, so consumers get a fixed shape.
func (es *ExportService) Workbook(deck *models.Deck) (*excelize.File, error) {
	if deck == nil || deck.Status != models.StatusCompleted || deck.Result == nil {
		return nil, fmt.Errorf("deck has no completed result to export: %w", utils.ErrMalformedInput)
	}
	result := deck.Result

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	styles, err := newWorkbookStyles(f, result.BrandColor, result.TextColor)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to register styles: %w", err)
	}

	es.writeSummarySheet(f, styles, deck)

	writers := []struct {
		sheet string
		write func(*excelize.File, workbookStyles, string, *models.ProcessingResult)
	}{
		{sheetMetrics, es.writeMetricsSheet},
		{sheetTables, es.writeTablesSheet},
		{sheetTimeSeries, es.writeTimeSeriesSheet},
		{sheetCompetitive, es.writeCompetitiveSheet},
	}
	for _, w := range writers {
		if _, err := f.NewSheet(w.sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", w.sheet, err)
		}
		w.write(f, styles, w.sheet, result)
	}

	f.SetActiveSheet(0)
	return f, nil
}

// StreamDeck writes the deck's workbook to the HTTP response as an
// attachment download.
func (es *ExportService) StreamDeck(c *gin.Context, deck *models.Deck) error {
	f, err := es.Workbook(deck)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", es.ExportFilename(deck)))
	c.Header("Content-Length", strconv.Itoa(buf.Len()))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	return nil
}

// ExportFilename builds the download filename from the deck title and build
// date. Characters that are unsafe in filenames are replaced.
func (es *ExportService) ExportFilename(deck *models.Deck) string {
	name := sanitizeExportName(deck.Title)
	if name == "" {
		name = "deck"
	}
	return fmt.Sprintf("%s_%s.xlsx", name, deck.CreatedAt.Format("2006-01-02"))
}

func (es *ExportService) writeSummarySheet(f *excelize.File, styles workbookStyles, deck *models.Deck) {
	result := deck.Result

	info := [][]interface{}{
		{"Deck", deck.Title},
		{"Brand", result.BrandName},
		{"Built", result.BuiltAt.Format("2006-01-02 15:04:05")},
		{"Documents", len(deck.DocumentIDs)},
		{"Processed Remotely", result.Provenance.RemoteDocuments},
		{"Processed Locally", result.Provenance.LocalDocuments},
		{"Failed", result.Provenance.FailedDocuments},
	}
	for i, row := range info {
		for j, cell := range row {
			f.SetCellValue(sheetSummary, cellRef(j+1, i+1), cell)
		}
	}
	f.SetCellStyle(sheetSummary, cellRef(1, 1), cellRef(1, len(info)), styles.section)

	row := len(info) + 2
	f.SetCellValue(sheetSummary, cellRef(1, row), "Executive Summary")
	f.SetCellStyle(sheetSummary, cellRef(1, row), cellRef(5, row), styles.header)
	f.MergeCell(sheetSummary, cellRef(1, row), cellRef(5, row))
	row++

	text := result.Summary.Text
	if result.Summary.Empty {
		text = "No summary could be generated from the supplied documents."
	}
	f.SetCellValue(sheetSummary, cellRef(1, row), text)
	f.SetCellStyle(sheetSummary, cellRef(1, row), cellRef(5, row), styles.wrap)
	f.MergeCell(sheetSummary, cellRef(1, row), cellRef(5, row))
	f.SetRowHeight(sheetSummary, row, 180)

	f.SetColWidth(sheetSummary, "A", "A", 24)
	f.SetColWidth(sheetSummary, "B", "E", 20)
}

func (es *ExportService) writeMetricsSheet(f *excelize.File, styles workbookStyles, sheet string, result *models.ProcessingResult) {
	if len(result.Metrics) == 0 {
		f.SetCellValue(sheet, "A1", "No key metrics were extracted.")
		return
	}

	headers := []string{"Metric", "Value", "Unit", "Reported As", "Trend"}
	writeHeaderRow(f, styles, sheet, 1, headers)

	for i, m := range result.Metrics {
		row := i + 2
		f.SetCellValue(sheet, cellRef(1, row), m.Name)
		f.SetCellValue(sheet, cellRef(2, row), m.Value)
		f.SetCellValue(sheet, cellRef(3, row), m.Unit)
		f.SetCellValue(sheet, cellRef(4, row), m.RawValue)
		f.SetCellValue(sheet, cellRef(5, row), m.Trend)
	}

	f.SetColWidth(sheet, "A", "A", 36)
	f.SetColWidth(sheet, "B", "E", 16)
}

func (es *ExportService) writeTablesSheet(f *excelize.File, styles workbookStyles, sheet string, result *models.ProcessingResult) {
	if len(result.Tables) == 0 {
		f.SetCellValue(sheet, "A1", "No tables were extracted.")
		return
	}

	row := 1
	for _, table := range result.Tables {
		width := len(table.Headers)
		if width == 0 {
			continue
		}

		f.SetCellValue(sheet, cellRef(1, row), table.Title)
		f.SetCellStyle(sheet, cellRef(1, row), cellRef(width, row), styles.section)
		f.MergeCell(sheet, cellRef(1, row), cellRef(width, row))
		row++

		writeHeaderRow(f, styles, sheet, row, table.Headers)
		row++

		for _, cells := range table.Rows {
			for j, cell := range cells {
				f.SetCellValue(sheet, cellRef(j+1, row), cell)
			}
			row++
		}
		row++ // blank row between tables
	}

	f.SetColWidth(sheet, "A", "H", 22)
}

func (es *ExportService) writeTimeSeriesSheet(f *excelize.File, styles workbookStyles, sheet string, result *models.ProcessingResult) {
	if len(result.TimeSeries) == 0 {
		f.SetCellValue(sheet, "A1", "No time series data was extracted.")
		return
	}

	writeHeaderRow(f, styles, sheet, 1, []string{"Series", "Period", "Value"})
	for i, p := range result.TimeSeries {
		row := i + 2
		f.SetCellValue(sheet, cellRef(1, row), p.Series)
		f.SetCellValue(sheet, cellRef(2, row), p.Period)
		f.SetCellValue(sheet, cellRef(3, row), p.Value)
	}

	f.SetColWidth(sheet, "A", "A", 32)
	f.SetColWidth(sheet, "B", "C", 16)
}

func (es *ExportService) writeCompetitiveSheet(f *excelize.File, styles workbookStyles, sheet string, result *models.ProcessingResult) {
	comp := result.Competitive
	row := 1

	if !comp.Generated {
		f.SetCellValue(sheet, cellRef(1, row), "Fallback analysis: the documents yielded no competitive findings, so the entries below are generic.")
		row += 2
	}

	f.SetCellValue(sheet, cellRef(1, row), "Competitors")
	f.SetCellStyle(sheet, cellRef(1, row), cellRef(1, row), styles.section)
	row++

	if len(comp.Competitors) == 0 {
		f.SetCellValue(sheet, cellRef(1, row), "No competitors were identified.")
		row += 2
	} else {
		writeHeaderRow(f, styles, sheet, row, []string{"Name", "Relationship", "Market Position", "Strengths", "Weaknesses", "Metrics"})
		row++
		for _, c := range comp.Competitors {
			f.SetCellValue(sheet, cellRef(1, row), c.Name)
			f.SetCellValue(sheet, cellRef(2, row), c.Relationship)
			f.SetCellValue(sheet, cellRef(3, row), c.MarketPosition)
			f.SetCellValue(sheet, cellRef(4, row), strings.Join(c.Strengths, "; "))
			f.SetCellValue(sheet, cellRef(5, row), strings.Join(c.Weaknesses, "; "))
			f.SetCellValue(sheet, cellRef(6, row), joinMetricPairs(c.Metrics))
			row++
		}
		row++
	}

	f.SetCellValue(sheet, cellRef(1, row), "Positioning")
	f.SetCellStyle(sheet, cellRef(1, row), cellRef(1, row), styles.section)
	row++
	positioning := [][]interface{}{
		{"Advantages", strings.Join(comp.Positioning.Advantages, "; ")},
		{"Differentiators", strings.Join(comp.Positioning.Differentiators, "; ")},
		{"Threats", strings.Join(comp.Positioning.Threats, "; ")},
		{"Opportunities", strings.Join(comp.Positioning.Opportunities, "; ")},
		{"Narrative", comp.Positioning.Narrative},
	}
	for _, pair := range positioning {
		f.SetCellValue(sheet, cellRef(1, row), pair[0])
		f.SetCellValue(sheet, cellRef(2, row), pair[1])
		row++
	}
	row++

	f.SetCellValue(sheet, cellRef(1, row), "Landscape")
	f.SetCellStyle(sheet, cellRef(1, row), cellRef(1, row), styles.section)
	row++
	landscape := [][]interface{}{
		{"Market Size", comp.Landscape.MarketSize},
		{"Growth Rate", comp.Landscape.GrowthRate},
		{"Competitive Intensity", comp.Landscape.Intensity},
		{"Trends", strings.Join(comp.Landscape.Trends, "; ")},
	}
	for _, pair := range landscape {
		f.SetCellValue(sheet, cellRef(1, row), pair[0])
		f.SetCellValue(sheet, cellRef(2, row), pair[1])
		row++
	}

	if len(comp.Recommendations) > 0 {
		row++
		f.SetCellValue(sheet, cellRef(1, row), "Recommendations")
		f.SetCellStyle(sheet, cellRef(1, row), cellRef(1, row), styles.section)
		row++
		for i, rec := range comp.Recommendations {
			f.SetCellValue(sheet, cellRef(1, row), fmt.Sprintf("%d. %s", i+1, rec))
			row++
		}
	}

	f.SetColWidth(sheet, "A", "A", 24)
	f.SetColWidth(sheet, "B", "F", 28)
}

func newWorkbookStyles(f *excelize.File, brandColor, textColor string) (workbookStyles, error) {
	var styles workbookStyles
	var err error

	styles.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: excelColor(textColor, "FFFFFF")},
		Fill: excelize.Fill{Type: "pattern", Color: []string{excelColor(brandColor, "4E79A7")}, Pattern: 1},
	})
	if err != nil {
		return styles, err
	}

	styles.section, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return styles, err
	}

	styles.wrap, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	return styles, err
}

func writeHeaderRow(f *excelize.File, styles workbookStyles, sheet string, row int, headers []string) {
	for i, h := range headers {
		f.SetCellValue(sheet, cellRef(i+1, row), h)
	}
	f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(headers), row), styles.header)
}

// cellRef wraps CoordinatesToCellName for coordinates that are always valid.
func cellRef(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}

// excelColor converts a #rgb or #rrggbb color into the RRGGBB form excelize
// styles take. Colors that do not parse yield the fallback unchanged.
func excelColor(hex, fallback string) string {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	if _, err := strconv.ParseUint(s, 16, 32); err != nil {
		return fallback
	}
	return strings.ToUpper(s)
}

// joinMetricPairs renders a competitor's metric map in key order so exports
// are stable across runs.
func joinMetricPairs(metrics map[string]string) string {
	if len(metrics) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %s", k, metrics[k]))
	}
	return strings.Join(pairs, "; ")
}

func sanitizeExportName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
