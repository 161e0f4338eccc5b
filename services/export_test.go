package services

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func exportTestDeck() *models.Deck {
	built := time.Date(2025, 8, 1, 10, 30, 0, 0, time.UTC)
	return &models.Deck{
		ID:          primitive.NewObjectID(),
		Title:       "Q3 Brand Review",
		DocumentIDs: []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID()},
		Status:      models.StatusCompleted,
		CreatedAt:   built,
		Result: &models.ProcessingResult{
			Summary: models.MasterSummary{Text: "Revenue grew strongly across all regions."},
			Tables: []models.ExtractedTable{{
				Title:   "Revenue by Region",
				Headers: []string{"Region", "Revenue"},
				Rows:    [][]string{{"EMEA", "12.5"}, {"APAC", "8.1"}},
			}},
			Metrics: []models.ExtractedMetric{{
				Name: "Revenue", Value: 12.5, RawValue: "$12.5M", Unit: "millions USD", Trend: "up",
			}},
			TimeSeries: []models.TimeSeriesPoint{
				{Series: "Revenue", Period: "2025-Q1", Value: 10},
				{Series: "Revenue", Period: "2025-Q2", Value: 12.5},
			},
			Competitive: models.CompetitiveAnalysis{
				Competitors: []models.CompetitorProfile{{
					Name:           "Acme",
					Relationship:   "direct",
					MarketPosition: "leader",
					Strengths:      []string{"scale", "brand"},
					Weaknesses:     []string{"slow onboarding"},
					Metrics:        map[string]string{"revenue": "$40M", "employees": "250"},
				}},
				Positioning: models.Positioning{
					Advantages: []string{"faster onboarding"},
					Narrative:  "Challenger position in a consolidating market.",
				},
				Landscape: models.Landscape{
					MarketSize: "$2B", GrowthRate: "8% CAGR", Intensity: "high",
					Trends: []string{"consolidation"},
				},
				Recommendations: []string{"Invest in EMEA"},
				Generated:       true,
			},
			Provenance: models.Provenance{RemoteDocuments: 2, LocalDocuments: 1},
			BrandName:  "Northwind",
			BrandColor: "#4e79a7",
			TextColor:  "#ffffff",
			BuiltAt:    built,
		},
	}
}

func TestWorkbookSheetsAndCells(t *testing.T) {
	es := NewExportService()
	f, err := es.Workbook(exportTestDeck())
	if err != nil {
		t.Fatalf("Workbook failed: %v", err)
	}
	defer f.Close()

	wantSheets := []string{"Summary", "Key Metrics", "Tables", "Time Series", "Competitors"}
	gotSheets := f.GetSheetList()
	if len(gotSheets) != len(wantSheets) {
		t.Fatalf("sheets = %v, want %v", gotSheets, wantSheets)
	}
	for i := range wantSheets {
		if gotSheets[i] != wantSheets[i] {
			t.Fatalf("sheet %d = %q, want %q", i, gotSheets[i], wantSheets[i])
		}
	}

	checks := []struct {
		sheet, cell, want string
	}{
		{"Summary", "B1", "Q3 Brand Review"},
		{"Summary", "B2", "Northwind"},
		{"Summary", "B4", "2"},
		{"Summary", "B5", "2"},
		{"Summary", "A9", "Executive Summary"},
		{"Summary", "A10", "Revenue grew strongly across all regions."},
		{"Key Metrics", "A1", "Metric"},
		{"Key Metrics", "A2", "Revenue"},
		{"Key Metrics", "B2", "12.5"},
		{"Key Metrics", "E2", "up"},
		{"Tables", "A1", "Revenue by Region"},
		{"Tables", "A2", "Region"},
		{"Tables", "B3", "12.5"},
		{"Tables", "A4", "APAC"},
		{"Time Series", "A1", "Series"},
		{"Time Series", "B2", "2025-Q1"},
		{"Time Series", "C3", "12.5"},
		{"Competitors", "A1", "Competitors"},
		{"Competitors", "A3", "Acme"},
		{"Competitors", "F3", "employees: 250; revenue: $40M"},
		{"Competitors", "A5", "Positioning"},
		{"Competitors", "B6", "faster onboarding"},
		{"Competitors", "A12", "Landscape"},
		{"Competitors", "B13", "$2B"},
		{"Competitors", "A19", "1. Invest in EMEA"},
	}
	for _, c := range checks {
		got, err := f.GetCellValue(c.sheet, c.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s!%s) failed: %v", c.sheet, c.cell, err)
		}
		if got != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.cell, got, c.want)
		}
	}
}

func TestWorkbookEmptySections(t *testing.T) {
	deck := exportTestDeck()
	deck.Result.Metrics = nil
	deck.Result.Tables = nil
	deck.Result.TimeSeries = nil
	deck.Result.Competitive = models.CompetitiveAnalysis{}

	es := NewExportService()
	f, err := es.Workbook(deck)
	if err != nil {
		t.Fatalf("Workbook failed: %v", err)
	}
	defer f.Close()

	for sheet, want := range map[string]string{
		"Key Metrics": "No key metrics were extracted.",
		"Tables":      "No tables were extracted.",
		"Time Series": "No time series data was extracted.",
	} {
		got, _ := f.GetCellValue(sheet, "A1")
		if got != want {
			t.Errorf("%s!A1 = %q, want %q", sheet, got, want)
		}
	}

	note, _ := f.GetCellValue("Competitors", "A1")
	if !strings.HasPrefix(note, "Fallback analysis") {
		t.Errorf("expected fallback note for non-generated analysis, got %q", note)
	}
	empty, _ := f.GetCellValue("Competitors", "A4")
	if empty != "No competitors were identified." {
		t.Errorf("Competitors!A4 = %q", empty)
	}
}

func TestWorkbookRejectsUnfinishedDeck(t *testing.T) {
	es := NewExportService()

	deck := exportTestDeck()
	deck.Status = models.StatusProcessing
	if _, err := es.Workbook(deck); !errors.Is(err, utils.ErrMalformedInput) {
		t.Fatalf("processing deck: err = %v, want ErrMalformedInput", err)
	}

	deck = exportTestDeck()
	deck.Result = nil
	if _, err := es.Workbook(deck); !errors.Is(err, utils.ErrMalformedInput) {
		t.Fatalf("deck without result: err = %v, want ErrMalformedInput", err)
	}
}

func TestStreamDeckHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	es := NewExportService()
	if err := es.StreamDeck(c, exportTestDeck()); err != nil {
		t.Fatalf("StreamDeck failed: %v", err)
	}

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename=Q3_Brand_Review_2025-08-01.xlsx" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != xlsxContentType {
		t.Errorf("Content-Type = %q", got)
	}
	// XLSX files are ZIP archives.
	if !strings.HasPrefix(w.Body.String(), "PK") {
		t.Error("body does not look like an XLSX file")
	}
}

func TestExportFilename(t *testing.T) {
	es := NewExportService()

	deck := exportTestDeck()
	deck.Title = "Q3 2025 / Brand Review!"
	if got := es.ExportFilename(deck); got != "Q3_2025_Brand_Review_2025-08-01.xlsx" {
		t.Errorf("ExportFilename = %q", got)
	}

	deck.Title = "///"
	if got := es.ExportFilename(deck); got != "deck_2025-08-01.xlsx" {
		t.Errorf("ExportFilename for unusable title = %q", got)
	}
}

func TestExcelColor(t *testing.T) {
	cases := []struct {
		in, fallback, want string
	}{
		{"#4e79a7", "FFFFFF", "4E79A7"},
		{"#ABC", "FFFFFF", "AABBCC"},
		{"4e79a7", "FFFFFF", "4E79A7"},
		{"not-a-color", "FFFFFF", "FFFFFF"},
		{"", "000000", "000000"},
		{"#12345", "000000", "000000"},
	}
	for _, c := range cases {
		if got := excelColor(c.in, c.fallback); got != c.want {
			t.Errorf("excelColor(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
