package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"brand-deck-platform/internal/config"
)

func localTestConfig(url string) *config.Config {
	return &config.Config{
		LocalAIURL:           url,
		LocalAITimeout:       5 * time.Second,
		LocalAIMaxRetries:    3,
		LocalAIBackoffCap:    time.Millisecond,
		LocalAIMaxKeywords:   10,
		LocalAISummaryLength: 300,
	}
}

func TestLocalClientProcessDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process-sensitive-document" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req LocalProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MaxSummaryLength != 300 || req.MaxKeywords != 10 {
			t.Errorf("unexpected limits in request: %+v", req)
		}
		json.NewEncoder(w).Encode(LocalProcessResponse{
			Summary:         "Internal financials summarized.",
			Keywords:        []string{"revenue", "margin"},
			Metrics:         []string{"Revenue: $3 million"},
			Insights:        "Financial tracking in place.",
			ProcessedWithAI: true,
			Model:           "llama-3.2-1b",
		})
	}))
	defer srv.Close()

	client := NewLocalAIClient(localTestConfig(srv.URL))
	result := client.ProcessDocument(context.Background(), "Confidential revenue details for the quarter.")

	if !result.ProcessedLocally {
		t.Error("sidecar results must be marked local")
	}
	if result.Summary != "Internal financials summarized." {
		t.Errorf("unexpected summary %q", result.Summary)
	}
	if len(result.Keywords) != 2 || result.Keywords[0] != "revenue" {
		t.Errorf("unexpected keywords %v", result.Keywords)
	}
	if result.Model != "llama-3.2-1b" {
		t.Errorf("unexpected model %q", result.Model)
	}
}

func TestLocalClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(LocalProcessResponse{
			Summary:         "Recovered on the third attempt.",
			ProcessedWithAI: true,
			Model:           "llama-3.2-1b",
		})
	}))
	defer srv.Close()

	client := NewLocalAIClient(localTestConfig(srv.URL))
	result := client.ProcessDocument(context.Background(), "Sensitive planning document for review.")

	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if result.Summary != "Recovered on the third attempt." {
		t.Errorf("expected sidecar result after retries, got %+v", result)
	}
	if result.Model == "heuristic" {
		t.Error("successful retry should not fall back to heuristic")
	}
}

func TestLocalClientFallsBackToHeuristic(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewLocalAIClient(localTestConfig(srv.URL))
	text := "Acme Corporation reported confidential revenue of $12.5 million this quarter. Growth reached 35% across every market segment we operate in."
	result := client.ProcessDocument(context.Background(), text)

	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts before fallback, got %d", got)
	}
	if result.Model != "heuristic" {
		t.Errorf("expected heuristic fallback, got model %q", result.Model)
	}
	if result.ProcessedWithAI {
		t.Error("fallback result must not claim model backing")
	}
	if !result.ProcessedLocally {
		t.Error("fallback result is still a local result")
	}
	if result.Summary == "" || len(result.Keywords) == 0 {
		t.Errorf("fallback should still produce analysis: %+v", result)
	}
}

func TestLocalClientUnreachableBackend(t *testing.T) {
	cfg := localTestConfig("http://127.0.0.1:1")
	client := NewLocalAIClient(cfg)

	result := client.ProcessDocument(context.Background(), "Sensitive notes about the upcoming product launch campaign.")
	if result == nil {
		t.Fatal("client must always return a result")
	}
	if result.Model != "heuristic" {
		t.Errorf("unreachable backend should yield heuristic result, got %q", result.Model)
	}
}

func TestLocalClientIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(LocalHealthResponse{Status: "healthy", ModelsLoaded: true})
	}))
	defer srv.Close()

	client := NewLocalAIClient(localTestConfig(srv.URL))
	healthy, err := client.IsHealthy(context.Background())
	if err != nil {
		t.Fatalf("health check error: %v", err)
	}
	if !healthy {
		t.Error("expected healthy sidecar")
	}
}

func TestLocalClientUnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LocalHealthResponse{Status: "degraded"})
	}))
	defer srv.Close()

	client := NewLocalAIClient(localTestConfig(srv.URL))
	healthy, err := client.IsHealthy(context.Background())
	if err != nil {
		t.Fatalf("health check error: %v", err)
	}
	if healthy {
		t.Error("degraded status should not report healthy")
	}
}
