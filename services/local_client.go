package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"brand-deck-platform/internal/config"
)

// LocalAIClient handles communication with the local sensitive-document
// sidecar. Documents flagged sensitive are only ever analyzed through this
// client; their raw text never leaves the box.
type LocalAIClient struct {
	config     *config.Config
	httpClient *http.Client
	baseURL    string
	heuristic  *HeuristicService
}

// LocalProcessRequest represents an analysis request to the sidecar.
type LocalProcessRequest struct {
	Text             string `json:"text"`
	MaxSummaryLength int    `json:"max_summary_length"`
	MaxKeywords      int    `json:"max_keywords"`
}

// LocalProcessResponse represents the sidecar analysis response. The
// heuristic fallback produces the same shape, so callers never need to
// branch on where a result came from.
type LocalProcessResponse struct {
	Summary          string      `json:"summary"`
	Keywords         []string    `json:"keywords"`
	Metrics          []string    `json:"metrics"`
	Insights         string      `json:"insights"`
	PlotData         []LocalPlot `json:"plotData"`
	ProcessedLocally bool        `json:"processedLocally"`
	ProcessedWithAI  bool        `json:"processedWithAI"`
	Model            string      `json:"model"`
	ProcessingTime   float64     `json:"processing_time"`
	TextLength       int         `json:"text_length"`
	Error            string      `json:"error,omitempty"`
}

// LocalPlot is a chart suggestion produced on the local path. Type is one
// of bar, line or pie; the chart generator maps these onto the canonical
// chart kinds.
type LocalPlot struct {
	Title  string    `json:"title"`
	Type   string    `json:"type"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// LocalHealthResponse represents the sidecar health check response.
type LocalHealthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// NewLocalAIClient creates a new local sidecar client.
func NewLocalAIClient(cfg *config.Config) *LocalAIClient {
	baseURL := cfg.LocalAIURL
	if baseURL == "" {
		baseURL = "http://localhost:5001"
	}

	return &LocalAIClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.LocalAITimeout,
		},
		baseURL:   baseURL,
		heuristic: NewHeuristicService(),
	}
}

// IsHealthy checks if the local sidecar is up and has its models loaded.
// The pipeline uses this opportunistically and never blocks on it.
func (c *LocalAIClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("local AI service unhealthy: status %d", resp.StatusCode)
	}

	var healthResp LocalHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return false, fmt.Errorf("failed to decode health response: %w", err)
	}

	return healthResp.Status == "healthy", nil
}

// ProcessDocument analyzes sensitive text through the sidecar, retrying
// transient failures with exponential backoff. When the sidecar stays
// unreachable the deterministic heuristic takes over, so the caller always
// gets a usable result and the pipeline is never blocked by an offline
// backend.
func (c *LocalAIClient) ProcessDocument(ctx context.Context, text string) *LocalProcessResponse {
	maxRetries := c.config.LocalAIMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.process(ctx, text)
		if err == nil {
			return resp
		}
		lastErr = err
		log.Printf("⚠️ Local AI attempt %d/%d failed: %v", attempt+1, maxRetries, err)

		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<attempt) * time.Second
			if c.config.LocalAIBackoffCap > 0 && backoff > c.config.LocalAIBackoffCap {
				backoff = c.config.LocalAIBackoffCap
			}
			select {
			case <-ctx.Done():
				log.Printf("⚠️ Local AI retry cancelled, using heuristic fallback: %v", ctx.Err())
				return c.Fallback(text)
			case <-time.After(backoff):
			}
		}
	}

	log.Printf("⚠️ Local AI unavailable after %d attempts, using heuristic fallback: %v", maxRetries, lastErr)
	return c.Fallback(text)
}

// Fallback produces a deterministic analysis without any model backend.
func (c *LocalAIClient) Fallback(text string) *LocalProcessResponse {
	return c.heuristic.Process(text, c.config.LocalAISummaryLength, c.config.LocalAIMaxKeywords)
}

func (c *LocalAIClient) process(ctx context.Context, text string) (*LocalProcessResponse, error) {
	payload := LocalProcessRequest{
		Text:             text,
		MaxSummaryLength: c.config.LocalAISummaryLength,
		MaxKeywords:      c.config.LocalAIMaxKeywords,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal local AI request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/process-sensitive-document", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create local AI request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("local AI request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("local AI request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var procResp LocalProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&procResp); err != nil {
		return nil, fmt.Errorf("failed to decode local AI response: %w", err)
	}

	if procResp.Error != "" {
		return nil, fmt.Errorf("local AI processing failed: %s", procResp.Error)
	}

	procResp.ProcessedLocally = true
	return &procResp, nil
}
