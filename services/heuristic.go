package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
)

// HeuristicService is the deterministic analyzer behind the local path.
// It never calls a model backend, so its output depends only on the input
// text and is identical across runs. The pipeline falls back to it when
// the local sidecar stays unreachable after retries.
type HeuristicService struct{}

// NewHeuristicService creates a new heuristic analyzer.
func NewHeuristicService() *HeuristicService {
	return &HeuristicService{}
}

var heuristicStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "this": true, "that": true, "these": true, "those": true,
	"they": true, "them": true, "their": true, "there": true, "then": true,
	"than": true, "from": true, "into": true, "over": true, "under": true,
	"about": true, "through": true,
}

var (
	properNounPattern   = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	companyNamePattern  = regexp.MustCompile(`\b\w+\s?(?:Corp|Inc|LLC|Ltd|Company|Co)\b`)
	derivedTermPattern  = regexp.MustCompile(`(?i)\b[a-z]{3,}(?:tion|ment|ness|ity)\b`)
	businessTermPattern = regexp.MustCompile(`(?i)\b(?:revenue|profit|sales|growth|market|customer|product|service|strategy|technology|digital|platform|solution|system|process|management|development|innovation|performance|efficiency|quality|experience|engagement|acquisition|retention|conversion|optimization|analysis|data|insights|metrics|budget|cost|investment|funding|partnership|collaboration|expansion|launch|implementation|integration|transformation|upgrade|enhancement|improvement|increase|decrease|trend|forecast|target|goal|objective|initiative|project|campaign|program|framework|methodology|approach|scalability|sustainability|compliance|security)\b`)
	plainWordPattern    = regexp.MustCompile(`[a-zA-Z]+`)
	numberingPrefix     = regexp.MustCompile(`^[\d.\-*•]+\s*`)
)

// Process runs the full heuristic analysis over the text. The result has
// the same shape as a sidecar response, with ProcessedWithAI false so the
// provenance of the analysis stays visible downstream.
func (h *HeuristicService) Process(text string, maxSummaryLength, maxKeywords int) *LocalProcessResponse {
	start := time.Now()

	summary := h.Summarize(text, maxSummaryLength)
	keywords := h.ExtractKeywords(text, maxKeywords)
	metrics := h.ScrapeMetrics(text)

	return &LocalProcessResponse{
		Summary:          summary,
		Keywords:         keywords,
		Metrics:          metrics,
		Insights:         h.buildInsights(keywords, metrics, summary),
		PlotData:         h.buildPlots(keywords),
		ProcessedLocally: true,
		ProcessedWithAI:  false,
		Model:            "heuristic",
		ProcessingTime:   time.Since(start).Seconds(),
		TextLength:       len(text),
	}
}

// Summarize keeps the leading sentences of the text, truncated to
// maxLength characters. Sentence fragments of 20 characters or fewer are
// skipped so headings and list markers do not end up in the summary.
func (h *HeuristicService) Summarize(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 300
	}

	parts := strings.SplitN(text, ".", 4)
	if len(parts) == 4 {
		parts = parts[:3]
	}

	var kept []string
	for _, part := range parts {
		sentence := strings.TrimSpace(part)
		if len(sentence) > 20 {
			kept = append(kept, sentence)
		}
	}

	summary := strings.Join(kept, ". ")
	if runes := []rune(summary); len(runes) > maxLength {
		summary = strings.TrimSpace(string(runes[:maxLength]))
	}
	if summary != "" && !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	return summary
}

// ExtractKeywords pulls business-relevant terms out of the text. Pattern
// matches (proper nouns, company names, business vocabulary) come first in
// document order, then the most frequent remaining words. Keywords are
// lowercased, deduplicated and capped at max.
func (h *HeuristicService) ExtractKeywords(text string, max int) []string {
	if max <= 0 {
		max = 10
	}

	seen := make(map[string]bool)
	var keywords []string
	add := func(raw string) {
		kw := strings.ToLower(strings.TrimSpace(raw))
		if len(kw) < 3 || len(kw) > 25 {
			return
		}
		if heuristicStopWords[kw] || !isAlphaPhrase(kw) || seen[kw] {
			return
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}

	for _, pattern := range []*regexp.Regexp{properNounPattern, companyNamePattern, derivedTermPattern, businessTermPattern} {
		for _, match := range pattern.FindAllString(text, -1) {
			add(match)
		}
	}

	// Word frequency as backup. Count desc, first occurrence breaks ties,
	// so the ordering is stable for identical input.
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, word := range plainWordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(word) <= 3 || heuristicStopWords[word] {
			continue
		}
		if _, ok := counts[word]; !ok {
			firstSeen[word] = i
		}
		counts[word]++
	}

	frequent := make([]string, 0, len(counts))
	for word := range counts {
		frequent = append(frequent, word)
	}
	sort.Slice(frequent, func(i, j int) bool {
		if counts[frequent[i]] != counts[frequent[j]] {
			return counts[frequent[i]] > counts[frequent[j]]
		}
		return firstSeen[frequent[i]] < firstSeen[frequent[j]]
	})
	if len(frequent) > 5 {
		frequent = frequent[:5]
	}
	for _, word := range frequent {
		add(word)
	}

	if len(keywords) > max {
		keywords = keywords[:max]
	}
	return keywords
}

// ScrapeMetrics finds "Name: Value" lines in the text. Only values that
// carry a digit, dollar sign or percent survive; duplicates are dropped
// and at most eight metrics are returned.
func (h *HeuristicService) ScrapeMetrics(text string) []string {
	var metrics []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 5 || len(line) >= 150 {
			continue
		}
		line = numberingPrefix.ReplaceAllString(line, "")

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if len(name) <= 2 || value == "" {
			continue
		}
		if !strings.ContainsAny(value, "0123456789$%") {
			continue
		}

		formatted := name + ": " + value
		if seen[formatted] {
			continue
		}
		seen[formatted] = true
		metrics = append(metrics, formatted)
		if len(metrics) == 8 {
			break
		}
	}
	return metrics
}

func (h *HeuristicService) buildInsights(keywords, metrics []string, summary string) string {
	var insights []string

	if len(keywords) > 0 {
		insights = append(insights, fmt.Sprintf("Document analysis indicates primary focus on %s and related strategic initiatives.", keywords[0]))
	}

	if len(metrics) > 0 {
		financial := false
		for _, m := range metrics {
			lower := strings.ToLower(m)
			if strings.Contains(lower, "revenue") || strings.Contains(lower, "sales") || strings.Contains(m, "$") {
				financial = true
				break
			}
		}
		if financial {
			insights = append(insights, fmt.Sprintf("Financial performance tracking evidenced through %d quantitative metric(s), suggesting a data-driven management approach.", len(metrics)))
		} else {
			insights = append(insights, fmt.Sprintf("Operational metrics tracking with %d key performance indicator(s) identified.", len(metrics)))
		}
	}

	if len(summary) > 100 {
		lower := strings.ToLower(summary)
		switch {
		case strings.Contains(lower, "growth") || strings.Contains(lower, "increase") || strings.Contains(lower, "expansion"):
			insights = append(insights, "Business trajectory shows growth-oriented strategic direction.")
		case strings.Contains(lower, "efficiency") || strings.Contains(lower, "optimization") || strings.Contains(lower, "improvement"):
			insights = append(insights, "Operational focus emphasizes efficiency and process optimization.")
		}
	}

	if len(insights) == 0 {
		return "Business document contains structured analytical content suitable for strategic review."
	}
	return strings.Join(insights, " ")
}

// buildPlots suggests up to two charts from the extracted keywords. The
// weights are fixed, trimmed to the label count so labels and values
// always line up.
func (h *HeuristicService) buildPlots(keywords []string) []LocalPlot {
	var plots []LocalPlot

	if len(keywords) > 0 {
		labels := capStrings(keywords, 5)
		plots = append(plots, LocalPlot{
			Title:  "Key Topics Analysis",
			Type:   "bar",
			Labels: labels,
			Values: trimWeights([]float64{20, 15, 12, 10, 8}, len(labels)),
		})
	}

	if len(keywords) > 3 {
		labels := capStrings(keywords, 4)
		plots = append(plots, LocalPlot{
			Title:  "Business Focus Areas",
			Type:   "pie",
			Labels: labels,
			Values: trimWeights([]float64{30, 25, 25, 20}, len(labels)),
		})
	}

	return plots
}

func isAlphaPhrase(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return s != ""
}

func capStrings(items []string, max int) []string {
	if len(items) > max {
		items = items[:max]
	}
	out := make([]string, len(items))
	copy(out, items)
	return out
}

func trimWeights(weights []float64, n int) []float64 {
	if n > len(weights) {
		n = len(weights)
	}
	out := make([]float64, n)
	copy(out, weights[:n])
	return out
}
