package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/internal/telemetry"
	"brand-deck-platform/utils"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	// generationTemperature keeps extraction output stable enough to parse
	// while leaving summaries some room to rephrase.
	generationTemperature = 0.4
	maxOutputTokens       = 8192
)

// degradedAnswer is returned by Answer when the circuit breaker is open.
// Pipeline stages never see it; they get an error and fall back instead.
const degradedAnswer = "The insight service is experiencing high demand right now. Please try again in a moment."

// RemoteClient wraps the Gemini API behind a circuit breaker, a client-side
// rate limiter and token accounting. It serves every remote-routed pipeline
// stage plus the deck Q&A surface.
type RemoteClient struct {
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	model        string
	tier         string
	timeout      time.Duration
	metrics      *telemetry.Metrics
}

// TokenCounter tracks request and token consumption against per-minute and
// per-day windows.
type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

// NewRemoteClient builds the production Gemini-backed client. Rate limits
// follow the configured API tier; GEMINI_RPM overrides the tier's RPM when
// set.
func NewRemoteClient(ctx context.Context, cfg *config.Config) (*RemoteClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	limits := getRateLimits(cfg.GeminiTier)
	if cfg.GeminiRPM > 0 {
		limits.RPM = cfg.GeminiRPM
	}

	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst)

	rc := &RemoteClient{
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
		client:       client,
		model:        cfg.GeminiModel,
		tier:         cfg.GeminiTier,
		timeout:      cfg.ModelTimeout,
	}

	rc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
			if rc.metrics != nil {
				rc.metrics.RecordCircuitBreakerState("remote_model", to.String())
			}
			if to == gobreaker.StateOpen {
				log.Printf("🚨 ALERT: Gemini circuit breaker opened - deck builds will degrade to fallbacks")
			}
		},
	})

	return rc, nil
}

// SetMetrics attaches the meter handle. Without it the client runs fine,
// just unmeasured.
func (rc *RemoteClient) SetMetrics(m *telemetry.Metrics) {
	rc.metrics = m
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Generate runs one prompt against the remote model and returns the
// response text. Quota exhaustion, an open breaker and empty responses all
// surface as errors wrapping ErrBackendUnavailable, so callers degrade to
// their defined fallbacks instead of receiving fabricated content.
func (rc *RemoteClient) Generate(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("remote-model")
	ctx, span := tracer.Start(ctx, "model.generate")
	defer span.End()

	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	estimatedTokens := estimateTokens(prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", rc.model),
	)

	if !rc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("model quota window exhausted: %w", utils.ErrBackendUnavailable)
	}

	if err := rc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	result, err := rc.breaker.Execute(func() (interface{}, error) {
		model := rc.client.GenerativeModel(rc.model)
		model.SetTemperature(generationTemperature)
		model.SetMaxOutputTokens(maxOutputTokens)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			span.SetAttributes(
				attribute.Bool("gemini.error", true),
				attribute.String("gemini.error_message", err.Error()),
			)
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		rc.tokenCounter.RecordUsage(actualTokens, 1)
		if rc.metrics != nil {
			rc.metrics.RecordTokensUsed(int64(actualTokens), rc.model)
		}
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))

		return extractText(resp), nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", fmt.Errorf("model circuit breaker open: %w", utils.ErrBackendUnavailable)
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", fmt.Errorf("model call failed: %w", err)
	}

	text := strings.TrimSpace(result.(string))
	if text == "" {
		return "", fmt.Errorf("model returned no content: %w", utils.ErrBackendUnavailable)
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return text, nil
}

// Answer serves the deck Q&A surface: the question is grounded on retrieved
// corpus chunks. Unlike Generate, an open breaker yields a polite degraded
// answer because a chat user is waiting on the other end.
func (rc *RemoteClient) Answer(ctx context.Context, question string, contextChunks []string) (string, error) {
	answer, err := rc.Generate(ctx, buildGroundedPrompt(question, contextChunks))
	if err != nil {
		if rc.breaker.State() == gobreaker.StateOpen {
			return degradedAnswer, nil
		}
		return "", err
	}
	return answer, nil
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}
	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// estimateTokens approximates the prompt cost before the request is made.
// Roughly 1 token per 4 characters for Gemini-family models.
func estimateTokens(prompt string) int {
	estimated := len(prompt) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// extractTokenUsage reads actual usage from the response metadata, falling
// back to a character-based estimate when the metadata is absent.
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	return estimateTokens(extractText(resp))
}

// extractText flattens all text parts of the first-class candidates into
// one string.
func extractText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

func buildGroundedPrompt(question string, contextChunks []string) string {
	if len(contextChunks) == 0 {
		return question
	}

	var sb strings.Builder
	for i, chunk := range contextChunks {
		fmt.Fprintf(&sb, "Context %d:\n%s\n\n", i+1, chunk)
	}

	return fmt.Sprintf(`Answer the question using only the document excerpts below. If the excerpts do not contain the answer, say so plainly.

%s
Question: %s

Answer:`, sb.String(), question)
}

// Close releases the underlying API client.
func (rc *RemoteClient) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}
