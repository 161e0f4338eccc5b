package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCachedGeneratorPassThroughWithoutRedis(t *testing.T) {
	gen := &stubGenerator{response: "model output"}
	cached := NewCachedGenerator(gen, nil, time.Hour)

	for i := 0; i < 2; i++ {
		resp, err := cached.Generate(context.Background(), "same prompt")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if resp != "model output" {
			t.Errorf("unexpected response %q", resp)
		}
	}
	if len(gen.prompts) != 2 {
		t.Errorf("without redis every call should reach the model, got %d calls", len(gen.prompts))
	}
}

func TestPromptCacheKeyStable(t *testing.T) {
	a := promptCacheKey("summarize this")
	b := promptCacheKey("summarize this")
	c := promptCacheKey("summarize that")

	if a != b {
		t.Error("identical prompts must map to the same key")
	}
	if a == c {
		t.Error("different prompts must map to different keys")
	}
}

func TestCachedGeneratorLiveRedis(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	gen := &stubGenerator{response: "cached once"}
	cached := NewCachedGenerator(gen, rdb, time.Minute)

	prompt := "live cache probe " + time.Now().Format(time.RFC3339Nano)
	for i := 0; i < 3; i++ {
		resp, err := cached.Generate(ctx, prompt)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if resp != "cached once" {
			t.Errorf("unexpected response %q", resp)
		}
	}
	if len(gen.prompts) != 1 {
		t.Errorf("repeat prompts should be served from cache, model saw %d calls", len(gen.prompts))
	}
}
