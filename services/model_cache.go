package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedGenerator wraps a TextGenerator with a Redis response cache keyed on
// the prompt hash, so a deck rebuild over unchanged documents skips the
// model calls whose prompts did not change. Content-addressed keys mean
// there is nothing to invalidate: an edited document produces different
// prompts. Cache failures are logged and ignored; the wrapped generator
// stays the source of truth.
type CachedGenerator struct {
	inner TextGenerator
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedGenerator wraps inner with a response cache. A nil Redis client
// disables caching and every call passes straight through.
func NewCachedGenerator(inner TextGenerator, rdb *redis.Client, ttl time.Duration) *CachedGenerator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedGenerator{inner: inner, rdb: rdb, ttl: ttl}
}

func (cg *CachedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	key := promptCacheKey(prompt)

	if cg.rdb != nil {
		cached, err := cg.rdb.Get(ctx, key).Result()
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && err != redis.Nil {
			log.Printf("⚠️ Model cache read failed: %v", err)
		}
	}

	resp, err := cg.inner.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	if cg.rdb != nil {
		if err := cg.rdb.Set(ctx, key, resp, cg.ttl).Err(); err != nil {
			log.Printf("⚠️ Model cache write failed: %v", err)
		}
	}

	return resp, nil
}

func promptCacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "model:resp:" + hex.EncodeToString(sum[:])
}
