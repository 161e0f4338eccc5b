package crawler

import (
	"testing"
	"time"
)

// Needs Chrome and outbound network; validates the headless rendering
// path end to end when the environment has both.
func TestRenderJSFirstPageShallow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-dependent render test in short mode")
	}

	cfg := CrawlConfig{
		URL:              "https://example.com/",
		RenderJS:         true,
		RenderTimeout:    10 * time.Second,
		WaitSelector:     "body",
		NetworkIdleAfter: 300 * time.Millisecond,
		MaxPages:         1,
		FollowLinks:      false,
		PoliteDelay:      100 * time.Millisecond,
	}

	res, err := CrawlURL(cfg)
	if err != nil {
		// Containers without Chrome land here; skip with context.
		t.Skipf("JS-render test skipped due to environment: %v", err)
	}
	if res == nil || len(res.Pages) == 0 {
		t.Fatalf("expected at least one page from the JS-render path")
	}
}
