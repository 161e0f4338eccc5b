package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"brand-deck-platform/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/chromedp/chromedp"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

// defaultUserAgent is used when no crawler identity is configured. Brand
// sites routinely serve bot user agents a stripped page or a 403.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var (
	// Shared transport. gzip is decompressed by net/http itself; brotli
	// is handled manually in the response hook.
	httpTransport = &http.Transport{
		DisableCompression: false,
	}
)

// CrawlConfig describes a single snapshot crawl of a brand site.
type CrawlConfig struct {
	URL            string
	MaxPages       int
	AllowedDomains []string
	AllowedPaths   []string
	FollowLinks    bool
	RespectRobots  bool
	UserAgent      string
	Timeout        time.Duration

	// PoliteDelay spaces out requests to the same domain; defaults to 2s.
	PoliteDelay time.Duration

	// Optional headless rendering of the first page for script-heavy sites
	RenderJS         bool
	RenderTimeout    time.Duration
	WaitSelector     string
	NetworkIdleAfter time.Duration
}

// CrawlResult is the raw outcome of a crawl before it is persisted onto a
// snapshot record.
type CrawlResult struct {
	URL          string
	Title        string
	Content      string
	Pages        []models.SnapshotPage
	Facts        []models.SiteFact
	PagesFound   int
	PagesCrawled int
	Error        error
}

// normalizeURL maps a URL to a canonical form for duplicate detection:
// no fragment, no trailing slash on non-root paths, lowercase scheme and
// host, default ports stripped.
func normalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Fragment = ""

	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	if parsed.Port() == "80" && parsed.Scheme == "http" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}
	if parsed.Port() == "443" && parsed.Scheme == "https" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

// CrawlURL fetches a brand site. The start page and, when FollowLinks is
// set, same-domain pages linked from it are reduced to text, and brand
// facts are parsed from structured data along the way. The request
// timeout on the collector bounds each fetch; the caller bounds the whole
// crawl through the task timeout.
func CrawlURL(cfg CrawlConfig) (*CrawlResult, error) {
	result := &CrawlResult{
		URL:   cfg.URL,
		Pages: []models.SnapshotPage{},
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "https"
		cfg.URL = parsedURL.String()
	}

	// Normalize before anything else so the dedup maps, colly's visited
	// set and the error handler all speak about the same URL.
	normalizedStartURL, err := normalizeURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	allowedDomains := cfg.AllowedDomains
	if len(allowedDomains) == 0 {
		hostname := parsedURL.Hostname()
		if hostname != "" {
			hostnameClean := strings.TrimPrefix(strings.ToLower(hostname), "www.")
			allowedDomains = []string{hostnameClean, "www." + hostnameClean, hostname}
		}
	}

	// A fresh collector per crawl: colly keeps a visited set and handler
	// state that must not leak between snapshots.
	options := []colly.CollectorOption{
		colly.Async(true),
		colly.MaxDepth(2),
	}
	if len(allowedDomains) > 0 {
		options = append(options, colly.AllowedDomains(allowedDomains...))
	}
	if !cfg.RespectRobots {
		options = append(options, colly.IgnoreRobotsTxt())
	}

	c := colly.NewCollector(options...)
	c.WithTransport(httpTransport)

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c.UserAgent = ua

	delay := cfg.PoliteDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
		RandomDelay: delay / 2,
	})

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 25
	}

	var (
		pagesMu sync.Mutex
		pages   []models.SnapshotPage

		factsMu  sync.Mutex
		facts    []models.SiteFact
		factSeen = map[string]bool{}
	)

	collectFacts := func(sel *goquery.Selection, pageURL string) {
		factsMu.Lock()
		defer factsMu.Unlock()
		for _, fact := range ExtractSiteFacts(sel, pageURL) {
			key := fact.Name + "\x00" + fact.Value
			if factSeen[key] {
				continue
			}
			factSeen[key] = true
			facts = append(facts, fact)
		}
	}

	// URLs whose HTML handler already ran
	processed := sync.Map{}

	// URLs handed to colly, successfully or not
	queued := sync.Map{}
	var queuedMu sync.Mutex

	initialPageProcessed := false
	var initialPageMu sync.Mutex

	// Browser-like headers; bare requests are a common 403 trigger.
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br, zstd")
		r.Headers.Set("Connection", "keep-alive")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Sec-Fetch-Site", "none")
		r.Headers.Set("Sec-Fetch-User", "?1")

		// Client hint headers only make sense next to the Chrome agent.
		if ua == defaultUserAgent {
			r.Headers.Set("Sec-Ch-Ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
			r.Headers.Set("Sec-Ch-Ua-Mobile", "?0")
			r.Headers.Set("Sec-Ch-Ua-Platform", `"Windows"`)
		}

		if requestURL, err := url.Parse(r.URL.String()); err == nil {
			r.Headers.Set("Referer", fmt.Sprintf("%s://%s/", requestURL.Scheme, requestURL.Host))
		}

		r.Headers.Del("Cache-Control")
		r.Headers.Del("Pragma")
	})

	c.OnResponse(func(r *colly.Response) {
		// Skip binary responses; snapshots only hold page text.
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			return
		}

		contentEncoding := r.Headers.Get("Content-Encoding")
		var bodyReader io.Reader = bytes.NewReader(r.Body)

		// net/http decompresses gzip on its own but not brotli.
		if strings.Contains(contentEncoding, "br") {
			decompressed, err := io.ReadAll(brotli.NewReader(bodyReader))
			if err == nil {
				r.Body = decompressed
				bodyReader = bytes.NewReader(decompressed)
			}
		}

		// Decode legacy charsets to UTF-8; on detection failure the body
		// is kept as-is, which is usually UTF-8 already.
		if len(r.Body) > 0 {
			utf8Reader, err := charset.NewReader(bodyReader, contentType)
			if err == nil {
				decodedBody, readErr := io.ReadAll(utf8Reader)
				if readErr == nil && len(decodedBody) > 0 {
					r.Body = decodedBody
				}
			}
		}

		result.PagesFound++
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		pagesMu.Lock()
		defer pagesMu.Unlock()

		if len(pages) >= maxPages {
			return
		}

		normalizedURL, err := normalizeURL(e.Request.URL.String())
		if err != nil {
			return
		}

		if _, exists := processed.LoadOrStore(normalizedURL, true); exists {
			return
		}

		doc := e.DOM
		title := strings.TrimSpace(doc.Find("title").Text())
		content := extractMainContentFromSelection(e.DOM)
		if len(content) < 50 {
			content = doc.Find("body").Text()
		}

		wordCount := len(strings.Fields(content))
		if wordCount < 10 {
			// Cookie walls and parked pages carry nothing worth keeping.
			return
		}

		// Structured data lives in the raw DOM, before content stripping.
		collectFacts(e.DOM, normalizedURL)

		pages = append(pages, models.SnapshotPage{
			URL:        normalizedURL,
			Title:      title,
			Content:    content,
			FetchedAt:  time.Now(),
			StatusCode: e.Response.StatusCode,
			Size:       int64(len(content)),
			WordCount:  wordCount,
		})

		if len(pages) == 1 {
			result.Title = title
			result.Content = content
			initialPageMu.Lock()
			initialPageProcessed = true
			initialPageMu.Unlock()
		}

		if cfg.FollowLinks && len(pages) < maxPages {
			linkCount := 0
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				if len(pages) >= maxPages {
					return
				}

				href, exists := s.Attr("href")
				if !exists || href == "" {
					return
				}

				hrefLower := strings.ToLower(href)
				if strings.HasPrefix(href, "#") ||
					strings.HasPrefix(hrefLower, "javascript:") ||
					strings.HasPrefix(hrefLower, "mailto:") ||
					strings.HasPrefix(hrefLower, "tel:") {
					return
				}

				absoluteURL := e.Request.AbsoluteURL(href)
				if absoluteURL == "" {
					return
				}

				normalized, err := normalizeURL(absoluteURL)
				if err != nil {
					return
				}

				queuedMu.Lock()
				if _, queuedExists := queued.LoadOrStore(normalized, true); queuedExists {
					queuedMu.Unlock()
					return
				}
				queuedMu.Unlock()

				if _, processedExists := processed.Load(normalized); processedExists {
					return
				}

				if isURLAllowed(normalized, cfg, allowedDomains) {
					if linkCount >= 20 {
						return
					}
					linkCount++

					c.Visit(normalized)
				}
			})
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		errMsg := err.Error()
		requestURL := r.Request.URL.String()
		normalizedErrURL, _ := normalizeURL(requestURL)
		statusCode := r.StatusCode

		if statusCode == 403 {
			log.Printf("⚠️ 403 Forbidden for URL: %s", requestURL)
			if normalizedErrURL == normalizedStartURL {
				result.Error = fmt.Errorf("access forbidden (403): the site blocked the crawl, usually bot protection or restricted access")
			}
			return
		}

		if statusCode == 429 {
			log.Printf("⚠️ 429 Rate Limited for URL: %s", requestURL)
			if normalizedErrURL == normalizedStartURL {
				result.Error = fmt.Errorf("rate limited (429): too many requests, retry later")
			}
			return
		}

		if statusCode >= 500 {
			log.Printf("⚠️ Server Error %d for URL: %s", statusCode, requestURL)
			if normalizedErrURL == normalizedStartURL {
				result.Error = fmt.Errorf("server error (%d): the site returned an error", statusCode)
			}
			return
		}

		// colly reports its own duplicate detection as an error. Harmless
		// when the page was processed; when the start URL itself bounces
		// with nothing processed, clear it from the queue and retry once.
		if strings.Contains(errMsg, "already visited") {
			if _, wasProcessed := processed.Load(normalizedErrURL); wasProcessed {
				return
			}

			if normalizedErrURL == normalizedStartURL {
				pagesMu.Lock()
				hasPages := len(pages) > 0
				pagesMu.Unlock()

				if !hasPages {
					queuedMu.Lock()
					queued.Delete(normalizedErrURL)
					queuedMu.Unlock()

					c.Visit(cfg.URL)
				}
			}
			return
		}

		if normalizedErrURL == normalizedStartURL {
			pagesMu.Lock()
			hasPages := len(pages) > 0
			pagesMu.Unlock()

			if !hasPages && result.Error == nil {
				if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "no such host") {
					result.Error = fmt.Errorf("network error: %v", err)
				} else if statusCode != 0 {
					result.Error = fmt.Errorf("HTTP error (%d): %v", statusCode, err)
				} else {
					result.Error = fmt.Errorf("failed to crawl initial URL %s: %w", normalizedStartURL, err)
				}
			}
		}
	})

	// Mark the start URL as queued before visiting so the link handler
	// never schedules it a second time.
	queuedMu.Lock()
	queued.Store(normalizedStartURL, true)
	queuedMu.Unlock()

	// Prerender the first page in a headless browser when the site builds
	// its content with scripts.
	if cfg.RenderJS {
		renderTimeout := cfg.RenderTimeout
		if renderTimeout <= 0 {
			renderTimeout = 45 * time.Second
		}
		networkIdle := cfg.NetworkIdleAfter
		if networkIdle <= 0 {
			networkIdle = 1200 * time.Millisecond
		}
		html, renderErr := renderPageHTML(normalizedStartURL, ua, renderTimeout, cfg.WaitSelector, networkIdle)
		if renderErr == nil && html != "" {
			doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(html))
			if parseErr == nil {
				title := strings.TrimSpace(doc.Find("title").Text())
				content := extractMainContentFromSelection(doc.Selection)
				wordCount := len(strings.Fields(content))
				if wordCount >= 10 {
					collectFacts(doc.Selection, normalizedStartURL)
					pagesMu.Lock()
					pages = append(pages, models.SnapshotPage{
						URL:        normalizedStartURL,
						Title:      title,
						Content:    content,
						FetchedAt:  time.Now(),
						StatusCode: 200,
						Size:       int64(len(content)),
						WordCount:  wordCount,
					})
					pagesMu.Unlock()
					result.Title = title
					result.Content = content
					initialPageMu.Lock()
					initialPageProcessed = true
					initialPageMu.Unlock()
				}
			}
		} else if renderErr != nil {
			log.Printf("⚠️ JS render failed: %v", renderErr)
		}
	}

	log.Printf("🚀 Starting crawl: %s", normalizedStartURL)
	err = c.Visit(normalizedStartURL)
	if err != nil {
		// Normalization can disagree with what the site expects; fall
		// back to the URL exactly as requested.
		log.Printf("⚠️ Trying original URL: %s", cfg.URL)
		queuedMu.Lock()
		queued.Store(cfg.URL, true)
		queuedMu.Unlock()

		err = c.Visit(cfg.URL)
		if err != nil {
			if strings.Contains(err.Error(), "already visited") {
				c.Wait()
				pagesMu.Lock()
				pagesCount := len(pages)
				pagesMu.Unlock()

				if pagesCount == 0 {
					return nil, fmt.Errorf("URL %s already visited with no pages processed", normalizedStartURL)
				}
			} else {
				return nil, fmt.Errorf("failed to start crawl: %w", err)
			}
		}
	}

	c.Wait()

	initialPageMu.Lock()
	wasProcessed := initialPageProcessed
	initialPageMu.Unlock()

	pagesMu.Lock()
	pagesCount := len(pages)
	pagesMu.Unlock()

	if pagesCount == 0 {
		if result.Error != nil {
			return nil, result.Error
		}
		if !wasProcessed {
			return nil, fmt.Errorf("initial URL %s was not processed", normalizedStartURL)
		}
		return result, nil
	}

	result.Pages = pages
	result.Facts = facts
	result.PagesCrawled = len(pages)

	// Partial failures do not matter once pages came through.
	if result.Error != nil && len(pages) > 0 {
		result.Error = nil
	}

	return result, result.Error
}

// renderPageHTML drives a headless browser through navigate, readiness
// and network-idle waits, then reads back the rendered HTML. The wait
// steps soft-fail so a stuck spinner never loses the page.
func renderPageHTML(urlStr, userAgent string, timeout time.Duration, waitSelector string, networkIdleAfter time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var html string

	if err := chromedp.Run(browserCtx, chromedp.Navigate(urlStr)); err != nil {
		return "", err
	}

	if stepCtx, cancelStep := context.WithTimeout(browserCtx, 10*time.Second); true {
		defer cancelStep()
		_ = chromedp.Run(stepCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	}

	if waitSelector != "" {
		if stepCtx, cancelStep := context.WithTimeout(browserCtx, 15*time.Second); true {
			defer cancelStep()
			_ = chromedp.Run(stepCtx, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
		}
	}

	if networkIdleAfter > 0 {
		idleCap := networkIdleAfter
		if idleCap > 5*time.Second {
			idleCap = 5 * time.Second
		}
		if stepCtx, cancelStep := context.WithTimeout(browserCtx, idleCap+1*time.Second); true {
			defer cancelStep()
			_ = chromedp.Run(stepCtx, waitForNetworkIdle(idleCap))
		}
	}

	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// waitForNetworkIdle resolves once no network activity has been observed
// for the given duration, tracked in-page via PerformanceObserver.
func waitForNetworkIdle(d time.Duration) chromedp.ActionFunc {
	js := `(function(waitMs){
      return new Promise((resolve)=>{
        if (!('PerformanceObserver' in window)) {
          setTimeout(resolve, waitMs);
          return;
        }
        let last = Date.now();
        const obs = new PerformanceObserver(()=>{ last = Date.now(); });
        try { obs.observe({entryTypes:['resource','navigation']}); } catch(e) {}
        const tick = () => {
          if (Date.now()-last >= waitMs) { try { obs.disconnect(); } catch(e){} resolve(); return; }
          setTimeout(tick, 100);
        };
        tick();
      });
    })(%d);`
	return func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(js, int(d.Milliseconds())), nil))
	}
}

// extractMainContentFromSelection reduces a page to its readable text,
// preferring semantic content containers over the whole body.
func extractMainContentFromSelection(selection *goquery.Selection) string {
	doc := selection.Clone()

	doc.Find("script, style, nav, footer, header, aside, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads, .skip-link").Remove()

	contentSelectors := []string{
		"main",
		"article",
		"[role='main']",
		".main-content",
		".content",
		"#content",
		".post",
		".entry",
		"body",
	}

	var content strings.Builder
	contentFound := false

	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				contentFound = true
			}
		})

		if contentFound {
			break
		}
	}

	if !contentFound {
		content.WriteString(doc.Find("body").Text())
	}

	text := strings.TrimSpace(content.String())

	lines := strings.Split(text, "\n")
	var cleanedLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}

// isURLAllowed applies the domain allow-list, path prefixes and the
// static exclusion list for asset, feed and commerce URLs.
func isURLAllowed(urlStr string, cfg CrawlConfig, allowedDomains []string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	if len(allowedDomains) > 0 {
		hostname := strings.ToLower(parsed.Hostname())
		domainAllowed := false
		for _, allowedDomain := range allowedDomains {
			allowedDomain = strings.ToLower(strings.TrimPrefix(allowedDomain, "www."))
			hostnameClean := strings.TrimPrefix(hostname, "www.")
			if hostnameClean == allowedDomain || strings.HasSuffix(hostnameClean, "."+allowedDomain) {
				domainAllowed = true
				break
			}
		}
		if !domainAllowed {
			return false
		}
	}

	if len(cfg.AllowedPaths) > 0 {
		pathAllowed := false
		for _, allowedPath := range cfg.AllowedPaths {
			if strings.HasPrefix(parsed.Path, allowedPath) {
				pathAllowed = true
				break
			}
		}
		if !pathAllowed {
			return false
		}
	}

	excludedPatterns := []string{
		"/wp-json/",
		"/api/",
		"/ajax/",
		".pdf",
		".jpg",
		".jpeg",
		".png",
		".gif",
		".svg",
		".css",
		".js",
		".xml",
		"/feed/",
		"/rss/",
		"/atom/",
		"/search?",
		"/?s=",
		"/cart",
		"/checkout",
		"/wp-admin/",
		"/wp-includes/",
	}

	pathLower := strings.ToLower(parsed.Path)
	queryLower := strings.ToLower(parsed.RawQuery)

	for _, pattern := range excludedPatterns {
		if strings.Contains(pathLower, pattern) || strings.Contains(queryLower, pattern) {
			return false
		}
	}

	return true
}
