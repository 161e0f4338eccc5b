package crawler

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
)

const homePage = `<!DOCTYPE html>
<html>
<head>
<title>Northwind Trading</title>
<meta name="description" content="Global distributor of specialty foods and beverages.">
<meta name="theme-color" content="#4e79a7">
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Organization","name":"Northwind Trading","legalName":"Northwind Trading Inc.","foundingDate":"1996","numberOfEmployees":{"@type":"QuantitativeValue","value":250},"address":{"@type":"PostalAddress","streetAddress":"1 Harbor Way","addressLocality":"Seattle","addressRegion":"WA","postalCode":"98101","addressCountry":"US"},"sameAs":["https://twitter.com/northwind","https://linkedin.com/company/northwind"]}
</script>
</head>
<body>
<nav>Home About Press Careers Contact</nav>
<main>
<h1>Northwind Trading</h1>
<p>Northwind Trading distributes specialty foods and beverages to retailers
across forty countries, pairing regional producers with modern logistics and
a catalog that has grown every year since the company was founded.</p>
<a href="/about">About us</a>
<a href="/press">Press</a>
</main>
<footer>Copyright Northwind Trading</footer>
</body>
</html>`

const aboutPage = `<!DOCTYPE html>
<html>
<head><title>About Northwind</title></head>
<body>
<main>
<h2>About us</h2>
<p>Founded in Seattle in 1996, Northwind Trading grew from a two-person
import desk into a distributor with two hundred fifty employees, regional
warehouses on three continents, and long standing producer partnerships.</p>
</main>
</body>
</html>`

const pressPage = `<!DOCTYPE html>
<html>
<head><title>Press</title></head>
<body>
<main>
<p>Press contacts and brand assets for journalists covering Northwind
Trading, including quarterly distribution milestones and the announcement
of the harborside fulfillment expansion program.</p>
</main>
</body>
</html>`

func newBrandSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(homePage))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(aboutPage))
	})
	// Served brotli-compressed to cover the manual decompression path.
	mux.HandleFunc("/press", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(pressPage))
		bw.Close()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func factValues(facts []models.SiteFact, name string) []string {
	var values []string
	for _, fact := range facts {
		if fact.Name == name {
			values = append(values, fact.Value)
		}
	}
	return values
}

func requireFact(t *testing.T, facts []models.SiteFact, name, want string) {
	t.Helper()
	for _, value := range factValues(facts, name) {
		if value == want {
			return
		}
	}
	t.Errorf("fact %s = %v, want %q", name, factValues(facts, name), want)
}

func TestCrawlLocalSite(t *testing.T) {
	server := newBrandSite(t)

	res, err := CrawlURL(CrawlConfig{
		URL:           server.URL + "/",
		MaxPages:      10,
		FollowLinks:   true,
		RespectRobots: false,
		PoliteDelay:   10 * time.Millisecond,
		Timeout:       10 * time.Second,
	})
	if err != nil {
		t.Fatalf("CrawlURL: %v", err)
	}

	if res.PagesCrawled != 3 {
		t.Fatalf("PagesCrawled = %d, want 3 (got %+v)", res.PagesCrawled, pagesURLs(res.Pages))
	}
	if res.Title != "Northwind Trading" {
		t.Errorf("Title = %q, want %q", res.Title, "Northwind Trading")
	}
	if !strings.Contains(res.Content, "forty countries") {
		t.Errorf("start page content missing body text: %q", res.Content)
	}
	if strings.Contains(res.Content, "Careers Contact") {
		t.Errorf("navigation chrome leaked into extracted content")
	}

	var press *models.SnapshotPage
	for i := range res.Pages {
		if strings.HasSuffix(res.Pages[i].URL, "/press") {
			press = &res.Pages[i]
		}
	}
	if press == nil {
		t.Fatalf("press page not crawled, pages: %v", pagesURLs(res.Pages))
	}
	if !strings.Contains(press.Content, "fulfillment expansion") {
		t.Errorf("brotli-encoded page not decoded, content: %q", press.Content)
	}
	if press.WordCount < 10 {
		t.Errorf("press page word count = %d, want >= 10", press.WordCount)
	}

	requireFact(t, res.Facts, "organization_name", "Northwind Trading")
	requireFact(t, res.Facts, "legal_name", "Northwind Trading Inc.")
	requireFact(t, res.Facts, "employee_count", "250")
	requireFact(t, res.Facts, "address", "1 Harbor Way, Seattle, WA, 98101, US")
	requireFact(t, res.Facts, "description", "Global distributor of specialty foods and beverages.")
	requireFact(t, res.Facts, "theme_color", "#4e79a7")
	if got := factValues(res.Facts, "social_profile"); len(got) != 2 {
		t.Errorf("social_profile facts = %v, want 2 entries", got)
	}
}

func pagesURLs(pages []models.SnapshotPage) []string {
	var urls []string
	for _, page := range pages {
		urls = append(urls, page.URL)
	}
	return urls
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/About/", "https://example.com/About"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com:443/", "https://example.com/"},
		{"http://example.com:80/pricing#plans", "http://example.com/pricing"},
		{"https://example.com:8443/x/", "https://example.com:8443/x"},
	}

	for _, tt := range tests {
		got, err := normalizeURL(tt.in)
		if err != nil {
			t.Errorf("normalizeURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsURLAllowed(t *testing.T) {
	cfg := CrawlConfig{}
	domains := []string{"acme.com"}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://acme.com/about", true},
		{"https://www.acme.com/about", true},
		{"https://shop.acme.com/news", true},
		{"https://other.com/about", false},
		{"ftp://acme.com/file", false},
		{"https://acme.com/brochure.pdf", false},
		{"https://acme.com/wp-admin/options", false},
		{"https://acme.com/cart", false},
		{"https://acme.com/feed/", false},
	}

	for _, tt := range tests {
		if got := isURLAllowed(tt.url, cfg, domains); got != tt.want {
			t.Errorf("isURLAllowed(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	pathCfg := CrawlConfig{AllowedPaths: []string{"/docs"}}
	if !isURLAllowed("https://acme.com/docs/start", pathCfg, domains) {
		t.Errorf("path under allowed prefix rejected")
	}
	if isURLAllowed("https://acme.com/blog/post", pathCfg, domains) {
		t.Errorf("path outside allowed prefix accepted")
	}
}

func TestExtractMainContentPrefersSemanticContainers(t *testing.T) {
	page := `<html><body>
<nav>Nav link one Nav link two Nav link three</nav>
<main><p>` + strings.Repeat("Meaningful product copy. ", 10) + `</p></main>
<footer>Footer legal text</footer>
</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	content := extractMainContentFromSelection(doc.Selection)
	if !strings.Contains(content, "Meaningful product copy.") {
		t.Errorf("main content missing: %q", content)
	}
	if strings.Contains(content, "Nav link") || strings.Contains(content, "Footer legal") {
		t.Errorf("chrome not stripped: %q", content)
	}
}

func TestExtractSiteFactsGraphAndMeta(t *testing.T) {
	page := `<html><head>
<meta property="og:site_name" content="Acme">
<meta property="og:description" content="Rockets and roadrunner supplies.">
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebSite","name":"Acme"},
  {"@type":["Thing","Corporation"],"name":"Acme Corporation","slogan":"Everything under the sun","numberOfEmployees":"1200","logo":{"@type":"ImageObject","url":"https://acme.test/logo.png"}}
]}
</script>
</head><body></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	facts := ExtractSiteFacts(doc.Selection, "https://acme.test/")

	requireFact(t, facts, "organization_name", "Acme Corporation")
	requireFact(t, facts, "tagline", "Everything under the sun")
	requireFact(t, facts, "employee_count", "1200")
	requireFact(t, facts, "logo_url", "https://acme.test/logo.png")
	requireFact(t, facts, "site_name", "Acme")
	// og:description only applies when no plain description meta exists.
	requireFact(t, facts, "description", "Rockets and roadrunner supplies.")

	for _, fact := range facts {
		if fact.SourceURL != "https://acme.test/" {
			t.Errorf("fact %s has source %q", fact.Name, fact.SourceURL)
		}
		if fact.ParsedAt.IsZero() {
			t.Errorf("fact %s has zero ParsedAt", fact.Name)
		}
	}
}

func TestExtractSiteFactsCapsLongValues(t *testing.T) {
	long := strings.Repeat("x", 900)
	page := `<html><head><meta name="description" content="` + long + `"></head><body></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	facts := ExtractSiteFacts(doc.Selection, "https://acme.test/")
	values := factValues(facts, "description")
	if len(values) != 1 {
		t.Fatalf("description facts = %v", values)
	}
	if len(values[0]) != maxFactValueLen {
		t.Errorf("description length = %d, want %d", len(values[0]), maxFactValueLen)
	}
}

func TestNormalizeSiteURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"acme.com", "https://acme.com/", false},
		{"  https://acme.com/about/  ", "https://acme.com/about", false},
		{"http://acme.com", "http://acme.com/", false},
		{"", "", true},
		{"ftp://acme.com", "", true},
		{"https://", "", true},
	}

	for _, tt := range tests {
		got, err := normalizeSiteURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("normalizeSiteURL(%q) = %q, want error", tt.in, got)
			} else if !errors.Is(err, utils.ErrMalformedInput) {
				t.Errorf("normalizeSiteURL(%q) error = %v, want ErrMalformedInput", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeSiteURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeSiteURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompressPagesRoundTrip(t *testing.T) {
	pages := []models.SnapshotPage{
		{URL: "https://acme.test/", Title: "Home", Content: "Rocket skates and anvils since 1949."},
		{URL: "https://acme.test/about", Title: "About", Content: "A catalog company for ambitious coyotes."},
	}

	blob, err := compressPages(pages)
	if err != nil {
		t.Fatalf("compressPages: %v", err)
	}
	if len(blob) == 0 {
		t.Fatalf("expected compressed content")
	}

	svc := &SnapshotService{}
	text, err := svc.SnapshotText(&models.SiteSnapshot{CompressedContent: blob})
	if err != nil {
		t.Fatalf("SnapshotText: %v", err)
	}
	for _, want := range []string{"# Home", "Rocket skates", "# About", "ambitious coyotes"} {
		if !strings.Contains(text, want) {
			t.Errorf("decompressed text missing %q", want)
		}
	}

	empty, err := svc.SnapshotText(&models.SiteSnapshot{})
	if err != nil || empty != "" {
		t.Errorf("SnapshotText on empty snapshot = (%q, %v), want empty", empty, err)
	}
}

func TestComposeSnapshotHTML(t *testing.T) {
	snap := &models.SiteSnapshot{URL: "https://acme.test/"}
	result := &CrawlResult{
		Title: "Acme <Home>",
		Pages: []models.SnapshotPage{
			{URL: "https://acme.test/", Title: "Acme <Home>", Content: "Rockets & anvils for every budget."},
		},
		Facts: []models.SiteFact{
			{Name: "organization_name", Value: "Acme R&D <Labs>"},
		},
	}

	rendered := string(composeSnapshotHTML(snap, result))

	if !strings.Contains(rendered, "Acme &lt;Home&gt;") {
		t.Errorf("title not escaped: %q", rendered)
	}
	if !strings.Contains(rendered, "Acme R&amp;D &lt;Labs&gt;") {
		t.Errorf("fact value not escaped: %q", rendered)
	}
	if strings.Contains(rendered, "<Labs>") {
		t.Errorf("raw markup leaked into the document")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		t.Fatalf("rendered document does not parse: %v", err)
	}
	if got := doc.Find("title").Text(); got != "Acme <Home>" {
		t.Errorf("title = %q", got)
	}
	if got := doc.Find("section h2").Text(); got != "Site facts" {
		t.Errorf("facts section heading = %q", got)
	}
	if got := doc.Find("article div").Text(); !strings.Contains(got, "Rockets & anvils") {
		t.Errorf("page content = %q", got)
	}
}
