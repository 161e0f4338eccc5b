package services

import (
	"strings"
	"testing"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

func newTestExtractor() *TextExtractor {
	return NewTextExtractor(&config.Config{})
}

func TestExtractPlainText(t *testing.T) {
	e := newTestExtractor()
	res, err := e.ExtractBytes([]byte("Quarterly revenue grew by 12%.\n\nMargins held steady."), models.FormatText)
	if err != nil {
		t.Fatalf("plain text extraction failed: %v", err)
	}
	if !strings.Contains(res.Text, "Quarterly revenue grew by 12%.") {
		t.Errorf("extracted text lost content: %q", res.Text)
	}
	if res.WordCount == 0 || res.CharacterCount == 0 {
		t.Errorf("counts not populated: words=%d chars=%d", res.WordCount, res.CharacterCount)
	}
	if res.Method != models.ExtractionMethodPlain {
		t.Errorf("method = %q, want %q", res.Method, models.ExtractionMethodPlain)
	}
}

func TestExtractMarkdownStripsSyntax(t *testing.T) {
	e := newTestExtractor()
	md := "# Brand Report\n\nRevenue was **$12.5 million**, see [details](https://example.com/q3).\n\n```\ncode block dropped\n```\n\n> Market position remains strong.\n"

	res, err := e.ExtractBytes([]byte(md), models.FormatMarkdown)
	if err != nil {
		t.Fatalf("markdown extraction failed: %v", err)
	}

	for _, forbidden := range []string{"#", "**", "](", "```", "code block dropped"} {
		if strings.Contains(res.Text, forbidden) {
			t.Errorf("markdown syntax %q leaked into output: %q", forbidden, res.Text)
		}
	}
	for _, want := range []string{"Brand Report", "$12.5 million", "details", "Market position remains strong."} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("content %q missing from output: %q", want, res.Text)
		}
	}
}

func TestExtractHTMLDropsMarkup(t *testing.T) {
	e := newTestExtractor()
	html := `<html><head><style>body{color:red}</style><script>alert(1)</script></head>
<body><h1>Acme Brand</h1><p>Founded in   2015.</p><script>tracking()</script></body></html>`

	res, err := e.ExtractBytes([]byte(html), models.FormatHTML)
	if err != nil {
		t.Fatalf("html extraction failed: %v", err)
	}

	if strings.Contains(res.Text, "alert") || strings.Contains(res.Text, "tracking") || strings.Contains(res.Text, "color:red") {
		t.Errorf("script/style content leaked: %q", res.Text)
	}
	if !strings.Contains(res.Text, "Acme Brand") || !strings.Contains(res.Text, "Founded in 2015.") {
		t.Errorf("body text missing or not normalized: %q", res.Text)
	}
}

func TestExtractUnsupportedFormatYieldsEmpty(t *testing.T) {
	e := newTestExtractor()
	res, err := e.ExtractBytes([]byte{0x00, 0x01, 0x02, 0x03}, models.FormatOther)
	if err != nil {
		t.Fatalf("unsupported format must not error, got %v", err)
	}
	if res.Text != "" {
		t.Errorf("unsupported format produced text: %q", res.Text)
	}
}

func TestExtractBrokenPDFErrors(t *testing.T) {
	e := newTestExtractor()
	if _, err := e.ExtractBytes([]byte("not a pdf at all"), models.FormatPDF); err == nil {
		t.Fatalf("expected an error for unparseable PDF content")
	}
}

func TestFormatFromFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":    models.FormatPDF,
		"Notes.TXT":     models.FormatText,
		"readme.md":     models.FormatMarkdown,
		"index.html":    models.FormatHTML,
		"page.htm":      models.FormatHTML,
		"deck.pptx":     models.FormatOther,
		"no-extension":  models.FormatOther,
		"guide.current": models.FormatOther,
	}
	for name, want := range cases {
		if got := FormatFromFilename(name); got != want {
			t.Errorf("FormatFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestEvaluateTextQuality(t *testing.T) {
	long := strings.Repeat("The brand grew steadily across all markets during the year. ", 5)
	if q := evaluateTextQuality(long); q < 0.7 {
		t.Errorf("clean prose scored %.2f, want >= 0.7", q)
	}
	garbage := strings.Repeat("��� ", 30)
	if q := evaluateTextQuality(garbage); q > 0.3 {
		t.Errorf("corrupted text scored %.2f, want <= 0.3", q)
	}
	if q := evaluateTextQuality(""); q != 0 {
		t.Errorf("empty text scored %.2f, want 0", q)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "line one\r\n\r\n\r\n\r\nline two\n\n\n\nline three"
	out := normalizeWhitespace(in)
	if strings.Contains(out, "\n\n\n") {
		t.Errorf("blank-line runs survived normalization: %q", out)
	}
	if !strings.HasPrefix(out, "line one") || !strings.HasSuffix(out, "line three") {
		t.Errorf("content trimmed incorrectly: %q", out)
	}
}
