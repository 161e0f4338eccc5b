package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
)

// TextExtractor turns uploaded documents into plain text. Formats that
// carry no extractable text yield an empty result, never an error;
// extraction only fails when a supported format cannot be parsed.
type TextExtractor struct {
	config *config.Config
}

// NewTextExtractor creates a new text extractor
func NewTextExtractor(cfg *config.Config) *TextExtractor {
	return &TextExtractor{config: cfg}
}

// ExtractionResult contains the result of document text extraction
type ExtractionResult struct {
	Text           string
	Pages          int
	Method         string
	QualityScore   float64
	ProcessingTime time.Duration
	WordCount      int
	CharacterCount int
}

var (
	mdCodeFence  = regexp.MustCompile("(?s)```.*?```")
	mdInlineCode = regexp.MustCompile("`([^`]*)`")
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdEmphasis   = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+)(\*{1,3}|_{1,3})`)
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdRule       = regexp.MustCompile(`(?m)^(-{3,}|\*{3,}|_{3,})\s*$`)
	mdHTMLTag    = regexp.MustCompile(`<[^>]+>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// ExtractText extracts plain text from the file at filePath according to
// the document format. Only linear reading-order text is produced; layout
// is discarded.
func (e *TextExtractor) ExtractText(ctx context.Context, format, filePath string) (*ExtractionResult, error) {
	start := time.Now()

	// Enforce context deadline before heavy operations
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) <= 0 {
			return nil, fmt.Errorf("context deadline exceeded before extraction")
		}
	}

	// Cap extremely large files to avoid OOM
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat document file: %w", err)
	}
	if stat.Size() > 200<<20 { // 200MB safety cap
		return nil, fmt.Errorf("document too large for in-memory extraction")
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	result, err := e.ExtractBytes(content, format)
	if err != nil {
		return nil, err
	}

	result.ProcessingTime = time.Since(start)
	return result, nil
}

// ExtractBytes extracts plain text from in-memory content.
func (e *TextExtractor) ExtractBytes(content []byte, format string) (*ExtractionResult, error) {
	var result *ExtractionResult
	var err error

	switch format {
	case models.FormatPDF:
		result, err = e.extractPDF(content)
	case models.FormatText:
		result, err = e.extractPlain(content)
	case models.FormatMarkdown:
		result, err = e.extractMarkdown(content)
	case models.FormatHTML:
		result, err = e.extractHTML(content)
	default:
		// Unsupported formats carry no text; that is a normal outcome.
		result = &ExtractionResult{Method: "none", Pages: 0}
	}

	if err != nil {
		return nil, err
	}

	e.analyzeText(result)
	return result, nil
}

// extractPDF walks the pages in order and concatenates their plain text.
func (e *TextExtractor) extractPDF(content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			// A single unreadable page does not sink the document.
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	return &ExtractionResult{
		Text:   normalizeWhitespace(textBuilder.String()),
		Pages:  pages,
		Method: models.ExtractionMethodPDF,
	}, nil
}

// extractPlain decodes the bytes to UTF-8, sniffing the source charset.
func (e *TextExtractor) extractPlain(content []byte) (*ExtractionResult, error) {
	reader, err := charset.NewReader(bytes.NewReader(content), "text/plain")
	if err != nil {
		return nil, fmt.Errorf("failed to detect text encoding: %w", err)
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode text: %w", err)
	}

	return &ExtractionResult{
		Text:   normalizeWhitespace(string(decoded)),
		Pages:  1,
		Method: models.ExtractionMethodPlain,
	}, nil
}

// extractMarkdown strips markdown syntax, keeping link and image alt text.
func (e *TextExtractor) extractMarkdown(content []byte) (*ExtractionResult, error) {
	plain, err := e.extractPlain(content)
	if err != nil {
		return nil, err
	}

	text := plain.Text
	text = mdCodeFence.ReplaceAllString(text, "")
	text = mdImage.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdInlineCode.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdEmphasis.ReplaceAllString(text, "$2")
	text = mdBlockquote.ReplaceAllString(text, "")
	text = mdRule.ReplaceAllString(text, "")
	text = mdHTMLTag.ReplaceAllString(text, " ")

	return &ExtractionResult{
		Text:   normalizeWhitespace(text),
		Pages:  1,
		Method: models.ExtractionMethodMarkdown,
	}, nil
}

// extractHTML renders the document body to text, dropping script and style.
func (e *TextExtractor) extractHTML(content []byte) (*ExtractionResult, error) {
	reader, err := charset.NewReader(bytes.NewReader(content), "text/html")
	if err != nil {
		return nil, fmt.Errorf("failed to detect html encoding: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var textBuilder strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		textBuilder.WriteString(sel.Text())
	})
	text := textBuilder.String()
	if text == "" {
		// Fragments without a body element still carry text.
		text = doc.Text()
	}

	return &ExtractionResult{
		Text:   normalizeWhitespace(collapseSpaces(text)),
		Pages:  1,
		Method: models.ExtractionMethodHTML,
	}, nil
}

// analyzeText fills in word/char counts and a rough quality score.
func (e *TextExtractor) analyzeText(result *ExtractionResult) {
	result.WordCount = len(strings.Fields(result.Text))
	result.CharacterCount = len(result.Text)
	result.QualityScore = evaluateTextQuality(result.Text)
}

// evaluateTextQuality scores extracted text between 0 and 1 based on the
// share of printable versus corrupted characters. Low scores flag documents
// whose extraction produced garbage rather than prose.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0.0
	}
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int
	total := 0

	for _, r := range text {
		total++
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t':
			printable++
		case r == '�':
			corrupted++
		case r >= 32:
			printable++
		}
	}

	score := float64(printable) / float64(total) * 0.5
	if ratio := float64(alphanumeric) / float64(total); ratio >= 0.3 {
		score += 0.4
	} else {
		score += ratio
	}
	score -= float64(corrupted) / float64(total) * 2.0

	if len(text) > 100 {
		score += 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// normalizeWhitespace trims the text and collapses runs of blank lines.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var spaceRuns = regexp.MustCompile(`[ \t]+`)

// collapseSpaces squeezes horizontal whitespace inside lines.
func collapseSpaces(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

// FormatFromFilename maps a filename extension to a document format.
func FormatFromFilename(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".pdf"):
		return models.FormatPDF
	case strings.HasSuffix(name, ".txt"), strings.HasSuffix(name, ".text"):
		return models.FormatText
	case strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".markdown"):
		return models.FormatMarkdown
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"):
		return models.FormatHTML
	default:
		return models.FormatOther
	}
}
