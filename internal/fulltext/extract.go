// internal/fulltext/extract.go
package fulltext

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
)

// ErrEmptyExtraction means decoding succeeded but produced no text,
// which happens with scanned or image-only PDFs.
var ErrEmptyExtraction = errors.New("extraction produced no text")

// ExtractPDFText decodes a PDF in memory and returns its plain text.
// Words in a row are joined with spaces and rows with newlines, which
// keeps sentence order readable for the summarizers downstream.
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("error opening pdf: %w", err)
	}

	var textBuilder strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("error reading pdf page %d: %w", i, err)
		}

		for _, row := range rows {
			var words []string
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			textBuilder.WriteString(strings.Join(words, " "))
			textBuilder.WriteString("\n")
		}
	}

	text := strings.TrimSpace(textBuilder.String())
	if text == "" {
		return "", ErrEmptyExtraction
	}
	return text, nil
}

// Readability output shorter than this is usually just the title or
// navigation chrome, so raw paragraph extraction takes over.
const minReadableLength = 200

// ExtractHTMLText reduces an article page to its main body text
func ExtractHTMLText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "<") {
		return normalizeWhitespace(trimmed)
	}

	// Strip obvious non-content elements before readability sees the
	// document. Publisher pages bury the article under navigation,
	// citation managers and sharing widgets.
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed)); err == nil {
		doc.Find("head, script, style, noscript, title, aside, nav, header, footer").Remove()
		doc.Find("iframe, embed, object, video, audio, canvas, form").Remove()
		doc.Find("[class*='share'], [class*='social'], [class*='cookie'], [class*='banner']").Remove()
		doc.Find("[class*='citation-download'], [class*='metrics'], [id*='related-content']").Remove()

		if cleaned, err := doc.Html(); err == nil && cleaned != "" {
			trimmed = cleaned
		}
	}

	if article, err := readability.FromReader(strings.NewReader(trimmed), nil); err == nil {
		var textBuf strings.Builder
		if err := article.RenderText(&textBuf); err == nil {
			text := strings.TrimSpace(textBuf.String())
			if len(text) >= minReadableLength {
				var htmlBuf strings.Builder
				if err := article.RenderHTML(&htmlBuf); err == nil {
					if paragraphs := extractParagraphs(htmlBuf.String()); paragraphs != "" {
						return paragraphs
					}
				}
				return normalizeWhitespace(text)
			}
		}
	}

	return extractParagraphs(trimmed)
}

// extractParagraphs pulls text from block elements in document order
// within each kind, separated by blank lines. Used both on readability
// output (to keep paragraph boundaries) and as the fallback when
// readability finds nothing usable.
func extractParagraphs(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return stripTags(html)
	}

	var paragraphs []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, pre, li, blockquote").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		return stripTags(html)
	}
	return strings.Join(paragraphs, "\n\n")
}

// stripTags removes every tag, keeping only text content
func stripTags(raw string) string {
	p := bluemonday.StrictPolicy()
	return normalizeWhitespace(p.Sanitize(raw))
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
