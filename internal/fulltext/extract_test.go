package fulltext

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractHTMLTextPlainTextPassthrough(t *testing.T) {
	got := ExtractHTMLText("  just   plain\n\ttext  ")
	if got != "just plain text" {
		t.Errorf("ExtractHTMLText() = %q, want whitespace normalized", got)
	}
}

func TestExtractHTMLTextEmpty(t *testing.T) {
	if got := ExtractHTMLText("   "); got != "" {
		t.Errorf("ExtractHTMLText(blank) = %q, want empty", got)
	}
}

func TestExtractHTMLTextKeepsParagraphOrder(t *testing.T) {
	html := `<html><body>
<h1>Title First</h1>
<p>Paragraph one comes before.</p>
<p>Paragraph two comes after.</p>
</body></html>`

	got := ExtractHTMLText(html)
	first := strings.Index(got, "Paragraph one")
	second := strings.Index(got, "Paragraph two")
	if first < 0 || second < 0 || first > second {
		t.Errorf("paragraph order lost: %q", got)
	}
}

func TestExtractHTMLTextDropsScriptsAndChrome(t *testing.T) {
	html := `<html><head><script>var tracking = true;</script></head><body>
<nav>Menu Home About</nav>
<p>` + strings.Repeat("Actual article content sentence. ", 15) + `</p>
<footer>All rights reserved</footer>
</body></html>`

	got := ExtractHTMLText(html)
	if !strings.Contains(got, "Actual article content") {
		t.Errorf("body text lost: %.120q", got)
	}
	if strings.Contains(got, "var tracking") {
		t.Error("script body leaked into extracted text")
	}
}

func TestExtractPDFTextRejectsGarbage(t *testing.T) {
	_, err := ExtractPDFText([]byte("%PDF-1.7 not actually a pdf"))
	if err == nil {
		t.Error("ExtractPDFText() accepted a corrupt document")
	}
}

func TestExtractPDFTextRejectsEmptyInput(t *testing.T) {
	_, err := ExtractPDFText(nil)
	if err == nil {
		t.Error("ExtractPDFText() accepted empty input")
	}
	if errors.Is(err, ErrEmptyExtraction) {
		t.Error("empty input should fail to open, not report empty extraction")
	}
}
