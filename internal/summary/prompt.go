// internal/summary/prompt.go
package summary

import (
	"fmt"
	"strings"
)

// Aggregate prompts embed at most this many papers and this many
// characters of each paper's text, keeping the request bounded no
// matter how large the tag or period is.
const (
	maxAggregatePapers  = 50
	maxExcerptChars     = 500
	maxPaperPromptChars = 60_000
)

// jsonInstruction names the five structured fields every provider is
// asked for. The shape is shared so parsing can be too.
const jsonInstruction = `Respond with a single JSON object containing exactly these string fields:
  "summary_text": a concise overall summary (3-5 sentences)
  "purpose": what the work set out to do
  "methodology": how the work was carried out
  "findings": the key results
  "implications": why the results matter
Respond with JSON only, no surrounding prose.`

// paperPrompt renders the fixed single-paper template. Construction is
// deterministic: the same input always produces the same prompt.
func paperPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are an expert research assistant. Summarize the following academic paper.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	if len(in.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(in.Authors, ", "))
	}
	if in.JournalName != "" {
		fmt.Fprintf(&b, "Journal: %s\n", in.JournalName)
	}
	b.WriteString("\n")

	text := strings.TrimSpace(in.Text)
	if text == "" {
		b.WriteString("No abstract or full text is available; summarize from the title alone and say so in the summary.\n")
	} else {
		b.WriteString(clipText(text, maxPaperPromptChars))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(jsonInstruction)
	return b.String()
}

// aggregatePrompt renders the digest template for tag and trend
// summaries: a perspective line followed by a bounded numbered list.
func aggregatePrompt(in AggregateInput) string {
	var b strings.Builder
	b.WriteString("You are an expert research analyst. Synthesize the papers below into a single digest")
	if in.Perspective != "" {
		fmt.Fprintf(&b, " covering %s", in.Perspective)
	}
	b.WriteString(".\n\nPapers:\n")

	papers := in.Papers
	if len(papers) > maxAggregatePapers {
		papers = papers[:maxAggregatePapers]
	}
	for i, p := range papers {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Title)
		if len(p.Authors) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(p.Authors, ", "))
		}
		b.WriteString("\n")
		if excerpt := strings.TrimSpace(p.Excerpt); excerpt != "" {
			fmt.Fprintf(&b, "   %s\n", clipText(excerpt, maxExcerptChars))
		}
	}

	b.WriteString("\nIdentify common themes, methods and open directions across the set.\n\n")
	b.WriteString(jsonInstruction)
	return b.String()
}

func clipText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + " [truncated]"
}
