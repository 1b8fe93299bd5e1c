package summary

import (
	"fmt"
	"strings"
	"testing"
)

func TestPaperPromptDeterministic(t *testing.T) {
	in := PromptInput{
		Title:       "Graph Signals in the Wild",
		Authors:     []string{"A. One", "B. Two"},
		JournalName: "Journal of Examples",
		Text:        "We measured graph signals.",
	}

	first := paperPrompt(in)
	second := paperPrompt(in)
	if first != second {
		t.Error("paperPrompt is not deterministic for identical input")
	}

	for _, want := range []string{
		"Graph Signals in the Wild",
		"A. One, B. Two",
		"Journal of Examples",
		"We measured graph signals.",
		`"summary_text"`,
		`"purpose"`,
		`"methodology"`,
		`"findings"`,
		`"implications"`,
	} {
		if !strings.Contains(first, want) {
			t.Errorf("prompt missing %q:\n%s", want, first)
		}
	}
}

func TestPaperPromptWithoutText(t *testing.T) {
	prompt := paperPrompt(PromptInput{Title: "Untitled Mechanisms"})
	if !strings.Contains(prompt, "No abstract or full text is available") {
		t.Errorf("prompt should flag missing text:\n%s", prompt)
	}
}

func TestPaperPromptClipsLongText(t *testing.T) {
	long := strings.Repeat("x", maxPaperPromptChars+100)
	prompt := paperPrompt(PromptInput{Title: "T", Text: long})

	if !strings.Contains(prompt, "[truncated]") {
		t.Error("oversized text should be marked truncated")
	}
	if len(prompt) > maxPaperPromptChars+1000 {
		t.Errorf("prompt length %d not bounded", len(prompt))
	}
}

func TestAggregatePromptBoundsPaperCount(t *testing.T) {
	var papers []PaperDigest
	for i := 1; i <= maxAggregatePapers+5; i++ {
		papers = append(papers, PaperDigest{Title: fmt.Sprintf("Paper %d", i)})
	}

	prompt := aggregatePrompt(AggregateInput{Perspective: "a pile of papers", Papers: papers})

	if !strings.Contains(prompt, fmt.Sprintf("%d. Paper %d", maxAggregatePapers, maxAggregatePapers)) {
		t.Error("last in-bound paper missing from prompt")
	}
	if strings.Contains(prompt, fmt.Sprintf("Paper %d", maxAggregatePapers+1)) {
		t.Error("papers beyond the bound leaked into the prompt")
	}
	if !strings.Contains(prompt, "a pile of papers") {
		t.Error("perspective missing from prompt")
	}
}

func TestAggregatePromptClipsExcerpts(t *testing.T) {
	prompt := aggregatePrompt(AggregateInput{
		Papers: []PaperDigest{{
			Title:   "Long One",
			Excerpt: strings.Repeat("y", maxExcerptChars*2),
		}},
	})
	if !strings.Contains(prompt, "[truncated]") {
		t.Error("oversized excerpt should be marked truncated")
	}
}
