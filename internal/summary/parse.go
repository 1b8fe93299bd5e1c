// internal/summary/parse.go
package summary

import (
	"encoding/json"
	"strings"
)

// Structured is the parsed five-field summary shape. Parsed reports
// whether the provider's JSON was usable; when it is false the whole
// raw response sits in SummaryText and the other fields are empty.
type Structured struct {
	SummaryText  string
	Purpose      string
	Methodology  string
	Findings     string
	Implications string
	Parsed       bool
}

// structuredWire matches the JSON field names the prompt asks for.
type structuredWire struct {
	SummaryText  string `json:"summary_text"`
	Purpose      string `json:"purpose"`
	Methodology  string `json:"methodology"`
	Findings     string `json:"findings"`
	Implications string `json:"implications"`
}

// ParseStructured extracts the five named fields from an LLM response.
// A markdown code fence around the JSON is stripped first. A response
// that is not valid JSON, or valid JSON carrying none of the expected
// fields, degrades to the raw text as SummaryText; this never fails.
func ParseStructured(raw string) Structured {
	candidate := stripCodeFence(raw)

	var wire structuredWire
	if err := json.Unmarshal([]byte(candidate), &wire); err == nil {
		s := Structured{
			SummaryText:  strings.TrimSpace(wire.SummaryText),
			Purpose:      strings.TrimSpace(wire.Purpose),
			Methodology:  strings.TrimSpace(wire.Methodology),
			Findings:     strings.TrimSpace(wire.Findings),
			Implications: strings.TrimSpace(wire.Implications),
			Parsed:       true,
		}
		if s.SummaryText != "" || s.Purpose != "" || s.Methodology != "" ||
			s.Findings != "" || s.Implications != "" {
			return s
		}
		// Parsed but carried nothing recognizable; fall through.
	}

	return Structured{SummaryText: strings.TrimSpace(raw)}
}

// stripCodeFence unwraps a ```json ... ``` (or bare ```) block. Text
// without a leading fence passes through untouched apart from outer
// whitespace.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}

	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", or empty).
		head := strings.TrimSpace(t[:nl])
		if head == "" || isFenceInfo(head) {
			t = t[nl+1:]
		}
	}

	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func isFenceInfo(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
