// internal/summary/types.go
package summary

import (
	"errors"
	"time"
)

var (
	// ErrNotConfigured means the selected provider has no API key. It is
	// deliberately distinct from transient API failures so callers can
	// say "setup required" instead of "try again".
	ErrNotConfigured = errors.New("summary provider is not configured")
	// ErrUnknownProvider is returned for provider ids nothing registered.
	ErrUnknownProvider = errors.New("unknown summary provider")
	// ErrNoPapers is returned for aggregate summaries over an empty set.
	ErrNoPapers = errors.New("no papers to summarize")
	// ErrEmptyResponse means the API answered but produced no text.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// Default provider when neither the caller nor the engine configuration
// names one.
const DefaultProvider = "openai"

// defaultMaxTokens bounds the generated completion length.
const defaultMaxTokens = 2048

// Options selects the provider and model for one summary request.
// Empty fields fall back to the engine configuration.
type Options struct {
	Provider string
	Model    string
	UserID   int64 // whose API key to use; 0 is the system account
}

// PromptInput carries everything a provider embeds into its prompt.
type PromptInput struct {
	Title       string
	Authors     []string
	JournalName string
	Text        string // full text when available, else the abstract
}

// AggregateInput describes a digest request across several papers.
type AggregateInput struct {
	Perspective string // e.g. `papers tagged "nlp"` or a date window
	Papers      []PaperDigest
}

// PaperDigest is the bounded per-paper slice embedded in an aggregate
// prompt.
type PaperDigest struct {
	Title   string
	Authors []string
	Excerpt string
}

// CallOptions parameterizes a single provider API call.
type CallOptions struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// RawResponse is what a provider hands back before parsing: generated
// text plus the usage metadata the API reported. TokensUsed is zero
// when the provider reported none.
type RawResponse struct {
	Text       string
	Model      string
	TokensUsed int64
}

// Endpoint configures how to reach one provider's API.
type Endpoint struct {
	BaseURL string
	Model   string // default model for this provider
}

// Config assembles an Engine.
type Config struct {
	DefaultProvider string        // empty means DefaultProvider
	Timeout         time.Duration // per API call, default 2 minutes
	OpenAI          Endpoint
	Anthropic       Endpoint
}
