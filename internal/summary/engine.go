// internal/summary/engine.go
package summary

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"paperstream/internal/database"
)

// KeySource supplies provider API keys. Any failure to produce a key
// is treated as "not configured" by the engine; the mechanics of key
// storage and encryption live behind this interface.
type KeySource interface {
	Key(userID int64, provider string) (string, error)
}

// Engine turns papers into persisted structured summaries. It holds no
// mutable state beyond configuration, so independent calls may run
// concurrently.
type Engine struct {
	db       *database.DB
	logger   *log.Logger
	keys     KeySource
	registry *Registry
	fallback string // configured default provider
	models   map[string]string
	timeout  time.Duration
}

func NewEngine(db *database.DB, logger *log.Logger, keys KeySource, cfg Config) *Engine {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = DefaultProvider
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	registry := NewRegistry()
	registry.Register(NewOpenAIProvider(cfg.OpenAI.BaseURL, cfg.Timeout))
	registry.Register(NewAnthropicProvider(cfg.Anthropic.BaseURL, cfg.Timeout))

	return &Engine{
		db:       db,
		logger:   logger,
		keys:     keys,
		registry: registry,
		fallback: cfg.DefaultProvider,
		models: map[string]string{
			"openai":    cfg.OpenAI.Model,
			"anthropic": cfg.Anthropic.Model,
		},
		timeout: cfg.Timeout,
	}
}

// Registry exposes the provider registry so additional providers can
// be registered beside the built-in two.
func (e *Engine) Registry() *Registry { return e.registry }

// SummarizePaper generates and persists a structured summary of one
// paper. Summaries are append-only: calling this again adds a row.
func (e *Engine) SummarizePaper(ctx context.Context, paper database.Paper, journalName string, opts Options) (*database.Summary, error) {
	prov, model, err := e.resolve(opts)
	if err != nil {
		return nil, err
	}

	prompt := prov.BuildPrompt(PromptInput{
		Title:       paper.Title,
		Authors:     paper.AuthorList(),
		JournalName: journalName,
		Text:        textForSummary(paper),
	})

	raw, parsed, elapsed, err := e.generate(ctx, prov, prompt, model, opts.UserID)
	if err != nil {
		return nil, err
	}

	row := database.Summary{
		PaperID:          paper.ID,
		Provider:         prov.Name(),
		Model:            model,
		SummaryText:      parsed.SummaryText,
		Purpose:          optional(parsed.Purpose),
		Methodology:      optional(parsed.Methodology),
		Findings:         optional(parsed.Findings),
		Implications:     optional(parsed.Implications),
		TokensUsed:       optionalInt(raw.TokensUsed),
		GenerationTimeMs: elapsed,
	}

	id, err := e.db.InsertSummary(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("error saving summary: %w", err)
	}
	row.ID = id

	e.logger.Printf("Summarized paper %d with %s/%s (%d tokens, %d ms, parsed=%v)",
		paper.ID, prov.Name(), model, raw.TokensUsed, elapsed, parsed.Parsed)
	return &row, nil
}

// SummarizeTag generates and persists a digest across the papers
// carrying one tag.
func (e *Engine) SummarizeTag(ctx context.Context, tag database.Tag, papers []database.Paper, opts Options) (*database.TagSummary, error) {
	if len(papers) == 0 {
		return nil, ErrNoPapers
	}

	prov, model, err := e.resolve(opts)
	if err != nil {
		return nil, err
	}

	prompt := prov.BuildAggregatePrompt(AggregateInput{
		Perspective: fmt.Sprintf("recent papers tagged %q", tag.Name),
		Papers:      digests(papers),
	})

	raw, parsed, elapsed, err := e.generate(ctx, prov, prompt, model, opts.UserID)
	if err != nil {
		return nil, err
	}

	row := database.TagSummary{
		TagID:            tag.ID,
		Provider:         prov.Name(),
		Model:            model,
		SummaryText:      parsed.SummaryText,
		Purpose:          optional(parsed.Purpose),
		Methodology:      optional(parsed.Methodology),
		Findings:         optional(parsed.Findings),
		Implications:     optional(parsed.Implications),
		PaperCount:       len(papers),
		TokensUsed:       optionalInt(raw.TokensUsed),
		GenerationTimeMs: elapsed,
	}

	id, err := e.db.InsertTagSummary(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("error saving tag summary: %w", err)
	}
	row.ID = id

	e.logger.Printf("Summarized tag %q over %d papers with %s/%s (%d ms)",
		tag.Name, len(papers), prov.Name(), model, elapsed)
	return &row, nil
}

// SummarizeTrend generates and persists a digest over a publication
// date window, optionally restricted to one tag.
func (e *Engine) SummarizeTrend(ctx context.Context, periodStart, periodEnd string, tagID *int64, papers []database.Paper, opts Options) (*database.TrendSummary, error) {
	if len(papers) == 0 {
		return nil, ErrNoPapers
	}

	prov, model, err := e.resolve(opts)
	if err != nil {
		return nil, err
	}

	prompt := prov.BuildAggregatePrompt(AggregateInput{
		Perspective: fmt.Sprintf("papers published between %s and %s", periodStart, periodEnd),
		Papers:      digests(papers),
	})

	raw, parsed, elapsed, err := e.generate(ctx, prov, prompt, model, opts.UserID)
	if err != nil {
		return nil, err
	}

	row := database.TrendSummary{
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		Provider:         prov.Name(),
		Model:            model,
		SummaryText:      parsed.SummaryText,
		Purpose:          optional(parsed.Purpose),
		Methodology:      optional(parsed.Methodology),
		Findings:         optional(parsed.Findings),
		Implications:     optional(parsed.Implications),
		PaperCount:       len(papers),
		TokensUsed:       optionalInt(raw.TokensUsed),
		GenerationTimeMs: elapsed,
	}
	if tagID != nil {
		row.TagID = sql.NullInt64{Int64: *tagID, Valid: true}
	}

	id, err := e.db.InsertTrendSummary(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("error saving trend summary: %w", err)
	}
	row.ID = id

	e.logger.Printf("Summarized trend %s..%s over %d papers with %s/%s (%d ms)",
		periodStart, periodEnd, len(papers), prov.Name(), model, elapsed)
	return &row, nil
}

// resolve picks the provider (explicit option, engine default, package
// default, in that order) and its model.
func (e *Engine) resolve(opts Options) (Provider, string, error) {
	name := opts.Provider
	if name == "" {
		name = e.fallback
	}

	prov, err := e.registry.Get(name)
	if err != nil {
		return nil, "", err
	}

	model := opts.Model
	if model == "" {
		model = e.models[name]
	}
	if model == "" {
		return nil, "", fmt.Errorf("%w: no model configured for provider %s", ErrNotConfigured, name)
	}

	return prov, model, nil
}

// generate runs one provider call with the key lookup, bounded timeout
// and wall-clock measurement around it. Time and token metrics are
// reported even when parsing degrades to the raw-text fallback.
func (e *Engine) generate(ctx context.Context, prov Provider, prompt, model string, userID int64) (*RawResponse, Structured, int64, error) {
	key, err := e.keys.Key(userID, prov.Name())
	if err != nil {
		return nil, Structured{}, 0, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if key == "" {
		return nil, Structured{}, 0, fmt.Errorf("%w: empty API key for provider %s", ErrNotConfigured, prov.Name())
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := prov.Call(callCtx, prompt, CallOptions{APIKey: key, Model: model})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, Structured{}, elapsed, fmt.Errorf("summary generation with %s failed: %w", prov.Name(), err)
	}

	parsed := ParseStructured(raw.Text)
	if !parsed.Parsed {
		e.logger.Printf("Provider %s returned unstructured output, keeping raw text", prov.Name())
	}

	return raw, parsed, elapsed, nil
}

// textForSummary prefers full text over the abstract.
func textForSummary(p database.Paper) string {
	if p.FullText.Valid && p.FullText.String != "" {
		return p.FullText.String
	}
	if p.Abstract.Valid {
		return p.Abstract.String
	}
	return ""
}

// digests renders the bounded per-paper slices for aggregate prompts,
// preferring the abstract over full text for brevity.
func digests(papers []database.Paper) []PaperDigest {
	out := make([]PaperDigest, 0, len(papers))
	for _, p := range papers {
		excerpt := ""
		if p.Abstract.Valid && p.Abstract.String != "" {
			excerpt = p.Abstract.String
		} else if p.FullText.Valid {
			excerpt = p.FullText.String
		}
		out = append(out, PaperDigest{
			Title:   p.Title,
			Authors: p.AuthorList(),
			Excerpt: excerpt,
		})
	}
	return out
}

func optional(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func optionalInt(n int64) sql.NullInt64 {
	if n <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}
