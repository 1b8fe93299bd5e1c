// internal/summary/openai.go
package summary

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider speaks the OpenAI chat completions API through the
// official client. Retries are disabled; the caller decides whether a
// failed summary is worth re-requesting.
type OpenAIProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIProvider(baseURL string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OpenAIProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) BuildPrompt(in PromptInput) string { return paperPrompt(in) }

func (p *OpenAIProvider) BuildAggregatePrompt(in AggregateInput) string {
	return aggregatePrompt(in)
}

func (p *OpenAIProvider) Call(ctx context.Context, prompt string, opts CallOptions) (*RawResponse, error) {
	client := openai.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     opts.Model,
		MaxTokens: openai.Int(maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	return &RawResponse{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
