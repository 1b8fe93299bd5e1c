// internal/summary/provider.go
package summary

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider is one LLM backend. Implementations build their own prompt
// and speak their own wire protocol; response parsing is shared because
// every provider is asked for the same JSON shape.
type Provider interface {
	Name() string
	BuildPrompt(in PromptInput) string
	BuildAggregatePrompt(in AggregateInput) string
	Call(ctx context.Context, prompt string, opts CallOptions) (*RawResponse, error)
}

// Registry maps provider ids to implementations. Adding a provider is
// one Register call; nothing in the per-paper path switches on names.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get resolves a provider id, or ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered provider ids, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
