package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"veritheo-bot/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

var errNoProvider = errors.New("ai: no provider configured")

// prefixRoutes assigns well-known model families to their provider when the
// explicit table has no entry.
var prefixRoutes = []struct{ prefix, provider string }{
	{"gemini", providerGemini},
	{"gemma", providerGemini},
	{"gpt", providerOpenAI},
	{"chatgpt", providerOpenAI},
	{"o1", providerOpenAI},
	{"o3", providerOpenAI},
	{"o4", providerOpenAI},
}

// MultiAIAdapter routes each call to a provider chosen by model name:
// explicit table first, then the model family, then the default provider.
// When the chosen provider is not configured the default serves the call,
// then any other provider in name order.
type MultiAIAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.AIServiceAdapter
	order           []string
	modelToProvider map[string]string
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	providers := make(map[string]adapter.AIServiceAdapter, len(byProvider))
	order := make([]string, 0, len(byProvider))
	for name, a := range byProvider {
		if a == nil {
			continue
		}
		name = strings.ToLower(name)
		providers[name] = a
		order = append(order, name)
	}
	sort.Strings(order)

	models := make(map[string]string, len(modelToProvider))
	for model, p := range modelToProvider {
		models[strings.ToLower(model)] = strings.ToLower(p)
	}
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      providers,
		order:           order,
		modelToProvider: models,
	}
}

// Provider names the provider a model resolves to, configured or not.
func (m *MultiAIAdapter) Provider(model string) string {
	l := strings.ToLower(strings.TrimSpace(model))
	if p := m.modelToProvider[l]; p != "" {
		return p
	}
	for _, r := range prefixRoutes {
		if strings.HasPrefix(l, r.prefix) {
			return r.provider
		}
	}
	return m.defaultProvider
}

func (m *MultiAIAdapter) pick(model string) (adapter.AIServiceAdapter, error) {
	if a, ok := m.byProvider[m.Provider(model)]; ok {
		return a, nil
	}
	if a, ok := m.byProvider[m.defaultProvider]; ok {
		return a, nil
	}
	if len(m.order) > 0 {
		return m.byProvider[m.order[0]], nil
	}
	return nil, fmt.Errorf("%w for model %q", errNoProvider, model)
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a, err := m.pick(model)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	a, err := m.pick(req.Model)
	if err != nil {
		return adapter.Completion{}, err
	}
	return a.Complete(ctx, req)
}
