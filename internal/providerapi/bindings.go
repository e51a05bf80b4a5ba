package providerapi

import (
	"context"
	"fmt"

	"github.com/modelbridge/gateway/internal/modelregistry"
)

// Build constructs one Provider client per configured binding (spec §9:
// "the per-provider client is injected once at registry build time").
// OpenAI's client additionally implements DeferredProvider; callers that
// need the deferred half should type-assert.
func Build(ctx context.Context, bindings map[modelregistry.Provider]modelregistry.Binding) (map[modelregistry.Provider]Provider, error) {
	out := make(map[modelregistry.Provider]Provider, len(bindings))
	for provider, binding := range bindings {
		switch provider {
		case modelregistry.ProviderOpenAI:
			out[provider] = newOpenAIResponsesProvider(binding.APIKey)
		case modelregistry.ProviderAnthropic:
			out[provider] = newAnthropicProvider(binding.APIKey)
		case modelregistry.ProviderXAI:
			out[provider] = newXAIProvider(binding.APIKey)
		case modelregistry.ProviderGoogle:
			g, err := newGoogleProvider(ctx, binding.APIKey)
			if err != nil {
				return nil, fmt.Errorf("build google provider: %w", err)
			}
			out[provider] = g
		default:
			return nil, fmt.Errorf("providerapi: unknown provider %q", provider)
		}
	}
	return out, nil
}
