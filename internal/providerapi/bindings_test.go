package providerapi

import (
	"context"
	"testing"

	"github.com/modelbridge/gateway/internal/modelregistry"
)

func TestBuildDispatchesKnownProviders(t *testing.T) {
	bindings := map[modelregistry.Provider]modelregistry.Binding{
		modelregistry.ProviderOpenAI:    {Provider: modelregistry.ProviderOpenAI, APIKey: "k"},
		modelregistry.ProviderAnthropic: {Provider: modelregistry.ProviderAnthropic, APIKey: "k"},
		modelregistry.ProviderXAI:       {Provider: modelregistry.ProviderXAI, APIKey: "k"},
	}

	providers, err := Build(context.Background(), bindings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) != len(bindings) {
		t.Fatalf("got %d providers, want %d", len(providers), len(bindings))
	}

	if _, ok := providers[modelregistry.ProviderOpenAI].(DeferredProvider); !ok {
		t.Fatal("expected openai provider to implement DeferredProvider")
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	bindings := map[modelregistry.Provider]modelregistry.Binding{
		modelregistry.Provider("unknown"): {Provider: modelregistry.Provider("unknown"), APIKey: "k"},
	}
	if _, err := Build(context.Background(), bindings); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
