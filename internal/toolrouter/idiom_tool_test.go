package toolrouter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelbridge/gateway/internal/capability"
	"github.com/modelbridge/gateway/internal/concurrency"
	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/providerapi"
	"github.com/modelbridge/gateway/internal/rpcerr"
	"github.com/modelbridge/gateway/internal/syncengine"
)

func newTestIdiomEngine(t *testing.T, provider providerapi.Provider) *syncengine.Engine {
	t.Helper()
	registry := modelregistry.New(map[modelregistry.Provider]modelregistry.Binding{
		modelregistry.ProviderAnthropic: {Provider: modelregistry.ProviderAnthropic, APIKey: "test-key"},
	})
	providers := map[modelregistry.Provider]providerapi.Provider{modelregistry.ProviderAnthropic: provider}
	limiter := concurrency.New(concurrency.DefaultConfig())
	return syncengine.New(registry, providers, limiter, capability.New())
}

func TestIdiomToolReturnsStructuredResponse(t *testing.T) {
	payload := `{
		"approach": "use a buffered channel as a semaphore",
		"packages_to_use": ["golang.org/x/sync/semaphore"],
		"anti_patterns": ["unbounded goroutine spawning"],
		"example_code": "sem := semaphore.NewWeighted(4)",
		"rationale": "bounds concurrent work without a custom counter"
	}`
	provider := &fakeProvider{textResp: providerapi.Result{Text: payload}}
	tool := NewIdiomTool(newTestIdiomEngine(t, provider))

	params, _ := json.Marshal(map[string]any{"model": "anthropic:claude-opus-4", "question": "how do I bound concurrency?"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success: %s", result.Content)
	}

	var decoded IdiomResponse
	if err := json.Unmarshal([]byte(result.Content), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.Approach == "" || len(decoded.PackagesToUse) == 0 {
		t.Fatalf("expected populated idiom response, got %+v", decoded)
	}
}

func TestIdiomToolFallsBackOnOffSchemaReply(t *testing.T) {
	provider := &fakeProvider{textResp: providerapi.Result{Text: "just use whatever works"}}
	tool := NewIdiomTool(newTestIdiomEngine(t, provider))

	params, _ := json.Marshal(map[string]any{"model": "anthropic:claude-opus-4", "question": "how do I bound concurrency?"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected a degraded but successful result: %s", result.Content)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(result.Content), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded["schemaValid"] != false {
		t.Fatalf("expected schemaValid:false for an off-schema reply, got %+v", decoded)
	}
}

func TestIdiomToolRejectsMissingQuestion(t *testing.T) {
	tool := NewIdiomTool(newTestIdiomEngine(t, &fakeProvider{}))
	params, _ := json.Marshal(map[string]any{"model": "anthropic:claude-opus-4"})
	result, err := tool.Execute(context.Background(), params)
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}
	rerr, ok := rpcerr.As(err)
	if !ok {
		t.Fatalf("expected a taxonomy error, got %v", err)
	}
	if rerr.Code() != -32602 {
		t.Fatalf("code = %d, want -32602", rerr.Code())
	}
}
