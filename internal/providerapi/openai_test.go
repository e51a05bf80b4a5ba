package providerapi

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/rpcerr"
)

func TestBaseRequestThreadsReasoningEffort(t *testing.T) {
	p := newOpenAIProvider("key", "", "o3")
	req := p.baseRequest("o3", "hello", Options{ReasoningEffort: modelregistry.ReasoningHigh})
	if req.ReasoningEffort != "high" {
		t.Fatalf("expected reasoning effort high, got %q", req.ReasoningEffort)
	}
}

func TestBaseRequestThreadsVerbosityOnlyForGPT5(t *testing.T) {
	p := newOpenAIProvider("key", "", "gpt-5")
	req := p.baseRequest("gpt-5", "hello", Options{Verbosity: modelregistry.VerbosityLow})
	if req.Metadata["verbosity"] != "low" {
		t.Fatalf("expected verbosity metadata on gpt-5, got %+v", req.Metadata)
	}

	p2 := newOpenAIProvider("key", "", "gpt-4o")
	req2 := p2.baseRequest("gpt-4o", "hello", Options{Verbosity: modelregistry.VerbosityLow})
	if req2.Metadata != nil {
		t.Fatalf("expected no verbosity metadata for non-gpt-5 model, got %+v", req2.Metadata)
	}
}

func TestBaseRequestThreadsMaxTokens(t *testing.T) {
	p := newOpenAIProvider("key", "", "gpt-4o")
	max := 256
	req := p.baseRequest("gpt-4o", "hi", Options{MaxTokens: &max})
	if req.MaxCompletionTokens != 256 {
		t.Fatalf("expected max completion tokens 256, got %d", req.MaxCompletionTokens)
	}
}

func TestWrapErrorMapsRateLimit(t *testing.T) {
	p := newOpenAIProvider("key", "", "gpt-4o")
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}
	wrapped := p.wrapError(apiErr, "gpt-4o")

	var rerr *rpcerr.Error
	if !errors.As(wrapped, &rerr) {
		t.Fatalf("expected *rpcerr.Error, got %T", wrapped)
	}
	if rerr.Kind != rpcerr.KindRateLimit {
		t.Fatalf("expected rate-limit kind, got %s", rerr.Kind)
	}
}

func TestWrapErrorMapsAuth(t *testing.T) {
	p := newOpenAIProvider("key", "", "gpt-4o")
	apiErr := &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"}
	wrapped := p.wrapError(apiErr, "gpt-4o")

	rerr, ok := rpcerr.As(wrapped)
	if !ok || rerr.Kind != rpcerr.KindAuthError {
		t.Fatalf("expected auth-error kind, got %+v ok=%v", rerr, ok)
	}
}

func TestLooksLikeFormatError(t *testing.T) {
	cases := map[string]bool{
		"response_format is not supported for this model": true,
		"unsupported value: 'json_schema'":                true,
		"invalid temperature":                             false,
	}
	for msg, want := range cases {
		if got := looksLikeFormatError(msg); got != want {
			t.Errorf("looksLikeFormatError(%q) = %v, want %v", msg, got, want)
		}
	}
}
