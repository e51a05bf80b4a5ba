package providerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/modelbridge/gateway/internal/rpcerr"
)

// openaiProvider wraps sashabaranov/go-openai for non-streaming chat
// completions. Grounded on internal/agent/providers/openai.go's client
// construction (openai.NewClient(apiKey)) and request building, trimmed
// from CreateChatCompletionStream to the non-streaming CreateChatCompletion
// call, and extended with ReasoningEffort/ResponseFormat per spec §4.3.
type openaiProvider struct {
	client       *openai.Client
	defaultModel string
}

// newOpenAIProvider builds a client against api.openai.com. baseURL, when
// non-empty, overrides the endpoint — used to reuse this same provider for
// xAI's OpenAI-compatible API (grounded on the teacher's OpenRouterProvider,
// which does the identical override for a different OpenAI-compatible host).
func newOpenAIProvider(apiKey, baseURL, defaultModel string) *openaiProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openaiProvider{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (p *openaiProvider) GenerateText(ctx context.Context, model, prompt string, opts Options) (Result, error) {
	req := p.baseRequest(model, prompt, opts)
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{}, p.wrapError(err, model)
	}
	return resultFromResponse(resp), nil
}

func (p *openaiProvider) GenerateStructured(ctx context.Context, model, prompt string, schema json.RawMessage, opts Options) (json.RawMessage, error) {
	req := p.baseRequest(model, prompt, opts)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "gateway_structured_response",
			Schema: json.RawMessage(schema),
			Strict: true,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.wrapError(err, model)
	}
	if len(resp.Choices) == 0 {
		return nil, rpcerr.New(rpcerr.KindProviderError, "openai: empty choices in structured response")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

func (p *openaiProvider) baseRequest(model, prompt string, opts Options) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    p.modelOrDefault(model),
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	}
	if opts.ReasoningEffort != "" {
		req.ReasoningEffort = string(opts.ReasoningEffort)
	}
	if opts.Verbosity != "" && strings.HasPrefix(req.Model, "gpt-5") {
		// go-openai has no typed Verbosity field as of this SDK version;
		// the gateway only needs to thread it through when requested.
		req.Metadata = map[string]string{"verbosity": string(opts.Verbosity)}
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.MaxTokens != nil {
		req.MaxCompletionTokens = *opts.MaxTokens
	}
	return req
}

func (p *openaiProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func resultFromResponse(resp openai.ChatCompletionResponse) Result {
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return Result{
		Text: text,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}

func (p *openaiProvider) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped := rpcerr.FromHTTPStatus(apiErr.HTTPStatusCode, fmt.Sprintf("openai[%s]: %s", model, apiErr.Message), 0)
		wrapped.Cause = err
		if apiErr.HTTPStatusCode == 400 && looksLikeFormatError(apiErr.Message) {
			wrapped.Kind = rpcerr.KindProviderError
			wrapped.Data = map[string]any{"unsupportedFormat": true}
		}
		return wrapped
	}
	return rpcerr.FromError(err)
}

func looksLikeFormatError(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "response_format") || strings.Contains(lower, "json_schema") || strings.Contains(lower, "unsupported")
}
