package providerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/modelbridge/gateway/internal/rpcerr"
)

// googleProvider wraps google.golang.org/genai for non-streaming Gemini
// calls. Grounded on internal/agent/providers/google.go's client
// construction (genai.NewClient against genai.BackendGeminiAPI) and
// buildConfig shape, trimmed from GenerateContentStream's Go-1.23 iterator
// consumption to the plain client.Models.GenerateContent call.
type googleProvider struct {
	client       *genai.Client
	defaultModel string
}

func newGoogleProvider(ctx context.Context, apiKey string) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &googleProvider{client: client, defaultModel: "gemini-2.0-flash"}, nil
}

func (p *googleProvider) GenerateText(ctx context.Context, model, prompt string, opts Options) (Result, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.modelOrDefault(model), contentsFromPrompt(prompt), p.config(opts, nil))
	if err != nil {
		return Result{}, p.wrapError(err, model)
	}
	return Result{Text: resp.Text()}, nil
}

func (p *googleProvider) GenerateStructured(ctx context.Context, model, prompt string, schema json.RawMessage, opts Options) (json.RawMessage, error) {
	// Best-effort mapping from JSON Schema onto genai.Schema (a restricted
	// OpenAPI-subset shape); on mismatch we still constrain the response MIME
	// type to JSON and rely on the prompt/schema text for shape guidance.
	var genaiSchema *genai.Schema
	_ = json.Unmarshal(schema, &genaiSchema)

	resp, err := p.client.Models.GenerateContent(ctx, p.modelOrDefault(model), contentsFromPrompt(prompt), p.config(opts, genaiSchema))
	if err != nil {
		return nil, p.wrapError(err, model)
	}
	return json.RawMessage(resp.Text()), nil
}

func (p *googleProvider) config(opts Options, schema *genai.Schema) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schema
	}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		cfg.Temperature = &t
	}
	if opts.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*opts.MaxTokens)
	}
	return cfg
}

func contentsFromPrompt(prompt string) []*genai.Content {
	return []*genai.Content{{Parts: []*genai.Part{{Text: prompt}}, Role: "user"}}
}

func (p *googleProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *googleProvider) wrapError(err error, model string) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		wrapped := rpcerr.FromHTTPStatus(apiErr.Code, fmt.Sprintf("google[%s]: %s", model, apiErr.Message), 0)
		wrapped.Cause = err
		return wrapped
	}
	return rpcerr.FromError(err)
}
