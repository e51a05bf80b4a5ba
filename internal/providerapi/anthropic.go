package providerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/modelbridge/gateway/internal/rpcerr"
)

// anthropicProvider is a single-shot, non-streaming wrapper over the
// Anthropic SDK. Grounded on internal/agent/providers/anthropic.go's client
// construction and message/error conversion, trimmed from streaming SSE
// processing (the "Complete" method and its chunk channel) to a plain
// request/response call since the sync engine never streams.
type anthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

func newAnthropicProvider(apiKey string) *anthropicProvider {
	return &anthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: "claude-sonnet-4-20250514",
	}
}

const defaultMaxTokens = 4096

func (p *anthropicProvider) GenerateText(ctx context.Context, model, prompt string, opts Options) (Result, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelOrDefault(model)),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens: int64(maxTokensOrDefault(opts.MaxTokens)),
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, p.wrapError(err, model)
	}
	return Result{Text: extractText(msg), Usage: extractUsage(msg)}, nil
}

// structuredToolName is the synthetic tool name forced via tool_choice to
// coerce a schema-constrained response, since Anthropic has no native
// response_format parameter the way OpenAI does.
const structuredToolName = "respond"

func (p *anthropicProvider) GenerateStructured(ctx context.Context, model, prompt string, schema json.RawMessage, opts Options) (json.RawMessage, error) {
	var inputSchema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(schema, &inputSchema); err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindInternalError, err, "invalid structured-output schema")
	}

	toolParam := anthropic.ToolUnionParamOfTool(inputSchema, structuredToolName)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelOrDefault(model)),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens: int64(maxTokensOrDefault(opts.MaxTokens)),
		Tools:     []anthropic.ToolUnionParam{toolParam},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: structuredToolName},
		},
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	for _, block := range msg.Content {
		if toolUse := block.AsToolUse(); toolUse.Name == structuredToolName {
			raw, err := json.Marshal(toolUse.Input)
			if err != nil {
				return nil, rpcerr.Wrap(rpcerr.KindProviderError, err, "anthropic: could not re-marshal tool input")
			}
			return raw, nil
		}
	}
	return nil, rpcerr.New(rpcerr.KindProviderError, "anthropic: structured response did not include the forced tool call")
}

func (p *anthropicProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func maxTokensOrDefault(maxTokens *int) int {
	if maxTokens == nil || *maxTokens <= 0 {
		return defaultMaxTokens
	}
	return *maxTokens
}

func extractText(msg *anthropic.Message) string {
	var text string
	for _, block := range msg.Content {
		if tb := block.AsText(); tb.Text != "" {
			text += tb.Text
		}
	}
	return text
}

func extractUsage(msg *anthropic.Message) Usage {
	return Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
}

// anthropicErrorPayload mirrors the teacher's error envelope (internal/agent/
// providers/anthropic.go's wrapError) for surfacing the upstream message/code.
type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *anthropicProvider) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return rpcerr.FromError(err)
	}

	message := apiErr.Error()
	if raw := apiErr.RawJSON(); raw != "" {
		var payload anthropicErrorPayload
		if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
			message = payload.Error.Message
		}
	}
	wrapped := rpcerr.FromHTTPStatus(apiErr.StatusCode, fmt.Sprintf("anthropic[%s]: %s", model, message), 0)
	wrapped.Cause = err
	return wrapped
}
