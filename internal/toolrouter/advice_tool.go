package toolrouter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelbridge/gateway/internal/asyncengine"
	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/rpcerr"
	"github.com/modelbridge/gateway/internal/syncengine"
)

// AdviceTool implements the spec §4.6 "advice" tool. It routes to the async
// engine (§4.4) when the resolved model carries a deferred endpoint and the
// caller is driving multi-turn or status-polling semantics (check_status or
// conversation_id), and to the sync engine (§4.3) otherwise.
type AdviceTool struct {
	registry *modelregistry.Registry
	sync     *syncengine.Engine
	async    *asyncengine.Runner
}

// NewAdviceTool builds an AdviceTool over both engines and the registry used
// to decide which one a given call routes to.
func NewAdviceTool(registry *modelregistry.Registry, sync *syncengine.Engine, async *asyncengine.Runner) *AdviceTool {
	return &AdviceTool{registry: registry, sync: sync, async: async}
}

func (t *AdviceTool) Name() string { return "advice" }

func (t *AdviceTool) Description() string {
	return "Ask a model for advice on a coding prompt. Supports multi-turn conversations and background polling for providers with a deferred completion endpoint."
}

func (t *AdviceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "model": {"type": "string"},
    "prompt": {"type": "string"},
    "reasoningEffort": {"type": "string", "enum": ["minimal", "low", "medium", "high"]},
    "verbosity": {"type": "string", "enum": ["low", "medium", "high"]},
    "additionalContext": {"type": "string"},
    "conversationId": {"type": "integer"},
    "requestId": {"type": "integer"},
    "checkStatus": {"type": "boolean", "default": false},
    "waitTimeoutMs": {"type": "integer"},
    "temperature": {"type": "number"},
    "maxTokens": {"type": "integer"}
  },
  "required": ["model"]
}`)
}

type adviceParams struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	ReasoningEffort   string   `json:"reasoningEffort"`
	Verbosity         string   `json:"verbosity"`
	AdditionalContext string   `json:"additionalContext"`
	ConversationID    *int64   `json:"conversationId"`
	RequestID         *int64   `json:"requestId"`
	CheckStatus       bool     `json:"checkStatus"`
	WaitTimeoutMs     int      `json:"waitTimeoutMs"`
	Temperature       *float64 `json:"temperature"`
	MaxTokens         *int     `json:"maxTokens"`
}

// Execute dispatches to the sync or async engine per the routing rule above.
// Taxonomy errors (spec §7) are returned as the function's error, which
// rpc/server.go propagates onto the wire verbatim with their code and data —
// this is the boundary where plain Go errors become classified failures
// (SPEC_FULL.md §A.2); domain results that complete but describe a failed
// upstream turn still surface as a typed error here rather than success text.
func (t *AdviceTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var p adviceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpcerr.New(rpcerr.KindInvalidParams, "invalid params: "+err.Error())
	}
	if p.Model == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidParams, "model cannot be empty")
	}

	descriptor, err := t.registry.Resolve(p.Model)
	if err != nil {
		return nil, modelNotFoundError(err)
	}

	usesAsyncSemantics := p.CheckStatus || p.ConversationID != nil
	if descriptor.Deferred && usesAsyncSemantics {
		return t.executeAsync(ctx, p)
	}
	return t.executeSync(ctx, p)
}

// modelNotFoundError converts a *modelregistry.NotFoundError into the §7
// model-not-found taxonomy error, attaching availableModels/suggestedModels
// to Data (§7 "user-visible behaviour", §8 scenario 3).
func modelNotFoundError(err error) *rpcerr.Error {
	var notFound *modelregistry.NotFoundError
	if errors.As(err, &notFound) {
		return rpcerr.New(rpcerr.KindModelNotFound, err.Error()).WithData(map[string]any{
			"availableModels": notFound.Available,
			"suggestedModels": notFound.Suggested,
		})
	}
	return rpcerr.Wrap(rpcerr.KindModelNotFound, err, err.Error())
}

func (t *AdviceTool) executeAsync(ctx context.Context, p adviceParams) (*ToolResult, error) {
	if p.CheckStatus {
		if p.RequestID == nil {
			return nil, rpcerr.New(rpcerr.KindInvalidParams, "requestId cannot be empty when checkStatus is true")
		}
		waitMs := p.WaitTimeoutMs
		if waitMs <= 0 {
			waitMs = 1000
		}
		result := t.async.CheckOrWait(ctx, *p.RequestID, waitMs)
		return turnResultToTool(result)
	}

	opts := asyncengine.Options{
		Model:           p.Model,
		ReasoningEffort: p.ReasoningEffort,
		Verbosity:       p.Verbosity,
		Temperature:     p.Temperature,
		MaxTokens:       p.MaxTokens,
	}
	if p.WaitTimeoutMs > 0 {
		opts.OverallTimeoutMs = p.WaitTimeoutMs
	}
	result := t.async.RunTurn(ctx, p.ConversationID, p.Prompt, opts)
	return turnResultToTool(result)
}

func (t *AdviceTool) executeSync(ctx context.Context, p adviceParams) (*ToolResult, error) {
	opts := syncengine.Options{
		ReasoningEffort:   modelregistry.ReasoningEffort(p.ReasoningEffort),
		Verbosity:         modelregistry.Verbosity(p.Verbosity),
		AdditionalContext: p.AdditionalContext,
		Temperature:       p.Temperature,
		MaxTokens:         p.MaxTokens,
	}
	advice, err := t.sync.Advise(ctx, p.Model, p.Prompt, opts)
	if err != nil {
		if rerr, ok := rpcerr.As(err); ok {
			return nil, rerr
		}
		return nil, rpcerr.FromError(err)
	}
	return jsonResult(map[string]any{"text": advice.Text, "metadata": advice.Meta})
}

func turnResultToTool(result asyncengine.TurnResult) (*ToolResult, error) {
	if result.Status == asyncengine.TurnError {
		if rerr, ok := rpcerr.As(result.Err); ok {
			return nil, rerr
		}
		return nil, rpcerr.Wrap(rpcerr.KindInternalError, result.Err, "advice request failed")
	}

	payload := map[string]any{
		"status":         string(result.Status),
		"requestId":      result.RequestID,
		"conversationId": result.ConversationID,
	}
	if result.Status == asyncengine.TurnCompleted {
		payload["text"] = result.Text
		payload["usage"] = result.Usage
	}
	return jsonResult(payload)
}
