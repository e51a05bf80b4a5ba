package toolrouter

import (
	"context"
	"encoding/json"

	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/rpcerr"
)

// ModelsTool implements the spec §4.6 "models" tool: a basic live-id listing,
// or (with detailed:true) a per-provider configuration summary, grounded on
// internal/tools/models/tool.go's listing-mode dispatch.
type ModelsTool struct {
	registry *modelregistry.Registry
}

// NewModelsTool builds a ModelsTool over a resolved registry.
func NewModelsTool(registry *modelregistry.Registry) *ModelsTool {
	return &ModelsTool{registry: registry}
}

func (t *ModelsTool) Name() string { return "models" }

func (t *ModelsTool) Description() string {
	return "List available models, or with detailed=true, list every known model with its provider, capabilities, and configuration status."
}

func (t *ModelsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "detailed": {"type": "boolean", "default": false}
  }
}`)
}

type modelsParams struct {
	Detailed bool `json:"detailed"`
}

type detailedModelEntry struct {
	ID           string                     `json:"id"`
	Provider     modelregistry.Provider     `json:"provider"`
	Configured   bool                       `json:"configured"`
	Capabilities modelregistry.Capabilities `json:"capabilities"`
	QuickSetup   string                     `json:"quickSetup,omitempty"`
}

type providerSummary struct {
	Provider   modelregistry.Provider `json:"provider"`
	Configured bool                   `json:"configured"`
	EnvVar     string                 `json:"envVar"`
}

// Execute lists live model ids, or the full detailed view.
func (t *ModelsTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var p modelsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpcerr.New(rpcerr.KindInvalidParams, "invalid params: "+err.Error())
		}
	}

	if !p.Detailed {
		return jsonResult(map[string]any{"models": t.registry.List()})
	}

	entries := t.registry.ListDetailed()
	detailed := make([]detailedModelEntry, 0, len(entries))
	for _, e := range entries {
		entry := detailedModelEntry{ID: e.ID, Provider: e.Provider, Configured: e.Configured, Capabilities: e.Capabilities}
		if !e.Configured {
			entry.QuickSetup = "set " + modelregistry.EnvVarHint(e.Provider) + " and restart"
		}
		detailed = append(detailed, entry)
	}

	summaries := make([]providerSummary, 0, len(modelregistry.AllProviders()))
	for _, p := range modelregistry.AllProviders() {
		summaries = append(summaries, providerSummary{
			Provider:   p,
			Configured: t.registry.Configured(p),
			EnvVar:     modelregistry.EnvVarHint(p),
		})
	}

	return jsonResult(map[string]any{"models": detailed, "providers": summaries})
}
