package toolrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelbridge/gateway/internal/rpcerr"
	"github.com/modelbridge/gateway/internal/syncengine"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// idiomPromptTemplate is the fixed system prompt the "idiom" tool prepends
// to every call, grounded on the sync engine's own structured-output
// contract: the model is told exactly which JSON object shape to emit as
// its response text.
const idiomPromptTemplate = `You are advising on idiomatic usage for a specific language, library, or framework.
Answer the following question with a single JSON object matching this shape:

{
  "approach": "<the recommended idiom, described in one or two sentences>",
  "packages_to_use": ["<package or module names the approach depends on>"],
  "anti_patterns": ["<common mistakes to avoid for this question>"],
  "example_code": "<a short, runnable code example demonstrating the approach>",
  "rationale": "<why this is the idiomatic choice over the alternatives>",
  "references": ["<optional links or doc references>"]
}

Emit ONLY that JSON object as your response, with no surrounding prose.

Question: %s`

const idiomSchemaJSON = `{
  "type": "object",
  "properties": {
    "approach": {"type": "string"},
    "packages_to_use": {"type": "array", "items": {"type": "string"}},
    "anti_patterns": {"type": "array", "items": {"type": "string"}},
    "example_code": {"type": "string"},
    "rationale": {"type": "string"},
    "references": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["approach", "packages_to_use", "anti_patterns", "example_code", "rationale"]
}`

var (
	idiomCompileOnce sync.Once
	idiomCompiled    *jsonschema.Schema
	idiomCompileErr  error
)

func compiledIdiomSchema() (*jsonschema.Schema, error) {
	idiomCompileOnce.Do(func() {
		idiomCompiled, idiomCompileErr = jsonschema.CompileString("idiom.json", idiomSchemaJSON)
	})
	return idiomCompiled, idiomCompileErr
}

// IdiomResponse is the "idiom" tool's structured result (spec §4.6).
type IdiomResponse struct {
	Approach      string   `json:"approach"`
	PackagesToUse []string `json:"packages_to_use"`
	AntiPatterns  []string `json:"anti_patterns"`
	ExampleCode   string   `json:"example_code"`
	Rationale     string   `json:"rationale"`
	References    []string `json:"references,omitempty"`
}

// IdiomTool implements the spec §4.6 "idiom" tool: a fixed system-prompt
// template laid over the sync engine's single-shot advise path, with its
// own structured-output schema distinct from the engine's generic one.
type IdiomTool struct {
	sync *syncengine.Engine
}

// NewIdiomTool builds an IdiomTool over the shared sync engine.
func NewIdiomTool(sync *syncengine.Engine) *IdiomTool {
	return &IdiomTool{sync: sync}
}

func (t *IdiomTool) Name() string { return "idiom" }

func (t *IdiomTool) Description() string {
	return "Ask a model for the idiomatic approach to a language or library question, with recommended packages, anti-patterns, and an example."
}

func (t *IdiomTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "model": {"type": "string"},
    "question": {"type": "string"},
    "additionalContext": {"type": "string"}
  },
  "required": ["model", "question"]
}`)
}

type idiomParams struct {
	Model             string `json:"model"`
	Question          string `json:"question"`
	AdditionalContext string `json:"additionalContext"`
}

// Execute runs the fixed idiom prompt through the sync engine and validates
// the model's reply against the idiom response schema.
func (t *IdiomTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var p idiomParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpcerr.New(rpcerr.KindInvalidParams, "invalid params: "+err.Error())
	}
	if p.Model == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidParams, "model cannot be empty")
	}
	if p.Question == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidParams, "question cannot be empty")
	}

	prompt := fmt.Sprintf(idiomPromptTemplate, p.Question)
	advice, err := t.sync.Advise(ctx, p.Model, prompt, syncengine.Options{AdditionalContext: p.AdditionalContext})
	if err != nil {
		if rerr, ok := rpcerr.As(err); ok {
			return nil, rerr
		}
		return nil, rpcerr.FromError(err)
	}

	response, err := validateIdiomResponse(advice.Text)
	if err != nil {
		// The model answered off-schema; surface its raw text rather than
		// failing the call outright.
		return jsonResult(map[string]any{"approach": advice.Text, "schemaValid": false})
	}
	return jsonResult(response)
}

func validateIdiomResponse(text string) (IdiomResponse, error) {
	var asAny any
	if err := json.Unmarshal([]byte(text), &asAny); err != nil {
		return IdiomResponse{}, fmt.Errorf("decode idiom response: %w", err)
	}

	schema, err := compiledIdiomSchema()
	if err != nil {
		return IdiomResponse{}, fmt.Errorf("compile idiom schema: %w", err)
	}
	if err := schema.Validate(asAny); err != nil {
		return IdiomResponse{}, fmt.Errorf("idiom response failed schema validation: %w", err)
	}

	var response IdiomResponse
	if err := json.Unmarshal([]byte(text), &response); err != nil {
		return IdiomResponse{}, fmt.Errorf("decode idiom response: %w", err)
	}
	return response, nil
}
