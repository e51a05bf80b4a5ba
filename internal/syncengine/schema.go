// Package syncengine implements the Sync Engine (spec §4.3): single-shot
// "advice" calls with structured-output probing, retry, and per-class
// timeouts over a provider binding.
package syncengine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchemaJSON is the structured response schema the engine asks
// providers to constrain their output to (spec §4.3 "Structured Response
// Schema"). Grounded on pkg/pluginsdk/validation.go's compile-once,
// validate-many shape over santhosh-tekuri/jsonschema/v5, here serving the
// opposite direction: we hand this schema *to* the provider as the response
// contract, then validate what comes back against it.
const responseSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "response_type": {"type": "string", "enum": ["complete", "needs_context", "continue"]},
    "response": {"type": "string"},
    "context_needed": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["code", "library", "environment", "error", "requirements", "other"]},
          "description": {"type": "string"}
        },
        "required": ["type", "description"]
      }
    },
    "questions": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["response_type", "response"]
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// ResponseSchema returns the raw structured-response schema, for handing to
// provider adapters that constrain generation to a JSON schema.
func ResponseSchema() json.RawMessage {
	return json.RawMessage(responseSchemaJSON)
}

// compiled lazily compiles responseSchemaJSON exactly once.
func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = jsonschema.CompileString("advice-response.schema.json", responseSchemaJSON)
	})
	return compiledSchema, compileErr
}

// structuredResponse is the decoded shape of a schema-constrained reply.
type structuredResponse struct {
	ResponseType  string          `json:"response_type"`
	Response      string          `json:"response"`
	ContextNeeded []ContextNeeded `json:"context_needed,omitempty"`
	Questions     []string        `json:"questions,omitempty"`
	Confidence    *float64        `json:"confidence,omitempty"`
}

// ContextNeeded is one entry of a "needs_context" response.
type ContextNeeded struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// validateResponse validates raw against the compiled schema and decodes it.
func validateResponse(raw json.RawMessage) (structuredResponse, error) {
	schema, err := compiled()
	if err != nil {
		return structuredResponse{}, fmt.Errorf("compile response schema: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return structuredResponse{}, fmt.Errorf("decode structured response: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return structuredResponse{}, fmt.Errorf("structured response failed schema validation: %w", err)
	}

	var resp structuredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return structuredResponse{}, fmt.Errorf("decode structured response: %w", err)
	}
	return resp, nil
}
