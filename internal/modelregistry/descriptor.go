// Package modelregistry resolves model identifiers of the form
// "<provider>:<name>" to immutable descriptors and tracks which providers
// have a live API key binding.
package modelregistry

import (
	"fmt"
	"strings"
)

// Provider identifies an upstream model-serving API.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
	ProviderXAI       Provider = "xai"
)

// ReasoningEffort is the hint passed to reasoning-class models.
type ReasoningEffort string

const (
	ReasoningMinimal ReasoningEffort = "minimal"
	ReasoningLow     ReasoningEffort = "low"
	ReasoningMedium  ReasoningEffort = "medium"
	ReasoningHigh    ReasoningEffort = "high"
)

// Verbosity is the response-length hint accepted by gpt-5-class models.
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// Defaults holds per-model default hints, overridable by the caller.
type Defaults struct {
	ReasoningEffort ReasoningEffort
	Verbosity       Verbosity
}

// Capabilities are advisory fields surfaced by the "models" tool only.
type Capabilities struct {
	Speed         string
	Intelligence  string
	ContextWindow int
	Vision        bool
	Audio         bool
}

// Descriptor is the immutable per-process record for one (provider, name) pair.
type Descriptor struct {
	ID               string
	Provider         Provider
	Name             string
	Reasoning        bool
	StructuredOutput bool
	Defaults         Defaults
	Capabilities     Capabilities
	// Deferred is true for models reachable through a deferred-completion
	// (background job) endpoint, e.g. OpenAI's "responses" API.
	Deferred bool
}

// ErrInvalidIdentifier is returned by ParseID when the "<provider>:<name>"
// shape is violated.
type ErrInvalidIdentifier struct {
	Raw string
}

func (e *ErrInvalidIdentifier) Error() string {
	return fmt.Sprintf("invalid model identifier %q: expected \"<provider>:<name>\"", e.Raw)
}

// ParseID splits a model identifier into its provider and name parts.
func ParseID(id string) (Provider, string, error) {
	idx := strings.IndexByte(id, ':')
	if idx <= 0 || idx == len(id)-1 {
		return "", "", &ErrInvalidIdentifier{Raw: id}
	}
	provider := id[:idx]
	name := id[idx+1:]
	if provider == "" || name == "" {
		return "", "", &ErrInvalidIdentifier{Raw: id}
	}
	return Provider(provider), name, nil
}

// ModelClass is the timeout/classification bucket used by the sync engine.
type ModelClass string

const (
	ClassFast      ModelClass = "fast"
	ClassReasoning ModelClass = "reasoning"
	ClassStandard  ModelClass = "standard"
	ClassDefault   ModelClass = "default"
)

// fastSubstrings, reasoningSubstrings are checked in that order (fast first)
// against the lowercased model name, per spec §4.3.
var fastSubstrings = []string{"mini", "flash", "nano", "haiku"}
var reasoningSubstrings = []string{"o1", "o3", "o4", "gpt-5", "reasoning", "opus", "grok-4"}
var standardSubstrings = []string{"gpt-4", "sonnet", "gemini", "grok"}

// Classify buckets a model name into a timeout class.
func Classify(name string) ModelClass {
	lower := strings.ToLower(name)
	for _, s := range fastSubstrings {
		if strings.Contains(lower, s) {
			return ClassFast
		}
	}
	for _, s := range reasoningSubstrings {
		if strings.Contains(lower, s) {
			return ClassReasoning
		}
	}
	for _, s := range standardSubstrings {
		if strings.Contains(lower, s) {
			return ClassStandard
		}
	}
	return ClassDefault
}
