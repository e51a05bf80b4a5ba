// Package providerapi implements the five upstream "simple functions" the
// spec treats as an external collaborator (§1): generateText and
// generateStructured per provider, wired to real SDKs so the sync/async
// engines have something concrete to call. Grounded on the teacher's
// internal/agent/providers package (per-provider client construction,
// error wrapping), trimmed from streaming chat completion to the
// single-shot generate/generateStructured shape this spec needs.
package providerapi

import (
	"context"
	"encoding/json"

	"github.com/modelbridge/gateway/internal/modelregistry"
)

// Options carries the per-call knobs the sync engine's algorithm (§4.3)
// assembles before dispatch.
type Options struct {
	ReasoningEffort modelregistry.ReasoningEffort
	Verbosity       modelregistry.Verbosity
	Temperature     *float64
	MaxTokens       *int
}

// Result is the outcome of a single upstream call.
type Result struct {
	Text  string
	Usage Usage
}

// Usage reports token accounting, when the upstream surfaces it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is the per-binding client the registry constructs once at
// startup (spec §9: "a small tagged variant of Provider plus a single
// generate interface with two methods").
type Provider interface {
	// GenerateText issues a plain text-generation call.
	GenerateText(ctx context.Context, model, prompt string, opts Options) (Result, error)

	// GenerateStructured issues a schema-constrained call. schema is a raw
	// JSON Schema document; the returned RawMessage validates against it on
	// success.
	GenerateStructured(ctx context.Context, model, prompt string, schema json.RawMessage, opts Options) (json.RawMessage, error)
}

// DeferredProvider is implemented by providers exposing a deferred-completion
// endpoint (spec §4.4): OpenAI's "responses" API. The async engine type-asserts
// for this to decide whether a binding can be routed there.
type DeferredProvider interface {
	Provider

	// Open starts an asynchronous job and returns immediately with either a
	// completed result (tiny/cached responses can return synchronously) or a
	// providerResponseID to poll.
	Open(ctx context.Context, model, prompt string, opts Options) (OpenResult, error)

	// Poll checks the status of a previously opened job.
	Poll(ctx context.Context, providerResponseID string) (PollResult, error)
}

// OpenResult is the outcome of starting a deferred job.
type OpenResult struct {
	Completed          bool
	Result             Result
	ProviderResponseID string
}

// PollStatus mirrors the subset of the Request state machine (spec §4.4)
// that upstream polling can observe.
type PollStatus string

const (
	PollQueued     PollStatus = "queued"
	PollInProgress PollStatus = "in_progress"
	PollCompleted  PollStatus = "completed"
	PollFailed     PollStatus = "failed"
	PollCancelled  PollStatus = "cancelled"
	PollExpired    PollStatus = "expired"
)

// PollResult is one observation of a deferred job's state.
type PollResult struct {
	Status PollStatus
	Result Result
	Err    error
}
