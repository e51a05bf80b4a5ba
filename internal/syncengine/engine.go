package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelbridge/gateway/internal/backoff"
	"github.com/modelbridge/gateway/internal/capability"
	"github.com/modelbridge/gateway/internal/concurrency"
	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/providerapi"
	"github.com/modelbridge/gateway/internal/rpcerr"
)

// maxIterations is the spec §4.3 ceiling on Options.Iteration.
const maxIterations = 3

// classTimeouts holds the probe/structured/overall timeout triple for a
// model class (spec §4.3 "Timeouts (model class)" table).
type classTimeouts struct {
	probe, structured, overall time.Duration
}

var timeoutTable = map[modelregistry.ModelClass]classTimeouts{
	modelregistry.ClassReasoning: {probe: 10 * time.Second, structured: 120 * time.Second, overall: 180 * time.Second},
	modelregistry.ClassStandard:  {probe: 5 * time.Second, structured: 60 * time.Second, overall: 90 * time.Second},
	modelregistry.ClassFast:      {probe: 3 * time.Second, structured: 30 * time.Second, overall: 45 * time.Second},
	modelregistry.ClassDefault:   {probe: 5 * time.Second, structured: 60 * time.Second, overall: 90 * time.Second},
}

func timeoutsFor(name string) classTimeouts {
	t, ok := timeoutTable[modelregistry.Classify(name)]
	if !ok {
		return timeoutTable[modelregistry.ClassDefault]
	}
	return t
}

// Options carries the per-call knobs of the public advise(...) contract.
type Options struct {
	ReasoningEffort   modelregistry.ReasoningEffort
	Verbosity         modelregistry.Verbosity
	AdditionalContext string
	Iteration         int
	Temperature       *float64
	MaxTokens         *int
}

// Meta is the advice response's side-channel metadata.
type Meta struct {
	Status        string          `json:"status"`
	Confidence    *float64        `json:"confidence,omitempty"`
	ContextNeeded []ContextNeeded `json:"contextNeeded,omitempty"`
	Questions     []string        `json:"questions,omitempty"`
	FallbackMode  bool            `json:"fallbackMode,omitempty"`
}

// Advice is the public advise(...) result.
type Advice struct {
	Text string
	Meta Meta
}

// Engine implements the Sync Engine (spec §4.3).
type Engine struct {
	registry   *modelregistry.Registry
	providers  map[modelregistry.Provider]providerapi.Provider
	limiter    *concurrency.Limiter
	capability *capability.Cache
}

// New builds a sync engine over a resolved registry, provider client set,
// concurrency limiter, and shared capability cache.
func New(registry *modelregistry.Registry, providers map[modelregistry.Provider]providerapi.Provider, limiter *concurrency.Limiter, capCache *capability.Cache) *Engine {
	return &Engine{registry: registry, providers: providers, limiter: limiter, capability: capCache}
}

// Advise implements the single-shot advice algorithm of spec §4.3.
func (e *Engine) Advise(ctx context.Context, modelID, prompt string, opts Options) (Advice, error) {
	if strings.TrimSpace(prompt) == "" {
		return Advice{}, rpcerr.New(rpcerr.KindInvalidParams, "prompt must not be empty")
	}

	descriptor, err := e.registry.Resolve(modelID)
	if err != nil {
		return Advice{}, rpcerr.Wrap(rpcerr.KindModelNotFound, err, err.Error())
	}

	iteration := opts.Iteration
	if iteration <= 0 {
		iteration = 1
	}
	if iteration > maxIterations {
		return Advice{Text: "max iterations reached", Meta: Meta{Status: "complete"}}, nil
	}

	provider, ok := e.providers[descriptor.Provider]
	if !ok {
		return Advice{}, rpcerr.New(rpcerr.KindModelNotFound, fmt.Sprintf("no live binding for provider %q", descriptor.Provider))
	}

	// Step 1: OpenAI reasoning-class models get a provider options blob
	// (reasoning effort, and verbosity for gpt-5-prefixed names).
	providerOpts := providerapi.Options{Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	if descriptor.Provider == modelregistry.ProviderOpenAI && descriptor.Reasoning {
		providerOpts.ReasoningEffort = firstNonEmptyEffort(opts.ReasoningEffort, descriptor.Defaults.ReasoningEffort)
		if strings.HasPrefix(descriptor.Name, "gpt-5") {
			providerOpts.Verbosity = firstNonEmptyVerbosity(opts.Verbosity, descriptor.Defaults.Verbosity)
		}
	}

	// Step 2: augment the prompt with additional context, if supplied.
	fullPrompt := prompt
	if opts.AdditionalContext != "" {
		fullPrompt = fmt.Sprintf("%s\n\nAdditional Context Provided:\n%s", prompt, opts.AdditionalContext)
	}

	// Step 3: acquire the provider's concurrency slot.
	release, err := e.limiter.Acquire(ctx, descriptor.Provider)
	if err != nil {
		return Advice{}, rpcerr.Wrap(rpcerr.KindInternalError, err, "acquire concurrency slot")
	}
	defer release()

	timeouts := timeoutsFor(descriptor.Name)

	// Step 4: determine structured-output support via the capability cache,
	// probing at most once (shared across concurrent callers of this model).
	supportsStructured, err := e.capability.GetOrProbe(ctx, descriptor.ID, func(probeCtx context.Context) (bool, error) {
		return e.probeStructured(probeCtx, provider, descriptor, fullPrompt, providerOpts, timeouts.probe)
	})
	if err != nil {
		// A probe failure still yields a usable fallback: the descriptor's
		// static StructuredOutput flag stands in when the cache is empty.
		supportsStructured = descriptor.StructuredOutput
	}

	if supportsStructured {
		advice, err := e.callStructured(ctx, provider, descriptor, fullPrompt, providerOpts, timeouts.structured)
		if err == nil {
			return advice, nil
		}
		if isFormatOrTimeoutError(err) {
			e.capability.Invalidate(descriptor.ID)
		} else {
			return Advice{}, err
		}
		// fall through to text mode for this call only
	}

	// Step 6: plain text-generation endpoint.
	text, err := e.callText(ctx, provider, descriptor, fullPrompt, providerOpts, timeouts.overall)
	if err != nil {
		return Advice{}, err
	}
	return Advice{Text: text, Meta: Meta{Status: "complete", FallbackMode: true}}, nil
}

// probeStructured issues a minimal schema-constrained call to test whether
// modelID actually honors structured output, rather than trusting the
// descriptor's static flag (spec §4.3 step 4).
func (e *Engine) probeStructured(ctx context.Context, provider providerapi.Provider, d modelregistry.Descriptor, prompt string, opts providerapi.Options, timeout time.Duration) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := provider.GenerateStructured(probeCtx, d.Name, prompt, ResponseSchema(), opts)
	if err != nil {
		if isFormatOrTimeoutError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *Engine) callStructured(ctx context.Context, provider providerapi.Provider, d modelregistry.Descriptor, prompt string, opts providerapi.Options, timeout time.Duration) (Advice, error) {
	raw, err := withRetry(ctx, timeout, func(callCtx context.Context) (json.RawMessage, error) {
		return provider.GenerateStructured(callCtx, d.Name, prompt, ResponseSchema(), opts)
	})
	if err != nil {
		return Advice{}, err
	}

	decoded, err := validateResponse(raw)
	if err != nil {
		return Advice{}, rpcerr.Wrap(rpcerr.KindProviderError, err, err.Error())
	}

	meta := Meta{Confidence: decoded.Confidence, ContextNeeded: decoded.ContextNeeded, Questions: decoded.Questions}
	switch decoded.ResponseType {
	case "needs_context":
		meta.Status = "needs_context"
	default:
		meta.Status = "complete"
	}
	return Advice{Text: decoded.Response, Meta: meta}, nil
}

func (e *Engine) callText(ctx context.Context, provider providerapi.Provider, d modelregistry.Descriptor, prompt string, opts providerapi.Options, timeout time.Duration) (string, error) {
	result, err := withRetry(ctx, timeout, func(callCtx context.Context) (providerapi.Result, error) {
		return provider.GenerateText(callCtx, d.Name, prompt, opts)
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// withRetry wraps a single upstream call with the spec §4.3 step 7 retry
// policy: up to 2 retries on HTTP 429 or 5xx, exponential backoff
// min(2s, 2^attempt*150ms*jitter[0.85,1.15]).
func withRetry[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	const maxRetries = 2
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := call(callCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxRetries || !isRetryable(err) {
			return zero, err
		}
		delay := backoff.ComputeRangedBackoff(150, 2000, 2, attempt+1, 0.85, 1.15)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	rerr, ok := rpcerr.As(err)
	if !ok {
		return false
	}
	if isFormatOrTimeoutError(rerr) {
		return false
	}
	return rerr.Kind == rpcerr.KindRateLimit || rerr.Kind == rpcerr.KindProviderError
}

func isFormatOrTimeoutError(err error) bool {
	rerr, ok := rpcerr.As(err)
	if !ok {
		return strings.Contains(strings.ToLower(err.Error()), "timed out")
	}
	if rerr.Data != nil {
		if v, ok := rerr.Data["unsupportedFormat"].(bool); ok && v {
			return true
		}
	}
	return strings.Contains(strings.ToLower(rerr.Message), "timed out")
}

func firstNonEmptyEffort(user, fallback modelregistry.ReasoningEffort) modelregistry.ReasoningEffort {
	if user != "" {
		return user
	}
	return fallback
}

func firstNonEmptyVerbosity(user, fallback modelregistry.Verbosity) modelregistry.Verbosity {
	if user != "" {
		return user
	}
	return fallback
}
