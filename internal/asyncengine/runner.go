package asyncengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/modelbridge/gateway/internal/concurrency"
	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/providerapi"
	"github.com/modelbridge/gateway/internal/rpcerr"
	"github.com/modelbridge/gateway/internal/store"
)

// Runner drives the deferred-completion advice path (spec §4.4) over a
// persistent store and one deferred-capable provider per binding. Providers
// without a deferred endpoint still go through Runner: Open degrades to a
// single synchronous call under the same persistence and state machine.
type Runner struct {
	store     *store.Store
	registry  *modelregistry.Registry
	providers map[modelregistry.Provider]providerapi.Provider
	limiter   *concurrency.Limiter
	poller    *Poller
}

// New builds a Runner over a store, registry, provider client set, and
// concurrency limiter.
func New(st *store.Store, registry *modelregistry.Registry, providers map[modelregistry.Provider]providerapi.Provider, limiter *concurrency.Limiter) *Runner {
	r := &Runner{store: st, registry: registry, providers: providers, limiter: limiter}
	r.poller = &Poller{runner: r}
	return r
}

// RunTurn implements spec §4.4's runTurn algorithm.
func (r *Runner) RunTurn(ctx context.Context, conversationID *int64, userText string, opts Options) TurnResult {
	descriptor, err := r.registry.Resolve(opts.Model)
	if err != nil {
		return errorResult(0, rpcerr.Wrap(rpcerr.KindModelNotFound, err, err.Error()))
	}

	conv, err := r.resolveOrCreateConversation(ctx, conversationID)
	if err != nil {
		return errorResult(0, rpcerr.Wrap(rpcerr.KindInternalError, err, "resolve conversation"))
	}

	userMsg, err := r.store.AppendMessage(ctx, conv.ID, store.RoleUser, userText, nil)
	if err != nil {
		return errorResult(0, rpcerr.Wrap(rpcerr.KindInternalError, err, "append user message"))
	}

	// Step 2: build upstream input from trimmed history.
	history, err := r.store.ListMessages(ctx, conv.ID, opts.maxHistoryMessages())
	if err != nil {
		return errorResult(0, rpcerr.Wrap(rpcerr.KindInternalError, err, "list history"))
	}
	prompt := renderHistory(history)

	// Step 3: compute the dedup hash over this turn's own input, not the
	// rendered history — the history grows every turn, so hashing it would
	// make two identical calls to runTurn hash differently and defeat dedup.
	paramsJSON, err := json.Marshal(requestParams{
		ReasoningEffort: opts.ReasoningEffort,
		Verbosity:       opts.Verbosity,
		Temperature:     opts.Temperature,
		MaxTokens:       opts.MaxTokens,
	})
	if err != nil {
		return errorResult(0, rpcerr.Wrap(rpcerr.KindInternalError, err, "encode params"))
	}
	inputHash, err := store.InputHash(opts.Model, userText, string(paramsJSON))
	if err != nil {
		return errorResult(0, rpcerr.Wrap(rpcerr.KindInternalError, err, "compute input hash"))
	}

	// Step 4: dedup by (conversationID, inputHash).
	req, created, err := r.store.UpsertRequest(ctx, conv.ID, userMsg.ID, opts.Model, string(paramsJSON), inputHash)
	if err != nil {
		return errorResult(0, rpcerr.Wrap(rpcerr.KindInternalError, err, "upsert request"))
	}

	// Step 5: cache hit.
	if req.Status == store.StatusCompleted {
		return TurnResult{Status: TurnCompleted, RequestID: req.ID, ConversationID: conv.ID, Text: req.OutputText, Usage: usageFromJSON(req.UsageJSON)}
	}

	// Step 6: another caller is already driving this request.
	if !created && (req.Status == store.StatusInProgress || req.Status == store.StatusQueued) && req.ProviderResponseID != "" {
		return TurnResult{Status: TurnWaiting, RequestID: req.ID, ConversationID: conv.ID, ProviderResponseID: req.ProviderResponseID}
	}
	if requestStatusIsTerminal(req.Status) && req.Status != store.StatusCompleted {
		return errorResult(req.ID, rpcerr.New(rpcerr.KindProviderError, fmt.Sprintf("request %d previously ended in status %q", req.ID, req.Status)))
	}

	// Step 7: open the upstream job.
	if err := r.store.MarkStarted(ctx, req.ID); err != nil {
		return errorResult(req.ID, rpcerr.Wrap(rpcerr.KindInternalError, err, "mark started"))
	}

	release, err := r.limiter.Acquire(ctx, descriptor.Provider)
	if err != nil {
		return errorResult(req.ID, rpcerr.Wrap(rpcerr.KindInternalError, err, "acquire concurrency slot"))
	}
	defer release()

	provider := r.providers[descriptor.Provider]
	deferredProvider, isDeferred := provider.(providerapi.DeferredProvider)

	providerOpts := providerapi.Options{Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	if opts.ReasoningEffort != "" {
		providerOpts.ReasoningEffort = modelregistry.ReasoningEffort(opts.ReasoningEffort)
	}
	if opts.Verbosity != "" {
		providerOpts.Verbosity = modelregistry.Verbosity(opts.Verbosity)
	}

	if !isDeferred {
		// Degraded synchronous path: the same persistence, one blocking call.
		// There is no upstream job id to correlate against since the call has
		// already returned by the time it completes, so mint a synthetic one
		// the same way a deferred job's ProviderResponseID is recorded.
		syntheticResponseID := "sync-" + uuid.NewString()
		if err := r.store.SaveInProgress(ctx, req.ID, syntheticResponseID); err != nil {
			return errorResult(req.ID, rpcerr.Wrap(rpcerr.KindInternalError, err, "save in-progress"))
		}
		result, err := provider.GenerateText(ctx, descriptor.Name, prompt, providerOpts)
		if err != nil {
			return r.fail(ctx, conv.ID, req.ID, err)
		}
		return r.complete(ctx, conv.ID, req.ID, result.Text, "", usageJSON(result.Usage))
	}

	open, err := deferredProvider.Open(ctx, descriptor.Name, prompt, providerOpts)
	if err != nil {
		return r.fail(ctx, conv.ID, req.ID, err)
	}
	if open.Completed {
		return r.complete(ctx, conv.ID, req.ID, open.Result.Text, "", usageJSON(open.Result.Usage))
	}

	if err := r.store.SaveInProgress(ctx, req.ID, open.ProviderResponseID); err != nil {
		return errorResult(req.ID, rpcerr.Wrap(rpcerr.KindInternalError, err, "save in-progress"))
	}

	// Step 8/9: poll until the overall budget elapses.
	return r.poller.pollUntilBudget(ctx, deferredProvider, conv.ID, req.ID, open.ProviderResponseID, opts)
}

// CheckOrWait implements spec §4.4's checkOrWait, resuming the poll loop
// from a persisted providerResponseId.
func (r *Runner) CheckOrWait(ctx context.Context, requestID int64, waitMs int) TurnResult {
	req, err := r.store.GetRequest(ctx, requestID)
	if err != nil {
		return errorResult(requestID, rpcerr.Wrap(rpcerr.KindInternalError, err, "load request"))
	}
	if req == nil {
		return errorResult(requestID, rpcerr.New(rpcerr.KindInvalidParams, fmt.Sprintf("unknown request id %d", requestID)))
	}
	if req.Status == store.StatusCompleted {
		return TurnResult{Status: TurnCompleted, RequestID: req.ID, ConversationID: req.ConversationID, Text: req.OutputText, Usage: usageFromJSON(req.UsageJSON)}
	}
	if requestStatusIsTerminal(req.Status) {
		return errorResult(req.ID, rpcerr.New(rpcerr.KindProviderError, fmt.Sprintf("request %d ended in status %q", req.ID, req.Status)))
	}
	if req.ProviderResponseID == "" {
		return TurnResult{Status: TurnWaiting, RequestID: req.ID, ConversationID: req.ConversationID}
	}

	descriptor, err := r.registry.Resolve(req.Model)
	if err != nil {
		return errorResult(req.ID, rpcerr.Wrap(rpcerr.KindModelNotFound, err, err.Error()))
	}
	provider, ok := r.providers[descriptor.Provider]
	if !ok {
		return errorResult(req.ID, rpcerr.New(rpcerr.KindModelNotFound, fmt.Sprintf("no live binding for provider %q", descriptor.Provider)))
	}
	deferredProvider, isDeferred := provider.(providerapi.DeferredProvider)
	if !isDeferred {
		return errorResult(req.ID, rpcerr.New(rpcerr.KindInternalError, "provider does not support polling"))
	}

	opts := Options{OverallTimeoutMs: waitMs}
	return r.poller.pollUntilBudget(ctx, deferredProvider, req.ConversationID, req.ID, req.ProviderResponseID, opts)
}

func (r *Runner) complete(ctx context.Context, conversationID, requestID int64, text, rawJSON, usageJSON string) TurnResult {
	if err := r.store.SaveCompletion(ctx, requestID, text, rawJSON, usageJSON); err != nil {
		return errorResult(requestID, rpcerr.Wrap(rpcerr.KindInternalError, err, "save completion"))
	}
	if _, err := r.store.AppendMessage(ctx, conversationID, store.RoleAssistant, text, &requestID); err != nil {
		return errorResult(requestID, rpcerr.Wrap(rpcerr.KindInternalError, err, "append assistant message"))
	}
	return TurnResult{Status: TurnCompleted, RequestID: requestID, ConversationID: conversationID, Text: text, Usage: usageFromJSON(usageJSON)}
}

func (r *Runner) fail(ctx context.Context, conversationID, requestID int64, cause error) TurnResult {
	return r.failWithStatus(ctx, conversationID, requestID, store.StatusFailed, cause)
}

func (r *Runner) failWithStatus(ctx context.Context, conversationID, requestID int64, status store.RequestStatus, cause error) TurnResult {
	rerr := rpcerr.FromError(cause)
	payload, _ := json.Marshal(map[string]any{"code": rerr.Code(), "message": rerr.Message})
	if err := r.store.SaveFailure(ctx, requestID, status, string(payload)); err != nil {
		return errorResult(requestID, rpcerr.Wrap(rpcerr.KindInternalError, err, "save failure"))
	}
	return TurnResult{Status: TurnError, RequestID: requestID, ConversationID: conversationID, Err: rerr}
}

func (r *Runner) resolveOrCreateConversation(ctx context.Context, conversationID *int64) (*store.Conversation, error) {
	if conversationID != nil {
		conv, err := r.store.GetConversation(ctx, *conversationID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}
	return r.store.CreateConversation(ctx, "", "")
}

func errorResult(requestID int64, err error) TurnResult {
	return TurnResult{Status: TurnError, RequestID: requestID, Err: err}
}

// requestParams is the canonical-hashed params blob (spec §4.5 input_hash).
type requestParams struct {
	ReasoningEffort string   `json:"reasoningEffort,omitempty"`
	Verbosity       string   `json:"verbosity,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"maxTokens,omitempty"`
}

// renderHistory flattens trimmed message history into a single upstream
// prompt. Providers in this corpus take a flat prompt string (§1's "simple
// functions" collaborator shape), so history is rendered as a transcript
// rather than a structured message array.
func renderHistory(messages []store.Message) string {
	var out string
	for _, m := range messages {
		out += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}
	return out
}

func usageJSON(u providerapi.Usage) string {
	data, _ := json.Marshal(u)
	return string(data)
}

func usageFromJSON(raw string) Usage {
	if raw == "" {
		return Usage{}
	}
	var u Usage
	_ = json.Unmarshal([]byte(raw), &u)
	return u
}
