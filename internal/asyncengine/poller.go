package asyncengine

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/modelbridge/gateway/internal/backoff"
	"github.com/modelbridge/gateway/internal/providerapi"
	"github.com/modelbridge/gateway/internal/rpcerr"
	"github.com/modelbridge/gateway/internal/store"
)

// Poller drives the poll loop of spec §4.4 step 8: sleep an
// initial delay, then query upstream on a growth-capped schedule until the
// overall budget elapses or the job reaches a terminal state.
type Poller struct {
	runner *Runner
}

// pollUntilBudget owns the request's poll loop for up to opts.overallTimeoutMs,
// persisting every state transition it observes.
func (p *Poller) pollUntilBudget(ctx context.Context, provider providerapi.DeferredProvider, conversationID, requestID int64, providerResponseID string, opts Options) TurnResult {
	budget := time.Duration(opts.overallTimeoutMs()) * time.Millisecond
	deadline := time.Now().Add(budget)

	delay := time.Duration(opts.initialPollDelayMs()) * time.Millisecond
	maxDelay := time.Duration(opts.maxPollDelayMs()) * time.Millisecond

	if err := backoff.SleepWithContext(ctx, delay); err != nil {
		return errorResult(requestID, rpcerr.Wrap(rpcerr.KindInternalError, err, "poll sleep interrupted"))
	}

	for {
		result, err := provider.Poll(ctx, providerResponseID)
		if err != nil {
			return p.runner.fail(ctx, conversationID, requestID, err)
		}

		switch result.Status {
		case providerapi.PollCompleted:
			raw, _ := json.Marshal(result.Result)
			return p.runner.complete(ctx, conversationID, requestID, result.Result.Text, string(raw), usageJSON(result.Result.Usage))
		case providerapi.PollFailed, providerapi.PollCancelled, providerapi.PollExpired:
			return p.runner.failWithStatus(ctx, conversationID, requestID, terminalStoreStatus(result.Status), terminalPollError(result))
		case providerapi.PollQueued, providerapi.PollInProgress:
			// fall through to the sleep-and-retry below
		}

		if time.Now().After(deadline) {
			// Step 9: budget elapsed without a terminal state; status is left
			// as-is so a later checkOrWait resumes the poll.
			return TurnResult{Status: TurnWaiting, RequestID: requestID, ConversationID: conversationID, ProviderResponseID: providerResponseID}
		}

		delay = time.Duration(math.Min(float64(maxDelay), float64(delay)*pollGrowthFactor))
		if err := backoff.SleepWithContext(ctx, delay); err != nil {
			return errorResult(requestID, rpcerr.Wrap(rpcerr.KindInternalError, err, "poll sleep interrupted"))
		}
	}
}

func terminalPollError(result providerapi.PollResult) error {
	if result.Err != nil {
		return result.Err
	}
	return rpcerr.New(rpcerr.KindProviderError, "upstream job ended in status "+string(result.Status))
}

// terminalStoreStatus maps a terminal providerapi.PollStatus onto the
// store's RequestStatus, used by callers that persist the raw status
// alongside the error (kept distinct from runner.fail's generic "failed"
// classification so callers can distinguish cancellation from failure).
func terminalStoreStatus(status providerapi.PollStatus) store.RequestStatus {
	switch status {
	case providerapi.PollCancelled:
		return store.StatusCancelled
	case providerapi.PollExpired:
		return store.StatusExpired
	default:
		return store.StatusFailed
	}
}
