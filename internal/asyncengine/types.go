// Package asyncengine implements the Turn Runner and Poller (spec §4.4):
// the deferred-completion advice path backed by internal/store, used for
// providers exposing a background-job endpoint (and, degraded to a single
// synchronous call under the same persistence, for the rest).
package asyncengine

import "github.com/modelbridge/gateway/internal/store"

// TurnStatus tags which TurnResult variant a call returned.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnWaiting   TurnStatus = "waiting"
	TurnError     TurnStatus = "error"
)

// TurnResult is runTurn/checkOrWait's tagged-union result (spec §4.4
// "TurnResult variants").
type TurnResult struct {
	Status             TurnStatus
	RequestID          int64
	ConversationID     int64
	ProviderResponseID string
	Text               string
	Usage              Usage
	Err                error
}

// Usage mirrors providerapi.Usage for the wire-facing result, decoupled so
// asyncengine doesn't need to import providerapi's whole surface just for
// two ints.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Options configures one runTurn call.
type Options struct {
	Model              string
	ReasoningEffort    string
	Verbosity          string
	Temperature        *float64
	MaxTokens          *int
	MaxHistoryMessages int
	OverallTimeoutMs   int
	InitialPollDelayMs int
	MaxPollDelayMs     int
}

const (
	defaultMaxHistoryMessages = 50
	defaultOverallTimeoutMs   = 30_000
	defaultInitialPollDelayMs = 1_000
	defaultMaxPollDelayMs     = 5_000
	pollGrowthFactor          = 1.5
)

func (o Options) maxHistoryMessages() int {
	if o.MaxHistoryMessages > 0 {
		return o.MaxHistoryMessages
	}
	return defaultMaxHistoryMessages
}

func (o Options) overallTimeoutMs() int {
	if o.OverallTimeoutMs > 0 {
		return o.OverallTimeoutMs
	}
	return defaultOverallTimeoutMs
}

func (o Options) initialPollDelayMs() int {
	if o.InitialPollDelayMs > 0 {
		return o.InitialPollDelayMs
	}
	return defaultInitialPollDelayMs
}

func (o Options) maxPollDelayMs() int {
	if o.MaxPollDelayMs > 0 {
		return o.MaxPollDelayMs
	}
	return defaultMaxPollDelayMs
}

// requestStatusIsTerminal reports whether a store status ends the state
// machine (spec §4.4 state diagram).
func requestStatusIsTerminal(status store.RequestStatus) bool {
	switch status {
	case store.StatusCompleted, store.StatusFailed, store.StatusCancelled, store.StatusExpired:
		return true
	default:
		return false
	}
}
