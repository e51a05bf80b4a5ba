package asyncengine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelbridge/gateway/internal/concurrency"
	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/providerapi"
	"github.com/modelbridge/gateway/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-shm")
		os.Remove(dbPath + "-wal")
	})
	return s
}

// fakeDeferredProvider is a scriptable providerapi.DeferredProvider.
type fakeDeferredProvider struct {
	openResult providerapi.OpenResult
	openErr    error
	pollSeq    []providerapi.PollResult
	pollIdx    int
}

func (f *fakeDeferredProvider) GenerateText(ctx context.Context, model, prompt string, opts providerapi.Options) (providerapi.Result, error) {
	return providerapi.Result{Text: "sync text"}, nil
}

func (f *fakeDeferredProvider) GenerateStructured(ctx context.Context, model, prompt string, schema json.RawMessage, opts providerapi.Options) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeDeferredProvider) Open(ctx context.Context, model, prompt string, opts providerapi.Options) (providerapi.OpenResult, error) {
	return f.openResult, f.openErr
}

func (f *fakeDeferredProvider) Poll(ctx context.Context, providerResponseID string) (providerapi.PollResult, error) {
	if f.pollIdx >= len(f.pollSeq) {
		return f.pollSeq[len(f.pollSeq)-1], nil
	}
	r := f.pollSeq[f.pollIdx]
	f.pollIdx++
	return r, nil
}

func newTestRunner(t *testing.T, provider providerapi.Provider) (*Runner, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	registry := modelregistry.New(map[modelregistry.Provider]modelregistry.Binding{
		modelregistry.ProviderOpenAI: {Provider: modelregistry.ProviderOpenAI, APIKey: "test-key"},
	})
	providers := map[modelregistry.Provider]providerapi.Provider{
		modelregistry.ProviderOpenAI: provider,
	}
	limiter := concurrency.New(concurrency.DefaultConfig())
	return New(st, registry, providers, limiter), st
}

func TestRunTurnCompletesImmediatelyOnOpen(t *testing.T) {
	fake := &fakeDeferredProvider{
		openResult: providerapi.OpenResult{Completed: true, Result: providerapi.Result{Text: "hello there"}},
	}
	runner, _ := newTestRunner(t, fake)

	result := runner.RunTurn(context.Background(), nil, "hi", Options{Model: "openai:gpt-5"})
	if result.Status != TurnCompleted {
		t.Fatalf("status = %v, err = %v", result.Status, result.Err)
	}
	if result.Text != "hello there" {
		t.Fatalf("text = %q", result.Text)
	}
}

func TestRunTurnDedupesByInputHash(t *testing.T) {
	fake := &fakeDeferredProvider{
		openResult: providerapi.OpenResult{Completed: true, Result: providerapi.Result{Text: "first answer"}},
	}
	runner, _ := newTestRunner(t, fake)

	first := runner.RunTurn(context.Background(), nil, "same question", Options{Model: "openai:gpt-5"})
	if first.Status != TurnCompleted {
		t.Fatalf("first call status = %v, err = %v", first.Status, first.Err)
	}

	convID := first.ConversationID
	second := runner.RunTurn(context.Background(), &convID, "same question", Options{Model: "openai:gpt-5"})
	if second.Status != TurnCompleted {
		t.Fatalf("second call status = %v, err = %v", second.Status, second.Err)
	}
	if second.RequestID != first.RequestID {
		t.Fatalf("expected dedup to return the same request id, got %d vs %d", second.RequestID, first.RequestID)
	}
}

func TestRunTurnPollsUntilCompleted(t *testing.T) {
	fake := &fakeDeferredProvider{
		openResult: providerapi.OpenResult{ProviderResponseID: "job-1"},
		pollSeq: []providerapi.PollResult{
			{Status: providerapi.PollInProgress},
			{Status: providerapi.PollCompleted, Result: providerapi.Result{Text: "polled answer"}},
		},
	}
	runner, _ := newTestRunner(t, fake)

	result := runner.RunTurn(context.Background(), nil, "hi", Options{
		Model:              "openai:gpt-5",
		InitialPollDelayMs: 1,
		MaxPollDelayMs:     2,
		OverallTimeoutMs:   5000,
	})
	if result.Status != TurnCompleted {
		t.Fatalf("status = %v, err = %v", result.Status, result.Err)
	}
	if result.Text != "polled answer" {
		t.Fatalf("text = %q", result.Text)
	}
}

func TestRunTurnPollFailurePersistsError(t *testing.T) {
	fake := &fakeDeferredProvider{
		openResult: providerapi.OpenResult{ProviderResponseID: "job-1"},
		pollSeq: []providerapi.PollResult{
			{Status: providerapi.PollFailed, Err: nil},
		},
	}
	runner, st := newTestRunner(t, fake)

	result := runner.RunTurn(context.Background(), nil, "hi", Options{
		Model:              "openai:gpt-5",
		InitialPollDelayMs: 1,
		MaxPollDelayMs:     2,
		OverallTimeoutMs:   5000,
	})
	if result.Status != TurnError {
		t.Fatalf("status = %v, want TurnError", result.Status)
	}
	if result.Err == nil {
		t.Fatal("expected non-nil Err")
	}
	stored, err := st.GetRequest(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored == nil || stored.Status != store.StatusFailed || stored.ErrorJSON == "" {
		t.Fatalf("expected persisted failed status with error_json, got %+v", stored)
	}
}

func TestCheckOrWaitReturnsCompletedForCachedRequest(t *testing.T) {
	fake := &fakeDeferredProvider{
		openResult: providerapi.OpenResult{Completed: true, Result: providerapi.Result{Text: "answer"}},
	}
	runner, _ := newTestRunner(t, fake)

	first := runner.RunTurn(context.Background(), nil, "hi", Options{Model: "openai:gpt-5"})
	if first.Status != TurnCompleted {
		t.Fatalf("setup call failed: %v", first.Err)
	}

	second := runner.CheckOrWait(context.Background(), first.RequestID, 1000)
	if second.Status != TurnCompleted {
		t.Fatalf("status = %v, err = %v", second.Status, second.Err)
	}
	if second.Text != "answer" {
		t.Fatalf("text = %q", second.Text)
	}
}

func TestCheckOrWaitRejectsUnknownRequestID(t *testing.T) {
	runner, _ := newTestRunner(t, &fakeDeferredProvider{})
	result := runner.CheckOrWait(context.Background(), 99999, 1000)
	if result.Status != TurnError {
		t.Fatalf("status = %v, want TurnError", result.Status)
	}
}
