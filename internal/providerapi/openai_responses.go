package providerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelbridge/gateway/internal/rpcerr"
)

// openaiResponsesProvider adds OpenAI's deferred-completion "responses"
// endpoint (background:true, poll by id) on top of the plain chat-completions
// provider. No Go SDK in this corpus (sashabaranov/go-openai) models the
// background/poll surface of the Responses API, so this one narrow piece
// goes directly over net/http — the single stdlib-only exception recorded in
// DESIGN.md — while GenerateText/GenerateStructured (the synchronous half of
// the interface) simply delegate to the chat-completions client.
type openaiResponsesProvider struct {
	*openaiProvider
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func newOpenAIResponsesProvider(apiKey string) *openaiResponsesProvider {
	return &openaiResponsesProvider{
		openaiProvider: newOpenAIProvider(apiKey, "", "gpt-5"),
		apiKey:         apiKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        "https://api.openai.com/v1/responses",
	}
}

type responsesCreateRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Background bool   `json:"background"`
}

type responsesAPIObject struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued | in_progress | completed | failed | cancelled | incomplete
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
	OutputText string `json:"output_text"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Open starts a background response job (spec §4.4 step 7).
func (p *openaiResponsesProvider) Open(ctx context.Context, model, prompt string, opts Options) (OpenResult, error) {
	body, err := json.Marshal(responsesCreateRequest{
		Model:      p.modelOrDefault(model),
		Input:      prompt,
		Background: true,
	})
	if err != nil {
		return OpenResult{}, rpcerr.Wrap(rpcerr.KindInternalError, err, "encode responses request")
	}

	obj, err := p.do(ctx, http.MethodPost, p.baseURL, body)
	if err != nil {
		return OpenResult{}, err
	}

	if obj.Status == "completed" {
		return OpenResult{
			Completed: true,
			Result: Result{
				Text:  obj.OutputText,
				Usage: Usage{InputTokens: obj.Usage.InputTokens, OutputTokens: obj.Usage.OutputTokens},
			},
		}, nil
	}
	return OpenResult{ProviderResponseID: obj.ID}, nil
}

// Poll checks a background job's status (spec §4.4 step 8).
func (p *openaiResponsesProvider) Poll(ctx context.Context, providerResponseID string) (PollResult, error) {
	obj, err := p.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s", p.baseURL, providerResponseID), nil)
	if err != nil {
		return PollResult{}, err
	}

	switch obj.Status {
	case "completed":
		return PollResult{
			Status: PollCompleted,
			Result: Result{
				Text:  obj.OutputText,
				Usage: Usage{InputTokens: obj.Usage.InputTokens, OutputTokens: obj.Usage.OutputTokens},
			},
		}, nil
	case "failed":
		msg := "openai responses: job failed"
		if obj.Error != nil && obj.Error.Message != "" {
			msg = obj.Error.Message
		}
		return PollResult{Status: PollFailed, Err: rpcerr.New(rpcerr.KindProviderError, msg)}, nil
	case "cancelled":
		return PollResult{Status: PollCancelled, Err: rpcerr.New(rpcerr.KindProviderError, "openai responses: job cancelled")}, nil
	case "incomplete":
		return PollResult{Status: PollExpired, Err: rpcerr.New(rpcerr.KindProviderError, "openai responses: job incomplete")}, nil
	case "in_progress":
		return PollResult{Status: PollInProgress}, nil
	default:
		return PollResult{Status: PollQueued}, nil
	}
}

func (p *openaiResponsesProvider) do(ctx context.Context, method, url string, body []byte) (*responsesAPIObject, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindInternalError, err, "build responses request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, rpcerr.FromError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindProviderError, err, "read responses body")
	}

	if resp.StatusCode >= 400 {
		retryAfterMs, _ := rpcerr.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, rpcerr.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("openai responses: %s", string(data)), retryAfterMs)
	}

	var obj responsesAPIObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindProviderError, err, "decode responses body")
	}
	return &obj, nil
}
