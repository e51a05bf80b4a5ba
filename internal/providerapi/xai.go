package providerapi

// newXAIProvider reuses the OpenAI-compatible client against xAI's endpoint.
// Grounded on internal/agent/providers/openrouter.go, which does the
// identical thing for OpenRouter: xAI exposes an OpenAI-compatible
// chat-completions API, so the same openaiProvider client serves both,
// differing only in base URL and default model. xAI has no dedicated Go SDK
// in this corpus; the OpenAI-compatible route is the grounded choice over
// hand-rolling a bespoke client.
func newXAIProvider(apiKey string) *openaiProvider {
	return newOpenAIProvider(apiKey, "https://api.x.ai/v1", "grok-4")
}
