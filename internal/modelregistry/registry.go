package modelregistry

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Binding is a live provider credential, constructed once at startup.
type Binding struct {
	Provider Provider
	APIKey   string
	BaseURL  string
}

// table is the static, compile-time registry of every descriptor this
// process knows about. Provider bindings (§4.1 "Construction") decide which
// of these are live; the table itself never changes at runtime.
var table = []Descriptor{
	{
		ID: "openai:gpt-5", Provider: ProviderOpenAI, Name: "gpt-5",
		Reasoning: true, StructuredOutput: true, Deferred: true,
		Defaults:     Defaults{ReasoningEffort: ReasoningMedium, Verbosity: VerbosityMedium},
		Capabilities: Capabilities{Speed: "medium", Intelligence: "highest", ContextWindow: 400000, Vision: true},
	},
	{
		ID: "openai:gpt-5-mini", Provider: ProviderOpenAI, Name: "gpt-5-mini",
		Reasoning: true, StructuredOutput: true, Deferred: true,
		Defaults:     Defaults{ReasoningEffort: ReasoningLow, Verbosity: VerbosityMedium},
		Capabilities: Capabilities{Speed: "fast", Intelligence: "high", ContextWindow: 400000, Vision: true},
	},
	{
		ID: "openai:gpt-4o", Provider: ProviderOpenAI, Name: "gpt-4o",
		Reasoning: false, StructuredOutput: true, Deferred: true,
		Capabilities: Capabilities{Speed: "medium", Intelligence: "high", ContextWindow: 128000, Vision: true},
	},
	{
		ID: "openai:o3-mini", Provider: ProviderOpenAI, Name: "o3-mini",
		Reasoning: true, StructuredOutput: true, Deferred: true,
		Defaults:     Defaults{ReasoningEffort: ReasoningMedium},
		Capabilities: Capabilities{Speed: "slow", Intelligence: "highest", ContextWindow: 200000},
	},
	{
		ID: "google:gemini-2.5-pro", Provider: ProviderGoogle, Name: "gemini-2.5-pro",
		Reasoning: true, StructuredOutput: true,
		Capabilities: Capabilities{Speed: "medium", Intelligence: "highest", ContextWindow: 2000000, Vision: true, Audio: true},
	},
	{
		ID: "google:gemini-2.5-flash", Provider: ProviderGoogle, Name: "gemini-2.5-flash",
		Reasoning: false, StructuredOutput: true,
		Capabilities: Capabilities{Speed: "fast", Intelligence: "medium", ContextWindow: 1000000, Vision: true},
	},
	{
		ID: "anthropic:claude-opus-4", Provider: ProviderAnthropic, Name: "claude-opus-4-20250514",
		Reasoning: true, StructuredOutput: false,
		Capabilities: Capabilities{Speed: "slow", Intelligence: "highest", ContextWindow: 200000, Vision: true},
	},
	{
		ID: "anthropic:claude-sonnet-4", Provider: ProviderAnthropic, Name: "claude-sonnet-4-20250514",
		Reasoning: false, StructuredOutput: false,
		Capabilities: Capabilities{Speed: "medium", Intelligence: "high", ContextWindow: 200000, Vision: true},
	},
	{
		ID: "anthropic:claude-haiku-4", Provider: ProviderAnthropic, Name: "claude-haiku-4-20250514",
		Reasoning: false, StructuredOutput: false,
		Capabilities: Capabilities{Speed: "fast", Intelligence: "medium", ContextWindow: 200000},
	},
	{
		ID: "xai:grok-4", Provider: ProviderXAI, Name: "grok-4",
		Reasoning: true, StructuredOutput: true,
		Capabilities: Capabilities{Speed: "medium", Intelligence: "highest", ContextWindow: 256000},
	},
	{
		ID: "xai:grok-4-fast", Provider: ProviderXAI, Name: "grok-4-fast",
		Reasoning: false, StructuredOutput: true,
		Capabilities: Capabilities{Speed: "fast", Intelligence: "medium", ContextWindow: 256000},
	},
}

// Registry resolves model ids to descriptors and tracks live provider bindings.
type Registry struct {
	descriptors map[string]Descriptor
	bindings    map[Provider]Binding
}

// New builds a registry from the static table and the supplied bindings.
// A descriptor is live iff its provider has a non-empty-key binding.
func New(bindings map[Provider]Binding) *Registry {
	descriptors := make(map[string]Descriptor, len(table))
	for _, d := range table {
		descriptors[d.ID] = d
	}
	filtered := make(map[Provider]Binding, len(bindings))
	for p, b := range bindings {
		if strings.TrimSpace(b.APIKey) != "" {
			filtered[p] = b
		}
	}
	return &Registry{descriptors: descriptors, bindings: filtered}
}

// BindingsFromEnv reads provider credentials from the environment (§6).
func BindingsFromEnv() map[Provider]Binding {
	firstNonEmpty := func(names ...string) string {
		for _, n := range names {
			if v := strings.TrimSpace(os.Getenv(n)); v != "" {
				return v
			}
		}
		return ""
	}
	out := map[Provider]Binding{
		ProviderOpenAI:    {Provider: ProviderOpenAI, APIKey: firstNonEmpty("OPENAI_API_KEY")},
		ProviderGoogle:    {Provider: ProviderGoogle, APIKey: firstNonEmpty("GOOGLE_API_KEY", "GEMINI_API_KEY")},
		ProviderAnthropic: {Provider: ProviderAnthropic, APIKey: firstNonEmpty("ANTHROPIC_API_KEY")},
		ProviderXAI:       {Provider: ProviderXAI, APIKey: firstNonEmpty("XAI_API_KEY", "GROK_API_KEY")},
	}
	return out
}

// NotFoundError is returned by Resolve when the id is not registered.
type NotFoundError struct {
	ID        string
	Available []string
	Suggested []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model not found: %q", e.ID)
}

// Resolve looks up a model id, returning a *NotFoundError (with available and
// suggested ids) when it does not resolve to a live model.
func (r *Registry) Resolve(id string) (Descriptor, error) {
	d, ok := r.descriptors[id]
	if ok && r.live(d) {
		return d, nil
	}
	provider, _, parseErr := ParseID(id)
	available := r.List()
	var suggested []string
	if parseErr == nil {
		prefix := string(provider) + ":"
		for _, a := range available {
			if strings.HasPrefix(a, prefix) {
				suggested = append(suggested, a)
			}
		}
	}
	return Descriptor{}, &NotFoundError{ID: id, Available: available, Suggested: suggested}
}

func (r *Registry) live(d Descriptor) bool {
	_, ok := r.bindings[d.Provider]
	return ok
}

// List returns every live model id, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id, d := range r.descriptors {
		if r.live(d) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// DetailedEntry is one row of the "models" tool's detailed listing.
type DetailedEntry struct {
	ID           string
	Provider     Provider
	Capabilities Capabilities
	Configured   bool
}

// ListDetailed returns every registered descriptor (live or not) with its
// configured status, for the "models" tool's detailed view.
func (r *Registry) ListDetailed() []DetailedEntry {
	out := make([]DetailedEntry, 0, len(r.descriptors))
	for _, d := range table {
		out = append(out, DetailedEntry{
			ID:           d.ID,
			Provider:     d.Provider,
			Capabilities: d.Capabilities,
			Configured:   r.live(d),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Configured reports whether a provider binding exists.
func (r *Registry) Configured(p Provider) bool {
	_, ok := r.bindings[p]
	return ok
}

// Binding returns the provider's binding, if live.
func (r *Registry) Binding(p Provider) (Binding, bool) {
	b, ok := r.bindings[p]
	return b, ok
}

// AllProviders lists every provider this registry table ever mentions, used
// by the "models" tool's env-var quick-setup hints regardless of which are
// currently configured.
func AllProviders() []Provider {
	return []Provider{ProviderOpenAI, ProviderGoogle, ProviderAnthropic, ProviderXAI}
}

// EnvVarHint returns the environment variable name(s) a provider reads,
// for the "models" tool's quickSetup / apiKey status strings.
func EnvVarHint(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY or GEMINI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderXAI:
		return "XAI_API_KEY or GROK_API_KEY"
	default:
		return ""
	}
}
