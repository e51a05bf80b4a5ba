package modelregistry

import "testing"

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "openai:gpt-5", false},
		{"missing colon", "gpt-5", true},
		{"empty provider", ":gpt-5", true},
		{"empty name", "openai:", true},
		{"empty string", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID(%q) err=%v, wantErr=%v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  ModelClass
	}{
		{"fast mini wins over reasoning", "gpt-5-mini", ClassFast},
		{"fast flash", "gemini-2.5-flash", ClassFast},
		{"o-series mini is fast", "o3-mini-high", ClassFast}, // "mini" still wins: fast checked first
		{"reasoning gpt-5", "gpt-5", ClassReasoning},
		{"standard sonnet", "claude-sonnet-4-20250514", ClassStandard},
		{"default unknown", "some-custom-model", ClassDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.model); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestRegistryResolve(t *testing.T) {
	r := New(map[Provider]Binding{
		ProviderOpenAI: {Provider: ProviderOpenAI, APIKey: "test-key"},
	})

	d, err := r.Resolve("openai:gpt-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != "openai:gpt-5" {
		t.Errorf("got id %q", d.ID)
	}

	if _, err := r.Resolve("anthropic:claude-opus-4"); err == nil {
		t.Fatal("expected not-found for unconfigured provider")
	}

	_, err = r.Resolve("invalid:model")
	nf, ok := err.(*NotFoundError)
	if !ok {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if len(nf.Available) == 0 {
		t.Error("expected available ids to be populated")
	}
}

func TestRegistryConfiguredAndList(t *testing.T) {
	r := New(map[Provider]Binding{
		ProviderOpenAI: {Provider: ProviderOpenAI, APIKey: "k"},
		ProviderGoogle: {Provider: ProviderGoogle, APIKey: ""},
	})

	if !r.Configured(ProviderOpenAI) {
		t.Error("expected openai configured")
	}
	if r.Configured(ProviderGoogle) {
		t.Error("expected google unconfigured (empty key)")
	}

	ids := r.List()
	for _, id := range ids {
		p, _, _ := ParseID(id)
		if p != ProviderOpenAI {
			t.Errorf("List() returned non-live id %q", id)
		}
	}

	detailed := r.ListDetailed()
	if len(detailed) != len(table) {
		t.Errorf("ListDetailed() len=%d, want %d", len(detailed), len(table))
	}
}
