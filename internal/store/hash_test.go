package store

import "testing"

func TestCanonicalHashStability(t *testing.T) {
	a, err := InputHash("openai:gpt-5", map[string]any{"a": 1, "b": 2}, nil)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := InputHash("openai:gpt-5", map[string]any{"b": 2, "a": 1}, nil)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a != b {
		t.Fatalf("hash({a:1,b:2}) = %s, hash({b:2,a:1}) = %s, want equal", a, b)
	}
}

func TestCanonicalHashSensitiveToValues(t *testing.T) {
	a, _ := InputHash("openai:gpt-5", "hello", nil)
	b, _ := InputHash("openai:gpt-5", "goodbye", nil)
	if a == b {
		t.Fatal("expected different hashes for different inputs")
	}
}

func TestCanonicalHashNestedKeyOrder(t *testing.T) {
	a, err := InputHash("x", map[string]any{"outer": map[string]any{"z": 1, "y": 2}}, map[string]any{"temp": 0.5})
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := InputHash("x", map[string]any{"outer": map[string]any{"y": 2, "z": 1}}, map[string]any{"temp": 0.5})
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a != b {
		t.Fatal("expected nested key order to not affect the hash")
	}
}
