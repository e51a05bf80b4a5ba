package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON serializes v with object keys in lexicographic order at
// every depth. encoding/json already sorts map[string]any keys on marshal;
// round-tripping through an untyped value extends that sorting to structs
// and nested structs regardless of their field declaration order.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// InputHash computes sha256(canonical_json({model, input, params})), the
// Request dedup key (spec §3 "Input Hash"). Stable across key ordering:
// hash({a:1,b:2}) == hash({b:2,a:1}).
func InputHash(model string, input any, params any) (string, error) {
	canon, err := CanonicalJSON(map[string]any{
		"model":  model,
		"input":  input,
		"params": params,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
