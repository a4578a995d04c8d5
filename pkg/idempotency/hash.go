// Package idempotency computes deterministic stage input hashes and tracks
// stage-completion markers (Idempotency Checker, C7).
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ComputeContextHash canonicalizes fields by sorting map keys before
// JSON-marshaling, then returns the hex SHA-256 of the canonical bytes.
// Standalone, no DB dependency, so it can be called identically from every
// stage to decide whether its relevant inputs changed since the last run.
//
// Field ordering is an explicit Open Question in spec.md section 9: this
// implementation's decision is sorted-key-order JSON, recorded in
// DESIGN.md, and must stay stable across releases since it is part of the
// idempotency contract.
func ComputeContextHash(fields map[string]any) string {
	canonical := canonicalize(fields)
	data, err := json.Marshal(canonical)
	if err != nil {
		// Fields come from internally-constructed maps of primitives and
		// structs; a marshal failure here means a caller passed something
		// unrepresentable (e.g. a channel). Hash the error text so the
		// result is still deterministic rather than panicking mid-stage.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize walks maps and slices, rebuilding maps as ordered key-value
// pairs so json.Marshal's own map-key sort (which Go already guarantees for
// map[string]any) is reinforced recursively for nested maps.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, kv{k, canonicalize(val[k])})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}

type kv struct {
	Key   string
	Value any
}

// orderedMap marshals as a JSON object preserving insertion order, since the
// keys were already sorted by canonicalize.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
