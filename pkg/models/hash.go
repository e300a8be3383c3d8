package models

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ContentHash returns the 32-hex content hash of a normalized value.
// The value is canonicalized (maps sorted by key, zero-value fields dropped
// by the caller's normalization) and hashed so that two values with identical
// semantics always share an identifier.
func ContentHash(normalized map[string]any) string {
	canonical := canonicalize(normalized)
	data, err := json.Marshal(canonical)
	if err != nil {
		// Normalized maps contain only JSON-encodable values; a failure here
		// is a programming error in the caller's normalize().
		panic(fmt.Sprintf("content hash marshal failed: %v", err))
	}
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// canonicalize converts a value into a deterministic form: maps become
// sorted key/value pair lists, slices are canonicalized element-wise, and
// scalars pass through. encoding/json already sorts map keys, but nested
// map[string]any values inside `any` slots need explicit ordering to keep
// the hash stable across representation differences.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			pairs = append(pairs, k, canonicalize(t[k]))
		}
		return pairs
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}
