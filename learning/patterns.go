package learning

import (
	"fmt"
	"sort"
	"strings"
)

// stateKeys are the context fields composing the canonical state string.
var stateKeys = []string{"domain", "risk_level", "transaction_type"}

// StateKey builds the canonical Q-learning state string from a context
// payload. Missing fields render as "unknown" so the key shape is stable.
func StateKey(ctx map[string]any) string {
	parts := make([]string, 0, len(stateKeys))
	for _, k := range stateKeys {
		v := "unknown"
		if raw, ok := ctx[k]; ok {
			v = strings.ToLower(fmt.Sprintf("%v", raw))
		}
		parts = append(parts, k+":"+v)
	}
	return strings.Join(parts, "|")
}

// ActionKey derives the canonical action string from a decision payload.
// The "action" field wins when present; otherwise all fields are folded in
// sorted order so equal decisions always map to equal actions.
func ActionKey(decision map[string]any) string {
	if len(decision) == 0 {
		return "none"
	}
	if action, ok := decision["action"]; ok {
		return strings.ToLower(fmt.Sprintf("%v", action))
	}

	keys := make([]string, 0, len(decision))
	for k := range decision {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, decision[k]))
	}
	return strings.ToLower(strings.Join(parts, ","))
}

// contextFeatures extracts the weighted string features used for pattern
// matching. Signature fields carry more weight than incidental ones.
func contextFeatures(ctx map[string]any) map[string]float64 {
	features := make(map[string]float64)
	for _, k := range stateKeys {
		if raw, ok := ctx[k]; ok {
			features[k+":"+strings.ToLower(fmt.Sprintf("%v", raw))] = 1.0
		}
	}
	for k, raw := range ctx {
		if isStateKey(k) {
			continue
		}
		switch raw.(type) {
		case string, bool, int, int64, float64:
			features[k+":"+strings.ToLower(fmt.Sprintf("%v", raw))] = 0.5
		}
	}
	return features
}

func isStateKey(k string) bool {
	for _, s := range stateKeys {
		if s == k {
			return true
		}
	}
	return false
}

// ContextSimilarity scores how well a context matches a pattern's context
// signature: 1.0 on an exact signature match, otherwise the weighted overlap
// of extracted features.
func ContextSimilarity(ctx map[string]any, signature string) float64 {
	if StateKey(ctx) == signature {
		return 1.0
	}

	sigFeatures := signatureFeatures(signature)
	if len(sigFeatures) == 0 {
		return 0
	}
	ctxFeatures := contextFeatures(ctx)

	var matched, total float64
	for f, w := range sigFeatures {
		total += w
		if _, ok := ctxFeatures[f]; ok {
			matched += w
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// signatureFeatures decomposes a canonical signature back into weighted
// features, skipping unknown placeholders.
func signatureFeatures(signature string) map[string]float64 {
	features := make(map[string]float64)
	for _, part := range strings.Split(signature, "|") {
		if part == "" || strings.HasSuffix(part, ":unknown") {
			continue
		}
		features[part] = 1.0
	}
	return features
}
