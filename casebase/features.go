package casebase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/memflow/types"
)

// Amount bucket boundaries for the feature extractor.
const (
	amountHighThreshold   = 10000.0
	amountMediumThreshold = 1000.0
)

// ExtractFeatureWeights derives the simple numeric features used for case
// matching from a context payload. Amounts are bucketed rather than kept
// raw so similar magnitudes match.
func ExtractFeatureWeights(ctx map[string]any) map[string]float64 {
	features := make(map[string]float64)

	if v, ok := stringField(ctx, "domain"); ok {
		features["domain:"+v] = 1.0
	}
	if v, ok := stringField(ctx, "risk_level"); ok {
		features["risk:"+v] = 1.0
	}
	if v, ok := stringField(ctx, "transaction_type"); ok {
		features["transaction:"+v] = 0.8
	}
	if amount, ok := numericField(ctx, "amount"); ok {
		features["amount:"+amountBucket(amount)] = 0.6
	}
	return features
}

func amountBucket(amount float64) string {
	switch {
	case amount > amountHighThreshold:
		return "high"
	case amount > amountMediumThreshold:
		return "medium"
	default:
		return "low"
	}
}

func stringField(ctx map[string]any, key string) (string, bool) {
	v, ok := ctx[key]
	if !ok {
		return "", false
	}
	s := strings.ToLower(fmt.Sprintf("%v", v))
	if s == "" {
		return "", false
	}
	return s, true
}

func numericField(ctx map[string]any, key string) (float64, bool) {
	switch v := ctx[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// caseText composes the text representation embedded for a case: title,
// description, the key context and decision fields, and the classification
// metadata.
func caseText(c *types.ComplianceCase) string {
	var parts []string
	parts = append(parts, c.Title)
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	for _, key := range []string{"domain", "risk_level", "transaction_type", "summary"} {
		if v, ok := stringField(c.Context, key); ok {
			parts = append(parts, v)
		}
	}
	if v, ok := stringField(c.Decision, "action"); ok {
		parts = append(parts, v)
	}
	if c.Domain != "" {
		parts = append(parts, c.Domain)
	}
	if c.RiskLevel != "" {
		parts = append(parts, c.RiskLevel)
	}
	if len(c.Tags) > 0 {
		parts = append(parts, strings.Join(c.Tags, " "))
	}
	return strings.Join(parts, " ")
}

// decisionKey canonicalizes a decision payload for vote grouping. The
// "action" field wins when present; otherwise the whole payload is folded.
func decisionKey(decision map[string]any) string {
	if len(decision) == 0 {
		return "none"
	}
	if action, ok := stringField(decision, "action"); ok {
		return action
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
