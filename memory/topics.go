package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/memflow/types"
)

// topicKeywords are the domain keywords scanned out of serialized context.
var topicKeywords = []string{
	"aml", "kyc", "fraud", "sanctions", "audit", "compliance", "risk",
	"transaction", "payment", "transfer", "onboarding", "escalation",
	"regulatory", "legal", "privacy", "gdpr", "investigation",
}

// complianceTagKeywords map context keywords to compliance tags.
var complianceTagKeywords = map[string]string{
	"regulatory":    "regulatory",
	"legal":         "legal",
	"gdpr":          "privacy",
	"privacy":       "privacy",
	"audit":         "audit",
	"sanctions":     "sanctions",
	"investigation": "investigation",
}

// serializeContext renders a context payload as a stable lowercase string
// for keyword scanning.
func serializeContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		switch v := ctx[k].(type) {
		case string:
			b.WriteString(v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				b.WriteString(fmt.Sprintf("%v", v))
			} else {
				b.Write(data)
			}
		}
		b.WriteByte(' ')
	}
	return strings.ToLower(b.String())
}

// ExtractTopics scans serialized context and free text for known domain
// keywords.
func ExtractTopics(ctx map[string]any, extra ...string) []string {
	text := serializeContext(ctx)
	for _, e := range extra {
		text += " " + strings.ToLower(e)
	}
	return scanTopics(text)
}

// ExtractTopicsFromText scans free text for known domain keywords.
func ExtractTopicsFromText(text string) []string {
	return scanTopics(strings.ToLower(text))
}

func scanTopics(text string) []string {
	var topics []string
	for _, kw := range topicKeywords {
		if strings.Contains(text, kw) {
			topics = append(topics, kw)
		}
	}
	return topics
}

// ExtractComplianceTags derives compliance tags from serialized context.
func ExtractComplianceTags(ctx map[string]any) []string {
	text := serializeContext(ctx)
	seen := make(map[string]struct{})
	var tags []string
	for kw, tag := range complianceTagKeywords {
		if !strings.Contains(text, kw) {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// DeriveImportance assigns the creation-time importance level from context
// keywords. It is computed once at ingestion and never automatically
// recomputed.
func DeriveImportance(ctx map[string]any) types.ImportanceLevel {
	text := serializeContext(ctx)
	switch {
	case containsAny(text, "critical", "regulatory", "legal", "sanctions"):
		return types.ImportanceCritical
	case containsAny(text, "risk", "compliance", "escalat", "fraud"):
		return types.ImportanceHigh
	case containsAny(text, "decision", "transaction", "payment"):
		return types.ImportanceMedium
	default:
		return types.ImportanceLow
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Summarize produces a short human-readable summary of an entry from its
// key context fields.
func Summarize(e *types.MemoryEntry) string {
	parts := []string{fmt.Sprintf("%s event for agent %s", e.Kind, e.AgentID)}

	if domain, ok := e.Context["domain"].(string); ok && domain != "" {
		parts = append(parts, "domain "+domain)
	}
	if risk, ok := e.Context["risk_level"].(string); ok && risk != "" {
		parts = append(parts, "risk "+risk)
	}
	if len(e.Topics) > 0 {
		parts = append(parts, "topics: "+strings.Join(e.Topics, ", "))
	}
	return strings.Join(parts, "; ")
}

// EmbeddingText composes the text representation sent to the embedding
// provider for an entry.
func EmbeddingText(e *types.MemoryEntry) string {
	var b strings.Builder
	b.WriteString(e.Summary)
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(serializeContext(e.Context))
	if len(e.Topics) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(e.Topics, " "))
	}
	return b.String()
}
