package manager

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/embedding"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// ConsolidationStrategy selects how aged entries are consolidated.
type ConsolidationStrategy string

const (
	MergeSimilar     ConsolidationStrategy = "merge_similar"
	ExtractPatterns  ConsolidationStrategy = "extract_patterns"
	CompressDetails  ConsolidationStrategy = "compress_details"
	PromoteImportant ConsolidationStrategy = "promote_important"
)

// mergeSimilarityThreshold is the similarity at or above which two aged
// entries merge into one.
const mergeSimilarityThreshold = 0.85

// ConsolidationResult summarizes one consolidation run.
type ConsolidationResult struct {
	Strategy  ConsolidationStrategy `json:"strategy"`
	Examined  int                   `json:"examined"`
	Merged    int                   `json:"merged"`
	Promoted  int                   `json:"promoted"`
	Compacted int                   `json:"compacted"`
	Patterns  []ExtractedPattern    `json:"patterns,omitempty"`
}

// ExtractedPattern is one statistically significant regularity found during
// pattern extraction, with a 95% normal-approximation confidence interval
// on its frequency.
type ExtractedPattern struct {
	Kind        string  `json:"kind"`
	Value       string  `json:"value"`
	Occurrences int     `json:"occurrences"`
	Frequency   float64 `json:"frequency"`
	CILow       float64 `json:"ci_low"`
	CIHigh      float64 `json:"ci_high"`
}

// Consolidate runs one strategy over all entries older than maxAge.
func (m *Manager) Consolidate(ctx context.Context, strategy ConsolidationStrategy, maxAge time.Duration) (*ConsolidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.config.Now()
	var aged []*types.MemoryEntry
	for _, e := range m.store.Snapshot() {
		if e.Age(now) > maxAge {
			aged = append(aged, e)
		}
	}

	result := &ConsolidationResult{Strategy: strategy, Examined: len(aged)}
	var err error
	switch strategy {
	case MergeSimilar:
		err = m.mergeSimilar(ctx, aged, now, result)
	case ExtractPatterns:
		result.Patterns = extractPatterns(aged)
	case CompressDetails:
		err = m.compressDetails(ctx, aged, now, result)
	case PromoteImportant:
		err = m.promoteImportant(ctx, aged, now, result)
	default:
		return nil, types.NewErrorf(types.ErrConfiguration, "unknown consolidation strategy %q", strategy)
	}
	if err != nil {
		return nil, err
	}

	m.collector.RecordConsolidation(string(strategy), result.Merged+result.Promoted+result.Compacted)
	m.logger.Debug("consolidation pass finished",
		zap.String("strategy", string(strategy)),
		zap.Int("examined", result.Examined),
		zap.Int("merged", result.Merged),
		zap.Int("promoted", result.Promoted),
		zap.Int("compacted", result.Compacted),
		zap.Int("patterns", len(result.Patterns)))
	return result, nil
}

// mergeSimilar folds near-duplicate aged entries into representatives. Each
// entry is compared against the representatives accepted so far; at or
// above the threshold the representative absorbs it: topics become the
// union, access counts sum, importance takes the max, timestamps take the
// most recent.
func (m *Manager) mergeSimilar(ctx context.Context, aged []*types.MemoryEntry, now time.Time, result *ConsolidationResult) error {
	// Stable order so repeated passes see the same representatives.
	sort.Slice(aged, func(i, j int) bool {
		if !aged[i].CreatedAt.Equal(aged[j].CreatedAt) {
			return aged[i].CreatedAt.Before(aged[j].CreatedAt)
		}
		return aged[i].ID < aged[j].ID
	})

	var reps []*types.MemoryEntry
	touched := make(map[string]bool)

	for _, e := range aged {
		merged := false
		for _, rep := range reps {
			if entryPairSimilarity(rep, e) < mergeSimilarityThreshold {
				continue
			}
			absorb(rep, e, now)
			touched[rep.ID] = true
			if err := m.store.Remove(ctx, e.ID); err != nil && !types.IsNotFound(err) {
				return err
			}
			result.Merged++
			merged = true
			break
		}
		if !merged {
			reps = append(reps, e)
		}
	}

	for _, rep := range reps {
		if !touched[rep.ID] {
			continue
		}
		if err := m.store.UpdateEntry(ctx, rep); err != nil {
			return err
		}
	}
	return nil
}

// entryPairSimilarity compares two entries: embedding cosine when both
// vectors are usable, topic Jaccard otherwise.
func entryPairSimilarity(a, b *types.MemoryEntry) float64 {
	if len(a.Embedding) > 0 && !embedding.IsZero(a.Embedding) &&
		len(b.Embedding) > 0 && !embedding.IsZero(b.Embedding) {
		return memory.CosineSimilarity(a.Embedding, b.Embedding)
	}
	return memory.JaccardSimilarity(a.Topics, b.Topics)
}

// absorb merges source into target.
func absorb(target, source *types.MemoryEntry, now time.Time) {
	target.Topics = unionStrings(target.Topics, source.Topics)
	target.ComplianceTags = unionStrings(target.ComplianceTags, source.ComplianceTags)
	target.AccessCount += source.AccessCount
	if source.Importance > target.Importance {
		target.Importance = source.Importance
	}
	if source.CreatedAt.After(target.CreatedAt) {
		target.CreatedAt = source.CreatedAt
	}
	if source.LastAccessedAt.After(target.LastAccessedAt) {
		target.LastAccessedAt = source.LastAccessedAt
	}
	target.Consolidated = true
	ts := now
	target.ConsolidatedAt = &ts
	source.ParentID = target.ID
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// extractPatterns runs frequency analysis over decisions, outcomes,
// decision-to-outcome pairs, topic importance, and hour-of-day activity,
// keeping only regularities with at least 3 occurrences and more than 5%
// frequency.
func extractPatterns(aged []*types.MemoryEntry) []ExtractedPattern {
	if len(aged) == 0 {
		return nil
	}

	decisions := make(map[string]int)
	outcomes := make(map[string]int)
	pairs := make(map[string]int)
	topicImportance := make(map[string]int)
	hours := make(map[string]int)

	for _, e := range aged {
		if len(e.Decision) > 0 {
			d := payloadKey(e.Decision)
			decisions[d]++
			if len(e.Outcome) > 0 {
				pairs[d+"->"+payloadKey(e.Outcome)]++
			}
		}
		if len(e.Outcome) > 0 {
			outcomes[payloadKey(e.Outcome)]++
		}
		if e.Importance >= types.ImportanceHigh {
			for _, t := range e.Topics {
				topicImportance[t]++
			}
		}
		hours[fmt.Sprintf("%02d", e.CreatedAt.Hour())]++
	}

	n := len(aged)
	var patterns []ExtractedPattern
	collect := func(kind string, counts map[string]int) {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c := counts[k]
			freq := float64(c) / float64(n)
			if c < 3 || freq <= 0.05 {
				continue
			}
			margin := 1.96 * math.Sqrt(freq*(1-freq)/float64(n))
			patterns = append(patterns, ExtractedPattern{
				Kind:        kind,
				Value:       k,
				Occurrences: c,
				Frequency:   freq,
				CILow:       max(0, freq-margin),
				CIHigh:      min(1, freq+margin),
			})
		}
	}

	collect("decision", decisions)
	collect("outcome", outcomes)
	collect("decision_outcome", pairs)
	collect("important_topic", topicImportance)
	collect("active_hour", hours)
	return patterns
}

func payloadKey(m map[string]any) string {
	if action, ok := m["action"]; ok {
		return fmt.Sprintf("%v", action)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return fmt.Sprintf("%v", parts)
}

// Context fields stripped and size caps applied by compress-details.
var verboseContextKeys = []string{"debug", "verbose", "trace", "raw", "stack"}

const (
	maxCompressedString = 512
	maxCompressedSlice  = 16

	// embeddingCompressionAge is the age past which stored embeddings are
	// halved in dimensionality.
	embeddingCompressionAge = 30 * 24 * time.Hour
)

// compressDetails strips verbose fields, truncates oversized values, and
// halves the embedding dimensionality of entries past the compression age.
func (m *Manager) compressDetails(ctx context.Context, aged []*types.MemoryEntry, now time.Time, result *ConsolidationResult) error {
	for _, e := range aged {
		changed := false
		for _, key := range verboseContextKeys {
			if _, ok := e.Context[key]; ok {
				delete(e.Context, key)
				changed = true
			}
		}
		for k, v := range e.Context {
			switch val := v.(type) {
			case string:
				if len(val) > maxCompressedString {
					e.Context[k] = val[:maxCompressedString]
					changed = true
				}
			case []any:
				if len(val) > maxCompressedSlice {
					e.Context[k] = val[:maxCompressedSlice]
					changed = true
				}
			}
		}
		if e.Age(now) > embeddingCompressionAge && len(e.Embedding) > 1 {
			e.Embedding = halveEmbedding(e.Embedding)
			changed = true
		}
		if !changed {
			continue
		}
		if err := m.store.UpdateEntry(ctx, e); err != nil {
			return err
		}
		result.Compacted++
	}
	return nil
}

// halveEmbedding averages adjacent pairs, shrinking the vector to half its
// length.
func halveEmbedding(v []float64) []float64 {
	out := make([]float64, 0, (len(v)+1)/2)
	for i := 0; i < len(v); i += 2 {
		if i+1 < len(v) {
			out = append(out, (v[i]+v[i+1])/2)
		} else {
			out = append(out, v[i])
		}
	}
	return out
}

// promoteImportant advances entries to higher tiers per the tiering policy.
func (m *Manager) promoteImportant(ctx context.Context, aged []*types.MemoryEntry, now time.Time, result *ConsolidationResult) error {
	for _, e := range aged {
		target := TierFor(e, now)
		if target == e.Tier {
			continue
		}
		e.Tier = target
		if err := m.store.UpdateEntry(ctx, e); err != nil {
			return err
		}
		result.Promoted++
	}
	return nil
}
