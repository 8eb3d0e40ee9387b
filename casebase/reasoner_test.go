package casebase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func newTestReasoner(t *testing.T) (*Reasoner, time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultReasonerConfig()
	cfg.Capacity = 100
	cfg.EmbeddingsEnabled = false
	cfg.PersistenceEnabled = false
	cfg.EmbeddingDimensions = 4
	cfg.Now = func() time.Time { return now }
	return NewReasoner(cfg, nil, nil, nil, nil), now
}

func testCase(id, domain, risk, action string) *types.ComplianceCase {
	return &types.ComplianceCase{
		CaseID:       id,
		Title:        "case " + id,
		Context:      map[string]any{"domain": domain, "risk_level": risk},
		Decision:     map[string]any{"action": action},
		Domain:       domain,
		RiskLevel:    risk,
		Tags:         []string{domain, risk},
		SuccessScore: 0.8,
	}
}

func TestAddCaseValidation(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	err := r.AddCase(ctx, &types.ComplianceCase{Title: "t", Context: map[string]any{"a": 1}, Decision: map[string]any{"a": 1}})
	require.True(t, types.IsValidation(err))

	err = r.AddCase(ctx, &types.ComplianceCase{CaseID: "c1", Context: map[string]any{"a": 1}, Decision: map[string]any{"a": 1}})
	require.True(t, types.IsValidation(err))

	err = r.AddCase(ctx, &types.ComplianceCase{CaseID: "c1", Title: "t", Decision: map[string]any{"a": 1}})
	require.True(t, types.IsValidation(err))

	err = r.AddCase(ctx, &types.ComplianceCase{CaseID: "c1", Title: "t", Context: map[string]any{"a": 1}})
	require.True(t, types.IsValidation(err))
}

func TestAddCaseDerivesMetadata(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	c := &types.ComplianceCase{
		CaseID:   "c1",
		Title:    "suspicious transfer",
		Context:  map[string]any{"domain": "aml", "risk_level": "high", "amount": 50000.0},
		Decision: map[string]any{"action": "escalate"},
	}
	require.NoError(t, r.AddCase(ctx, c))

	got, err := r.GetCase(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "aml", got.Domain)
	require.Equal(t, "high", got.RiskLevel)
	require.Equal(t, 0.5, got.SuccessScore)
	require.Contains(t, got.Tags, "aml")
	require.Equal(t, 1.0, got.FeatureWeights["domain:aml"])
	require.Equal(t, 0.6, got.FeatureWeights["amount:high"])
	require.Len(t, got.Embedding, 4)

	require.Contains(t, r.CasesByDomain("aml"), "c1")
	require.Contains(t, r.CasesByTag("aml"), "c1")
}

func TestAddCaseFromMemoryEntry(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	score := 0.6
	entry := &types.MemoryEntry{
		ID:             "e1",
		ConversationID: "conv-1",
		AgentID:        "agent-1",
		Context:        map[string]any{"domain": "aml", "risk_level": "high"},
		Decision:       map[string]any{"action": "escalate"},
		Summary:        "escalated aml alert",
		Topics:         []string{"aml"},
		FeedbackScore:  &score,
	}
	c, err := r.AddCaseFromMemoryEntry(ctx, entry)
	require.NoError(t, err)
	require.NotEmpty(t, c.CaseID)
	require.Equal(t, "escalated aml alert", c.Title)
	require.InDelta(t, 0.8, c.SuccessScore, 1e-9)
	require.Equal(t, 1, r.Len())

	entry.Decision = nil
	_, err = r.AddCaseFromMemoryEntry(ctx, entry)
	require.True(t, types.IsValidation(err))
}

func TestRetrieveSimilarCases(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	require.NoError(t, r.AddCase(ctx, testCase("c1", "aml", "high", "escalate")))
	require.NoError(t, r.AddCase(ctx, testCase("c2", "aml", "low", "approve")))
	require.NoError(t, r.AddCase(ctx, testCase("c3", "kyc", "high", "review")))

	results, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{
		Domain:     "aml",
		RiskLevel:  "high",
		MaxResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "c1", results[0].Case.CaseID)
	// Domain and risk filters both matched, so both weights contribute.
	require.GreaterOrEqual(t, results[0].Similarity, 0.5)
	require.InDelta(t, results[0].Similarity*0.8, results[0].Confidence, 1e-9)
}

func TestRetrieveSimilarCasesBlend(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	require.NoError(t, r.AddCase(ctx, testCase("c1", "aml", "high", "escalate")))

	// Context-driven query without explicit filters still contributes the
	// domain and risk weights plus full tag overlap.
	results, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{
		Context:      map[string]any{"domain": "aml", "risk_level": "high"},
		RequiredTags: []string{"aml", "high"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 0.3+0.2+0.3, results[0].Similarity, 1e-9)
}

func TestRetrieveSimilarCasesMinSimilarity(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	require.NoError(t, r.AddCase(ctx, testCase("c1", "aml", "high", "escalate")))

	results, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{
		Context:       map[string]any{"domain": "kyc"},
		MinSimilarity: 0.4,
	})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRetrieveSimilarCasesMaxAge(t *testing.T) {
	t.Parallel()
	r, now := newTestReasoner(t)
	ctx := context.Background()

	old := testCase("old", "aml", "high", "escalate")
	old.Timestamp = now.Add(-100 * 24 * time.Hour)
	require.NoError(t, r.AddCase(ctx, old))
	require.NoError(t, r.AddCase(ctx, testCase("fresh", "aml", "high", "escalate")))

	results, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{
		Domain: "aml",
		MaxAge: 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "fresh", results[0].Case.CaseID)
}

func TestAdaptCasesToScenario(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	escalate := testCase("c1", "aml", "high", "escalate")
	escalate.SuccessScore = 0.9
	approve := testCase("c2", "aml", "high", "approve")
	approve.SuccessScore = 0.2
	require.NoError(t, r.AddCase(ctx, escalate))
	require.NoError(t, r.AddCase(ctx, approve))

	retrieved, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{Domain: "aml", RiskLevel: "high"})
	require.NoError(t, err)
	require.Len(t, retrieved, 2)

	adapted, err := r.AdaptCasesToScenario(ctx, types.CaseQuery{Domain: "aml"}, retrieved)
	require.NoError(t, err)
	require.Equal(t, "escalate", adapted.Decision["action"])
	require.Equal(t, []string{"c1"}, adapted.SupportingCases)
	require.Greater(t, adapted.Confidence, 0.0)
	require.NotEmpty(t, adapted.FeatureContributions)

	var simSum, confSum float64
	for _, sc := range retrieved {
		simSum += sc.Similarity
		confSum += sc.Confidence
	}
	want := 0.7*simSum/2 + 0.3*confSum/2
	require.InDelta(t, want, adapted.Confidence, 1e-9)

	_, err = r.AdaptCasesToScenario(ctx, types.CaseQuery{}, nil)
	require.True(t, types.IsNotFound(err))
}

func TestPredictOutcome(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c := testCase(fmt.Sprintf("c%d", i), "aml", "high", "escalate")
		c.Outcome = map[string]any{"action": "confirmed"}
		require.NoError(t, r.AddCase(ctx, c))
	}
	other := testCase("c9", "aml", "high", "approve")
	other.Outcome = map[string]any{"action": "cleared"}
	require.NoError(t, r.AddCase(ctx, other))

	pred, err := r.PredictOutcome(ctx,
		map[string]any{"domain": "aml", "risk_level": "high"},
		map[string]any{"action": "escalate"})
	require.NoError(t, err)
	require.Equal(t, 3, pred.CaseCount)
	require.Equal(t, "confirmed", pred.Outcome["action"])
	require.Equal(t, 1.0, pred.Confidence)
}

func TestPredictOutcomeNoHistory(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)

	pred, err := r.PredictOutcome(context.Background(),
		map[string]any{"domain": "aml"}, map[string]any{"action": "escalate"})
	require.NoError(t, err)
	require.Zero(t, pred.CaseCount)
	require.Zero(t, pred.Confidence)
	require.Nil(t, pred.Outcome)
}

func TestValidateDecision(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	require.NoError(t, r.AddCase(ctx, testCase("c1", "aml", "high", "escalate")))
	require.NoError(t, r.AddCase(ctx, testCase("c2", "aml", "high", "escalate")))
	require.NoError(t, r.AddCase(ctx, testCase("c3", "aml", "high", "approve")))

	v, err := r.ValidateDecision(ctx,
		map[string]any{"domain": "aml", "risk_level": "high"},
		map[string]any{"action": "escalate"})
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Equal(t, 2, v.Supporting)
	require.Equal(t, 1, v.Contradicting)
	require.InDelta(t, 2.0/3.0, v.Confidence, 1e-9)

	v, err = r.ValidateDecision(ctx,
		map[string]any{"domain": "aml", "risk_level": "high"},
		map[string]any{"action": "ignore"})
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Zero(t, v.Supporting)
	require.Equal(t, 3, v.Contradicting)
}

func TestUpdateCaseOutcome(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	require.NoError(t, r.AddCase(ctx, testCase("c1", "aml", "high", "escalate")))
	require.NoError(t, r.UpdateCaseOutcome(ctx, "c1", map[string]any{"result": "confirmed"}, 0.95))

	c, err := r.GetCase(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "confirmed", c.Outcome["result"])
	require.Equal(t, 0.95, c.SuccessScore)

	require.True(t, types.IsNotFound(r.UpdateCaseOutcome(ctx, "missing", nil, 0.5)))
	require.True(t, types.IsValidation(r.UpdateCaseOutcome(ctx, "c1", nil, 1.5)))
}

func TestEvictionPrefersExpiredThenLowSuccess(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultReasonerConfig()
	cfg.Capacity = 2
	cfg.Retention = 30 * 24 * time.Hour
	cfg.EmbeddingsEnabled = false
	cfg.PersistenceEnabled = false
	cfg.Now = func() time.Time { return now }
	r := NewReasoner(cfg, nil, nil, nil, nil)
	ctx := context.Background()

	expired := testCase("expired", "aml", "high", "escalate")
	expired.Timestamp = now.Add(-60 * 24 * time.Hour)
	expired.SuccessScore = 0.99
	require.NoError(t, r.AddCase(ctx, expired))

	weak := testCase("weak", "aml", "high", "escalate")
	weak.SuccessScore = 0.1
	require.NoError(t, r.AddCase(ctx, weak))

	strong := testCase("strong", "aml", "high", "escalate")
	strong.SuccessScore = 0.9
	require.NoError(t, r.AddCase(ctx, strong))

	require.Equal(t, 2, r.Len())
	_, err := r.GetCase(ctx, "expired")
	require.True(t, types.IsNotFound(err))
	_, err = r.GetCase(ctx, "strong")
	require.NoError(t, err)
}

func TestExtractFeatureWeights(t *testing.T) {
	t.Parallel()

	features := ExtractFeatureWeights(map[string]any{
		"domain":           "aml",
		"risk_level":       "high",
		"transaction_type": "wire",
		"amount":           5000,
	})
	require.Equal(t, 1.0, features["domain:aml"])
	require.Equal(t, 1.0, features["risk:high"])
	require.Equal(t, 0.8, features["transaction:wire"])
	require.Equal(t, 0.6, features["amount:medium"])

	require.Equal(t, "low", amountBucket(500))
	require.Equal(t, "medium", amountBucket(1001))
	require.Equal(t, "high", amountBucket(10001))
}

func TestReasonerStats(t *testing.T) {
	t.Parallel()
	r, _ := newTestReasoner(t)
	ctx := context.Background()

	require.NoError(t, r.AddCase(ctx, testCase("c1", "aml", "high", "escalate")))
	_, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{Domain: "aml"})
	require.NoError(t, err)

	stats := r.Stats()
	require.Equal(t, 1, stats.Cases)
	require.Equal(t, int64(1), stats.Added)
	require.Equal(t, int64(1), stats.Retrievals)
}
