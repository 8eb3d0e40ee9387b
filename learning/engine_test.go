package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

// stubEntrySource serves a fixed set of entries keyed by conversation id
// and records feedback write-backs.
type stubEntrySource struct {
	entries  map[string]*types.MemoryEntry
	feedback []string
}

func (s *stubEntrySource) RetrieveByConversation(_ context.Context, conversationID string) (*types.MemoryEntry, error) {
	e, ok := s.entries[conversationID]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "no entry for conversation %s", conversationID)
	}
	return e.Clone(), nil
}

func (s *stubEntrySource) UpdateWithFeedback(_ context.Context, id string, _ map[string]any, _ types.FeedbackType, _ float64) error {
	s.feedback = append(s.feedback, id)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *stubEntrySource) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &stubEntrySource{entries: map[string]*types.MemoryEntry{
		"conv-1": {
			ID:             "e1",
			ConversationID: "conv-1",
			AgentID:        "agent-1",
			Context:        map[string]any{"domain": "aml", "risk_level": "high"},
			Decision:       map[string]any{"action": "escalate"},
			CreatedAt:      now,
		},
	}}
	cfg := DefaultEngineConfig()
	cfg.Now = func() time.Time { return now }
	return NewEngine(cfg, src, nil, nil), src
}

func TestRegisterAgent(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)

	require.True(t, e.RegisterAgent("agent-1", "compliance"))
	require.False(t, e.RegisterAgent("agent-1", "compliance"))

	p, err := e.ProfileSnapshot("agent-1")
	require.NoError(t, err)
	require.Equal(t, 0.1, p.LearningRate)
	require.Equal(t, 0.1, p.ExplorationRate)
	require.Equal(t, 0.7, p.FeedbackWeight)
}

func TestProcessFeedbackUnknownAgent(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	_, err := e.ProcessFeedback(context.Background(), "ghost", "conv-1", nil, types.FeedbackApproval)
	require.True(t, types.IsNotFound(err))
}

func TestProcessFeedbackUnknownConversation(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")
	_, err := e.ProcessFeedback(context.Background(), "agent-1", "conv-missing", nil, types.FeedbackApproval)
	require.True(t, types.IsNotFound(err))
}

func TestProcessFeedbackApproval(t *testing.T) {
	t.Parallel()
	e, src := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")

	out, err := e.ProcessFeedback(context.Background(), "agent-1", "conv-1", nil, types.FeedbackApproval)
	require.NoError(t, err)
	require.Equal(t, 1, out.SignalCount)
	require.InDelta(t, 0.8, out.NetStrength, 1e-9)
	require.InDelta(t, 0.95, out.NetConfidence, 1e-9)
	require.True(t, out.PatternLearned)
	require.True(t, out.PolicyUpdated)
	require.Equal(t, []string{"e1"}, src.feedback)

	p, err := e.ProfileSnapshot("agent-1")
	require.NoError(t, err)
	require.Equal(t, 1, p.TotalDecisions)
	require.Zero(t, p.CorrectedDecisions)
	require.Equal(t, 1.0, p.OverallAccuracy)
	require.Len(t, p.Patterns, 1)

	q, err := e.QValues("agent-1")
	require.NoError(t, err)
	state := StateKey(map[string]any{"domain": "aml", "risk_level": "high"})
	require.InDelta(t, 0.1*0.8*0.95, q[state]["escalate"], 1e-9)
}

func TestProcessFeedbackCorrection(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")

	feedback := map[string]any{
		"corrected_decision": map[string]any{"action": "approve"},
	}
	out, err := e.ProcessFeedback(context.Background(), "agent-1", "conv-1", feedback, types.FeedbackCorrection)
	require.NoError(t, err)
	require.InDelta(t, -0.9, out.NetStrength, 1e-9)
	require.False(t, out.PatternLearned)
	require.Equal(t, 0.0, out.OverallAccuracy)

	p, err := e.ProfileSnapshot("agent-1")
	require.NoError(t, err)
	require.Equal(t, 1, p.CorrectedDecisions)
}

func TestProcessFeedbackEscalationNudgesRate(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")

	_, err := e.ProcessFeedback(context.Background(), "agent-1", "conv-1", nil, types.FeedbackEscalation)
	require.NoError(t, err)

	p, err := e.ProfileSnapshot("agent-1")
	require.NoError(t, err)
	require.InDelta(t, 0.05, p.EscalationRate, 1e-9)
}

func TestProcessFeedbackUrgentAddsRewardSignal(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")

	out, err := e.ProcessFeedback(context.Background(), "agent-1", "conv-1",
		map[string]any{"urgent": true}, types.FeedbackApproval)
	require.NoError(t, err)
	require.Equal(t, 2, out.SignalCount)

	// Confidence-weighted mean of (0.8, 0.95) and (0.2, 0.9).
	want := (0.8*0.95 + 0.2*0.9) / (0.95 + 0.9)
	require.InDelta(t, want, out.NetStrength, 1e-9)
}

func TestCorrectionStrengthGrades(t *testing.T) {
	t.Parallel()
	high := 0.9

	entry := &types.MemoryEntry{
		Decision:   map[string]any{"action": "escalate", "reason": "aml"},
		Confidence: &high,
	}

	t.Run("opposite decision", func(t *testing.T) {
		t.Parallel()
		got := correctionStrength(entry, map[string]any{
			"corrected_decision": map[string]any{"action": "approve"},
		})
		require.Equal(t, -0.9, got)
	})

	t.Run("overconfident then low confidence", func(t *testing.T) {
		t.Parallel()
		got := correctionStrength(entry, map[string]any{
			"corrected_decision": map[string]any{"action": "escalate", "reason": "aml"},
			"confidence":         0.3,
		})
		require.Equal(t, -0.7, got)
	})

	t.Run("other difference", func(t *testing.T) {
		t.Parallel()
		got := correctionStrength(entry, map[string]any{
			"corrected_decision": map[string]any{"action": "escalate", "reason": "sanctions"},
		})
		require.Equal(t, -0.5, got)
	})

	t.Run("identical decision", func(t *testing.T) {
		t.Parallel()
		got := correctionStrength(entry, map[string]any{
			"corrected_decision": map[string]any{"action": "escalate", "reason": "aml"},
		})
		require.Equal(t, 0.0, got)
	})
}

func TestGetLearningRecommendations(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")
	ctx := context.Background()

	_, err := e.ProcessFeedback(ctx, "agent-1", "conv-1", nil, types.FeedbackApproval)
	require.NoError(t, err)

	recs, err := e.GetLearningRecommendations(ctx, "agent-1",
		map[string]any{"domain": "aml", "risk_level": "high"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 1.0, recs[0].Similarity)
	require.Equal(t, map[string]any{"action": "escalate"}, recs[0].Decision)

	// A foreign context scores below the confidence cutoff.
	recs, err = e.GetLearningRecommendations(ctx, "agent-1",
		map[string]any{"domain": "onboarding", "risk_level": "low"})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestAdaptAgentBehavior(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("high accuracy narrows exploration", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t)
		e.RegisterAgent("agent-1", "compliance")

		_, err := e.ProcessFeedback(ctx, "agent-1", "conv-1", nil, types.FeedbackApproval)
		require.NoError(t, err)
		require.NoError(t, e.AdaptAgentBehavior(ctx, "agent-1"))

		p, err := e.ProfileSnapshot("agent-1")
		require.NoError(t, err)
		require.InDelta(t, 0.08, p.ExplorationRate, 1e-9)
		require.InDelta(t, 0.12, p.LearningRate, 1e-9)
	})

	t.Run("low accuracy widens exploration", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t)
		e.RegisterAgent("agent-1", "compliance")

		feedback := map[string]any{"corrected_decision": map[string]any{"action": "approve"}}
		_, err := e.ProcessFeedback(ctx, "agent-1", "conv-1", feedback, types.FeedbackCorrection)
		require.NoError(t, err)
		require.NoError(t, e.AdaptAgentBehavior(ctx, "agent-1"))

		p, err := e.ProfileSnapshot("agent-1")
		require.NoError(t, err)
		require.InDelta(t, 0.15, p.ExplorationRate, 1e-9)
		require.InDelta(t, 0.08, p.LearningRate, 1e-9)
	})

	t.Run("merges duplicate patterns", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t)
		e.RegisterAgent("agent-1", "compliance")

		for i := 0; i < 3; i++ {
			_, err := e.ProcessFeedback(ctx, "agent-1", "conv-1", nil, types.FeedbackApproval)
			require.NoError(t, err)
		}
		require.NoError(t, e.AdaptAgentBehavior(ctx, "agent-1"))

		p, err := e.ProfileSnapshot("agent-1")
		require.NoError(t, err)
		require.Len(t, p.Patterns, 1)
		for _, pat := range p.Patterns {
			require.Equal(t, 3, pat.ApplicationCount)
		}
	})
}

func TestSelectActionUsesProfileEpsilon(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")
	ctx := context.Background()

	_, err := e.ProcessFeedback(ctx, "agent-1", "conv-1", nil, types.FeedbackApproval)
	require.NoError(t, err)

	choice, err := e.SelectAction(ctx, "agent-1",
		map[string]any{"domain": "aml", "risk_level": "high"},
		[]string{"escalate", "ignore"})
	require.NoError(t, err)
	require.Contains(t, []string{"escalate", "ignore"}, choice.Action)
}

func TestResetAgent(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")

	_, err := e.ProcessFeedback(context.Background(), "agent-1", "conv-1", nil, types.FeedbackApproval)
	require.NoError(t, err)
	require.NoError(t, e.ResetAgent("agent-1"))

	p, err := e.ProfileSnapshot("agent-1")
	require.NoError(t, err)
	require.Zero(t, p.TotalDecisions)
	require.Empty(t, p.Patterns)
	require.True(t, types.IsNotFound(e.ResetAgent("ghost")))
}

func TestEngineStats(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.RegisterAgent("agent-1", "compliance")

	_, err := e.ProcessFeedback(context.Background(), "agent-1", "conv-1", nil, types.FeedbackApproval)
	require.NoError(t, err)

	stats := e.Stats()
	require.Equal(t, 1, stats.Agents)
	require.Equal(t, int64(1), stats.EventsProcessed)
	require.Equal(t, int64(1), stats.PatternsLearned)
	require.Equal(t, int64(1), stats.PolicyUpdates)
}

func TestStateAndActionKeys(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"domain:aml|risk_level:high|transaction_type:unknown",
		StateKey(map[string]any{"domain": "AML", "risk_level": "high"}))

	require.Equal(t, "none", ActionKey(nil))
	require.Equal(t, "approve", ActionKey(map[string]any{"action": "Approve"}))
	require.Equal(t,
		ActionKey(map[string]any{"a": 1, "b": "x"}),
		ActionKey(map[string]any{"b": "x", "a": 1}))
}
