package learning

import (
	"time"

	"github.com/BaSui01/memflow/types"
)

// Default hyperparameters assigned at agent registration.
const (
	DefaultLearningRate    = 0.1
	DefaultExplorationRate = 0.1
	DefaultFeedbackWeight  = 0.7

	// maxRecentSignals bounds the rolling feedback window per profile.
	maxRecentSignals = 50
)

// Profile is the per-agent learning state: hyperparameters, aggregate
// performance counters, the rolling signal window, learned patterns, and
// the Q-table. All fields except the Q-table are guarded by the engine's
// lock; the Q-table locks itself.
type Profile struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`

	LearningRate    float64 `json:"learning_rate"`
	ExplorationRate float64 `json:"exploration_rate"`
	FeedbackWeight  float64 `json:"feedback_weight"`

	OverallAccuracy    float64 `json:"overall_accuracy"`
	OverrideRate       float64 `json:"override_rate"`
	EscalationRate     float64 `json:"escalation_rate"`
	TotalDecisions     int     `json:"total_decisions"`
	CorrectedDecisions int     `json:"corrected_decisions"`

	RecentSignals []types.LearningSignal           `json:"recent_signals,omitempty"`
	Patterns      map[string]*types.LearnedPattern `json:"patterns,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	qtable *QTable
}

// newProfile creates a profile with default hyperparameters.
func newProfile(agentID, agentType string, now time.Time) *Profile {
	return &Profile{
		AgentID:         agentID,
		AgentType:       agentType,
		LearningRate:    DefaultLearningRate,
		ExplorationRate: DefaultExplorationRate,
		FeedbackWeight:  DefaultFeedbackWeight,
		OverallAccuracy: 1.0,
		Patterns:        make(map[string]*types.LearnedPattern),
		CreatedAt:       now,
		UpdatedAt:       now,
		qtable:          NewQTable(),
	}
}

// QTable returns the profile's Q-table.
func (p *Profile) QTable() *QTable { return p.qtable }

// recordSignal appends to the bounded rolling window, dropping the oldest
// signals beyond the cap.
func (p *Profile) recordSignal(sig types.LearningSignal) {
	p.RecentSignals = append(p.RecentSignals, sig)
	if len(p.RecentSignals) > maxRecentSignals {
		p.RecentSignals = p.RecentSignals[len(p.RecentSignals)-maxRecentSignals:]
	}
}

// recordDecision updates the aggregate performance counters after one
// feedback event. Total decisions only ever increase; accuracy is
// recomputed as 1 - corrected/total.
func (p *Profile) recordDecision(kind types.FeedbackType, now time.Time) {
	p.TotalDecisions++
	if kind == types.FeedbackCorrection {
		p.CorrectedDecisions++
	}
	if kind == types.FeedbackEscalation {
		p.EscalationRate += 0.05 * (1.0 - p.EscalationRate)
	}
	p.OverallAccuracy = 1.0 - float64(p.CorrectedDecisions)/float64(p.TotalDecisions)
	p.OverrideRate = float64(p.CorrectedDecisions) / float64(p.TotalDecisions)
	p.UpdatedAt = now
}

// Reset clears all learned state, keeping the identity and default
// hyperparameters. Profiles are never destroyed implicitly; this is the
// explicit wipe.
func (p *Profile) Reset(now time.Time) {
	p.LearningRate = DefaultLearningRate
	p.ExplorationRate = DefaultExplorationRate
	p.FeedbackWeight = DefaultFeedbackWeight
	p.OverallAccuracy = 1.0
	p.OverrideRate = 0
	p.EscalationRate = 0
	p.TotalDecisions = 0
	p.CorrectedDecisions = 0
	p.RecentSignals = nil
	p.Patterns = make(map[string]*types.LearnedPattern)
	p.qtable = NewQTable()
	p.UpdatedAt = now
}
