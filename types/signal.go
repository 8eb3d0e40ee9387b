package types

import "time"

// LearningSignal is an ephemeral value object produced while processing one
// feedback event. Signals are aggregated and consumed within a single
// processing step; a bounded window of recent signals may be retained on the
// owning profile or pattern.
type LearningSignal struct {
	Type       FeedbackType   `json:"type"`
	Strength   float64        `json:"strength"`   // signed, -1..1
	Confidence float64        `json:"confidence"` // 0..1
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Weighted returns the signal's contribution clamped to [-1, 1].
func (s LearningSignal) Weighted() float64 {
	v := s.Strength * s.Confidence
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// LearnedPattern is a generalized decision rule distilled from positive
// aggregate feedback. Patterns with the same context signature and decision
// are merged during consolidation; patterns are never merged across
// different decisions.
type LearnedPattern struct {
	ID               string             `json:"id"`
	AgentType        string             `json:"agent_type,omitempty"`
	ContextSignature string             `json:"context_signature"`
	Decision         map[string]any     `json:"decision"`
	SuccessRate      float64            `json:"success_rate"` // 0..1
	ApplicationCount int                `json:"application_count"`
	RecentSignals    []LearningSignal   `json:"recent_signals,omitempty"`
	FeatureWeights   map[string]float64 `json:"feature_weights,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Recommendation is one ranked suggestion returned by the learning engine.
type Recommendation struct {
	PatternID  string         `json:"pattern_id"`
	Decision   map[string]any `json:"decision"`
	Similarity float64        `json:"similarity"`
	Confidence float64        `json:"confidence"`
}

// ActionChoice is the result of an epsilon-greedy action selection.
type ActionChoice struct {
	Action     string  `json:"action"`
	QValue     float64 `json:"q_value"`
	Confidence float64 `json:"confidence"`
	Explored   bool    `json:"explored"`
}

// FeedbackOutcome summarizes one processed feedback event.
type FeedbackOutcome struct {
	AgentID         string  `json:"agent_id"`
	ConversationID  string  `json:"conversation_id"`
	SignalCount     int     `json:"signal_count"`
	NetStrength     float64 `json:"net_strength"`
	NetConfidence   float64 `json:"net_confidence"`
	PatternLearned  bool    `json:"pattern_learned"`
	PolicyUpdated   bool    `json:"policy_updated"`
	OverallAccuracy float64 `json:"overall_accuracy"`
}
