package types

import "time"

// RetrievalQuery describes a similarity search over the memory store.
// Zero values mean "no filter".
type RetrievalQuery struct {
	QueryText      string          `json:"query_text,omitempty"`
	Start          time.Time       `json:"start,omitempty"`
	End            time.Time       `json:"end,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	Kind           MemoryKind      `json:"kind,omitempty"`
	MinImportance  ImportanceLevel `json:"min_importance,omitempty"`
	RequiredTopics []string        `json:"required_topics,omitempty"`
	MinSimilarity  float64         `json:"min_similarity,omitempty"`
	MaxResults     int             `json:"max_results,omitempty"`
}

// ScoredEntry pairs an entry with its similarity to a query.
type ScoredEntry struct {
	Entry      *MemoryEntry `json:"entry"`
	Similarity float64      `json:"similarity"`
}

// CaseQuery describes a similarity search over the case base.
type CaseQuery struct {
	QueryText     string        `json:"query_text,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Domain        string        `json:"domain,omitempty"`
	RiskLevel     string        `json:"risk_level,omitempty"`
	RequiredTags  []string      `json:"required_tags,omitempty"`
	MaxAge        time.Duration `json:"max_age,omitempty"`
	MinSimilarity float64       `json:"min_similarity,omitempty"`
	MaxResults    int           `json:"max_results,omitempty"`
}

// ScoredCase pairs a case with its blended similarity and confidence.
type ScoredCase struct {
	Case       *ComplianceCase `json:"case"`
	Similarity float64         `json:"similarity"`
	Confidence float64         `json:"confidence"`
}

// AdaptedDecision is the result of weighted voting over retrieved cases.
type AdaptedDecision struct {
	Decision             map[string]any     `json:"decision"`
	Confidence           float64            `json:"confidence"`
	SupportingCases      []string           `json:"supporting_cases,omitempty"`
	FeatureContributions map[string]float64 `json:"feature_contributions,omitempty"`
}

// OutcomePrediction aggregates historical outcomes for a proposed decision.
type OutcomePrediction struct {
	Outcome    map[string]any `json:"outcome,omitempty"`
	Confidence float64        `json:"confidence"`
	CaseCount  int            `json:"case_count"`
}

// DecisionValidation reports historical support for a proposed decision.
type DecisionValidation struct {
	Valid         bool    `json:"valid"`
	Supporting    int     `json:"supporting"`
	Contradicting int     `json:"contradicting"`
	Confidence    float64 `json:"confidence"`
}
