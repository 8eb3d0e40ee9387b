package types

import (
	"time"
)

// MemoryKind defines the unified memory category across the core.
type MemoryKind string

const (
	// MemoryEpisodic represents event-based experiential memories.
	MemoryEpisodic MemoryKind = "episodic"

	// MemorySemantic represents factual knowledge and learned information.
	MemorySemantic MemoryKind = "semantic"

	// MemoryProcedural represents how-to knowledge and learned procedures.
	MemoryProcedural MemoryKind = "procedural"

	// MemoryWorking represents short-term working memory for current task context.
	MemoryWorking MemoryKind = "working"
)

// MemoryTier is the lifecycle stage governing retention policy.
type MemoryTier string

const (
	TierWorking    MemoryTier = "working"
	TierEpisodic   MemoryTier = "episodic"
	TierSemantic   MemoryTier = "semantic"
	TierProcedural MemoryTier = "procedural"
	TierArchival   MemoryTier = "archival"
)

// ImportanceLevel is the coarse ordinal priority assigned at creation.
// The numeric values feed directly into the effective importance formula.
type ImportanceLevel int

const (
	ImportanceLow      ImportanceLevel = 1
	ImportanceMedium   ImportanceLevel = 5
	ImportanceHigh     ImportanceLevel = 8
	ImportanceCritical ImportanceLevel = 10
)

// String returns the semantic name of the level.
func (l ImportanceLevel) String() string {
	switch l {
	case ImportanceLow:
		return "low"
	case ImportanceMedium:
		return "medium"
	case ImportanceHigh:
		return "high"
	case ImportanceCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Raise returns the next level up, capped at critical.
func (l ImportanceLevel) Raise() ImportanceLevel {
	switch l {
	case ImportanceLow:
		return ImportanceMedium
	case ImportanceMedium:
		return ImportanceHigh
	case ImportanceHigh, ImportanceCritical:
		return ImportanceCritical
	default:
		return l
	}
}

// FeedbackType classifies human feedback attached to a memory entry.
type FeedbackType string

const (
	FeedbackCorrection FeedbackType = "correction"
	FeedbackApproval   FeedbackType = "approval"
	FeedbackEscalation FeedbackType = "escalation"
	FeedbackPreference FeedbackType = "preference"
	FeedbackReward     FeedbackType = "reward"
)

// Retention thresholds for the forgetting predicate.
const (
	// ForgetMaxAge is the age beyond which low-importance entries qualify
	// for removal.
	ForgetMaxAge = 720 * time.Hour

	// ForgetImportanceFloor is the effective importance below which an
	// aged entry qualifies for removal.
	ForgetImportanceFloor = 0.3

	// ForgetDecayFloor is the decay factor below which an entry is removed
	// regardless of age or importance.
	ForgetDecayFloor = 0.1
)

// MemoryEntry is one recorded episode: a conversation or decision event
// together with everything the core learned about it since.
//
// Importance level is derived once at creation and not automatically
// recomputed; EffectiveImportance is always computed dynamically.
type MemoryEntry struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	AgentID        string          `json:"agent_id"`
	AgentType      string          `json:"agent_type,omitempty"`
	Kind           MemoryKind      `json:"kind"`
	Importance     ImportanceLevel `json:"importance"`
	Tier           MemoryTier      `json:"tier,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int       `json:"access_count"`

	Context        map[string]any `json:"context"`
	Summary        string         `json:"summary,omitempty"`
	Topics         []string       `json:"topics,omitempty"`
	ComplianceTags []string       `json:"compliance_tags,omitempty"`

	// Decision metadata. All optional; nil means absent.
	Decision   map[string]any `json:"decision,omitempty"`
	Outcome    map[string]any `json:"outcome,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`

	// Human feedback. All optional; nil means absent.
	Feedback      map[string]any `json:"feedback,omitempty"`
	FeedbackType  *FeedbackType  `json:"feedback_type,omitempty"`
	FeedbackScore *float64       `json:"feedback_score,omitempty"`

	// Embedding is the semantic vector; zero-filled when embeddings are
	// disabled or the provider was unavailable.
	Embedding []float64 `json:"embedding,omitempty"`

	// DecayFactor is a multiplicative discount, starts at 1.0 and only
	// decreases.
	DecayFactor float64 `json:"decay_factor"`

	Consolidated   bool       `json:"consolidated"`
	ConsolidatedAt *time.Time `json:"consolidated_at,omitempty"`
	ParentID       string     `json:"parent_id,omitempty"`
}

// Validate checks the required fields for admission to the store.
func (e *MemoryEntry) Validate() error {
	if e == nil {
		return NewError(ErrValidation, "entry is nil")
	}
	if e.ID == "" {
		return NewError(ErrValidation, "entry id is required")
	}
	if e.ConversationID == "" {
		return NewError(ErrValidation, "conversation id is required")
	}
	if e.AgentID == "" {
		return NewError(ErrValidation, "agent id is required")
	}
	if e.Context == nil {
		return NewError(ErrValidation, "context is required")
	}
	return nil
}

// RecordAccess bumps the access counter and timestamp.
func (e *MemoryEntry) RecordAccess(now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
}

// Age returns the time elapsed since the entry was created.
func (e *MemoryEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// EffectiveImportance computes the dynamic 0..1 priority used for retention
// and ranking:
//
//	base            = level/10
//	access_bonus    = min(0.3, access_count * 0.01)
//	feedback        = feedback_score * 0.2 (0 if absent)
//	recency_bonus   = max(0, 0.1 * (1 - age_hours/168))
//	score           = clamp01((base + access + feedback + recency) * decay)
func (e *MemoryEntry) EffectiveImportance(now time.Time) float64 {
	base := float64(e.Importance) / 10.0

	accessBonus := float64(e.AccessCount) * 0.01
	if accessBonus > 0.3 {
		accessBonus = 0.3
	}

	var feedbackModifier float64
	if e.FeedbackScore != nil {
		feedbackModifier = *e.FeedbackScore * 0.2
	}

	ageHours := e.Age(now).Hours()
	recencyBonus := 0.1 * (1.0 - ageHours/168.0)
	if recencyBonus < 0 {
		recencyBonus = 0
	}

	score := (base + accessBonus + feedbackModifier + recencyBonus) * e.DecayFactor
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ShouldForget is the sole gate for removal: an entry should be forgotten
// when it is older than ForgetMaxAge with effective importance below the
// floor, or when its decay factor has collapsed.
func (e *MemoryEntry) ShouldForget(now time.Time) bool {
	if e.DecayFactor < ForgetDecayFloor {
		return true
	}
	return e.Age(now) > ForgetMaxAge && e.EffectiveImportance(now) < ForgetImportanceFloor
}

// Clone returns a deep copy of the entry.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Context = cloneMap(e.Context)
	out.Decision = cloneMap(e.Decision)
	out.Outcome = cloneMap(e.Outcome)
	out.Feedback = cloneMap(e.Feedback)
	out.Topics = cloneStrings(e.Topics)
	out.ComplianceTags = cloneStrings(e.ComplianceTags)
	out.Embedding = cloneFloats(e.Embedding)
	if e.Confidence != nil {
		v := *e.Confidence
		out.Confidence = &v
	}
	if e.FeedbackScore != nil {
		v := *e.FeedbackScore
		out.FeedbackScore = &v
	}
	if e.FeedbackType != nil {
		v := *e.FeedbackType
		out.FeedbackType = &v
	}
	if e.ConsolidatedAt != nil {
		v := *e.ConsolidatedAt
		out.ConsolidatedAt = &v
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
