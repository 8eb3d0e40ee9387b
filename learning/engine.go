package learning

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/types"
)

// EntrySource is the slice of the memory store the engine consumes: loading
// the entry a feedback event refers to, and writing the feedback back.
type EntrySource interface {
	RetrieveByConversation(ctx context.Context, conversationID string) (*types.MemoryEntry, error)
	UpdateWithFeedback(ctx context.Context, id string, feedback map[string]any, kind types.FeedbackType, score float64) error
}

// EngineConfig controls the learning engine.
type EngineConfig struct {
	// DefaultLearningRate seeds new profiles; per-profile rates adapt over
	// time.
	DefaultLearningRate float64 `yaml:"default_learning_rate" json:"default_learning_rate"`

	// PatternThreshold is the net signal strength above which a new
	// behavioral pattern is learned.
	PatternThreshold float64 `yaml:"pattern_threshold" json:"pattern_threshold"`

	// MaxRecommendations caps the result set of a recommendation query.
	MaxRecommendations int `yaml:"max_recommendations" json:"max_recommendations"`

	// Now is the clock, injectable for tests.
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLearningRate: DefaultLearningRate,
		PatternThreshold:    0.3,
		MaxRecommendations:  5,
		Now:                 time.Now,
	}
}

// EngineStats is a point-in-time snapshot of engine activity.
type EngineStats struct {
	Agents          int   `json:"agents"`
	EventsProcessed int64 `json:"events_processed"`
	PatternsLearned int64 `json:"patterns_learned"`
	PolicyUpdates   int64 `json:"policy_updates"`
}

// Engine converts human feedback into learning signals, maintains per-agent
// profiles and patterns, and updates each agent's Q-learning policy.
type Engine struct {
	mu       sync.RWMutex
	profiles map[string]*Profile

	config    EngineConfig
	entries   EntrySource
	logger    *zap.Logger
	collector *metrics.Collector

	eventsProcessed int64
	patternsLearned int64
	policyUpdates   int64
}

// NewEngine creates a learning engine backed by the given entry source.
func NewEngine(config EngineConfig, entries EntrySource, logger *zap.Logger, collector *metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultLearningRate <= 0 {
		config.DefaultLearningRate = DefaultLearningRate
	}
	if config.PatternThreshold == 0 {
		config.PatternThreshold = 0.3
	}
	if config.MaxRecommendations <= 0 {
		config.MaxRecommendations = 5
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Engine{
		profiles:  make(map[string]*Profile),
		config:    config,
		entries:   entries,
		logger:    logger.With(zap.String("component", "learning_engine")),
		collector: collector,
	}
}

// RegisterAgent creates a profile for the agent if none exists. It returns
// false when the agent was already registered.
func (e *Engine) RegisterAgent(agentID, agentType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.profiles[agentID]; ok {
		return false
	}
	p := newProfile(agentID, agentType, e.config.Now())
	p.LearningRate = e.config.DefaultLearningRate
	e.profiles[agentID] = p
	e.logger.Info("agent registered",
		zap.String("agent_id", agentID),
		zap.String("agent_type", agentType))
	return true
}

// ResetAgent wipes an agent's learned state. Unknown agents are an error;
// profiles are never destroyed, only reset.
func (e *Engine) ResetAgent(agentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.profiles[agentID]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "agent %s not registered", agentID)
	}
	p.Reset(e.config.Now())
	return nil
}

// ProcessFeedback converts one feedback event into learning signals,
// attaches the feedback to the referenced entry, updates the agent's
// counters, and applies pattern learning and policy updates.
func (e *Engine) ProcessFeedback(ctx context.Context, agentID, conversationID string, feedback map[string]any, kind types.FeedbackType) (*types.FeedbackOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	profile, ok := e.profiles[agentID]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "agent %s not registered", agentID)
	}

	entry, err := e.entries.RetrieveByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	now := e.config.Now()
	signals := e.buildSignals(entry, feedback, kind, now)
	netStrength, netConfidence := aggregateSignals(signals)

	if err := e.entries.UpdateWithFeedback(ctx, entry.ID, feedback, kind, netStrength); err != nil {
		e.logger.Warn("feedback write-back failed",
			zap.String("entry_id", entry.ID), zap.Error(err))
	}

	state := StateKey(entry.Context)
	action := ActionKey(entry.Decision)
	reward := clamp(netStrength*netConfidence, -1, 1)

	e.mu.Lock()
	for _, sig := range signals {
		profile.recordSignal(sig)
	}
	profile.recordDecision(kind, now)

	patternLearned := false
	if netStrength > e.config.PatternThreshold && len(entry.Decision) > 0 {
		e.learnPatternLocked(profile, entry, signals, netStrength, now)
		patternLearned = true
		e.patternsLearned++
	}

	alpha := profile.LearningRate
	accuracy := profile.OverallAccuracy
	e.eventsProcessed++
	e.policyUpdates++
	e.mu.Unlock()

	// Q-table carries its own lock; never update it while holding e.mu.
	profile.QTable().Update(state, action, reward, state, alpha)

	e.collector.RecordFeedback(agentID, string(kind))
	e.collector.RecordPolicyUpdate()
	if patternLearned {
		e.collector.RecordPatternLearned()
	}

	e.logger.Debug("feedback processed",
		zap.String("agent_id", agentID),
		zap.String("conversation_id", conversationID),
		zap.String("type", string(kind)),
		zap.Float64("net_strength", netStrength),
		zap.Bool("pattern_learned", patternLearned))

	return &types.FeedbackOutcome{
		AgentID:         agentID,
		ConversationID:  conversationID,
		SignalCount:     len(signals),
		NetStrength:     netStrength,
		NetConfidence:   netConfidence,
		PatternLearned:  patternLearned,
		PolicyUpdated:   true,
		OverallAccuracy: accuracy,
	}, nil
}

// buildSignals translates one feedback event into its learning signals.
func (e *Engine) buildSignals(entry *types.MemoryEntry, feedback map[string]any, kind types.FeedbackType, now time.Time) []types.LearningSignal {
	var signals []types.LearningSignal

	switch kind {
	case types.FeedbackCorrection:
		signals = append(signals, types.LearningSignal{
			Type:       types.FeedbackCorrection,
			Strength:   correctionStrength(entry, feedback),
			Confidence: 0.9,
			Timestamp:  now,
		})
	case types.FeedbackApproval:
		signals = append(signals, types.LearningSignal{
			Type:       types.FeedbackApproval,
			Strength:   0.8,
			Confidence: 0.95,
			Timestamp:  now,
		})
	case types.FeedbackEscalation:
		signals = append(signals, types.LearningSignal{
			Type:       types.FeedbackEscalation,
			Strength:   -0.6,
			Confidence: 0.85,
			Timestamp:  now,
		})
	case types.FeedbackPreference:
		signals = append(signals, types.LearningSignal{
			Type:       types.FeedbackPreference,
			Strength:   0.5,
			Confidence: 0.8,
			Timestamp:  now,
		})
	default:
		signals = append(signals, types.LearningSignal{
			Type:       kind,
			Strength:   0,
			Confidence: 0.5,
			Timestamp:  now,
		})
	}

	if isUrgent(feedback) || isUrgent(entry.Context) {
		signals = append(signals, types.LearningSignal{
			Type:       types.FeedbackReward,
			Strength:   0.2,
			Confidence: 0.9,
			Timestamp:  now,
			Metadata:   map[string]any{"reason": "urgent"},
		})
	}
	return signals
}

// correctionStrength scores how far a correction diverges from the original
// decision. Opposite decisions are the strongest negative signal; an
// overconfident original corrected with low confidence is next; any other
// observed difference is a moderate negative; identical decisions carry no
// signal.
func correctionStrength(entry *types.MemoryEntry, feedback map[string]any) float64 {
	corrected := correctedDecision(feedback)
	if corrected == nil {
		return -0.5
	}

	originalAction := ActionKey(entry.Decision)
	correctedAction := ActionKey(corrected)
	if originalAction != correctedAction {
		return -0.9
	}

	if entry.Confidence != nil && *entry.Confidence > 0.7 {
		if fc, ok := feedback["confidence"].(float64); ok && fc < 0.5 {
			return -0.7
		}
	}

	if !decisionsEqual(entry.Decision, corrected) {
		return -0.5
	}
	return 0
}

func correctedDecision(feedback map[string]any) map[string]any {
	for _, key := range []string{"corrected_decision", "decision"} {
		if d, ok := feedback[key].(map[string]any); ok {
			return d
		}
	}
	return nil
}

func decisionsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || ActionKey(map[string]any{k: va}) != ActionKey(map[string]any{k: vb}) {
			return false
		}
	}
	return true
}

func isUrgent(m map[string]any) bool {
	if m == nil {
		return false
	}
	switch v := m["urgent"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// aggregateSignals folds all signals into one confidence-weighted mean
// strength and a mean confidence.
func aggregateSignals(signals []types.LearningSignal) (strength, confidence float64) {
	if len(signals) == 0 {
		return 0, 0
	}
	var weighted, weights, confSum float64
	for _, s := range signals {
		weighted += s.Strength * s.Confidence
		weights += s.Confidence
		confSum += s.Confidence
	}
	if weights == 0 {
		return 0, 0
	}
	return weighted / weights, confSum / float64(len(signals))
}

// learnPatternLocked records or reinforces a behavioral pattern. Patterns
// with matching signature and decision merge; success rates are averaged
// weighted by application count. Caller holds e.mu.
func (e *Engine) learnPatternLocked(profile *Profile, entry *types.MemoryEntry, signals []types.LearningSignal, netStrength float64, now time.Time) {
	signature := StateKey(entry.Context)
	action := ActionKey(entry.Decision)
	successRate := (netStrength + 1) / 2

	for _, p := range profile.Patterns {
		if p.ContextSignature == signature && ActionKey(p.Decision) == action {
			total := float64(p.ApplicationCount + 1)
			p.SuccessRate = (p.SuccessRate*float64(p.ApplicationCount) + successRate) / total
			p.ApplicationCount++
			p.RecentSignals = append(p.RecentSignals, signals...)
			if len(p.RecentSignals) > maxRecentSignals {
				p.RecentSignals = p.RecentSignals[len(p.RecentSignals)-maxRecentSignals:]
			}
			p.UpdatedAt = now
			return
		}
	}

	pattern := &types.LearnedPattern{
		ID:               uuid.NewString(),
		AgentType:        profile.AgentType,
		ContextSignature: signature,
		Decision:         entry.Decision,
		SuccessRate:      successRate,
		ApplicationCount: 1,
		RecentSignals:    signals,
		FeatureWeights:   contextFeatures(entry.Context),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	profile.Patterns[pattern.ID] = pattern
}

// GetLearningRecommendations ranks the agent's learned patterns against the
// given context by similarity times historical success rate.
func (e *Engine) GetLearningRecommendations(ctx context.Context, agentID string, contextData map[string]any) ([]types.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	profile, ok := e.profiles[agentID]
	if !ok {
		e.mu.RUnlock()
		return nil, types.NewErrorf(types.ErrNotFound, "agent %s not registered", agentID)
	}

	var recs []types.Recommendation
	for _, p := range profile.Patterns {
		similarity := ContextSimilarity(contextData, p.ContextSignature)
		confidence := similarity * p.SuccessRate
		if confidence < 0.3 {
			continue
		}
		recs = append(recs, types.Recommendation{
			PatternID:  p.ID,
			Decision:   p.Decision,
			Similarity: similarity,
			Confidence: confidence,
		})
	}
	e.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Confidence > recs[j].Confidence
	})
	if len(recs) > e.config.MaxRecommendations {
		recs = recs[:e.config.MaxRecommendations]
	}
	return recs, nil
}

// SelectAction picks an action for the agent epsilon-greedily using its
// current exploration rate.
func (e *Engine) SelectAction(ctx context.Context, agentID string, contextData map[string]any, actions []string) (types.ActionChoice, error) {
	if err := ctx.Err(); err != nil {
		return types.ActionChoice{}, err
	}

	e.mu.RLock()
	profile, ok := e.profiles[agentID]
	if !ok {
		e.mu.RUnlock()
		return types.ActionChoice{}, types.NewErrorf(types.ErrNotFound, "agent %s not registered", agentID)
	}
	epsilon := profile.ExplorationRate
	e.mu.RUnlock()

	return profile.QTable().SelectAction(StateKey(contextData), actions, epsilon)
}

// AdaptAgentBehavior consolidates near-duplicate patterns and retunes the
// agent's exploration and learning rates from its accuracy.
func (e *Engine) AdaptAgentBehavior(ctx context.Context, agentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	profile, ok := e.profiles[agentID]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "agent %s not registered", agentID)
	}

	merged := consolidatePatterns(profile.Patterns)
	profile.Patterns = merged

	switch {
	case profile.OverallAccuracy > 0.8:
		profile.ExplorationRate = max(profile.ExplorationRate*0.8, 0.01)
		profile.LearningRate = min(profile.LearningRate*1.2, 0.3)
	case profile.OverallAccuracy < 0.6:
		profile.ExplorationRate = min(profile.ExplorationRate*1.5, 0.3)
		profile.LearningRate = max(profile.LearningRate*0.8, 0.05)
	}
	profile.UpdatedAt = e.config.Now()

	e.logger.Debug("agent behavior adapted",
		zap.String("agent_id", agentID),
		zap.Float64("accuracy", profile.OverallAccuracy),
		zap.Float64("exploration_rate", profile.ExplorationRate),
		zap.Float64("learning_rate", profile.LearningRate),
		zap.Int("patterns", len(profile.Patterns)))
	return nil
}

// consolidatePatterns merges patterns sharing a context signature and
// decision: success rates are averaged weighted by application count,
// application counts summed. Patterns with different decisions never merge.
func consolidatePatterns(patterns map[string]*types.LearnedPattern) map[string]*types.LearnedPattern {
	type key struct {
		signature string
		action    string
	}
	merged := make(map[key]*types.LearnedPattern)

	ids := make([]string, 0, len(patterns))
	for id := range patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := patterns[id]
		k := key{p.ContextSignature, ActionKey(p.Decision)}
		existing, ok := merged[k]
		if !ok {
			merged[k] = p
			continue
		}
		total := existing.ApplicationCount + p.ApplicationCount
		if total > 0 {
			existing.SuccessRate = (existing.SuccessRate*float64(existing.ApplicationCount) +
				p.SuccessRate*float64(p.ApplicationCount)) / float64(total)
		}
		existing.ApplicationCount = total
		if p.UpdatedAt.After(existing.UpdatedAt) {
			existing.UpdatedAt = p.UpdatedAt
		}
	}

	out := make(map[string]*types.LearnedPattern, len(merged))
	for _, p := range merged {
		out[p.ID] = p
	}
	return out
}

// ProfileSnapshot returns a copy of the agent's profile for inspection. The
// Q-table itself is not copied; use QValues for that.
func (e *Engine) ProfileSnapshot(agentID string) (Profile, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[agentID]
	if !ok {
		return Profile{}, types.NewErrorf(types.ErrNotFound, "agent %s not registered", agentID)
	}
	out := *p
	out.qtable = nil
	out.RecentSignals = append([]types.LearningSignal(nil), p.RecentSignals...)
	out.Patterns = make(map[string]*types.LearnedPattern, len(p.Patterns))
	for id, pat := range p.Patterns {
		cp := *pat
		out.Patterns[id] = &cp
	}
	return out, nil
}

// QValues returns a deep copy of the agent's Q-table.
func (e *Engine) QValues(agentID string) (map[string]map[string]float64, error) {
	e.mu.RLock()
	p, ok := e.profiles[agentID]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "agent %s not registered", agentID)
	}
	return p.QTable().Snapshot(), nil
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EngineStats{
		Agents:          len(e.profiles),
		EventsProcessed: e.eventsProcessed,
		PatternsLearned: e.patternsLearned,
		PolicyUpdates:   e.policyUpdates,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
