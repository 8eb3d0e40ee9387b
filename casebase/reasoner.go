package casebase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/embedding"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/persistence"
	"github.com/BaSui01/memflow/types"
)

// Blended similarity weights for case retrieval.
const (
	domainWeight    = 0.3
	riskWeight      = 0.2
	tagWeight       = 0.3
	embeddingWeight = 0.2
)

// ReasonerConfig controls the case-based reasoner.
type ReasonerConfig struct {
	// Capacity is the maximum number of cases before eviction.
	Capacity int `yaml:"capacity" json:"capacity"`

	// Retention is the age beyond which cases become eviction candidates
	// before any success-score ranking applies.
	Retention time.Duration `yaml:"retention" json:"retention"`

	// EmbeddingsEnabled toggles embedding generation for new cases.
	EmbeddingsEnabled bool `yaml:"embeddings_enabled" json:"embeddings_enabled"`

	// EmbeddingDimensions is the expected vector length.
	EmbeddingDimensions int `yaml:"embedding_dimensions" json:"embedding_dimensions"`

	// EmbeddingTimeout bounds each provider call.
	EmbeddingTimeout time.Duration `yaml:"embedding_timeout" json:"embedding_timeout"`

	// PersistenceEnabled toggles the durable write-behind path.
	PersistenceEnabled bool `yaml:"persistence_enabled" json:"persistence_enabled"`

	// Now is the clock, injectable for tests.
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultReasonerConfig returns sensible defaults.
func DefaultReasonerConfig() ReasonerConfig {
	return ReasonerConfig{
		Capacity:            5000,
		Retention:           90 * 24 * time.Hour,
		EmbeddingsEnabled:   true,
		EmbeddingDimensions: 384,
		EmbeddingTimeout:    5 * time.Second,
		PersistenceEnabled:  true,
		Now:                 time.Now,
	}
}

// ReasonerStats is a point-in-time snapshot of reasoner activity.
type ReasonerStats struct {
	Cases       int   `json:"cases"`
	Capacity    int   `json:"capacity"`
	Added       int64 `json:"added"`
	Retrievals  int64 `json:"retrievals"`
	Adaptations int64 `json:"adaptations"`
	Predictions int64 `json:"predictions"`
	Validations int64 `json:"validations"`
	Evicted     int64 `json:"evicted"`
}

// Reasoner is the case-based reasoner: a bounded case base with secondary
// indexes and similarity-driven retrieval, adaptation, prediction, and
// validation.
type Reasoner struct {
	mu    sync.Mutex
	cases map[string]*types.ComplianceCase

	// Secondary indexes hold case ids only, rebuilt wholesale on mutation.
	domainIndex map[string][]string
	tagIndex    map[string][]string
	riskIndex   map[string][]string

	config    ReasonerConfig
	provider  embedding.Provider
	persist   persistence.Store
	logger    *zap.Logger
	collector *metrics.Collector

	added       int64
	retrievals  int64
	adaptations int64
	predictions int64
	validations int64
	evicted     int64
}

// NewReasoner creates a case-based reasoner. Provider and persist may be
// nil for in-memory, embedding-free operation.
func NewReasoner(config ReasonerConfig, provider embedding.Provider, persist persistence.Store, logger *zap.Logger, collector *metrics.Collector) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultReasonerConfig()
	if config.Capacity <= 0 {
		config.Capacity = def.Capacity
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if config.EmbeddingDimensions <= 0 {
		config.EmbeddingDimensions = def.EmbeddingDimensions
	}
	if config.EmbeddingTimeout <= 0 {
		config.EmbeddingTimeout = def.EmbeddingTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Reasoner{
		cases:       make(map[string]*types.ComplianceCase),
		domainIndex: make(map[string][]string),
		tagIndex:    make(map[string][]string),
		riskIndex:   make(map[string][]string),
		config:      config,
		provider:    provider,
		persist:     persist,
		logger:      logger.With(zap.String("component", "case_reasoner")),
		collector:   collector,
	}
}

// AddCase validates and admits a case: classification metadata and feature
// weights are derived from the context when absent, an embedding is
// generated outside the case-base lock, indexes are rebuilt, and oversize
// bases are trimmed.
func (r *Reasoner) AddCase(ctx context.Context, c *types.ComplianceCase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	now := r.config.Now()
	admitted := c.Clone()
	if admitted.Timestamp.IsZero() {
		admitted.Timestamp = now
	}
	if admitted.Domain == "" {
		if v, ok := stringField(admitted.Context, "domain"); ok {
			admitted.Domain = v
		}
	}
	if admitted.RiskLevel == "" {
		if v, ok := stringField(admitted.Context, "risk_level"); ok {
			admitted.RiskLevel = v
		}
	}
	if len(admitted.Tags) == 0 {
		admitted.Tags = memory.ExtractTopics(admitted.Context, admitted.Title, admitted.Description)
	}
	if len(admitted.FeatureWeights) == 0 {
		admitted.FeatureWeights = ExtractFeatureWeights(admitted.Context)
	}
	if admitted.SuccessScore == 0 {
		admitted.SuccessScore = 0.5
	}

	if len(admitted.Embedding) == 0 {
		admitted.Embedding = r.embed(ctx, caseText(admitted))
	}

	r.mu.Lock()
	r.cases[admitted.CaseID] = admitted
	r.evictLocked(now)
	r.rebuildIndexesLocked()
	r.added++
	r.mu.Unlock()

	r.collector.RecordCaseAdded()
	r.persistCase(admitted)

	r.logger.Debug("case added",
		zap.String("case_id", admitted.CaseID),
		zap.String("domain", admitted.Domain),
		zap.String("risk_level", admitted.RiskLevel))
	return nil
}

// AddCaseFromMemoryEntry converts a decision-bearing memory entry into a
// case and admits it. Entries without a decision are a validation error.
func (r *Reasoner) AddCaseFromMemoryEntry(ctx context.Context, entry *types.MemoryEntry) (*types.ComplianceCase, error) {
	if entry == nil {
		return nil, types.NewError(types.ErrValidation, "entry is nil")
	}
	if len(entry.Decision) == 0 {
		return nil, types.NewError(types.ErrValidation, "entry has no decision to convert")
	}

	title := entry.Summary
	if title == "" {
		title = "decision from conversation " + entry.ConversationID
	}

	successScore := 0.5
	if entry.FeedbackScore != nil {
		successScore = (*entry.FeedbackScore + 1) / 2
	}

	c := &types.ComplianceCase{
		CaseID:       uuid.NewString(),
		Title:        title,
		Description:  entry.Summary,
		Context:      entry.Context,
		Decision:     entry.Decision,
		Outcome:      entry.Outcome,
		Tags:         entry.Topics,
		Timestamp:    entry.CreatedAt,
		SuccessScore: successScore,
		Embedding:    entry.Embedding,
	}
	if err := r.AddCase(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RetrieveSimilarCases filters the case base and scores survivors with the
// blended similarity: domain 0.3, risk level 0.2, tag overlap 0.3,
// embedding cosine 0.2.
func (r *Reasoner) RetrieveSimilarCases(ctx context.Context, query types.CaseQuery) ([]types.ScoredCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	now := r.config.Now()

	var queryVec []float64
	if query.QueryText != "" {
		queryVec = r.embed(ctx, query.QueryText)
	}
	queryTags := query.RequiredTags
	if len(queryTags) == 0 && query.Context != nil {
		queryTags = memory.ExtractTopics(query.Context)
	}

	r.mu.Lock()
	r.retrievals++
	var scored []types.ScoredCase
	for _, c := range r.cases {
		if !matchesCaseQuery(c, query, now) {
			continue
		}
		sim := blendedSimilarity(c, query, queryTags, queryVec)
		if sim < query.MinSimilarity {
			continue
		}
		scored = append(scored, types.ScoredCase{
			Case:       c.Clone(),
			Similarity: sim,
			Confidence: sim * c.SuccessScore,
		})
	}
	r.mu.Unlock()

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if query.MaxResults > 0 && len(scored) > query.MaxResults {
		scored = scored[:query.MaxResults]
	}

	r.collector.RecordCaseRetrieval(time.Since(start))
	return scored, nil
}

func matchesCaseQuery(c *types.ComplianceCase, q types.CaseQuery, now time.Time) bool {
	if q.Domain != "" && c.Domain != q.Domain {
		return false
	}
	if q.RiskLevel != "" && c.RiskLevel != q.RiskLevel {
		return false
	}
	if q.MaxAge > 0 && now.Sub(c.Timestamp) > q.MaxAge {
		return false
	}
	if len(q.RequiredTags) > 0 {
		have := make(map[string]struct{}, len(c.Tags))
		for _, t := range c.Tags {
			have[t] = struct{}{}
		}
		for _, t := range q.RequiredTags {
			if _, ok := have[t]; !ok {
				return false
			}
		}
	}
	return true
}

func blendedSimilarity(c *types.ComplianceCase, q types.CaseQuery, queryTags []string, queryVec []float64) float64 {
	var sim float64

	queryDomain := q.Domain
	if queryDomain == "" {
		queryDomain, _ = stringField(q.Context, "domain")
	}
	if queryDomain != "" && c.Domain == queryDomain {
		sim += domainWeight
	}

	queryRisk := q.RiskLevel
	if queryRisk == "" {
		queryRisk, _ = stringField(q.Context, "risk_level")
	}
	if queryRisk != "" && c.RiskLevel == queryRisk {
		sim += riskWeight
	}

	sim += tagWeight * memory.JaccardSimilarity(queryTags, c.Tags)

	if len(queryVec) > 0 && !embedding.IsZero(queryVec) &&
		len(c.Embedding) > 0 && !embedding.IsZero(c.Embedding) {
		cos := memory.CosineSimilarity(queryVec, c.Embedding)
		if cos > 0 {
			sim += embeddingWeight * cos
		}
	}
	return sim
}

// AdaptCasesToScenario performs weighted voting over retrieved cases'
// decisions, weight = similarity x success score, and reports the winning
// decision with an aggregate confidence.
func (r *Reasoner) AdaptCasesToScenario(ctx context.Context, query types.CaseQuery, retrieved []types.ScoredCase) (*types.AdaptedDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(retrieved) == 0 {
		return nil, types.NewError(types.ErrNotFound, "no cases to adapt from")
	}

	type vote struct {
		decision map[string]any
		weight   float64
		cases    []string
	}
	votes := make(map[string]*vote)
	contributions := make(map[string]float64)

	var simSum, confSum float64
	for _, sc := range retrieved {
		weight := sc.Similarity * sc.Case.SuccessScore
		key := decisionKey(sc.Case.Decision)
		v, ok := votes[key]
		if !ok {
			v = &vote{decision: sc.Case.Decision}
			votes[key] = v
		}
		v.weight += weight
		v.cases = append(v.cases, sc.Case.CaseID)

		for f, w := range sc.Case.FeatureWeights {
			contributions[f] += w * weight
		}
		simSum += sc.Similarity
		confSum += sc.Confidence
	}

	var winner *vote
	for _, v := range votes {
		if winner == nil || v.weight > winner.weight {
			winner = v
		}
	}

	n := float64(len(retrieved))
	confidence := 0.7*(simSum/n) + 0.3*(confSum/n)

	r.mu.Lock()
	r.adaptations++
	r.mu.Unlock()

	sort.Strings(winner.cases)
	return &types.AdaptedDecision{
		Decision:             winner.decision,
		Confidence:           confidence,
		SupportingCases:      winner.cases,
		FeatureContributions: contributions,
	}, nil
}

// PredictOutcome aggregates the historical outcomes of similar cases that
// took the same decision, weighted by similarity and success score.
func (r *Reasoner) PredictOutcome(ctx context.Context, contextData, decision map[string]any) (*types.OutcomePrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	similar, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{
		Context:    contextData,
		MaxResults: 20,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.predictions++
	r.mu.Unlock()

	key := decisionKey(decision)
	type outcomeVote struct {
		outcome map[string]any
		weight  float64
	}
	votes := make(map[string]*outcomeVote)
	var total float64
	count := 0

	for _, sc := range similar {
		if decisionKey(sc.Case.Decision) != key || len(sc.Case.Outcome) == 0 {
			continue
		}
		weight := sc.Similarity * sc.Case.SuccessScore
		ok := decisionKey(sc.Case.Outcome)
		v, exists := votes[ok]
		if !exists {
			v = &outcomeVote{outcome: sc.Case.Outcome}
			votes[ok] = v
		}
		v.weight += weight
		total += weight
		count++
	}

	if count == 0 || total == 0 {
		return &types.OutcomePrediction{Confidence: 0, CaseCount: 0}, nil
	}

	var winner *outcomeVote
	for _, v := range votes {
		if winner == nil || v.weight > winner.weight {
			winner = v
		}
	}
	return &types.OutcomePrediction{
		Outcome:    winner.outcome,
		Confidence: winner.weight / total,
		CaseCount:  count,
	}, nil
}

// ValidateDecision checks a proposed decision against similar historical
// cases, counting supporting versus contradicting precedents. The decision
// is flagged invalid when contradictions are at least as numerous.
func (r *Reasoner) ValidateDecision(ctx context.Context, contextData, decision map[string]any) (*types.DecisionValidation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	similar, err := r.RetrieveSimilarCases(ctx, types.CaseQuery{
		Context:    contextData,
		MaxResults: 20,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.validations++
	r.mu.Unlock()

	key := decisionKey(decision)
	var supporting, contradicting int
	var supportWeight, contradictWeight float64
	for _, sc := range similar {
		weight := sc.Similarity * sc.Case.SuccessScore
		if decisionKey(sc.Case.Decision) == key {
			supporting++
			supportWeight += weight
		} else {
			contradicting++
			contradictWeight += weight
		}
	}

	confidence := 0.5
	if total := supportWeight + contradictWeight; total > 0 {
		confidence = max(supportWeight, contradictWeight) / total
	}
	return &types.DecisionValidation{
		Valid:         supporting > contradicting,
		Supporting:    supporting,
		Contradicting: contradicting,
		Confidence:    confidence,
	}, nil
}

// UpdateCaseOutcome records the observed outcome and success score for a
// case in place.
func (r *Reasoner) UpdateCaseOutcome(ctx context.Context, caseID string, outcome map[string]any, successScore float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if successScore < 0 || successScore > 1 {
		return types.NewError(types.ErrValidation, "success score must be in [0,1]")
	}

	r.mu.Lock()
	c, ok := r.cases[caseID]
	if !ok {
		r.mu.Unlock()
		return types.NewErrorf(types.ErrNotFound, "case %s not found", caseID)
	}
	c.Outcome = outcome
	c.SuccessScore = successScore
	out := c.Clone()
	r.mu.Unlock()

	r.persistCase(out)
	return nil
}

// GetCase returns a copy of the case by id.
func (r *Reasoner) GetCase(ctx context.Context, caseID string) (*types.ComplianceCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	c, ok := r.cases[caseID]
	if ok {
		out := c.Clone()
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	if r.config.PersistenceEnabled && r.persist != nil {
		return r.persist.GetCase(ctx, caseID)
	}
	return nil, types.NewErrorf(types.ErrNotFound, "case %s not found", caseID)
}

// CasesByDomain returns the ids indexed under a domain.
func (r *Reasoner) CasesByDomain(domain string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.domainIndex[domain]...)
}

// CasesByTag returns the ids indexed under a tag.
func (r *Reasoner) CasesByTag(tag string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tagIndex[tag]...)
}

// Len returns the current case count.
func (r *Reasoner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cases)
}

// Stats returns a snapshot of reasoner counters.
func (r *Reasoner) Stats() ReasonerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReasonerStats{
		Cases:       len(r.cases),
		Capacity:    r.config.Capacity,
		Added:       r.added,
		Retrievals:  r.retrievals,
		Adaptations: r.adaptations,
		Predictions: r.predictions,
		Validations: r.validations,
		Evicted:     r.evicted,
	}
}

// evictLocked trims the case base to capacity: cases older than the
// retention window go first, then the lowest success scores. Caller holds
// r.mu.
func (r *Reasoner) evictLocked(now time.Time) {
	if len(r.cases) <= r.config.Capacity {
		return
	}

	type candidate struct {
		id      string
		expired bool
		success float64
		ts      time.Time
	}
	candidates := make([]candidate, 0, len(r.cases))
	for id, c := range r.cases {
		candidates = append(candidates, candidate{
			id:      id,
			expired: now.Sub(c.Timestamp) > r.config.Retention,
			success: c.SuccessScore,
			ts:      c.Timestamp,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].expired != candidates[j].expired {
			return candidates[i].expired
		}
		if candidates[i].success != candidates[j].success {
			return candidates[i].success < candidates[j].success
		}
		return candidates[i].ts.Before(candidates[j].ts)
	})

	for _, cand := range candidates {
		if len(r.cases) <= r.config.Capacity {
			break
		}
		delete(r.cases, cand.id)
		r.evicted++
		r.deleteCase(cand.id)
	}
}

// rebuildIndexesLocked rebuilds all secondary indexes wholesale. Caller
// holds r.mu.
func (r *Reasoner) rebuildIndexesLocked() {
	r.domainIndex = make(map[string][]string)
	r.tagIndex = make(map[string][]string)
	r.riskIndex = make(map[string][]string)
	for id, c := range r.cases {
		if c.Domain != "" {
			r.domainIndex[c.Domain] = append(r.domainIndex[c.Domain], id)
		}
		if c.RiskLevel != "" {
			r.riskIndex[c.RiskLevel] = append(r.riskIndex[c.RiskLevel], id)
		}
		for _, t := range c.Tags {
			r.tagIndex[t] = append(r.tagIndex[t], id)
		}
	}
}

// embed generates a vector with the zero-vector fallback on any failure.
func (r *Reasoner) embed(ctx context.Context, text string) []float64 {
	if !r.config.EmbeddingsEnabled || r.provider == nil || text == "" {
		return embedding.ZeroVector(r.config.EmbeddingDimensions)
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.config.EmbeddingTimeout)
	defer cancel()

	vec, err := r.provider.EmbedQuery(embedCtx, text)
	if err != nil {
		r.logger.Warn("embedding generation failed, using zero vector",
			zap.String("provider", r.provider.Name()),
			zap.Error(err))
		return embedding.ZeroVector(r.config.EmbeddingDimensions)
	}
	if len(vec) == 0 {
		return embedding.ZeroVector(r.config.EmbeddingDimensions)
	}
	return vec
}

// persistCase writes a case durably without blocking the caller.
func (r *Reasoner) persistCase(c *types.ComplianceCase) {
	if !r.config.PersistenceEnabled || r.persist == nil {
		return
	}
	cc := c.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.persist.UpsertCase(ctx, cc); err != nil {
			r.logger.Warn("case persistence failed",
				zap.String("case_id", cc.CaseID), zap.Error(err))
		}
	}()
}

// deleteCase removes a case from persistence without blocking.
func (r *Reasoner) deleteCase(caseID string) {
	if !r.config.PersistenceEnabled || r.persist == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.persist.DeleteCase(ctx, caseID); err != nil && !types.IsNotFound(err) {
			r.logger.Warn("case deletion failed",
				zap.String("case_id", caseID), zap.Error(err))
		}
	}()
}
