package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/embedding"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/persistence"
	"github.com/BaSui01/memflow/types"
)

// StoreConfig controls the memory store.
type StoreConfig struct {
	// CacheCapacity is the maximum number of cached entries before
	// least-recently-accessed eviction kicks in.
	CacheCapacity int `yaml:"cache_capacity" json:"cache_capacity"`

	// EmbeddingsEnabled toggles semantic embedding generation.
	EmbeddingsEnabled bool `yaml:"embeddings_enabled" json:"embeddings_enabled"`

	// EmbeddingDimensions is the expected vector length; zero vectors of
	// this length substitute for failed or disabled generation.
	EmbeddingDimensions int `yaml:"embedding_dimensions" json:"embedding_dimensions"`

	// EmbeddingTimeout bounds each provider call.
	EmbeddingTimeout time.Duration `yaml:"embedding_timeout" json:"embedding_timeout"`

	// PersistenceEnabled toggles the durable write-behind path.
	PersistenceEnabled bool `yaml:"persistence_enabled" json:"persistence_enabled"`

	// Now is the clock, injectable for tests.
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultStoreConfig returns sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		CacheCapacity:       10000,
		EmbeddingsEnabled:   true,
		EmbeddingDimensions: 384,
		EmbeddingTimeout:    5 * time.Second,
		PersistenceEnabled:  true,
		Now:                 time.Now,
	}
}

// StoreStats is a point-in-time snapshot of store activity.
type StoreStats struct {
	Entries        int     `json:"entries"`
	Capacity       int     `json:"capacity"`
	Pressure       float64 `json:"pressure"`
	Stored         int64   `json:"stored"`
	Retrieved      int64   `json:"retrieved"`
	Searches       int64   `json:"searches"`
	Evicted        int64   `json:"evicted"`
	Forgotten      int64   `json:"forgotten"`
	FeedbackEvents int64   `json:"feedback_events"`
}

// Store is the episodic memory store: a capacity-bounded cache of entries
// with semantic retrieval, feedback updates, and an optional durable
// write-behind.
type Store struct {
	mu      sync.Mutex
	entries map[string]*types.MemoryEntry

	config    StoreConfig
	provider  embedding.Provider
	persist   persistence.Store
	logger    *zap.Logger
	collector *metrics.Collector

	stored         int64
	retrieved      int64
	searches       int64
	evicted        int64
	forgotten      int64
	feedbackEvents int64
}

// NewStore creates a memory store. Provider and persist may be nil; the
// store then runs with zero-vector embeddings and in-memory-only state.
func NewStore(config StoreConfig, provider embedding.Provider, persist persistence.Store, logger *zap.Logger, collector *metrics.Collector) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CacheCapacity <= 0 {
		config.CacheCapacity = DefaultStoreConfig().CacheCapacity
	}
	if config.EmbeddingDimensions <= 0 {
		config.EmbeddingDimensions = DefaultStoreConfig().EmbeddingDimensions
	}
	if config.EmbeddingTimeout <= 0 {
		config.EmbeddingTimeout = DefaultStoreConfig().EmbeddingTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store{
		entries:   make(map[string]*types.MemoryEntry),
		config:    config,
		provider:  provider,
		persist:   persist,
		logger:    logger.With(zap.String("component", "memory_store")),
		collector: collector,
	}
}

// Store validates and admits an entry: derives importance, topics, tags and
// a summary from the context, generates an embedding outside the cache
// lock, commits to the cache with eviction, and persists best-effort.
func (s *Store) Store(ctx context.Context, entry *types.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	now := s.config.Now()
	e := entry.Clone()
	if e.Kind == "" {
		e.Kind = types.MemoryEpisodic
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastAccessedAt.IsZero() {
		e.LastAccessedAt = e.CreatedAt
	}
	if e.DecayFactor == 0 {
		e.DecayFactor = 1.0
	}
	if e.Importance == 0 {
		e.Importance = DeriveImportance(e.Context)
	}
	if len(e.Topics) == 0 {
		e.Topics = ExtractTopics(e.Context, e.Summary)
	}
	if len(e.ComplianceTags) == 0 {
		e.ComplianceTags = ExtractComplianceTags(e.Context)
	}
	if e.Summary == "" {
		e.Summary = Summarize(e)
	}
	if e.Tier == "" {
		e.Tier = types.TierWorking
	}

	// Embedding generation happens before the cache lock is taken.
	if len(e.Embedding) == 0 {
		e.Embedding = s.embed(ctx, EmbeddingText(e))
	}

	s.mu.Lock()
	s.entries[e.ID] = e
	s.evictLocked()
	s.stored++
	pressure := float64(len(s.entries)) / float64(s.config.CacheCapacity)
	s.mu.Unlock()

	s.collector.RecordEntryStored(e.AgentID, string(e.Kind))
	s.collector.SetMemoryPressure(pressure)
	s.persistEntry(e)

	s.logger.Debug("entry stored",
		zap.String("id", e.ID),
		zap.String("agent_id", e.AgentID),
		zap.String("importance", e.Importance.String()),
		zap.Strings("topics", e.Topics))
	return nil
}

// Retrieve looks an entry up by id, cache first, then persistence. The
// access counter is bumped on every hit.
func (s *Store) Retrieve(ctx context.Context, id string) (*types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.config.Now()

	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.RecordAccess(now)
		s.retrieved++
		out := e.Clone()
		s.mu.Unlock()
		s.collector.RecordCacheHit()
		s.persistEntry(out)
		return out, nil
	}
	s.mu.Unlock()
	s.collector.RecordCacheMiss()

	if !s.config.PersistenceEnabled || s.persist == nil {
		return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}

	e, err := s.persist.GetEntry(ctx, id)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, err
		}
		s.logger.Warn("persistence lookup failed", zap.String("id", id), zap.Error(err))
		return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}

	e.RecordAccess(now)
	s.mu.Lock()
	s.entries[e.ID] = e.Clone()
	s.evictLocked()
	s.retrieved++
	s.mu.Unlock()
	s.persistEntry(e)
	return e, nil
}

// RetrieveByConversation returns the most recently created entry for a
// conversation. The access counter is bumped on a hit.
func (s *Store) RetrieveByConversation(ctx context.Context, conversationID string) (*types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.config.Now()

	s.mu.Lock()
	var latest *types.MemoryEntry
	for _, e := range s.entries {
		if e.ConversationID != conversationID {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		s.mu.Unlock()
		return nil, types.NewErrorf(types.ErrNotFound, "no entry for conversation %s", conversationID)
	}
	latest.RecordAccess(now)
	s.retrieved++
	out := latest.Clone()
	s.mu.Unlock()

	s.persistEntry(out)
	return out, nil
}

// RetrieveSimilar runs a similarity search over the cache: embedding cosine
// similarity when both vectors exist, topic overlap otherwise. Returned
// entries have their access recorded.
func (s *Store) RetrieveSimilar(ctx context.Context, query types.RetrievalQuery) ([]types.ScoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	now := s.config.Now()

	required := query.RequiredTopics
	if len(required) == 0 && query.QueryText != "" {
		required = ExtractTopicsFromText(query.QueryText)
	}

	var queryVec []float64
	if query.QueryText != "" {
		queryVec = s.embed(ctx, query.QueryText)
	}

	s.mu.Lock()
	s.searches++
	var scored []types.ScoredEntry
	for _, e := range s.entries {
		if !matchesQuery(e, query) {
			continue
		}
		sim := entrySimilarity(queryVec, required, e)
		if sim < query.MinSimilarity {
			continue
		}
		scored = append(scored, types.ScoredEntry{Entry: e, Similarity: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if query.MaxResults > 0 && len(scored) > query.MaxResults {
		scored = scored[:query.MaxResults]
	}

	for i := range scored {
		scored[i].Entry.RecordAccess(now)
		scored[i].Entry = scored[i].Entry.Clone()
	}
	s.mu.Unlock()

	for _, sc := range scored {
		s.persistEntry(sc.Entry)
	}
	s.collector.RecordSearch(time.Since(start))
	return scored, nil
}

// matchesQuery applies the time-window and attribute filters.
func matchesQuery(e *types.MemoryEntry, q types.RetrievalQuery) bool {
	if q.AgentID != "" && e.AgentID != q.AgentID {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.MinImportance != 0 && e.Importance < q.MinImportance {
		return false
	}
	if !q.Start.IsZero() && e.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.CreatedAt.After(q.End) {
		return false
	}
	return true
}

// entrySimilarity picks the strongest available signal: cosine similarity
// when both embeddings are usable, topic overlap otherwise.
func entrySimilarity(queryVec []float64, required []string, e *types.MemoryEntry) float64 {
	if len(queryVec) > 0 && !embedding.IsZero(queryVec) &&
		len(e.Embedding) > 0 && !embedding.IsZero(e.Embedding) {
		return CosineSimilarity(queryVec, e.Embedding)
	}
	return TopicOverlap(required, e.Topics)
}

// UpdateWithFeedback attaches human feedback to an entry. A strongly
// positive score raises the importance level one grade; a strongly negative
// score shrinks the decay factor by the documented 0.8 factor.
func (s *Store) UpdateWithFeedback(ctx context.Context, id string, feedback map[string]any, kind types.FeedbackType, score float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		var err error
		e, err = s.Retrieve(ctx, id)
		if err != nil {
			return err
		}
		s.mu.Lock()
		cached, exists := s.entries[id]
		if exists {
			e = cached
		} else {
			s.entries[id] = e
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	e.Feedback = feedback
	e.FeedbackType = &kind
	sc := score
	e.FeedbackScore = &sc
	if score > 0.5 {
		e.Importance = e.Importance.Raise()
	}
	if score < -0.5 {
		e.DecayFactor *= 0.8
	}
	s.feedbackEvents++
	out := e.Clone()
	s.mu.Unlock()

	s.persistEntry(out)
	s.logger.Debug("feedback applied",
		zap.String("id", id),
		zap.String("type", string(kind)),
		zap.Float64("score", score))
	return nil
}

// Forget removes every cached entry older than maxAge whose effective
// importance is below minImportance, and every entry whose decay factor has
// collapsed. It returns the number of entries removed.
func (s *Store) Forget(ctx context.Context, maxAge time.Duration, minImportance float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.config.Now()
	return s.RemoveWhere(ctx, func(e *types.MemoryEntry) bool {
		if e.DecayFactor < types.ForgetDecayFloor {
			return true
		}
		return e.Age(now) > maxAge && e.EffectiveImportance(now) < minImportance
	})
}

// RemoveWhere removes every cached entry matching the predicate, deleting
// each from persistence as well. The predicate runs under the cache lock
// and must not block.
func (s *Store) RemoveWhere(ctx context.Context, match func(*types.MemoryEntry) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	var removed []string
	for id, e := range s.entries {
		if match(e) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(s.entries, id)
	}
	s.forgotten += int64(len(removed))
	pressure := float64(len(s.entries)) / float64(s.config.CacheCapacity)
	s.mu.Unlock()

	for _, id := range removed {
		s.deleteEntry(id)
	}
	s.collector.SetMemoryPressure(pressure)
	return len(removed), nil
}

// Snapshot returns deep copies of all cached entries, newest first. It is
// the manager's bulk read path for consolidation and health metrics.
func (s *Store) Snapshot() []*types.MemoryEntry {
	s.mu.Lock()
	out := make([]*types.MemoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateEntry replaces a cached entry wholesale and persists the new
// version. Unknown ids are inserted; the manager uses this to commit
// consolidation results.
func (s *Store) UpdateEntry(ctx context.Context, entry *types.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	e := entry.Clone()
	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()

	s.persistEntry(e)
	return nil
}

// Remove deletes one entry by id from cache and persistence.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	if ok {
		s.forgotten++
	}
	s.mu.Unlock()

	if !ok {
		return types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}
	s.deleteEntry(id)
	return nil
}

// Len returns the current cache size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Capacity returns the configured cache capacity.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.CacheCapacity
}

// Pressure returns cache size over capacity, clamped to [0,1].
func (s *Store) Pressure() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := float64(len(s.entries)) / float64(s.config.CacheCapacity)
	if p > 1 {
		return 1
	}
	return p
}

// Stats returns a snapshot of store counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := float64(len(s.entries)) / float64(s.config.CacheCapacity)
	if p > 1 {
		p = 1
	}
	return StoreStats{
		Entries:        len(s.entries),
		Capacity:       s.config.CacheCapacity,
		Pressure:       p,
		Stored:         s.stored,
		Retrieved:      s.retrieved,
		Searches:       s.searches,
		Evicted:        s.evicted,
		Forgotten:      s.forgotten,
		FeedbackEvents: s.feedbackEvents,
	}
}

// Reconfigure applies a new configuration. Capacity shrinks take effect by
// immediate eviction; invalid values are rejected and the previous
// configuration stays in force.
func (s *Store) Reconfigure(config StoreConfig) error {
	if config.CacheCapacity <= 0 {
		return types.NewError(types.ErrConfiguration, "cache capacity must be positive")
	}
	if config.EmbeddingDimensions <= 0 {
		return types.NewError(types.ErrConfiguration, "embedding dimensions must be positive")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.EmbeddingTimeout <= 0 {
		config.EmbeddingTimeout = DefaultStoreConfig().EmbeddingTimeout
	}

	s.mu.Lock()
	s.config = config
	s.evictLocked()
	s.mu.Unlock()

	s.logger.Info("store reconfigured",
		zap.Int("cache_capacity", config.CacheCapacity),
		zap.Bool("embeddings_enabled", config.EmbeddingsEnabled),
		zap.Bool("persistence_enabled", config.PersistenceEnabled))
	return nil
}

// embed generates a vector for the text, substituting a zero vector on any
// provider failure. A warning is logged; the caller never sees an error.
func (s *Store) embed(ctx context.Context, text string) []float64 {
	if !s.config.EmbeddingsEnabled || s.provider == nil || text == "" {
		return embedding.ZeroVector(s.config.EmbeddingDimensions)
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.config.EmbeddingTimeout)
	defer cancel()

	vec, err := s.provider.EmbedQuery(embedCtx, text)
	if err != nil {
		s.logger.Warn("embedding generation failed, using zero vector",
			zap.String("provider", s.provider.Name()),
			zap.Error(err))
		return embedding.ZeroVector(s.config.EmbeddingDimensions)
	}
	if len(vec) == 0 {
		return embedding.ZeroVector(s.config.EmbeddingDimensions)
	}
	return vec
}

// evictLocked removes least-recently-accessed entries until the cache fits
// its capacity. Caller holds s.mu.
func (s *Store) evictLocked() {
	for len(s.entries) > s.config.CacheCapacity {
		var victim string
		var oldest time.Time
		for id, e := range s.entries {
			if victim == "" || e.LastAccessedAt.Before(oldest) {
				victim = id
				oldest = e.LastAccessedAt
			}
		}
		delete(s.entries, victim)
		s.evicted++
		s.collector.RecordEviction()
	}
}

// persistEntry writes an entry durably without blocking the caller. A
// failed write is logged and dropped.
func (s *Store) persistEntry(e *types.MemoryEntry) {
	if !s.config.PersistenceEnabled || s.persist == nil {
		return
	}
	entry := e.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.persist.UpsertEntry(ctx, entry); err != nil {
			s.logger.Warn("entry persistence failed",
				zap.String("id", entry.ID), zap.Error(err))
		}
	}()
}

// deleteEntry removes an entry from persistence without blocking.
func (s *Store) deleteEntry(id string) {
	if !s.config.PersistenceEnabled || s.persist == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.persist.DeleteEntry(ctx, id); err != nil && !types.IsNotFound(err) {
			s.logger.Warn("entry deletion failed",
				zap.String("id", id), zap.Error(err))
		}
	}()
}
