// Package memflow wires the memory store, learning engine, case-based
// reasoner, and memory manager into a single system.
//
// Usage:
//
//	import "github.com/BaSui01/memflow"
//
//	sys, err := memflow.New(config.DefaultConfig(), logger)
//	defer sys.Close()
//
//	sys.Memory.Store(ctx, entry)
//	sys.Learning.ProcessFeedback(ctx, event)
//
// Each component can also be constructed directly from its own package when
// only a subset of the system is needed.
package memflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/casebase"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/embedding"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/learning"
	"github.com/BaSui01/memflow/manager"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/persistence"
)

// System bundles the four memflow components over shared persistence,
// embeddings, and metrics.
type System struct {
	Memory   *memory.Store
	Learning *learning.Engine
	Cases    *casebase.Reasoner
	Manager  *manager.Manager

	persist persistence.Store
	logger  *zap.Logger
}

// New builds a complete system from configuration. A nil logger is replaced
// with a noop logger.
func New(cfg *config.Config, logger *zap.Logger) (*System, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	persist, err := persistence.Open(persistence.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Pool: persistence.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		},
		Redis: persistence.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}

	provider := buildProvider(cfg.Embedding)
	collector := metrics.NewCollector("memflow", logger)

	store := memory.NewStore(memory.StoreConfig{
		CacheCapacity:       cfg.Store.CacheCapacity,
		EmbeddingsEnabled:   cfg.Embedding.Enabled,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
		EmbeddingTimeout:    cfg.Embedding.Timeout,
		PersistenceEnabled:  cfg.Store.PersistenceEnabled,
	}, provider, persist, logger, collector)

	engine := learning.NewEngine(learning.EngineConfig{
		DefaultLearningRate: cfg.Learning.DefaultLearningRate,
		PatternThreshold:    cfg.Learning.PatternThreshold,
		MaxRecommendations:  cfg.Learning.MaxRecommendations,
	}, store, logger, collector)

	reasoner := casebase.NewReasoner(casebase.ReasonerConfig{
		Capacity:            cfg.CaseBase.Capacity,
		Retention:           cfg.CaseBase.Retention,
		EmbeddingsEnabled:   cfg.Embedding.Enabled,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
		EmbeddingTimeout:    cfg.Embedding.Timeout,
		PersistenceEnabled:  cfg.CaseBase.PersistenceEnabled,
	}, provider, persist, logger, collector)

	mgr, err := manager.New(manager.Config{
		Plan:            planFromConfig(cfg.Manager),
		RetentionWindow: cfg.Manager.RetentionWindow,
		UnusedWindow:    cfg.Manager.UnusedWindow,
	}, store, logger, collector)
	if err != nil {
		persist.Close()
		return nil, err
	}

	return &System{
		Memory:   store,
		Learning: engine,
		Cases:    reasoner,
		Manager:  mgr,
		persist:  persist,
		logger:   logger,
	}, nil
}

// PingStore reports whether the persistence backend is reachable.
func (s *System) PingStore(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	return s.persist.Ping(ctx)
}

// Close stops the manager's scheduler and releases the persistence backend.
func (s *System) Close() error {
	if s == nil {
		return nil
	}
	s.Manager.Close()
	if s.persist != nil {
		return s.persist.Close()
	}
	return nil
}

func buildProvider(cfg config.EmbeddingConfig) embedding.Provider {
	if !cfg.Enabled || cfg.Provider == "disabled" {
		return embedding.NewDisabled(cfg.Dimensions)
	}
	return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
	})
}

func planFromConfig(cfg config.ManagerConfig) manager.OptimizationPlan {
	plan := manager.DefaultPlan()
	if len(cfg.Strategies) > 0 {
		plan.Strategies = make([]manager.ConsolidationStrategy, 0, len(cfg.Strategies))
		for _, s := range cfg.Strategies {
			plan.Strategies = append(plan.Strategies, manager.ConsolidationStrategy(s))
		}
	}
	if cfg.Forgetting != "" {
		plan.Forgetting = manager.ForgettingStrategy(cfg.Forgetting)
	}
	if cfg.MaxEntryAge > 0 {
		plan.MaxEntryAge = cfg.MaxEntryAge
	}
	if cfg.PressureThreshold > 0 {
		plan.PressureThreshold = cfg.PressureThreshold
	}
	if cfg.Interval > 0 {
		plan.Interval = cfg.Interval
	}
	return plan
}
