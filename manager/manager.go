package manager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// OptimizationPlan configures one optimization cycle: the consolidation
// strategies to run, the forgetting strategy, and the rescheduling interval.
type OptimizationPlan struct {
	// Strategies are the consolidation strategies, run in order.
	Strategies []ConsolidationStrategy `yaml:"strategies" json:"strategies"`

	// Forgetting is the forgetting strategy applied after consolidation.
	Forgetting ForgettingStrategy `yaml:"forgetting" json:"forgetting"`

	// MaxEntryAge is the age cutoff above which entries are consolidated.
	MaxEntryAge time.Duration `yaml:"max_entry_age" json:"max_entry_age"`

	// PressureThreshold triggers emergency cleanup when still exceeded
	// after forgetting. Must be in (0, 1].
	PressureThreshold float64 `yaml:"pressure_threshold" json:"pressure_threshold"`

	// Interval schedules the next optimization run.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// Validate rejects malformed plans.
func (p OptimizationPlan) Validate() error {
	if len(p.Strategies) == 0 {
		return types.NewError(types.ErrConfiguration, "optimization plan needs at least one strategy")
	}
	for _, s := range p.Strategies {
		switch s {
		case MergeSimilar, ExtractPatterns, CompressDetails, PromoteImportant:
		default:
			return types.NewErrorf(types.ErrConfiguration, "unknown consolidation strategy %q", s)
		}
	}
	switch p.Forgetting {
	case TimeBased, ImportanceBased, UsageBased, Adaptive, Preservation:
	default:
		return types.NewErrorf(types.ErrConfiguration, "unknown forgetting strategy %q", p.Forgetting)
	}
	if p.PressureThreshold <= 0 || p.PressureThreshold > 1 {
		return types.NewError(types.ErrConfiguration, "pressure threshold must be in (0, 1]")
	}
	if p.Interval <= 0 {
		return types.NewError(types.ErrConfiguration, "interval must be positive")
	}
	return nil
}

// DefaultPlan returns the standard optimization plan.
func DefaultPlan() OptimizationPlan {
	return OptimizationPlan{
		Strategies:        []ConsolidationStrategy{MergeSimilar, CompressDetails, PromoteImportant},
		Forgetting:        Adaptive,
		MaxEntryAge:       24 * time.Hour,
		PressureThreshold: 0.9,
		Interval:          time.Hour,
	}
}

// Config controls the memory manager.
type Config struct {
	// Plan is the optimization plan applied on scheduled runs.
	Plan OptimizationPlan `yaml:"plan" json:"plan"`

	// RetentionWindow is the age cutoff for time-based forgetting.
	RetentionWindow time.Duration `yaml:"retention_window" json:"retention_window"`

	// UnusedWindow is the age cutoff for usage-based forgetting of
	// never-accessed entries.
	UnusedWindow time.Duration `yaml:"unused_window" json:"unused_window"`

	// Now is the clock, injectable for tests.
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Plan:            DefaultPlan(),
		RetentionWindow: DefaultRetentionWindow,
		UnusedWindow:    DefaultUnusedWindow,
		Now:             time.Now,
	}
}

// OptimizationResult summarizes one full optimization cycle.
type OptimizationResult struct {
	Consolidations []ConsolidationResult `json:"consolidations"`
	Forgotten      int                   `json:"forgotten"`
	Emergency      int                   `json:"emergency"`
	Pressure       float64               `json:"pressure"`
	Duration       time.Duration         `json:"duration"`
}

// Manager orchestrates the memory lifecycle over a store.
type Manager struct {
	store     *memory.Store
	config    Config
	logger    *zap.Logger
	collector *metrics.Collector

	mu        sync.Mutex
	forgotten int64
	runs      int64
	timer     *time.Timer
	closed    bool
}

// New creates a memory manager. The configured plan must be valid.
func New(config Config, store *memory.Store, logger *zap.Logger, collector *metrics.Collector) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.RetentionWindow <= 0 {
		config.RetentionWindow = DefaultRetentionWindow
	}
	if config.UnusedWindow <= 0 {
		config.UnusedWindow = DefaultUnusedWindow
	}
	if err := config.Plan.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		store:     store,
		config:    config,
		logger:    logger.With(zap.String("component", "memory_manager")),
		collector: collector,
	}, nil
}

// Reconfigure swaps in a new plan. An invalid plan is rejected and the
// previous one stays in force.
func (m *Manager) Reconfigure(plan OptimizationPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config.Plan = plan
	m.mu.Unlock()
	m.logger.Info("optimization plan replaced",
		zap.Int("strategies", len(plan.Strategies)),
		zap.String("forgetting", string(plan.Forgetting)),
		zap.Duration("interval", plan.Interval))
	return nil
}

// RunOptimization executes the configured plan once: all consolidation
// strategies, then forgetting, then emergency cleanup if pressure still
// exceeds the plan's threshold. The next scheduled run is (re)armed.
func (m *Manager) RunOptimization(ctx context.Context) (*OptimizationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	m.mu.Lock()
	plan := m.config.Plan
	m.runs++
	m.mu.Unlock()

	result := &OptimizationResult{}
	for _, strategy := range plan.Strategies {
		cr, err := m.Consolidate(ctx, strategy, plan.MaxEntryAge)
		if err != nil {
			return nil, err
		}
		result.Consolidations = append(result.Consolidations, *cr)
	}

	forgotten, err := m.Forget(ctx, plan.Forgetting)
	if err != nil {
		return nil, err
	}
	result.Forgotten = forgotten

	if m.store.Pressure() > plan.PressureThreshold {
		emergency, err := m.emergencyCleanup(ctx, plan.PressureThreshold)
		if err != nil {
			return nil, err
		}
		result.Emergency = emergency
	}

	result.Pressure = m.store.Pressure()
	result.Duration = time.Since(start)
	m.schedule(plan.Interval)

	m.logger.Info("optimization cycle finished",
		zap.Int("forgotten", result.Forgotten),
		zap.Int("emergency", result.Emergency),
		zap.Float64("pressure", result.Pressure),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Schedule arms the optimization timer. A pending schedule is cancelled and
// replaced; runs never overlap for one manager.
func (m *Manager) Schedule(interval time.Duration) error {
	if interval <= 0 {
		return types.NewError(types.ErrConfiguration, "interval must be positive")
	}
	m.schedule(interval)
	return nil
}

func (m *Manager) schedule(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := m.RunOptimization(ctx); err != nil {
			m.logger.Error("scheduled optimization failed", zap.Error(err))
		}
	})
}

// Close cancels any pending scheduled run.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return nil
}

// Runs returns how many optimization cycles have started.
func (m *Manager) Runs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}
