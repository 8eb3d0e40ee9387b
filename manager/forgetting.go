package manager

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// ForgettingStrategy selects how entries are removed.
type ForgettingStrategy string

const (
	TimeBased       ForgettingStrategy = "time_based"
	ImportanceBased ForgettingStrategy = "importance_based"
	UsageBased      ForgettingStrategy = "usage_based"
	Adaptive        ForgettingStrategy = "adaptive"
	Preservation    ForgettingStrategy = "preservation"
)

// AdaptiveFloor derives the importance floor for adaptive forgetting from
// the current memory pressure.
func AdaptiveFloor(pressure float64) float64 {
	switch {
	case pressure < 0.3:
		return 0.3
	case pressure < 0.7:
		return 0.2
	default:
		return 0.1
	}
}

// Forget removes entries under the given strategy and returns how many were
// removed.
func (m *Manager) Forget(ctx context.Context, strategy ForgettingStrategy) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := m.config.Now()

	var removed int
	var err error
	switch strategy {
	case Preservation:
		removed = 0
	case TimeBased:
		removed, err = m.store.RemoveWhere(ctx, func(e *types.MemoryEntry) bool {
			return e.Age(now) > m.config.RetentionWindow
		})
	case ImportanceBased:
		removed, err = m.store.RemoveWhere(ctx, func(e *types.MemoryEntry) bool {
			return e.ShouldForget(now)
		})
	case UsageBased:
		removed, err = m.store.RemoveWhere(ctx, func(e *types.MemoryEntry) bool {
			return e.AccessCount == 0 && e.Age(now) > m.config.UnusedWindow
		})
	case Adaptive:
		floor := AdaptiveFloor(m.store.Pressure())
		removed, err = m.store.Forget(ctx, types.ForgetMaxAge, floor)
	default:
		return 0, types.NewErrorf(types.ErrConfiguration, "unknown forgetting strategy %q", strategy)
	}
	if err != nil {
		return 0, err
	}

	m.recordForgotten(removed)
	m.collector.RecordEntriesForgotten(string(strategy), removed)
	if removed > 0 {
		m.logger.Info("forgetting pass finished",
			zap.String("strategy", string(strategy)),
			zap.Int("removed", removed))
	}
	return removed, nil
}

// emergencyCleanupCap bounds total removals per optimization call.
const emergencyCleanupCap = 1000

// emergencyCleanup runs aggressive importance-based forgetting passes until
// pressure drops below the threshold, nothing more qualifies, or the cap is
// reached.
func (m *Manager) emergencyCleanup(ctx context.Context, threshold float64) (int, error) {
	now := m.config.Now()
	total := 0
	floor := 0.3

	for total < emergencyCleanupCap && m.store.Pressure() > threshold {
		budget := emergencyCleanupCap - total
		f := floor
		removed, err := m.removeUpTo(ctx, budget, func(e *types.MemoryEntry) bool {
			return e.EffectiveImportance(now) < f
		})
		if err != nil {
			return total, err
		}
		total += removed
		if removed == 0 {
			floor += 0.1
			if floor > 0.9 {
				break
			}
		}
	}

	if total > 0 {
		m.recordForgotten(total)
		m.collector.RecordEntriesForgotten("emergency", total)
		m.logger.Warn("emergency cleanup removed entries", zap.Int("removed", total))
	}
	return total, nil
}

// removeUpTo removes at most limit matching entries.
func (m *Manager) removeUpTo(ctx context.Context, limit int, match func(*types.MemoryEntry) bool) (int, error) {
	count := 0
	return m.store.RemoveWhere(ctx, func(e *types.MemoryEntry) bool {
		if count >= limit || !match(e) {
			return false
		}
		count++
		return true
	})
}

// recordForgotten feeds the rolling forgetting-rate estimate.
func (m *Manager) recordForgotten(count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	m.forgotten += int64(count)
	m.mu.Unlock()
}

// RetentionDefaults for time and usage based forgetting.
const (
	DefaultRetentionWindow = 90 * 24 * time.Hour
	DefaultUnusedWindow    = 14 * 24 * time.Hour
)
