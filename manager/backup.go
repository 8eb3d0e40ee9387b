package manager

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/memflow/types"
)

// CriticalFunc identifies entries worth backing up. The default keeps
// critical-importance entries and anything carrying regulatory or legal
// compliance tags.
type CriticalFunc func(*types.MemoryEntry) bool

// DefaultCritical is the standard criticality predicate.
func DefaultCritical(e *types.MemoryEntry) bool {
	if e.Importance >= types.ImportanceCritical {
		return true
	}
	for _, tag := range e.ComplianceTags {
		if tag == "regulatory" || tag == "legal" {
			return true
		}
	}
	return false
}

// Backup is the serialized backup envelope.
type Backup struct {
	CreatedAt time.Time            `json:"created_at"`
	Health    HealthMetrics        `json:"health"`
	Entries   []*types.MemoryEntry `json:"entries"`
}

// WriteBackup serializes all critical entries plus current health metrics
// to the writer. A nil predicate uses DefaultCritical.
func (m *Manager) WriteBackup(ctx context.Context, w io.Writer, critical CriticalFunc) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if critical == nil {
		critical = DefaultCritical
	}

	backup := Backup{
		CreatedAt: m.config.Now(),
		Health:    m.Health(),
	}
	for _, e := range m.store.Snapshot() {
		if critical(e) {
			backup.Entries = append(backup.Entries, e)
		}
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&backup); err != nil {
		return 0, types.NewError(types.ErrInternal, "failed to encode backup").WithCause(err)
	}

	m.logger.Info("backup written", zap.Int("entries", len(backup.Entries)))
	return len(backup.Entries), nil
}

// RestoreBackup re-ingests a backup through the normal store path. Each
// entry is isolated: a bad record is logged and skipped, never aborting the
// batch. It returns how many entries were restored.
func (m *Manager) RestoreBackup(ctx context.Context, r io.Reader) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var backup Backup
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return 0, types.NewError(types.ErrValidation, "failed to decode backup").WithCause(err)
	}

	var restored int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	results := make([]bool, len(backup.Entries))
	for i, entry := range backup.Entries {
		g.Go(func() error {
			if entry == nil {
				return nil
			}
			if err := m.store.Store(gctx, entry); err != nil {
				m.logger.Warn("skipping unrestorable entry",
					zap.String("id", entry.ID), zap.Error(err))
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(restored), err
	}

	for _, ok := range results {
		if ok {
			restored++
		}
	}
	m.logger.Info("backup restored",
		zap.Int("restored", int(restored)),
		zap.Int("total", len(backup.Entries)))
	return int(restored), nil
}
