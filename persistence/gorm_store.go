package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/memflow/types"
)

// GormStore is the relational Store implementation. It works against any
// dialector supported by the factory (SQLite, PostgreSQL, MySQL).
type GormStore struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// PoolConfig tunes the underlying connection pool.
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    50,
		ConnMaxLifetime: time.Hour,
	}
}

// NewGormStore wraps a gorm.DB as a Store, migrating the entry and case
// tables and configuring the pool.
func NewGormStore(db *gorm.DB, pool PoolConfig, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(&EntryRecord{}, &CaseRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	s := &GormStore{
		db:     db,
		sqlDB:  sqlDB,
		logger: logger.With(zap.String("component", "persistence_gorm")),
	}

	logger.Info("gorm store initialized",
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
	)

	return s, nil
}

func (s *GormStore) guard() error {
	if s.closed {
		return types.NewError(types.ErrStoreClosed, "persistence store is closed")
	}
	return nil
}

// UpsertEntry writes or replaces an entry row.
func (s *GormStore) UpsertEntry(ctx context.Context, entry *types.MemoryEntry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return err
	}

	rec, err := ToEntryRecord(entry)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to upsert entry").WithCause(err)
	}
	return nil
}

// GetEntry loads a single entry; NOT_FOUND when absent.
func (s *GormStore) GetEntry(ctx context.Context, id string) (*types.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return nil, err
	}

	var rec EntryRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "failed to load entry").WithCause(err)
	}
	return FromEntryRecord(&rec)
}

// QueryEntries range-scans entries using the indexed columns.
func (s *GormStore) QueryEntries(ctx context.Context, filter EntryFilter) ([]*types.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&EntryRecord{})
	if filter.AgentID != "" {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	if filter.MinImportance > 0 {
		q = q.Where("importance >= ?", int(filter.MinImportance))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var recs []EntryRecord
	if err := q.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "failed to query entries").WithCause(err)
	}

	entries := make([]*types.MemoryEntry, 0, len(recs))
	for i := range recs {
		entry, err := FromEntryRecord(&recs[i])
		if err != nil {
			s.logger.Warn("skipping corrupt entry record", zap.String("id", recs[i].ID), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteEntry removes an entry row. Deleting an absent row is not an error.
func (s *GormStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&EntryRecord{}, "id = ?", id).Error; err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to delete entry").WithCause(err)
	}
	return nil
}

// UpsertCase writes or replaces a case row.
func (s *GormStore) UpsertCase(ctx context.Context, c *types.ComplianceCase) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return err
	}

	rec, err := ToCaseRecord(c)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to upsert case").WithCause(err)
	}
	return nil
}

// GetCase loads a single case; NOT_FOUND when absent.
func (s *GormStore) GetCase(ctx context.Context, id string) (*types.ComplianceCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return nil, err
	}

	var rec CaseRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "case %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "failed to load case").WithCause(err)
	}
	return FromCaseRecord(&rec)
}

// DeleteCase removes a case row.
func (s *GormStore) DeleteCase(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&CaseRecord{}, "id = ?", id).Error; err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to delete case").WithCause(err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return err
	}
	return s.sqlDB.PingContext(ctx)
}

// Close shuts down the connection pool.
func (s *GormStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing gorm store")
	return s.sqlDB.Close()
}
