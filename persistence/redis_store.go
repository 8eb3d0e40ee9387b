package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string        `yaml:"addr" json:"addr"`
	Password  string        `yaml:"password" json:"password"`
	DB        int           `yaml:"db" json:"db"`
	PoolSize  int           `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
	EntryTTL  time.Duration `yaml:"entry_ttl" json:"entry_ttl"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "memflow:",
		EntryTTL:  0, // no expiry by default
	}
}

// RedisStore is a Redis-backed Store suitable as a hot tier. Entries are
// stored as JSON values with an optional TTL; a per-agent set serves as the
// range-scan index.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "memflow:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis store initialized", zap.String("addr", cfg.Addr))

	return &RedisStore{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "persistence_redis")),
	}, nil
}

func (s *RedisStore) entryKey(id string) string   { return s.cfg.KeyPrefix + "entry:" + id }
func (s *RedisStore) caseKey(id string) string    { return s.cfg.KeyPrefix + "case:" + id }
func (s *RedisStore) agentKey(id string) string   { return s.cfg.KeyPrefix + "agent:" + id }
func (s *RedisStore) allEntriesKey() string       { return s.cfg.KeyPrefix + "entries" }

// UpsertEntry stores an entry and maintains the agent index.
func (s *RedisStore) UpsertEntry(ctx context.Context, entry *types.MemoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", entry.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.entryKey(entry.ID), data, s.cfg.EntryTTL)
	pipe.SAdd(ctx, s.agentKey(entry.AgentID), entry.ID)
	pipe.SAdd(ctx, s.allEntriesKey(), entry.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to upsert entry").WithCause(err)
	}
	return nil
}

// GetEntry loads an entry; NOT_FOUND when absent or expired.
func (s *RedisStore) GetEntry(ctx context.Context, id string) (*types.MemoryEntry, error) {
	data, err := s.client.Get(ctx, s.entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "failed to load entry").WithCause(err)
	}

	var entry types.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", id, err)
	}
	return &entry, nil
}

// QueryEntries scans the agent index (or all entries) applying the filter
// client-side.
func (s *RedisStore) QueryEntries(ctx context.Context, filter EntryFilter) ([]*types.MemoryEntry, error) {
	key := s.allEntriesKey()
	if filter.AgentID != "" {
		key = s.agentKey(filter.AgentID)
	}

	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "failed to scan entry index").WithCause(err)
	}

	entries := make([]*types.MemoryEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.GetEntry(ctx, id)
		if err != nil {
			if types.IsNotFound(err) {
				// Expired value, drop the stale index member.
				s.client.SRem(ctx, key, id)
				continue
			}
			return nil, err
		}
		if !filter.Since.IsZero() && entry.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && entry.CreatedAt.After(filter.Until) {
			continue
		}
		if filter.MinImportance > 0 && entry.Importance < filter.MinImportance {
			continue
		}
		entries = append(entries, entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	return entries, nil
}

// DeleteEntry removes an entry and its index memberships.
func (s *RedisStore) DeleteEntry(ctx context.Context, id string) error {
	entry, err := s.GetEntry(ctx, id)
	if err != nil && !types.IsNotFound(err) {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.entryKey(id))
	pipe.SRem(ctx, s.allEntriesKey(), id)
	if entry != nil {
		pipe.SRem(ctx, s.agentKey(entry.AgentID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to delete entry").WithCause(err)
	}
	return nil
}

// UpsertCase stores a case as a JSON value.
func (s *RedisStore) UpsertCase(ctx context.Context, c *types.ComplianceCase) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case %s: %w", c.CaseID, err)
	}
	if err := s.client.Set(ctx, s.caseKey(c.CaseID), data, 0).Err(); err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to upsert case").WithCause(err)
	}
	return nil
}

// GetCase loads a case; NOT_FOUND when absent.
func (s *RedisStore) GetCase(ctx context.Context, id string) (*types.ComplianceCase, error) {
	data, err := s.client.Get(ctx, s.caseKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewErrorf(types.ErrNotFound, "case %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "failed to load case").WithCause(err)
	}

	var c types.ComplianceCase
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case %s: %w", id, err)
	}
	return &c, nil
}

// DeleteCase removes a case value.
func (s *RedisStore) DeleteCase(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.caseKey(id)).Err(); err != nil {
		return types.NewError(types.ErrProviderUnavailable, "failed to delete case").WithCause(err)
	}
	return nil
}

// Ping checks store health.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
