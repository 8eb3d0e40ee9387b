package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/memflow/types"
)

// InMemoryStore is a map-backed Store used in tests and in deployments
// where durable persistence is disabled but the Store contract is still
// wanted for composition.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*types.MemoryEntry
	cases   map[string]*types.ComplianceCase
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*types.MemoryEntry),
		cases:   make(map[string]*types.ComplianceCase),
	}
}

func (s *InMemoryStore) UpsertEntry(ctx context.Context, entry *types.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry.Clone()
	return nil
}

func (s *InMemoryStore) GetEntry(ctx context.Context, id string) (*types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}
	return entry.Clone(), nil
}

func (s *InMemoryStore) QueryEntries(ctx context.Context, filter EntryFilter) ([]*types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.MemoryEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if filter.AgentID != "" && entry.AgentID != filter.AgentID {
			continue
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
		out = append(out, entry.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) DeleteEntry(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *InMemoryStore) UpsertCase(ctx context.Context, c *types.ComplianceCase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.CaseID] = c.Clone()
	return nil
}

func (s *InMemoryStore) GetCase(ctx context.Context, id string) (*types.ComplianceCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "case %s not found", id)
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) DeleteCase(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cases, id)
	return nil
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return ctx.Err() }
func (s *InMemoryStore) Close() error                   { return nil }
