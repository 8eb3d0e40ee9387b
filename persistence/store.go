package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/memflow/types"
)

// Store is the durable persistence contract consumed by the core. All
// methods are best-effort from the caller's perspective; a NOT_FOUND error
// from Get methods is the absent-result signal, not an exception.
type Store interface {
	UpsertEntry(ctx context.Context, entry *types.MemoryEntry) error
	GetEntry(ctx context.Context, id string) (*types.MemoryEntry, error)
	QueryEntries(ctx context.Context, filter EntryFilter) ([]*types.MemoryEntry, error)
	DeleteEntry(ctx context.Context, id string) error

	UpsertCase(ctx context.Context, c *types.ComplianceCase) error
	GetCase(ctx context.Context, id string) (*types.ComplianceCase, error)
	DeleteCase(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// EntryFilter narrows a persisted-entry range scan. Zero values mean
// "no filter".
type EntryFilter struct {
	AgentID       string
	Since         time.Time
	Until         time.Time
	MinImportance types.ImportanceLevel
	Limit         int
}

// EntryRecord is the relational row shape for a memory entry. Indexed
// columns mirror the fields used for range scans; the full entry is kept as
// a JSON payload so the row round-trips losslessly.
type EntryRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	ConversationID string    `gorm:"size:64;index"`
	AgentID        string    `gorm:"size:64;index"`
	Importance     int       `gorm:"index"`
	CreatedAt      time.Time `gorm:"index"`
	Payload        []byte    `gorm:"type:blob"`
}

// TableName maps EntryRecord to its table.
func (EntryRecord) TableName() string { return "memory_entries" }

// CaseRecord is the relational row shape for a compliance case.
type CaseRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Domain    string    `gorm:"size:64;index"`
	RiskLevel string    `gorm:"size:32;index"`
	Timestamp time.Time `gorm:"index"`
	Payload   []byte    `gorm:"type:blob"`
}

// TableName maps CaseRecord to its table.
func (CaseRecord) TableName() string { return "compliance_cases" }

// ToEntryRecord converts an entry to its row shape.
func ToEntryRecord(entry *types.MemoryEntry) (*EntryRecord, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry %s: %w", entry.ID, err)
	}
	return &EntryRecord{
		ID:             entry.ID,
		ConversationID: entry.ConversationID,
		AgentID:        entry.AgentID,
		Importance:     int(entry.Importance),
		CreatedAt:      entry.CreatedAt,
		Payload:        payload,
	}, nil
}

// FromEntryRecord converts a row back to an entry.
func FromEntryRecord(rec *EntryRecord) (*types.MemoryEntry, error) {
	var entry types.MemoryEntry
	if err := json.Unmarshal(rec.Payload, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", rec.ID, err)
	}
	return &entry, nil
}

// ToCaseRecord converts a case to its row shape.
func ToCaseRecord(c *types.ComplianceCase) (*CaseRecord, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal case %s: %w", c.CaseID, err)
	}
	return &CaseRecord{
		ID:        c.CaseID,
		Domain:    c.Domain,
		RiskLevel: c.RiskLevel,
		Timestamp: c.Timestamp,
		Payload:   payload,
	}, nil
}

// FromCaseRecord converts a row back to a case.
func FromCaseRecord(rec *CaseRecord) (*types.ComplianceCase, error) {
	var c types.ComplianceCase
	if err := json.Unmarshal(rec.Payload, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case %s: %w", rec.ID, err)
	}
	return &c, nil
}
