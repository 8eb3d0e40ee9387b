package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/memflow/types"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormStore(db, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEntry(id string, created time.Time) *types.MemoryEntry {
	return &types.MemoryEntry{
		ID:             id,
		ConversationID: "conv-1",
		AgentID:        "agent-1",
		Kind:           types.MemoryEpisodic,
		Importance:     types.ImportanceHigh,
		CreatedAt:      created,
		LastAccessedAt: created,
		Context:        map[string]any{"domain": "AML", "risk_level": "high"},
		Topics:         []string{"aml", "risk"},
		DecayFactor:    1.0,
	}
}

func TestGormStore_EntryRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestGormStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := testEntry("e1", created)
	score := 0.75
	entry.FeedbackScore = &score

	require.NoError(t, store.UpsertEntry(ctx, entry))

	got, err := store.GetEntry(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, entry.ID, got.ID)
	require.Equal(t, entry.Context, got.Context)
	require.Equal(t, entry.Topics, got.Topics)
	require.Equal(t, score, *got.FeedbackScore)
	require.True(t, entry.CreatedAt.Equal(got.CreatedAt))

	// Upsert replaces.
	entry.Summary = "updated"
	require.NoError(t, store.UpsertEntry(ctx, entry))
	got, err = store.GetEntry(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "updated", got.Summary)
}

func TestGormStore_GetEntryNotFound(t *testing.T) {
	t.Parallel()

	store := newTestGormStore(t)
	_, err := store.GetEntry(context.Background(), "missing")
	require.True(t, types.IsNotFound(err))
}

func TestGormStore_QueryEntries(t *testing.T) {
	t.Parallel()

	store := newTestGormStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3"} {
		e := testEntry(id, base.Add(time.Duration(i)*time.Hour))
		if id == "e3" {
			e.AgentID = "agent-2"
			e.Importance = types.ImportanceLow
		}
		require.NoError(t, store.UpsertEntry(ctx, e))
	}

	got, err := store.QueryEntries(ctx, EntryFilter{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = store.QueryEntries(ctx, EntryFilter{MinImportance: types.ImportanceMedium})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = store.QueryEntries(ctx, EntryFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "e3", got[0].ID)
}

func TestGormStore_DeleteEntry(t *testing.T) {
	t.Parallel()

	store := newTestGormStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntry(ctx, testEntry("e1", time.Now().UTC())))
	require.NoError(t, store.DeleteEntry(ctx, "e1"))
	_, err := store.GetEntry(ctx, "e1")
	require.True(t, types.IsNotFound(err))

	// Deleting an absent row is not an error.
	require.NoError(t, store.DeleteEntry(ctx, "e1"))
}

func TestGormStore_CaseRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestGormStore(t)
	ctx := context.Background()

	c := &types.ComplianceCase{
		CaseID:       "c1",
		Title:        "Large transfer review",
		Context:      map[string]any{"domain": "AML"},
		Decision:     map[string]any{"action": "escalate"},
		Tags:         []string{"aml"},
		Timestamp:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		SuccessScore: 0.9,
		Domain:       "AML",
		RiskLevel:    "high",
	}
	require.NoError(t, store.UpsertCase(ctx, c))

	got, err := store.GetCase(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, c.Title, got.Title)
	require.Equal(t, c.Decision, got.Decision)
	require.Equal(t, c.SuccessScore, got.SuccessScore)

	require.NoError(t, store.DeleteCase(ctx, "c1"))
	_, err = store.GetCase(ctx, "c1")
	require.True(t, types.IsNotFound(err))
}

func TestGormStore_Closed(t *testing.T) {
	t.Parallel()

	store := newTestGormStore(t)
	require.NoError(t, store.Close())

	err := store.UpsertEntry(context.Background(), testEntry("e1", time.Now().UTC()))
	require.Equal(t, types.ErrStoreClosed, types.GetErrorCode(err))
}
