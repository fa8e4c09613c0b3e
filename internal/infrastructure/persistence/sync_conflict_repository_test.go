package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/shared"
	"github.com/truthsource/backend/internal/domain/sync"
)

// SyncConflictModelSQLite is a SQLite-compatible version of SyncConflictModel for testing
type SyncConflictModelSQLite struct {
	ID              string `gorm:"primaryKey"`
	JobID           string `gorm:"not null;index"`
	OrgID           string `gorm:"not null;index"`
	EntityType      string `gorm:"not null"`
	RecordID        string `gorm:"not null"`
	Field           string `gorm:"not null"`
	SourceValue     string
	TargetValue     string
	SourceUpdatedAt string
	TargetUpdatedAt string
	DetectedAt      time.Time
	Strategy        *string
	ResolvedValue   string
	ResolvedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (SyncConflictModelSQLite) TableName() string {
	return "sync_conflicts"
}

func setupSyncConflictTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&SyncConflictModelSQLite{})
	require.NoError(t, err)

	return db
}

func newTestConflict(t *testing.T, jobID, orgID uuid.UUID, recordID string) *sync.SyncConflict {
	t.Helper()
	conflict, err := sync.NewSyncConflict(jobID, orgID, integration.CandidateConflict{
		EntityType:      integration.EntityProducts,
		RecordID:        recordID,
		Field:           "price",
		SourceValue:     json.RawMessage(`"99.95"`),
		TargetValue:     json.RawMessage(`"89.95"`),
		SourceUpdatedAt: "2026-02-10T08:00:00Z",
		TargetUpdatedAt: "2026-02-09T16:30:00Z",
	})
	require.NoError(t, err)
	return conflict
}

func TestGormSyncConflictRepository_SaveAndFind(t *testing.T) {
	db := setupSyncConflictTestDB(t)
	repo := NewGormSyncConflictRepository(db)
	ctx := context.Background()

	t.Run("round-trips a pending conflict", func(t *testing.T) {
		conflict := newTestConflict(t, uuid.New(), uuid.New(), "sku-100")
		require.NoError(t, repo.Save(ctx, conflict))

		found, err := repo.FindByID(ctx, conflict.ID)
		require.NoError(t, err)
		assert.Equal(t, conflict.ID, found.ID)
		assert.Equal(t, "sku-100", found.RecordID)
		assert.Equal(t, "price", found.Field)
		assert.JSONEq(t, `"99.95"`, string(found.SourceValue))
		assert.JSONEq(t, `"89.95"`, string(found.TargetValue))
		assert.Equal(t, "2026-02-10T08:00:00Z", found.SourceUpdatedAt)
		assert.False(t, found.IsResolved())
	})

	t.Run("round-trips a resolved conflict", func(t *testing.T) {
		conflict := newTestConflict(t, uuid.New(), uuid.New(), "sku-101")
		require.NoError(t, conflict.Resolve(sync.StrategySourceWins, conflict.SourceValue))
		require.NoError(t, repo.Save(ctx, conflict))

		found, err := repo.FindByID(ctx, conflict.ID)
		require.NoError(t, err)
		require.True(t, found.IsResolved())
		assert.Equal(t, sync.StrategySourceWins, found.Resolution.Strategy)
		assert.JSONEq(t, `"99.95"`, string(found.Resolution.ResolvedValue))
	})

	t.Run("returns ErrConflictNotFound for unknown ID", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, sync.ErrConflictNotFound)
	})
}

func TestGormSyncConflictRepository_Update(t *testing.T) {
	db := setupSyncConflictTestDB(t)
	repo := NewGormSyncConflictRepository(db)
	ctx := context.Background()

	t.Run("persists an operator resolution", func(t *testing.T) {
		conflict := newTestConflict(t, uuid.New(), uuid.New(), "sku-200")
		require.NoError(t, repo.Save(ctx, conflict))

		require.NoError(t, conflict.ResolveManually("target"))
		require.NoError(t, repo.Update(ctx, conflict))

		found, err := repo.FindByID(ctx, conflict.ID)
		require.NoError(t, err)
		require.True(t, found.IsResolved())
		assert.Equal(t, sync.StrategyManual, found.Resolution.Strategy)
		assert.JSONEq(t, `"89.95"`, string(found.Resolution.ResolvedValue))
	})

	t.Run("returns ErrConflictNotFound for unknown conflict", func(t *testing.T) {
		ghost := newTestConflict(t, uuid.New(), uuid.New(), "sku-201")
		err := repo.Update(ctx, ghost)
		assert.ErrorIs(t, err, sync.ErrConflictNotFound)
	})
}

func TestGormSyncConflictRepository_FindPendingByOrg(t *testing.T) {
	db := setupSyncConflictTestDB(t)
	repo := NewGormSyncConflictRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	jobID := uuid.New()

	// Two pending conflicts with distinct detection times, one resolved,
	// one pending for another org.
	older := newTestConflict(t, jobID, orgID, "sku-1")
	older.DetectedAt = time.Now().UTC().Add(-2 * time.Hour)
	newer := newTestConflict(t, jobID, orgID, "sku-2")
	newer.DetectedAt = time.Now().UTC().Add(-time.Hour)
	resolved := newTestConflict(t, jobID, orgID, "sku-3")
	require.NoError(t, resolved.Resolve(sync.StrategyTargetWins, resolved.TargetValue))
	foreign := newTestConflict(t, uuid.New(), uuid.New(), "sku-4")

	for _, c := range []*sync.SyncConflict{older, newer, resolved, foreign} {
		require.NoError(t, repo.Save(ctx, c))
	}

	page, err := repo.FindPendingByOrg(ctx, orgID, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 2)
	// Oldest first
	assert.Equal(t, older.ID, page.Items[0].ID)
	assert.Equal(t, newer.ID, page.Items[1].ID)
}

func TestGormSyncConflictRepository_FindByJob(t *testing.T) {
	db := setupSyncConflictTestDB(t)
	repo := NewGormSyncConflictRepository(db)
	ctx := context.Background()

	jobID := uuid.New()
	orgID := uuid.New()

	first := newTestConflict(t, jobID, orgID, "sku-10")
	second := newTestConflict(t, jobID, orgID, "sku-11")
	require.NoError(t, second.Resolve(sync.StrategyNewestWins, second.SourceValue))
	other := newTestConflict(t, uuid.New(), orgID, "sku-12")

	for _, c := range []*sync.SyncConflict{first, second, other} {
		require.NoError(t, repo.Save(ctx, c))
	}

	conflicts, err := repo.FindByJob(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, conflicts, 2)
}
