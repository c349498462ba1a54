package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/followmanager/internal/models"
)

func TestRecordSyncRun_Success(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	run := &models.SyncRun{
		GuildID:     "g1",
		RowCount:    12,
		RefreshedAt: "2024-05-01T12:00:00.000Z",
		Status:      models.SyncStatusSucceeded,
	}

	err = db.RecordSyncRun(ctx, run)

	require.NoError(t, err)
	_, parseErr := uuid.Parse(run.ID)
	assert.NoError(t, parseErr)
	assert.WithinDuration(t, time.Now(), run.CreatedAt, 5*time.Second)

	latest, err := db.LatestSyncRun(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 12, latest.RowCount)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", latest.RefreshedAt)
	assert.Equal(t, models.SyncStatusSucceeded, latest.Status)
	assert.False(t, latest.ErrorMessage.Valid)
}

func TestRecordSyncRun_FailureWithoutTimestamp(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	run := &models.SyncRun{
		GuildID:      "g1",
		Status:       models.SyncStatusFailed,
		ErrorMessage: models.NullString("Discord rate limit reached. Retry shortly."),
	}

	require.NoError(t, db.RecordSyncRun(ctx, run))

	latest, err := db.LatestSyncRun(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, latest.Status)
	assert.Empty(t, latest.RefreshedAt)
	assert.Equal(t, "Discord rate limit reached. Retry shortly.", latest.ErrorMessage.String)
}

func TestRecordSyncRun_InvalidStatus(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	err = db.RecordSyncRun(ctx, &models.SyncRun{GuildID: "g1", Status: "pending"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record sync run")
}

func TestLatestSyncRun_ReturnsNewest(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	first := &models.SyncRun{GuildID: "g1", RowCount: 1, RefreshedAt: "2024-05-01T11:00:00.000Z", Status: models.SyncStatusSucceeded}
	require.NoError(t, db.RecordSyncRun(ctx, first))

	// created_at comes from NOW(), which is per transaction
	time.Sleep(10 * time.Millisecond)

	second := &models.SyncRun{GuildID: "g1", RowCount: 2, RefreshedAt: "2024-05-01T12:00:00.000Z", Status: models.SyncStatusSucceeded}
	require.NoError(t, db.RecordSyncRun(ctx, second))

	other := &models.SyncRun{GuildID: "g2", RowCount: 9, RefreshedAt: "2024-05-01T13:00:00.000Z", Status: models.SyncStatusSucceeded}
	require.NoError(t, db.RecordSyncRun(ctx, other))

	latest, err := db.LatestSyncRun(ctx, "g1")

	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 2, latest.RowCount)
}

func TestLatestSyncRun_None(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	latest, err := db.LatestSyncRun(ctx, "never-synced")

	assert.Nil(t, latest)
	assert.ErrorIs(t, err, ErrNoSyncRuns)
}
