package testutil

import (
	"context"
	"fmt"

	"github.com/parsascontentcorner/followmanager/internal/database"
	"github.com/parsascontentcorner/followmanager/internal/models"
)

// SetupTestDB returns a migrated database in a fresh PostgreSQL container
// and a cleanup that removes it.
//
//	db, cleanup, err := testutil.SetupTestDB(ctx)
//	require.NoError(t, err)
//	defer cleanup()
func SetupTestDB(ctx context.Context) (*database.DB, func(), error) {
	return database.OpenTestDB(ctx)
}

// TruncateTables empties the snapshot and the sync audit trail so one
// container can serve several tests
func TruncateTables(ctx context.Context, db *database.DB) error {
	tables := []string{
		"follow_manager_inventory",
		"follow_manager_sync_runs",
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedSnapshot replaces the test guild's snapshot with rows
func SeedSnapshot(ctx context.Context, db *database.DB, rows ...models.InventoryRow) error {
	if _, err := db.ReplaceInventory(ctx, TestGuildID, rows); err != nil {
		return fmt.Errorf("failed to seed snapshot: %w", err)
	}

	return nil
}
