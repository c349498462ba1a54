package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/parsascontentcorner/followmanager/internal/models"
)

// ErrNoSyncRuns is returned when a guild has never been synced
var ErrNoSyncRuns = errors.New("no sync runs recorded")

// RecordSyncRun stores the outcome of one sync. An empty ID is filled in.
func (db *DB) RecordSyncRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
		INSERT INTO follow_manager_sync_runs (id, guild_id, row_count, refreshed_at, status, error_message)
		VALUES ($1, $2, $3, NULLIF($4, '')::timestamptz, $5, $6)
		RETURNING created_at
	`

	err := db.QueryRowContext(ctx, query,
		run.ID,
		run.GuildID,
		run.RowCount,
		run.RefreshedAt,
		string(run.Status),
		run.ErrorMessage,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	return nil
}

// LatestSyncRun returns the most recent sync of a guild, or ErrNoSyncRuns
func (db *DB) LatestSyncRun(ctx context.Context, guildID string) (*models.SyncRun, error) {
	query := `
		SELECT id, guild_id, row_count,
			COALESCE(to_char(refreshed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'), ''),
			status, error_message, created_at
		FROM follow_manager_sync_runs
		WHERE guild_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	run := &models.SyncRun{}
	var status string
	err := db.QueryRowContext(ctx, query, guildID).Scan(
		&run.ID,
		&run.GuildID,
		&run.RowCount,
		&run.RefreshedAt,
		&status,
		&run.ErrorMessage,
		&run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSyncRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync run: %w", err)
	}
	run.Status = models.SyncStatus(status)

	return run, nil
}
