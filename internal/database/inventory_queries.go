package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/models"
)

const inventoryTable = "follow_manager_inventory"

var inventoryColumns = []string{
	"webhook_id",
	"guild_id",
	"guild_name",
	"destination_channel_id",
	"destination_channel_name",
	"source_guild_id",
	"source_guild_name",
	"source_channel_id",
	"source_channel_name",
	"refreshed_at",
}

// ReplaceInventory swaps a guild's snapshot for rows in one transaction:
// the old rows are deleted and the new set is bulk loaded with COPY.
// Readers see either the previous snapshot or the new one, never a mix.
// Concurrent replaces of the same guild are serialized by an advisory lock.
func (db *DB) ReplaceInventory(ctx context.Context, guildID string, rows []models.InventoryRow) (int, error) {
	for _, row := range rows {
		if row.GuildID != guildID {
			return 0, fmt.Errorf("row for webhook %s belongs to guild %s, not %s", row.WebhookID, row.GuildID, guildID)
		}
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, inventoryTable+":"+guildID); err != nil {
			return fmt.Errorf("failed to lock guild snapshot: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM follow_manager_inventory WHERE guild_id = $1`, guildID)
		if err != nil {
			return fmt.Errorf("failed to delete previous snapshot: %w", err)
		}
		deleted, _ := result.RowsAffected()

		if len(rows) > 0 {
			if err := copyInventoryRows(ctx, tx, rows); err != nil {
				return err
			}
		}

		db.logger.Debug("replaced follow inventory rows",
			zap.String("guild_id", guildID),
			zap.Int64("deleted", deleted),
			zap.Int("inserted", len(rows)),
		)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

func copyInventoryRows(ctx context.Context, tx *sql.Tx, rows []models.InventoryRow) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(inventoryTable, inventoryColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot copy: %w", err)
	}

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.WebhookID,
			row.GuildID,
			row.GuildName,
			row.DestinationChannelID,
			row.DestinationChannelName,
			row.SourceGuildID,
			row.SourceGuildName,
			row.SourceChannelID,
			row.SourceChannelName,
			row.RefreshedAt,
		); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy snapshot row %s: %w", row.WebhookID, err)
		}
	}

	// An argument-less Exec flushes the buffered COPY data
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush snapshot copy: %w", err)
	}

	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot copy: %w", err)
	}

	return nil
}

// ListInventoryRows returns every row of the public snapshot view
func (db *DB) ListInventoryRows(ctx context.Context) ([]models.InventoryRow, error) {
	query := `
		SELECT webhook_id, guild_id, guild_name, destination_channel_id, destination_channel_name,
			source_guild_id, source_guild_name, source_channel_id, source_channel_name, refreshed_at
		FROM follow_manager_inventory_public
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow inventory: %w", err)
	}
	defer rows.Close()

	var inventory []models.InventoryRow
	for rows.Next() {
		var row models.InventoryRow
		if err := rows.Scan(
			&row.WebhookID,
			&row.GuildID,
			&row.GuildName,
			&row.DestinationChannelID,
			&row.DestinationChannelName,
			&row.SourceGuildID,
			&row.SourceGuildName,
			&row.SourceChannelID,
			&row.SourceChannelName,
			&row.RefreshedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan follow inventory row: %w", err)
		}
		inventory = append(inventory, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating follow inventory: %w", err)
	}

	return inventory, nil
}
