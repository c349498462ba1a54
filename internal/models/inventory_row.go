package models

import (
	"database/sql"
	"time"
)

// InventoryRow is the persisted, denormalized form of one follow link.
// Every row of one sync carries the same RefreshedAt.
type InventoryRow struct {
	WebhookID              string         `json:"webhook_id"`
	GuildID                string         `json:"guild_id"`
	GuildName              sql.NullString `json:"guild_name"`
	DestinationChannelID   string         `json:"destination_channel_id"`
	DestinationChannelName string         `json:"destination_channel_name"`
	SourceGuildID          sql.NullString `json:"source_guild_id"`
	SourceGuildName        sql.NullString `json:"source_guild_name"`
	SourceChannelID        sql.NullString `json:"source_channel_id"`
	SourceChannelName      sql.NullString `json:"source_channel_name"`
	RefreshedAt            string         `json:"refreshed_at"`
}

// SyncStatus is the outcome of one snapshot sync
type SyncStatus string

const (
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun records one attempt to replace a guild's snapshot
type SyncRun struct {
	ID           string         `json:"id"`
	GuildID      string         `json:"guild_id"`
	RowCount     int            `json:"row_count"`
	RefreshedAt  string         `json:"refreshed_at"`
	Status       SyncStatus     `json:"status"`
	ErrorMessage sql.NullString `json:"error_message"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SyncResult is returned by the sync boundary
type SyncResult struct {
	GuildID     string `json:"guildId"`
	RowCount    int    `json:"rowCount"`
	RefreshedAt string `json:"refreshedAt"`
}

// NullString wraps s, treating the empty string as NULL
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
