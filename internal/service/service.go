// Package service runs the follow inventory use cases: the live read, the
// snapshot sync and the snapshot read.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/discord"
	"github.com/parsascontentcorner/followmanager/internal/inventory"
	"github.com/parsascontentcorner/followmanager/internal/models"
)

// Caller-facing messages for failures that are not Discord status codes
const (
	MessageLiveFailed    = "Unexpected error while loading follow inventory."
	MessageSyncFailed    = "Unexpected sync failure."
	MessageReplaceFailed = "Failed to replace follow inventory snapshot."
)

// RecordsFetcher reads the raw guild records from Discord
type RecordsFetcher interface {
	FetchGuildRecords(ctx context.Context, guildID string) (*discord.GuildRecords, error)
}

// SnapshotStore persists the flattened inventory and the sync audit trail
type SnapshotStore interface {
	ReplaceInventory(ctx context.Context, guildID string, rows []models.InventoryRow) (int, error)
	ListInventoryRows(ctx context.Context) ([]models.InventoryRow, error)
	RecordSyncRun(ctx context.Context, run *models.SyncRun) error
	LatestSyncRun(ctx context.Context, guildID string) (*models.SyncRun, error)
}

// ReplaceError reports that Discord was read but the snapshot could not be stored
type ReplaceError struct {
	Err error
}

func (e *ReplaceError) Error() string {
	return fmt.Sprintf("failed to replace follow inventory snapshot: %v", e.Err)
}

func (e *ReplaceError) Unwrap() error {
	return e.Err
}

// Service serves the inventory of one configured guild
type Service struct {
	fetcher RecordsFetcher
	store   SnapshotStore
	guildID string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a service for guildID
func New(fetcher RecordsFetcher, store SnapshotStore, guildID string, logger *zap.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		store:   store,
		guildID: guildID,
		logger:  logger,
		now:     time.Now,
	}
}

// GuildID returns the guild this service inventories
func (s *Service) GuildID() string {
	return s.guildID
}

// Live reads Discord and returns the current inventory
func (s *Service) Live(ctx context.Context) (models.FollowInventory, error) {
	records, err := s.fetcher.FetchGuildRecords(ctx, s.guildID)
	if err != nil {
		return models.FollowInventory{}, fmt.Errorf("failed to fetch guild records: %w", err)
	}

	inv := inventory.Aggregate(records, s.now())

	s.logger.Info("loaded live follow inventory",
		zap.String("guild_id", s.guildID),
		zap.Int("destination_count", len(inv.DestinationChannels)),
		zap.Int("follow_count", inv.FollowCount()),
	)

	return inv, nil
}

// Sync reads Discord and replaces the persisted snapshot with the result.
// Every attempt is recorded in the sync audit trail. Upstream failures are
// returned as is; storage failures are returned as *ReplaceError.
func (s *Service) Sync(ctx context.Context) (*models.SyncResult, error) {
	records, err := s.fetcher.FetchGuildRecords(ctx, s.guildID)
	if err != nil {
		message, _ := discord.MapError(err, MessageSyncFailed)
		s.recordRun(ctx, &models.SyncRun{
			GuildID:      s.guildID,
			Status:       models.SyncStatusFailed,
			ErrorMessage: models.NullString(message),
		})
		return nil, fmt.Errorf("failed to fetch guild records: %w", err)
	}

	refreshedAt := inventory.FormatTimestamp(s.now())
	rows := inventory.Flatten(records, refreshedAt)

	count, err := s.store.ReplaceInventory(ctx, s.guildID, rows)
	if err != nil {
		s.recordRun(ctx, &models.SyncRun{
			GuildID:      s.guildID,
			RefreshedAt:  refreshedAt,
			Status:       models.SyncStatusFailed,
			ErrorMessage: models.NullString(err.Error()),
		})
		return nil, &ReplaceError{Err: err}
	}

	s.recordRun(ctx, &models.SyncRun{
		GuildID:     s.guildID,
		RowCount:    count,
		RefreshedAt: refreshedAt,
		Status:      models.SyncStatusSucceeded,
	})

	s.logger.Info("replaced follow inventory snapshot",
		zap.String("guild_id", s.guildID),
		zap.Int("row_count", count),
		zap.String("refreshed_at", refreshedAt),
	)

	return &models.SyncResult{
		GuildID:     s.guildID,
		RowCount:    count,
		RefreshedAt: refreshedAt,
	}, nil
}

// Snapshot rebuilds the inventory from the persisted rows
func (s *Service) Snapshot(ctx context.Context) (models.FollowInventory, error) {
	rows, err := s.store.ListInventoryRows(ctx)
	if err != nil {
		return models.FollowInventory{}, fmt.Errorf("failed to read follow inventory snapshot: %w", err)
	}

	return inventory.FromRows(rows), nil
}

// LastSync returns the most recent sync attempt for the guild
func (s *Service) LastSync(ctx context.Context) (*models.SyncRun, error) {
	return s.store.LatestSyncRun(ctx, s.guildID)
}

// recordRun stores the audit entry. A failure here is logged and never
// changes the outcome of the sync.
func (s *Service) recordRun(ctx context.Context, run *models.SyncRun) {
	if err := s.store.RecordSyncRun(ctx, run); err != nil {
		s.logger.Error("failed to record sync run",
			zap.String("guild_id", run.GuildID),
			zap.String("status", string(run.Status)),
			zap.Error(err),
		)
	}
}
