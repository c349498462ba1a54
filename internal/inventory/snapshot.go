package inventory

import (
	"github.com/parsascontentcorner/followmanager/internal/discord"
	"github.com/parsascontentcorner/followmanager/internal/models"
)

// EmptyGuildID is reported when the snapshot holds no rows
const EmptyGuildID = "Unknown"

// Flatten produces one snapshot row per follower webhook, all stamped with
// refreshedAt
func Flatten(records *discord.GuildRecords, refreshedAt string) []models.InventoryRow {
	placed := placeFollows(records)

	rows := make([]models.InventoryRow, 0, len(placed))
	for _, follow := range placed {
		rows = append(rows, models.InventoryRow{
			WebhookID:              follow.link.WebhookID,
			GuildID:                records.GuildID,
			GuildName:              models.NullString(records.Guild.Name),
			DestinationChannelID:   follow.destinationID,
			DestinationChannelName: follow.destinationName,
			SourceGuildID:          models.NullString(follow.link.SourceGuildID),
			SourceGuildName:        models.NullString(follow.link.SourceGuildName),
			SourceChannelID:        models.NullString(follow.link.SourceChannelID),
			SourceChannelName:      models.NullString(follow.link.SourceChannelName),
			RefreshedAt:            refreshedAt,
		})
	}

	return rows
}

// FromRows rebuilds the inventory from a guild's snapshot rows. The guild is
// taken from the first row and FetchedAt is the newest row timestamp. No rows
// yields the empty inventory rather than an error.
func FromRows(rows []models.InventoryRow) models.FollowInventory {
	if len(rows) == 0 {
		return models.FollowInventory{
			GuildID:             EmptyGuildID,
			FetchedAt:           "",
			DestinationChannels: []models.DestinationChannelGroup{},
		}
	}

	fetchedAt := ""
	placed := make([]placedFollow, 0, len(rows))
	for _, row := range rows {
		// Same-width UTC timestamps order lexicographically
		if row.RefreshedAt > fetchedAt {
			fetchedAt = row.RefreshedAt
		}

		placed = append(placed, placedFollow{
			destinationID:   row.DestinationChannelID,
			destinationName: row.DestinationChannelName,
			link: models.FollowLink{
				WebhookID:         row.WebhookID,
				SourceGuildID:     row.SourceGuildID.String,
				SourceGuildName:   row.SourceGuildName.String,
				SourceChannelID:   row.SourceChannelID.String,
				SourceChannelName: row.SourceChannelName.String,
			},
		})
	}

	return models.FollowInventory{
		GuildID:             rows[0].GuildID,
		GuildName:           rows[0].GuildName.String,
		FetchedAt:           fetchedAt,
		DestinationChannels: groupFollows(placed),
	}
}
