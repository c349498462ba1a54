package inventory

import (
	"fmt"
	"time"

	"github.com/parsascontentcorner/followmanager/internal/discord"
	"github.com/parsascontentcorner/followmanager/internal/models"
)

// Labels used when Discord leaves out part of a follow
const (
	UnknownDestinationID = "unknown"
	UnknownSourceGuildID = "unknown"
	UnknownSourceGuild   = "Unknown Source Guild"
	UnknownSourceChannel = "Unknown Source Channel"
)

// TimestampLayout is fixed width UTC with milliseconds, so timestamps
// compare correctly as strings
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// UnknownDestinationName is shown for a destination channel missing from the channel list
func UnknownDestinationName(channelID string) string {
	return fmt.Sprintf("Unknown Destination (%s)", channelID)
}

// placedFollow is a follow link together with the destination it posts into
type placedFollow struct {
	destinationID   string
	destinationName string
	link            models.FollowLink
}

// placeFollows keeps only channel follower webhooks and resolves their
// destination and source labels. It is shared by Aggregate and Flatten so the
// live and persisted paths cannot disagree on names.
func placeFollows(records *discord.GuildRecords) []placedFollow {
	channelNames := make(map[string]string, len(records.Channels))
	for _, channel := range records.Channels {
		channelNames[channel.ID] = channel.Name
	}

	placed := make([]placedFollow, 0, len(records.Webhooks))
	for i := range records.Webhooks {
		webhook := &records.Webhooks[i]
		if !webhook.IsChannelFollower() {
			continue
		}

		destinationID := webhook.ChannelID
		if destinationID == "" {
			destinationID = UnknownDestinationID
		}
		destinationName := channelNames[destinationID]
		if destinationName == "" {
			destinationName = UnknownDestinationName(destinationID)
		}

		link := models.FollowLink{
			WebhookID:         webhook.ID,
			SourceGuildName:   UnknownSourceGuild,
			SourceChannelName: UnknownSourceChannel,
		}
		if source := webhook.SourceGuild; source != nil {
			link.SourceGuildID = source.ID
			if source.Name != "" {
				link.SourceGuildName = source.Name
			}
		}
		if source := webhook.SourceChannel; source != nil {
			link.SourceChannelID = source.ID
			if source.Name != "" {
				link.SourceChannelName = source.Name
			}
		}

		placed = append(placed, placedFollow{
			destinationID:   destinationID,
			destinationName: destinationName,
			link:            link,
		})
	}

	return placed
}

// groupFollows builds one group per destination channel id, then sorts the
// groups by name and each group's follows by source channel label.
func groupFollows(placed []placedFollow) []models.DestinationChannelGroup {
	groups := make([]models.DestinationChannelGroup, 0)
	index := make(map[string]int)

	for _, follow := range placed {
		position, ok := index[follow.destinationID]
		if !ok {
			position = len(groups)
			index[follow.destinationID] = position
			groups = append(groups, models.DestinationChannelGroup{
				DestinationChannelID:   follow.destinationID,
				DestinationChannelName: follow.destinationName,
				Follows:                make([]models.FollowLink, 0, 1),
			})
		}
		groups[position].Follows = append(groups[position].Follows, follow.link)
	}

	for i := range groups {
		sortByLabel(groups[i].Follows,
			func(link models.FollowLink) string { return link.SortLabel() },
			func(link models.FollowLink) string { return link.WebhookID },
		)
	}
	sortByLabel(groups,
		func(group models.DestinationChannelGroup) string { return group.DestinationChannelName },
		func(group models.DestinationChannelGroup) string { return group.DestinationChannelID },
	)

	return groups
}

// Aggregate builds the inventory for one guild from its raw Discord records.
// Only channel follower webhooks contribute; every other webhook is ignored.
func Aggregate(records *discord.GuildRecords, now time.Time) models.FollowInventory {
	return models.FollowInventory{
		GuildID:             records.GuildID,
		GuildName:           records.Guild.Name,
		FetchedAt:           FormatTimestamp(now),
		DestinationChannels: groupFollows(placeFollows(records)),
	}
}
