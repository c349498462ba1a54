package inventory

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/parsascontentcorner/followmanager/internal/models"
)

// GroupBySourceGuild regroups the inventory by the guild each follow comes
// from. Follows without a source guild id share the UnknownSourceGuildID key.
// Within a source guild, follows keep the inventory's destination order.
func GroupBySourceGuild(inv models.FollowInventory) models.SourceGuildInventory {
	groups := make([]models.SourceGuildGroup, 0)
	index := make(map[string]int)

	for _, destination := range inv.DestinationChannels {
		for _, follow := range destination.Follows {
			key := follow.SourceGuildID
			if key == "" {
				key = UnknownSourceGuildID
			}

			position, ok := index[key]
			if !ok {
				position = len(groups)
				index[key] = position
				groups = append(groups, models.SourceGuildGroup{
					SourceGuildID:   key,
					SourceGuildName: follow.SourceGuildName,
					Follows:         make([]models.SourceGuildFollow, 0, 1),
				})
			}

			groups[position].Follows = append(groups[position].Follows, models.SourceGuildFollow{
				DestinationChannelID:   destination.DestinationChannelID,
				DestinationChannelName: destination.DestinationChannelName,
				SourceChannelName:      follow.SourceChannelName,
				WebhookID:              follow.WebhookID,
			})
		}
	}

	sortByLabel(groups,
		func(group models.SourceGuildGroup) string {
			if group.SourceGuildName != "" {
				return group.SourceGuildName
			}
			return group.SourceGuildID
		},
		func(group models.SourceGuildGroup) string { return group.SourceGuildID },
	)

	return models.SourceGuildInventory{
		GuildID:      inv.GuildID,
		GuildName:    inv.GuildName,
		FetchedAt:    inv.FetchedAt,
		SourceGuilds: groups,
	}
}

// Filter narrows the inventory to a case-insensitive search term. A group
// whose destination name matches is kept whole; otherwise only follows whose
// source channel or source guild name matches survive, and groups left empty
// are dropped. A blank term returns inv unchanged.
func Filter(inv models.FollowInventory, term string) models.FollowInventory {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(term))
	if needle == "" {
		return inv
	}

	matches := func(label string) bool {
		return strings.Contains(fold.String(label), needle)
	}

	filtered := make([]models.DestinationChannelGroup, 0, len(inv.DestinationChannels))
	for _, group := range inv.DestinationChannels {
		if matches(group.DestinationChannelName) {
			filtered = append(filtered, group)
			continue
		}

		var follows []models.FollowLink
		for _, follow := range group.Follows {
			if matches(follow.SourceChannelName) || matches(follow.SourceGuildName) {
				follows = append(follows, follow)
			}
		}
		if len(follows) > 0 {
			group.Follows = follows
			filtered = append(filtered, group)
		}
	}

	inv.DestinationChannels = filtered
	return inv
}
