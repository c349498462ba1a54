package models

// FollowLink is one follower webhook relationship. WebhookID is its identity.
type FollowLink struct {
	WebhookID         string `json:"webhookId"`
	SourceGuildID     string `json:"sourceGuildId,omitempty"`
	SourceGuildName   string `json:"sourceGuildName,omitempty"`
	SourceChannelID   string `json:"sourceChannelId,omitempty"`
	SourceChannelName string `json:"sourceChannelName,omitempty"`
}

// SortLabel returns the label follows are ordered by within a group
func (f FollowLink) SortLabel() string {
	if f.SourceChannelName != "" {
		return f.SourceChannelName
	}
	return f.SourceChannelID
}

// DestinationChannelGroup holds every follow that posts into one destination channel
type DestinationChannelGroup struct {
	DestinationChannelID   string       `json:"destinationChannelId"`
	DestinationChannelName string       `json:"destinationChannelName"`
	Follows                []FollowLink `json:"follows"`
}

// FollowInventory is the grouped view served to the dashboard
type FollowInventory struct {
	GuildID             string                    `json:"guildId"`
	GuildName           string                    `json:"guildName,omitempty"`
	FetchedAt           string                    `json:"fetchedAt"`
	DestinationChannels []DestinationChannelGroup `json:"destinationChannels"`
}

// SourceGuildFollow is a follow as listed under its source guild
type SourceGuildFollow struct {
	DestinationChannelID   string `json:"destinationChannelId"`
	DestinationChannelName string `json:"destinationChannelName"`
	SourceChannelName      string `json:"sourceChannelName,omitempty"`
	WebhookID              string `json:"webhookId"`
}

// SourceGuildGroup holds every follow originating from one source guild
type SourceGuildGroup struct {
	SourceGuildID   string              `json:"sourceGuildId"`
	SourceGuildName string              `json:"sourceGuildName,omitempty"`
	Follows         []SourceGuildFollow `json:"follows"`
}

// SourceGuildInventory is the inventory regrouped by source guild
type SourceGuildInventory struct {
	GuildID      string             `json:"guildId"`
	GuildName    string             `json:"guildName,omitempty"`
	FetchedAt    string             `json:"fetchedAt"`
	SourceGuilds []SourceGuildGroup `json:"sourceGuilds"`
}

// FollowCount returns the number of follows across all groups
func (inv *FollowInventory) FollowCount() int {
	count := 0
	for _, group := range inv.DestinationChannels {
		count += len(group.Follows)
	}
	return count
}
