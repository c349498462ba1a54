package discord

// Webhook types as reported by Discord
const (
	WebhookTypeIncoming        = 1
	WebhookTypeChannelFollower = 2
	WebhookTypeApplication     = 3
)

// Guild is the subset of a Discord guild object the inventory needs
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is the subset of a Discord guild channel object the inventory needs
type Channel struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
	Name string `json:"name"`
}

// WebhookSourceGuild is the partial guild a follower webhook forwards from.
// Discord omits it when the source is gone or not visible to the bot.
type WebhookSourceGuild struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// WebhookSourceChannel is the partial channel a follower webhook forwards from
type WebhookSourceChannel struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Webhook represents a Discord webhook from GET /guilds/{id}/webhooks
type Webhook struct {
	ID            string                `json:"id"`
	Type          int                   `json:"type"`
	GuildID       string                `json:"guild_id,omitempty"`
	ChannelID     string                `json:"channel_id,omitempty"`
	Name          string                `json:"name,omitempty"`
	SourceGuild   *WebhookSourceGuild   `json:"source_guild,omitempty"`
	SourceChannel *WebhookSourceChannel `json:"source_channel,omitempty"`
}

// IsChannelFollower reports whether the webhook is a channel follower webhook
func (w *Webhook) IsChannelFollower() bool {
	return w.Type == WebhookTypeChannelFollower
}

// User represents a Discord user from GET /users/@me
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
	Avatar        string `json:"avatar"`
}

// GuildRecords is everything one inventory fetch reads for a guild
type GuildRecords struct {
	GuildID  string
	Guild    Guild
	Webhooks []Webhook
	Channels []Channel
}
