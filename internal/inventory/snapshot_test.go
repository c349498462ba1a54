package inventory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/followmanager/internal/models"
)

func TestFlatten(t *testing.T) {
	refreshedAt := FormatTimestamp(fixedNow)

	rows := Flatten(scenarioRecords(), refreshedAt)

	require.Len(t, rows, 1)
	assert.Equal(t, models.InventoryRow{
		WebhookID:              "w1",
		GuildID:                "g1",
		GuildName:              models.NullString("Guild One"),
		DestinationChannelID:   "c1",
		DestinationChannelName: "news",
		SourceGuildID:          models.NullString("s1"),
		SourceGuildName:        models.NullString("Source"),
		SourceChannelID:        models.NullString("sc1"),
		SourceChannelName:      models.NullString("Announcements"),
		RefreshedAt:            refreshedAt,
	}, rows[0])
}

func TestFlatten_DenormalizesAndStampsEveryRow(t *testing.T) {
	refreshedAt := FormatTimestamp(fixedNow)

	rows := Flatten(mixedRecords(), refreshedAt)

	require.Len(t, rows, 6)
	for _, row := range rows {
		assert.Equal(t, "g1", row.GuildID)
		assert.Equal(t, "Guild One", row.GuildName.String)
		assert.Equal(t, refreshedAt, row.RefreshedAt)
		assert.NotEmpty(t, row.DestinationChannelName)
		assert.True(t, row.SourceGuildName.Valid)
		assert.True(t, row.SourceChannelName.Valid)
	}

	byWebhook := make(map[string]models.InventoryRow)
	for _, row := range rows {
		byWebhook[row.WebhookID] = row
	}
	assert.False(t, byWebhook["w-4"].SourceGuildID.Valid)
	assert.False(t, byWebhook["w-4"].SourceChannelID.Valid)
	assert.Equal(t, UnknownSourceGuild, byWebhook["w-4"].SourceGuildName.String)
	assert.Equal(t, UnknownDestinationID, byWebhook["w-5"].DestinationChannelID)
	assert.NotContains(t, byWebhook, "w-6")
}

func TestFromRows_RoundTrip(t *testing.T) {
	refreshedAt := FormatTimestamp(fixedNow)
	expected := Aggregate(mixedRecords(), fixedNow)

	rows := Flatten(mixedRecords(), refreshedAt)

	// Storage order carries no meaning
	reversed := make([]models.InventoryRow, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		reversed = append(reversed, rows[i])
	}

	assert.Equal(t, expected, FromRows(rows))
	assert.Equal(t, expected, FromRows(reversed))
}

func TestFromRows_RoundTripWithoutGuildName(t *testing.T) {
	records := scenarioRecords()
	records.Guild.Name = ""

	expected := Aggregate(records, fixedNow)
	actual := FromRows(Flatten(records, FormatTimestamp(fixedNow)))

	assert.Equal(t, expected, actual)
}

func TestFromRows_FetchedAtIsNewestRow(t *testing.T) {
	rows := []models.InventoryRow{
		{
			WebhookID:              "hook-2",
			GuildID:                "guild-1",
			GuildName:              models.NullString("Guild One"),
			DestinationChannelID:   "dest-2",
			DestinationChannelName: "z-updates",
			SourceGuildID:          models.NullString("source-1"),
			SourceGuildName:        models.NullString("Source Guild"),
			SourceChannelID:        models.NullString("source-chan-2"),
			SourceChannelName:      models.NullString("Zulu"),
			RefreshedAt:            "2026-02-23T12:00:00.000Z",
		},
		{
			WebhookID:              "hook-1",
			GuildID:                "guild-1",
			GuildName:              models.NullString("Guild One"),
			DestinationChannelID:   "dest-1",
			DestinationChannelName: "announcements",
			SourceGuildID:          models.NullString("source-1"),
			SourceGuildName:        models.NullString("Source Guild"),
			SourceChannelID:        models.NullString("source-chan-1"),
			SourceChannelName:      models.NullString("Alpha"),
			RefreshedAt:            "2026-02-23T11:00:00.000Z",
		},
	}

	inv := FromRows(rows)

	assert.Equal(t, "guild-1", inv.GuildID)
	assert.Equal(t, "Guild One", inv.GuildName)
	assert.Equal(t, "2026-02-23T12:00:00.000Z", inv.FetchedAt)
	require.Len(t, inv.DestinationChannels, 2)
	assert.Equal(t, "announcements", inv.DestinationChannels[0].DestinationChannelName)
	assert.Equal(t, "z-updates", inv.DestinationChannels[1].DestinationChannelName)
	assert.Equal(t, "Alpha", inv.DestinationChannels[0].Follows[0].SourceChannelName)
}

func TestFromRows_SortsByIDWhenNameMissing(t *testing.T) {
	rows := []models.InventoryRow{
		{WebhookID: "h2", GuildID: "g1", DestinationChannelID: "d1", DestinationChannelName: "d", SourceChannelID: models.NullString("zz")},
		{WebhookID: "h1", GuildID: "g1", DestinationChannelID: "d1", DestinationChannelName: "d", SourceChannelID: models.NullString("aa")},
		{WebhookID: "h3", GuildID: "g1", DestinationChannelID: "d1", DestinationChannelName: "d"},
	}

	follows := FromRows(rows).DestinationChannels[0].Follows

	require.Len(t, follows, 3)
	assert.Equal(t, "h3", follows[0].WebhookID)
	assert.Equal(t, "h1", follows[1].WebhookID)
	assert.Equal(t, "h2", follows[2].WebhookID)
}

func TestFromRows_Empty(t *testing.T) {
	for name, rows := range map[string][]models.InventoryRow{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			inv := FromRows(rows)

			body, err := json.Marshal(inv)
			require.NoError(t, err)
			assert.JSONEq(t, `{"guildId":"Unknown","fetchedAt":"","destinationChannels":[]}`, string(body))
		})
	}
}
