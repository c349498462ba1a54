package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/parsascontentcorner/followmanager/internal/models"
)

// AssertInventoryEqual compares two inventories field by field.
// FetchedAt is ignored because live reads and snapshots are stamped at different times.
func AssertInventoryEqual(t *testing.T, expected, actual models.FollowInventory) {
	t.Helper()

	assert.Equal(t, expected.GuildID, actual.GuildID, "GuildID should match")
	assert.Equal(t, expected.GuildName, actual.GuildName, "GuildName should match")
	assert.Equal(t, expected.DestinationChannels, actual.DestinationChannels, "DestinationChannels should match")
}

// AssertInventorySorted checks the ordering every inventory must have: groups by
// destination name, follows by source channel label, ties broken by id.
func AssertInventorySorted(t *testing.T, inv models.FollowInventory) {
	t.Helper()

	col := collate.New(language.Und, collate.Loose)
	groups := inv.DestinationChannels
	for i := 1; i < len(groups); i++ {
		prev, cur := groups[i-1], groups[i]
		cmp := col.CompareString(prev.DestinationChannelName, cur.DestinationChannelName)
		assert.True(t,
			cmp < 0 || (cmp == 0 && prev.DestinationChannelID < cur.DestinationChannelID),
			"group %q (%s) should sort before %q (%s)",
			prev.DestinationChannelName, prev.DestinationChannelID,
			cur.DestinationChannelName, cur.DestinationChannelID,
		)
	}

	for _, group := range groups {
		for i := 1; i < len(group.Follows); i++ {
			prev, cur := group.Follows[i-1], group.Follows[i]
			cmp := col.CompareString(prev.SortLabel(), cur.SortLabel())
			assert.True(t,
				cmp < 0 || (cmp == 0 && prev.WebhookID < cur.WebhookID),
				"follow %s should sort before %s in %s",
				prev.WebhookID, cur.WebhookID, group.DestinationChannelID,
			)
		}
	}
}

// AssertTimeAlmostEqual checks if two times are within a specified delta.
// Useful for timestamp comparisons where exact equality isn't expected.
func AssertTimeAlmostEqual(t *testing.T, expected, actual time.Time, delta time.Duration) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}

	assert.True(t,
		diff <= delta,
		"Times should be within %v of each other. Expected: %v, Actual: %v, Diff: %v",
		delta, expected, actual, diff,
	)
}
