package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/registry"
)

func TestSubscribeFirstConnectionBecomesOnline(t *testing.T) {
	reg := registry.New()
	tr := New(reg)

	connID := ids.NewConnectionID()
	reg.Register(connID, ids.UserID("u1"), 8)

	res, ok := tr.Subscribe(connID, ids.GuildID("g1"))
	require.True(t, ok)
	assert.True(t, res.BecameOnline)
	assert.Empty(t, res.SnapshotUserIDs)

	p, ok := reg.GetPresence(connID)
	require.True(t, ok)
	assert.True(t, p.InGuild(ids.GuildID("g1")))
}

func TestSubscribeSecondConnectionSeesFirstInSnapshotAndBecomesOnline(t *testing.T) {
	reg := registry.New()
	tr := New(reg)

	connA := ids.NewConnectionID()
	reg.Register(connA, ids.UserID("alice"), 8)
	_, ok := tr.Subscribe(connA, ids.GuildID("g1"))
	require.True(t, ok)

	connB := ids.NewConnectionID()
	reg.Register(connB, ids.UserID("bob"), 8)
	res, ok := tr.Subscribe(connB, ids.GuildID("g1"))
	require.True(t, ok)

	assert.True(t, res.BecameOnline)
	assert.ElementsMatch(t, []ids.UserID{"alice"}, res.SnapshotUserIDs)
}

func TestSubscribeSecondDeviceSameUserDoesNotBecomeOnlineAgain(t *testing.T) {
	reg := registry.New()
	tr := New(reg)

	connA := ids.NewConnectionID()
	reg.Register(connA, ids.UserID("alice"), 8)
	_, ok := tr.Subscribe(connA, ids.GuildID("g1"))
	require.True(t, ok)

	connA2 := ids.NewConnectionID()
	reg.Register(connA2, ids.UserID("alice"), 8)
	res, ok := tr.Subscribe(connA2, ids.GuildID("g1"))
	require.True(t, ok)

	assert.False(t, res.BecameOnline)
}

func TestDisconnectFollowupsReportsOfflineGuildWhenLastConnection(t *testing.T) {
	reg := registry.New()
	tr := New(reg)

	connID := ids.NewConnectionID()
	reg.Register(connID, ids.UserID("u1"), 8)
	_, ok := tr.Subscribe(connID, ids.GuildID("g1"))
	require.True(t, ok)

	removed, ok := reg.Remove(connID)
	require.True(t, ok)

	removeVoice, offlineGuilds := tr.DisconnectFollowups(ids.UserID("u1"), removed)
	assert.True(t, removeVoice)
	assert.ElementsMatch(t, []ids.GuildID{"g1"}, offlineGuilds)
}

func TestDisconnectFollowupsKeepsGuildOnlineWithOtherConnection(t *testing.T) {
	reg := registry.New()
	tr := New(reg)

	connA := ids.NewConnectionID()
	reg.Register(connA, ids.UserID("alice"), 8)
	_, ok := tr.Subscribe(connA, ids.GuildID("g1"))
	require.True(t, ok)

	connA2 := ids.NewConnectionID()
	reg.Register(connA2, ids.UserID("alice"), 8)
	_, ok = tr.Subscribe(connA2, ids.GuildID("g1"))
	require.True(t, ok)

	removed, ok := reg.Remove(connA)
	require.True(t, ok)

	removeVoice, offlineGuilds := tr.DisconnectFollowups(ids.UserID("alice"), removed)
	assert.False(t, removeVoice)
	assert.Empty(t, offlineGuilds)
}
