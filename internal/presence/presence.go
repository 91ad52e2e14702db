// Package presence implements the presence tracker of spec.md §4.7. There
// is no direct teacher analogue for presence itself (the teacher's hub
// never modeled per-guild online/offline transitions); this package is
// derived from spec.md's algorithm directly, built on top of the already
// lock-owning internal/registry's presence records rather than introducing
// a lock of its own.
package presence

import (
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/registry"
)

// Tracker derives presence_sync/presence_update semantics from the
// registry's presence records. It holds no state of its own: the registry
// remains the single source of truth, per spec.md §4.1's "all mutations
// hold one registry lock."
type Tracker struct {
	reg *registry.Registry
}

// New constructs a presence tracker over reg.
func New(reg *registry.Registry) *Tracker {
	return &Tracker{reg: reg}
}

// SubscribeResult is the {snapshot_user_ids, became_online} pair spec.md
// §4.7 returns from subscribe().
type SubscribeResult struct {
	SnapshotUserIDs []ids.UserID
	BecameOnline    bool
}

// Subscribe computes the presence delta for connID joining guildID and
// mutates connID's presence record to include it, last. The snapshot is
// computed against the presence records as they stand before that mutation,
// so a connection's own user only appears in its own snapshot if another
// of that user's connections was already online in the guild; the
// first-connection case is instead carried by BecameOnline, which the
// caller turns into a separate presence_update event.
func (t *Tracker) Subscribe(connID ids.ConnectionID, guildID ids.GuildID) (SubscribeResult, bool) {
	p, ok := t.reg.GetPresence(connID)
	if !ok {
		return SubscribeResult{}, false
	}

	alreadyHadGuild := p.InGuild(guildID)
	otherConnHasGuild := t.reg.OtherConnectionInGuild(p.UserID, connID, guildID)
	becameOnline := !otherConnHasGuild && !alreadyHadGuild

	snapshot := t.reg.UsersInGuild(guildID)

	t.reg.MutatePresence(connID, func(p *registry.Presence) {
		p.GuildIDs[guildID] = struct{}{}
	})

	return SubscribeResult{SnapshotUserIDs: snapshot, BecameOnline: becameOnline}, true
}

// DisconnectFollowups computes the offline-guild and voice-removal
// follow-ups of spec.md §4.7's disconnect procedure, given the presence
// record that was just removed from the registry (removedPresence). For
// every guild the removed connection belonged to, that guild is reported
// offline only if the user has no other connection still present in it.
// removeVoice is true when the registry holds no remaining live
// connection for userID at all.
func (t *Tracker) DisconnectFollowups(userID ids.UserID, removedPresence *registry.Presence) (removeVoice bool, offlineGuilds []ids.GuildID) {
	if removedPresence == nil {
		return false, nil
	}

	for guildID := range removedPresence.GuildIDs {
		if !t.reg.OtherConnectionInGuild(userID, "", guildID) {
			offlineGuilds = append(offlineGuilds, guildID)
		}
	}

	removeVoice = len(t.reg.ConnectionsForUser(userID)) == 0

	return removeVoice, offlineGuilds
}
