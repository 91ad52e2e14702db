// Package subscription implements the channel/guild subscription indexes
// of spec.md §3/§4.2. Modeled on the teacher's subscriptionIndex
// (internal/shared/broadcast.go), generalized from a single flat
// channel->clients map to the guild-prefixed SubscriptionKey scheme the
// gateway needs for guild-scoped dispatch.
package subscription

import (
	"fmt"
	"strings"
	"sync"

	"github.com/filament/gateway/internal/ids"
)

// Key is spec.md's SubscriptionKey: "<guild_id>:<channel_id>".
type Key string

// NewKey builds a SubscriptionKey from its parts.
func NewKey(guildID ids.GuildID, channelID ids.ChannelID) Key {
	return Key(fmt.Sprintf("%s:%s", guildID, channelID))
}

// Parse splits a Key back into guild and channel ID. An empty guild prefix
// is valid (guild_id == "") and is reported as such; callers decide whether
// to skip guild-index bookkeeping for it, per spec.md §4.2.
func (k Key) Parse() (ids.GuildID, ids.ChannelID) {
	s := string(k)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return ids.GuildID(s), ""
	}
	return ids.GuildID(s[:i]), ids.ChannelID(s[i+1:])
}

// Index holds Subscriptions and the GuildConnectionIndex of spec.md §3,
// guarded by one lock per spec.md §5 ("All broadcast operations take the
// subscription lock in write mode because they prune dead listeners during
// iteration").
type Index struct {
	mu sync.RWMutex

	// listeners maps a SubscriptionKey to its non-empty set of listeners.
	// Invariant: every inner map is non-empty; pruned on mutation.
	listeners map[Key]map[ids.ConnectionID]chan<- string

	// byGuild mirrors the union of channel-scope subscriptions for a guild.
	byGuild map[ids.GuildID]map[ids.ConnectionID]struct{}
}

// New constructs an empty subscription index.
func New() *Index {
	return &Index{
		listeners: make(map[Key]map[ids.ConnectionID]chan<- string),
		byGuild:   make(map[ids.GuildID]map[ids.ConnectionID]struct{}),
	}
}

// Insert adds connID as a listener of key with queue handle sender.
// Duplicate insertion for the same (key, connID) replaces the handle.
// An empty guild prefix is ignored for GuildConnectionIndex purposes, but
// the subscription itself is still recorded (spec.md §4.2: "forward
// compatibility").
func (idx *Index) Insert(key Key, connID ids.ConnectionID, sender chan<- string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.listeners[key]
	if set == nil {
		set = make(map[ids.ConnectionID]chan<- string)
		idx.listeners[key] = set
	}
	set[connID] = sender

	guildID, _ := key.Parse()
	if guildID == "" {
		return
	}
	g := idx.byGuild[guildID]
	if g == nil {
		g = make(map[ids.ConnectionID]struct{})
		idx.byGuild[guildID] = g
	}
	g[connID] = struct{}{}
}

// RemoveFromAll prunes connID from every SubscriptionKey and the guild
// index, deleting any entry whose listener set becomes empty. Intended to
// run in the same critical section as the registry's Remove during a
// connection's disconnect procedure.
func (idx *Index) RemoveFromAll(connID ids.ConnectionID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for key, set := range idx.listeners {
		if _, ok := set[connID]; !ok {
			continue
		}
		delete(set, connID)
		if len(set) == 0 {
			delete(idx.listeners, key)
		}
	}
	for guildID, set := range idx.byGuild {
		delete(set, connID)
		if len(set) == 0 {
			delete(idx.byGuild, guildID)
		}
	}
}

// Listeners returns a snapshot copy of the listener map for key.
func (idx *Index) Listeners(key Key) map[ids.ConnectionID]chan<- string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneListeners(idx.listeners[key])
}

// KeysForGuild returns every SubscriptionKey currently tracked whose guild
// prefix is guildID, along with a snapshot of its listeners.
func (idx *Index) KeysForGuild(guildID ids.GuildID) map[Key]map[ids.ConnectionID]chan<- string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	prefix := string(guildID) + ":"
	out := make(map[Key]map[ids.ConnectionID]chan<- string)
	for key, set := range idx.listeners {
		if strings.HasPrefix(string(key), prefix) {
			out[key] = cloneListeners(set)
		}
	}
	return out
}

// RemoveListener deletes connID from exactly one key, pruning the key if
// its listener set becomes empty afterward. Used by the dispatcher when a
// single delivery fails within a multi-key guild dispatch.
func (idx *Index) RemoveListener(key Key, connID ids.ConnectionID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set, ok := idx.listeners[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(idx.listeners, key)
	}

	guildID, _ := key.Parse()
	if guildID == "" {
		return
	}
	if g, ok := idx.byGuild[guildID]; ok {
		// Only drop the guild-index entry if connID has no other channel
		// subscription in this guild.
		stillPresent := false
		prefix := string(guildID) + ":"
		for k, s := range idx.listeners {
			if !strings.HasPrefix(string(k), prefix) {
				continue
			}
			if _, ok := s[connID]; ok {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			delete(g, connID)
			if len(g) == 0 {
				delete(idx.byGuild, guildID)
			}
		}
	}
}

// PruneIfEmpty removes key entirely if its listener set is currently empty.
func (idx *Index) PruneIfEmpty(key Key) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if set, ok := idx.listeners[key]; ok && len(set) == 0 {
		delete(idx.listeners, key)
	}
}

// GuildMembers returns the connection IDs the guild index believes are
// present in guildID.
func (idx *Index) GuildMembers(guildID ids.GuildID) []ids.ConnectionID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.byGuild[guildID]
	out := make([]ids.ConnectionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func cloneListeners(in map[ids.ConnectionID]chan<- string) map[ids.ConnectionID]chan<- string {
	out := make(map[ids.ConnectionID]chan<- string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
