// Package registry implements the connection registry of spec.md §4.1: the
// single-lock source of truth for live connections, their outbound queues,
// control signals, and presence records. Modeled on the teacher's Hub
// register/unregister critical section (pkg/websocket/hub.go,
// adred-codev-ws_poc/go-server), generalized from a single global client
// set to per-connection state keyed by opaque ID plus a user index.
package registry

import (
	"sync"

	"github.com/filament/gateway/internal/ids"
)

// ControlSignal is sent on a connection's one-slot control channel.
type ControlSignal int

const (
	SignalOpen ControlSignal = iota
	SignalCloseRequested
)

// Presence is the mutable {user_id, guild_ids} record of spec.md §3. Only
// the subscribe handler and the disconnect procedure mutate it, both
// through Registry methods that hold the registry lock.
type Presence struct {
	UserID   ids.UserID
	GuildIDs map[ids.GuildID]struct{}
}

// InGuild reports whether the connection owning this presence record is
// subscribed to at least one channel of guildID.
func (p *Presence) InGuild(guildID ids.GuildID) bool {
	_, ok := p.GuildIDs[guildID]
	return ok
}

// Registry tracks every live connection under one lock, per spec.md §4.1:
// "All mutations hold one registry lock."
type Registry struct {
	mu sync.RWMutex

	presence map[ids.ConnectionID]*Presence
	controls map[ids.ConnectionID]chan ControlSignal
	senders  map[ids.ConnectionID]chan string
	byUser   map[ids.UserID]map[ids.ConnectionID]struct{}
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		presence: make(map[ids.ConnectionID]*Presence),
		controls: make(map[ids.ConnectionID]chan ControlSignal),
		senders:  make(map[ids.ConnectionID]chan string),
		byUser:   make(map[ids.UserID]map[ids.ConnectionID]struct{}),
	}
}

// Register allocates a bounded outbound queue and a one-slot control
// channel, inserts an empty-guild-set presence record, and indexes the
// connection under its user. Returns the send side of the outbound queue
// (producers use non-blocking try-send only, never block on it) and the
// receive side of the control channel.
func (r *Registry) Register(connID ids.ConnectionID, userID ids.UserID, outboundCapacity int) (chan string, <-chan ControlSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	send := make(chan string, outboundCapacity)
	control := make(chan ControlSignal, 1)

	r.senders[connID] = send
	r.controls[connID] = control
	r.presence[connID] = &Presence{UserID: userID, GuildIDs: make(map[ids.GuildID]struct{})}

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[ids.ConnectionID]struct{})
	}
	r.byUser[userID][connID] = struct{}{}

	return send, control
}

// Remove deletes connID from presence, controls, and sender maps in one
// critical section, returning the removed presence record (if any) so the
// caller's disconnect procedure can compute follow-ups. The caller is
// responsible for pruning subscription/guild indexes separately (they live
// in internal/subscription, outside this lock, but within the same logical
// disconnect step).
func (r *Registry) Remove(connID ids.ConnectionID) (*Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.presence[connID]
	if !ok {
		return nil, false
	}

	if send, ok := r.senders[connID]; ok {
		close(send)
	}
	delete(r.presence, connID)
	delete(r.controls, connID)
	delete(r.senders, connID)

	if set, ok := r.byUser[p.UserID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, p.UserID)
		}
	}

	return p, true
}

// SignalClose publishes a close signal to each ID's control channel via
// non-blocking try-send. Unknown IDs are silently ignored, and an already
// full control channel (a close already pending) is left alone.
func (r *Registry) SignalClose(connIDs []ids.ConnectionID) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range connIDs {
		ctrl, ok := r.controls[id]
		if !ok {
			continue
		}
		select {
		case ctrl <- SignalCloseRequested:
		default:
		}
	}
}

// Sender returns the outbound queue handle for connID, for callers (the
// subscribe flow's ack, targeted user dispatch) that need to try-send
// directly against the registry without going through a subscription.
func (r *Registry) Sender(connID ids.ConnectionID) (chan string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.senders[connID]
	return ch, ok
}

// ConnectionsForUser returns the IDs of every live connection of userID,
// used to build the connection_id list for dispatch_user_payload.
func (r *Registry) ConnectionsForUser(userID ids.UserID) []ids.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]ids.ConnectionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// GetPresence returns the presence record for connID, if registered.
func (r *Registry) GetPresence(connID ids.ConnectionID) (*Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presence[connID]
	return p, ok
}

// MutatePresence runs fn under the registry lock against connID's presence
// record, if it still exists. Used by the subscribe flow and disconnect
// procedure to insert/inspect guild membership atomically with the rest of
// the registry state.
func (r *Registry) MutatePresence(connID ids.ConnectionID, fn func(p *Presence)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.presence[connID]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// UsersInGuild returns the distinct set of user IDs with at least one live
// connection whose presence record already contains guildID. Used by
// internal/presence to compute the subscribe snapshot before the calling
// connection's own presence record is mutated.
func (r *Registry) UsersInGuild(guildID ids.GuildID) []ids.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[ids.UserID]struct{})
	for _, p := range r.presence {
		if p.InGuild(guildID) {
			seen[p.UserID] = struct{}{}
		}
	}
	out := make([]ids.UserID, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	return out
}

// OtherConnectionInGuild reports whether userID has a live connection,
// other than excludeConnID, whose presence record already contains
// guildID.
func (r *Registry) OtherConnectionInGuild(userID ids.UserID, excludeConnID ids.ConnectionID, guildID ids.GuildID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for connID := range r.byUser[userID] {
		if connID == excludeConnID {
			continue
		}
		if p, ok := r.presence[connID]; ok && p.InGuild(guildID) {
			return true
		}
	}
	return false
}

// Count returns the number of live connections, for metrics/diagnostics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.presence)
}
