// Package voice implements the voice participant registry of spec.md §4.8.
// No teacher file models voice state directly; the TTL sweep and
// single-lock critical section are carried over from the hub's cleanup
// ticker pattern (pkg/websocket/hub.go, adred-codev-ws_poc/go-server), and
// the registration algorithm itself is built straight from spec.md's
// described steps (no original_source/ file names a voice subsystem
// either — see DESIGN.md).
package voice

import (
	"sync"

	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/subscription"
)

// StreamKind is one of the three publishable voice stream kinds.
type StreamKind int

const (
	StreamMicrophone StreamKind = iota
	StreamCamera
	StreamScreenShare
)

// StreamSet is a small set of StreamKind, compared/diffed by value.
type StreamSet map[StreamKind]struct{}

// NewStreamSet builds a StreamSet from a slice of kinds.
func NewStreamSet(kinds ...StreamKind) StreamSet {
	s := make(StreamSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s StreamSet) has(k StreamKind) bool {
	_, ok := s[k]
	return ok
}

// diff returns the elements of s not present in other.
func (s StreamSet) diff(other StreamSet) []StreamKind {
	var out []StreamKind
	for k := range s {
		if !other.has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Participant is spec.md §3's VoiceParticipant record.
type Participant struct {
	UserID               ids.UserID
	Identity             string
	JoinedAtUnix         int64
	UpdatedAtUnix        int64
	ExpiresAtUnix        int64
	IsMuted              bool
	IsDeafened           bool
	IsSpeaking           bool
	IsVideoEnabled       bool
	IsScreenShareEnabled bool
	PublishedStreams     StreamSet
}

func deriveBooleans(p *Participant) {
	p.IsVideoEnabled = p.PublishedStreams.has(StreamCamera)
	p.IsScreenShareEnabled = p.PublishedStreams.has(StreamScreenShare)
}

// Removed pairs a dropped participant with the channel key it was removed
// from, for the event planner's per-channel unpublish/leave emission.
type Removed struct {
	ChannelKey subscription.Key
	Participant Participant
}

// Transition is the {removed, joined?, updated?, newly_published,
// unpublished} result of register().
type Transition struct {
	Removed        []Removed
	Joined         *Participant
	Updated        *Participant
	NewlyPublished []StreamKind
	Unpublished    []StreamKind
}

// Registry is VoiceParticipantsByChannel: SubscriptionKey -> UserID ->
// Participant, plus the reverse user->channel index the single-channel
// invariant needs.
type Registry struct {
	mu         sync.Mutex
	byChannel  map[subscription.Key]map[ids.UserID]*Participant
	userToChan map[ids.UserID]subscription.Key
}

// New constructs an empty voice registry.
func New() *Registry {
	return &Registry{
		byChannel:  make(map[subscription.Key]map[ids.UserID]*Participant),
		userToChan: make(map[ids.UserID]subscription.Key),
	}
}

// Register runs spec.md §4.8's register algorithm.
func (r *Registry) Register(
	channelKey subscription.Key,
	userID ids.UserID,
	identity string,
	publish StreamSet,
	expiresAtUnix int64,
	now int64,
	maxChannels int,
	maxPerChannel int,
) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var t Transition

	if oldKey, ok := r.userToChan[userID]; ok && oldKey != channelKey {
		if set, ok := r.byChannel[oldKey]; ok {
			if p, ok := set[userID]; ok {
				t.Removed = append(t.Removed, Removed{ChannelKey: oldKey, Participant: *p})
				delete(set, userID)
			}
			if len(set) == 0 {
				delete(r.byChannel, oldKey)
			}
		}
		delete(r.userToChan, userID)
	}

	set, channelExists := r.byChannel[channelKey]
	if !channelExists {
		if len(r.byChannel) >= maxChannels {
			return Transition{}, gatewayerr.New(gatewayerr.RateLimited).WithReason("voice_channel_limit")
		}
	}

	existing, userExists := set[userID]
	if !userExists {
		if channelExists && len(set) >= maxPerChannel {
			return Transition{}, gatewayerr.New(gatewayerr.RateLimited).WithReason("voice_participant_limit")
		}
	}

	if set == nil {
		set = make(map[ids.UserID]*Participant)
		r.byChannel[channelKey] = set
	}

	if userExists {
		prev := existing.PublishedStreams
		t.NewlyPublished = publish.diff(prev)
		t.Unpublished = prev.diff(publish)

		existing.Identity = identity
		existing.UpdatedAtUnix = now
		existing.ExpiresAtUnix = expiresAtUnix
		existing.PublishedStreams = publish
		deriveBooleans(existing)
		t.Updated = existing
	} else {
		p := &Participant{
			UserID:           userID,
			Identity:         identity,
			JoinedAtUnix:     now,
			UpdatedAtUnix:    now,
			ExpiresAtUnix:    expiresAtUnix,
			PublishedStreams: publish,
		}
		deriveBooleans(p)
		set[userID] = p
		t.Joined = p
		t.NewlyPublished = make([]StreamKind, 0, len(publish))
		for k := range publish {
			t.NewlyPublished = append(t.NewlyPublished, k)
		}
	}
	r.userToChan[userID] = channelKey

	return t, nil
}

// TakeExpired removes every participant whose ExpiresAtUnix <= nowUnix and
// returns the removed set for the event planner, keyed like Transition's
// Removed field.
func (r *Registry) TakeExpired(nowUnix int64) []Removed {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Removed
	for key, set := range r.byChannel {
		for userID, p := range set {
			if p.ExpiresAtUnix > nowUnix {
				continue
			}
			out = append(out, Removed{ChannelKey: key, Participant: *p})
			delete(set, userID)
			delete(r.userToChan, userID)
		}
		if len(set) == 0 {
			delete(r.byChannel, key)
		}
	}
	return out
}

// RemoveUser drops userID from whichever channel it occupies (the user
// disconnect sweep of spec.md §4.8), returning the removal if any.
func (r *Registry) RemoveUser(userID ids.UserID) (Removed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.userToChan[userID]
	if !ok {
		return Removed{}, false
	}
	set, ok := r.byChannel[key]
	if !ok {
		delete(r.userToChan, userID)
		return Removed{}, false
	}
	p, ok := set[userID]
	if !ok {
		delete(r.userToChan, userID)
		return Removed{}, false
	}
	removed := Removed{ChannelKey: key, Participant: *p}
	delete(set, userID)
	delete(r.userToChan, userID)
	if len(set) == 0 {
		delete(r.byChannel, key)
	}
	return removed, true
}

// Snapshot returns a copy of channelKey's participants, for
// voice_participant_sync.
func (r *Registry) Snapshot(channelKey subscription.Key) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byChannel[channelKey]
	out := make([]Participant, 0, len(set))
	for _, p := range set {
		out = append(out, *p)
	}
	return out
}
