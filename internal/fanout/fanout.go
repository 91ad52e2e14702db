// Package fanout implements the three fan-out entry points of spec.md §4.3,
// sharing one non-blocking try-send primitive. Modeled on the teacher's
// Broadcast (internal/shared/broadcast.go): pre-serialize once, try-send to
// every listener, never block, evict slow/closed listeners as you go.
package fanout

import (
	"github.com/rs/zerolog"

	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/gatewaymetrics"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/subscription"
)

// Scope labels a dispatch for metrics and logging.
type Scope string

const (
	ScopeChannel Scope = "channel"
	ScopeGuild   Scope = "guild"
	ScopeUser    Scope = "user"
)

// Dispatcher implements spec.md §4.3 against one subscription index.
type Dispatcher struct {
	subs    *subscription.Index
	metrics *gatewaymetrics.Metrics
	logger  zerolog.Logger
}

// New builds a Dispatcher over subs.
func New(subs *subscription.Index, metrics *gatewaymetrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{subs: subs, metrics: metrics, logger: logger.With().Str("component", "fanout").Logger()}
}

// sendOutcome classifies one listener's try-send result.
type sendOutcome int

const (
	outcomeOK sendOutcome = iota
	outcomeClosed
	outcomeFull
)

// trySend attempts a non-blocking send, recovering from the panic a send on
// a closed channel raises. A stale subscription handle left behind by a
// connection whose registry entry was already removed and whose outbound
// channel was therefore closed is exactly the "Closed" case spec.md §4.3
// describes; recovering here converts that panic into the typed outcome the
// dispatcher's table expects, rather than letting it escape.
func trySend(ch chan<- string, payload string) (outcome sendOutcome) {
	defer func() {
		if recover() != nil {
			outcome = outcomeClosed
		}
	}()
	select {
	case ch <- payload:
		return outcomeOK
	default:
		return outcomeFull
	}
}

// dispatchToListeners is the shared primitive of spec.md §4.3's table: send
// to every listener and report which connections came back Closed or Full.
// Callers remove both kinds from the subscription index (Full listeners
// stay registered for future delivery attempts otherwise, immediately
// re-accumulating drops) and escalate the Full ones to SignalClose.
func (d *Dispatcher) dispatchToListeners(listeners map[ids.ConnectionID]chan<- string, built *envelope.Built, scope Scope) (delivered int, slow []ids.ConnectionID, closed []ids.ConnectionID) {
	for connID, ch := range listeners {
		switch trySend(ch, built.PayloadString) {
		case outcomeOK:
			delivered++
		case outcomeClosed:
			closed = append(closed, connID)
			d.metrics.EventsDropped.WithLabelValues(string(scope), built.EventType, "closed").Inc()
		case outcomeFull:
			slow = append(slow, connID)
			d.metrics.EventsDropped.WithLabelValues(string(scope), built.EventType, "full_queue").Inc()
		}
	}
	if delivered > 0 {
		d.metrics.EventsEmitted.WithLabelValues(string(scope), built.EventType).Add(float64(delivered))
	}
	return delivered, slow, closed
}

func (d *Dispatcher) oversize(payload string, maxPayloadBytes int, scope Scope, eventType string) bool {
	if len(payload) <= maxPayloadBytes {
		return false
	}
	d.metrics.EventsDropped.WithLabelValues(string(scope), eventType, "oversized_outbound").Inc()
	return true
}

// DispatchChannel delivers built to every listener of key, pruning dead
// listeners and the key itself if it becomes empty.
func (d *Dispatcher) DispatchChannel(key subscription.Key, built *envelope.Built, maxPayloadBytes int) (delivered int, slow []ids.ConnectionID) {
	if d.oversize(built.PayloadString, maxPayloadBytes, ScopeChannel, built.EventType) {
		return 0, nil
	}

	listeners := d.subs.Listeners(key)
	delivered, slow, closed := d.dispatchToListeners(listeners, built, ScopeChannel)
	for _, connID := range closed {
		d.subs.RemoveListener(key, connID)
	}
	for _, connID := range slow {
		d.subs.RemoveListener(key, connID)
	}
	d.subs.PruneIfEmpty(key)
	return delivered, slow
}

// DispatchGuild delivers built to every listener across every channel key
// whose guild prefix is guildID. A connection subscribed to more than one
// channel of the guild receives the payload exactly once, enforced by a
// seen-set across the iteration. A listener that fails delivery in one
// channel is only removed from that channel.
func (d *Dispatcher) DispatchGuild(guildID ids.GuildID, built *envelope.Built, maxPayloadBytes int) (delivered int, slow []ids.ConnectionID) {
	if d.oversize(built.PayloadString, maxPayloadBytes, ScopeGuild, built.EventType) {
		return 0, nil
	}

	seen := make(map[ids.ConnectionID]struct{})
	for key, listeners := range d.subs.KeysForGuild(guildID) {
		// Exclude connections already delivered to under another channel key
		// of this guild before sending.
		unseen := make(map[ids.ConnectionID]chan<- string, len(listeners))
		for connID, ch := range listeners {
			if _, ok := seen[connID]; ok {
				continue
			}
			unseen[connID] = ch
		}

		d1, slow1, closed1 := d.dispatchToListeners(unseen, built, ScopeGuild)
		delivered += d1
		slow = append(slow, slow1...)
		for connID := range unseen {
			seen[connID] = struct{}{}
		}
		for _, connID := range closed1 {
			d.subs.RemoveListener(key, connID)
		}
		for _, connID := range slow1 {
			d.subs.RemoveListener(key, connID)
		}
		d.subs.PruneIfEmpty(key)
	}
	return delivered, slow
}

// DispatchUser delivers built to the given precomputed connection ID list
// (produced from the UserConnectionIndex). A missing sender is skipped
// silently — this is a targeted dispatch, not an index-owning one, so there
// is no listener map to prune here.
func (d *Dispatcher) DispatchUser(senders map[ids.ConnectionID]chan<- string, built *envelope.Built, maxPayloadBytes int) (delivered int, slow []ids.ConnectionID) {
	if d.oversize(built.PayloadString, maxPayloadBytes, ScopeUser, built.EventType) {
		return 0, nil
	}
	delivered, slow, _ = d.dispatchToListeners(senders, built, ScopeUser)
	return delivered, slow
}
