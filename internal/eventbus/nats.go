// Package eventbus relays gateway events across gateway instances over
// NATS. The teacher's go.mod declares github.com/nats-io/nats.go (and
// config.go carries a NATSUrl setting) but no NATS client code ships in
// the retrieval pack to imitate directly, so this package follows
// nats.go's own idiomatic connect/publish/subscribe shape instead — see
// DESIGN.md. It exists because a guild can have members connected to more
// than one gateway instance (internal/sharding routes a guild to exactly
// one *owning* instance for voice/search writes, but any instance may hold
// live connections subscribed to that guild's channels), so a dispatch
// computed on one instance must reach every other instance's local
// fan-out.
package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/ids"
)

// Scope identifies which index a relayed event should be redispatched
// against on the receiving instance.
type Scope string

const (
	ScopeChannel Scope = "channel"
	ScopeGuild   Scope = "guild"
	ScopeUser    Scope = "user"
	// ScopeShard relays a command to one specific shard instance (by
	// shard ID), rather than redispatching a gateway event — used for
	// internal/sharding's guild-ownership proxying (SPEC_FULL.md §3).
	ScopeShard Scope = "shard"
)

// GatewayEvent is one relayed dispatch: the scope, the target key within
// that scope (a subscription.Key string for channel/guild, a UserID
// string for user), and the pre-built envelope payload.
type GatewayEvent struct {
	Scope         Scope  `json:"scope"`
	Target        string `json:"target"`
	PayloadString string `json:"payload"`
	EventType     string `json:"event_type"`
}

func subject(scope Scope, target string) string {
	return fmt.Sprintf("gateway.%s.%s", scope, target)
}

// Bus wraps a NATS connection for publish/subscribe of gateway events
// across instances.
type Bus struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// Connect dials url and returns a Bus.
func Connect(url string, logger zerolog.Logger) (*Bus, error) {
	conn, err := nats.Connect(url, nats.Name("filament-gateway"))
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to %q: %w", url, err)
	}
	return &Bus{conn: conn, logger: logger.With().Str("component", "eventbus").Logger()}, nil
}

// Close drains and closes the underlying NATS connection.
func (b *Bus) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("eventbus drain failed")
	}
}

// Publish relays built onto subject gateway.<scope>.<target> for every
// other instance subscribed to it.
func (b *Bus) Publish(scope Scope, target string, built *envelope.Built) error {
	ev := GatewayEvent{Scope: scope, Target: target, PayloadString: built.PayloadString, EventType: built.EventType}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	if err := b.conn.Publish(subject(scope, target), data); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// PublishGuild is a Publish convenience for guild-scoped events, keyed by
// the GuildID directly.
func (b *Bus) PublishGuild(guildID ids.GuildID, built *envelope.Built) error {
	return b.Publish(ScopeGuild, string(guildID), built)
}

// PublishShard relays built to the shard identified by shardID, keyed by
// its decimal ID as the subject target.
func (b *Bus) PublishShard(shardID int, built *envelope.Built) error {
	return b.Publish(ScopeShard, fmt.Sprintf("%d", shardID), built)
}

// Handler processes a relayed event on the receiving instance, typically
// by feeding it straight into the local fan-out dispatcher for the named
// scope/target.
type Handler func(ev GatewayEvent)

// Subscribe registers handler against every event relayed for scope,
// across all targets (a wildcard subscription on gateway.<scope>.*).
func (b *Bus) Subscribe(scope Scope, handler Handler) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(fmt.Sprintf("gateway.%s.*", scope), func(msg *nats.Msg) {
		var ev GatewayEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Error().Err(err).Msg("eventbus: decode relayed event failed")
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe to scope %q: %w", scope, err)
	}
	return sub, nil
}
