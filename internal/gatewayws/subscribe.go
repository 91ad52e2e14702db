package gatewayws

import (
	"context"
	"time"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/ingress"
	"github.com/filament/gateway/internal/presence"
	"github.com/filament/gateway/internal/subscription"
)

// subscribeProxyPayload is what a Subscribe command for a non-local guild
// relays to that guild's owning shard over NATS, per SPEC_FULL.md §3's
// "a connection whose subscribed guild is not local proxies the Subscribe
// command to the owning shard." It is publish-only: no code in this
// repository subscribes to or handles the relayed event. The subscribing
// connection's own fan-out bookkeeping (subscription index, presence,
// local voice snapshot) still happens on this instance below, since the
// connection's socket lives here regardless of which shard owns the
// guild's writes.
type subscribeProxyPayload struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

type presenceSyncPayload struct {
	GuildID string   `json:"guild_id"`
	UserIDs []string `json:"user_ids"`
}

type presenceUpdatePayload struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
}

type subscribedPayload struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

// handleSubscribe runs spec.md §4.6's Subscribe Flow in its exact order:
// IP ban, write-permission check, subscription insert, presence
// sync/update, the "subscribed" ack, and the voice snapshot. It returns a
// non-empty close reason when the connection must be disconnected; an empty
// string means the subscribe succeeded and the read loop continues.
func (s *Server) handleSubscribe(cc connContext, cmd ingress.SubscribeCommand) string {
	ctx := context.Background()

	if s.perms != nil {
		if err := s.perms.EnforceGuildIPBan(ctx, cmd.GuildID, cc.UserID, cc.IP, collab.SurfaceGateway); err != nil {
			s.auditDeny(ctx, cc, cmd.GuildID, "ip_banned")
			return "ip_banned"
		}

		canWrite, err := s.perms.UserCanWriteChannel(ctx, cc.UserID, cmd.GuildID, cmd.ChannelID)
		if err != nil || !canWrite {
			s.auditDeny(ctx, cc, cmd.GuildID, "forbidden_channel")
			return "forbidden_channel"
		}
	}

	s.proxySubscribeIfRemote(cc, cmd)

	key := subscription.NewKey(cmd.GuildID, cmd.ChannelID)
	send, ok := s.reg.Sender(cc.ID)
	if !ok {
		return "connection_gone"
	}
	s.subs.Insert(key, cc.ID, send)

	if result, ok := s.presenceT.Subscribe(cc.ID, cmd.GuildID); ok {
		s.emitPresenceSync(cc, cmd.GuildID, result)
	}

	if built, err := envelope.Build("subscribed", subscribedPayload{
		GuildID:   string(cmd.GuildID),
		ChannelID: string(cmd.ChannelID),
	}); err == nil {
		if !trySendOutbound(send, built.PayloadString) {
			return "outbound_queue_full"
		}
	}

	s.emitVoiceSnapshot(key, send)

	return ""
}

// proxySubscribeIfRemote notifies cmd.GuildID's owning shard, over the
// same NATS bus the fan-out relay uses, that this connection subscribed
// to one of its channels from a different instance. Best-effort: a
// publish failure only gets logged, since the local Subscribe Flow below
// still proceeds regardless (the socket lives on this instance either
// way; only voice/search write ownership is shard-local).
func (s *Server) proxySubscribeIfRemote(cc connContext, cmd ingress.SubscribeCommand) {
	if s.shards == nil || s.bus == nil {
		return
	}
	if s.shards.Owns(s.localShardID, cmd.GuildID) {
		return
	}

	owner := s.shards.OwnerOf(cmd.GuildID)
	built, err := envelope.Build("subscribe_proxy", subscribeProxyPayload{
		GuildID:   string(cmd.GuildID),
		ChannelID: string(cmd.ChannelID),
		UserID:    string(cc.UserID),
	})
	if err != nil {
		return
	}
	if err := s.bus.PublishShard(owner, built); err != nil {
		s.logger.Warn().Err(err).Int("owner_shard", owner).Msg("failed to proxy subscribe to owning shard")
	}
}

func (s *Server) auditDeny(ctx context.Context, cc connContext, guildID ids.GuildID, reason string) {
	if s.collabMx != nil {
		s.collabMx.IncEventsDropped("gateway", "subscribe", reason)
	}
	if s.audit != nil {
		_ = s.audit.Append(ctx, collab.AuditEntry{
			ActorUserID: cc.UserID,
			GuildID:     guildID,
			Action:      "subscribe_denied",
			Detail:      reason,
			AtUnix:      time.Now().Unix(),
		})
	}
}

// emitPresenceSync publishes the presence_sync snapshot and, when this is
// the user's first connection in the guild, a conditional presence_update
// announcing it came online — emitted in that order, per spec.md §7's
// "update-then-publish" Open Question decision.
func (s *Server) emitPresenceSync(cc connContext, guildID ids.GuildID, result presence.SubscribeResult) {
	userIDs := make([]string, 0, len(result.SnapshotUserIDs))
	for _, u := range result.SnapshotUserIDs {
		userIDs = append(userIDs, string(u))
	}
	if built, err := envelope.Build("presence_sync", presenceSyncPayload{
		GuildID: string(guildID),
		UserIDs: userIDs,
	}); err == nil {
		if send, ok := s.reg.Sender(cc.ID); ok {
			trySendOutbound(send, built.PayloadString)
		}
	}

	if result.BecameOnline {
		if built, err := envelope.Build("presence_update", presenceUpdatePayload{
			GuildID: string(guildID),
			UserID:  string(cc.UserID),
			Status:  "online",
		}); err == nil {
			_, slow := s.dispatcher.DispatchGuild(guildID, built, s.cfg.MaxGatewayEventBytes)
			s.reg.SignalClose(slow)
		}
	}
}

func (s *Server) emitVoiceSnapshot(key subscription.Key, send chan<- string) {
	participants := s.voiceReg.Snapshot(key)
	if built, err := envelope.Build("voice_participant_sync", toVoiceSyncPayload(participants)); err == nil {
		trySendOutbound(send, built.PayloadString)
	}
}
