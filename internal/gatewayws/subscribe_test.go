package gatewayws

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/fanout"
	"github.com/filament/gateway/internal/gatewaymetrics"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/ingress"
	"github.com/filament/gateway/internal/presence"
	"github.com/filament/gateway/internal/registry"
	"github.com/filament/gateway/internal/subscription"
	"github.com/filament/gateway/internal/voice"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer() (*Server, *registry.Registry, *collab.MockPermissions, *collab.MockAuditLog) {
	reg := registry.New()
	subs := subscription.New()
	metrics := gatewaymetrics.New(prometheus.NewRegistry())
	dispatcher := fanout.New(subs, metrics, zerolog.Nop())
	presenceT := presence.New(reg)
	voiceReg := voice.New()
	perms := collab.NewMockPermissions()
	audit := collab.NewMockAuditLog()
	collabMx := collab.NewMockMetrics()

	s := New(Config{
		OutboundQueueCapacity: 8,
		MaxGatewayEventBytes:  65536,
	}, Deps{
		Registry:    reg,
		Subs:        subs,
		Dispatcher:  dispatcher,
		Presence:    presenceT,
		Voice:       voiceReg,
		Metrics:     metrics,
		Permissions: perms,
		Audit:       audit,
		CollabMx:    collabMx,
	}, zerolog.Nop())

	return s, reg, perms, audit
}

func TestHandleSubscribeSucceedsAndAcksAndSnapshotsVoice(t *testing.T) {
	s, reg, perms, _ := newTestServer()

	connID := ids.NewConnectionID()
	send, _ := reg.Register(connID, ids.UserID("alice"), 8)
	cc := connContext{ID: connID, UserID: ids.UserID("alice"), IP: "1.2.3.4"}

	perms.AllowWrite(ids.UserID("alice"), ids.ChannelID("c1"))

	closeReason := s.handleSubscribe(cc, ingress.SubscribeCommand{GuildID: ids.GuildID("g1"), ChannelID: ids.ChannelID("c1")})
	assert.Empty(t, closeReason)

	// presence_sync, presence_update (alice's own online broadcast),
	// subscribed ack, voice_participant_sync: four frames queued.
	require.Len(t, send, 4)
}

func TestHandleSubscribeDisconnectsOnIPBan(t *testing.T) {
	s, reg, perms, audit := newTestServer()

	connID := ids.NewConnectionID()
	reg.Register(connID, ids.UserID("bob"), 8)
	cc := connContext{ID: connID, UserID: ids.UserID("bob"), IP: "9.9.9.9"}

	perms.BanIP(ids.GuildID("g1"), "9.9.9.9")

	closeReason := s.handleSubscribe(cc, ingress.SubscribeCommand{GuildID: ids.GuildID("g1"), ChannelID: ids.ChannelID("c1")})
	assert.Equal(t, "ip_banned", closeReason)
	assert.Len(t, audit.Entries(), 1)
}

func TestHandleSubscribeDisconnectsOnForbiddenChannel(t *testing.T) {
	s, reg, _, _ := newTestServer()

	connID := ids.NewConnectionID()
	reg.Register(connID, ids.UserID("carol"), 8)
	cc := connContext{ID: connID, UserID: ids.UserID("carol"), IP: "1.1.1.1"}

	closeReason := s.handleSubscribe(cc, ingress.SubscribeCommand{GuildID: ids.GuildID("g1"), ChannelID: ids.ChannelID("c1")})
	assert.Equal(t, "forbidden_channel", closeReason)
}

func TestHandleSubscribeOutboundQueueFullDisconnects(t *testing.T) {
	s, reg, perms, _ := newTestServer()

	connID := ids.NewConnectionID()
	send, _ := reg.Register(connID, ids.UserID("dora"), 1)
	cc := connContext{ID: connID, UserID: ids.UserID("dora"), IP: "1.1.1.1"}
	perms.AllowWrite(ids.UserID("dora"), ids.ChannelID("c1"))

	// Fill the single-slot queue before subscribing so the ack try-send fails.
	send <- "presence_sync filler"

	closeReason := s.handleSubscribe(cc, ingress.SubscribeCommand{GuildID: ids.GuildID("g1"), ChannelID: ids.ChannelID("c1")})
	assert.Equal(t, "outbound_queue_full", closeReason)
}
