package gatewayws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/ingress"
)

func TestHandleMessageCreatePersistsAndDispatchesToChannel(t *testing.T) {
	s, reg, perms, _ := newTestServer()
	messages := collab.NewMockMessageStore()
	s.messages = messages

	authorConn := ids.NewConnectionID()
	send, _ := reg.Register(authorConn, ids.UserID("alice"), 8)
	cc := connContext{ID: authorConn, UserID: ids.UserID("alice"), IP: "1.1.1.1"}

	perms.AllowWrite(ids.UserID("alice"), ids.ChannelID("c1"))
	require.Empty(t, s.handleSubscribe(cc, ingress.SubscribeCommand{GuildID: ids.GuildID("g1"), ChannelID: ids.ChannelID("c1")}))

	// Drain the subscribe flow's four frames so the channel dispatch below
	// is the only thing left to observe.
	for i := 0; i < 4; i++ {
		<-send
	}

	s.handleMessageCreate(cc, ingress.MessageCreateCommand{
		GuildID:   ids.GuildID("g1"),
		ChannelID: ids.ChannelID("c1"),
		Content:   "hello world",
	})

	select {
	case payload := <-send:
		assert.Contains(t, payload, "message_create")
		assert.Contains(t, payload, "hello world")
	default:
		t.Fatal("expected a message_create frame dispatched to the channel's listener")
	}

	scanned, err := messages.ScanGuildMessages(context.Background(), ids.GuildID("g1"), 10)
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, "hello world", scanned[0].Content)
}

func TestHandleMessageCreateDeniesWithoutWritePermission(t *testing.T) {
	s, reg, _, _ := newTestServer()
	messages := collab.NewMockMessageStore()
	s.messages = messages

	connID := ids.NewConnectionID()
	reg.Register(connID, ids.UserID("eve"), 8)
	cc := connContext{ID: connID, UserID: ids.UserID("eve"), IP: "1.1.1.1"}

	s.handleMessageCreate(cc, ingress.MessageCreateCommand{
		GuildID:   ids.GuildID("g1"),
		ChannelID: ids.ChannelID("c1"),
		Content:   "should not persist",
	})

	scanned, err := messages.ScanGuildMessages(context.Background(), ids.GuildID("g1"), 10)
	require.NoError(t, err)
	assert.Empty(t, scanned)
}
