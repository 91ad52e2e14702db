package gatewayws

import (
	"context"
	"time"

	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/hydration"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/ingress"
	"github.com/filament/gateway/internal/search"
	"github.com/filament/gateway/internal/subscription"
)

type messageCreatePayload struct {
	MessageID     string   `json:"message_id"`
	GuildID       string   `json:"guild_id"`
	ChannelID     string   `json:"channel_id"`
	AuthorID      string   `json:"author_id"`
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
	CreatedAtUnix int64    `json:"created_at_unix"`
}

// handleMessageCreate implements the WebSocket path of message_create:
// delegate to CreateMessage and, on success, dispatch the resulting event
// to the channel's listeners. spec.md has no dedicated step list for this
// command (unlike the Subscribe Flow's §4.6); the ordering CreateMessage
// implements is synthesized directly from the internal/collab collaborator
// interfaces and the manifest's message_create event type — see DESIGN.md.
func (s *Server) handleMessageCreate(cc connContext, cmd ingress.MessageCreateCommand) {
	_, built, err := s.CreateMessage(context.Background(), cc.UserID, cmd.GuildID, cmd.ChannelID, cmd.Content, cmd.AttachmentIDs)
	if err != nil {
		return
	}
	s.DispatchMessageCreate(cmd.GuildID, cmd.ChannelID, built)
}

// DispatchMessageCreate fans built out to channelID's listeners. Exported
// so internal/httpapi's mutating message endpoint can reuse the exact
// dispatch path the WebSocket command handler uses above, once it has
// built its own envelope via CreateMessage.
func (s *Server) DispatchMessageCreate(guildID ids.GuildID, channelID ids.ChannelID, built *envelope.Built) {
	key := subscription.NewKey(guildID, channelID)
	_, slow := s.dispatcher.DispatchChannel(key, built, s.cfg.MaxGatewayEventBytes)
	s.reg.SignalClose(slow)

	if s.collabMx != nil {
		s.collabMx.IncEventsEmitted("gateway", "message_create")
	}
}

// CreateMessage is the one builder internal/httpapi's mutating message
// endpoint and this package's WebSocket command handler both call, so the
// HTTP response body and the dispatched gateway event can never drift
// apart (SPEC_FULL.md's "message-create response shape" supplemented
// feature). It checks write permission, persists, binds attachments, and
// enqueues the message for search indexing, returning the hydrated
// message and its built envelope; it does NOT dispatch the envelope —
// that stays the caller's job, since the WS path dispatches to a channel
// listener set the HTTP path has no connection context for.
func (s *Server) CreateMessage(ctx context.Context, authorID ids.UserID, guildID ids.GuildID, channelID ids.ChannelID, content string, attachmentIDRaw []string) (hydration.Message, *envelope.Built, error) {
	if s.perms != nil {
		canWrite, err := s.perms.UserCanWriteChannel(ctx, authorID, guildID, channelID)
		if err != nil || !canWrite {
			if s.collabMx != nil {
				s.collabMx.IncEventsDropped("gateway", "message_create", "forbidden_channel")
			}
			return hydration.Message{}, nil, gatewayerr.New(gatewayerr.Forbidden)
		}
	}

	now := time.Now()
	messageID := ids.NewConnectionID() // opaque ID generator doubles as a generic ID source

	msg := hydration.Message{
		MessageID:     string(messageID),
		GuildID:       guildID,
		ChannelID:     channelID,
		AuthorID:      authorID,
		Content:       content,
		CreatedAtUnix: now.Unix(),
	}

	if s.messages != nil {
		if err := s.messages.InsertMessage(ctx, msg); err != nil {
			if s.collabMx != nil {
				s.collabMx.IncEventsDropped("gateway", "message_create", "persist_failed")
			}
			return hydration.Message{}, nil, gatewayerr.Wrap(err)
		}
	}

	attachmentIDs := toAttachmentIDs(attachmentIDRaw)
	if s.attachments != nil && len(attachmentIDs) > 0 {
		_ = s.attachments.BindAttachments(ctx, attachmentIDs, msg.MessageID, guildID, channelID, authorID)
	}

	s.enqueueSearchUpsert(msg)

	built, err := envelope.Build("message_create", messageCreatePayload{
		MessageID:     msg.MessageID,
		GuildID:       string(guildID),
		ChannelID:     string(channelID),
		AuthorID:      string(authorID),
		Content:       content,
		AttachmentIDs: attachmentIDRaw,
		CreatedAtUnix: msg.CreatedAtUnix,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.SerializeErrors.Inc()
		}
		return msg, nil, gatewayerr.Wrap(err)
	}

	return msg, built, nil
}

func toAttachmentIDs(raw []string) []ids.AttachmentID {
	out := make([]ids.AttachmentID, 0, len(raw))
	for _, r := range raw {
		out = append(out, ids.AttachmentID(r))
	}
	return out
}

func (s *Server) enqueueSearchUpsert(msg hydration.Message) {
	if s.searchWriter == nil {
		return
	}
	s.searchWriter.Enqueue(&search.Command{
		Kind: search.CommandUpsert,
		Upsert: &search.Document{
			MessageID:     msg.MessageID,
			GuildID:       string(msg.GuildID),
			ChannelID:     string(msg.ChannelID),
			Content:       msg.Content,
			SchemaVersion: 1,
		},
	})
}
