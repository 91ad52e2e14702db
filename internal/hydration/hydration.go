// Package hydration assembles message responses for the collaborator
// interfaces of spec.md §6.2: merging a batch-fetched message scan with its
// attachments and reactions, preserving the caller's requested ID order,
// and binding uploaded attachments to a message at create time. Grounded
// on original_source/apps/filament-server/src/server/realtime's
// hydration_merge.rs, hydration_order.rs, and message_attachment_bind.rs —
// none of these have a spec.md distillation counterpart by name, so this
// package is a direct Go port of the Rust algorithm in the teacher's idiom
// (plain functions over explicit maps, no hidden state).
package hydration

import (
	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/ids"
)

// Reaction is one emoji/count pair attached to a message.
type Reaction struct {
	Emoji string
	Count int
}

// Attachment is the response shape for one bound attachment.
type Attachment struct {
	AttachmentID ids.AttachmentID
	GuildID      ids.GuildID
	ChannelID    ids.ChannelID
	OwnerID      ids.UserID
	Filename     string
	MimeType     string
	SizeBytes    int64
	SHA256Hex    string
}

// Message is the hydrated response shape returned to callers: the stored
// message record plus its bound attachments and reaction summary.
type Message struct {
	MessageID     string
	GuildID       ids.GuildID
	ChannelID     ids.ChannelID
	AuthorID      ids.UserID
	Content       string
	Attachments   []Attachment
	Reactions     []Reaction
	CreatedAtUnix int64
}

// MergeHydrationMaps attaches each message's attachments and reactions in
// place, defaulting to an empty slice when a message has neither. Mirrors
// hydration_merge.rs's merge_hydration_maps exactly: a pure map-to-map
// join keyed by message ID.
func MergeHydrationMaps(byID map[string]*Message, attachmentsByMessage map[string][]Attachment, reactionsByMessage map[string][]Reaction) {
	for id, msg := range byID {
		msg.Attachments = attachmentsByMessage[id]
		msg.Reactions = reactionsByMessage[id]
	}
}

// CollectHydratedInRequestOrder returns the hydrated messages in the order
// messageIDs were requested, skipping any ID missing from byID — mirrors
// hydration_order.rs's "fail closed to available rows" behavior: a missing
// row is silently dropped rather than surfaced as an error, since a
// message the caller can no longer see (deleted, or a permission
// boundary) should not abort the whole batch.
func CollectHydratedInRequestOrder(byID map[string]*Message, messageIDs []string) []*Message {
	out := make([]*Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		if msg, ok := byID[id]; ok {
			out = append(out, msg)
		}
	}
	return out
}

// AttachmentRecord is the mutable attachment row message_attachment_bind.rs
// operates on: an uploaded attachment not yet bound to a message.
type AttachmentRecord struct {
	AttachmentID ids.AttachmentID
	GuildID      ids.GuildID
	ChannelID    ids.ChannelID
	OwnerID      ids.UserID
	Filename     string
	MimeType     string
	SizeBytes    int64
	SHA256Hex    string
	ObjectKey    string
	MessageID    *string
}

// BindMessageAttachments binds each of attachmentIDs to messageID in
// place, failing closed (InvalidRequest, no partial bind left visible to
// the caller beyond whatever already mutated) if any attachment is
// missing, scoped to a different guild/channel, owned by someone else, or
// already bound to a prior message. Mirrors
// bind_message_attachments_in_memory's constraint checks verbatim.
func BindMessageAttachments(
	attachments map[ids.AttachmentID]*AttachmentRecord,
	attachmentIDs []ids.AttachmentID,
	messageID string,
	guildID ids.GuildID,
	channelID ids.ChannelID,
	ownerID ids.UserID,
) error {
	for _, attachmentID := range attachmentIDs {
		att, ok := attachments[attachmentID]
		if !ok {
			return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("attachment_not_found")
		}
		if att.GuildID != guildID || att.ChannelID != channelID || att.OwnerID != ownerID || att.MessageID != nil {
			return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("attachment_binding_invalid")
		}
	}
	for _, attachmentID := range attachmentIDs {
		id := messageID
		attachments[attachmentID].MessageID = &id
	}
	return nil
}
