package hydration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/ids"
)

func message(id string) *Message {
	return &Message{MessageID: id, GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: "hello"}
}

func TestMergeHydrationMapsAppliesAttachmentsAndReactionsPerMessageID(t *testing.T) {
	byID := map[string]*Message{"m1": message("m1"), "m2": message("m2")}
	attachments := map[string][]Attachment{"m1": {{AttachmentID: "a1"}, {AttachmentID: "a2"}}}
	reactions := map[string][]Reaction{"m2": {{Emoji: "😀", Count: 3}}}

	MergeHydrationMaps(byID, attachments, reactions)

	assert.Len(t, byID["m1"].Attachments, 2)
	assert.Empty(t, byID["m1"].Reactions)
	assert.Empty(t, byID["m2"].Attachments)
	assert.Len(t, byID["m2"].Reactions, 1)
}

func TestCollectHydratedInRequestOrderReturnsRequestedOrder(t *testing.T) {
	byID := map[string]*Message{"m1": message("m1"), "m2": message("m2"), "m3": message("m3")}

	ordered := CollectHydratedInRequestOrder(byID, []string{"m3", "m1"})

	require.Len(t, ordered, 2)
	assert.Equal(t, "m3", ordered[0].MessageID)
	assert.Equal(t, "m1", ordered[1].MessageID)
}

func TestCollectHydratedInRequestOrderSkipsMissingIDs(t *testing.T) {
	byID := map[string]*Message{"m1": message("m1")}

	ordered := CollectHydratedInRequestOrder(byID, []string{"m2", "m1", "m3"})

	require.Len(t, ordered, 1)
	assert.Equal(t, "m1", ordered[0].MessageID)
}

func attachmentRecord(guildID ids.GuildID, channelID ids.ChannelID, ownerID ids.UserID, messageID *string) *AttachmentRecord {
	return &AttachmentRecord{
		GuildID:   guildID,
		ChannelID: channelID,
		OwnerID:   ownerID,
		Filename:  "file.png",
		MimeType:  "image/png",
		MessageID: messageID,
	}
}

func TestBindMessageAttachmentsBindsWhenConstraintsMatch(t *testing.T) {
	attachments := map[ids.AttachmentID]*AttachmentRecord{
		"a1": attachmentRecord("g1", "c1", "u1", nil),
		"a2": attachmentRecord("g1", "c1", "u1", nil),
	}

	err := BindMessageAttachments(attachments, []ids.AttachmentID{"a1", "a2"}, "m1", "g1", "c1", "u1")
	require.NoError(t, err)
	require.NotNil(t, attachments["a1"].MessageID)
	assert.Equal(t, "m1", *attachments["a1"].MessageID)
	assert.Equal(t, "m1", *attachments["a2"].MessageID)
}

func TestBindMessageAttachmentsRejectsMissingAttachment(t *testing.T) {
	attachments := map[ids.AttachmentID]*AttachmentRecord{}

	err := BindMessageAttachments(attachments, []ids.AttachmentID{"missing"}, "m1", "g1", "c1", "u1")
	require.Error(t, err)
	var gwErr *gatewayerr.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gatewayerr.InvalidRequest, gwErr.Kind)
}

func TestBindMessageAttachmentsRejectsWrongOwnerOrAlreadyBound(t *testing.T) {
	bound := "m0"
	attachments := map[ids.AttachmentID]*AttachmentRecord{
		"owned-by-other": attachmentRecord("g1", "c1", "other", nil),
		"already-bound":  attachmentRecord("g1", "c1", "u1", &bound),
	}

	err := BindMessageAttachments(attachments, []ids.AttachmentID{"owned-by-other"}, "m1", "g1", "c1", "u1")
	require.Error(t, err)

	err = BindMessageAttachments(attachments, []ids.AttachmentID{"already-bound"}, "m1", "g1", "c1", "u1")
	require.Error(t, err)
}
