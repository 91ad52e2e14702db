package voice

import (
	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/subscription"
)

// PlannedEvent pairs a channel-scope event with the SubscriptionKey it must
// be dispatched to.
type PlannedEvent struct {
	ChannelKey subscription.Key
	Built      *envelope.Built
}

func streamName(k StreamKind) string {
	switch k {
	case StreamMicrophone:
		return "microphone"
	case StreamCamera:
		return "camera"
	case StreamScreenShare:
		return "screen_share"
	default:
		return "unknown"
	}
}

type streamPayload struct {
	UserID string `json:"user_id"`
	Stream string `json:"stream"`
}

type participantPayload struct {
	UserID               string `json:"user_id"`
	Identity             string `json:"identity"`
	IsMuted              bool   `json:"is_muted"`
	IsDeafened           bool   `json:"is_deafened"`
	IsSpeaking           bool   `json:"is_speaking"`
	IsVideoEnabled       bool   `json:"is_video_enabled"`
	IsScreenShareEnabled bool   `json:"is_screen_share_enabled"`
	UpdatedAtUnix        int64  `json:"updated_at_unix"`
	ExpiresAtUnix        int64  `json:"expires_at_unix"`
}

func toParticipantPayload(p Participant) participantPayload {
	return participantPayload{
		UserID:               string(p.UserID),
		Identity:             p.Identity,
		IsMuted:              p.IsMuted,
		IsDeafened:           p.IsDeafened,
		IsSpeaking:           p.IsSpeaking,
		IsVideoEnabled:       p.IsVideoEnabled,
		IsScreenShareEnabled: p.IsScreenShareEnabled,
		UpdatedAtUnix:        p.UpdatedAtUnix,
		ExpiresAtUnix:        p.ExpiresAtUnix,
	}
}

func appendBuilt(out []PlannedEvent, key subscription.Key, eventType string, payload any) []PlannedEvent {
	built, err := envelope.Build(eventType, payload)
	if err != nil {
		// Fail closed: a payload that cannot marshal produces no event
		// rather than a malformed frame on the wire.
		return out
	}
	return append(out, PlannedEvent{ChannelKey: key, Built: built})
}

// PlanTransition converts a Transition into the ordered event list spec.md
// §4.8 describes: per removed channel, unpublish-each then leave; then
// join-or-update in the current channel; then unpublish-each, then
// publish-each for the current channel's delta.
func PlanTransition(currentKey subscription.Key, t Transition) []PlannedEvent {
	var out []PlannedEvent

	for _, removed := range t.Removed {
		if removed.Participant.UserID == "" {
			// Malformed old-key entry: fail closed, no event.
			continue
		}
		for stream := range removed.Participant.PublishedStreams {
			out = appendBuilt(out, removed.ChannelKey, "voice_stream_unpublish", streamPayload{
				UserID: string(removed.Participant.UserID),
				Stream: streamName(stream),
			})
		}
		out = appendBuilt(out, removed.ChannelKey, "voice_participant_leave", map[string]string{
			"user_id": string(removed.Participant.UserID),
		})
	}

	switch {
	case t.Joined != nil:
		out = appendBuilt(out, currentKey, "voice_participant_join", toParticipantPayload(*t.Joined))
	case t.Updated != nil:
		out = appendBuilt(out, currentKey, "voice_participant_update", toParticipantPayload(*t.Updated))
	}

	for _, stream := range t.Unpublished {
		userID := ""
		if t.Updated != nil {
			userID = string(t.Updated.UserID)
		} else if t.Joined != nil {
			userID = string(t.Joined.UserID)
		}
		out = appendBuilt(out, currentKey, "voice_stream_unpublish", streamPayload{UserID: userID, Stream: streamName(stream)})
	}
	for _, stream := range t.NewlyPublished {
		userID := ""
		if t.Updated != nil {
			userID = string(t.Updated.UserID)
		} else if t.Joined != nil {
			userID = string(t.Joined.UserID)
		}
		out = appendBuilt(out, currentKey, "voice_stream_publish", streamPayload{UserID: userID, Stream: streamName(stream)})
	}

	return out
}

// PlanExpiry converts a TTL-sweep or disconnect-sweep Removed list into the
// unpublish*/leave pairs spec.md §4.8 assigns to each expired or departed
// participant.
func PlanExpiry(removed []Removed) []PlannedEvent {
	var out []PlannedEvent
	for _, r := range removed {
		for stream := range r.Participant.PublishedStreams {
			out = appendBuilt(out, r.ChannelKey, "voice_stream_unpublish", streamPayload{
				UserID: string(r.Participant.UserID),
				Stream: streamName(stream),
			})
		}
		out = appendBuilt(out, r.ChannelKey, "voice_participant_leave", map[string]string{
			"user_id": string(r.Participant.UserID),
		})
	}
	return out
}
