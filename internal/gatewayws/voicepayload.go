package gatewayws

import "github.com/filament/gateway/internal/voice"

// voiceSyncParticipant mirrors the per-participant shape the voice package's
// planner uses for join/update events, so voice_participant_sync's entries
// carry the same fields a client already knows how to render.
type voiceSyncParticipant struct {
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

type voiceSyncPayload struct {
	Participants []voiceSyncParticipant `json:"participants"`
}

func toVoiceSyncPayload(participants []voice.Participant) voiceSyncPayload {
	out := make([]voiceSyncParticipant, 0, len(participants))
	for _, p := range participants {
		out = append(out, voiceSyncParticipant{
			UserID:               string(p.UserID),
			Identity:             p.Identity,
			IsMuted:              p.IsMuted,
			IsDeafened:           p.IsDeafened,
			IsSpeaking:           p.IsSpeaking,
			IsVideoEnabled:       p.IsVideoEnabled,
			IsScreenShareEnabled: p.IsScreenShareEnabled,
			UpdatedAtUnix:        p.UpdatedAtUnix,
			ExpiresAtUnix:        p.ExpiresAtUnix,
		})
	}
	return voiceSyncPayload{Participants: out}
}
