// Package ids defines the identifier types shared by every gateway
// component, and the opaque 128-bit connection ID generator (spec.md §3).
package ids

import "github.com/google/uuid"

type (
	ConnectionID string
	UserID       string
	GuildID      string
	ChannelID    string
	MessageID    string
	AttachmentID string
)

// NewConnectionID allocates a fresh opaque 128-bit connection identifier.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
