package ingress

import (
	"encoding/json"
	"fmt"

	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/ids"
)

// CommandType identifies an ingress command's shape.
type CommandType string

const (
	CommandSubscribe     CommandType = "subscribe"
	CommandMessageCreate CommandType = "message_create"
)

// SubscribeCommand is the {guild_id, channel_id} ingress command.
type SubscribeCommand struct {
	GuildID   ids.GuildID   `json:"guild_id"`
	ChannelID ids.ChannelID `json:"channel_id"`
}

// MessageCreateCommand is the {guild_id, channel_id, content,
// attachment_ids?} ingress command.
type MessageCreateCommand struct {
	GuildID       ids.GuildID   `json:"guild_id"`
	ChannelID     ids.ChannelID `json:"channel_id"`
	Content       string        `json:"content"`
	AttachmentIDs []string      `json:"attachment_ids,omitempty"`
}

// Command is the decoded, typed ingress command.
type Command struct {
	Type          CommandType
	Subscribe     *SubscribeCommand
	MessageCreate *MessageCreateCommand
}

// ErrUnknownEventType is returned when the envelope's event type is not one
// of the recognized ingress commands; the caller counts and drops it.
type ErrUnknownEventType struct{ EventType string }

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("ingress: unknown event type %q", e.EventType)
}

// ErrMalformedPayload wraps a parse failure; the caller records a
// scope/reason metric and disconnects the connection for that frame.
type ErrMalformedPayload struct{ Cause error }

func (e *ErrMalformedPayload) Error() string { return fmt.Sprintf("ingress: malformed payload: %v", e.Cause) }
func (e *ErrMalformedPayload) Unwrap() error  { return e.Cause }

// DecodeCommand parses a raw ingress frame payload into a typed Command.
func DecodeCommand(raw []byte) (*Command, error) {
	ev, err := envelope.DecodeIngressEnvelope(raw)
	if err != nil {
		return nil, &ErrMalformedPayload{Cause: err}
	}

	switch CommandType(ev.T) {
	case CommandSubscribe:
		var sub SubscribeCommand
		if err := json.Unmarshal(ev.D, &sub); err != nil {
			return nil, &ErrMalformedPayload{Cause: err}
		}
		return &Command{Type: CommandSubscribe, Subscribe: &sub}, nil
	case CommandMessageCreate:
		var mc MessageCreateCommand
		if err := json.Unmarshal(ev.D, &mc); err != nil {
			return nil, &ErrMalformedPayload{Cause: err}
		}
		return &Command{Type: CommandMessageCreate, MessageCreate: &mc}, nil
	default:
		return nil, &ErrUnknownEventType{EventType: ev.T}
	}
}
