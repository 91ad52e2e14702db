// Package envelope implements the versioned {v,t,d} gateway event framing
// of spec.md §3/§4.4, modeled on the teacher's messaging.MessageEnvelope
// (internal/single/messaging/message.go) but carrying the chat/voice
// workspace's {v,t,d} contract instead of a sequenced price-tick wrapper.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// protocolVersion is the only accepted envelope version.
const protocolVersion = 1

// GatewayEvent is the wire envelope. Encoded to a pre-serialized string at
// construction so fan-out never re-serializes per listener.
type GatewayEvent struct {
	V int             `json:"v"`
	T string          `json:"t"`
	D json.RawMessage `json:"d"`
}

// Built is a constructed event ready for fan-out: the event type (for
// metric labeling) plus its pre-serialized payload string.
type Built struct {
	EventType     string
	PayloadString string
}

// Build serializes payload into a versioned envelope for eventType.
// eventType must be admitted by manifest; callers that build events for
// scopes they don't control (e.g. collaborator-supplied payloads) should
// check manifest.Admits first since Build does not reject on its behalf —
// it is a pure serialization step, matching spec.md §4.4's definition of
// build_event as construction, not validation.
func Build(eventType string, payload any) (*Built, error) {
	d, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload for %q: %w", eventType, err)
	}
	ev := GatewayEvent{V: protocolVersion, T: eventType, D: d}
	s, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal envelope for %q: %w", eventType, err)
	}
	return &Built{EventType: eventType, PayloadString: string(s)}, nil
}

// DecodeIngressEnvelope decodes an inbound frame into a GatewayEvent,
// rejecting unknown envelope fields and any version other than 1. Byte
// length limits are enforced by the caller (internal/ingress) before this
// is reached.
func DecodeIngressEnvelope(raw []byte) (*GatewayEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var ev GatewayEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	if ev.V != protocolVersion {
		return nil, fmt.Errorf("envelope: unsupported version %d", ev.V)
	}
	return &ev, nil
}
