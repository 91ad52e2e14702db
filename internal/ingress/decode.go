// Package ingress implements the ingress frame decoder, command decoder,
// and per-connection rate limiter of spec.md §4.5. The frame-level decode
// is transport-agnostic (internal/gatewayws maps gobwas/ws frame types onto
// FrameKind); the command-level decode builds on internal/envelope.
package ingress

// FrameKind classifies one inbound WebSocket frame, independent of the
// wire library in use.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FrameClose
	FramePing
	FramePong
)

// ResultKind tags the outcome of DecodeFrame.
type ResultKind int

const (
	ResultPayload ResultKind = iota
	ResultContinue
	ResultDisconnect
)

// FrameResult is the {Payload(bytes), Continue, Disconnect(reason)} sum
// type of spec.md §4.5's decode_ingress.
type FrameResult struct {
	Kind    ResultKind
	Payload []byte
	Reason  string
}

// DecodeFrame classifies one inbound frame per spec.md §4.5's table.
func DecodeFrame(kind FrameKind, data []byte, maxEventBytes int) FrameResult {
	switch kind {
	case FrameText, FrameBinary:
		if len(data) > maxEventBytes {
			return FrameResult{Kind: ResultDisconnect, Reason: "event_too_large"}
		}
		return FrameResult{Kind: ResultPayload, Payload: data}
	case FrameClose:
		return FrameResult{Kind: ResultDisconnect, Reason: "client_close"}
	case FramePing, FramePong:
		return FrameResult{Kind: ResultContinue}
	default:
		return FrameResult{Kind: ResultDisconnect, Reason: "client_close"}
	}
}
