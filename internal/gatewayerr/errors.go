// Package gatewayerr defines the surface-agnostic error taxonomy shared by
// every component of the gateway core. HTTP and WebSocket transports map a
// Kind to their own status code or close reason; the core itself never
// returns raw database/I/O error shapes.
package gatewayerr

import "fmt"

// Kind is a surface-agnostic error classification.
type Kind int

const (
	Internal Kind = iota
	InvalidRequest
	CaptchaFailed
	Unauthorized
	Forbidden
	NotFound
	RateLimited
	PayloadTooLarge
	QuotaExceeded
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case CaptchaFailed:
		return "captcha_failed"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case RateLimited:
		return "rate_limited"
	case PayloadTooLarge:
		return "payload_too_large"
	case QuotaExceeded:
		return "quota_exceeded"
	default:
		return "internal"
	}
}

// Sub-kinds of Forbidden, carried in Error.Reason for callers that need to
// distinguish them (audit logging, client-facing error strings).
const (
	ReasonAuditAccessDenied      = "audit_access_denied"
	ReasonDirectoryJoinUserBan   = "directory_join_user_banned"
	ReasonDirectoryJoinIPBan     = "directory_join_ip_banned"
	ReasonGuildCreationLimit     = "guild_creation_limit_reached"
	ReasonManageRolesRequired    = "manage_workspace_roles_required"
)

// Error is the structured error value every fallible core operation returns.
type Error struct {
	Kind   Kind
	Reason string // optional sub-kind, empty for most Kinds
	Err    error  // wrapped cause, never surfaced to the caller's message
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare Error of the given kind.
func New(kind Kind) *Error { return &Error{Kind: kind} }

// Wrap collapses any error into Internal, keeping it as the cause for
// structured logging. Use at the boundary between the core and external
// collaborators (database, I/O) per the propagation policy: the core never
// surfaces raw collaborator error shapes.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*Error); ok {
		return ge
	}
	return &Error{Kind: Internal, Err: err}
}

// WithReason returns a copy of the error carrying a sub-kind reason.
func (e *Error) WithReason(reason string) *Error {
	return &Error{Kind: e.Kind, Reason: reason, Err: e.Err}
}

// HTTPStatus maps a Kind to the fixed status code of spec.md §7.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidRequest:
		return 400
	case Unauthorized:
		return 401
	case Forbidden, CaptchaFailed:
		return 403
	case NotFound:
		return 404
	case PayloadTooLarge:
		return 413
	case RateLimited:
		return 429
	case QuotaExceeded:
		return 409
	default:
		return 500
	}
}

// CloseReason tokens used to close a gateway WebSocket connection (spec.md §7).
const (
	CloseEventTooLarge      = "event_too_large"
	CloseIPBanned           = "ip_banned"
	CloseForbiddenChannel   = "forbidden_channel"
	CloseOutboundQueueFull  = "outbound_queue_full"
	CloseIngressRateLimited = "ingress_rate_limited"
	CloseClientClose        = "client_close"
	CloseMessageRejected    = "message_rejected"
)
