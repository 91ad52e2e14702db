// Package collab defines the narrow interfaces the gateway core consumes
// for everything spec.md §6.2 places out of scope (persistence, auth,
// permissions, audit, metrics counters) plus in-memory test doubles for
// each. The interfaces are intentionally thin — one method per core
// operation, no ORM-shaped CRUD surface — so a real SQL-backed
// implementation can sit behind them without the core ever seeing a raw
// driver error (gatewayerr.Wrap is the only thing that crosses the
// boundary back in). Grounded on the teacher's sibling repo
// 2389-research-coven-gateway's internal/store package: Store is a small
// interface, MockStore is an in-memory double built from plain maps behind
// a sync.RWMutex that copies in/out to prevent callers from mutating
// shared state, and a compile-time `var _ Interface = (*Mock)(nil)`
// assertion pins every double to its interface.
package collab

import (
	"context"

	"github.com/filament/gateway/internal/hydration"
	"github.com/filament/gateway/internal/ids"
)

// AuthResult is what a successful Auth.Authenticate call yields.
type AuthResult struct {
	UserID ids.UserID
}

// Auth authenticates an inbound connection request (an HTTP upgrade
// request's headers/cookies/query string, opaque to the core). Failure is
// always gatewayerr with Kind Unauthorized.
type Auth interface {
	Authenticate(ctx context.Context, request AuthRequest) (AuthResult, error)
}

// AuthRequest is the opaque bundle of request data an Auth implementation
// inspects. The core never reads its fields itself.
type AuthRequest struct {
	BearerToken string
	ClientIP    string
}

// IPBanSurface names which surface is enforcing a guild IP ban, carried
// through to audit logging and metrics labels.
type IPBanSurface string

const (
	SurfaceGateway IPBanSurface = "gateway"
	SurfaceHTTP    IPBanSurface = "http"
)

// Permissions gates write access to a channel and enforces per-guild IP
// bans. Both decisions fail closed: any ambiguity (e.g. an I/O error
// reaching the implementation) must return Forbidden, never silently
// allow.
type Permissions interface {
	UserCanWriteChannel(ctx context.Context, userID ids.UserID, guildID ids.GuildID, channelID ids.ChannelID) (bool, error)
	EnforceGuildIPBan(ctx context.Context, guildID ids.GuildID, userID ids.UserID, clientIP string, surface IPBanSurface) error

	// UserHasWorkspaceRole reports whether userID holds role in guildID,
	// gating spec.md §6.3's admin-only HTTP surface (search rebuild and
	// reconcile require ManageWorkspaceRoles).
	UserHasWorkspaceRole(ctx context.Context, userID ids.UserID, guildID ids.GuildID, role string) (bool, error)
}

// ManageWorkspaceRoles is the role spec.md §6.3 names as the gate on the
// search rebuild/reconcile admin endpoints.
const ManageWorkspaceRoles = "ManageWorkspaceRoles"

// MessageStore is the narrow persistence surface for messages: insert,
// fetch-by-ID-list (optionally scoped to one channel), and a bounded
// per-guild scan (for search reconciliation's source-of-truth read).
type MessageStore interface {
	InsertMessage(ctx context.Context, msg hydration.Message) error
	FetchMessagesByID(ctx context.Context, messageIDs []string, channelID *ids.ChannelID) (map[string]*hydration.Message, error)
	ScanGuildMessages(ctx context.Context, guildID ids.GuildID, maxDocs int) ([]hydration.Message, error)
}

// AttachmentStore binds uploaded attachments to a message and fetches
// attachments for a batch of message IDs (the hydration join's right-hand
// side).
type AttachmentStore interface {
	BindAttachments(ctx context.Context, attachmentIDs []ids.AttachmentID, messageID string, guildID ids.GuildID, channelID ids.ChannelID, ownerID ids.UserID) error
	FetchAttachmentsForMessages(ctx context.Context, messageIDs []string) (map[string][]hydration.Attachment, error)
}

// AuditLog appends one immutable audit entry. Access control over who may
// read the log back lives in the HTTP layer (ManageWorkspaceRoles gating,
// per spec.md §6.3) — this interface is append-only because the core never
// reads its own audit trail.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// AuditEntry is one audit log row.
type AuditEntry struct {
	ActorUserID ids.UserID
	GuildID     ids.GuildID
	Action      string
	Detail      string
	AtUnix      int64
}

// Metrics is the counters-only surface of spec.md §6.2, kept distinct from
// internal/gatewaymetrics (which also owns gauges/histograms the core
// mutates directly) because these five counters are specifically ones a
// collaborator-side implementation might want to fan out to a second sink
// (a SQL-backed audit count, say) in addition to Prometheus.
type Metrics interface {
	IncAuthFailures(reason string)
	IncRateLimitHits(surface, reason string)
	IncWSDisconnects(reason string)
	IncEventsEmitted(scope, eventType string)
	IncEventsDropped(scope, eventType, reason string)
}

