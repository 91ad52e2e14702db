package collab

import (
	"context"
	"sync"

	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/hydration"
	"github.com/filament/gateway/internal/ids"
)

// MockAuth is an in-memory Auth double: a fixed table of bearer token to
// user ID, for tests that don't need real token verification.
type MockAuth struct {
	mu     sync.RWMutex
	tokens map[string]ids.UserID
}

// NewMockAuth builds an empty MockAuth.
func NewMockAuth() *MockAuth {
	return &MockAuth{tokens: make(map[string]ids.UserID)}
}

// Grant registers token as authenticating userID.
func (m *MockAuth) Grant(token string, userID ids.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
}

// Authenticate implements Auth.
func (m *MockAuth) Authenticate(ctx context.Context, request AuthRequest) (AuthResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.tokens[request.BearerToken]
	if !ok {
		return AuthResult{}, gatewayerr.New(gatewayerr.Unauthorized)
	}
	return AuthResult{UserID: userID}, nil
}

var _ Auth = (*MockAuth)(nil)

// MockPermissions is an in-memory Permissions double. Writable channels
// and banned (guild, user/ip) pairs are both opt-in allow/deny-lists,
// matching the fail-closed default: an unlisted channel is not writable,
// an unlisted guild has no ip bans.
type MockPermissions struct {
	mu          sync.RWMutex
	writable    map[ids.ChannelID]map[ids.UserID]struct{}
	bannedUsers map[ids.GuildID]map[ids.UserID]struct{}
	bannedIPs   map[ids.GuildID]map[string]struct{}
	roles       map[ids.GuildID]map[ids.UserID]map[string]struct{}
}

// NewMockPermissions builds an empty MockPermissions (nothing writable,
// nothing banned, no roles granted).
func NewMockPermissions() *MockPermissions {
	return &MockPermissions{
		writable:    make(map[ids.ChannelID]map[ids.UserID]struct{}),
		bannedUsers: make(map[ids.GuildID]map[ids.UserID]struct{}),
		bannedIPs:   make(map[ids.GuildID]map[string]struct{}),
		roles:       make(map[ids.GuildID]map[ids.UserID]map[string]struct{}),
	}
}

// GrantRole grants userID role within guildID, for tests that exercise the
// ManageWorkspaceRoles-gated admin surface.
func (m *MockPermissions) GrantRole(guildID ids.GuildID, userID ids.UserID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[guildID] == nil {
		m.roles[guildID] = make(map[ids.UserID]map[string]struct{})
	}
	if m.roles[guildID][userID] == nil {
		m.roles[guildID][userID] = make(map[string]struct{})
	}
	m.roles[guildID][userID][role] = struct{}{}
}

// AllowWrite grants userID write access to channelID.
func (m *MockPermissions) AllowWrite(userID ids.UserID, channelID ids.ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writable[channelID] == nil {
		m.writable[channelID] = make(map[ids.UserID]struct{})
	}
	m.writable[channelID][userID] = struct{}{}
}

// BanUser bans userID from guildID.
func (m *MockPermissions) BanUser(guildID ids.GuildID, userID ids.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bannedUsers[guildID] == nil {
		m.bannedUsers[guildID] = make(map[ids.UserID]struct{})
	}
	m.bannedUsers[guildID][userID] = struct{}{}
}

// BanIP bans clientIP from guildID.
func (m *MockPermissions) BanIP(guildID ids.GuildID, clientIP string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bannedIPs[guildID] == nil {
		m.bannedIPs[guildID] = make(map[string]struct{})
	}
	m.bannedIPs[guildID][clientIP] = struct{}{}
}

// UserCanWriteChannel implements Permissions.
func (m *MockPermissions) UserCanWriteChannel(ctx context.Context, userID ids.UserID, guildID ids.GuildID, channelID ids.ChannelID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.writable[channelID][userID]
	return ok, nil
}

// EnforceGuildIPBan implements Permissions, failing closed with Forbidden
// on either a user or an IP ban match.
func (m *MockPermissions) EnforceGuildIPBan(ctx context.Context, guildID ids.GuildID, userID ids.UserID, clientIP string, surface IPBanSurface) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, banned := m.bannedUsers[guildID][userID]; banned {
		return gatewayerr.New(gatewayerr.Forbidden).WithReason(gatewayerr.ReasonDirectoryJoinUserBan)
	}
	if _, banned := m.bannedIPs[guildID][clientIP]; banned {
		return gatewayerr.New(gatewayerr.Forbidden).WithReason(gatewayerr.ReasonDirectoryJoinIPBan)
	}
	return nil
}

// UserHasWorkspaceRole implements Permissions, failing closed: an
// unlisted (guild, user) pair holds no roles.
func (m *MockPermissions) UserHasWorkspaceRole(ctx context.Context, userID ids.UserID, guildID ids.GuildID, role string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roles[guildID][userID][role]
	return ok, nil
}

var _ Permissions = (*MockPermissions)(nil)

// MockMessageStore is an in-memory MessageStore double, keyed by message
// ID with a secondary per-guild index for the bounded scan.
type MockMessageStore struct {
	mu          sync.RWMutex
	messages    map[string]*hydration.Message
	byGuildOrder map[ids.GuildID][]string
}

// NewMockMessageStore builds an empty MockMessageStore.
func NewMockMessageStore() *MockMessageStore {
	return &MockMessageStore{
		messages:     make(map[string]*hydration.Message),
		byGuildOrder: make(map[ids.GuildID][]string),
	}
}

// InsertMessage implements MessageStore. Stores a copy, per the teacher's
// "copy in to avoid external modification" convention.
func (m *MockMessageStore) InsertMessage(ctx context.Context, msg hydration.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := msg
	m.messages[copied.MessageID] = &copied
	m.byGuildOrder[copied.GuildID] = append(m.byGuildOrder[copied.GuildID], copied.MessageID)
	return nil
}

// FetchMessagesByID implements MessageStore, optionally scoping results to
// one channel (messages outside it are simply omitted from the result,
// matching a caller that should not learn they exist).
func (m *MockMessageStore) FetchMessagesByID(ctx context.Context, messageIDs []string, channelID *ids.ChannelID) (map[string]*hydration.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*hydration.Message, len(messageIDs))
	for _, id := range messageIDs {
		msg, ok := m.messages[id]
		if !ok {
			continue
		}
		if channelID != nil && msg.ChannelID != *channelID {
			continue
		}
		copied := *msg
		out[id] = &copied
	}
	return out, nil
}

// ScanGuildMessages implements MessageStore, returning up to maxDocs
// messages for guildID in insertion order.
func (m *MockMessageStore) ScanGuildMessages(ctx context.Context, guildID ids.GuildID, maxDocs int) ([]hydration.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messageIDs := m.byGuildOrder[guildID]
	if maxDocs > 0 && len(messageIDs) > maxDocs {
		messageIDs = messageIDs[:maxDocs]
	}
	out := make([]hydration.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		if msg, ok := m.messages[id]; ok {
			out = append(out, *msg)
		}
	}
	return out, nil
}

var _ MessageStore = (*MockMessageStore)(nil)

// MockAttachmentStore is an in-memory AttachmentStore double sharing the
// same bind semantics as internal/hydration.BindMessageAttachments.
type MockAttachmentStore struct {
	mu          sync.Mutex
	attachments map[ids.AttachmentID]*hydration.AttachmentRecord
}

// NewMockAttachmentStore builds an empty MockAttachmentStore.
func NewMockAttachmentStore() *MockAttachmentStore {
	return &MockAttachmentStore{attachments: make(map[ids.AttachmentID]*hydration.AttachmentRecord)}
}

// Put registers an uploaded, unbound attachment record for test setup.
func (m *MockAttachmentStore) Put(rec *hydration.AttachmentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *rec
	m.attachments[rec.AttachmentID] = &r
}

// BindAttachments implements AttachmentStore by delegating to
// hydration.BindMessageAttachments against its own record map.
func (m *MockAttachmentStore) BindAttachments(ctx context.Context, attachmentIDs []ids.AttachmentID, messageID string, guildID ids.GuildID, channelID ids.ChannelID, ownerID ids.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return hydration.BindMessageAttachments(m.attachments, attachmentIDs, messageID, guildID, channelID, ownerID)
}

// FetchAttachmentsForMessages implements AttachmentStore.
func (m *MockAttachmentStore) FetchAttachmentsForMessages(ctx context.Context, messageIDs []string) (map[string][]hydration.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	out := make(map[string][]hydration.Attachment)
	for _, rec := range m.attachments {
		if rec.MessageID == nil {
			continue
		}
		if _, ok := wanted[*rec.MessageID]; !ok {
			continue
		}
		out[*rec.MessageID] = append(out[*rec.MessageID], hydration.Attachment{
			AttachmentID: rec.AttachmentID,
			GuildID:      rec.GuildID,
			ChannelID:    rec.ChannelID,
			OwnerID:      rec.OwnerID,
			Filename:     rec.Filename,
			MimeType:     rec.MimeType,
			SizeBytes:    rec.SizeBytes,
			SHA256Hex:    rec.SHA256Hex,
		})
	}
	return out, nil
}

var _ AttachmentStore = (*MockAttachmentStore)(nil)

// MockAuditLog is an in-memory AuditLog double; Entries returns a copy of
// everything appended so far, in append order.
type MockAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMockAuditLog builds an empty MockAuditLog.
func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

// Append implements AuditLog.
func (m *MockAuditLog) Append(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a copy of every appended entry, in append order.
func (m *MockAuditLog) Entries() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

var _ AuditLog = (*MockAuditLog)(nil)

// MockMetrics is an in-memory Metrics double: plain counters keyed by
// label tuple, for assertions in tests that don't want a Prometheus
// registry.
type MockMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMockMetrics builds an empty MockMetrics.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{counts: make(map[string]int)}
}

func (m *MockMetrics) bump(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

// Count returns how many times key was incremented.
func (m *MockMetrics) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *MockMetrics) IncAuthFailures(reason string) { m.bump("auth_failures:" + reason) }
func (m *MockMetrics) IncRateLimitHits(surface, reason string) {
	m.bump("rate_limit_hits:" + surface + ":" + reason)
}
func (m *MockMetrics) IncWSDisconnects(reason string) { m.bump("ws_disconnects:" + reason) }
func (m *MockMetrics) IncEventsEmitted(scope, eventType string) {
	m.bump("gateway_events_emitted:" + scope + ":" + eventType)
}
func (m *MockMetrics) IncEventsDropped(scope, eventType, reason string) {
	m.bump("gateway_events_dropped:" + scope + ":" + eventType + ":" + reason)
}

var _ Metrics = (*MockMetrics)(nil)
