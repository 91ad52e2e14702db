package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/search"
)

// adminRequest is the shared body shape of both admin endpoints: only the
// acting user's guild. Both handlers read the source-of-truth documents
// from the message store, not from the request body.
type adminRequest struct {
	GuildID string `json:"guild_id"`
}

// authorizeManageWorkspaceRoles authenticates the caller and checks
// collab.ManageWorkspaceRoles in guildID, per spec.md §6.3's gating of the
// search rebuild/reconcile endpoints. Returns the denied gatewayerr.Error,
// or nil if admitted.
func (s *Server) authorizeManageWorkspaceRoles(r *http.Request, guildID ids.GuildID) error {
	authRes, err := s.auth.Authenticate(r.Context(), collab.AuthRequest{
		BearerToken: r.Header.Get("Authorization"),
		ClientIP:    clientIP(r),
	})
	if err != nil {
		return gatewayerr.New(gatewayerr.Unauthorized)
	}

	allowed, err := s.perms.UserHasWorkspaceRole(r.Context(), authRes.UserID, guildID, collab.ManageWorkspaceRoles)
	if err != nil || !allowed {
		if s.audit != nil {
			_ = s.audit.Append(r.Context(), collab.AuditEntry{
				ActorUserID: authRes.UserID,
				GuildID:     guildID,
				Action:      "search_admin_denied",
				Detail:      gatewayerr.ReasonManageRolesRequired,
				AtUnix:      time.Now().Unix(),
			})
		}
		return gatewayerr.New(gatewayerr.Forbidden).WithReason(gatewayerr.ReasonManageRolesRequired)
	}
	return nil
}

// handleSearchRebuild implements spec.md §4.9's Rebuild: scan the guild's
// messages from the source-of-truth store and enqueue a CommandRebuild,
// blocking until the writer has applied it (WaitForApply), so the caller
// gets a read-your-writes response.
func (s *Server) handleSearchRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, gatewayerr.New(gatewayerr.InvalidRequest))
		return
	}

	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.InvalidRequest).WithReason("malformed_body"))
		return
	}
	guildID := ids.GuildID(req.GuildID)

	if err := s.authorizeManageWorkspaceRoles(r, guildID); err != nil {
		writeError(w, err)
		return
	}

	docs, err := s.scanGuildDocuments(r, guildID)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := &search.Command{Kind: search.CommandRebuild, RebuildDocs: docs, WaitForApply: true, Ack: make(chan error, 1)}
	s.writer.Enqueue(cmd)
	if err := <-cmd.Ack; err != nil {
		writeError(w, gatewayerr.Wrap(err))
		return
	}
	s.relayAdminCommand(r, cmd)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"rebuilt_docs": len(docs)})
}

// handleSearchReconcile implements spec.md §4.9's reconciliation: diff the
// guild's source-of-truth messages against what's currently indexed via
// search.ComputeReconciliation, then enqueue the resulting CommandReconcile.
func (s *Server) handleSearchReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, gatewayerr.New(gatewayerr.InvalidRequest))
		return
	}

	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.InvalidRequest).WithReason("malformed_body"))
		return
	}
	guildID := ids.GuildID(req.GuildID)

	if err := s.authorizeManageWorkspaceRoles(r, guildID); err != nil {
		writeError(w, err)
		return
	}

	docs, err := s.scanGuildDocuments(r, guildID)
	if err != nil {
		writeError(w, err)
		return
	}

	indexedIDs, err := s.index.GuildDocumentIDs(string(guildID), s.reconcileMaxDocs())
	if err != nil {
		writeError(w, gatewayerr.Wrap(err))
		return
	}

	plan := search.ComputeReconciliation(docs, indexedIDs)

	cmd := &search.Command{
		Kind:               search.CommandReconcile,
		ReconcileUpserts:   plan.Upserts,
		ReconcileDeleteIDs: plan.DeleteIDs,
		WaitForApply:       true,
		Ack:                make(chan error, 1),
	}
	s.writer.Enqueue(cmd)
	if err := <-cmd.Ack; err != nil {
		writeError(w, gatewayerr.Wrap(err))
		return
	}
	s.relayAdminCommand(r, cmd)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"upserted": len(plan.Upserts),
		"deleted":  len(plan.DeleteIDs),
	})
}

// relayAdminCommand publishes cmd onto CommandsTopic so every other
// instance's search.Consumer applies the same rebuild/reconcile, keeping
// each instance's local index in sync in a multi-instance deployment.
// Best-effort: only this instance's caller is waiting on the HTTP
// response, so a relay failure is logged and otherwise ignored, matching
// the eventbus proxy's fire-and-forget pattern.
func (s *Server) relayAdminCommand(r *http.Request, cmd *search.Command) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(r.Context(), cmd); err != nil {
		s.logger.Warn().Err(err).Int("kind", int(cmd.Kind)).Msg("failed to relay search admin command")
	}
}

func (s *Server) reconcileMaxDocs() int {
	if s.cfg.SearchReconcileMaxDocs > 0 {
		return s.cfg.SearchReconcileMaxDocs
	}
	return 50000
}

// scanGuildDocuments reads guildID's messages from the source-of-truth
// store and converts them to search.Document, the shape both admin
// endpoints enqueue.
func (s *Server) scanGuildDocuments(r *http.Request, guildID ids.GuildID) ([]search.Document, error) {
	msgs, err := s.messages.ScanGuildMessages(r.Context(), guildID, s.reconcileMaxDocs())
	if err != nil {
		return nil, gatewayerr.Wrap(err)
	}
	docs := make([]search.Document, 0, len(msgs))
	for _, m := range msgs {
		docs = append(docs, search.Document{
			MessageID:     m.MessageID,
			GuildID:       string(m.GuildID),
			ChannelID:     string(m.ChannelID),
			Content:       m.Content,
			SchemaVersion: 1,
		})
	}
	return docs, nil
}
