package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/ids"
)

// createMessageRequest is the HTTP body for the mutating message_create
// action, the same fields ingress.MessageCreateCommand carries for the
// WebSocket path.
type createMessageRequest struct {
	GuildID       string   `json:"guild_id"`
	ChannelID     string   `json:"channel_id"`
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// createMessageResponse mirrors gatewayws's message_create envelope
// payload field-for-field, so a caller diffing the HTTP response against
// the gateway event a subscribed listener receives for the same action
// sees the same shape.
type createMessageResponse struct {
	MessageID     string   `json:"message_id"`
	GuildID       string   `json:"guild_id"`
	ChannelID     string   `json:"channel_id"`
	AuthorID      string   `json:"author_id"`
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
	CreatedAtUnix int64    `json:"created_at_unix"`
}

// handleCreateMessage is the HTTP mutating twin of gatewayws's
// message_create command: authenticate, decode, call the shared
// gatewayws.Server.CreateMessage builder, dispatch the resulting event to
// the channel the same way the WebSocket path does, and respond with the
// stored message. Sharing CreateMessage means the HTTP response body and
// the fanned-out gateway event can never disagree (SPEC_FULL.md §4's
// "message-create response shape" supplemented feature).
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, gatewayerr.New(gatewayerr.InvalidRequest))
		return
	}

	authRes, err := s.auth.Authenticate(r.Context(), collab.AuthRequest{
		BearerToken: r.Header.Get("Authorization"),
		ClientIP:    clientIP(r),
	})
	if err != nil {
		writeError(w, gatewayerr.New(gatewayerr.Unauthorized))
		return
	}

	var req createMessageRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.InvalidRequest).WithReason("malformed_body"))
		return
	}

	msg, built, err := s.gateway.CreateMessage(r.Context(), authRes.UserID, ids.GuildID(req.GuildID), ids.ChannelID(req.ChannelID), req.Content, req.AttachmentIDs)
	if err != nil {
		writeError(w, gatewayerr.Wrap(err))
		return
	}

	s.gateway.DispatchMessageCreate(ids.GuildID(req.GuildID), ids.ChannelID(req.ChannelID), built)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createMessageResponse{
		MessageID:     msg.MessageID,
		GuildID:       string(msg.GuildID),
		ChannelID:     string(msg.ChannelID),
		AuthorID:      string(msg.AuthorID),
		Content:       msg.Content,
		AttachmentIDs: req.AttachmentIDs,
		CreatedAtUnix: msg.CreatedAtUnix,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// writeError maps a gatewayerr.Error to spec.md §7's HTTP status mapping.
func writeError(w http.ResponseWriter, err error) {
	ge := gatewayerr.Wrap(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ge.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":  ge.Kind.String(),
		"reason": ge.Reason,
	})
}
