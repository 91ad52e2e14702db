package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/subscription"
)

func TestHandleCreateMessageSucceedsAndDispatches(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90})

	h.auth.Grant("token-alice", ids.UserID("alice"))
	h.perms.AllowWrite(ids.UserID("alice"), ids.ChannelID("c1"))

	connID := ids.NewConnectionID()
	send, _ := h.reg.Register(connID, ids.UserID("alice"), 8)
	h.subs.Insert(subscription.NewKey(ids.GuildID("g1"), ids.ChannelID("c1")), connID, send)

	body, err := json.Marshal(createMessageRequest{
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "hello from http",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	req.Header.Set("Authorization", "token-alice")
	rec := httptest.NewRecorder()

	h.server.handleCreateMessage(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "g1", resp.GuildID)
	assert.Equal(t, "c1", resp.ChannelID)
	assert.Equal(t, "alice", resp.AuthorID)
	assert.Equal(t, "hello from http", resp.Content)
	assert.NotEmpty(t, resp.MessageID)

	select {
	case payload := <-send:
		assert.Contains(t, payload, "message_create")
		assert.Contains(t, payload, "hello from http")
		assert.Contains(t, payload, resp.MessageID)
	default:
		t.Fatal("expected the HTTP-created message to dispatch to the channel's subscriber")
	}

	scanned, err := h.messages.ScanGuildMessages(context.Background(), ids.GuildID("g1"), 10)
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, "hello from http", scanned[0].Content)
}

func TestHandleCreateMessageRejectsUnauthenticated(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90})

	body, err := json.Marshal(createMessageRequest{GuildID: "g1", ChannelID: "c1", Content: "hi"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.server.handleCreateMessage(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreateMessageRejectsWithoutWritePermission(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90})
	h.auth.Grant("token-eve", ids.UserID("eve"))

	body, err := json.Marshal(createMessageRequest{GuildID: "g1", ChannelID: "c1", Content: "hi"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	req.Header.Set("Authorization", "token-eve")
	rec := httptest.NewRecorder()

	h.server.handleCreateMessage(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleCreateMessageRejectsNonPost(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90})

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()

	h.server.handleCreateMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

