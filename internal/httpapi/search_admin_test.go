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

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/hydration"
	"github.com/filament/gateway/internal/ids"
)

func TestHandleSearchRebuildSucceedsForAuthorizedCaller(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90, SearchReconcileMaxDocs: 1000})

	h.auth.Grant("token-owner", ids.UserID("owner"))
	h.perms.GrantRole(ids.GuildID("g1"), ids.UserID("owner"), collab.ManageWorkspaceRoles)

	require.NoError(t, h.messages.InsertMessage(context.Background(), hydration.Message{
		MessageID: "m1",
		GuildID:   ids.GuildID("g1"),
		ChannelID: ids.ChannelID("c1"),
		AuthorID:  ids.UserID("owner"),
		Content:   "searchable content",
	}))

	body, err := json.Marshal(adminRequest{GuildID: "g1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/search/rebuild", bytes.NewReader(body))
	req.Header.Set("Authorization", "token-owner")
	rec := httptest.NewRecorder()

	h.server.handleSearchRebuild(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["rebuilt_docs"])
}

func TestHandleSearchRebuildDeniedWithoutManageWorkspaceRoles(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90})
	h.auth.Grant("token-member", ids.UserID("member"))

	body, err := json.Marshal(adminRequest{GuildID: "g1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/search/rebuild", bytes.NewReader(body))
	req.Header.Set("Authorization", "token-member")
	rec := httptest.NewRecorder()

	h.server.handleSearchRebuild(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	entries := h.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "search_admin_denied", entries[0].Action)
}

func TestHandleSearchRebuildRejectsUnauthenticated(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90})

	body, err := json.Marshal(adminRequest{GuildID: "g1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/search/rebuild", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.server.handleSearchRebuild(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleSearchReconcileSucceedsForAuthorizedCaller(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90, SearchReconcileMaxDocs: 1000})

	h.auth.Grant("token-owner", ids.UserID("owner"))
	h.perms.GrantRole(ids.GuildID("g1"), ids.UserID("owner"), collab.ManageWorkspaceRoles)

	require.NoError(t, h.messages.InsertMessage(context.Background(), hydration.Message{
		MessageID: "m1",
		GuildID:   ids.GuildID("g1"),
		ChannelID: ids.ChannelID("c1"),
		AuthorID:  ids.UserID("owner"),
		Content:   "fresh content never indexed",
	}))

	body, err := json.Marshal(adminRequest{GuildID: "g1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/search/reconcile", bytes.NewReader(body))
	req.Header.Set("Authorization", "token-owner")
	rec := httptest.NewRecorder()

	h.server.handleSearchReconcile(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["upserted"])
	assert.EqualValues(t, 0, resp["deleted"])
}

func TestHandleSearchReconcileDeniedWithoutManageWorkspaceRoles(t *testing.T) {
	h := newTestHarness(t, Config{MaxConnections: 100, CPURejectThreshold: 90})
	h.auth.Grant("token-member", ids.UserID("member"))

	body, err := json.Marshal(adminRequest{GuildID: "g1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/search/reconcile", bytes.NewReader(body))
	req.Header.Set("Authorization", "token-member")
	rec := httptest.NewRecorder()

	h.server.handleSearchReconcile(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
