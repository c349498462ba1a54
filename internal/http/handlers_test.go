package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/auth"
	"github.com/parsascontentcorner/followmanager/internal/database"
	"github.com/parsascontentcorner/followmanager/internal/discord"
	"github.com/parsascontentcorner/followmanager/internal/models"
	"github.com/parsascontentcorner/followmanager/internal/service"
	"github.com/parsascontentcorner/followmanager/internal/testutil"
)

// memStore keeps the snapshot in memory
type memStore struct {
	mu         sync.Mutex
	rows       []models.InventoryRow
	runs       []models.SyncRun
	replaceErr error
	listErr    error
}

func (s *memStore) ReplaceInventory(_ context.Context, _ string, rows []models.InventoryRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return 0, s.replaceErr
	}
	s.rows = append([]models.InventoryRow(nil), rows...)
	return len(rows), nil
}

func (s *memStore) ListInventoryRows(_ context.Context) ([]models.InventoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.listErr
}

func (s *memStore) RecordSyncRun(_ context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memStore) LatestSyncRun(_ context.Context, _ string) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil, database.ErrNoSyncRuns
	}
	run := s.runs[len(s.runs)-1]
	return &run, nil
}

type stubHealth struct {
	err error
}

func (s *stubHealth) Health(_ context.Context) error {
	return s.err
}

type testEnv struct {
	handler http.Handler
	discord *testutil.MockDiscordServer
	store   *memStore
	health  *stubHealth
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mockServer := testutil.NewMockDiscordServer(testutil.TestBotToken)
	t.Cleanup(mockServer.Close)
	testutil.SeedFollowScenario(mockServer)

	logger, _ := zap.NewDevelopment()
	cfg := testutil.GenerateTestConfig(mockServer.BaseURL())

	jwtVerifier := auth.NewJWTVerifier(cfg.Security.JWTSecret)
	gate := auth.NewGate(jwtVerifier, cfg.Security.AllowedUserIDs, cfg.Security.AllowedOrigins, logger)
	guard := auth.NewServiceGuard(jwtVerifier, cfg.Security.ServiceRole, logger)

	store := &memStore{}
	health := &stubHealth{}
	svc := service.New(discord.NewClient(cfg.Discord, logger), store, cfg.Discord.GuildID, logger)
	handlers := NewHandlers(svc, gate, guard, health, logger)

	return &testEnv{
		handler: NewRouter(handlers, logger),
		discord: mockServer,
		store:   store,
		health:  health,
	}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withOrigin(origin string) requestOption {
	return func(r *http.Request) { r.Header.Set("Origin", origin) }
}

func (env *testEnv) do(method, target string, opts ...requestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func decodeInventory(t *testing.T, rec *httptest.ResponseRecorder) models.FollowInventory {
	t.Helper()
	var inv models.FollowInventory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	return inv
}

// ============================================================================
// Live fetch
// ============================================================================

func TestLiveHandler_Success(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteLive, withOrigin(testutil.TestOrigin), withBearer(testutil.GenerateUserToken()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, testutil.TestOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

	inv := decodeInventory(t, rec)
	assert.Equal(t, "g1", inv.GuildID)
	assert.Equal(t, "Guild One", inv.GuildName)
	require.Len(t, inv.DestinationChannels, 1)
	group := inv.DestinationChannels[0]
	assert.Equal(t, "c1", group.DestinationChannelID)
	assert.Equal(t, "news", group.DestinationChannelName)
	assert.Equal(t, []models.FollowLink{{
		WebhookID:         "w1",
		SourceGuildID:     "s1",
		SourceGuildName:   "Source",
		SourceChannelID:   "sc1",
		SourceChannelName: "Announcements",
	}}, group.Follows)
}

func TestLiveHandler_WithoutOriginHeader(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteLive, withBearer(testutil.GenerateUserToken()))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLiveHandler_Preflight(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodOptions, RouteLive, withOrigin(testutil.TestOrigin))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, testutil.TestOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, 0, env.discord.Calls("webhooks"))
}

func TestLiveHandler_GateRejections(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		opts     []requestOption
		status   int
		expected string
	}{
		{
			name:     "wrong method",
			method:   http.MethodGet,
			opts:     []requestOption{withBearer(testutil.GenerateUserToken())},
			status:   http.StatusMethodNotAllowed,
			expected: "Method not allowed.",
		},
		{
			name:     "disallowed origin",
			method:   http.MethodPost,
			opts:     []requestOption{withOrigin("https://evil.example"), withBearer(testutil.GenerateUserToken())},
			status:   http.StatusForbidden,
			expected: "Origin is not allowed.",
		},
		{
			name:     "missing bearer",
			method:   http.MethodPost,
			opts:     []requestOption{withOrigin(testutil.TestOrigin)},
			status:   http.StatusUnauthorized,
			expected: "Missing bearer token.",
		},
		{
			name:     "invalid token",
			method:   http.MethodPost,
			opts:     []requestOption{withBearer("not-a-token")},
			status:   http.StatusUnauthorized,
			expected: "Unauthorized.",
		},
		{
			name:     "caller not allowed",
			method:   http.MethodPost,
			opts:     []requestOption{withBearer(testutil.GenerateToken(testutil.TestJWTSecret, "stranger", "authenticated"))},
			status:   http.StatusForbidden,
			expected: "Forbidden.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)

			rec := env.do(tt.method, RouteLive, tt.opts...)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.expected, decodeError(t, rec))
			assert.Equal(t, 0, env.discord.Calls("webhooks"), "gate must reject before any upstream call")
		})
	}
}

func TestLiveHandler_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		failure  testutil.MockFailure
		status   int
		expected string
	}{
		{
			name:     "forbidden",
			failure:  testutil.MockFailure{Status: http.StatusForbidden, Body: `{"message":"Missing Access","code":50001}`},
			status:   http.StatusBadRequest,
			expected: discord.MessageAccessFailed,
		},
		{
			name:     "rate limited",
			failure:  testutil.MockFailure{Status: http.StatusTooManyRequests, Body: `{"retry_after":1.5}`, Headers: map[string]string{"Retry-After": "2"}},
			status:   http.StatusTooManyRequests,
			expected: discord.MessageRateLimited,
		},
		{
			name:     "server error",
			failure:  testutil.MockFailure{Status: http.StatusInternalServerError, Body: "secret internals"},
			status:   http.StatusBadGateway,
			expected: "Discord API error (500).",
		},
		{
			name:     "malformed body",
			failure:  testutil.MockFailure{Status: http.StatusOK, Body: "{not json"},
			status:   http.StatusBadGateway,
			expected: service.MessageLiveFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			env.discord.FailRoute("webhooks", tt.failure)

			rec := env.do(http.MethodPost, RouteLive, withBearer(testutil.GenerateUserToken()))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.expected, decodeError(t, rec))
			assert.NotContains(t, rec.Body.String(), "secret internals")
		})
	}
}

func TestLiveHandler_SourceGuildView(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteLive+"?view=source-guild", withBearer(testutil.GenerateUserToken()))

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.SourceGuildInventory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.SourceGuilds, 1)
	assert.Equal(t, "s1", view.SourceGuilds[0].SourceGuildID)
	assert.Equal(t, "Source", view.SourceGuilds[0].SourceGuildName)
	require.Len(t, view.SourceGuilds[0].Follows, 1)
	assert.Equal(t, "c1", view.SourceGuilds[0].Follows[0].DestinationChannelID)
}

func TestLiveHandler_UnknownView(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteLive+"?view=by-color", withBearer(testutil.GenerateUserToken()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown view.", decodeError(t, rec))
	for _, resource := range []string{"guild", "webhooks", "channels"} {
		assert.Equal(t, 0, env.discord.Calls(resource), "unknown view must be rejected before reading %s", resource)
	}
}

func TestLiveHandler_UnknownViewStillGated(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteLive+"?view=by-color")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing bearer token.", decodeError(t, rec))
}

func TestLiveHandler_SearchFilter(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteLive+"?q=ANNOUNCE", withBearer(testutil.GenerateUserToken()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeInventory(t, rec).DestinationChannels, 1)

	rec = env.do(http.MethodPost, RouteLive+"?q=nothing-matches", withBearer(testutil.GenerateUserToken()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"destinationChannels":[]`)
}

// ============================================================================
// Sync
// ============================================================================

func TestSyncHandler_Success(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteSync, withBearer(testutil.GenerateServiceToken()))

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "g1", result.GuildID)
	assert.Equal(t, 1, result.RowCount)
	assert.NotEmpty(t, result.RefreshedAt)

	require.Len(t, env.store.rows, 1)
	assert.Equal(t, "w1", env.store.rows[0].WebhookID)
	assert.Equal(t, result.RefreshedAt, env.store.rows[0].RefreshedAt)
}

func TestSyncHandler_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		opts     []requestOption
		status   int
		expected string
	}{
		{name: "wrong method", method: http.MethodGet, opts: []requestOption{withBearer(testutil.GenerateServiceToken())}, status: http.StatusMethodNotAllowed, expected: "Method not allowed."},
		{name: "no credential", method: http.MethodPost, status: http.StatusForbidden, expected: "Forbidden."},
		{name: "dashboard user", method: http.MethodPost, opts: []requestOption{withBearer(testutil.GenerateUserToken())}, status: http.StatusForbidden, expected: "Forbidden."},
		{name: "service token without expiry", method: http.MethodPost, opts: []requestOption{withBearer(testutil.GenerateTokenWithoutExpiry(testutil.TestJWTSecret, "", testutil.TestServiceRole))}, status: http.StatusForbidden, expected: "Forbidden."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)

			rec := env.do(tt.method, RouteSync, tt.opts...)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.expected, decodeError(t, rec))
			assert.Empty(t, env.store.rows)
			assert.Equal(t, 0, env.discord.Calls("guild"))
		})
	}
}

func TestSyncHandler_UpstreamError(t *testing.T) {
	env := setupTestEnv(t)
	env.discord.FailRoute("channels", testutil.MockFailure{Status: http.StatusNotFound, Body: `{"message":"Unknown Guild"}`})

	rec := env.do(http.MethodPost, RouteSync, withBearer(testutil.GenerateServiceToken()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, discord.MessageAccessFailed, decodeError(t, rec))
	assert.Empty(t, env.store.rows)
	require.Len(t, env.store.runs, 1)
	assert.Equal(t, models.SyncStatusFailed, env.store.runs[0].Status)
}

func TestSyncHandler_ReplaceError(t *testing.T) {
	env := setupTestEnv(t)
	env.store.replaceErr = errors.New("deadlock detected")

	rec := env.do(http.MethodPost, RouteSync, withBearer(testutil.GenerateServiceToken()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to replace follow inventory snapshot.","details":"deadlock detected"}`, rec.Body.String())
}

// ============================================================================
// Persisted read
// ============================================================================

func TestSnapshotHandler_MatchesLiveAfterSync(t *testing.T) {
	env := setupTestEnv(t)

	live := env.do(http.MethodPost, RouteLive, withBearer(testutil.GenerateUserToken()))
	require.Equal(t, http.StatusOK, live.Code)
	syncRec := env.do(http.MethodPost, RouteSync, withBearer(testutil.GenerateServiceToken()))
	require.Equal(t, http.StatusOK, syncRec.Code)

	rec := env.do(http.MethodGet, RouteSnapshot, withOrigin(testutil.TestOrigin), withBearer(testutil.GenerateUserToken()))

	require.Equal(t, http.StatusOK, rec.Code)
	liveInv := decodeInventory(t, live)
	snapshotInv := decodeInventory(t, rec)
	assert.Equal(t, liveInv.GuildID, snapshotInv.GuildID)
	assert.Equal(t, liveInv.GuildName, snapshotInv.GuildName)
	assert.Equal(t, liveInv.DestinationChannels, snapshotInv.DestinationChannels)
}

func TestSnapshotHandler_Empty(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodGet, RouteSnapshot, withBearer(testutil.GenerateUserToken()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"guildId":"Unknown","fetchedAt":"","destinationChannels":[]}`, rec.Body.String())
}

func TestSnapshotHandler_Rejections(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodPost, RouteSnapshot, withBearer(testutil.GenerateUserToken()))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(http.MethodGet, RouteSnapshot)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing bearer token.", decodeError(t, rec))

	rec = env.do(http.MethodGet, RouteSnapshot, withBearer(testutil.GenerateServiceToken()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSnapshotHandler_StoreError(t *testing.T) {
	env := setupTestEnv(t)
	env.store.listErr = errors.New("relation does not exist")

	rec := env.do(http.MethodGet, RouteSnapshot, withBearer(testutil.GenerateUserToken()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to load follow inventory snapshot.", decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "relation")
}

// ============================================================================
// Health and middleware
// ============================================================================

func TestHealthHandler(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodGet, RouteHealth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	env.health.err = errors.New("connection refused")
	rec = env.do(http.MethodGet, RouteHealth)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandler_Detail(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodGet, RouteHealth+"?detail=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","lastSyncedAt":null}`, rec.Body.String())

	syncRec := env.do(http.MethodPost, RouteSync, withBearer(testutil.GenerateServiceToken()))
	require.Equal(t, http.StatusOK, syncRec.Code)
	var result models.SyncResult
	require.NoError(t, json.Unmarshal(syncRec.Body.Bytes(), &result))

	rec = env.do(http.MethodGet, RouteHealth+"?detail=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","lastSyncedAt":"`+result.RefreshedAt+`","lastSyncStatus":"succeeded"}`, rec.Body.String())
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodGet, RouteHealth)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, RouteHealth, strings.NewReader(""))
	req.Header.Set(RequestIDHeader, "trace-123")
	echoed := httptest.NewRecorder()
	env.handler.ServeHTTP(echoed, req)
	assert.Equal(t, "trace-123", echoed.Header().Get(RequestIDHeader))
}
