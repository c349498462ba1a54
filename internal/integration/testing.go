// Package integration runs the follow manager end to end: a real PostgreSQL
// container, the mock Discord API and the full HTTP router.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/auth"
	"github.com/parsascontentcorner/followmanager/internal/database"
	"github.com/parsascontentcorner/followmanager/internal/discord"
	httpserver "github.com/parsascontentcorner/followmanager/internal/http"
	"github.com/parsascontentcorner/followmanager/internal/ratelimit"
	"github.com/parsascontentcorner/followmanager/internal/service"
	"github.com/parsascontentcorner/followmanager/internal/testutil"
)

// stack is a running follow manager wired against test doubles
type stack struct {
	server  *httptest.Server
	discord *testutil.MockDiscordServer
	db      *database.DB
}

// setupStack starts the database container, the mock Discord API and the
// HTTP server. The returned cleanup stops all three.
func setupStack(ctx context.Context) (*stack, func(), error) {
	db, dbCleanup, err := testutil.SetupTestDB(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up database: %w", err)
	}

	mockDiscord := testutil.NewMockDiscordServer(testutil.TestBotToken)

	logger := zap.NewNop()
	cfg := testutil.GenerateTestConfig(mockDiscord.BaseURL())

	discordClient := discord.NewClient(cfg.Discord, logger)
	discordClient.SetRateLimiter(ratelimit.NewRateLimiter(logger))

	jwtVerifier := auth.NewJWTVerifier(cfg.Security.JWTSecret)
	gate := auth.NewGate(jwtVerifier, cfg.Security.AllowedUserIDs, cfg.Security.AllowedOrigins, logger)
	guard := auth.NewServiceGuard(jwtVerifier, cfg.Security.ServiceRole, logger)

	svc := service.New(discordClient, db, cfg.Discord.GuildID, logger)
	handlers := httpserver.NewHandlers(svc, gate, guard, db, logger)
	server := httptest.NewServer(httpserver.NewRouter(handlers, logger))

	cleanup := func() {
		server.Close()
		mockDiscord.Close()
		dbCleanup()
	}

	return &stack{server: server, discord: mockDiscord, db: db}, cleanup, nil
}

// post sends an authenticated POST to path
func (s *stack) post(path, token string) (*http.Response, error) {
	return s.send(http.MethodPost, path, token)
}

// get sends an authenticated GET to path
func (s *stack) get(path, token string) (*http.Response, error) {
	return s.send(http.MethodGet, path, token)
}

func (s *stack) send(method, path, token string) (*http.Response, error) {
	req, err := http.NewRequest(method, s.server.URL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Origin", testutil.TestOrigin)

	return s.server.Client().Do(req)
}
