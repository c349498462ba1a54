package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockGuild is the guild payload served by the mock Discord API
type MockGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MockChannel is a guild channel payload served by the mock Discord API
type MockChannel struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
	Name string `json:"name"`
}

// MockPartial is the {id, name} shape of a webhook's source guild or channel
type MockPartial struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// MockWebhook is a webhook payload served by the mock Discord API
type MockWebhook struct {
	ID            string       `json:"id"`
	Type          int          `json:"type"`
	ChannelID     string       `json:"channel_id,omitempty"`
	SourceGuild   *MockPartial `json:"source_guild,omitempty"`
	SourceChannel *MockPartial `json:"source_channel,omitempty"`
}

// MockUser is the /users/@me payload served by the mock Discord API
type MockUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MockFailure forces a route to answer with a fixed status and body
type MockFailure struct {
	Status  int
	Body    string
	Headers map[string]string
}

// MockDiscordServer represents a mock Discord API server for testing.
// It serves one guild's metadata, webhooks and channels under /api/v10.
type MockDiscordServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	botToken string
	guild    MockGuild
	webhooks []MockWebhook
	channels []MockChannel
	users    map[string]MockUser // access token -> user
	failures map[string]MockFailure
	calls    map[string]int
	authSeen []string
}

// NewMockDiscordServer creates a new mock Discord API server that accepts botToken
func NewMockDiscordServer(botToken string) *MockDiscordServer {
	mds := &MockDiscordServer{
		botToken: botToken,
		users:    make(map[string]MockUser),
		failures: make(map[string]MockFailure),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v10/guilds/{guildID}", func(w http.ResponseWriter, r *http.Request) {
		mds.serveGuildResource(w, r, "guild", func() interface{} { return mds.guild })
	})
	mux.HandleFunc("GET /api/v10/guilds/{guildID}/webhooks", func(w http.ResponseWriter, r *http.Request) {
		mds.serveGuildResource(w, r, "webhooks", func() interface{} { return nonNil(mds.webhooks) })
	})
	mux.HandleFunc("GET /api/v10/guilds/{guildID}/channels", func(w http.ResponseWriter, r *http.Request) {
		mds.serveGuildResource(w, r, "channels", func() interface{} { return nonNil(mds.channels) })
	})
	mux.HandleFunc("GET /api/v10/users/@me", mds.serveCurrentUser)

	mds.Server = httptest.NewServer(mux)
	return mds
}

// Close closes the mock server.
func (mds *MockDiscordServer) Close() {
	if mds.Server != nil {
		mds.Server.Close()
	}
}

// BaseURL returns the API base URL to configure a client with
func (mds *MockDiscordServer) BaseURL() string {
	return mds.Server.URL + "/api/v10"
}

// SetGuild sets the guild served for every guild id
func (mds *MockDiscordServer) SetGuild(id, name string) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.guild = MockGuild{ID: id, Name: name}
}

// SetWebhooks replaces the webhook list
func (mds *MockDiscordServer) SetWebhooks(webhooks ...MockWebhook) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.webhooks = webhooks
}

// SetChannels replaces the channel list
func (mds *MockDiscordServer) SetChannels(channels ...MockChannel) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.channels = channels
}

// AddUser registers the user returned for an OAuth2 access token
func (mds *MockDiscordServer) AddUser(accessToken string, user MockUser) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.users[accessToken] = user
}

// FailRoute makes resource ("guild", "webhooks", "channels" or "user") fail
func (mds *MockDiscordServer) FailRoute(resource string, failure MockFailure) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.failures[resource] = failure
}

// ClearFailures removes every forced failure
func (mds *MockDiscordServer) ClearFailures() {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.failures = make(map[string]MockFailure)
}

// Calls returns how many times resource was requested
func (mds *MockDiscordServer) Calls(resource string) int {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	return mds.calls[resource]
}

// AuthorizationHeaders returns every Authorization header received on guild routes
func (mds *MockDiscordServer) AuthorizationHeaders() []string {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	return append([]string(nil), mds.authSeen...)
}

// ResetCallCounts resets the call counters.
func (mds *MockDiscordServer) ResetCallCounts() {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.calls = make(map[string]int)
	mds.authSeen = nil
}

func (mds *MockDiscordServer) serveGuildResource(w http.ResponseWriter, r *http.Request, resource string, payload func() interface{}) {
	mds.mu.Lock()
	defer mds.mu.Unlock()

	mds.calls[resource]++
	mds.authSeen = append(mds.authSeen, r.Header.Get("Authorization"))

	if r.Header.Get("Authorization") != "Bot "+mds.botToken {
		writeMockJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "401: Unauthorized", "code": 0})
		return
	}

	if failure, ok := mds.failures[resource]; ok {
		writeMockFailure(w, failure)
		return
	}

	writeMockJSON(w, http.StatusOK, payload())
}

func (mds *MockDiscordServer) serveCurrentUser(w http.ResponseWriter, r *http.Request) {
	mds.mu.Lock()
	defer mds.mu.Unlock()

	mds.calls["user"]++

	if failure, ok := mds.failures["user"]; ok {
		writeMockFailure(w, failure)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	user, ok := mds.users[token]
	if !ok {
		writeMockJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "401: Unauthorized", "code": 0})
		return
	}

	writeMockJSON(w, http.StatusOK, user)
}

func writeMockFailure(w http.ResponseWriter, failure MockFailure) {
	for key, value := range failure.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(failure.Status)
	_, _ = w.Write([]byte(failure.Body))
}

func writeMockJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		panic(fmt.Sprintf("mock discord: failed to encode payload: %v", err))
	}
}

// nonNil keeps empty lists encoding as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
