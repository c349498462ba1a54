package testutil

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parsascontentcorner/followmanager/internal/config"
	"github.com/parsascontentcorner/followmanager/internal/models"
)

// Test credentials shared by GenerateTestConfig and the mock Discord server
const (
	TestBotToken     = "test_bot_token"
	TestGuildID      = "g1"
	TestJWTSecret    = "test_jwt_secret_for_follow_manager"
	TestAllowedUser  = "user-allowed"
	TestOrigin       = "https://dash.example.com"
	TestServiceRole  = "service_role"
	TestRefreshStamp = "2024-05-01T12:00:00.000Z"
)

// GenerateTestConfig returns a complete configuration pointing at discordBaseURL
func GenerateTestConfig(discordBaseURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPPort: "8080",
			GRPCPort: "50051",
			Host:     "localhost",
			Env:      "test",
		},
		Discord: config.DiscordConfig{
			BotToken:       TestBotToken,
			GuildID:        TestGuildID,
			APIBaseURL:     discordBaseURL,
			RequestTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "testuser",
			Password:     "testpass",
			Name:         "testdb",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		Security: config.SecurityConfig{
			AllowedUserIDs: []string{TestAllowedUser},
			AllowedOrigins: []string{TestOrigin},
			AuthProvider:   config.AuthProviderJWT,
			JWTSecret:      []byte(TestJWTSecret),
			ServiceRole:    TestServiceRole,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}

// SeedFollowScenario loads the small guild used across tests: one follower
// webhook into #news and one incoming webhook that must be ignored.
func SeedFollowScenario(mds *MockDiscordServer) {
	mds.SetGuild("g1", "Guild One")
	mds.SetChannels(MockChannel{ID: "c1", Type: 5, Name: "news"})
	mds.SetWebhooks(
		MockWebhook{
			ID:            "w1",
			Type:          2,
			ChannelID:     "c1",
			SourceGuild:   &MockPartial{ID: "s1", Name: "Source"},
			SourceChannel: &MockPartial{ID: "sc1", Name: "Announcements"},
		},
		MockWebhook{ID: "w2", Type: 1, ChannelID: "c1"},
	)
}

// GenerateInventoryRow creates a persisted row with every source field set
func GenerateInventoryRow(webhookID, destinationID, destinationName string) models.InventoryRow {
	return models.InventoryRow{
		WebhookID:              webhookID,
		GuildID:                TestGuildID,
		GuildName:              models.NullString("Guild One"),
		DestinationChannelID:   destinationID,
		DestinationChannelName: destinationName,
		SourceGuildID:          models.NullString("src-" + webhookID),
		SourceGuildName:        models.NullString(fmt.Sprintf("Source %s", webhookID)),
		SourceChannelID:        models.NullString("srcch-" + webhookID),
		SourceChannelName:      models.NullString(fmt.Sprintf("channel-%s", webhookID)),
		RefreshedAt:            TestRefreshStamp,
	}
}

// GenerateToken signs an HS256 bearer token for subject with the given role
func GenerateToken(secret, subject, role string) string {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	return signToken(secret, claims)
}

// GenerateTokenWithoutExpiry signs a token that carries no exp claim
func GenerateTokenWithoutExpiry(secret, subject, role string) string {
	claims := jwt.MapClaims{"sub": subject}
	if role != "" {
		claims["role"] = role
	}
	return signToken(secret, claims)
}

func signToken(secret string, claims jwt.MapClaims) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(fmt.Sprintf("failed to sign test token: %v", err))
	}
	return signed
}

// GenerateUserToken signs a token for the allow-listed test user
func GenerateUserToken() string {
	return GenerateToken(TestJWTSecret, TestAllowedUser, "authenticated")
}

// GenerateServiceToken signs a token carrying the service role
func GenerateServiceToken() string {
	return GenerateToken(TestJWTSecret, "", TestServiceRole)
}
