// Package config provides application configuration management using environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultDiscordAPIBaseURL is used when FOLLOW_MANAGER_DISCORD_API_BASE_URL is unset
const DefaultDiscordAPIBaseURL = "https://discord.com/api/v10"

// Identity providers accepted by FOLLOW_MANAGER_AUTH_PROVIDER
const (
	AuthProviderJWT     = "jwt"
	AuthProviderDiscord = "discord"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Discord  DiscordConfig
	Database DatabaseConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort string
	GRPCPort string
	Host     string
	Env      string
}

// DiscordConfig holds the bot credential and the guild whose follows are inventoried
type DiscordConfig struct {
	BotToken       string
	GuildID        string
	APIBaseURL     string
	RequestTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// SecurityConfig holds caller authentication and origin settings
type SecurityConfig struct {
	AllowedUserIDs []string
	AllowedOrigins []string
	AuthProvider   string
	JWTSecret      []byte
	ServiceRole    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists
func Load() (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50051"),
		Host:     getEnv("SERVER_HOST", "localhost"),
		Env:      getEnv("ENVIRONMENT", "development"),
	}

	timeoutSeconds, err := strconv.Atoi(getEnv("FOLLOW_MANAGER_DISCORD_TIMEOUT_SECONDS", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid FOLLOW_MANAGER_DISCORD_TIMEOUT_SECONDS: %w", err)
	}

	cfg.Discord = DiscordConfig{
		BotToken:       getEnv("FOLLOW_MANAGER_DISCORD_BOT_TOKEN", ""),
		GuildID:        getEnv("FOLLOW_MANAGER_DISCORD_GUILD_ID", ""),
		APIBaseURL:     getEnv("FOLLOW_MANAGER_DISCORD_API_BASE_URL", DefaultDiscordAPIBaseURL),
		RequestTimeout: time.Duration(timeoutSeconds) * time.Second,
	}

	maxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "10"))
	maxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "2"))

	cfg.Database = DatabaseConfig{
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "followmanager"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "followmanager_db"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}

	cfg.Security = SecurityConfig{
		AllowedUserIDs: ParseCSV(os.Getenv("FOLLOW_MANAGER_ALLOWED_USER_IDS")),
		AllowedOrigins: ParseCSV(os.Getenv("FOLLOW_MANAGER_ALLOWED_ORIGINS")),
		AuthProvider:   strings.ToLower(getEnv("FOLLOW_MANAGER_AUTH_PROVIDER", AuthProviderJWT)),
		JWTSecret:      []byte(getEnv("FOLLOW_MANAGER_JWT_SECRET", "")),
		ServiceRole:    getEnv("FOLLOW_MANAGER_SERVICE_ROLE", "service_role"),
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate Discord Config
	if c.Discord.BotToken == "" {
		return fmt.Errorf("FOLLOW_MANAGER_DISCORD_BOT_TOKEN is required")
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("FOLLOW_MANAGER_DISCORD_GUILD_ID is required")
	}
	if c.Discord.RequestTimeout <= 0 {
		return fmt.Errorf("FOLLOW_MANAGER_DISCORD_TIMEOUT_SECONDS must be positive")
	}

	// Validate Security Config
	if len(c.Security.AllowedUserIDs) == 0 {
		return fmt.Errorf("FOLLOW_MANAGER_ALLOWED_USER_IDS is required")
	}
	switch c.Security.AuthProvider {
	case AuthProviderJWT, AuthProviderDiscord:
	default:
		return fmt.Errorf("FOLLOW_MANAGER_AUTH_PROVIDER must be one of: jwt, discord")
	}
	if len(c.Security.JWTSecret) == 0 {
		return fmt.Errorf("FOLLOW_MANAGER_JWT_SECRET is required")
	}
	if c.Security.ServiceRole == "" {
		return fmt.Errorf("FOLLOW_MANAGER_SERVICE_ROLE must not be empty")
	}

	// Validate Database Config
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	// Validate Logging Config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// ParseCSV splits a comma-separated list, trimming entries and dropping empty ones
func ParseCSV(value string) []string {
	if value == "" {
		return nil
	}

	var entries []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

// getEnv retrieves an environment variable with a fallback default value.
// Values are trimmed; a blank value counts as unset.
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}
