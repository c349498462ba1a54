// Package main is the entry point for the follow manager server.
// It serves the live inventory, the snapshot sync and the persisted read over HTTP and gRPC.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/auth"
	"github.com/parsascontentcorner/followmanager/internal/config"
	"github.com/parsascontentcorner/followmanager/internal/database"
	"github.com/parsascontentcorner/followmanager/internal/discord"
	grpcserver "github.com/parsascontentcorner/followmanager/internal/grpc"
	httpserver "github.com/parsascontentcorner/followmanager/internal/http"
	"github.com/parsascontentcorner/followmanager/internal/ratelimit"
	"github.com/parsascontentcorner/followmanager/internal/service"
	"github.com/parsascontentcorner/followmanager/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		// Sync errors on stdout/stderr are expected for non-syncable descriptors
		_ = log.Sync()
	}()

	log.Info("starting follow manager",
		zap.String("environment", cfg.Server.Env),
		zap.String("http_port", cfg.Server.HTTPPort),
		zap.String("grpc_port", cfg.Server.GRPCPort),
		zap.String("guild_id", cfg.Discord.GuildID),
		zap.String("auth_provider", cfg.Security.AuthProvider),
	)

	// Initialize database connection
	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := runMigrations(db, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize Discord client with rate limiting
	discordClient := discord.NewClient(cfg.Discord, log)
	discordClient.SetRateLimiter(ratelimit.NewRateLimiter(log))

	// Initialize auth components
	jwtVerifier := auth.NewJWTVerifier(cfg.Security.JWTSecret)
	gate := auth.NewGate(
		newVerifier(cfg.Security, jwtVerifier, discordClient, log),
		cfg.Security.AllowedUserIDs,
		cfg.Security.AllowedOrigins,
		log,
	)
	serviceGuard := auth.NewServiceGuard(jwtVerifier, cfg.Security.ServiceRole, log)

	svc := service.New(discordClient, db, cfg.Discord.GuildID, log)

	// Initialize gRPC server
	grpcServer, err := grpcserver.NewServer(
		grpcserver.NewFollowManagerServer(svc, gate, serviceGuard, log),
		cfg.Server.GRPCPort,
		log,
	)
	if err != nil {
		log.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Initialize HTTP server
	handlers := httpserver.NewHandlers(svc, gate, serviceGuard, db, log)
	httpServer := httpserver.NewServer(handlers, cfg.Server.HTTPPort, log)

	// Start servers in goroutines
	grpcErrChan := make(chan error, 1)
	httpErrChan := make(chan error, 1)

	go func() {
		if err := grpcServer.Serve(); err != nil {
			grpcErrChan <- err
		}
	}()

	go func() {
		if err := httpServer.Serve(); err != nil {
			httpErrChan <- err
		}
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-grpcErrChan:
		log.Fatal("gRPC server error", zap.Error(err))
	case err := <-httpErrChan:
		log.Fatal("HTTP server error", zap.Error(err))
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	grpcServer.GracefulStop()

	log.Info("servers shut down successfully")
}

// newVerifier picks the identity provider for dashboard callers
func newVerifier(cfg config.SecurityConfig, jwtVerifier *auth.JWTVerifier, users auth.CurrentUserFetcher, log *zap.Logger) auth.Verifier {
	if cfg.AuthProvider == config.AuthProviderDiscord {
		return auth.NewDiscordVerifier(users, log)
	}
	return jwtVerifier
}

// runMigrations runs database migrations using golang-migrate library
func runMigrations(db *database.DB, log *zap.Logger) error {
	log.Info("running database migrations")

	// Path to migrations directory (relative to binary execution location)
	migrationsPath := "internal/database/migrations"

	if err := db.RunMigrations(migrationsPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully")
	return nil
}
