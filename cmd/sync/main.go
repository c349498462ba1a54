// Package main runs one follow inventory sync and exits.
// Schedulers call it instead of the HTTP sync route; it exits 1 on failure.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/config"
	"github.com/parsascontentcorner/followmanager/internal/database"
	"github.com/parsascontentcorner/followmanager/internal/discord"
	"github.com/parsascontentcorner/followmanager/internal/ratelimit"
	"github.com/parsascontentcorner/followmanager/internal/service"
	"github.com/parsascontentcorner/followmanager/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	if err := db.RunMigrations("internal/database/migrations"); err != nil {
		log.Error("failed to run migrations", zap.Error(err))
		return 1
	}

	discordClient := discord.NewClient(cfg.Discord, log)
	discordClient.SetRateLimiter(ratelimit.NewRateLimiter(log))

	svc := service.New(discordClient, db, cfg.Discord.GuildID, log)
	result, err := svc.Sync(ctx)
	if err != nil {
		var replaceErr *service.ReplaceError
		if errors.As(err, &replaceErr) {
			log.Error(service.MessageReplaceFailed, zap.Error(replaceErr.Err))
			return 1
		}

		message, status := discord.MapError(err, service.MessageSyncFailed)
		log.Error(message, zap.Int("status", status), zap.Error(err))
		return 1
	}

	log.Info("follow inventory sync complete",
		zap.String("guild_id", result.GuildID),
		zap.Int("row_count", result.RowCount),
		zap.String("refreshed_at", result.RefreshedAt),
	)
	return 0
}
