package database

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/config"
)

const (
	testImage    = "postgres:15-alpine"
	testDatabase = "followmanager"
	testUser     = "followmanager"
	testPassword = "followmanager"
)

// MigrationsDir is the absolute path of the migrations shipped with this
// package, so tests can migrate from any working directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "migrations")
}

// TestContainer is a disposable PostgreSQL instance for tests
type TestContainer struct {
	container *postgres.PostgresContainer
	Config    *config.DatabaseConfig
}

// StartTestContainer boots PostgreSQL in a container and returns its
// connection settings. Nothing is migrated yet.
func StartTestContainer(ctx context.Context) (*TestContainer, error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(testImage),
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &TestContainer{
		container: pgContainer,
		Config: &config.DatabaseConfig{
			Host:         host,
			Port:         mappedPort.Port(),
			User:         testUser,
			Password:     testPassword,
			Name:         testDatabase,
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
	}, nil
}

// Terminate stops and removes the container
func (tc *TestContainer) Terminate(ctx context.Context) error {
	return tc.container.Terminate(ctx)
}

// OpenTestDB starts a container, connects and applies every migration.
// The returned cleanup closes the pool and removes the container.
func OpenTestDB(ctx context.Context) (*DB, func(), error) {
	tc, err := StartTestContainer(ctx)
	if err != nil {
		return nil, nil, err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		_ = tc.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := NewDB(tc.Config, logger)
	if err != nil {
		_ = tc.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(MigrationsDir()); err != nil {
		_ = db.Close()
		_ = tc.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db", zap.Error(err))
		}
		if err := tc.Terminate(ctx); err != nil {
			logger.Error("failed to terminate container", zap.Error(err))
		}
	}

	return db, cleanup, nil
}

// setupTestDB is the in-package shorthand for OpenTestDB
func setupTestDB(ctx context.Context) (*DB, func(), error) {
	return OpenTestDB(ctx)
}
