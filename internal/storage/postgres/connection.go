package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
)

// Manager owns the connection pool and hands out the per-entity storages.
type Manager struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger

	issues      *IssueStorage
	jobs        *JobStorage
	credentials *CredentialStorage
}

// NewManager connects to Postgres and optionally runs migrations.
func NewManager(ctx context.Context, config *common.DatabaseConfig, dimensions int, logger arbor.ILogger) (*Manager, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	applyPoolSettings(poolConfig, config)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m := &Manager{pool: pool, logger: logger}

	if config.MigrateOnStart {
		if err := m.Migrate(ctx, dimensions); err != nil {
			pool.Close()
			return nil, err
		}
	}

	m.issues = &IssueStorage{pool: pool, logger: logger}
	m.jobs = &JobStorage{pool: pool, logger: logger}
	m.credentials = &CredentialStorage{pool: pool, logger: logger}

	logger.Info().
		Str("database", config.Name).
		Msg("Postgres storage initialized")

	return m, nil
}

// applyPoolSettings carries pool-level config onto the parsed pgx config.
// A configured statement timeout is applied server-side on every session.
func applyPoolSettings(poolConfig *pgxpool.Config, config *common.DatabaseConfig) {
	if config.MaxConns > 0 {
		poolConfig.MaxConns = int32(config.MaxConns)
	}
	if config.StatementTimeout != "" {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = config.StatementTimeout
	}
}

// IssueStorage returns the issue storage.
func (m *Manager) IssueStorage() *IssueStorage { return m.issues }

// JobStorage returns the crawl job storage.
func (m *Manager) JobStorage() *JobStorage { return m.jobs }

// CredentialStorage returns the credential storage.
func (m *Manager) CredentialStorage() *CredentialStorage { return m.credentials }

// Close releases the connection pool.
func (m *Manager) Close() {
	m.pool.Close()
}
