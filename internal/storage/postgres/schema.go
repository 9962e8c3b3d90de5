package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the schema. Statements are idempotent; the embedding
// column width is fixed at first creation by the configured dimensions.
func (m *Manager) Migrate(ctx context.Context, dimensions int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS ims_issues (
			id               BIGSERIAL PRIMARY KEY,
			user_id          TEXT NOT NULL,
			ims_id           TEXT NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			description      TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'open',
			priority         TEXT NOT NULL DEFAULT 'medium',
			raw_status       TEXT NOT NULL DEFAULT '',
			raw_priority     TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL DEFAULT '',
			product          TEXT NOT NULL DEFAULT '',
			version          TEXT NOT NULL DEFAULT '',
			module           TEXT NOT NULL DEFAULT '',
			customer         TEXT NOT NULL DEFAULT '',
			issued_date      TEXT NOT NULL DEFAULT '',
			reporter         TEXT NOT NULL DEFAULT '',
			assignee         TEXT NOT NULL DEFAULT '',
			project_key      TEXT NOT NULL DEFAULT '',
			issue_type       TEXT NOT NULL DEFAULT '',
			labels           TEXT[] NOT NULL DEFAULT '{}',
			comment_count    INTEGER NOT NULL DEFAULT 0,
			attachment_count INTEGER NOT NULL DEFAULT 0,
			issue_details    TEXT NOT NULL DEFAULT '',
			action_log       TEXT NOT NULL DEFAULT '',
			source_url       TEXT NOT NULL DEFAULT '',
			custom_fields    JSONB,
			crawled_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, ims_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_ims_issues_user_crawled
			ON ims_issues (user_id, crawled_at DESC)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ims_issue_embeddings (
			issue_id      BIGINT PRIMARY KEY REFERENCES ims_issues(id) ON DELETE CASCADE,
			embedding     vector(%d) NOT NULL,
			embedded_text TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimensions),

		`CREATE TABLE IF NOT EXISTS ims_issue_relations (
			source_id     BIGINT NOT NULL REFERENCES ims_issues(id) ON DELETE CASCADE,
			target_id     BIGINT NOT NULL REFERENCES ims_issues(id) ON DELETE CASCADE,
			relation_type TEXT NOT NULL,
			UNIQUE (source_id, target_id, relation_type)
		)`,

		`CREATE TABLE IF NOT EXISTS ims_crawl_jobs (
			id                    TEXT PRIMARY KEY,
			user_id               TEXT NOT NULL,
			raw_query             TEXT NOT NULL,
			parsed_query          TEXT NOT NULL DEFAULT '',
			intent                TEXT NOT NULL DEFAULT '',
			status                TEXT NOT NULL,
			current_step          TEXT NOT NULL DEFAULT '',
			progress              INTEGER NOT NULL DEFAULT 0,
			issues_found          INTEGER NOT NULL DEFAULT 0,
			issues_crawled        INTEGER NOT NULL DEFAULT 0,
			attachments_processed INTEGER NOT NULL DEFAULT 0,
			related_crawled       INTEGER NOT NULL DEFAULT 0,
			created_at            TIMESTAMPTZ NOT NULL,
			started_at            TIMESTAMPTZ,
			completed_at          TIMESTAMPTZ,
			error                 TEXT NOT NULL DEFAULT '',
			retry_count           INTEGER NOT NULL DEFAULT 0,
			config                JSONB NOT NULL DEFAULT '{}',
			result_issue_ids      BIGINT[] NOT NULL DEFAULT '{}'
		)`,

		`CREATE INDEX IF NOT EXISTS idx_ims_crawl_jobs_user_query
			ON ims_crawl_jobs (user_id, raw_query, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS ims_user_credentials (
			id                 BIGSERIAL PRIMARY KEY,
			user_id            TEXT NOT NULL UNIQUE,
			ims_base_url       TEXT NOT NULL,
			encrypted_username BYTEA NOT NULL,
			encrypted_password BYTEA NOT NULL,
			is_validated       BOOLEAN NOT NULL DEFAULT false,
			last_validated_at  TIMESTAMPTZ,
			validation_error   TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	m.logger.Debug().
		Int("dimensions", dimensions).
		Msg("Schema migration complete")
	return nil
}
