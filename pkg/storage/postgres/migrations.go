package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the full ordered schema history.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create assets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS assets (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					visibility VARCHAR(16) NOT NULL DEFAULT 'private',
					owner VARCHAR(255) NOT NULL,
					labels JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(name, owner)
				);

				CREATE INDEX idx_assets_owner ON assets(owner);
				CREATE INDEX idx_assets_visibility ON assets(visibility);
				CREATE INDEX idx_assets_created_at ON assets(created_at);
			`,
		},
		{
			Version:     2,
			Description: "Create asset_objects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS asset_objects (
					id UUID PRIMARY KEY,
					asset_id UUID NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
					path VARCHAR(1024) NOT NULL,
					content_type VARCHAR(255) NOT NULL DEFAULT '',
					size BIGINT NOT NULL DEFAULT 0,
					content_hash VARCHAR(64) NOT NULL DEFAULT '',
					object_key VARCHAR(1024) NOT NULL,
					owner VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(asset_id, path)
				);

				CREATE INDEX idx_asset_objects_asset_id ON asset_objects(asset_id);
				CREATE INDEX idx_asset_objects_content_hash ON asset_objects(content_hash);
			`,
		},
		{
			Version:     3,
			Description: "Create access_requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS access_requests (
					id UUID PRIMARY KEY,
					asset_id UUID NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
					requester VARCHAR(255) NOT NULL,
					justification TEXT NOT NULL DEFAULT '',
					status VARCHAR(16) NOT NULL DEFAULT 'pending',
					reviewer VARCHAR(255),
					reviewed_at TIMESTAMP,
					expires_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_access_requests_requester ON access_requests(requester);
				CREATE INDEX idx_access_requests_status ON access_requests(status);
				CREATE INDEX idx_access_requests_expires_at ON access_requests(expires_at);
			`,
		},
		{
			Version:     4,
			Description: "Create workflow_jobs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workflow_jobs (
					id UUID PRIMARY KEY,
					kind VARCHAR(64) NOT NULL,
					asset_id UUID REFERENCES assets(id) ON DELETE SET NULL,
					submitted_by VARCHAR(255) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'queued',
					payload JSONB NOT NULL DEFAULT '{}',
					error TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_workflow_jobs_submitted_by ON workflow_jobs(submitted_by);
				CREATE INDEX idx_workflow_jobs_status ON workflow_jobs(status);
				CREATE INDEX idx_workflow_jobs_updated_at ON workflow_jobs(updated_at);
			`,
		},
		{
			Version:     5,
			Description: "Create user_metadata table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_metadata (
					username VARCHAR(255) PRIMARY KEY,
					preferences JSONB NOT NULL DEFAULT '{}',
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// Migrate applies pending migrations in order, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.db, s)
}

// RunMigrations applies pending migrations against db.
func RunMigrations(ctx context.Context, db *sql.DB, store *Store) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating migrations: %w", err)
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		if store != nil {
			store.logger.WithField("version", migration.Version).
				Infof("running migration: %s", migration.Description)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
