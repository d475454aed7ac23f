package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

const sqlCreateMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	)`

// Column types are shared by sqlite and postgres. Timestamps are unix milliseconds.
var migrations = []migration{
	{1, "accounts", []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT NOT NULL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			public_key_pem TEXT NOT NULL,
			private_key_pem TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	}},
	{2, "posts", []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT NOT NULL PRIMARY KEY,
			author_id TEXT NOT NULL REFERENCES accounts(id),
			title TEXT NOT NULL,
			content_html TEXT NOT NULL,
			summary TEXT,
			banner_url TEXT,
			hashtags TEXT NOT NULL DEFAULT '[]',
			like_count INTEGER NOT NULL DEFAULT 0,
			published_at BIGINT,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_author_published ON posts(author_id, published_at)`,
	}},
	{3, "followers_following", []string{
		`CREATE TABLE IF NOT EXISTS followers (
			id TEXT NOT NULL PRIMARY KEY,
			local_user_id TEXT NOT NULL,
			remote_actor TEXT NOT NULL,
			inbox_url TEXT NOT NULL,
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			UNIQUE(local_user_id, remote_actor)
		)`,
		`CREATE TABLE IF NOT EXISTS following (
			id TEXT NOT NULL PRIMARY KEY,
			local_user_id TEXT NOT NULL,
			remote_actor TEXT NOT NULL,
			inbox_url TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			accepted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			UNIQUE(local_user_id, remote_actor)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_following_activity ON following(local_user_id, activity_id)`,
	}},
	{4, "deliveries", []string{
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT NOT NULL PRIMARY KEY,
			activity_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL DEFAULT 'create',
			remote_inbox TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			user_id TEXT,
			post_id TEXT,
			activity_json TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS delivery_jobs (
			id TEXT NOT NULL PRIMARY KEY,
			activity_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			user_id TEXT,
			post_id TEXT,
			inbox_url TEXT NOT NULL DEFAULT '',
			receive_count INTEGER NOT NULL DEFAULT 0,
			visible_at BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_jobs_visible ON delivery_jobs(visible_at, created_at)`,
	}},
	{5, "inbox_replay", []string{
		`CREATE TABLE IF NOT EXISTS inbox_objects (
			id TEXT NOT NULL PRIMARY KEY,
			activity_id TEXT UNIQUE,
			type TEXT NOT NULL,
			actor TEXT NOT NULL,
			object_id TEXT,
			local_user_id TEXT,
			raw_json TEXT NOT NULL,
			received_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS replay_cache (
			cache_key TEXT NOT NULL PRIMARY KEY,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_replay_cache_created ON replay_cache(created_at)`,
	}},
	{6, "instance_settings", []string{
		`CREATE TABLE IF NOT EXISTS instance_settings (
			id INTEGER NOT NULL PRIMARY KEY,
			instance_name TEXT NOT NULL,
			instance_description TEXT NOT NULL DEFAULT '',
			instance_domain TEXT NOT NULL,
			open_registrations BOOLEAN NOT NULL DEFAULT FALSE,
			federation_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at BIGINT NOT NULL
		)`,
	}},
	{7, "inbox_applied", []string{
		`ALTER TABLE inbox_objects ADD COLUMN applied_at BIGINT`,
	}},
}

// RunMigrations applies every migration not yet recorded in schema_migrations.
func (db *DB) RunMigrations(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, sqlCreateMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, db.rebind(`INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, ?)`),
				m.version, m.name, toMillis(time.Now()))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %03d_%s: %w", m.version, m.name, err)
		}
		db.log.WithFields(logrus.Fields{"version": m.version, "name": m.name}).Info("Applied migration")
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
