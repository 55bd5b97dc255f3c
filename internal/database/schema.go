package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schema is applied on startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password      TEXT NOT NULL,
		rating        INTEGER NOT NULL DEFAULT 1000,
		is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id         BIGSERIAL PRIMARY KEY,
		subject    TEXT NOT NULL DEFAULT '',
		topic      TEXT NOT NULL DEFAULT 'Общее',
		difficulty TEXT NOT NULL DEFAULT 'Средняя',
		prompt     TEXT NOT NULL,
		answer     TEXT NOT NULL,
		kind       TEXT NOT NULL DEFAULT 'text',
		active     BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id                 UUID PRIMARY KEY,
		player1_id         UUID NOT NULL REFERENCES users(id),
		player2_id         UUID NOT NULL REFERENCES users(id),
		player1_name       TEXT NOT NULL,
		player2_name       TEXT NOT NULL,
		player1_rating     INTEGER NOT NULL,
		player2_rating     INTEGER NOT NULL,
		task_id            BIGINT,
		duration_sec       INTEGER NOT NULL,
		status             TEXT NOT NULL DEFAULT 'pending',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at         TIMESTAMPTZ,
		ended_at           TIMESTAMPTZ,
		winner_user_id     UUID REFERENCES users(id),
		reason             TEXT,
		player1_answer     TEXT,
		player2_answer     TEXT,
		player1_new_rating INTEGER,
		player2_new_rating INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS matches_player1_idx ON matches (player1_id)`,
	`CREATE INDEX IF NOT EXISTS matches_player2_idx ON matches (player2_id)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		id         BIGSERIAL PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users(id),
		match_id   UUID NOT NULL REFERENCES matches(id),
		old_rating INTEGER NOT NULL,
		new_rating INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS match_actions (
		match_id       UUID NOT NULL,
		action_index   INTEGER NOT NULL,
		actor_user_id  UUID,
		action_type    TEXT NOT NULL,
		action_payload JSONB NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (match_id, action_index)
	)`,
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
