package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func (db *DB) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sms (
			id         TEXT PRIMARY KEY,
			sender     TEXT NOT NULL,
			recipients JSONB NOT NULL,
			body       TEXT NOT NULL,
			sent_at    TIMESTAMPTZ,
			error      JSONB,
			options    JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			sms_id      TEXT NOT NULL REFERENCES sms(id),
			recipient   TEXT NOT NULL,
			destination JSONB,
			body        TEXT NOT NULL,
			count       INT NOT NULL DEFAULT 0,
			sent_at     TIMESTAMPTZ,
			done_at     TIMESTAMPTZ,
			price       JSONB,
			status      JSONB,
			error       JSONB,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_sms_sent_at ON sms(sent_at);
		CREATE INDEX IF NOT EXISTS idx_messages_sms_id ON messages(sms_id);
		CREATE INDEX IF NOT EXISTS idx_messages_done_at ON messages(done_at);
	`

	_, err := db.Pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
