package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Connect opens the database connection and runs migrations.
func Connect(dsn string, logger zerolog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Int("count", len(migrations)).Msg("database migrations applied")

	return db, nil
}

// users and jobs belong to the marketplace schema and are only read here.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            job_id TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            recipient_id TEXT NOT NULL,
            content TEXT NOT NULL,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (sender_id <> recipient_id),
            CHECK (length(btrim(content)) > 0)
        );`,
	`CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id, job_id);`,
	`CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages (recipient_id, job_id) WHERE read = FALSE;`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id BIGSERIAL PRIMARY KEY,
            user_id TEXT NOT NULL,
            type TEXT NOT NULL,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            visible BOOLEAN NOT NULL DEFAULT TRUE,
            send_alerts BOOLEAN NOT NULL DEFAULT TRUE,
            job_id TEXT NOT NULL DEFAULT '',
            counterpart_id TEXT NOT NULL DEFAULT '',
            payload JSONB NOT NULL DEFAULT '{}'::jsonb,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC) WHERE visible = TRUE;`,
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
