package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// Schema — таблицы хоста. Применяется командой migrate и в dev-режиме.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	key        BYTEA PRIMARY KEY,
	data       BYTEA NOT NULL,
	deposit    BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS invocation_journal (
	id          UUID PRIMARY KEY,
	trace_id    TEXT NOT NULL,
	instruction TEXT NOT NULL,
	robot       TEXT NOT NULL,
	signer      TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_code  BIGINT,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS invocation_journal_robot_ts ON invocation_journal (robot, timestamp DESC);
`

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open открывает пул через pgx stdlib. Соединение проверяется отдельно через Ping.
func Open(connString string, cfg PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Migrate применяет Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// IsRetryable: ошибки конкурентного доступа, после которых транзакцию
// можно безопасно повторить: serialization_failure и deadlock_detected.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
