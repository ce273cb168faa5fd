package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is the subset of pgxpool.Pool the stores use.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	Conn Conn
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{Conn: pool, pool: pool}, nil
}

// NewWithConn wraps an existing connection, e.g. a pgxmock pool.
func NewWithConn(conn Conn) *DB {
	return &DB{Conn: conn}
}

func (d *DB) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS notification_templates (
    name        TEXT PRIMARY KEY,
    channel     TEXT NOT NULL,
    category    TEXT NOT NULL,
    subject     TEXT NOT NULL DEFAULT '',
    content     TEXT NOT NULL,
    variables   JSONB NOT NULL DEFAULT '[]',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
    id            UUID PRIMARY KEY,
    type          TEXT NOT NULL,
    recipients    TEXT[] NOT NULL,
    subject       TEXT NOT NULL DEFAULT '',
    message       TEXT NOT NULL,
    priority      TEXT NOT NULL,
    status        TEXT NOT NULL,
    template_name TEXT NOT NULL DEFAULT '',
    scheduled_at  TIMESTAMPTZ,
    sent_at       TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    metadata      JSONB,
    attachments   JSONB,
    deliveries    JSONB,
    error         TEXT NOT NULL DEFAULT '',
    retry_count   INTEGER NOT NULL DEFAULT 0,
    version       INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS notifications_created_at_idx ON notifications (created_at DESC);
CREATE INDEX IF NOT EXISTS notifications_due_idx ON notifications (scheduled_at) WHERE status = 'scheduled';
`

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
