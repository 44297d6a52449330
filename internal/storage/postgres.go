// Package storage holds the durable collaborators: Postgres for sessions
// and users (mutable state), ClickHouse for position history (append-only),
// and an optional Redis mirror of latest positions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleettrack/internal/keys"
)

// PostgresDB wraps the connection pool backing the session validator.
type PostgresDB struct {
	pool   *pgxpool.Pool
	pepper string
}

// OpenPostgres opens and pings the pool. A failure here is a configuration
// fault and should abort startup.
func OpenPostgres(ctx context.Context, databaseURL, pepper string) (*PostgresDB, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDB{pool: pool, pepper: pepper}, nil
}

func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the session-store tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		create table if not exists users (
			id           uuid primary key default gen_random_uuid(),
			display_name text not null,
			created_at   timestamptz not null default now()
		);

		create table if not exists sessions (
			token_hash  text primary key,
			user_id     uuid not null references users(id),
			created_at  timestamptz not null default now(),
			expires_at  timestamptz not null,
			revoked_at  timestamptz
		);

		create index if not exists idx_sessions_user on sessions(user_id);
	`)
	if err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

// Validate resolves a bearer token to a user. The second return is false for
// an unknown, revoked, or expired session; err is reserved for lookup
// failures.
func (d *PostgresDB) Validate(ctx context.Context, token string) (uuid.UUID, bool, error) {
	hash := keys.HashSessionToken(d.pepper, token)

	var userID uuid.UUID
	err := d.pool.QueryRow(ctx, `
		select u.id
		from sessions s
		join users u on u.id = s.user_id
		where s.token_hash = $1
		  and s.revoked_at is null
		  and s.expires_at > now()
	`, hash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("session lookup: %w", err)
	}
	return userID, true, nil
}

// CreateSession issues a session token for a user, mainly for provisioning
// and tests. The raw token is returned once; only its hash is stored.
func (d *PostgresDB) CreateSession(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error) {
	token, err := keys.NewSessionToken()
	if err != nil {
		return "", err
	}
	_, err = d.pool.Exec(ctx, `
		insert into sessions (token_hash, user_id, expires_at)
		values ($1, $2, now() + $3::interval)
	`, keys.HashSessionToken(d.pepper, token), userID, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return token, nil
}
