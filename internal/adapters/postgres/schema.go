package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	photographer_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_date TEXT NOT NULL,
	event_time TEXT NOT NULL,
	duration_bucket TEXT NOT NULL,
	location TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	guest_count INT NOT NULL DEFAULT 0,
	budget_band TEXT NOT NULL DEFAULT '',
	client_name TEXT NOT NULL,
	client_email TEXT NOT NULL,
	client_phone TEXT NOT NULL DEFAULT '',
	additional_requests TEXT NOT NULL DEFAULT '',
	total_amount NUMERIC NOT NULL,
	deposit_amount NUMERIC NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'payment_failed', 'canceled')),
	payment_intent_id TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

// EnsureSchema creates the tables if they do not exist. Deployments run
// real migrations; this keeps tests and local runs self-contained.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
