package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"inquiry_server/pkg/apperr"
)

// schemaDDL creates the three tables and their indexes. Idempotent; applied
// at startup.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS inquiries (
	id                  UUID PRIMARY KEY,
	subject             TEXT NOT NULL,
	body                TEXT NOT NULL,
	sender_email        TEXT NOT NULL,
	sender_name         TEXT,
	metadata            JSONB,
	received_at         TIMESTAMPTZ NOT NULL,
	processed           BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at        TIMESTAMPTZ,
	processing_attempts INTEGER NOT NULL DEFAULT 0,
	last_error          TEXT,
	poisoned            BOOLEAN NOT NULL DEFAULT FALSE,
	claimed_at          TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_inquiries_drain
	ON inquiries (processed, received_at);

CREATE INDEX IF NOT EXISTS idx_inquiries_poisoned
	ON inquiries (poisoned) WHERE poisoned;

CREATE TABLE IF NOT EXISTS predictions (
	inquiry_id           UUID PRIMARY KEY REFERENCES inquiries(id) ON DELETE CASCADE,
	category             TEXT NOT NULL,
	category_confidence  DOUBLE PRECISION NOT NULL,
	sentiment            TEXT NOT NULL,
	sentiment_confidence DOUBLE PRECISION NOT NULL,
	urgency              TEXT NOT NULL,
	urgency_confidence   DOUBLE PRECISION NOT NULL,
	model_identifier     TEXT NOT NULL,
	classified_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS routing_decisions (
	inquiry_id        UUID PRIMARY KEY REFERENCES inquiries(id) ON DELETE CASCADE,
	department        TEXT NOT NULL,
	consultant        TEXT,
	priority_score    INTEGER NOT NULL CHECK (priority_score BETWEEN 0 AND 100),
	escalated         BOOLEAN NOT NULL DEFAULT FALSE,
	response_deadline TIMESTAMPTZ NOT NULL,
	decided_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_routing_reporting
	ON routing_decisions (department, escalated);
`

// EnsureSchema applies the schema DDL.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return apperr.DatabaseError("ensure schema", err)
	}
	return nil
}
