package postgres

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. Soft-deleted rows keep their
// history; the partial indexes only cover live rows since every lookup
// filters deleted_at.
const schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id              BIGSERIAL PRIMARY KEY,
    email           TEXT,
    phone_number    TEXT,
    linked_id       BIGINT REFERENCES contacts(id),
    link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at      TIMESTAMPTZ,
    CHECK (email IS NOT NULL OR phone_number IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts (email) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts (phone_number) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_contacts_linked_id ON contacts (linked_id) WHERE deleted_at IS NULL;
`

// EnsureSchema creates the contacts table and its indexes if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure contacts schema: %w", err)
	}
	return nil
}
