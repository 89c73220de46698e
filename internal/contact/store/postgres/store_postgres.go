// Package postgres persists contacts in PostgreSQL. The store is pure I/O;
// all reconciliation decisions belong in the service layer.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"idlink/internal/contact"
	"idlink/pkg/platform/sentinel"
	txcontext "idlink/pkg/platform/tx"
)

// maxTxAttempts bounds the optimistic retry of serializable transactions.
const maxTxAttempts = 5

type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer returns the ambient transaction when RunInTx put one in context, so
// every store call inside a unit of work shares its snapshot.
func (s *PostgresStore) execer(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

func (s *PostgresStore) FindByIdentifiers(ctx context.Context, email, phone string) ([]contact.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE deleted_at IS NULL
		  AND (($1 <> '' AND email = $1) OR ($2 <> '' AND phone_number = $2))
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, email, phone)
	if err != nil {
		return nil, fmt.Errorf("find contacts by identifiers: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

func (s *PostgresStore) Create(ctx context.Context, email, phone string, linkedID *int64, precedence contact.LinkPrecedence) (contact.Contact, error) {
	if email == "" && phone == "" {
		return contact.Contact{}, fmt.Errorf("contact requires an email or phone number: %w", sentinel.ErrInvalid)
	}
	query := `
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4)
		RETURNING ` + contactColumns + `
	`
	c, err := scanContact(s.execer(ctx).QueryRowContext(ctx, query, email, phone, linkedID, string(precedence)))
	if err != nil {
		return contact.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, update contact.Update) (contact.Contact, error) {
	query := `
		UPDATE contacts
		SET link_precedence = COALESCE($2, link_precedence),
		    linked_id = COALESCE($3, linked_id),
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + contactColumns + `
	`
	var precedence *string
	if update.LinkPrecedence != nil {
		p := string(*update.LinkPrecedence)
		precedence = &p
	}
	c, err := scanContact(s.execer(ctx).QueryRowContext(ctx, query, id, precedence, update.LinkedID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contact.Contact{}, fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
		}
		return contact.Contact{}, fmt.Errorf("update contact %d: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) FindGroup(ctx context.Context, primaryID int64) ([]contact.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE deleted_at IS NULL
		  AND (id = $1 OR linked_id = $1)
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, primaryID)
	if err != nil {
		return nil, fmt.Errorf("find group %d: %w", primaryID, err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

// RunInTx runs fn inside one SERIALIZABLE transaction so concurrent
// reconciliations over overlapping identifiers are mutually excluded, while
// disjoint ones proceed in parallel. Serialization failures are retried as a
// whole a bounded number of times; the transaction either fully commits or
// leaves no trace, so no partially-demoted primary can persist.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
		// Back off before retrying so rival transactions can drain.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction retries exhausted: %v: %w", lastErr, sentinel.ErrConflict)
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isSerializationFailure matches SQLSTATE 40001 (serialization_failure) and
// 40P01 (deadlock_detected), the two outcomes worth retrying whole.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func collectContacts(rows *sql.Rows) ([]contact.Contact, error) {
	var contacts []contact.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

type contactRow interface {
	Scan(dest ...any) error
}

func scanContact(row contactRow) (contact.Contact, error) {
	var c contact.Contact
	var email, phone sql.NullString
	var linkedID sql.NullInt64
	var precedence string
	var deletedAt sql.NullTime
	if err := row.Scan(&c.ID, &email, &phone, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &deletedAt); err != nil {
		return contact.Contact{}, err
	}
	if email.Valid {
		c.Email = &email.String
	}
	if phone.Valid {
		c.PhoneNumber = &phone.String
	}
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	c.LinkPrecedence = contact.LinkPrecedence(precedence)
	return c, nil
}
