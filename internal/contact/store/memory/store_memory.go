// Package memory provides an in-memory contact store for local development
// and unit tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"idlink/internal/contact"
	"idlink/pkg/platform/sentinel"
)

// InMemoryStore keeps contacts in a map guarded by a mutex. RunInTx serializes
// all units of work behind a single lock; that over-serializes disjoint
// reconciliations, which is fine for a dev store. The Postgres store is the
// concurrent implementation.
type InMemoryStore struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	contacts map[int64]contact.Contact
	nextID   int64
}

func New() *InMemoryStore {
	return &InMemoryStore{contacts: make(map[int64]contact.Contact)}
}

func (s *InMemoryStore) FindByIdentifiers(_ context.Context, email, phone string) ([]contact.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []contact.Contact
	for _, c := range s.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if email != "" && c.Email != nil && *c.Email == email {
			matches = append(matches, c)
			continue
		}
		if phone != "" && c.PhoneNumber != nil && *c.PhoneNumber == phone {
			matches = append(matches, c)
		}
	}
	sortByCreation(matches)
	return matches, nil
}

func (s *InMemoryStore) Create(_ context.Context, email, phone string, linkedID *int64, precedence contact.LinkPrecedence) (contact.Contact, error) {
	if email == "" && phone == "" {
		return contact.Contact{}, fmt.Errorf("contact requires an email or phone number: %w", sentinel.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now()
	c := contact.Contact{
		ID:             s.nextID,
		LinkPrecedence: precedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if email != "" {
		c.Email = &email
	}
	if phone != "" {
		c.PhoneNumber = &phone
	}
	if linkedID != nil {
		id := *linkedID
		c.LinkedID = &id
	}
	s.contacts[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) Update(_ context.Context, id int64, update contact.Update) (contact.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return contact.Contact{}, fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	if update.LinkPrecedence != nil {
		c.LinkPrecedence = *update.LinkPrecedence
	}
	if update.LinkedID != nil {
		linked := *update.LinkedID
		c.LinkedID = &linked
	}
	c.UpdatedAt = time.Now()
	s.contacts[id] = c
	return c, nil
}

func (s *InMemoryStore) FindGroup(_ context.Context, primaryID int64) ([]contact.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var group []contact.Contact
	for _, c := range s.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if c.ID == primaryID || (c.LinkedID != nil && *c.LinkedID == primaryID) {
			group = append(group, c)
		}
	}
	sortByCreation(group)
	return group, nil
}

// RunInTx serializes the whole store for the duration of fn. There is no
// rollback: a failed unit of work may leave partial writes behind, matching
// the guarantees of a dev-only store.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

// Seed inserts a contact verbatim for test setup, assigning an id and
// timestamps only when unset. It bypasses Create's validation so tests can
// build inconsistent states on purpose.
func (s *InMemoryStore) Seed(_ context.Context, c contact.Contact) contact.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		s.nextID++
		c.ID = s.nextID
	} else if c.ID > s.nextID {
		s.nextID = c.ID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.contacts[c.ID] = c
	return c
}

func sortByCreation(contacts []contact.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].ID < contacts[j].ID
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}
