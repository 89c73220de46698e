// Package contact defines the contact entity and the consolidated identity view
// produced by reconciliation.
package contact

import "time"

// LinkPrecedence marks a contact as the anchor of its identity group or as an
// alias linked to that anchor.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is a single stored identifier record. At least one of Email and
// PhoneNumber is always set. LinkedID is set iff the contact is secondary and
// always references a primary contact directly, never another secondary.
type Contact struct {
	ID             int64
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsPrimary reports whether the contact anchors its identity group.
func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// Update carries the mutable fields of a contact for partial updates. Nil
// fields are left untouched. UpdatedAt is refreshed by the store on every
// applied update.
type Update struct {
	LinkPrecedence *LinkPrecedence
	LinkedID       *int64
}

// ConsolidatedContact is the canonical view of one identity group: the primary
// contact id, the distinct emails and phone numbers known for the identity
// (the primary's own values first), and the ids of all secondary contacts in
// ascending order.
type ConsolidatedContact struct {
	PrimaryID    int64
	Emails       []string
	PhoneNumbers []string
	SecondaryIDs []int64
}
