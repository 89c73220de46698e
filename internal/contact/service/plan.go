package service

import (
	"fmt"
	"sort"

	"idlink/internal/contact"
	strutil "idlink/pkg/platform/strings"
)

// The functions in this file are pure: they take lookup results and produce
// decisions, so the hardest parts of reconciliation (anchor selection, merge
// sets, aggregation) are testable without a store.

// ConsistencyError reports secondary contacts whose linked primary could not
// be resolved. The engine refuses to mask this by fabricating a duplicate
// primary; the ids are carried for offline repair.
type ConsistencyError struct {
	ContactIDs []int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("secondary contacts with no resolvable primary: %v", e.ContactIDs)
}

// partition splits matched contacts by link precedence.
func partition(matches []contact.Contact) (primaries, secondaries []contact.Contact) {
	for _, c := range matches {
		if c.IsPrimary() {
			primaries = append(primaries, c)
		} else {
			secondaries = append(secondaries, c)
		}
	}
	return primaries, secondaries
}

// oldest picks the earliest-created contact; equal timestamps break toward the
// smaller id so anchor selection is deterministic.
func oldest(contacts []contact.Contact) contact.Contact {
	best := contacts[0]
	for _, c := range contacts[1:] {
		if c.CreatedAt.Before(best.CreatedAt) ||
			(c.CreatedAt.Equal(best.CreatedAt) && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

// referencedPrimaryIDs collects the distinct linked ids of secondaries,
// preserving first-seen order.
func referencedPrimaryIDs(secondaries []contact.Contact) []int64 {
	seen := make(map[int64]struct{}, len(secondaries))
	var ids []int64
	for _, c := range secondaries {
		if c.LinkedID == nil {
			continue
		}
		if _, ok := seen[*c.LinkedID]; ok {
			continue
		}
		seen[*c.LinkedID] = struct{}{}
		ids = append(ids, *c.LinkedID)
	}
	return ids
}

// hasNewInformation reports whether the incoming identifiers carry an email or
// phone number not yet present in the identity group. This is the only
// condition under which a new row is created for an already-matched identity.
func hasNewInformation(group []contact.Contact, email, phone string) bool {
	emails := make(map[string]struct{}, len(group))
	phones := make(map[string]struct{}, len(group))
	for _, c := range group {
		if c.Email != nil {
			emails[*c.Email] = struct{}{}
		}
		if c.PhoneNumber != nil {
			phones[*c.PhoneNumber] = struct{}{}
		}
	}
	if email != "" {
		if _, ok := emails[email]; !ok {
			return true
		}
	}
	if phone != "" {
		if _, ok := phones[phone]; !ok {
			return true
		}
	}
	return false
}

// consolidate builds the canonical view of one identity group. The group is
// expected in ascending created-at order; the anchor's own email and phone are
// front-loaded so they occupy index 0 of their lists, and dedupe preserves
// that ordering. Secondary ids come out ascending.
func consolidate(anchor contact.Contact, group []contact.Contact) contact.ConsolidatedContact {
	emails := make([]string, 0, len(group)+1)
	phones := make([]string, 0, len(group)+1)
	if anchor.Email != nil {
		emails = append(emails, *anchor.Email)
	}
	if anchor.PhoneNumber != nil {
		phones = append(phones, *anchor.PhoneNumber)
	}

	secondaryIDs := make([]int64, 0, len(group))
	for _, c := range group {
		if c.Email != nil {
			emails = append(emails, *c.Email)
		}
		if c.PhoneNumber != nil {
			phones = append(phones, *c.PhoneNumber)
		}
		if !c.IsPrimary() {
			secondaryIDs = append(secondaryIDs, c.ID)
		}
	}
	sort.Slice(secondaryIDs, func(i, j int) bool { return secondaryIDs[i] < secondaryIDs[j] })

	return contact.ConsolidatedContact{
		PrimaryID:    anchor.ID,
		Emails:       strutil.DedupeAndTrim(emails),
		PhoneNumbers: strutil.DedupeAndTrim(phones),
		SecondaryIDs: secondaryIDs,
	}
}
