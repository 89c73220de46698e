package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the service layer can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: contact does not exist in the store
// - ErrInvalid: a write would violate a store invariant (e.g. creating a
//   contact with neither email nor phone number)
// - ErrConflict: a write conflict that exhausted the store's retries
// - ErrUnavailable: the backing store is temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
