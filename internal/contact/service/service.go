// Package service implements the identity reconciliation engine: matching
// incoming identifiers against stored contacts, attaching new aliases, merging
// identity groups that turn out to be the same entity, and producing the
// consolidated view.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"idlink/internal/contact"
	"idlink/internal/contact/metrics"
	dErrors "idlink/pkg/domain-errors"
	"idlink/pkg/platform/sentinel"
	"idlink/pkg/requestcontext"
)

// Store is the contact persistence collaborator consumed by the engine. All
// ordered results come back ascending by creation time. RunInTx runs fn with
// every store call inside one unit of work; conflicting reconciliations on
// overlapping identifiers are mutually excluded for its duration.
type Store interface {
	FindByIdentifiers(ctx context.Context, email, phone string) ([]contact.Contact, error)
	Create(ctx context.Context, email, phone string, linkedID *int64, precedence contact.LinkPrecedence) (contact.Contact, error)
	Update(ctx context.Context, id int64, update contact.Update) (contact.Contact, error)
	FindGroup(ctx context.Context, primaryID int64) ([]contact.Contact, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates reconciliation against an injected store. It holds no
// state between invocations; everything lives in the store.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(store Store, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if store == nil {
		return nil, errors.New("contact store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if m == nil {
		return nil, errors.New("metrics are required")
	}
	return &Service{store: store, logger: logger, metrics: m}, nil
}

// Reconcile resolves the incoming (email, phone) pair to a single canonical
// identity, creating or merging contacts as needed, and returns the
// consolidated view. At least one identifier must be present.
func (s *Service) Reconcile(ctx context.Context, email, phone string) (contact.ConsolidatedContact, error) {
	if email == "" && phone == "" {
		return contact.ConsolidatedContact{}, dErrors.New(dErrors.CodeBadRequest,
			"either email or phoneNumber must be provided")
	}

	start := time.Now()
	var (
		view     contact.ConsolidatedContact
		merges   int
		attached bool
		created  bool
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		view, merges, attached, created, err = s.reconcile(ctx, email, phone)
		return err
	})
	if err != nil {
		s.metrics.ObserveReconcile(metrics.OutcomeError, time.Since(start))
		return contact.ConsolidatedContact{}, s.translate(ctx, err)
	}

	for i := 0; i < merges; i++ {
		s.metrics.GroupMerges.Inc()
	}
	if attached {
		s.metrics.SecondariesCreated.Inc()
	}
	s.metrics.ObserveReconcile(outcomeOf(merges, attached, created), time.Since(start))
	return view, nil
}

// reconcile is the transactional body: lookup, anchor selection, merge, new
// information check, aggregation. Every store call sees the same unit of work.
func (s *Service) reconcile(ctx context.Context, email, phone string) (view contact.ConsolidatedContact, merges int, attached, created bool, err error) {
	matches, err := s.store.FindByIdentifiers(ctx, email, phone)
	if err != nil {
		return view, 0, false, false, fmt.Errorf("find contacts: %w", err)
	}

	// No match: the pair is a brand new identity.
	if len(matches) == 0 {
		fresh, err := s.store.Create(ctx, email, phone, nil, contact.LinkPrecedencePrimary)
		if err != nil {
			return view, 0, false, false, fmt.Errorf("create primary: %w", err)
		}
		return consolidate(fresh, []contact.Contact{fresh}), 0, false, true, nil
	}

	primaries, secondaries := partition(matches)

	var anchor contact.Contact
	var mergeSet []contact.Contact
	if len(primaries) > 0 {
		anchor = oldest(primaries)
		mergeSet = primaries
	} else {
		// Only secondaries matched: resolve their linked primaries and anchor
		// on the earliest. An unresolvable link is a data fault the engine
		// refuses to paper over with a fabricated primary.
		resolved, err := s.resolvePrimaries(ctx, secondaries)
		if err != nil {
			return view, 0, false, false, err
		}
		anchor = oldest(resolved)
		mergeSet = resolved
	}

	// Demote every other primary into the anchor's group, re-pointing its
	// secondaries at the anchor so no secondary->secondary chain survives.
	for _, p := range mergeSet {
		if p.ID == anchor.ID {
			continue
		}
		if err := s.demote(ctx, p, anchor.ID); err != nil {
			return view, 0, false, false, err
		}
		merges++
	}

	group, err := s.store.FindGroup(ctx, anchor.ID)
	if err != nil {
		return view, 0, false, false, fmt.Errorf("fetch group: %w", err)
	}

	if hasNewInformation(group, email, phone) {
		if _, err := s.store.Create(ctx, email, phone, &anchor.ID, contact.LinkPrecedenceSecondary); err != nil {
			return view, 0, false, false, fmt.Errorf("create secondary: %w", err)
		}
		attached = true
		group, err = s.store.FindGroup(ctx, anchor.ID)
		if err != nil {
			return view, 0, false, false, fmt.Errorf("refetch group: %w", err)
		}
	}

	return consolidate(anchor, group), merges, attached, false, nil
}

// resolvePrimaries follows the linked ids of matched secondaries to their
// primary contacts. When none resolve, the matched secondaries are orphans.
func (s *Service) resolvePrimaries(ctx context.Context, secondaries []contact.Contact) ([]contact.Contact, error) {
	var resolved []contact.Contact
	for _, linkedID := range referencedPrimaryIDs(secondaries) {
		group, err := s.store.FindGroup(ctx, linkedID)
		if err != nil {
			return nil, fmt.Errorf("resolve linked primary %d: %w", linkedID, err)
		}
		for _, c := range group {
			if c.ID == linkedID && c.IsPrimary() {
				resolved = append(resolved, c)
				break
			}
		}
	}
	if len(resolved) == 0 {
		orphans := make([]int64, 0, len(secondaries))
		for _, c := range secondaries {
			orphans = append(orphans, c.ID)
		}
		cerr := &ConsistencyError{ContactIDs: orphans}
		return nil, dErrors.Wrap(cerr, dErrors.CodeConsistency, cerr.Error())
	}
	return resolved, nil
}

// demote turns a rival primary into a secondary of the anchor and re-points
// every contact that referenced it, flattening the group in one pass.
func (s *Service) demote(ctx context.Context, p contact.Contact, anchorID int64) error {
	group, err := s.store.FindGroup(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("fetch group of demoted primary %d: %w", p.ID, err)
	}

	secondary := contact.LinkPrecedenceSecondary
	if _, err := s.store.Update(ctx, p.ID, contact.Update{
		LinkPrecedence: &secondary,
		LinkedID:       &anchorID,
	}); err != nil {
		return fmt.Errorf("demote primary %d: %w", p.ID, err)
	}
	for _, c := range group {
		if c.ID == p.ID {
			continue
		}
		if _, err := s.store.Update(ctx, c.ID, contact.Update{
			LinkPrecedence: &secondary,
			LinkedID:       &anchorID,
		}); err != nil {
			return fmt.Errorf("relink contact %d to %d: %w", c.ID, anchorID, err)
		}
	}
	return nil
}

// translate maps infrastructure errors onto the domain taxonomy. Domain errors
// produced inside the transaction pass through untouched.
func (s *Service) translate(ctx context.Context, err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "reconcile timed out")
	case errors.Is(err, sentinel.ErrInvalid):
		return dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	case errors.Is(err, sentinel.ErrNotFound):
		// A contact vanished mid-reconcile: an invariant violation, not a
		// client error.
		return dErrors.Wrap(err, dErrors.CodeNotFound, err.Error())
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "contact store unavailable")
	default:
		s.logger.ErrorContext(ctx, "reconcile failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "reconcile failed")
	}
}

func outcomeOf(merges int, attached, created bool) string {
	switch {
	case merges > 0:
		return metrics.OutcomeMerged
	case attached:
		return metrics.OutcomeAttached
	case created:
		return metrics.OutcomeCreated
	default:
		return metrics.OutcomeNoop
	}
}
