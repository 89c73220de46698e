//go:build integration

package postgres_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"idlink/internal/contact"
	"idlink/internal/contact/metrics"
	"idlink/internal/contact/service"
	"idlink/internal/contact/store/postgres"
	"idlink/pkg/platform/sentinel"
	"idlink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "contacts"))
}

func (s *PostgresStoreSuite) TestCreateAndLookup() {
	ctx := context.Background()

	created, err := s.store.Create(ctx, "a@x.com", "555", nil, contact.LinkPrecedencePrimary)
	s.Require().NoError(err)
	s.NotZero(created.ID)
	s.Require().NotNil(created.Email)
	s.Equal("a@x.com", *created.Email)
	s.True(created.IsPrimary())

	s.Run("matches by email", func() {
		matches, err := s.store.FindByIdentifiers(ctx, "a@x.com", "")
		s.Require().NoError(err)
		s.Require().Len(matches, 1)
		s.Equal(created.ID, matches[0].ID)
	})

	s.Run("matches by phone", func() {
		matches, err := s.store.FindByIdentifiers(ctx, "", "555")
		s.Require().NoError(err)
		s.Require().Len(matches, 1)
	})

	s.Run("either identifier matches when both given", func() {
		other, err := s.store.Create(ctx, "", "777", nil, contact.LinkPrecedencePrimary)
		s.Require().NoError(err)

		matches, err := s.store.FindByIdentifiers(ctx, "a@x.com", "777")
		s.Require().NoError(err)
		s.Require().Len(matches, 2)
		s.Equal(created.ID, matches[0].ID, "results come back oldest first")
		s.Equal(other.ID, matches[1].ID)
	})

	s.Run("rejects a contact with neither identifier", func() {
		_, err := s.store.Create(ctx, "", "", nil, contact.LinkPrecedencePrimary)
		s.Require().ErrorIs(err, sentinel.ErrInvalid)
	})
}

func (s *PostgresStoreSuite) TestUpdateAndGroup() {
	ctx := context.Background()

	primary, err := s.store.Create(ctx, "p@x.com", "", nil, contact.LinkPrecedencePrimary)
	s.Require().NoError(err)
	alias, err := s.store.Create(ctx, "", "111", &primary.ID, contact.LinkPrecedenceSecondary)
	s.Require().NoError(err)
	rival, err := s.store.Create(ctx, "", "222", nil, contact.LinkPrecedencePrimary)
	s.Require().NoError(err)

	secondary := contact.LinkPrecedenceSecondary
	demoted, err := s.store.Update(ctx, rival.ID, contact.Update{
		LinkPrecedence: &secondary,
		LinkedID:       &primary.ID,
	})
	s.Require().NoError(err)
	s.Equal(contact.LinkPrecedenceSecondary, demoted.LinkPrecedence)
	s.Require().NotNil(demoted.LinkedID)
	s.Equal(primary.ID, *demoted.LinkedID)
	s.True(demoted.UpdatedAt.After(rival.UpdatedAt))

	group, err := s.store.FindGroup(ctx, primary.ID)
	s.Require().NoError(err)
	s.Require().Len(group, 3)
	s.Equal(primary.ID, group[0].ID)
	s.Equal(alias.ID, group[1].ID)
	s.Equal(rival.ID, group[2].ID)

	s.Run("missing contact returns ErrNotFound", func() {
		_, err := s.store.Update(ctx, 99999, contact.Update{LinkPrecedence: &secondary})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestSoftDeletedRowsAreExcluded() {
	ctx := context.Background()

	buried, err := s.store.Create(ctx, "gone@x.com", "", nil, contact.LinkPrecedencePrimary)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx, `UPDATE contacts SET deleted_at = now() WHERE id = $1`, buried.ID)
	s.Require().NoError(err)

	matches, err := s.store.FindByIdentifiers(ctx, "gone@x.com", "")
	s.Require().NoError(err)
	s.Empty(matches)

	group, err := s.store.FindGroup(ctx, buried.ID)
	s.Require().NoError(err)
	s.Empty(group)
}

func (s *PostgresStoreSuite) TestRunInTxRollsBackOnError() {
	ctx := context.Background()

	sentinelErr := fmt.Errorf("boom")
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.Create(ctx, "tx@x.com", "", nil, contact.LinkPrecedencePrimary); err != nil {
			return err
		}
		return sentinelErr
	})
	s.Require().ErrorIs(err, sentinelErr)

	matches, err := s.store.FindByIdentifiers(ctx, "tx@x.com", "")
	s.Require().NoError(err)
	s.Empty(matches, "a failed unit of work leaves no partial writes")
}

// TestConcurrentReconciles drives the full engine against the real store:
// overlapping requests must converge on one primary with exactly one row per
// distinct identifier pair, regardless of interleaving.
func (s *PostgresStoreSuite) TestConcurrentReconciles() {
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc, err := service.New(s.store, logger, metrics.New(promclient.NewRegistry()))
	s.Require().NoError(err)

	const workers = 8
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			phone := fmt.Sprintf("555-%04d", i%2)
			_, err := svc.Reconcile(ctx, "shared@x.com", phone)
			return err
		})
	}
	s.Require().NoError(g.Wait())

	view, err := svc.Reconcile(ctx, "shared@x.com", "")
	s.Require().NoError(err)

	group, err := s.store.FindGroup(ctx, view.PrimaryID)
	s.Require().NoError(err)

	// One contact carries the email, plus at most one secondary per distinct
	// phone; concurrent repeats must not have multiplied rows.
	s.LessOrEqual(len(group), 3)

	primaries := 0
	for _, c := range group {
		if c.IsPrimary() {
			primaries++
		} else {
			s.Require().NotNil(c.LinkedID)
			s.Equal(view.PrimaryID, *c.LinkedID)
		}
	}
	s.Equal(1, primaries, "exactly one primary per identity group at rest")
}
