package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"idlink/internal/contact"
	"idlink/internal/contact/metrics"
	"idlink/internal/contact/service"
	"idlink/internal/contact/store/memory"
	"idlink/pkg/testutil"
)

// HandlerSuite exercises the HTTP surface against the real service and an
// in-memory store; handler tests validate transport concerns only.
type HandlerSuite struct {
	suite.Suite
	router http.Handler
	store  *memory.InMemoryStore
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = memory.New()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	svc, err := service.New(s.store, logger, metrics.New(prometheus.NewRegistry()))
	s.Require().NoError(err)

	r := chi.NewRouter()
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) identify(body string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/identify", body)
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) TestInvalidJSON() {
	rec := s.identify("not valid json")
	s.Equal(http.StatusBadRequest, rec.Code)

	body := testutil.UnmarshalErrorResponse(s.T(), rec)
	s.Equal("bad_request", body["error"])
}

func (s *HandlerSuite) TestMissingIdentifiers() {
	rec := s.identify(`{}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	body := testutil.UnmarshalErrorResponse(s.T(), rec)
	s.Equal("bad_request", body["error"])
	s.Contains(body["error_description"], "email or phoneNumber")
}

func (s *HandlerSuite) TestNewIdentityResponseShape() {
	rec := s.identify(`{"email":"a@x.com","phoneNumber":"555"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	raw := rec.Body.String()

	// The wire field name is part of the upstream contract.
	s.Contains(raw, `"primaryContatctId"`)

	resp := testutil.UnmarshalResponse[IdentifyResponse](s.T(), rec)
	s.NotZero(resp.Contact.PrimaryContactID)
	s.Equal([]string{"a@x.com"}, resp.Contact.Emails)
	s.Equal([]string{"555"}, resp.Contact.PhoneNumbers)
	s.Empty(resp.Contact.SecondaryContactIDs)
}

func (s *HandlerSuite) TestNumericPhoneNumberIsCoerced() {
	first := s.identify(`{"phoneNumber":123456}`)
	s.Require().Equal(http.StatusOK, first.Code)

	second := s.identify(`{"phoneNumber":"123456"}`)
	s.Require().Equal(http.StatusOK, second.Code)

	a := testutil.UnmarshalResponse[IdentifyResponse](s.T(), first)
	b := testutil.UnmarshalResponse[IdentifyResponse](s.T(), second)
	s.Equal(a.Contact.PrimaryContactID, b.Contact.PrimaryContactID,
		"numeric and string phone numbers must resolve to the same identity")
}

func (s *HandlerSuite) TestMergeResponse() {
	s.Require().Equal(http.StatusOK, s.identify(`{"email":"a@x.com"}`).Code)
	s.Require().Equal(http.StatusOK, s.identify(`{"phoneNumber":"555"}`).Code)

	rec := s.identify(`{"email":"a@x.com","phoneNumber":"555"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	resp := testutil.UnmarshalResponse[IdentifyResponse](s.T(), rec)
	s.Equal([]string{"a@x.com"}, resp.Contact.Emails)
	s.Equal([]string{"555"}, resp.Contact.PhoneNumbers)
	s.Len(resp.Contact.SecondaryContactIDs, 1)
}

func (s *HandlerSuite) TestConsistencyFaultIsServerError() {
	linked := int64(999)
	phone := "555"
	s.store.Seed(context.Background(), contact.Contact{
		PhoneNumber:    &phone,
		LinkedID:       &linked,
		LinkPrecedence: contact.LinkPrecedenceSecondary,
	})

	rec := s.identify(`{"phoneNumber":"555"}`)
	s.Equal(http.StatusInternalServerError, rec.Code)

	body := testutil.UnmarshalErrorResponse(s.T(), rec)
	s.Equal("consistency", body["error"])
	s.Empty(body["error_description"], "internal detail must not leak to callers")
}

func (s *HandlerSuite) TestUnsupportedMediaType() {
	req := httptest.NewRequest(http.MethodPost, "/identify", bytes.NewReader([]byte(`{"email":"a@x.com"}`)))
	req.Header.Set("Content-Type", "text/plain")
	rec := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusUnsupportedMediaType, rec.Code)
}
