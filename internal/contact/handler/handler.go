// Package handler exposes identity reconciliation over HTTP. It delegates to
// the service layer without embedding business logic so transport concerns
// stay isolated.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"idlink/internal/contact"
	"idlink/internal/platform/config"
	"idlink/internal/platform/middleware"
	dErrors "idlink/pkg/domain-errors"
	"idlink/pkg/platform/httputil"
	"idlink/pkg/requestcontext"
)

// Service defines the reconciliation operation consumed by the handler.
type Service interface {
	Reconcile(ctx context.Context, email, phone string) (contact.ConsolidatedContact, error)
}

// Handler handles the /identify endpoint.
type Handler struct {
	logger   *slog.Logger
	contacts Service
}

// New creates a new contact Handler.
func New(contacts Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, contacts: contacts}
}

// Register registers the contact routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Recovery(h.logger))
		gr.Use(middleware.RequestID)
		gr.Use(middleware.Logger(h.logger))
		gr.Use(middleware.Timeout(config.RequestTimeout))
		gr.Use(middleware.ContentTypeJSON)
		gr.Post("/identify", h.handleIdentify)
	})
}

// handleIdentify reconciles the submitted identifiers into one canonical
// identity and returns the consolidated contact view.
func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid identify request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var email, phone string
	if req.Email != nil {
		email = strings.TrimSpace(*req.Email)
	}
	if req.PhoneNumber != nil {
		phone = strings.TrimSpace(string(*req.PhoneNumber))
	}

	view, err := h.contacts.Reconcile(ctx, email, phone)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) {
			h.logger.WarnContext(ctx, "identify rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "identify failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(IdentifyResponse{Contact: ContactPayload{
		PrimaryContactID:    view.PrimaryID,
		Emails:              view.Emails,
		PhoneNumbers:        view.PhoneNumbers,
		SecondaryContactIDs: view.SecondaryIDs,
	}})
}
