// internal/loans/handler.go
package loans

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"libhub/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler exposes the loan service over HTTP.
type Handler struct {
	service Service
	logger  zerolog.Logger
}

// NewHandler creates a new loan handler.
func NewHandler(service Service, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With().Str("component", "loans_handler").Logger(),
	}
}

// Routes mounts the loan endpoints on the given router. All routes expect an
// authenticated user in the request context.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/loans", h.handleBorrow)
	r.Get("/api/loans", h.handleListUserLoans)
	r.Get("/api/loans/active", h.handleListActive)
	r.Get("/api/loans/{loanID}", h.handleGetLoan)
	r.Post("/api/loans/{loanID}/return", h.handleReturn)
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}

	var req struct {
		BookID uuid.UUID `json:"book_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BookID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	view, err := h.service.BorrowBook(r.Context(), userID, req.BookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan id"})
		return
	}

	if err := h.service.ReturnBook(r.Context(), loanID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan id"})
		return
	}

	view, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListUserLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}

	views, err := h.service.ListUserLoans(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListActiveLoans(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// writeError maps business-rule violations to 4xx responses with their
// message; everything else is a downstream or internal fault that surfaces as
// a generic 5xx while the detail stays in the logs.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrLoanNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ErrLoanLimitReached),
		errors.Is(err, ErrBookUnavailable),
		errors.Is(err, ErrAlreadyReturned),
		errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		h.logger.Error().
			Err(err).
			Str("correlation_id", middleware.CorrelationID(r.Context())).
			Str("path", r.URL.Path).
			Msg("loan operation failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
