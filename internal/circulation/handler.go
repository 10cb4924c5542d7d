// internal/circulation/handler.go
package circulation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the circulation endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout", h.handleCheckout)
	r.Post("/return", h.handleReturn)
	r.Get("/loans/{memberId}", h.handleListLoans)
}

type loanRequest struct {
	MemberID uuid.UUID `json:"memberId"`
	BookID   uuid.UUID `json:"bookId"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := h.service.Checkout(r.Context(), req.MemberID, req.BookID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := h.service.Return(r.Context(), req.MemberID, req.BookID)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuid.Parse(chi.URLParam(r, "memberId"))
	if err != nil {
		http.Error(w, "invalid member ID", http.StatusBadRequest)
		return
	}

	loans, err := h.service.ListLoans(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(loans)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBookUnavailable):
		http.Error(w, "book is not available", http.StatusConflict)
	case errors.Is(err, ErrMemberIneligible):
		http.Error(w, "member has an overdue loan", http.StatusForbidden)
	case errors.Is(err, ErrLoanNotFound):
		http.Error(w, "no active loan for this member and book", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
