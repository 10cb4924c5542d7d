// internal/identity/handler.go
package identity

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

// Routes mounts the identity endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/signup", h.handleSignUp)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/password-reset", h.handlePasswordReset)
	r.Post("/librarians", h.handleAddLibrarian)
	r.Get("/users", h.handleListUsers)
	r.Get("/stats", h.handleStats)
	r.Get("/profiles/{id}", h.handleGetProfile)
	r.Patch("/profiles/{id}/settings", h.handleUpdateSettings)
	r.Patch("/profiles/{id}/membership", h.handleUpdateMembership)
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.SelfRegistered = true
	if req.Role == "" {
		req.Role = RoleMember
	}

	acct, err := h.service.Provision(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(acct)
}

func (h *Handler) handleAddLibrarian(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		PersonalEmail string `json:"personalEmail"`
		GovtDocNumber string `json:"govtDocNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.service.Provision(r.Context(), ProvisionRequest{
		Name:          req.Name,
		Role:          RoleLibrarian,
		PersonalEmail: req.PersonalEmail,
		GovtDocNumber: req.GovtDocNumber,
	})
	if err != nil {
		// The account may exist even when session restoration failed; give
		// the caller both facts.
		if acct != nil && errors.Is(err, ErrSessionRestoreFailed) {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"account": acct,
				"error":   "librarian created, but the admin session could not be restored",
			})
			return
		}
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(acct)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(profile)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := Role(r.URL.Query().Get("role"))
	if role == "" {
		role = RoleMember
	}

	users, err := h.service.ListUsers(r.Context(), role, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(users)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(stats)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid profile ID", http.StatusBadRequest)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(profile)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid profile ID", http.StatusBadRequest)
		return
	}

	var settings Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateSettings(r.Context(), id, settings); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleUpdateMembership(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid profile ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Plan       string `json:"membershipPlan"`
		ExpiryDate string `json:"membershipExpiryDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateMembership(r.Context(), id, req.Plan, req.ExpiryDate); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeError maps service failures to stable user-facing messages rather
// than passing raw collaborator strings through.
func writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	}

	var aerr *AuthError
	if errors.As(err, &aerr) {
		switch aerr.Code {
		case AuthEmailInUse:
			http.Error(w, "an account with this email already exists", http.StatusConflict)
		case AuthInvalidEmail:
			http.Error(w, "please enter a valid email address", http.StatusBadRequest)
		case AuthWeakPassword:
			http.Error(w, "password must be at least 6 characters long", http.StatusBadRequest)
		case AuthWrongPassword:
			http.Error(w, "incorrect password", http.StatusUnauthorized)
		case AuthUserNotFound:
			http.Error(w, "no account found with this email", http.StatusUnauthorized)
		default:
			http.Error(w, "authentication service unavailable", http.StatusBadGateway)
		}
		return
	}

	switch {
	case errors.Is(err, ErrAllocationExhausted):
		http.Error(w, "could not allocate a user id, try again", http.StatusServiceUnavailable)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "profile not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "you do not have permission for this operation", http.StatusForbidden)
	case errors.Is(err, ErrSessionRestoreFailed):
		http.Error(w, "operation finished but the admin session could not be restored", http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
