package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-app/gatehouse/internal/identity"
	"github.com/gatehouse-app/gatehouse/internal/observability"
	"github.com/gatehouse-app/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	store     *Store
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. Metrics may be nil.
func NewHandler(logger *slog.Logger, store *Store, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, store: store, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.Get("/me", h.handleMe)
}

type credentialsForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type registerForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin moderator user"`
}

type stateResponse struct {
	User      *User     `json:"user"`
	Role      rbac.Role `json:"role,omitempty"`
	IsLoading bool      `json:"is_loading"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form credentialsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.store.SignIn(r.Context(), form.Email, form.Password); err != nil {
		h.metrics.RecordAuthOperation("sign_in", "failure")
		if errors.Is(err, identity.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		h.logger.Error("sign in", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Provider Error", "sign in failed")
		return
	}
	h.metrics.RecordAuthOperation("sign_in", "success")
	httpx.JSON(w, http.StatusOK, h.currentState())
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	role := rbac.RoleUser
	if form.Role != "" {
		parsed, err := rbac.ParseRole(form.Role)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		role = parsed
	}

	if err := h.store.SignUp(r.Context(), form.Email, form.Password, role); err != nil {
		h.metrics.RecordAuthOperation("sign_up", "failure")
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			httpx.Problem(w, http.StatusConflict, "Duplicate", "email already registered")
		case errors.Is(err, identity.ErrInvalidCredentials):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "could not sign in after registration")
		default:
			h.logger.Error("sign up", slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Provider Error", "registration failed")
		}
		return
	}
	h.metrics.RecordAuthOperation("sign_up", "success")
	httpx.JSON(w, http.StatusCreated, h.currentState())
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SignOut(r.Context()); err != nil {
		h.metrics.RecordAuthOperation("sign_out", "failure")
		h.logger.Error("sign out", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Provider Error", "sign out failed")
		return
	}
	h.metrics.RecordAuthOperation("sign_out", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	h.store.RefreshSession(r.Context())
	httpx.JSON(w, http.StatusOK, h.currentState())
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	state := h.store.CurrentState()
	if state.User == nil && !state.Loading {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return
	}
	httpx.JSON(w, http.StatusOK, stateResponse{User: state.User, Role: state.Role, IsLoading: state.Loading})
}

func (h *Handler) currentState() stateResponse {
	state := h.store.CurrentState()
	return stateResponse{User: state.User, Role: state.Role, IsLoading: state.Loading}
}
