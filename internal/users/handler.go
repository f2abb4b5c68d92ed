package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gatehouse-app/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// RoleUpdater performs the privileged role mutation. Satisfied by the auth
// store, which also refreshes its own session when it mutates itself.
type RoleUpdater interface {
	UpdateUserRole(ctx context.Context, targetID uuid.UUID, newRole rbac.Role) error
}

// Handler wires user administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	updater RoleUpdater
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, updater RoleUpdater) *Handler {
	return &Handler{logger: logger, service: service, updater: updater}
}

// MountRoutes registers user routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Put("/{userID}/role", h.updateRole)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

type updateRoleForm struct {
	Role string `json:"role"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var form updateRoleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	role, err := rbac.ParseRole(form.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.updater.UpdateUserRole(r.Context(), targetID, role); err != nil {
		h.logger.Error("update user role",
			slog.String("target_id", targetID.String()),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Role Update Failed", "the role mutation was rejected")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": targetID, "role": role})
}
