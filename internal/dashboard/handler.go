// Package dashboard serves the guarded landing endpoints. Everything here is
// display logic; all gating happens in the guard middleware wrapped around
// these routes.
package dashboard

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouse-app/gatehouse/internal/auth"
	"github.com/gatehouse-app/gatehouse/internal/platform/httpx"
)

// Handler wires the dashboard endpoints.
type Handler struct {
	logger *slog.Logger
	store  *auth.Store
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *auth.Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// Overview answers the general dashboard for any user holding
// view:dashboard.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "Dashboard")
}

// AdminOverview answers the admin-only dashboard.
func (h *Handler) AdminOverview(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "Admin Dashboard")
}

// ModeratorOverview answers the moderation dashboard.
func (h *Handler) ModeratorOverview(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "Moderator Dashboard")
}

// Unauthorized explains a denied attempt, echoing what the guard reported.
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	detail := map[string]any{
		"message": "You don't have permission to access this page.",
	}
	if raw := r.URL.Query().Get("required_roles"); raw != "" {
		detail["required_roles"] = strings.Split(raw, ",")
	}
	if raw := r.URL.Query().Get("missing_permissions"); raw != "" {
		detail["missing_permissions"] = strings.Split(raw, ",")
	}
	if role := h.store.CurrentRole(); role != "" {
		detail["current_role"] = role
	}
	httpx.JSON(w, http.StatusForbidden, detail)
}

func (h *Handler) respond(w http.ResponseWriter, title string) {
	user := h.store.CurrentUser()
	if user == nil {
		// The guard admitted the request, so a vanished user means the
		// state flipped mid-flight; deny rather than render stale data.
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"title":       title,
		"email":       user.Email,
		"role":        user.Role,
		"permissions": user.Permissions,
	})
}
