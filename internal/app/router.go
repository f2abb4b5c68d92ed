package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatehouse-app/gatehouse/internal/auth"
	"github.com/gatehouse-app/gatehouse/internal/dashboard"
	"github.com/gatehouse-app/gatehouse/internal/guard"
	"github.com/gatehouse-app/gatehouse/internal/observability"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/users"
	"github.com/gatehouse-app/gatehouse/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	DashboardHandler *dashboard.Handler
	JobsHandler      *jobs.Handler
	Guard            *guard.Guard
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Gatehouse defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(LoginThrottle(params.Config))
		params.AuthHandler.MountRoutes(r)
	})

	if params.UsersHandler != nil {
		r.Route("/users", func(r chi.Router) {
			r.Use(params.Guard.RequirePermissions(rbac.PermManageRoles))
			params.UsersHandler.MountRoutes(r)
		})
	}

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(params.Guard.RequirePermissions(rbac.PermViewDashboard))
		r.Get("/", params.DashboardHandler.Overview)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(params.Guard.RequireRoles(rbac.RoleAdmin))
		r.Get("/", params.DashboardHandler.AdminOverview)
	})
	r.Route("/moderator", func(r chi.Router) {
		r.Use(params.Guard.RequireRoles(rbac.RoleAdmin, rbac.RoleModerator))
		r.Get("/", params.DashboardHandler.ModeratorOverview)
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Guard.RequireRoles(rbac.RoleAdmin))
			params.JobsHandler.MountRoutes(r)
		})
	}

	r.Get(guard.UnauthorizedPath, params.DashboardHandler.Unauthorized)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
