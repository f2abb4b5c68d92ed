package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

const (
	// LoginPath is where unauthenticated attempts are redirected.
	LoginPath = "/auth/login"
	// UnauthorizedPath is where insufficient-privilege attempts land.
	UnauthorizedPath = "/unauthorized"
	// FromParam carries the originally attempted location through the
	// login redirect so it can be resumed afterwards.
	FromParam = "from"
)

// Protect wraps a handler group with a guard evaluation of req. Checking
// yields 503 with a Retry-After hint; the two redirect outcomes become HTTP
// redirects, with the unauthorized one carrying what was required.
func (g *Guard) Protect(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch g.Evaluate(r.Context(), req) {
			case DecisionAllow:
				next.ServeHTTP(w, r)
			case DecisionChecking:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "auth state still resolving", http.StatusServiceUnavailable)
			case DecisionRedirectLogin:
				http.Redirect(w, r, loginURL(r), http.StatusSeeOther)
			case DecisionRedirectUnauthorized:
				http.Redirect(w, r, unauthorizedURL(g, req), http.StatusSeeOther)
			}
		})
	}
}

// RequireRoles is shorthand for Protect with only a role requirement.
func (g *Guard) RequireRoles(roleSet ...rbac.Role) func(http.Handler) http.Handler {
	return g.Protect(Requirement{Roles: roleSet})
}

// RequirePermissions is shorthand for Protect with only a permission
// requirement.
func (g *Guard) RequirePermissions(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return g.Protect(Requirement{Permissions: perms})
}

func loginURL(r *http.Request) string {
	from := r.URL.Path
	if r.URL.RawQuery != "" {
		from += "?" + r.URL.RawQuery
	}
	return LoginPath + "?" + FromParam + "=" + url.QueryEscape(from)
}

func unauthorizedURL(g *Guard, req Requirement) string {
	values := url.Values{}
	if len(req.Roles) > 0 {
		names := make([]string, len(req.Roles))
		for i, role := range req.Roles {
			names[i] = role.String()
		}
		values.Set("required_roles", strings.Join(names, ","))
	}
	if missing := g.missingPermissions(req.Permissions); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, p := range missing {
			names[i] = p.String()
		}
		values.Set("missing_permissions", strings.Join(names, ","))
	}
	if len(values) == 0 {
		return UnauthorizedPath
	}
	return UnauthorizedPath + "?" + values.Encode()
}
