package governancehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/platform/httpx"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/shared"
)

const (
	exportLimit  = 10
	exportWindow = time.Minute
)

// MountAccountRoutes registers account routes. Accounts are guarded by the
// staff module permissions.
func (h *Handler) MountAccountRoutes(r chi.Router, mw rbac.Middleware) {
	perm := func(a rbac.Action) string { return rbac.Permission(rbac.ModuleStaff, a) }
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAny(perm(rbac.ActionRead)))
		r.Get("/", h.listAccounts)
		r.Get("/{id}", h.getAccount)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionExport)), exportLimiter())
		r.Get("/export.csv", h.exportAccounts)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionCreate)))
		r.Post("/", h.createAccount)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionUpdate)))
		r.Put("/{id}", h.updateAccount)
		r.Post("/{id}/activate", h.transitionAccount(accounts.TransitionActivate))
		r.Post("/{id}/deactivate", h.transitionAccount(accounts.TransitionDeactivate))
		r.Post("/{id}/suspend", h.transitionAccount(accounts.TransitionSuspend))
		r.Post("/{id}/resend-verification", h.resendVerification)
		r.Post("/{id}/password-reset", h.sendPasswordReset)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionDelete)))
		r.Delete("/{id}", h.deleteAccount)
	})
}

// MountRoleRoutes registers role routes, guarded by the settings module.
func (h *Handler) MountRoleRoutes(r chi.Router, mw rbac.Middleware) {
	perm := func(a rbac.Action) string { return rbac.Permission(rbac.ModuleSettings, a) }
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAny(perm(rbac.ActionRead)))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionExport)), exportLimiter())
		r.Get("/export.csv", h.exportRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionCreate)))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionUpdate)))
		r.Put("/{id}", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(perm(rbac.ActionDelete)))
		r.Delete("/{id}", h.deleteRole)
	})
}

func exportLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(exportLimit, exportWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if actor := shared.ActorFromContext(r.Context()); !actor.IsSystem() {
				return "account:" + actor.Email, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export limit reached")
		}),
	)
}
