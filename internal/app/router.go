package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/agrimart/backoffice/internal/audit/http"
	"github.com/agrimart/backoffice/internal/auth"
	governancehttp "github.com/agrimart/backoffice/internal/governance/http"
	"github.com/agrimart/backoffice/internal/observability"
	"github.com/agrimart/backoffice/internal/platform/httpx"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/shared"
	"github.com/agrimart/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	GovernanceHandler  *governancehttp.Handler
	AuditHandler       *audithttp.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	RBACMiddleware     rbac.Middleware
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with back-office defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.GovernanceHandler != nil {
		r.Route("/accounts", func(r chi.Router) {
			params.GovernanceHandler.MountAccountRoutes(r, params.RBACMiddleware)
		})
		r.Route("/roles", func(r chi.Router) {
			if params.PermissionsHandler != nil {
				r.Route("/modules", params.PermissionsHandler.MountRoutes)
			}
			params.GovernanceHandler.MountRoleRoutes(r, params.RBACMiddleware)
		})
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	return r
}
