package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/colegio-portal/colegio-portal/internal/audit"
	"github.com/colegio-portal/colegio-portal/internal/auth"
	"github.com/colegio-portal/colegio-portal/internal/catalog"
	"github.com/colegio-portal/colegio-portal/internal/observability"
	"github.com/colegio-portal/colegio-portal/internal/permissions"
	"github.com/colegio-portal/colegio-portal/internal/roles"
	"github.com/colegio-portal/colegio-portal/internal/shared"
	"github.com/colegio-portal/colegio-portal/internal/users"
	"github.com/colegio-portal/colegio-portal/jobs"
)

// APIPrefix is the base path for all portal endpoints.
const APIPrefix = "/api/v1"

// LoginPath is exempt from CSRF verification.
const LoginPath = APIPrefix + "/auth/login"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	RolesHandler       *roles.Handler
	CatalogHandler     *catalog.Handler
	UsersHandler       *users.Handler
	AuditHandler       *audit.Handler
	PermissionsHandler *permissions.Handler
	JobHandler         *jobs.Handler
	Guard              permissions.Middleware
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		// Everything past this point needs an authenticated session.
		r.Group(func(r chi.Router) {
			r.Use(params.Guard.RequireSession)

			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.CatalogHandler != nil {
				r.Route("/services", params.CatalogHandler.MountRoutes)
			}
			r.Route("/users", func(r chi.Router) {
				if params.UsersHandler != nil {
					params.UsersHandler.MountRoutes(r)
				}
				if params.PermissionsHandler != nil {
					params.PermissionsHandler.MountUserRoutes(r)
				}
			})
			if params.PermissionsHandler != nil {
				params.PermissionsHandler.MountRoutes(r)
			}

			// The audit timeline is itself a guarded portal service.
			if params.AuditHandler != nil {
				r.Group(func(r chi.Router) {
					r.Use(params.Guard.RequireService(permissions.PermisosServiceKey))
					r.Route("/audit", params.AuditHandler.MountRoutes)
				})
			}

			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
