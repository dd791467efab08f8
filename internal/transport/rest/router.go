package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/teamboard/internal/auth"
	"github.com/frahmantamala/teamboard/internal/authz"
	"github.com/frahmantamala/teamboard/internal/transport/middleware"
	"github.com/frahmantamala/teamboard/internal/transport/swagger"
	"github.com/frahmantamala/teamboard/pkg/metrics"
	"github.com/go-chi/chi"
)

const (
	permTeamManage     = "team.manage"
	permSettingsManage = "settings.manage"
)

type RouterDeps struct {
	Health      *HealthHandler
	Auth        *auth.Handler
	Authz       *authz.Handler
	Checker     middleware.PermissionChecker
	Validator   *middleware.RequestValidator
	Metrics     *metrics.Metrics
	MetricsPath string
	OpenAPI     []byte
	Logger      *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, d RouterDeps) {
	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(d.Logger))
	router.Use(d.Metrics.Middleware)
	router.Use(middleware.LoggingMiddleware(d.Logger))

	if d.MetricsPath != "" {
		router.Handle(d.MetricsPath, d.Metrics.Handler())
	}

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(d.OpenAPI)
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	require := func(permission string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(d.Checker, permission, d.Logger)
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", d.Health.healthCheckHandler)
		r.Get("/ping", d.Health.pingHandler)

		r.Group(func(pr chi.Router) {
			pr.Use(d.Auth.AuthMiddleware)
			if d.Validator != nil {
				pr.Use(d.Validator.Middleware)
			}

			pr.Get("/permissions", d.Authz.ListPermissions)
			pr.Post("/permissions/check", d.Authz.CheckPermission)
			pr.Get("/me/permissions", d.Authz.MyPermissions)

			pr.Post("/teams/{teamID}/switch", d.Authz.SwitchTeam)
			pr.With(require(permTeamManage)).Put("/teams/{teamID}/members/{userID}/role", d.Authz.AssignRole)

			pr.Route("/roles", func(rr chi.Router) {
				rr.With(require(permSettingsManage)).Post("/", d.Authz.CreateRole)
				rr.Get("/{role}", d.Authz.GetRole)
				rr.Get("/{role}/permissions", d.Authz.GetRoleBindings)

				rr.Group(func(mr chi.Router) {
					mr.Use(require(permSettingsManage))
					mr.Post("/{role}/permissions", d.Authz.BindPermission)
					mr.Delete("/{role}/permissions/{permission}", d.Authz.UnbindPermission)
					mr.Post("/{role}/deactivate", d.Authz.DeactivateRole)
					mr.Patch("/{role}/hierarchy", d.Authz.SetHierarchyLevel)
				})
			})

			pr.With(require(permSettingsManage)).Get("/audit", d.Authz.StreamAudit)
		})
	})
}
