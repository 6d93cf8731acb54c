package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/atlas-erp/atlas-authz/internal/audit/http"
	"github.com/atlas-erp/atlas-authz/internal/authz"
	"github.com/atlas-erp/atlas-authz/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthzHandler *authz.Handler
	AuditHandler *audithttp.Handler
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router for the authorization service. The
// decision endpoints stay open to in-cluster callers; everything else sits
// behind the admin bearer token.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthzHandler != nil || params.AuditHandler != nil {
		adminToken := ""
		if params.Config != nil {
			adminToken = params.Config.AdminTokenHash
		}
		r.Group(func(r chi.Router) {
			if adminToken != "" {
				r.Use(AdminAuth(params.Logger, adminToken))
			}
			if params.AuthzHandler != nil {
				params.AuthzHandler.MountRoutes(r)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
		})
	}

	return r
}
