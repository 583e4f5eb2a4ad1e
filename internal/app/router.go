package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stratus-console/stratus/internal/ability"
	"github.com/stratus-console/stratus/internal/guard"
	"github.com/stratus-console/stratus/internal/observability"
	"github.com/stratus-console/stratus/internal/passport"
	"github.com/stratus-console/stratus/internal/roles"
	"github.com/stratus-console/stratus/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Guard           guard.Middleware
	PassportHandler *passport.Handler
	AbilityHandler  *ability.Handler
	RolesHandler    *roles.Handler
	UsersHandler    *users.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router. Each protected route group declares
// its required ability ids statically; the guard consumes that declaration.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	params.PassportHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Require(ability.IDCatalogView))
		params.AbilityHandler.MountRoutes(r)
	})

	params.RolesHandler.MountRoutes(r, params.Guard.Require)
	params.UsersHandler.MountRoutes(r, params.Guard.Require)

	return r
}
