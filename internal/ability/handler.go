package ability

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratus-console/stratus/internal/platform/httpx"
)

// Handler exposes the ability catalog for console introspection.
type Handler struct {
	registry *Registry
}

// NewHandler constructs a Handler instance.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/abilities", h.listAbilities)
}

func (h *Handler) listAbilities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"abilities": h.registry.List(),
	})
}
