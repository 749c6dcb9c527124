package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/serkayon/biolic/internal/services"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	svc *services.HealthService
}

// NewHealthHandler creates the health handler
func NewHealthHandler(svc *services.HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Routes mounts the probe endpoints on a fresh router
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	return r
}

// Healthz reports process liveness
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.svc.Check(r.Context()))
}

// Readyz reports whether the service can take traffic
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "Database unavailable"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}
