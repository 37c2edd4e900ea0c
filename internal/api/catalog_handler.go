package api

import (
	"log/slog"
	"net/http"

	"github.com/agrocoop/billing-api/internal/domain/catalog"
)

// CatalogHandler serves the public plan template catalog.
type CatalogHandler struct {
	logger  *slog.Logger
	catalog catalog.Service
}

func NewCatalogHandler(catalogSvc catalog.Service, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{logger: logger, catalog: catalogSvc}
}

// Register mounts the catalog routes.
func (h *CatalogHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/plans", h.listPlans)
	mux.HandleFunc("GET /v1/plans/{planID}", h.getPlan)
	mux.HandleFunc("POST /v1/plans/seed", h.seedPlans)
}

func (h *CatalogHandler) listPlans(w http.ResponseWriter, r *http.Request) {
	templates, err := h.catalog.LoadPlanTemplates(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": templates})
}

func (h *CatalogHandler) getPlan(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.catalog.GetPlanTemplate(r.Context(), r.PathValue("planID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *CatalogHandler) seedPlans(w http.ResponseWriter, r *http.Request) {
	seeded, err := h.catalog.SeedPlanTemplates(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seeded": seeded})
}
