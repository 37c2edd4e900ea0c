package api

import (
	"log/slog"
	"net/http"

	"github.com/agrocoop/billing-api/internal/domain/subscription"
	"github.com/agrocoop/billing-api/pkg/middleware"
)

// SubscriptionHandler serves subscription lifecycle and billing settings
// routes.
type SubscriptionHandler struct {
	logger        *slog.Logger
	subscriptions subscription.Service
}

func NewSubscriptionHandler(subscriptionSvc subscription.Service, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{logger: logger, subscriptions: subscriptionSvc}
}

// Register mounts the subscription routes.
func (h *SubscriptionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orgs/{orgID}/billing/bootstrap", h.bootstrap)
	mux.HandleFunc("GET /v1/orgs/{orgID}/subscription", h.getSubscription)
	mux.HandleFunc("POST /v1/orgs/{orgID}/subscription/ensure", h.ensure)
	mux.HandleFunc("POST /v1/orgs/{orgID}/subscription/plan", h.applyPlan)
	mux.HandleFunc("PUT /v1/orgs/{orgID}/subscription/plan", h.updatePlan)
	mux.HandleFunc("GET /v1/orgs/{orgID}/billing/settings", h.getSettings)
	mux.HandleFunc("PUT /v1/orgs/{orgID}/billing/settings", h.updateSettings)
}

func (h *SubscriptionHandler) bootstrap(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	result, err := h.subscriptions.BootstrapOrgBilling(r.Context(), r.PathValue("orgID"), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SubscriptionHandler) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetOrgSubscription(r.Context(), r.PathValue("orgID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) ensure(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	result, err := h.subscriptions.EnsureOrgSubscription(r.Context(), r.PathValue("orgID"), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SubscriptionHandler) applyPlan(w http.ResponseWriter, r *http.Request) {
	var req subscription.ApplyPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	actor, _ := middleware.ActorFromContext(r.Context())
	result, err := h.subscriptions.ApplyPlanTemplate(r.Context(), r.PathValue("orgID"), req, actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if result.RequiresPayment {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (h *SubscriptionHandler) updatePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"planId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	actor, _ := middleware.ActorFromContext(r.Context())
	sub, err := h.subscriptions.UpdatePlan(r.Context(), r.PathValue("orgID"), req.PlanID, actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.subscriptions.GetBillingSettings(r.Context(), r.PathValue("orgID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SubscriptionHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffCanManageBilling         bool `json:"staffCanManageBilling"`
		AutoUnassignSeatsOnSuspension bool `json:"autoUnassignSeatsOnSuspension"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	settings, err := h.subscriptions.UpdateBillingSettings(r.Context(), r.PathValue("orgID"),
		req.StaffCanManageBilling, req.AutoUnassignSeatsOnSuspension)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
