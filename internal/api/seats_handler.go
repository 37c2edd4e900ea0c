package api

import (
	"log/slog"
	"net/http"

	"github.com/agrocoop/billing-api/internal/domain/seats"
	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/middleware"
)

// SeatHandler serves seat assignment routes.
type SeatHandler struct {
	logger *slog.Logger
	seats  seats.Service
}

func NewSeatHandler(seatSvc seats.Service, logger *slog.Logger) *SeatHandler {
	return &SeatHandler{logger: logger, seats: seatSvc}
}

// Register mounts the seat routes.
func (h *SeatHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orgs/{orgID}/members/{memberID}/seat", h.assignSeat)
	mux.HandleFunc("DELETE /v1/orgs/{orgID}/members/{memberID}/seat", h.unassignSeat)
	mux.HandleFunc("GET /v1/orgs/{orgID}/seats/usage", h.seatUsage)
	mux.HandleFunc("POST /v1/orgs/{orgID}/seats/sweep", h.sweep)
}

func (h *SeatHandler) assignSeat(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseMemberID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req struct {
		SeatType types.SeatType `json:"seatType"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	actor, _ := middleware.ActorFromContext(r.Context())
	result, err := h.seats.AssignSeat(r.Context(), r.PathValue("orgID"), memberID, req.SeatType, actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SeatHandler) unassignSeat(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseMemberID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	actor, _ := middleware.ActorFromContext(r.Context())
	result, err := h.seats.UnassignSeat(r.Context(), r.PathValue("orgID"), memberID, actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SeatHandler) seatUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.seats.GetSeatUsage(r.Context(), r.PathValue("orgID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *SeatHandler) sweep(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	released, err := h.seats.ApplyAutoUnassignOnSuspended(r.Context(), r.PathValue("orgID"), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": released})
}
