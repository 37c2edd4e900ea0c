package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/agrocoop/billing-api/internal/domain/members"
	"github.com/agrocoop/billing-api/internal/types"
)

// MemberHandler serves roster routes.
type MemberHandler struct {
	logger  *slog.Logger
	members members.Service
}

func NewMemberHandler(memberSvc members.Service, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{logger: logger, members: memberSvc}
}

// Register mounts the member routes.
func (h *MemberHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orgs/{orgID}/members", h.createMember)
	mux.HandleFunc("GET /v1/orgs/{orgID}/members", h.listMembers)
	mux.HandleFunc("GET /v1/orgs/{orgID}/members/{memberID}", h.getMember)
	mux.HandleFunc("PUT /v1/orgs/{orgID}/members/{memberID}/status", h.updateStatus)
}

func parseMemberID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("memberID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid member id: %w", types.ErrBadRequest)
	}
	return id, nil
}

func (h *MemberHandler) createMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"displayName"`
		Email       string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	member, err := h.members.CreateMember(r.Context(), r.PathValue("orgID"), req.DisplayName, req.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *MemberHandler) listMembers(w http.ResponseWriter, r *http.Request) {
	filter := members.ListFilter{
		Status:   types.MemberStatus(r.URL.Query().Get("status")),
		SeatType: types.SeatType(r.URL.Query().Get("seatType")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("invalid limit: %w", types.ErrBadRequest))
			return
		}
		filter.Limit = limit
	}
	result, err := h.members.ListMembers(r.Context(), r.PathValue("orgID"), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": result})
}

func (h *MemberHandler) getMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseMemberID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	member, err := h.members.GetMember(r.Context(), r.PathValue("orgID"), memberID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseMemberID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req struct {
		Status types.MemberStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	member, err := h.members.UpdateMemberStatus(r.Context(), r.PathValue("orgID"), memberID, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}
