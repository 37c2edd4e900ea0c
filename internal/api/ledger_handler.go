package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agrocoop/billing-api/internal/domain/ledger"
	"github.com/agrocoop/billing-api/internal/types"
)

// LedgerHandler serves the audit trail read route.
type LedgerHandler struct {
	logger *slog.Logger
	ledger ledger.Service
}

func NewLedgerHandler(ledgerSvc ledger.Service, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{logger: logger, ledger: ledgerSvc}
}

// Register mounts the ledger routes.
func (h *LedgerHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/orgs/{orgID}/ledger", h.listLedger)
}

func (h *LedgerHandler) listLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.Filter{
		EventType: types.LedgerEventType(q.Get("eventType")),
	}
	if raw := q.Get("memberId"); raw != "" {
		memberID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("invalid memberId: %w", types.ErrBadRequest))
			return
		}
		filter.MemberID = &memberID
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("invalid since timestamp: %w", types.ErrBadRequest))
			return
		}
		filter.Since = &since
	}
	if raw := q.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("invalid until timestamp: %w", types.ErrBadRequest))
			return
		}
		filter.Until = &until
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("invalid limit: %w", types.ErrBadRequest))
			return
		}
		filter.Limit = limit
	}

	entries, err := h.ledger.ListLedger(r.Context(), r.PathValue("orgID"), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
