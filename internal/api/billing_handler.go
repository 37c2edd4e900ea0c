package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/agrocoop/billing-api/internal/domain/billing"
	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/middleware"
)

// BillingHandler serves invoice and payment routes.
type BillingHandler struct {
	logger  *slog.Logger
	billing billing.Service
}

func NewBillingHandler(billingSvc billing.Service, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{logger: logger, billing: billingSvc}
}

// Register mounts the billing routes.
func (h *BillingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orgs/{orgID}/billing/seats", h.addSeats)
	mux.HandleFunc("GET /v1/orgs/{orgID}/invoices", h.listInvoices)
	mux.HandleFunc("GET /v1/orgs/{orgID}/invoices/{invoiceID}", h.getInvoice)
	mux.HandleFunc("POST /v1/orgs/{orgID}/invoices/{invoiceID}/confirm", h.confirmPayment)
	mux.HandleFunc("GET /v1/orgs/{orgID}/payments", h.listPayments)
}

func parseInvoiceID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("invoiceID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid invoice id: %w", types.ErrBadRequest)
	}
	return id, nil
}

func (h *BillingHandler) addSeats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SeatType types.SeatType `json:"seatType"`
		Quantity int            `json:"quantity"`
		Method   string         `json:"method"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	actor, _ := middleware.ActorFromContext(r.Context())
	orgID := r.PathValue("orgID")

	var result *billing.PurchaseResult
	var err error
	switch req.SeatType {
	case types.SeatPaid:
		result, err = h.billing.AddPaidSeats(r.Context(), orgID, req.Quantity, req.Method, actor)
	case types.SeatSponsored:
		result, err = h.billing.AddSponsoredSeats(r.Context(), orgID, req.Quantity, req.Method, actor)
	default:
		err = fmt.Errorf("seat type %q is not purchasable: %w", req.SeatType, types.ErrBadRequest)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *BillingHandler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter := billing.InvoiceFilter{
		Status:  types.InvoiceStatus(r.URL.Query().Get("status")),
		Purpose: types.InvoicePurpose(r.URL.Query().Get("purpose")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("invalid limit: %w", types.ErrBadRequest))
			return
		}
		filter.Limit = limit
	}
	invoices, err := h.billing.ListInvoices(r.Context(), r.PathValue("orgID"), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *BillingHandler) getInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := parseInvoiceID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	invoice, err := h.billing.GetInvoice(r.Context(), r.PathValue("orgID"), invoiceID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *BillingHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := parseInvoiceID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req struct {
		PaymentID   uuid.UUID `json:"paymentId"`
		ExternalRef string    `json:"externalRef"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.PaymentID == uuid.Nil {
		writeError(w, r, h.logger, fmt.Errorf("paymentId is required: %w", types.ErrBadRequest))
		return
	}
	actor, _ := middleware.ActorFromContext(r.Context())
	result, err := h.billing.ConfirmPayment(r.Context(), r.PathValue("orgID"), invoiceID, req.PaymentID, req.ExternalRef, actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) listPayments(w http.ResponseWriter, r *http.Request) {
	filter := billing.PaymentFilter{
		Status: types.PaymentStatus(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, fmt.Errorf("invalid limit: %w", types.ErrBadRequest))
			return
		}
		filter.Limit = limit
	}
	payments, err := h.billing.ListPayments(r.Context(), r.PathValue("orgID"), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}
