package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/observability"
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for invoices and payments.
type Service interface {
	// AddPaidSeats opens an invoice for extra paid seats. The pool does not
	// grow until the payment is confirmed.
	AddPaidSeats(ctx context.Context, orgID string, qty int, method string, actor types.Actor) (*PurchaseResult, error)
	// AddSponsoredSeats opens an invoice for extra sponsored seats.
	AddSponsoredSeats(ctx context.Context, orgID string, qty int, method string, actor types.Actor) (*PurchaseResult, error)
	// CreatePlanChangeInvoice opens an invoice for a paid plan change and
	// parks the subscription in past_due until confirmation.
	CreatePlanChangeInvoice(ctx context.Context, orgID string, tmpl *types.PlanTemplate, cycle types.BillingCycle, seats types.SeatTotals, method string, actor types.Actor) (*types.Invoice, *types.Payment, error)
	// ConfirmPayment applies everything the paid invoice unlocks.
	ConfirmPayment(ctx context.Context, orgID string, invoiceID, paymentID uuid.UUID, externalRef string, actor types.Actor) (*ConfirmResult, error)
	GetInvoice(ctx context.Context, orgID string, invoiceID uuid.UUID) (*types.Invoice, error)
	ListInvoices(ctx context.Context, orgID string, filter InvoiceFilter) ([]*types.Invoice, error)
	ListPayments(ctx context.Context, orgID string, filter PaymentFilter) ([]*types.Payment, error)
}

// PurchaseResult is the invoice/payment pair a seat purchase opens.
type PurchaseResult struct {
	Invoice *types.Invoice `json:"invoice"`
	Payment *types.Payment `json:"payment"`
}

// SubscriptionReader is the slice of the subscription repository billing
// needs for pricing. Declared here to keep the dependency direction one-way.
type SubscriptionReader interface {
	Get(ctx context.Context, orgID string) (*types.Subscription, error)
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger        *slog.Logger
	repo          Repository
	subscriptions SubscriptionReader
}

// NewService creates a new billing service instance.
func NewService(repo Repository, subscriptions SubscriptionReader, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:        logger,
		repo:          repo,
		subscriptions: subscriptions,
	}
}

// AddPaidSeats opens an invoice for additional paid seats at the
// subscription's current per-seat price.
func (s *ServiceImpl) AddPaidSeats(ctx context.Context, orgID string, qty int, method string, actor types.Actor) (*PurchaseResult, error) {
	return s.addSeats(ctx, orgID, types.SeatPaid, qty, method, actor)
}

// AddSponsoredSeats opens an invoice for additional sponsored seats.
func (s *ServiceImpl) AddSponsoredSeats(ctx context.Context, orgID string, qty int, method string, actor types.Actor) (*PurchaseResult, error) {
	return s.addSeats(ctx, orgID, types.SeatSponsored, qty, method, actor)
}

func (s *ServiceImpl) addSeats(ctx context.Context, orgID string, seatType types.SeatType, qty int, method string, actor types.Actor) (*PurchaseResult, error) {
	ctx, span := otel.Tracer("billingService").Start(ctx, "AddSeats", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("seat.type", string(seatType)),
		attribute.Int("seat.qty", qty),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "AddSeats"),
		slog.String("orgID", orgID), slog.String("seatType", string(seatType)), slog.Int("qty", qty))

	if qty <= 0 {
		err := fmt.Errorf("seat quantity must be positive, got %d: %w", qty, types.ErrBadRequest)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid seat quantity")
		return nil, err
	}

	sub, err := s.subscriptions.Get(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Subscription not found")
		return nil, err
	}

	now := time.Now().UTC()
	amount, items := types.SeatPurchaseAmount(sub, seatType, qty)
	periodStart, periodEnd := types.MonthPeriod(now)

	invoice := &types.Invoice{
		ID:            uuid.New(),
		OrgID:         orgID,
		Status:        types.InvoiceUnpaid,
		Purpose:       types.PurposeSeatPurchase,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Amount:        amount,
		Currency:      sub.Currency,
		LineItems:     items,
		PaymentMethod: method,
		SeatType:      seatType,
		Quantity:      qty,
		CreatedAt:     now,
	}
	payment := &types.Payment{
		ID:        uuid.New(),
		OrgID:     orgID,
		InvoiceID: invoice.ID,
		Amount:    amount,
		Method:    method,
		Status:    types.PaymentPending,
		CreatedAt: now,
	}

	err = s.repo.CreateInvoicePair(ctx, invoice, payment, false, actor)
	observability.ObserveBillingOp("add_seats", err)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create seat purchase invoice", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create seat purchase invoice")
		return nil, err
	}

	l.InfoContext(ctx, "Seat purchase invoice created",
		slog.String("invoiceID", invoice.ID.String()), slog.Int64("amount", amount))
	span.SetStatus(codes.Ok, "Seat purchase invoice created")
	return &PurchaseResult{Invoice: invoice, Payment: payment}, nil
}

// CreatePlanChangeInvoice opens an invoice for a paid plan change. The
// subscription moves to past_due and keeps its current plan until the
// payment is confirmed.
func (s *ServiceImpl) CreatePlanChangeInvoice(ctx context.Context, orgID string, tmpl *types.PlanTemplate, cycle types.BillingCycle, seats types.SeatTotals, method string, actor types.Actor) (*types.Invoice, *types.Payment, error) {
	ctx, span := otel.Tracer("billingService").Start(ctx, "CreatePlanChangeInvoice", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("plan.id", tmpl.ID),
		attribute.String("billing.cycle", string(cycle)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CreatePlanChangeInvoice"),
		slog.String("orgID", orgID), slog.String("planID", tmpl.ID))

	now := time.Now().UTC()
	amount, items := types.PlanChangeAmount(tmpl, cycle, seats)
	periodStart, _ := types.MonthPeriod(now)
	periodEnd := types.NextRenewal(periodStart, cycle)

	targetPlanID := tmpl.ID
	targetCycle := cycle
	targetSeats := seats
	invoice := &types.Invoice{
		ID:                 uuid.New(),
		OrgID:              orgID,
		Status:             types.InvoiceUnpaid,
		Purpose:            types.PurposePlanChange,
		PeriodStart:        periodStart,
		PeriodEnd:          periodEnd,
		Amount:             amount,
		Currency:           tmpl.Currency,
		LineItems:          items,
		PaymentMethod:      method,
		SeatType:           types.SeatNone,
		TargetPlanID:       &targetPlanID,
		TargetBillingCycle: &targetCycle,
		TargetSeats:        &targetSeats,
		CreatedAt:          now,
	}
	payment := &types.Payment{
		ID:        uuid.New(),
		OrgID:     orgID,
		InvoiceID: invoice.ID,
		Amount:    amount,
		Method:    method,
		Status:    types.PaymentPending,
		CreatedAt: now,
	}

	err := s.repo.CreateInvoicePair(ctx, invoice, payment, true, actor)
	observability.ObserveBillingOp("create_plan_change_invoice", err)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create plan-change invoice", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create plan-change invoice")
		return nil, nil, err
	}

	l.InfoContext(ctx, "Plan-change invoice created",
		slog.String("invoiceID", invoice.ID.String()), slog.Int64("amount", amount))
	span.SetStatus(codes.Ok, "Plan-change invoice created")
	return invoice, payment, nil
}

// ConfirmPayment marks a payment confirmed and applies what the invoice
// bought. Replaying a confirmation is harmless.
func (s *ServiceImpl) ConfirmPayment(ctx context.Context, orgID string, invoiceID, paymentID uuid.UUID, externalRef string, actor types.Actor) (*ConfirmResult, error) {
	ctx, span := otel.Tracer("billingService").Start(ctx, "ConfirmPayment", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("invoice.id", invoiceID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ConfirmPayment"),
		slog.String("orgID", orgID), slog.String("invoiceID", invoiceID.String()))

	result, err := s.repo.ConfirmPayment(ctx, orgID, invoiceID, paymentID, externalRef, actor)
	observability.ObserveBillingOp("confirm_payment", err)
	if err != nil {
		l.ErrorContext(ctx, "Failed to confirm payment", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to confirm payment")
		return nil, err
	}

	if result.AlreadyPaid {
		span.SetStatus(codes.Ok, "Payment already confirmed")
		return result, nil
	}
	l.InfoContext(ctx, "Payment confirmed",
		slog.String("purpose", string(result.Invoice.Purpose)), slog.Int64("amount", result.Invoice.Amount))
	span.SetStatus(codes.Ok, "Payment confirmed")
	return result, nil
}

// GetInvoice returns one invoice.
func (s *ServiceImpl) GetInvoice(ctx context.Context, orgID string, invoiceID uuid.UUID) (*types.Invoice, error) {
	ctx, span := otel.Tracer("billingService").Start(ctx, "GetInvoice", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	invoice, err := s.repo.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get invoice")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Invoice fetched successfully")
	return invoice, nil
}

// ListInvoices returns an org's invoices.
func (s *ServiceImpl) ListInvoices(ctx context.Context, orgID string, filter InvoiceFilter) ([]*types.Invoice, error) {
	ctx, span := otel.Tracer("billingService").Start(ctx, "ListInvoices", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	invoices, err := s.repo.ListInvoices(ctx, orgID, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list invoices")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Invoices listed successfully")
	return invoices, nil
}

// ListPayments returns an org's payments.
func (s *ServiceImpl) ListPayments(ctx context.Context, orgID string, filter PaymentFilter) ([]*types.Payment, error) {
	ctx, span := otel.Tracer("billingService").Start(ctx, "ListPayments", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	payments, err := s.repo.ListPayments(ctx, orgID, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list payments")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Payments listed successfully")
	return payments, nil
}
