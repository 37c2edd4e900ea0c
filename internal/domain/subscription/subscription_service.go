package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrocoop/billing-api/internal/domain/catalog"
	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/observability"
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for subscription lifecycle
// operations.
type Service interface {
	EnsureOrgSubscription(ctx context.Context, orgID string, actor types.Actor) (*EnsureResult, error)
	BootstrapOrgBilling(ctx context.Context, orgID string, actor types.Actor) (*EnsureResult, error)
	GetOrgSubscription(ctx context.Context, orgID string) (*types.Subscription, error)
	UpdatePlan(ctx context.Context, orgID, planID string, actor types.Actor) (*types.Subscription, error)
	ApplyPlanTemplate(ctx context.Context, orgID string, req ApplyPlanRequest, actor types.Actor) (*ApplyPlanResult, error)
	GetBillingSettings(ctx context.Context, orgID string) (*types.BillingSettings, error)
	UpdateBillingSettings(ctx context.Context, orgID string, staffCanManage, autoUnassign bool) (*types.BillingSettings, error)
}

// ApplyPlanRequest selects the target plan, cycle, and seat counts.
type ApplyPlanRequest struct {
	PlanID         string             `json:"planId"`
	BillingCycle   types.BillingCycle `json:"billingCycle"`
	Seats          types.SeatTotals   `json:"seats"`
	ResetOverrides bool               `json:"resetOverrides"`
	PaymentMethod  string             `json:"paymentMethod"`
}

// ApplyPlanResult either carries the mutated subscription (free plans) or
// the invoice/payment pair awaiting confirmation (paid plans).
type ApplyPlanResult struct {
	RequiresPayment bool                `json:"requiresPayment"`
	Subscription    *types.Subscription `json:"subscription,omitempty"`
	InvoiceID       uuid.UUID           `json:"invoiceId,omitempty"`
	PaymentID       uuid.UUID           `json:"paymentId,omitempty"`
	Amount          int64               `json:"amount,omitempty"`
	Currency        string              `json:"currency,omitempty"`
}

// Invoicer is the billing collaborator that opens a plan-change invoice.
// Satisfied by the billing service; declared here to keep the dependency
// direction one-way.
type Invoicer interface {
	CreatePlanChangeInvoice(ctx context.Context, orgID string, tmpl *types.PlanTemplate, cycle types.BillingCycle, seats types.SeatTotals, method string, actor types.Actor) (*types.Invoice, *types.Payment, error)
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger   *slog.Logger
	repo     Repository
	catalog  catalog.Service
	invoices Invoicer
}

// NewService creates a new subscription service instance.
func NewService(repo Repository, catalogSvc catalog.Service, invoices Invoicer, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		catalog:  catalogSvc,
		invoices: invoices,
	}
}

// EnsureOrgSubscription lazily initializes an org's billing state and expires
// overdue trials. Safe to call on every billing page load.
func (s *ServiceImpl) EnsureOrgSubscription(ctx context.Context, orgID string, actor types.Actor) (*EnsureResult, error) {
	ctx, span := otel.Tracer("subscriptionService").Start(ctx, "EnsureOrgSubscription", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "EnsureOrgSubscription"), slog.String("orgID", orgID))
	l.DebugContext(ctx, "Ensuring org subscription")

	result, err := s.repo.Ensure(ctx, orgID, actor)
	observability.ObserveBillingOp("ensure_subscription", err)
	if err != nil {
		l.ErrorContext(ctx, "Failed to ensure subscription", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to ensure subscription")
		return nil, fmt.Errorf("error ensuring subscription: %w", err)
	}

	if result.Created {
		l.InfoContext(ctx, "Trial subscription created")
	}
	if result.Expired {
		l.InfoContext(ctx, "Trial expired, subscription paused")
	}
	span.SetStatus(codes.Ok, "Subscription ensured successfully")
	return result, nil
}

// BootstrapOrgBilling seeds the plan catalog and then ensures the org's
// subscription exists.
func (s *ServiceImpl) BootstrapOrgBilling(ctx context.Context, orgID string, actor types.Actor) (*EnsureResult, error) {
	ctx, span := otel.Tracer("subscriptionService").Start(ctx, "BootstrapOrgBilling", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	if _, err := s.catalog.SeedPlanTemplates(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to seed plan templates")
		return nil, err
	}
	result, err := s.EnsureOrgSubscription(ctx, orgID, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to ensure subscription")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Org billing bootstrapped successfully")
	return result, nil
}

// GetOrgSubscription returns the current subscription. Display only; may be
// slightly stale relative to in-flight transactions.
func (s *ServiceImpl) GetOrgSubscription(ctx context.Context, orgID string) (*types.Subscription, error) {
	ctx, span := otel.Tracer("subscriptionService").Start(ctx, "GetOrgSubscription", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	sub, err := s.repo.Get(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get subscription")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Subscription fetched successfully")
	return sub, nil
}

// UpdatePlan switches the org directly to a built-in plan's defaults,
// activating it without payment. Used for non-monetary plan resets.
func (s *ServiceImpl) UpdatePlan(ctx context.Context, orgID, planID string, actor types.Actor) (*types.Subscription, error) {
	ctx, span := otel.Tracer("subscriptionService").Start(ctx, "UpdatePlan", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("plan.id", planID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "UpdatePlan"), slog.String("orgID", orgID), slog.String("planID", planID))

	tmpl, ok := catalog.BuiltinTemplate(planID)
	if !ok {
		err := fmt.Errorf("plan %s is not a built-in plan: %w", planID, types.ErrNotFound)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unknown built-in plan")
		return nil, err
	}

	patch := types.BuildPlanPatch(tmpl, types.CycleMonthly, tmpl.DefaultSeats, nil, true)
	sub, err := s.repo.UpdatePlan(ctx, orgID, patch, actor)
	observability.ObserveBillingOp("update_plan", err)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update plan", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update plan")
		return nil, err
	}

	l.InfoContext(ctx, "Plan updated")
	span.SetStatus(codes.Ok, "Plan updated successfully")
	return sub, nil
}

// ApplyPlanTemplate is the general plan-change entry point. Free templates
// apply immediately; paid templates open an invoice and leave the
// subscription untouched until the payment is confirmed.
func (s *ServiceImpl) ApplyPlanTemplate(ctx context.Context, orgID string, req ApplyPlanRequest, actor types.Actor) (*ApplyPlanResult, error) {
	ctx, span := otel.Tracer("subscriptionService").Start(ctx, "ApplyPlanTemplate", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("plan.id", req.PlanID),
		attribute.String("billing.cycle", string(req.BillingCycle)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ApplyPlanTemplate"),
		slog.String("orgID", orgID), slog.String("planID", req.PlanID))
	l.DebugContext(ctx, "Applying plan template")

	tmpl, err := s.catalog.GetPlanTemplate(ctx, req.PlanID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Plan template not found")
		return nil, err
	}

	cycle := req.BillingCycle
	if cycle != types.CycleAnnual {
		cycle = types.CycleMonthly
	}
	seats := req.Seats
	if seats.IsZero() {
		seats = tmpl.DefaultSeats
	}

	if tmpl.IsFree() {
		prior, err := s.repo.Get(ctx, orgID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Subscription not found")
			return nil, err
		}
		patch := types.BuildPlanPatch(tmpl, cycle, seats, prior, req.ResetOverrides)
		sub, err := s.repo.ApplyTemplate(ctx, orgID, patch, actor)
		observability.ObserveBillingOp("apply_plan_free", err)
		if err != nil {
			l.ErrorContext(ctx, "Failed to apply free plan", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to apply free plan")
			return nil, err
		}
		l.InfoContext(ctx, "Free plan applied")
		span.SetStatus(codes.Ok, "Plan applied successfully")
		return &ApplyPlanResult{Subscription: sub}, nil
	}

	invoice, payment, err := s.invoices.CreatePlanChangeInvoice(ctx, orgID, tmpl, cycle, seats, req.PaymentMethod, actor)
	observability.ObserveBillingOp("apply_plan_paid", err)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create plan-change invoice", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create plan-change invoice")
		return nil, err
	}

	l.InfoContext(ctx, "Plan change awaiting payment",
		slog.String("invoiceID", invoice.ID.String()), slog.Int64("amount", invoice.Amount))
	span.SetStatus(codes.Ok, "Plan change invoice created")
	return &ApplyPlanResult{
		RequiresPayment: true,
		InvoiceID:       invoice.ID,
		PaymentID:       payment.ID,
		Amount:          invoice.Amount,
		Currency:        invoice.Currency,
	}, nil
}

// GetBillingSettings returns the org's billing settings.
func (s *ServiceImpl) GetBillingSettings(ctx context.Context, orgID string) (*types.BillingSettings, error) {
	ctx, span := otel.Tracer("subscriptionService").Start(ctx, "GetBillingSettings", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	settings, err := s.repo.GetSettings(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get billing settings")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Billing settings fetched successfully")
	return settings, nil
}

// UpdateBillingSettings writes the org's billing toggles.
func (s *ServiceImpl) UpdateBillingSettings(ctx context.Context, orgID string, staffCanManage, autoUnassign bool) (*types.BillingSettings, error) {
	ctx, span := otel.Tracer("subscriptionService").Start(ctx, "UpdateBillingSettings", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	settings := &types.BillingSettings{
		OrgID:                         orgID,
		StaffCanManageBilling:         staffCanManage,
		AutoUnassignSeatsOnSuspension: autoUnassign,
	}
	if err := s.repo.UpsertSettings(ctx, settings); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update billing settings")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Billing settings updated successfully")
	return s.repo.GetSettings(ctx, orgID)
}
