package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agrocoop/billing-api/internal/domain/catalog"
	"github.com/agrocoop/billing-api/internal/domain/ledger"
	"github.com/agrocoop/billing-api/internal/domain/subscription"
	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository defines storage access for invoices and payments.
type Repository interface {
	// CreateInvoicePair inserts an invoice and its pending payment atomically.
	// markPastDue additionally moves the subscription to past_due, which is
	// how a pending plan change is parked until confirmation.
	CreateInvoicePair(ctx context.Context, invoice *types.Invoice, payment *types.Payment, markPastDue bool, actor types.Actor) error
	// ConfirmPayment applies everything a paid invoice unlocks in one
	// transaction. Confirming an already-paid invoice is a no-op.
	ConfirmPayment(ctx context.Context, orgID string, invoiceID, paymentID uuid.UUID, externalRef string, actor types.Actor) (*ConfirmResult, error)
	GetInvoice(ctx context.Context, orgID string, invoiceID uuid.UUID) (*types.Invoice, error)
	ListInvoices(ctx context.Context, orgID string, filter InvoiceFilter) ([]*types.Invoice, error)
	ListPayments(ctx context.Context, orgID string, filter PaymentFilter) ([]*types.Payment, error)
}

// InvoiceFilter narrows an invoice listing.
type InvoiceFilter struct {
	Status  types.InvoiceStatus
	Purpose types.InvoicePurpose
	Limit   int
}

// PaymentFilter narrows a payment listing.
type PaymentFilter struct {
	Status types.PaymentStatus
	Limit  int
}

// ConfirmResult is the state after a payment confirmation. AlreadyPaid marks
// the idempotent replay, where nothing was written.
type ConfirmResult struct {
	Invoice      *types.Invoice      `json:"invoice"`
	Payment      *types.Payment      `json:"payment"`
	Subscription *types.Subscription `json:"subscription"`
	AlreadyPaid  bool                `json:"alreadyPaid"`
}

// RepositoryImpl struct holds the logger and database connection pool
type RepositoryImpl struct {
	logger *slog.Logger
	pgpool db.Pool
	ledger ledger.Repository
}

func NewRepository(pgpool db.Pool, ledgerRepo ledger.Repository, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
		ledger: ledgerRepo,
	}
}

const invoiceColumns = `id, org_id, status, purpose, period_start, period_end, amount, currency,
               line_items, payment_method, seat_type, quantity,
               target_plan_id, target_billing_cycle, target_paid_seats, target_sponsored_seats,
               created_at, paid_at`

const selectInvoiceByID = `
        SELECT id, org_id, status, purpose, period_start, period_end, amount, currency,
               line_items, payment_method, seat_type, quantity,
               target_plan_id, target_billing_cycle, target_paid_seats, target_sponsored_seats,
               created_at, paid_at
        FROM invoices
        WHERE org_id = $1 AND id = $2
    `

const selectPaymentByID = `
        SELECT id, org_id, invoice_id, amount, method, status, external_ref, created_at, confirmed_at
        FROM payments
        WHERE org_id = $1 AND id = $2
    `

// scanInvoice decodes one invoices row.
func scanInvoice(row pgx.Row) (*types.Invoice, error) {
	var (
		invoice       types.Invoice
		lineItemsJSON []byte
		targetPaid    *int
		targetSpons   *int
	)
	err := row.Scan(
		&invoice.ID, &invoice.OrgID, &invoice.Status, &invoice.Purpose,
		&invoice.PeriodStart, &invoice.PeriodEnd, &invoice.Amount, &invoice.Currency,
		&lineItemsJSON, &invoice.PaymentMethod, &invoice.SeatType, &invoice.Quantity,
		&invoice.TargetPlanID, &invoice.TargetBillingCycle, &targetPaid, &targetSpons,
		&invoice.CreatedAt, &invoice.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	if len(lineItemsJSON) > 0 {
		if err := json.Unmarshal(lineItemsJSON, &invoice.LineItems); err != nil {
			return nil, fmt.Errorf("failed to decode invoice line items: %w", err)
		}
	}
	if targetPaid != nil && targetSpons != nil {
		invoice.TargetSeats = &types.SeatTotals{PaidTotal: *targetPaid, SponsoredTotal: *targetSpons}
	}
	return &invoice, nil
}

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var payment types.Payment
	err := row.Scan(
		&payment.ID, &payment.OrgID, &payment.InvoiceID, &payment.Amount, &payment.Method,
		&payment.Status, &payment.ExternalRef, &payment.CreatedAt, &payment.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

const insertInvoiceQuery = `
        INSERT INTO invoices (
            id, org_id, status, purpose, period_start, period_end, amount, currency,
            line_items, payment_method, seat_type, quantity,
            target_plan_id, target_billing_cycle, target_paid_seats, target_sponsored_seats,
            created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
        )
    `

const insertPaymentQuery = `
        INSERT INTO payments (id, org_id, invoice_id, amount, method, status, external_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

// CreateInvoicePair writes the invoice, its pending payment, and the ledger
// record in one transaction. Either all of it lands or none of it does.
func (r *RepositoryImpl) CreateInvoicePair(ctx context.Context, invoice *types.Invoice, payment *types.Payment, markPastDue bool, actor types.Actor) error {
	l := r.logger.With(slog.String("method", "CreateInvoicePair"),
		slog.String("orgID", invoice.OrgID), slog.String("purpose", string(invoice.Purpose)))

	err := db.RunInTx(ctx, r.pgpool, func(tx pgx.Tx) error {
		lineItemsJSON, err := json.Marshal(invoice.LineItems)
		if err != nil {
			return fmt.Errorf("failed to encode invoice line items: %w", err)
		}
		var targetPaid, targetSpons *int
		if invoice.TargetSeats != nil {
			targetPaid = &invoice.TargetSeats.PaidTotal
			targetSpons = &invoice.TargetSeats.SponsoredTotal
		}
		if _, err := tx.Exec(ctx, insertInvoiceQuery,
			invoice.ID, invoice.OrgID, invoice.Status, invoice.Purpose,
			invoice.PeriodStart, invoice.PeriodEnd, invoice.Amount, invoice.Currency,
			lineItemsJSON, invoice.PaymentMethod, invoice.SeatType, invoice.Quantity,
			invoice.TargetPlanID, invoice.TargetBillingCycle, targetPaid, targetSpons,
			invoice.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}

		if _, err := tx.Exec(ctx, insertPaymentQuery,
			payment.ID, payment.OrgID, payment.InvoiceID, payment.Amount, payment.Method,
			payment.Status, payment.ExternalRef, payment.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		if markPastDue {
			tag, err := tx.Exec(ctx, `
        UPDATE org_subscriptions SET status = $2, updated_at = $3 WHERE org_id = $1
    `, invoice.OrgID, types.StatusPastDue, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to mark subscription past due: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("subscription for org %s: %w", invoice.OrgID, types.ErrNotFound)
			}
		}

		return r.ledger.Append(ctx, tx, &types.LedgerEntry{
			OrgID:     invoice.OrgID,
			EventType: types.EventInvoiceCreated,
			Actor:     actor,
			Note:      fmt.Sprintf("invoice %s created (%s, %d %s)", invoice.ID, invoice.Purpose, invoice.Amount, invoice.Currency),
		})
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to create invoice pair", slog.Any("error", err))
		return err
	}
	return nil
}

// ConfirmPayment is the single money-to-entitlement transition. Everything a
// paid invoice unlocks is applied here, in one serializable transaction:
// invoice paid, payment confirmed, subscription activated with its new plan
// or enlarged seat pool, and both ledger records. A replay against an
// already-paid invoice changes nothing and reports AlreadyPaid.
func (r *RepositoryImpl) ConfirmPayment(ctx context.Context, orgID string, invoiceID, paymentID uuid.UUID, externalRef string, actor types.Actor) (*ConfirmResult, error) {
	l := r.logger.With(slog.String("method", "ConfirmPayment"),
		slog.String("orgID", orgID), slog.String("invoiceID", invoiceID.String()))

	var result ConfirmResult
	err := db.RunInTx(ctx, r.pgpool, func(tx pgx.Tx) error {
		invoice, err := scanInvoice(tx.QueryRow(ctx, selectInvoiceByID, orgID, invoiceID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("invoice %s: %w", invoiceID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to read invoice: %w", err)
		}

		payment, err := scanPayment(tx.QueryRow(ctx, selectPaymentByID, orgID, paymentID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("payment %s: %w", paymentID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to read payment: %w", err)
		}
		if payment.InvoiceID != invoice.ID {
			return fmt.Errorf("payment %s does not belong to invoice %s: %w", paymentID, invoiceID, types.ErrBadRequest)
		}

		sub, err := subscription.ScanSubscription(tx.QueryRow(ctx, subscription.SelectSubscriptionByOrg, orgID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("subscription for org %s: %w", orgID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to read subscription: %w", err)
		}

		if invoice.Status == types.InvoicePaid {
			result = ConfirmResult{Invoice: invoice, Payment: payment, Subscription: sub, AlreadyPaid: true}
			return nil
		}

		now := time.Now().UTC()
		before := sub.Seats

		switch invoice.Purpose {
		case types.PurposePlanChange:
			sub, err = r.applyPlanChange(ctx, tx, invoice, sub, now)
		case types.PurposeSeatPurchase:
			sub, err = r.applySeatPurchase(ctx, tx, invoice, sub, now)
		default:
			err = fmt.Errorf("invoice %s has unknown purpose %q: %w", invoiceID, invoice.Purpose, types.ErrBadRequest)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
        UPDATE invoices SET status = $3, paid_at = $4 WHERE org_id = $1 AND id = $2
    `, orgID, invoiceID, types.InvoicePaid, now); err != nil {
			return fmt.Errorf("failed to mark invoice paid: %w", err)
		}
		invoice.Status = types.InvoicePaid
		invoice.PaidAt = &now

		if _, err := tx.Exec(ctx, `
        UPDATE payments SET status = $3, external_ref = $4, confirmed_at = $5 WHERE org_id = $1 AND id = $2
    `, orgID, paymentID, types.PaymentConfirmed, externalRef, now); err != nil {
			return fmt.Errorf("failed to confirm payment: %w", err)
		}
		payment.Status = types.PaymentConfirmed
		payment.ExternalRef = externalRef
		payment.ConfirmedAt = &now

		snapshot, err := r.scanUsageSnapshot(ctx, tx, orgID, sub.Seats)
		if err != nil {
			return err
		}
		delta := types.SeatDelta{
			Paid:      sub.Seats.PaidTotal - before.PaidTotal,
			Sponsored: sub.Seats.SponsoredTotal - before.SponsoredTotal,
		}

		if err := r.ledger.Append(ctx, tx, &types.LedgerEntry{
			OrgID:     orgID,
			EventType: types.EventPaymentMarkedPaid,
			Actor:     actor,
			Delta:     &delta,
			Snapshot:  &snapshot,
			Note:      fmt.Sprintf("payment %s confirmed for invoice %s (%d %s)", paymentID, invoiceID, invoice.Amount, invoice.Currency),
		}); err != nil {
			return err
		}
		if err := r.ledger.Append(ctx, tx, &types.LedgerEntry{
			OrgID:     orgID,
			EventType: purposeEvent(invoice),
			Actor:     actor,
			Delta:     &delta,
			Snapshot:  &snapshot,
			Note:      purposeNote(invoice),
		}); err != nil {
			return err
		}

		result = ConfirmResult{Invoice: invoice, Payment: payment, Subscription: sub}
		return nil
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to confirm payment", slog.Any("error", err))
		return nil, err
	}
	if result.AlreadyPaid {
		l.InfoContext(ctx, "Payment confirmation replayed, no changes applied")
	}
	return &result, nil
}

const applyPlanChangeQuery = `
        UPDATE org_subscriptions
        SET plan_id = $2, status = $3, billing_cycle = $4, currency = $5,
            seat_price = $6, sponsored_seat_price = $7, features = $8,
            paid_seats_total = $9, sponsored_seats_total = $10,
            max_members = $11, max_tracked_markets = $12,
            template_id = $13, overrides = $14, renew_at = $15, updated_at = $16
        WHERE org_id = $1
        RETURNING org_id, plan_id, status, started_at, trial_ends_at, renew_at, cancel_at,
               billing_cycle, currency, exchange_rate, seat_price, sponsored_seat_price,
               features, paid_seats_total, sponsored_seats_total,
               max_members, max_tracked_markets, template_id, overrides,
               created_at, updated_at
    `

// applyPlanChange re-reads the target template inside the transaction and
// merges it onto the subscription, so a template edited between invoice
// creation and payment is applied at its current version.
func (r *RepositoryImpl) applyPlanChange(ctx context.Context, tx pgx.Tx, invoice *types.Invoice, sub *types.Subscription, now time.Time) (*types.Subscription, error) {
	if invoice.TargetPlanID == nil {
		return nil, fmt.Errorf("plan-change invoice %s has no target plan: %w", invoice.ID, types.ErrBadRequest)
	}
	tmpl, err := catalog.ScanTemplate(tx.QueryRow(ctx, catalog.SelectTemplateByID, *invoice.TargetPlanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("plan template %s: %w", *invoice.TargetPlanID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read plan template: %w", err)
	}

	cycle := types.CycleMonthly
	if invoice.TargetBillingCycle != nil {
		cycle = *invoice.TargetBillingCycle
	}
	seats := types.SeatTotals{}
	if invoice.TargetSeats != nil {
		seats = *invoice.TargetSeats
	}
	patch := types.BuildPlanPatch(tmpl, cycle, seats, sub, false)

	featuresJSON, err := json.Marshal(patch.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan features: %w", err)
	}
	var overridesJSON []byte
	if patch.Overrides != nil {
		overridesJSON, err = json.Marshal(patch.Overrides)
		if err != nil {
			return nil, fmt.Errorf("failed to encode plan overrides: %w", err)
		}
	}
	renewAt := types.NextRenewal(now, patch.BillingCycle)

	updated, err := subscription.ScanSubscription(tx.QueryRow(ctx, applyPlanChangeQuery,
		invoice.OrgID, patch.PlanID, types.StatusActive, patch.BillingCycle, patch.Currency,
		patch.SeatPrice, patch.SponsoredSeatPrice, featuresJSON,
		patch.Seats.PaidTotal, patch.Seats.SponsoredTotal,
		patch.Limits.MaxMembers, patch.Limits.MaxTrackedMarkets,
		patch.TemplateID, overridesJSON, renewAt, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to apply plan change: %w", err)
	}
	return updated, nil
}

const applySeatPurchaseQuery = `
        UPDATE org_subscriptions
        SET paid_seats_total = paid_seats_total + $2,
            sponsored_seats_total = sponsored_seats_total + $3,
            status = $4, renew_at = $5, updated_at = $6
        WHERE org_id = $1
        RETURNING org_id, plan_id, status, started_at, trial_ends_at, renew_at, cancel_at,
               billing_cycle, currency, exchange_rate, seat_price, sponsored_seat_price,
               features, paid_seats_total, sponsored_seats_total,
               max_members, max_tracked_markets, template_id, overrides,
               created_at, updated_at
    `

// applySeatPurchase grows the purchased pool by the invoice quantity. The
// renewal date advances by the subscription's own billing cycle; seat
// purchases never change the cycle.
func (r *RepositoryImpl) applySeatPurchase(ctx context.Context, tx pgx.Tx, invoice *types.Invoice, sub *types.Subscription, now time.Time) (*types.Subscription, error) {
	var paidQty, sponsoredQty int
	switch invoice.SeatType {
	case types.SeatPaid:
		paidQty = invoice.Quantity
	case types.SeatSponsored:
		sponsoredQty = invoice.Quantity
	default:
		return nil, fmt.Errorf("seat-purchase invoice %s has seat type %q: %w", invoice.ID, invoice.SeatType, types.ErrBadRequest)
	}
	if invoice.Quantity <= 0 {
		return nil, fmt.Errorf("seat-purchase invoice %s has quantity %d: %w", invoice.ID, invoice.Quantity, types.ErrBadRequest)
	}

	renewAt := types.NextRenewal(now, sub.BillingCycle)

	updated, err := subscription.ScanSubscription(tx.QueryRow(ctx, applySeatPurchaseQuery,
		invoice.OrgID, paidQty, sponsoredQty, types.StatusActive, renewAt, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription for org %s: %w", invoice.OrgID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to apply seat purchase: %w", err)
	}
	return updated, nil
}

func (r *RepositoryImpl) scanUsageSnapshot(ctx context.Context, tx pgx.Tx, orgID string, totals types.SeatTotals) (types.UsageSnapshot, error) {
	var snapshot types.UsageSnapshot
	err := tx.QueryRow(ctx, `
        SELECT COUNT(*) FILTER (WHERE seat_type = 'paid'),
               COUNT(*) FILTER (WHERE seat_type = 'sponsored')
        FROM members
        WHERE org_id = $1
    `, orgID).Scan(&snapshot.PaidUsed, &snapshot.SponsoredUsed)
	if err != nil {
		return types.UsageSnapshot{}, fmt.Errorf("failed to scan seat usage: %w", err)
	}
	snapshot.PaidTotal = totals.PaidTotal
	snapshot.SponsoredTotal = totals.SponsoredTotal
	return snapshot, nil
}

func purposeEvent(invoice *types.Invoice) types.LedgerEventType {
	if invoice.Purpose == types.PurposePlanChange {
		return types.EventPlanChanged
	}
	if invoice.SeatType == types.SeatSponsored {
		return types.EventSponsoredSeatAdded
	}
	return types.EventPaidSeatPurchased
}

func purposeNote(invoice *types.Invoice) string {
	if invoice.Purpose == types.PurposePlanChange {
		planID := ""
		if invoice.TargetPlanID != nil {
			planID = *invoice.TargetPlanID
		}
		return fmt.Sprintf("plan changed to %s via invoice %s", planID, invoice.ID)
	}
	return fmt.Sprintf("%d %s seats added via invoice %s", invoice.Quantity, invoice.SeatType, invoice.ID)
}

// GetInvoice retrieves one invoice scoped to an org.
func (r *RepositoryImpl) GetInvoice(ctx context.Context, orgID string, invoiceID uuid.UUID) (*types.Invoice, error) {
	invoice, err := scanInvoice(r.pgpool.QueryRow(ctx, selectInvoiceByID, orgID, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to get invoice", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// ListInvoices returns an org's invoices, newest first.
func (r *RepositoryImpl) ListInvoices(ctx context.Context, orgID string, filter InvoiceFilter) ([]*types.Invoice, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "org_id", "status", "purpose", "period_start", "period_end", "amount", "currency",
			"line_items", "payment_method", "seat_type", "quantity",
			"target_plan_id", "target_billing_cycle", "target_paid_seats", "target_sponsored_seats",
			"created_at", "paid_at").
		From("invoices").
		Where(sq.Eq{"org_id": orgID}).
		OrderBy("created_at DESC")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Purpose != "" {
		builder = builder.Where(sq.Eq{"purpose": filter.Purpose})
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build invoice query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list invoices", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*types.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan invoice", slog.Any("error", err))
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating invoice rows", slog.Any("error", err))
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}
	return invoices, nil
}

// ListPayments returns an org's payments, newest first.
func (r *RepositoryImpl) ListPayments(ctx context.Context, orgID string, filter PaymentFilter) ([]*types.Payment, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "org_id", "invoice_id", "amount", "method", "status", "external_ref", "created_at", "confirmed_at").
		From("payments").
		Where(sq.Eq{"org_id": orgID}).
		OrderBy("created_at DESC")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build payment query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list payments", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*types.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan payment", slog.Any("error", err))
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating payment rows", slog.Any("error", err))
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}
	return payments, nil
}
