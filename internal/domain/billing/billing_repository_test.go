package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrocoop/billing-api/internal/domain/ledger"
	"github.com/agrocoop/billing-api/internal/types"
)

func setupBillingRepoTest(t *testing.T) (*RepositoryImpl, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerRepo := ledger.NewRepository(mockPool, logger)
	return NewRepository(mockPool, ledgerRepo, logger), mockPool
}

// closeTo matches a time argument within a minute of the expected instant.
type closeTo struct {
	want time.Time
}

func (m closeTo) Match(v any) bool {
	ts, ok := v.(time.Time)
	if !ok {
		return false
	}
	d := ts.Sub(m.want)
	if d < 0 {
		d = -d
	}
	return d < time.Minute
}

var invoiceTestColumns = []string{"id", "org_id", "status", "purpose", "period_start", "period_end",
	"amount", "currency", "line_items", "payment_method", "seat_type", "quantity",
	"target_plan_id", "target_billing_cycle", "target_paid_seats", "target_sponsored_seats",
	"created_at", "paid_at"}

var paymentTestColumns = []string{"id", "org_id", "invoice_id", "amount", "method", "status",
	"external_ref", "created_at", "confirmed_at"}

var subscriptionTestColumns = []string{"org_id", "plan_id", "status", "started_at", "trial_ends_at",
	"renew_at", "cancel_at", "billing_cycle", "currency", "exchange_rate",
	"seat_price", "sponsored_seat_price", "features", "paid_seats_total", "sponsored_seats_total",
	"max_members", "max_tracked_markets", "template_id", "overrides", "created_at", "updated_at"}

var templateTestColumns = []string{"id", "display_name", "currency",
	"monthly_seat_price", "monthly_sponsored_price",
	"annual_seat_price", "annual_sponsored_price", "annual_discount_pct",
	"default_paid_seats", "default_sponsored_seats",
	"features", "max_members", "max_tracked_markets",
	"is_public", "display_rank", "created_at", "updated_at"}

func invoiceTestRow(inv *types.Invoice) *pgxmock.Rows {
	var targetPaid, targetSpons *int
	if inv.TargetSeats != nil {
		targetPaid = &inv.TargetSeats.PaidTotal
		targetSpons = &inv.TargetSeats.SponsoredTotal
	}
	return pgxmock.NewRows(invoiceTestColumns).AddRow(
		inv.ID, inv.OrgID, inv.Status, inv.Purpose, inv.PeriodStart, inv.PeriodEnd,
		inv.Amount, inv.Currency, []byte(nil), inv.PaymentMethod, inv.SeatType, inv.Quantity,
		inv.TargetPlanID, inv.TargetBillingCycle, targetPaid, targetSpons,
		inv.CreatedAt, inv.PaidAt,
	)
}

func paymentTestRow(pay *types.Payment) *pgxmock.Rows {
	return pgxmock.NewRows(paymentTestColumns).AddRow(
		pay.ID, pay.OrgID, pay.InvoiceID, pay.Amount, pay.Method, pay.Status,
		pay.ExternalRef, pay.CreatedAt, pay.ConfirmedAt,
	)
}

func subscriptionTestRow(cycle types.BillingCycle, paidTotal, sponsoredTotal int, renewAt time.Time) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(subscriptionTestColumns).AddRow(
		"org-1", "coop_basic", types.StatusActive, now, (*time.Time)(nil),
		&renewAt, (*time.Time)(nil), cycle, "KES", 1.0,
		int64(300), int64(200), []byte(nil), paidTotal, sponsoredTotal,
		0, 0, (*string)(nil), []byte(nil), now, now,
	)
}

func TestBillingRepositoryImpl_ConfirmPayment(t *testing.T) {
	ctx := context.Background()
	actor := types.Actor{ID: "admin-1"}
	invoiceID := uuid.New()
	paymentID := uuid.New()

	t.Run("replaying a paid invoice writes nothing", func(t *testing.T) {
		repo, mockPool := setupBillingRepoTest(t)
		now := time.Now().UTC()
		paidAt := now.Add(-time.Hour)
		invoice := &types.Invoice{
			ID: invoiceID, OrgID: "org-1", Status: types.InvoicePaid, Purpose: types.PurposeSeatPurchase,
			Amount: 1200, Currency: "KES", SeatType: types.SeatPaid, Quantity: 4,
			CreatedAt: now.Add(-2 * time.Hour), PaidAt: &paidAt,
		}
		confirmedAt := paidAt
		payment := &types.Payment{
			ID: paymentID, OrgID: "org-1", InvoiceID: invoiceID, Amount: 1200, Method: "mpesa",
			Status: types.PaymentConfirmed, ExternalRef: "MPESA-123",
			CreatedAt: invoice.CreatedAt, ConfirmedAt: &confirmedAt,
		}

		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		mockPool.ExpectQuery("SELECT .+ FROM invoices").
			WithArgs("org-1", invoiceID).WillReturnRows(invoiceTestRow(invoice))
		mockPool.ExpectQuery("SELECT .+ FROM payments").
			WithArgs("org-1", paymentID).WillReturnRows(paymentTestRow(payment))
		mockPool.ExpectQuery("SELECT .+ FROM org_subscriptions").
			WithArgs("org-1").WillReturnRows(subscriptionTestRow(types.CycleMonthly, 14, 5, now.AddDate(0, 1, 0)))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback()

		result, err := repo.ConfirmPayment(ctx, "org-1", invoiceID, paymentID, "MPESA-123", actor)
		require.NoError(t, err)
		assert.True(t, result.AlreadyPaid)
		assert.Equal(t, types.InvoicePaid, result.Invoice.Status)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("seat purchase on an annual cycle renews one year out", func(t *testing.T) {
		repo, mockPool := setupBillingRepoTest(t)
		now := time.Now().UTC()
		invoice := &types.Invoice{
			ID: invoiceID, OrgID: "org-1", Status: types.InvoiceUnpaid, Purpose: types.PurposeSeatPurchase,
			Amount: 1200, Currency: "KES", SeatType: types.SeatPaid, Quantity: 4,
			CreatedAt: now,
		}
		payment := &types.Payment{
			ID: paymentID, OrgID: "org-1", InvoiceID: invoiceID, Amount: 1200, Method: "mpesa",
			Status: types.PaymentPending, CreatedAt: now,
		}

		paidDelta, sponsoredDelta := 4, 0
		paidUsed, paidTotal, sponsoredUsed, sponsoredTotal := 6, 14, 2, 5

		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		mockPool.ExpectQuery("SELECT .+ FROM invoices").
			WithArgs("org-1", invoiceID).WillReturnRows(invoiceTestRow(invoice))
		mockPool.ExpectQuery("SELECT .+ FROM payments").
			WithArgs("org-1", paymentID).WillReturnRows(paymentTestRow(payment))
		mockPool.ExpectQuery("SELECT .+ FROM org_subscriptions").
			WithArgs("org-1").WillReturnRows(subscriptionTestRow(types.CycleAnnual, 10, 5, now))
		mockPool.ExpectQuery("UPDATE org_subscriptions").
			WithArgs("org-1", 4, 0, types.StatusActive, closeTo{want: now.AddDate(1, 0, 0)}, pgxmock.AnyArg()).
			WillReturnRows(subscriptionTestRow(types.CycleAnnual, 14, 5, now.AddDate(1, 0, 0)))
		mockPool.ExpectExec("UPDATE invoices").
			WithArgs("org-1", invoiceID, types.InvoicePaid, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec("UPDATE payments").
			WithArgs("org-1", paymentID, types.PaymentConfirmed, "MPESA-123", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectQuery("SELECT COUNT.+ FROM members").
			WithArgs("org-1").
			WillReturnRows(pgxmock.NewRows([]string{"paid", "sponsored"}).AddRow(paidUsed, sponsoredUsed))
		mockPool.ExpectExec("INSERT INTO billing_ledger").
			WithArgs(pgxmock.AnyArg(), "org-1", types.EventPaymentMarkedPaid, "admin-1", "",
				(*uuid.UUID)(nil), &paidDelta, &sponsoredDelta, &paidUsed, &paidTotal,
				&sponsoredUsed, &sponsoredTotal, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("INSERT INTO billing_ledger").
			WithArgs(pgxmock.AnyArg(), "org-1", types.EventPaidSeatPurchased, "admin-1", "",
				(*uuid.UUID)(nil), &paidDelta, &sponsoredDelta, &paidUsed, &paidTotal,
				&sponsoredUsed, &sponsoredTotal, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback()

		result, err := repo.ConfirmPayment(ctx, "org-1", invoiceID, paymentID, "MPESA-123", actor)
		require.NoError(t, err)
		assert.False(t, result.AlreadyPaid)
		assert.Equal(t, types.InvoicePaid, result.Invoice.Status)
		assert.Equal(t, types.PaymentConfirmed, result.Payment.Status)
		assert.Equal(t, 14, result.Subscription.Seats.PaidTotal)
		require.NotNil(t, result.Subscription.RenewAt)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("plan change applies the template's current version", func(t *testing.T) {
		repo, mockPool := setupBillingRepoTest(t)
		now := time.Now().UTC()
		targetPlan := "coop_basic"
		targetCycle := types.CycleMonthly
		invoice := &types.Invoice{
			ID: invoiceID, OrgID: "org-1", Status: types.InvoiceUnpaid, Purpose: types.PurposePlanChange,
			Amount: 7000, Currency: "KES", SeatType: types.SeatNone,
			TargetPlanID: &targetPlan, TargetBillingCycle: &targetCycle,
			TargetSeats: &types.SeatTotals{PaidTotal: 20, SponsoredTotal: 5},
			CreatedAt:   now,
		}
		payment := &types.Payment{
			ID: paymentID, OrgID: "org-1", InvoiceID: invoiceID, Amount: 7000, Method: "mpesa",
			Status: types.PaymentPending, CreatedAt: now,
		}

		paidDelta, sponsoredDelta := 10, 0
		paidUsed, paidTotal, sponsoredUsed, sponsoredTotal := 6, 20, 2, 5

		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		mockPool.ExpectQuery("SELECT .+ FROM invoices").
			WithArgs("org-1", invoiceID).WillReturnRows(invoiceTestRow(invoice))
		mockPool.ExpectQuery("SELECT .+ FROM payments").
			WithArgs("org-1", paymentID).WillReturnRows(paymentTestRow(payment))
		mockPool.ExpectQuery("SELECT .+ FROM org_subscriptions").
			WithArgs("org-1").WillReturnRows(subscriptionTestRow(types.CycleMonthly, 10, 5, now))
		// The template was repriced to 350 after the invoice was issued; the
		// confirm applies the current version.
		mockPool.ExpectQuery("SELECT .+ FROM plan_templates").
			WithArgs("coop_basic").
			WillReturnRows(pgxmock.NewRows(templateTestColumns).AddRow(
				"coop_basic", "Co-op Basic", "KES",
				int64(350), int64(200), int64(3780), int64(2160), 10,
				10, 5, []byte(nil), 0, 0, true, 2, now, now,
			))
		mockPool.ExpectQuery("UPDATE org_subscriptions").
			WithArgs("org-1", "coop_basic", types.StatusActive, types.CycleMonthly, "KES",
				int64(350), int64(200), pgxmock.AnyArg(), 20, 5,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				closeTo{want: now.AddDate(0, 1, 0)}, pgxmock.AnyArg()).
			WillReturnRows(subscriptionTestRow(types.CycleMonthly, 20, 5, now.AddDate(0, 1, 0)))
		mockPool.ExpectExec("UPDATE invoices").
			WithArgs("org-1", invoiceID, types.InvoicePaid, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec("UPDATE payments").
			WithArgs("org-1", paymentID, types.PaymentConfirmed, "MPESA-456", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectQuery("SELECT COUNT.+ FROM members").
			WithArgs("org-1").
			WillReturnRows(pgxmock.NewRows([]string{"paid", "sponsored"}).AddRow(paidUsed, sponsoredUsed))
		mockPool.ExpectExec("INSERT INTO billing_ledger").
			WithArgs(pgxmock.AnyArg(), "org-1", types.EventPaymentMarkedPaid, "admin-1", "",
				(*uuid.UUID)(nil), &paidDelta, &sponsoredDelta, &paidUsed, &paidTotal,
				&sponsoredUsed, &sponsoredTotal, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("INSERT INTO billing_ledger").
			WithArgs(pgxmock.AnyArg(), "org-1", types.EventPlanChanged, "admin-1", "",
				(*uuid.UUID)(nil), &paidDelta, &sponsoredDelta, &paidUsed, &paidTotal,
				&sponsoredUsed, &sponsoredTotal, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback()

		result, err := repo.ConfirmPayment(ctx, "org-1", invoiceID, paymentID, "MPESA-456", actor)
		require.NoError(t, err)
		assert.False(t, result.AlreadyPaid)
		assert.Equal(t, 20, result.Subscription.Seats.PaidTotal)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}
