package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agrocoop/billing-api/internal/domain/ledger"
	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository defines storage access for the per-org subscription singleton
// and billing settings.
type Repository interface {
	Get(ctx context.Context, orgID string) (*types.Subscription, error)
	// Ensure lazily creates the trial subscription and default settings, and
	// expires an overdue trial, all inside one transaction.
	Ensure(ctx context.Context, orgID string, actor types.Actor) (*EnsureResult, error)
	// ApplyTemplate merges a plan patch onto the subscription transactionally
	// and records a PLAN_CHANGED ledger event.
	ApplyTemplate(ctx context.Context, orgID string, patch types.PlanPatch, actor types.Actor) (*types.Subscription, error)
	// UpdatePlan is the direct, non-transactional plan reset.
	UpdatePlan(ctx context.Context, orgID string, patch types.PlanPatch, actor types.Actor) (*types.Subscription, error)
	GetSettings(ctx context.Context, orgID string) (*types.BillingSettings, error)
	UpsertSettings(ctx context.Context, settings *types.BillingSettings) error
	// ListAutoUnassignOrgs returns orgs that opted into the suspension sweep.
	ListAutoUnassignOrgs(ctx context.Context) ([]string, error)
}

// EnsureResult reports what the idempotent initializer did.
type EnsureResult struct {
	Subscription *types.Subscription `json:"subscription"`
	Created      bool                `json:"created"`
	Expired      bool                `json:"expired"`
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

// SelectSubscriptionByOrg is exported so transactional callers elsewhere can
// read the subscription inside their own transaction with ScanSubscription.
const SelectSubscriptionByOrg = `
        SELECT org_id, plan_id, status, started_at, trial_ends_at, renew_at, cancel_at,
               billing_cycle, currency, exchange_rate, seat_price, sponsored_seat_price,
               features, paid_seats_total, sponsored_seats_total,
               max_members, max_tracked_markets, template_id, overrides,
               created_at, updated_at
        FROM org_subscriptions
        WHERE org_id = $1
    `

// ScanSubscription decodes one org_subscriptions row.
func ScanSubscription(row pgx.Row) (*types.Subscription, error) {
	var (
		sub           types.Subscription
		featuresJSON  []byte
		overridesJSON []byte
	)
	err := row.Scan(
		&sub.OrgID, &sub.PlanID, &sub.Status, &sub.StartedAt, &sub.TrialEndsAt, &sub.RenewAt, &sub.CancelAt,
		&sub.BillingCycle, &sub.Currency, &sub.ExchangeRate, &sub.SeatPrice, &sub.SponsoredSeatPrice,
		&featuresJSON, &sub.Seats.PaidTotal, &sub.Seats.SponsoredTotal,
		&sub.Limits.MaxMembers, &sub.Limits.MaxTrackedMarkets, &sub.TemplateID, &overridesJSON,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Features = types.FeatureSet{}
	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &sub.Features); err != nil {
			return nil, fmt.Errorf("failed to decode subscription features: %w", err)
		}
	}
	if len(overridesJSON) > 0 {
		sub.Overrides = &types.SubscriptionOverrides{}
		if err := json.Unmarshal(overridesJSON, sub.Overrides); err != nil {
			return nil, fmt.Errorf("failed to decode subscription overrides: %w", err)
		}
	}
	return &sub, nil
}

// Get retrieves the subscription for an org.
func (r *RepositoryImpl) Get(ctx context.Context, orgID string) (*types.Subscription, error) {
	sub, err := ScanSubscription(r.pgpool.QueryRow(ctx, SelectSubscriptionByOrg, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription for org %s: %w", orgID, types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to get subscription", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

const insertSubscriptionQuery = `
        INSERT INTO org_subscriptions (
            org_id, plan_id, status, started_at, trial_ends_at, renew_at, cancel_at,
            billing_cycle, currency, exchange_rate, seat_price, sponsored_seat_price,
            features, paid_seats_total, sponsored_seats_total,
            max_members, max_tracked_markets, template_id, overrides,
            created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
        )
    `

const ensureSettingsQuery = `
        INSERT INTO org_billing_settings (org_id, staff_can_manage_billing, auto_unassign_on_suspension, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (org_id) DO NOTHING
    `

// Ensure lazily creates the trial subscription, expires an overdue trial,
// and guarantees a settings row, all in one serializable transaction.
func (r *RepositoryImpl) Ensure(ctx context.Context, orgID string, actor types.Actor) (*EnsureResult, error) {
	l := r.logger.With(slog.String("method", "Ensure"), slog.String("orgID", orgID))

	var result EnsureResult
	err := db.RunInTx(ctx, r.pgpool, func(tx pgx.Tx) error {
		result = EnsureResult{}
		now := time.Now().UTC()

		settings := defaultBillingSettings(orgID, now)
		if _, err := tx.Exec(ctx, ensureSettingsQuery,
			settings.OrgID, settings.StaffCanManageBilling, settings.AutoUnassignSeatsOnSuspension, settings.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to ensure billing settings: %w", err)
		}

		sub, err := ScanSubscription(tx.QueryRow(ctx, SelectSubscriptionByOrg, orgID))
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("failed to read subscription: %w", err)
			}
			sub = newTrialSubscription(orgID, now)
			featuresJSON, err := json.Marshal(sub.Features)
			if err != nil {
				return fmt.Errorf("failed to encode subscription features: %w", err)
			}
			if _, err := tx.Exec(ctx, insertSubscriptionQuery,
				sub.OrgID, sub.PlanID, sub.Status, sub.StartedAt, sub.TrialEndsAt, sub.RenewAt, sub.CancelAt,
				sub.BillingCycle, sub.Currency, sub.ExchangeRate, sub.SeatPrice, sub.SponsoredSeatPrice,
				featuresJSON, sub.Seats.PaidTotal, sub.Seats.SponsoredTotal,
				sub.Limits.MaxMembers, sub.Limits.MaxTrackedMarkets, sub.TemplateID, nil,
				sub.CreatedAt, sub.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert trial subscription: %w", err)
			}
			if err := r.ledger.Append(ctx, tx, &types.LedgerEntry{
				OrgID:     orgID,
				EventType: types.EventTrialStarted,
				Actor:     actor,
				Note:      fmt.Sprintf("trial started, ends %s", sub.TrialEndsAt.Format(time.RFC3339)),
			}); err != nil {
				return err
			}
			result = EnsureResult{Subscription: sub, Created: true}
			return nil
		}

		if sub.PlanID == TrialPlanID && sub.TrialEndsAt != nil &&
			sub.TrialEndsAt.Before(now) && sub.Status != types.StatusPaused {
			zeroJSON, err := json.Marshal(types.ZeroFeatures())
			if err != nil {
				return fmt.Errorf("failed to encode zeroed features: %w", err)
			}
			if _, err := tx.Exec(ctx, `
        UPDATE org_subscriptions
        SET status = $2, features = $3, updated_at = $4
        WHERE org_id = $1
    `, orgID, types.StatusPaused, zeroJSON, now); err != nil {
				return fmt.Errorf("failed to pause expired trial: %w", err)
			}
			if err := r.ledger.Append(ctx, tx, &types.LedgerEntry{
				OrgID:     orgID,
				EventType: types.EventTrialExpired,
				Actor:     actor,
				Note:      "trial expired, subscription paused",
			}); err != nil {
				return err
			}
			sub.Status = types.StatusPaused
			sub.Features = types.ZeroFeatures()
			sub.UpdatedAt = now
			result = EnsureResult{Subscription: sub, Expired: true}
			return nil
		}

		result = EnsureResult{Subscription: sub}
		return nil
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to ensure subscription", slog.Any("error", err))
		return nil, err
	}
	return &result, nil
}

const applyPlanQuery = `
        UPDATE org_subscriptions
        SET plan_id = $2, status = $3, billing_cycle = $4, currency = $5,
            seat_price = $6, sponsored_seat_price = $7, features = $8,
            paid_seats_total = $9, sponsored_seats_total = $10,
            max_members = $11, max_tracked_markets = $12,
            template_id = $13, overrides = $14, updated_at = $15
        WHERE org_id = $1
        RETURNING org_id, plan_id, status, started_at, trial_ends_at, renew_at, cancel_at,
               billing_cycle, currency, exchange_rate, seat_price, sponsored_seat_price,
               features, paid_seats_total, sponsored_seats_total,
               max_members, max_tracked_markets, template_id, overrides,
               created_at, updated_at
    `

func applyPlanArgs(orgID string, patch types.PlanPatch, now time.Time) ([]any, error) {
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
	return []any{
		orgID, patch.PlanID, types.StatusActive, patch.BillingCycle, patch.Currency,
		patch.SeatPrice, patch.SponsoredSeatPrice, featuresJSON,
		patch.Seats.PaidTotal, patch.Seats.SponsoredTotal,
		patch.Limits.MaxMembers, patch.Limits.MaxTrackedMarkets,
		patch.TemplateID, overridesJSON, now,
	}, nil
}

// ApplyTemplate merges a free-plan patch onto the subscription and logs the
// change, atomically.
func (r *RepositoryImpl) ApplyTemplate(ctx context.Context, orgID string, patch types.PlanPatch, actor types.Actor) (*types.Subscription, error) {
	l := r.logger.With(slog.String("method", "ApplyTemplate"), slog.String("orgID", orgID), slog.String("planID", patch.PlanID))

	var sub *types.Subscription
	err := db.RunInTx(ctx, r.pgpool, func(tx pgx.Tx) error {
		args, err := applyPlanArgs(orgID, patch, time.Now().UTC())
		if err != nil {
			return err
		}
		sub, err = ScanSubscription(tx.QueryRow(ctx, applyPlanQuery, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("subscription for org %s: %w", orgID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to apply plan template: %w", err)
		}
		return r.ledger.Append(ctx, tx, &types.LedgerEntry{
			OrgID:     orgID,
			EventType: types.EventPlanChanged,
			Actor:     actor,
			Note:      fmt.Sprintf("plan changed to %s (%s)", patch.PlanID, patch.BillingCycle),
		})
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to apply plan template", slog.Any("error", err))
		return nil, err
	}
	return sub, nil
}

// UpdatePlan performs the direct plan reset. Deliberately not transactional:
// the update lands first, then the audit entry.
func (r *RepositoryImpl) UpdatePlan(ctx context.Context, orgID string, patch types.PlanPatch, actor types.Actor) (*types.Subscription, error) {
	l := r.logger.With(slog.String("method", "UpdatePlan"), slog.String("orgID", orgID), slog.String("planID", patch.PlanID))

	args, err := applyPlanArgs(orgID, patch, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	sub, err := ScanSubscription(r.pgpool.QueryRow(ctx, applyPlanQuery, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription for org %s: %w", orgID, types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to update plan", slog.Any("error", err))
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}

	if err := r.ledger.Append(ctx, r.pgpool, &types.LedgerEntry{
		OrgID:     orgID,
		EventType: types.EventPlanChanged,
		Actor:     actor,
		Note:      fmt.Sprintf("plan reset to %s defaults", patch.PlanID),
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetSettings retrieves the org's billing settings.
func (r *RepositoryImpl) GetSettings(ctx context.Context, orgID string) (*types.BillingSettings, error) {
	query := `
        SELECT org_id, staff_can_manage_billing, auto_unassign_on_suspension, updated_at
        FROM org_billing_settings
        WHERE org_id = $1
    `
	var settings types.BillingSettings
	err := r.pgpool.QueryRow(ctx, query, orgID).Scan(
		&settings.OrgID, &settings.StaffCanManageBilling, &settings.AutoUnassignSeatsOnSuspension, &settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("billing settings for org %s: %w", orgID, types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to get billing settings", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get billing settings: %w", err)
	}
	return &settings, nil
}

// UpsertSettings writes the org's billing settings.
func (r *RepositoryImpl) UpsertSettings(ctx context.Context, settings *types.BillingSettings) error {
	query := `
        INSERT INTO org_billing_settings (org_id, staff_can_manage_billing, auto_unassign_on_suspension, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (org_id) DO UPDATE SET
            staff_can_manage_billing = EXCLUDED.staff_can_manage_billing,
            auto_unassign_on_suspension = EXCLUDED.auto_unassign_on_suspension,
            updated_at = EXCLUDED.updated_at
    `
	_, err := r.pgpool.Exec(ctx, query,
		settings.OrgID, settings.StaffCanManageBilling, settings.AutoUnassignSeatsOnSuspension, time.Now().UTC(),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert billing settings", slog.Any("error", err))
		return fmt.Errorf("failed to upsert billing settings: %w", err)
	}
	return nil
}

// ListAutoUnassignOrgs returns every org with the suspension sweep enabled.
func (r *RepositoryImpl) ListAutoUnassignOrgs(ctx context.Context) ([]string, error) {
	rows, err := r.pgpool.Query(ctx, `
        SELECT org_id FROM org_billing_settings WHERE auto_unassign_on_suspension = TRUE
    `)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list sweep orgs", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list sweep orgs: %w", err)
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var orgID string
		if err := rows.Scan(&orgID); err != nil {
			return nil, fmt.Errorf("failed to scan sweep org: %w", err)
		}
		orgs = append(orgs, orgID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweep org rows: %w", err)
	}
	return orgs, nil
}
