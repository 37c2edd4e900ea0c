package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository defines the interface for plan template catalog access. The
// catalog only grows or is patched; there is no delete.
type Repository interface {
	ListPublic(ctx context.Context) ([]*types.PlanTemplate, error)
	Get(ctx context.Context, id string) (*types.PlanTemplate, error)
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, tmpl *types.PlanTemplate) error
}

// RepositoryImpl struct holds the logger and database connection pool
type RepositoryImpl struct {
	logger *slog.Logger
	pgpool db.Pool
}

func NewRepository(pgpool db.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

// SelectTemplateByID is exported so transactional callers elsewhere can
// re-load a template inside their own transaction with ScanTemplate.
const SelectTemplateByID = `
        SELECT id, display_name, currency,
               monthly_seat_price, monthly_sponsored_price,
               annual_seat_price, annual_sponsored_price, annual_discount_pct,
               default_paid_seats, default_sponsored_seats,
               features, max_members, max_tracked_markets,
               is_public, display_rank, created_at, updated_at
        FROM plan_templates
        WHERE id = $1
    `

// ScanTemplate decodes one plan_templates row.
func ScanTemplate(row pgx.Row) (*types.PlanTemplate, error) {
	var (
		tmpl         types.PlanTemplate
		featuresJSON []byte
	)
	err := row.Scan(
		&tmpl.ID, &tmpl.DisplayName, &tmpl.Currency,
		&tmpl.Pricing.Monthly.SeatPrice, &tmpl.Pricing.Monthly.SponsoredSeatPrice,
		&tmpl.Pricing.Annual.SeatPrice, &tmpl.Pricing.Annual.SponsoredSeatPrice, &tmpl.Pricing.AnnualDiscountPct,
		&tmpl.DefaultSeats.PaidTotal, &tmpl.DefaultSeats.SponsoredTotal,
		&featuresJSON, &tmpl.Limits.MaxMembers, &tmpl.Limits.MaxTrackedMarkets,
		&tmpl.IsPublic, &tmpl.DisplayRank, &tmpl.CreatedAt, &tmpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tmpl.Features = types.FeatureSet{}
	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &tmpl.Features); err != nil {
			return nil, fmt.Errorf("failed to decode template features: %w", err)
		}
	}
	return &tmpl, nil
}

// ListPublic returns all public templates sorted by ascending display rank.
func (r *RepositoryImpl) ListPublic(ctx context.Context) ([]*types.PlanTemplate, error) {
	query := `
        SELECT id, display_name, currency,
               monthly_seat_price, monthly_sponsored_price,
               annual_seat_price, annual_sponsored_price, annual_discount_pct,
               default_paid_seats, default_sponsored_seats,
               features, max_members, max_tracked_markets,
               is_public, display_rank, created_at, updated_at
        FROM plan_templates
        WHERE is_public = TRUE
        ORDER BY display_rank ASC
    `
	rows, err := r.pgpool.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list plan templates", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list plan templates: %w", err)
	}
	defer rows.Close()

	var templates []*types.PlanTemplate
	for rows.Next() {
		tmpl, err := ScanTemplate(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan plan template", slog.Any("error", err))
			return nil, fmt.Errorf("failed to scan plan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating plan template rows", slog.Any("error", err))
		return nil, fmt.Errorf("error iterating plan template rows: %w", err)
	}
	return templates, nil
}

// Get retrieves one template by its ID.
func (r *RepositoryImpl) Get(ctx context.Context, id string) (*types.PlanTemplate, error) {
	tmpl, err := ScanTemplate(r.pgpool.QueryRow(ctx, SelectTemplateByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("plan template %s: %w", id, types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to get plan template", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get plan template: %w", err)
	}
	return tmpl, nil
}

// Count returns the total number of catalog entries.
func (r *RepositoryImpl) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pgpool.QueryRow(ctx, "SELECT COUNT(*) FROM plan_templates").Scan(&count)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to count plan templates", slog.Any("error", err))
		return 0, fmt.Errorf("failed to count plan templates: %w", err)
	}
	return count, nil
}

// Upsert writes a template with merge semantics so partial catalogs are
// healed without dropping rows.
func (r *RepositoryImpl) Upsert(ctx context.Context, tmpl *types.PlanTemplate) error {
	featuresJSON, err := json.Marshal(tmpl.Features)
	if err != nil {
		return fmt.Errorf("failed to encode template features: %w", err)
	}
	now := time.Now().UTC()

	query := `
        INSERT INTO plan_templates (
            id, display_name, currency,
            monthly_seat_price, monthly_sponsored_price,
            annual_seat_price, annual_sponsored_price, annual_discount_pct,
            default_paid_seats, default_sponsored_seats,
            features, max_members, max_tracked_markets,
            is_public, display_rank, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16
        )
        ON CONFLICT (id) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            currency = EXCLUDED.currency,
            monthly_seat_price = EXCLUDED.monthly_seat_price,
            monthly_sponsored_price = EXCLUDED.monthly_sponsored_price,
            annual_seat_price = EXCLUDED.annual_seat_price,
            annual_sponsored_price = EXCLUDED.annual_sponsored_price,
            annual_discount_pct = EXCLUDED.annual_discount_pct,
            default_paid_seats = EXCLUDED.default_paid_seats,
            default_sponsored_seats = EXCLUDED.default_sponsored_seats,
            features = EXCLUDED.features,
            max_members = EXCLUDED.max_members,
            max_tracked_markets = EXCLUDED.max_tracked_markets,
            is_public = EXCLUDED.is_public,
            display_rank = EXCLUDED.display_rank,
            updated_at = EXCLUDED.updated_at
    `
	_, err = r.pgpool.Exec(ctx, query,
		tmpl.ID, tmpl.DisplayName, tmpl.Currency,
		tmpl.Pricing.Monthly.SeatPrice, tmpl.Pricing.Monthly.SponsoredSeatPrice,
		tmpl.Pricing.Annual.SeatPrice, tmpl.Pricing.Annual.SponsoredSeatPrice, tmpl.Pricing.AnnualDiscountPct,
		tmpl.DefaultSeats.PaidTotal, tmpl.DefaultSeats.SponsoredTotal,
		featuresJSON, tmpl.Limits.MaxMembers, tmpl.Limits.MaxTrackedMarkets,
		tmpl.IsPublic, tmpl.DisplayRank, now,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert plan template", slog.Any("error", err))
		return fmt.Errorf("failed to upsert plan template %s: %w", tmpl.ID, err)
	}
	return nil
}
