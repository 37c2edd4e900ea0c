package seats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agrocoop/billing-api/internal/domain/ledger"
	"github.com/agrocoop/billing-api/internal/domain/members"
	"github.com/agrocoop/billing-api/internal/domain/subscription"
	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository is the transactional seat engine. Every mutation re-scans the
// roster inside its own serializable transaction; cached counts are never
// trusted for decisions.
type Repository interface {
	AssignSeat(ctx context.Context, orgID string, memberID uuid.UUID, seatType types.SeatType, actor types.Actor) (*AssignResult, error)
	UnassignSeat(ctx context.Context, orgID string, memberID uuid.UUID, actor types.Actor) (*AssignResult, error)
	// ComputeSeatUsage is a display-only snapshot; it runs outside any
	// transaction and may be slightly stale.
	ComputeSeatUsage(ctx context.Context, orgID string) (*types.SeatUsage, error)
}

// AssignResult reports the member's new state and the post-mutation usage.
// Changed is false for idempotent no-ops, which write nothing.
type AssignResult struct {
	Member  *types.Member       `json:"member"`
	Usage   types.UsageSnapshot `json:"usage"`
	Changed bool                `json:"changed"`
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

const selectMemberForSeat = `
        SELECT id, org_id, display_name, email, status, seat_type,
               seat_assigned_by, seat_assigned_at, premium_active, entitlements,
               created_at, updated_at
        FROM members
        WHERE org_id = $1 AND id = $2
    `

const scanPoolUsageExcluding = `
        SELECT COUNT(*) FILTER (WHERE seat_type = 'paid'),
               COUNT(*) FILTER (WHERE seat_type = 'sponsored')
        FROM members
        WHERE org_id = $1 AND id <> $2
    `

const updateMemberSeat = `
        UPDATE members
        SET seat_type = $3, seat_assigned_by = $4, seat_assigned_at = $5,
            premium_active = $6, entitlements = $7, updated_at = $8
        WHERE org_id = $1 AND id = $2
        RETURNING id, org_id, display_name, email, status, seat_type,
               seat_assigned_by, seat_assigned_at, premium_active, entitlements,
               created_at, updated_at
    `

// AssignSeat gives a member a paid or sponsored seat. The whole
// read-recompute-validate-write sequence runs in one serializable
// transaction so concurrent assignments cannot both squeeze past capacity.
func (r *RepositoryImpl) AssignSeat(ctx context.Context, orgID string, memberID uuid.UUID, seatType types.SeatType, actor types.Actor) (*AssignResult, error) {
	l := r.logger.With(slog.String("method", "AssignSeat"),
		slog.String("orgID", orgID), slog.String("memberID", memberID.String()), slog.String("seatType", string(seatType)))

	var result AssignResult
	err := db.RunInTx(ctx, r.pgpool, func(tx pgx.Tx) error {
		sub, err := subscription.ScanSubscription(tx.QueryRow(ctx, subscription.SelectSubscriptionByOrg, orgID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("subscription for org %s: %w", orgID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to read subscription: %w", err)
		}

		member, err := members.ScanMember(tx.QueryRow(ctx, selectMemberForSeat, orgID, memberID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("member %s: %w", memberID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to read member: %w", err)
		}

		usage, err := r.scanUsageExcluding(ctx, tx, orgID, memberID)
		if err != nil {
			return err
		}

		if member.SeatType == seatType {
			result = AssignResult{Member: member, Usage: usageAfter(usage, seatType, sub.Seats)}
			return nil
		}

		if err := checkAssignable(member, seatType); err != nil {
			return err
		}
		if err := checkCapacity(seatType, usage, sub.Seats); err != nil {
			return err
		}

		delta := seatDelta(member.SeatType, seatType)
		snapshot := usageAfter(usage, seatType, sub.Seats)

		updated, err := r.writeMemberSeat(ctx, tx, orgID, memberID, seatType, &actor, sub.Features)
		if err != nil {
			return err
		}

		if err := r.ledger.Append(ctx, tx, &types.LedgerEntry{
			OrgID:     orgID,
			EventType: assignEvent(seatType),
			Actor:     actor,
			MemberID:  &memberID,
			Delta:     &delta,
			Snapshot:  &snapshot,
		}); err != nil {
			return err
		}

		result = AssignResult{Member: updated, Usage: snapshot, Changed: true}
		return nil
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to assign seat", slog.Any("error", err))
		return nil, err
	}
	return &result, nil
}

// UnassignSeat releases whatever seat the member holds. A seatless member is
// an idempotent no-op.
func (r *RepositoryImpl) UnassignSeat(ctx context.Context, orgID string, memberID uuid.UUID, actor types.Actor) (*AssignResult, error) {
	l := r.logger.With(slog.String("method", "UnassignSeat"),
		slog.String("orgID", orgID), slog.String("memberID", memberID.String()))

	var result AssignResult
	err := db.RunInTx(ctx, r.pgpool, func(tx pgx.Tx) error {
		sub, err := subscription.ScanSubscription(tx.QueryRow(ctx, subscription.SelectSubscriptionByOrg, orgID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("subscription for org %s: %w", orgID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to read subscription: %w", err)
		}

		member, err := members.ScanMember(tx.QueryRow(ctx, selectMemberForSeat, orgID, memberID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("member %s: %w", memberID, types.ErrNotFound)
			}
			return fmt.Errorf("failed to read member: %w", err)
		}

		usage, err := r.scanUsageExcluding(ctx, tx, orgID, memberID)
		if err != nil {
			return err
		}

		if member.SeatType == types.SeatNone {
			result = AssignResult{Member: member, Usage: usageAfter(usage, types.SeatNone, sub.Seats)}
			return nil
		}

		released := member.SeatType
		delta := seatDelta(released, types.SeatNone)
		snapshot := usageAfter(usage, types.SeatNone, sub.Seats)

		updated, err := r.writeMemberSeat(ctx, tx, orgID, memberID, types.SeatNone, nil, sub.Features)
		if err != nil {
			return err
		}

		if err := r.ledger.Append(ctx, tx, &types.LedgerEntry{
			OrgID:     orgID,
			EventType: unassignEvent(released),
			Actor:     actor,
			MemberID:  &memberID,
			Delta:     &delta,
			Snapshot:  &snapshot,
		}); err != nil {
			return err
		}

		result = AssignResult{Member: updated, Usage: snapshot, Changed: true}
		return nil
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to unassign seat", slog.Any("error", err))
		return nil, err
	}
	return &result, nil
}

// ComputeSeatUsage combines the subscription totals with a roster scan.
func (r *RepositoryImpl) ComputeSeatUsage(ctx context.Context, orgID string) (*types.SeatUsage, error) {
	sub, err := subscription.ScanSubscription(r.pgpool.QueryRow(ctx, subscription.SelectSubscriptionByOrg, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription for org %s: %w", orgID, types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to read subscription", slog.Any("error", err))
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}

	query := `
        SELECT COUNT(*) FILTER (WHERE seat_type = 'paid'),
               COUNT(*) FILTER (WHERE seat_type = 'sponsored'),
               COUNT(*) FILTER (WHERE status = 'active'),
               COUNT(*) FILTER (WHERE premium_active)
        FROM members
        WHERE org_id = $1
    `
	var usage types.SeatUsage
	err = r.pgpool.QueryRow(ctx, query, orgID).Scan(
		&usage.PaidUsed, &usage.SponsoredUsed, &usage.ActiveMembers, &usage.PremiumMembers,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to scan seat usage", slog.Any("error", err))
		return nil, fmt.Errorf("failed to scan seat usage: %w", err)
	}

	usage.PaidTotal = sub.Seats.PaidTotal
	usage.SponsoredTotal = sub.Seats.SponsoredTotal
	usage.PaidRemaining = usage.PaidTotal - usage.PaidUsed
	usage.SponsoredRemaining = usage.SponsoredTotal - usage.SponsoredUsed
	return &usage, nil
}

func (r *RepositoryImpl) scanUsageExcluding(ctx context.Context, tx pgx.Tx, orgID string, memberID uuid.UUID) (poolUsage, error) {
	var usage poolUsage
	err := tx.QueryRow(ctx, scanPoolUsageExcluding, orgID, memberID).Scan(&usage.Paid, &usage.Sponsored)
	if err != nil {
		return poolUsage{}, fmt.Errorf("failed to scan seat usage: %w", err)
	}
	return usage, nil
}

func (r *RepositoryImpl) writeMemberSeat(ctx context.Context, tx pgx.Tx, orgID string, memberID uuid.UUID, seatType types.SeatType, assignedBy *types.Actor, features types.FeatureSet) (*types.Member, error) {
	now := time.Now().UTC()
	entitlement := types.DeriveEntitlement(seatType, seatType != types.SeatNone, features)
	entitlementsJSON, err := json.Marshal(entitlement.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode member entitlements: %w", err)
	}

	var byID *string
	var assignedAt *time.Time
	if assignedBy != nil {
		byID = &assignedBy.ID
		assignedAt = &now
	}

	member, err := members.ScanMember(tx.QueryRow(ctx, updateMemberSeat,
		orgID, memberID, seatType, byID, assignedAt,
		entitlement.PremiumActive, entitlementsJSON, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to write member seat: %w", err)
	}
	return member, nil
}
