package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository is the append-only audit trail. Entries are never updated or
// deleted; no such operation exists here.
type Repository interface {
	// Append inserts one entry using the caller's querier, so mutations can
	// write their audit record inside the same transaction.
	Append(ctx context.Context, q db.Querier, entry *types.LedgerEntry) error
	List(ctx context.Context, orgID string, filter Filter) ([]*types.LedgerEntry, error)
}

// Filter narrows a ledger listing.
type Filter struct {
	EventType types.LedgerEventType
	MemberID  *uuid.UUID
	Since     *time.Time
	Until     *time.Time
	Limit     int
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

const appendLedgerQuery = `
        INSERT INTO billing_ledger (
            id, org_id, event_type, actor_id, actor_name, member_id,
            paid_delta, sponsored_delta, paid_used, paid_total,
            sponsored_used, sponsored_total, note, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
        )
    `

// Append inserts a new ledger entry through q, which is the caller's open
// transaction on mutation paths.
func (r *RepositoryImpl) Append(ctx context.Context, q db.Querier, entry *types.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var paidDelta, sponsoredDelta *int
	if entry.Delta != nil {
		paidDelta = &entry.Delta.Paid
		sponsoredDelta = &entry.Delta.Sponsored
	}
	var paidUsed, paidTotal, sponsoredUsed, sponsoredTotal *int
	if entry.Snapshot != nil {
		paidUsed = &entry.Snapshot.PaidUsed
		paidTotal = &entry.Snapshot.PaidTotal
		sponsoredUsed = &entry.Snapshot.SponsoredUsed
		sponsoredTotal = &entry.Snapshot.SponsoredTotal
	}

	_, err := q.Exec(ctx, appendLedgerQuery,
		entry.ID, entry.OrgID, entry.EventType, entry.Actor.ID, entry.Actor.Name, entry.MemberID,
		paidDelta, sponsoredDelta, paidUsed, paidTotal,
		sponsoredUsed, sponsoredTotal, entry.Note, entry.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to append ledger entry", slog.Any("error", err))
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// List returns entries for an org, newest first.
func (r *RepositoryImpl) List(ctx context.Context, orgID string, filter Filter) ([]*types.LedgerEntry, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "org_id", "event_type", "actor_id", "actor_name", "member_id",
			"paid_delta", "sponsored_delta", "paid_used", "paid_total",
			"sponsored_used", "sponsored_total", "note", "created_at").
		From("billing_ledger").
		Where(sq.Eq{"org_id": orgID}).
		OrderBy("created_at DESC")

	if filter.EventType != "" {
		builder = builder.Where(sq.Eq{"event_type": filter.EventType})
	}
	if filter.MemberID != nil {
		builder = builder.Where(sq.Eq{"member_id": *filter.MemberID})
	}
	if filter.Since != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.Since})
	}
	if filter.Until != nil {
		builder = builder.Where(sq.Lt{"created_at": *filter.Until})
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list ledger entries", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.LedgerEntry
	for rows.Next() {
		var (
			entry          types.LedgerEntry
			paidDelta      *int
			sponsoredDelta *int
			paidUsed       *int
			paidTotal      *int
			sponsoredUsed  *int
			sponsoredTotal *int
		)
		err := rows.Scan(
			&entry.ID, &entry.OrgID, &entry.EventType, &entry.Actor.ID, &entry.Actor.Name, &entry.MemberID,
			&paidDelta, &sponsoredDelta, &paidUsed, &paidTotal,
			&sponsoredUsed, &sponsoredTotal, &entry.Note, &entry.CreatedAt,
		)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan ledger entry", slog.Any("error", err))
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if paidDelta != nil || sponsoredDelta != nil {
			entry.Delta = &types.SeatDelta{}
			if paidDelta != nil {
				entry.Delta.Paid = *paidDelta
			}
			if sponsoredDelta != nil {
				entry.Delta.Sponsored = *sponsoredDelta
			}
		}
		if paidUsed != nil && paidTotal != nil && sponsoredUsed != nil && sponsoredTotal != nil {
			entry.Snapshot = &types.UsageSnapshot{
				PaidUsed:       *paidUsed,
				PaidTotal:      *paidTotal,
				SponsoredUsed:  *sponsoredUsed,
				SponsoredTotal: *sponsoredTotal,
			}
		}
		entries = append(entries, &entry)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating ledger rows", slog.Any("error", err))
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return entries, nil
}
