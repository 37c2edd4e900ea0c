package members

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

	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository defines roster access for cooperative members.
type Repository interface {
	Create(ctx context.Context, member *types.Member) error
	Get(ctx context.Context, orgID string, memberID uuid.UUID) (*types.Member, error)
	List(ctx context.Context, orgID string, filter ListFilter) ([]*types.Member, error)
	UpdateStatus(ctx context.Context, orgID string, memberID uuid.UUID, status types.MemberStatus) (*types.Member, error)
	// ListSeatHolders returns members in one of the given statuses that
	// currently hold a seat.
	ListSeatHolders(ctx context.Context, orgID string, statuses []types.MemberStatus) ([]*types.Member, error)
}

// ListFilter narrows a roster listing.
type ListFilter struct {
	Status   types.MemberStatus
	SeatType types.SeatType
	Limit    int
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

const memberColumns = `id, org_id, display_name, email, status, seat_type,
               seat_assigned_by, seat_assigned_at, premium_active, entitlements,
               created_at, updated_at`

// ScanMember decodes one members row.
func ScanMember(row pgx.Row) (*types.Member, error) {
	var (
		member           types.Member
		entitlementsJSON []byte
	)
	err := row.Scan(
		&member.ID, &member.OrgID, &member.DisplayName, &member.Email, &member.Status, &member.SeatType,
		&member.SeatAssignedBy, &member.SeatAssignedAt, &member.Entitlement.PremiumActive, &entitlementsJSON,
		&member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	member.Entitlement.Features = types.FeatureSet{}
	if len(entitlementsJSON) > 0 {
		if err := json.Unmarshal(entitlementsJSON, &member.Entitlement.Features); err != nil {
			return nil, fmt.Errorf("failed to decode member entitlements: %w", err)
		}
	}
	return &member, nil
}

// Create inserts a new member into the roster.
func (r *RepositoryImpl) Create(ctx context.Context, member *types.Member) error {
	entitlementsJSON, err := json.Marshal(member.Entitlement.Features)
	if err != nil {
		return fmt.Errorf("failed to encode member entitlements: %w", err)
	}
	query := `
        INSERT INTO members (
            id, org_id, display_name, email, status, seat_type,
            seat_assigned_by, seat_assigned_at, premium_active, entitlements,
            created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
        )
    `
	_, err = r.pgpool.Exec(ctx, query,
		member.ID, member.OrgID, member.DisplayName, member.Email, member.Status, member.SeatType,
		member.SeatAssignedBy, member.SeatAssignedAt, member.Entitlement.PremiumActive, entitlementsJSON,
		member.CreatedAt, member.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to create member", slog.Any("error", err))
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// Get retrieves one member scoped to an org.
func (r *RepositoryImpl) Get(ctx context.Context, orgID string, memberID uuid.UUID) (*types.Member, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM members
        WHERE org_id = $1 AND id = $2
    `, memberColumns)
	member, err := ScanMember(r.pgpool.QueryRow(ctx, query, orgID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", memberID, types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to get member", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// List returns roster members matching the filter.
func (r *RepositoryImpl) List(ctx context.Context, orgID string, filter ListFilter) ([]*types.Member, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "org_id", "display_name", "email", "status", "seat_type",
			"seat_assigned_by", "seat_assigned_at", "premium_active", "entitlements",
			"created_at", "updated_at").
		From("members").
		Where(sq.Eq{"org_id": orgID}).
		OrderBy("created_at ASC")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.SeatType != "" {
		builder = builder.Where(sq.Eq{"seat_type": filter.SeatType})
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build member query: %w", err)
	}
	return r.queryMembers(ctx, query, args...)
}

// UpdateStatus sets a member's roster status. Seat fields are untouched;
// freeing seats held by suspended members is a separate, explicit sweep.
func (r *RepositoryImpl) UpdateStatus(ctx context.Context, orgID string, memberID uuid.UUID, status types.MemberStatus) (*types.Member, error) {
	query := fmt.Sprintf(`
        UPDATE members
        SET status = $3, updated_at = $4
        WHERE org_id = $1 AND id = $2
        RETURNING %s
    `, memberColumns)
	member, err := ScanMember(r.pgpool.QueryRow(ctx, query, orgID, memberID, status, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", memberID, types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to update member status", slog.Any("error", err))
		return nil, fmt.Errorf("failed to update member status: %w", err)
	}
	return member, nil
}

// ListSeatHolders returns seat-holding members in the given statuses.
func (r *RepositoryImpl) ListSeatHolders(ctx context.Context, orgID string, statuses []types.MemberStatus) ([]*types.Member, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "org_id", "display_name", "email", "status", "seat_type",
			"seat_assigned_by", "seat_assigned_at", "premium_active", "entitlements",
			"created_at", "updated_at").
		From("members").
		Where(sq.Eq{"org_id": orgID}).
		Where(sq.NotEq{"seat_type": types.SeatNone}).
		OrderBy("created_at ASC")
	if len(statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": statuses})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build seat holder query: %w", err)
	}
	return r.queryMembers(ctx, query, args...)
}

func (r *RepositoryImpl) queryMembers(ctx context.Context, query string, args ...any) ([]*types.Member, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list members", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var result []*types.Member
	for rows.Next() {
		member, err := ScanMember(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan member", slog.Any("error", err))
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		result = append(result, member)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating member rows", slog.Any("error", err))
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return result, nil
}
