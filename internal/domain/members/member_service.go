package members

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
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for roster operations.
type Service interface {
	CreateMember(ctx context.Context, orgID, displayName, email string) (*types.Member, error)
	GetMember(ctx context.Context, orgID string, memberID uuid.UUID) (*types.Member, error)
	ListMembers(ctx context.Context, orgID string, filter ListFilter) ([]*types.Member, error)
	UpdateMemberStatus(ctx context.Context, orgID string, memberID uuid.UUID, status types.MemberStatus) (*types.Member, error)
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
}

// NewService creates a new member service instance.
func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

// CreateMember adds an active, seatless member to the roster.
func (s *ServiceImpl) CreateMember(ctx context.Context, orgID, displayName, email string) (*types.Member, error) {
	ctx, span := otel.Tracer("memberService").Start(ctx, "CreateMember", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CreateMember"), slog.String("orgID", orgID))

	if displayName == "" {
		err := fmt.Errorf("display name is required: %w", types.ErrBadRequest)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Missing display name")
		return nil, err
	}

	now := time.Now().UTC()
	member := &types.Member{
		ID:          uuid.New(),
		OrgID:       orgID,
		DisplayName: displayName,
		Email:       email,
		Status:      types.MemberActive,
		SeatType:    types.SeatNone,
		Entitlement: types.DeriveEntitlement(types.SeatNone, true, types.FeatureSet{}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, member); err != nil {
		l.ErrorContext(ctx, "Failed to create member", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create member")
		return nil, fmt.Errorf("error creating member: %w", err)
	}

	l.InfoContext(ctx, "Member created", slog.String("memberID", member.ID.String()))
	span.SetStatus(codes.Ok, "Member created successfully")
	return member, nil
}

// GetMember retrieves one roster member.
func (s *ServiceImpl) GetMember(ctx context.Context, orgID string, memberID uuid.UUID) (*types.Member, error) {
	ctx, span := otel.Tracer("memberService").Start(ctx, "GetMember", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("member.id", memberID.String()),
	))
	defer span.End()

	member, err := s.repo.Get(ctx, orgID, memberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get member")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Member fetched successfully")
	return member, nil
}

// ListMembers returns roster members matching the filter.
func (s *ServiceImpl) ListMembers(ctx context.Context, orgID string, filter ListFilter) ([]*types.Member, error) {
	ctx, span := otel.Tracer("memberService").Start(ctx, "ListMembers", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	result, err := s.repo.List(ctx, orgID, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list members", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list members")
		return nil, fmt.Errorf("error listing members: %w", err)
	}
	span.SetStatus(codes.Ok, "Members listed successfully")
	return result, nil
}

// UpdateMemberStatus changes a member's roster status. Seats held by a
// suspended member stay assigned until the auto-unassign sweep runs.
func (s *ServiceImpl) UpdateMemberStatus(ctx context.Context, orgID string, memberID uuid.UUID, status types.MemberStatus) (*types.Member, error) {
	ctx, span := otel.Tracer("memberService").Start(ctx, "UpdateMemberStatus", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("member.id", memberID.String()),
		attribute.String("member.status", string(status)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "UpdateMemberStatus"),
		slog.String("orgID", orgID), slog.String("memberID", memberID.String()))

	switch status {
	case types.MemberActive, types.MemberPending, types.MemberSuspended, types.MemberRejected, types.MemberLeft:
	default:
		err := fmt.Errorf("unknown member status %q: %w", status, types.ErrBadRequest)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unknown member status")
		return nil, err
	}

	member, err := s.repo.UpdateStatus(ctx, orgID, memberID, status)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update member status", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update member status")
		return nil, err
	}

	l.InfoContext(ctx, "Member status updated", slog.String("status", string(status)))
	span.SetStatus(codes.Ok, "Member status updated successfully")
	return member, nil
}
