package seats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agrocoop/billing-api/internal/types"
	"github.com/agrocoop/billing-api/pkg/observability"
)

// Ensure ServiceImpl implements the Service interface
var _ Service = (*ServiceImpl)(nil)

// Service defines seat assignment operations.
type Service interface {
	AssignSeat(ctx context.Context, orgID string, memberID uuid.UUID, seatType types.SeatType, actor types.Actor) (*AssignResult, error)
	UnassignSeat(ctx context.Context, orgID string, memberID uuid.UUID, actor types.Actor) (*AssignResult, error)
	GetSeatUsage(ctx context.Context, orgID string) (*types.SeatUsage, error)
	// ApplyAutoUnassignOnSuspended frees seats held by suspended or rejected
	// members, if the org opted into the sweep. Returns the number of seats
	// released.
	ApplyAutoUnassignOnSuspended(ctx context.Context, orgID string, actor types.Actor) (int, error)
	// SweepAllOrgs runs the suspension sweep across every opted-in org.
	SweepAllOrgs(ctx context.Context, actor types.Actor) (int, error)
}

// SettingsSource exposes the billing settings the sweep consults. Satisfied
// by the subscription repository.
type SettingsSource interface {
	GetSettings(ctx context.Context, orgID string) (*types.BillingSettings, error)
	ListAutoUnassignOrgs(ctx context.Context) ([]string, error)
}

// RosterSource lists seat-holding members. Satisfied by the members
// repository.
type RosterSource interface {
	ListSeatHolders(ctx context.Context, orgID string, statuses []types.MemberStatus) ([]*types.Member, error)
}

// ServiceImpl struct holds the repository and logger
type ServiceImpl struct {
	logger   *slog.Logger
	repo     Repository
	settings SettingsSource
	roster   RosterSource
}

func NewService(repo Repository, settings SettingsSource, roster RosterSource, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		settings: settings,
		roster:   roster,
	}
}

// AssignSeat gives a member a paid or sponsored seat.
func (s *ServiceImpl) AssignSeat(ctx context.Context, orgID string, memberID uuid.UUID, seatType types.SeatType, actor types.Actor) (*AssignResult, error) {
	ctx, span := otel.Tracer("SeatsService").Start(ctx, "AssignSeat")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", orgID),
		attribute.String("member.id", memberID.String()),
		attribute.String("seat.type", string(seatType)),
	)

	l := s.logger.With(slog.String("method", "AssignSeat"), slog.String("orgID", orgID))

	result, err := s.repo.AssignSeat(ctx, orgID, memberID, seatType, actor)
	if err != nil {
		l.ErrorContext(ctx, "Failed to assign seat", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to assign seat")
		observability.ObserveSeatAssignment(string(seatType), "error")
		return nil, err
	}
	if result.Changed {
		observability.ObserveSeatAssignment(string(seatType), "assigned")
	} else {
		observability.ObserveSeatAssignment(string(seatType), "noop")
	}
	span.SetStatus(codes.Ok, "seat assigned")
	return result, nil
}

// UnassignSeat releases whatever seat the member holds.
func (s *ServiceImpl) UnassignSeat(ctx context.Context, orgID string, memberID uuid.UUID, actor types.Actor) (*AssignResult, error) {
	ctx, span := otel.Tracer("SeatsService").Start(ctx, "UnassignSeat")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", orgID),
		attribute.String("member.id", memberID.String()),
	)

	l := s.logger.With(slog.String("method", "UnassignSeat"), slog.String("orgID", orgID))

	result, err := s.repo.UnassignSeat(ctx, orgID, memberID, actor)
	if err != nil {
		l.ErrorContext(ctx, "Failed to unassign seat", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unassign seat")
		observability.ObserveSeatAssignment("none", "error")
		return nil, err
	}
	if result.Changed {
		observability.ObserveSeatAssignment("none", "unassigned")
	}
	span.SetStatus(codes.Ok, "seat unassigned")
	return result, nil
}

// GetSeatUsage returns the org's current seat usage snapshot.
func (s *ServiceImpl) GetSeatUsage(ctx context.Context, orgID string) (*types.SeatUsage, error) {
	ctx, span := otel.Tracer("SeatsService").Start(ctx, "GetSeatUsage")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))

	usage, err := s.repo.ComputeSeatUsage(ctx, orgID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to compute seat usage", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compute seat usage")
		return nil, err
	}
	span.SetStatus(codes.Ok, "seat usage computed")
	return usage, nil
}

// sweepStatuses are the roster states whose seats the sweep reclaims.
var sweepStatuses = []types.MemberStatus{types.MemberSuspended, types.MemberRejected}

// ApplyAutoUnassignOnSuspended frees seats held by suspended or rejected
// members for one org, honoring the org's opt-in setting.
func (s *ServiceImpl) ApplyAutoUnassignOnSuspended(ctx context.Context, orgID string, actor types.Actor) (int, error) {
	ctx, span := otel.Tracer("SeatsService").Start(ctx, "ApplyAutoUnassignOnSuspended")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))

	l := s.logger.With(slog.String("method", "ApplyAutoUnassignOnSuspended"), slog.String("orgID", orgID))

	settings, err := s.settings.GetSettings(ctx, orgID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load billing settings", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load billing settings")
		return 0, err
	}
	if !settings.AutoUnassignSeatsOnSuspension {
		span.SetStatus(codes.Ok, "sweep disabled for org")
		return 0, nil
	}

	holders, err := s.roster.ListSeatHolders(ctx, orgID, sweepStatuses)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list seat holders", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list seat holders")
		return 0, err
	}

	released := 0
	for _, member := range holders {
		result, err := s.repo.UnassignSeat(ctx, orgID, member.ID, actor)
		if err != nil {
			l.ErrorContext(ctx, "Failed to sweep seat",
				slog.String("memberID", member.ID.String()), slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to sweep seat")
			return released, fmt.Errorf("failed to sweep seat for member %s: %w", member.ID, err)
		}
		if result.Changed {
			released++
		}
	}

	if released > 0 {
		l.InfoContext(ctx, "Suspension sweep released seats", slog.Int("released", released))
	}
	span.SetAttributes(attribute.Int("seats.released", released))
	span.SetStatus(codes.Ok, "sweep completed")
	return released, nil
}

// SweepAllOrgs runs the suspension sweep for every opted-in org. A failure in
// one org does not stop the others.
func (s *ServiceImpl) SweepAllOrgs(ctx context.Context, actor types.Actor) (int, error) {
	ctx, span := otel.Tracer("SeatsService").Start(ctx, "SweepAllOrgs")
	defer span.End()

	l := s.logger.With(slog.String("method", "SweepAllOrgs"))

	orgs, err := s.settings.ListAutoUnassignOrgs(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list sweep orgs", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list sweep orgs")
		return 0, err
	}

	total := 0
	var lastErr error
	for _, orgID := range orgs {
		released, err := s.ApplyAutoUnassignOnSuspended(ctx, orgID, actor)
		total += released
		if err != nil {
			l.ErrorContext(ctx, "Sweep failed for org", slog.String("orgID", orgID), slog.Any("error", err))
			lastErr = err
		}
	}
	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "sweep finished with errors")
		return total, fmt.Errorf("sweep finished with errors: %w", lastErr)
	}
	span.SetAttributes(attribute.Int("seats.released", total))
	span.SetStatus(codes.Ok, "sweep completed")
	return total, nil
}
