package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrocoop/billing-api/internal/types"
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service exposes read access to the audit trail.
type Service interface {
	ListLedger(ctx context.Context, orgID string, filter Filter) ([]*types.LedgerEntry, error)
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
}

// NewService creates a new ledger service instance.
func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

// ListLedger returns audit entries for an org, newest first.
func (s *ServiceImpl) ListLedger(ctx context.Context, orgID string, filter Filter) ([]*types.LedgerEntry, error) {
	ctx, span := otel.Tracer("ledgerService").Start(ctx, "ListLedger", trace.WithAttributes(
		attribute.String("org.id", orgID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ListLedger"), slog.String("orgID", orgID))
	l.DebugContext(ctx, "Listing ledger entries")

	entries, err := s.repo.List(ctx, orgID, filter)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list ledger entries", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list ledger entries")
		return nil, fmt.Errorf("error listing ledger entries: %w", err)
	}

	span.SetStatus(codes.Ok, "Ledger entries listed successfully")
	return entries, nil
}
