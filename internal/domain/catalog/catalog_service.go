package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrocoop/billing-api/internal/types"
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

const publicTemplatesCacheKey = "plan_templates:public"

// Service defines the business logic contract for the plan catalog.
type Service interface {
	LoadPlanTemplates(ctx context.Context) ([]*types.PlanTemplate, error)
	GetPlanTemplate(ctx context.Context, id string) (*types.PlanTemplate, error)
	// SeedPlanTemplates is idempotent; it reports whether anything was written.
	SeedPlanTemplates(ctx context.Context) (bool, error)
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
	cache  *gocache.Cache
}

// NewService creates a new catalog service instance.
func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
		cache:  gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// LoadPlanTemplates returns all public templates sorted by display rank.
// The catalog changes rarely, so the read path is cached briefly.
func (s *ServiceImpl) LoadPlanTemplates(ctx context.Context) ([]*types.PlanTemplate, error) {
	ctx, span := otel.Tracer("catalogService").Start(ctx, "LoadPlanTemplates")
	defer span.End()

	if cached, found := s.cache.Get(publicTemplatesCacheKey); found {
		span.SetStatus(codes.Ok, "Plan templates served from cache")
		return cached.([]*types.PlanTemplate), nil
	}

	l := s.logger.With(slog.String("method", "LoadPlanTemplates"))
	l.DebugContext(ctx, "Fetching public plan templates")

	templates, err := s.repo.ListPublic(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch plan templates", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch plan templates")
		return nil, fmt.Errorf("error fetching plan templates: %w", err)
	}

	s.cache.Set(publicTemplatesCacheKey, templates, gocache.DefaultExpiration)
	span.SetStatus(codes.Ok, "Plan templates fetched successfully")
	return templates, nil
}

// GetPlanTemplate retrieves one template by ID.
func (s *ServiceImpl) GetPlanTemplate(ctx context.Context, id string) (*types.PlanTemplate, error) {
	ctx, span := otel.Tracer("catalogService").Start(ctx, "GetPlanTemplate", trace.WithAttributes(
		attribute.String("plan.id", id),
	))
	defer span.End()

	tmpl, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get plan template")
		return nil, err
	}
	span.SetStatus(codes.Ok, "Plan template fetched successfully")
	return tmpl, nil
}

// SeedPlanTemplates heals the catalog: a no-op when it already holds the
// expected number of entries, otherwise every built-in default is upserted.
func (s *ServiceImpl) SeedPlanTemplates(ctx context.Context) (bool, error) {
	ctx, span := otel.Tracer("catalogService").Start(ctx, "SeedPlanTemplates")
	defer span.End()

	l := s.logger.With(slog.String("method", "SeedPlanTemplates"))

	count, err := s.repo.Count(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to count plan templates", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to count plan templates")
		return false, fmt.Errorf("error counting plan templates: %w", err)
	}
	if count >= ExpectedTemplateCount {
		span.SetStatus(codes.Ok, "Catalog already seeded")
		return false, nil
	}

	for _, tmpl := range builtinTemplates() {
		if err := s.repo.Upsert(ctx, tmpl); err != nil {
			l.ErrorContext(ctx, "Failed to seed plan template",
				slog.String("planID", tmpl.ID), slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to seed plan template")
			return false, fmt.Errorf("error seeding plan template %s: %w", tmpl.ID, err)
		}
	}

	s.cache.Delete(publicTemplatesCacheKey)
	l.InfoContext(ctx, "Plan templates seeded", slog.Int("previousCount", count))
	span.SetStatus(codes.Ok, "Plan templates seeded successfully")
	return true, nil
}
