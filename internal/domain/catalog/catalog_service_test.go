package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agrocoop/billing-api/internal/types"
)

// MockcatalogRepo is a mock implementation of Repository
type MockcatalogRepo struct {
	mock.Mock
}

func (m *MockcatalogRepo) ListPublic(ctx context.Context) ([]*types.PlanTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PlanTemplate), args.Error(1)
}

func (m *MockcatalogRepo) Get(ctx context.Context, id string) (*types.PlanTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PlanTemplate), args.Error(1)
}

func (m *MockcatalogRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockcatalogRepo) Upsert(ctx context.Context, tmpl *types.PlanTemplate) error {
	args := m.Called(ctx, tmpl)
	return args.Error(0)
}

func setupCatalogServiceTest() (*ServiceImpl, *MockcatalogRepo) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockRepo := new(MockcatalogRepo)
	service := NewService(mockRepo, logger)
	return service, mockRepo
}

func TestCatalogServiceImpl_LoadPlanTemplates(t *testing.T) {
	ctx := context.Background()

	t.Run("second call is served from cache", func(t *testing.T) {
		service, mockRepo := setupCatalogServiceTest()
		templates := []*types.PlanTemplate{{ID: "free"}, {ID: "coop_basic"}}
		mockRepo.On("ListPublic", mock.Anything).Return(templates, nil).Once()

		first, err := service.LoadPlanTemplates(ctx)
		require.NoError(t, err)
		assert.Len(t, first, 2)

		second, err := service.LoadPlanTemplates(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		mockRepo.AssertExpectations(t)
	})

	t.Run("repository error", func(t *testing.T) {
		service, mockRepo := setupCatalogServiceTest()
		repoErr := errors.New("db down")
		mockRepo.On("ListPublic", mock.Anything).Return(nil, repoErr).Once()

		_, err := service.LoadPlanTemplates(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repoErr))
		mockRepo.AssertExpectations(t)
	})
}

func TestCatalogServiceImpl_SeedPlanTemplates(t *testing.T) {
	ctx := context.Background()

	t.Run("no-op when the catalog is complete", func(t *testing.T) {
		service, mockRepo := setupCatalogServiceTest()
		mockRepo.On("Count", mock.Anything).Return(ExpectedTemplateCount, nil).Once()

		seeded, err := service.SeedPlanTemplates(ctx)
		require.NoError(t, err)
		assert.False(t, seeded)
		mockRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		mockRepo.AssertExpectations(t)
	})

	t.Run("partial catalog is healed by upserting every default", func(t *testing.T) {
		service, mockRepo := setupCatalogServiceTest()
		mockRepo.On("Count", mock.Anything).Return(2, nil).Once()
		mockRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil).Times(ExpectedTemplateCount)

		seeded, err := service.SeedPlanTemplates(ctx)
		require.NoError(t, err)
		assert.True(t, seeded)
		mockRepo.AssertExpectations(t)
	})

	t.Run("upsert failure aborts seeding", func(t *testing.T) {
		service, mockRepo := setupCatalogServiceTest()
		repoErr := errors.New("insert failed")
		mockRepo.On("Count", mock.Anything).Return(0, nil).Once()
		mockRepo.On("Upsert", mock.Anything, mock.Anything).Return(repoErr).Once()

		_, err := service.SeedPlanTemplates(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repoErr))
		mockRepo.AssertExpectations(t)
	})
}

func TestBuiltinTemplates(t *testing.T) {
	templates := builtinTemplates()
	require.Len(t, templates, ExpectedTemplateCount)

	byID := map[string]*types.PlanTemplate{}
	for _, tmpl := range templates {
		byID[tmpl.ID] = tmpl
	}

	free, ok := byID["free"]
	require.True(t, ok)
	assert.True(t, free.IsFree())

	basic, ok := byID["coop_basic"]
	require.True(t, ok)
	assert.Equal(t, int64(300), basic.Pricing.Monthly.SeatPrice)
	assert.Equal(t, int64(200), basic.Pricing.Monthly.SponsoredSeatPrice)
	assert.False(t, basic.IsFree())

	enterprise, ok := byID["enterprise_default"]
	require.True(t, ok)
	assert.False(t, enterprise.IsPublic)
}
