package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agrocoop/billing-api/internal/types"
)

// MocksubscriptionRepo is a mock implementation of Repository
type MocksubscriptionRepo struct {
	mock.Mock
}

func (m *MocksubscriptionRepo) Get(ctx context.Context, orgID string) (*types.Subscription, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MocksubscriptionRepo) Ensure(ctx context.Context, orgID string, actor types.Actor) (*EnsureResult, error) {
	args := m.Called(ctx, orgID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EnsureResult), args.Error(1)
}

func (m *MocksubscriptionRepo) ApplyTemplate(ctx context.Context, orgID string, patch types.PlanPatch, actor types.Actor) (*types.Subscription, error) {
	args := m.Called(ctx, orgID, patch, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MocksubscriptionRepo) UpdatePlan(ctx context.Context, orgID string, patch types.PlanPatch, actor types.Actor) (*types.Subscription, error) {
	args := m.Called(ctx, orgID, patch, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MocksubscriptionRepo) GetSettings(ctx context.Context, orgID string) (*types.BillingSettings, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.BillingSettings), args.Error(1)
}

func (m *MocksubscriptionRepo) UpsertSettings(ctx context.Context, settings *types.BillingSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MocksubscriptionRepo) ListAutoUnassignOrgs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockcatalogService is a mock implementation of catalog.Service
type MockcatalogService struct {
	mock.Mock
}

func (m *MockcatalogService) LoadPlanTemplates(ctx context.Context) ([]*types.PlanTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PlanTemplate), args.Error(1)
}

func (m *MockcatalogService) GetPlanTemplate(ctx context.Context, id string) (*types.PlanTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PlanTemplate), args.Error(1)
}

func (m *MockcatalogService) SeedPlanTemplates(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// MockInvoicer is a mock implementation of Invoicer
type MockInvoicer struct {
	mock.Mock
}

func (m *MockInvoicer) CreatePlanChangeInvoice(ctx context.Context, orgID string, tmpl *types.PlanTemplate, cycle types.BillingCycle, seats types.SeatTotals, method string, actor types.Actor) (*types.Invoice, *types.Payment, error) {
	args := m.Called(ctx, orgID, tmpl, cycle, seats, method, actor)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*types.Invoice), args.Get(1).(*types.Payment), args.Error(2)
}

func setupSubscriptionServiceTest() (*ServiceImpl, *MocksubscriptionRepo, *MockcatalogService, *MockInvoicer) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockRepo := new(MocksubscriptionRepo)
	mockCatalog := new(MockcatalogService)
	mockInvoicer := new(MockInvoicer)
	service := NewService(mockRepo, mockCatalog, mockInvoicer, logger)
	return service, mockRepo, mockCatalog, mockInvoicer
}

func paidTemplate() *types.PlanTemplate {
	return &types.PlanTemplate{
		ID:       "coop_basic",
		Currency: "KES",
		Pricing: types.PlanPricing{
			Monthly: types.SeatPricing{SeatPrice: 300, SponsoredSeatPrice: 200},
			Annual:  types.SeatPricing{SeatPrice: 3240, SponsoredSeatPrice: 2160},
		},
		DefaultSeats: types.SeatTotals{PaidTotal: 10, SponsoredTotal: 5},
		Features:     types.FullFeatures(),
	}
}

func freeTemplate() *types.PlanTemplate {
	return &types.PlanTemplate{
		ID:           "free",
		Currency:     "KES",
		DefaultSeats: types.SeatTotals{},
		Features:     types.ZeroFeatures(),
	}
}

func TestSubscriptionServiceImpl_EnsureOrgSubscription(t *testing.T) {
	ctx := context.Background()
	actor := types.Actor{ID: "admin-1", Name: "Admin"}

	t.Run("new org gets a trial", func(t *testing.T) {
		service, mockRepo, _, _ := setupSubscriptionServiceTest()
		trialEnd := time.Now().UTC().AddDate(0, 0, 60)
		expected := &EnsureResult{
			Subscription: &types.Subscription{
				OrgID:       "org-1",
				PlanID:      TrialPlanID,
				Status:      types.StatusTrialing,
				TrialEndsAt: &trialEnd,
				Seats:       types.SeatTotals{PaidTotal: 10, SponsoredTotal: 5},
			},
			Created: true,
		}
		mockRepo.On("Ensure", mock.Anything, "org-1", actor).Return(expected, nil).Once()

		result, err := service.EnsureOrgSubscription(ctx, "org-1", actor)
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, TrialPlanID, result.Subscription.PlanID)
		assert.Equal(t, types.StatusTrialing, result.Subscription.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("expired trial is reported", func(t *testing.T) {
		service, mockRepo, _, _ := setupSubscriptionServiceTest()
		expected := &EnsureResult{
			Subscription: &types.Subscription{OrgID: "org-2", Status: types.StatusPaused, Features: types.ZeroFeatures()},
			Expired:      true,
		}
		mockRepo.On("Ensure", mock.Anything, "org-2", actor).Return(expected, nil).Once()

		result, err := service.EnsureOrgSubscription(ctx, "org-2", actor)
		require.NoError(t, err)
		assert.True(t, result.Expired)
		assert.Equal(t, types.StatusPaused, result.Subscription.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("repository error", func(t *testing.T) {
		service, mockRepo, _, _ := setupSubscriptionServiceTest()
		repoErr := errors.New("tx failed")
		mockRepo.On("Ensure", mock.Anything, "org-3", actor).Return(nil, repoErr).Once()

		_, err := service.EnsureOrgSubscription(ctx, "org-3", actor)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repoErr))
		mockRepo.AssertExpectations(t)
	})
}

func TestSubscriptionServiceImpl_BootstrapOrgBilling(t *testing.T) {
	ctx := context.Background()
	actor := types.Actor{ID: "admin-1"}

	service, mockRepo, mockCatalog, _ := setupSubscriptionServiceTest()
	mockCatalog.On("SeedPlanTemplates", mock.Anything).Return(true, nil).Once()
	mockRepo.On("Ensure", mock.Anything, "org-1", actor).
		Return(&EnsureResult{Subscription: &types.Subscription{OrgID: "org-1"}, Created: true}, nil).Once()

	result, err := service.BootstrapOrgBilling(ctx, "org-1", actor)
	require.NoError(t, err)
	assert.True(t, result.Created)
	mockCatalog.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestSubscriptionServiceImpl_ApplyPlanTemplate(t *testing.T) {
	ctx := context.Background()
	actor := types.Actor{ID: "admin-1"}

	t.Run("free plan applies immediately", func(t *testing.T) {
		service, mockRepo, mockCatalog, mockInvoicer := setupSubscriptionServiceTest()
		tmpl := freeTemplate()
		prior := &types.Subscription{OrgID: "org-1", PlanID: TrialPlanID}
		applied := &types.Subscription{OrgID: "org-1", PlanID: "free", Status: types.StatusActive}

		mockCatalog.On("GetPlanTemplate", mock.Anything, "free").Return(tmpl, nil).Once()
		mockRepo.On("Get", mock.Anything, "org-1").Return(prior, nil).Once()
		mockRepo.On("ApplyTemplate", mock.Anything, "org-1", mock.Anything, actor).Return(applied, nil).Once()

		result, err := service.ApplyPlanTemplate(ctx, "org-1", ApplyPlanRequest{PlanID: "free"}, actor)
		require.NoError(t, err)
		assert.False(t, result.RequiresPayment)
		assert.Equal(t, "free", result.Subscription.PlanID)
		mockInvoicer.AssertNotCalled(t, "CreatePlanChangeInvoice",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockRepo.AssertExpectations(t)
	})

	t.Run("paid plan opens an invoice and does not touch the subscription", func(t *testing.T) {
		service, mockRepo, mockCatalog, mockInvoicer := setupSubscriptionServiceTest()
		tmpl := paidTemplate()
		invoice := &types.Invoice{ID: uuid.New(), Amount: 7000, Currency: "KES"}
		payment := &types.Payment{ID: uuid.New(), InvoiceID: invoice.ID}

		mockCatalog.On("GetPlanTemplate", mock.Anything, "coop_basic").Return(tmpl, nil).Once()
		mockInvoicer.On("CreatePlanChangeInvoice",
			mock.Anything, "org-1", tmpl, types.CycleMonthly,
			types.SeatTotals{PaidTotal: 20, SponsoredTotal: 5}, "mpesa", actor).
			Return(invoice, payment, nil).Once()

		result, err := service.ApplyPlanTemplate(ctx, "org-1", ApplyPlanRequest{
			PlanID:        "coop_basic",
			BillingCycle:  types.CycleMonthly,
			Seats:         types.SeatTotals{PaidTotal: 20, SponsoredTotal: 5},
			PaymentMethod: "mpesa",
		}, actor)
		require.NoError(t, err)
		assert.True(t, result.RequiresPayment)
		assert.Equal(t, invoice.ID, result.InvoiceID)
		assert.Equal(t, payment.ID, result.PaymentID)
		assert.Equal(t, int64(7000), result.Amount)
		mockRepo.AssertNotCalled(t, "ApplyTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockInvoicer.AssertExpectations(t)
	})

	t.Run("unselected seats default to the template allocation", func(t *testing.T) {
		service, _, mockCatalog, mockInvoicer := setupSubscriptionServiceTest()
		tmpl := paidTemplate()

		mockCatalog.On("GetPlanTemplate", mock.Anything, "coop_basic").Return(tmpl, nil).Once()
		mockInvoicer.On("CreatePlanChangeInvoice",
			mock.Anything, "org-1", tmpl, types.CycleMonthly, tmpl.DefaultSeats, "", actor).
			Return(&types.Invoice{ID: uuid.New()}, &types.Payment{ID: uuid.New()}, nil).Once()

		_, err := service.ApplyPlanTemplate(ctx, "org-1", ApplyPlanRequest{PlanID: "coop_basic"}, actor)
		require.NoError(t, err)
		mockInvoicer.AssertExpectations(t)
	})

	t.Run("unknown template", func(t *testing.T) {
		service, _, mockCatalog, _ := setupSubscriptionServiceTest()
		mockCatalog.On("GetPlanTemplate", mock.Anything, "nope").
			Return(nil, types.ErrNotFound).Once()

		_, err := service.ApplyPlanTemplate(ctx, "org-1", ApplyPlanRequest{PlanID: "nope"}, actor)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestSubscriptionServiceImpl_UpdatePlan(t *testing.T) {
	ctx := context.Background()
	actor := types.Actor{ID: "admin-1"}

	t.Run("built-in plan resets to defaults", func(t *testing.T) {
		service, mockRepo, _, _ := setupSubscriptionServiceTest()
		updated := &types.Subscription{OrgID: "org-1", PlanID: "coop_basic", Status: types.StatusActive}
		mockRepo.On("UpdatePlan", mock.Anything, "org-1",
			mock.MatchedBy(func(patch types.PlanPatch) bool {
				return patch.PlanID == "coop_basic" && patch.Overrides == nil
			}), actor).Return(updated, nil).Once()

		sub, err := service.UpdatePlan(ctx, "org-1", "coop_basic", actor)
		require.NoError(t, err)
		assert.Equal(t, "coop_basic", sub.PlanID)
		mockRepo.AssertExpectations(t)
	})

	t.Run("unknown built-in plan", func(t *testing.T) {
		service, mockRepo, _, _ := setupSubscriptionServiceTest()
		_, err := service.UpdatePlan(ctx, "org-1", "mystery", actor)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrNotFound))
		mockRepo.AssertNotCalled(t, "UpdatePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNewTrialSubscription(t *testing.T) {
	now := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	sub := newTrialSubscription("org-1", now)

	assert.Equal(t, TrialPlanID, sub.PlanID)
	assert.Equal(t, types.StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, now.AddDate(0, 0, 60), *sub.TrialEndsAt)
	assert.Equal(t, types.SeatTotals{PaidTotal: 10, SponsoredTotal: 5}, sub.Seats)
	for _, f := range types.AllFeatures() {
		assert.True(t, sub.Features[f], "trial should enable %s", f)
	}
}
