package main

import (
	"fmt"
	"log/slog"
	"time"

	apihttp "github.com/agrocoop/billing-api/internal/api"
	"github.com/agrocoop/billing-api/internal/domain/billing"
	"github.com/agrocoop/billing-api/internal/domain/catalog"
	"github.com/agrocoop/billing-api/internal/domain/ledger"
	"github.com/agrocoop/billing-api/internal/domain/members"
	"github.com/agrocoop/billing-api/internal/domain/seats"
	"github.com/agrocoop/billing-api/internal/domain/subscription"
	"github.com/agrocoop/billing-api/pkg/config"
	"github.com/agrocoop/billing-api/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	LedgerRepo       ledger.Repository
	CatalogRepo      catalog.Repository
	MemberRepo       members.Repository
	SubscriptionRepo subscription.Repository
	SeatRepo         seats.Repository
	BillingRepo      billing.Repository

	// Services
	LedgerService       ledger.Service
	CatalogService      catalog.Service
	MemberService       members.Service
	BillingService      billing.Service
	SubscriptionService subscription.Service
	SeatService         seats.Service

	// Handlers
	CatalogHandler      *apihttp.CatalogHandler
	SubscriptionHandler *apihttp.SubscriptionHandler
	MemberHandler       *apihttp.MemberHandler
	SeatHandler         *apihttp.SeatHandler
	BillingHandler      *apihttp.BillingHandler
	LedgerHandler       *apihttp.LedgerHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	deps.initRepositories()
	deps.initServices()
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.LedgerRepo = ledger.NewRepository(d.DB.Pool, d.Logger)
	d.CatalogRepo = catalog.NewRepository(d.DB.Pool, d.Logger)
	d.MemberRepo = members.NewRepository(d.DB.Pool, d.Logger)
	d.SubscriptionRepo = subscription.NewRepository(d.DB.Pool, d.LedgerRepo, d.Logger)
	d.SeatRepo = seats.NewRepository(d.DB.Pool, d.LedgerRepo, d.Logger)
	d.BillingRepo = billing.NewRepository(d.DB.Pool, d.LedgerRepo, d.Logger)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() {
	d.LedgerService = ledger.NewService(d.LedgerRepo, d.Logger)
	d.CatalogService = catalog.NewService(d.CatalogRepo, d.Logger)
	d.MemberService = members.NewService(d.MemberRepo, d.Logger)
	d.BillingService = billing.NewService(d.BillingRepo, d.SubscriptionRepo, d.Logger)
	d.SubscriptionService = subscription.NewService(d.SubscriptionRepo, d.CatalogService, d.BillingService, d.Logger)

	d.SeatService = seats.NewService(d.SeatRepo, d.SubscriptionRepo, d.MemberRepo, d.Logger)

	d.Logger.Info("services initialized")
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.CatalogHandler = apihttp.NewCatalogHandler(d.CatalogService, d.Logger)
	d.SubscriptionHandler = apihttp.NewSubscriptionHandler(d.SubscriptionService, d.Logger)
	d.MemberHandler = apihttp.NewMemberHandler(d.MemberService, d.Logger)
	d.SeatHandler = apihttp.NewSeatHandler(d.SeatService, d.Logger)
	d.BillingHandler = apihttp.NewBillingHandler(d.BillingService, d.Logger)
	d.LedgerHandler = apihttp.NewLedgerHandler(d.LedgerService, d.Logger)
	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
