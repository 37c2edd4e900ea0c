package catalog

import "github.com/agrocoop/billing-api/internal/types"

// ExpectedTemplateCount is the number of built-in templates; seeding is a
// no-op once the catalog holds at least this many entries.
const ExpectedTemplateCount = 4

// builtinTemplates returns the default plan catalog. Annual prices carry a
// 10% discount over twelve monthly periods.
func builtinTemplates() []*types.PlanTemplate {
	return []*types.PlanTemplate{
		{
			ID:          "free",
			DisplayName: "Free",
			Currency:    "KES",
			Pricing:     types.PlanPricing{},
			Features:    types.ZeroFeatures(),
			Limits:      types.UsageLimits{MaxMembers: 25, MaxTrackedMarkets: 2},
			IsPublic:    true,
			DisplayRank: 0,
		},
		{
			ID:          "coop_basic",
			DisplayName: "Co-op Basic",
			Currency:    "KES",
			Pricing: types.PlanPricing{
				Monthly:           types.SeatPricing{SeatPrice: 300, SponsoredSeatPrice: 200},
				Annual:            types.SeatPricing{SeatPrice: 3240, SponsoredSeatPrice: 2160},
				AnnualDiscountPct: 10,
			},
			DefaultSeats: types.SeatTotals{PaidTotal: 10, SponsoredTotal: 5},
			Features: types.FeatureSet{
				types.FeatureMarketPrices:    true,
				types.FeatureWeatherAlerts:   true,
				types.FeatureBulkMessaging:   false,
				types.FeatureReportExport:    true,
				types.FeatureAPIAccess:       false,
				types.FeaturePrioritySupport: false,
			},
			Limits:      types.UsageLimits{MaxMembers: 200, MaxTrackedMarkets: 10},
			IsPublic:    true,
			DisplayRank: 1,
		},
		{
			ID:          "coop_premium",
			DisplayName: "Co-op Premium",
			Currency:    "KES",
			Pricing: types.PlanPricing{
				Monthly:           types.SeatPricing{SeatPrice: 500, SponsoredSeatPrice: 300},
				Annual:            types.SeatPricing{SeatPrice: 5400, SponsoredSeatPrice: 3240},
				AnnualDiscountPct: 10,
			},
			DefaultSeats: types.SeatTotals{PaidTotal: 25, SponsoredTotal: 10},
			Features: types.FeatureSet{
				types.FeatureMarketPrices:    true,
				types.FeatureWeatherAlerts:   true,
				types.FeatureBulkMessaging:   true,
				types.FeatureReportExport:    true,
				types.FeatureAPIAccess:       false,
				types.FeaturePrioritySupport: true,
			},
			Limits:      types.UsageLimits{MaxMembers: 1000, MaxTrackedMarkets: 50},
			IsPublic:    true,
			DisplayRank: 2,
		},
		{
			ID:          "enterprise_default",
			DisplayName: "Enterprise",
			Currency:    "KES",
			Pricing: types.PlanPricing{
				Monthly:           types.SeatPricing{SeatPrice: 800, SponsoredSeatPrice: 500},
				Annual:            types.SeatPricing{SeatPrice: 8640, SponsoredSeatPrice: 5400},
				AnnualDiscountPct: 10,
			},
			DefaultSeats: types.SeatTotals{PaidTotal: 100, SponsoredTotal: 25},
			Features:     types.FullFeatures(),
			Limits:       types.UsageLimits{MaxMembers: 0, MaxTrackedMarkets: 0},
			IsPublic:     false,
			DisplayRank:  3,
		},
	}
}

// BuiltinTemplate returns the default definition of a built-in plan without
// touching the catalog store.
func BuiltinTemplate(id string) (*types.PlanTemplate, bool) {
	for _, tmpl := range builtinTemplates() {
		if tmpl.ID == id {
			return tmpl, true
		}
	}
	return nil, false
}
