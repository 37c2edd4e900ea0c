package subscription

import (
	"time"

	"github.com/agrocoop/billing-api/internal/types"
)

// TrialPlanID marks a subscription created by the lazy initializer rather
// than from a catalog template.
const TrialPlanID = "coop_trial"

const trialDays = 60

var trialSeats = types.SeatTotals{PaidTotal: 10, SponsoredTotal: 5}

// newTrialSubscription builds the default subscription a fresh org starts
// with: full features for the trial window, no pricing until a plan is
// chosen.
func newTrialSubscription(orgID string, now time.Time) *types.Subscription {
	trialEnd := now.AddDate(0, 0, trialDays)
	return &types.Subscription{
		OrgID:        orgID,
		PlanID:       TrialPlanID,
		Status:       types.StatusTrialing,
		StartedAt:    now,
		TrialEndsAt:  &trialEnd,
		BillingCycle: types.CycleMonthly,
		Currency:     "KES",
		ExchangeRate: 1,
		Features:     types.FullFeatures(),
		Seats:        trialSeats,
		Limits:       types.UsageLimits{MaxMembers: 100, MaxTrackedMarkets: 5},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// defaultBillingSettings are created lazily the first time an org's billing
// is touched.
func defaultBillingSettings(orgID string, now time.Time) *types.BillingSettings {
	return &types.BillingSettings{
		OrgID:                         orgID,
		StaffCanManageBilling:         true,
		AutoUnassignSeatsOnSuspension: false,
		UpdatedAt:                     now,
	}
}
