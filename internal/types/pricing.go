package types

import (
	"fmt"
	"time"
)

// PlanChangeAmount prices a plan change: selected seat counts times the
// template's per-seat prices for the chosen cycle.
func PlanChangeAmount(tmpl *PlanTemplate, cycle BillingCycle, seats SeatTotals) (int64, []LineItem) {
	pricing := tmpl.Pricing.ForCycle(cycle)
	items := make([]LineItem, 0, 2)
	var total int64
	if seats.PaidTotal > 0 {
		amount := int64(seats.PaidTotal) * pricing.SeatPrice
		items = append(items, LineItem{
			Description: fmt.Sprintf("%s paid seats (%s)", tmpl.DisplayName, cycle),
			Quantity:    seats.PaidTotal,
			UnitPrice:   pricing.SeatPrice,
			Amount:      amount,
		})
		total += amount
	}
	if seats.SponsoredTotal > 0 {
		amount := int64(seats.SponsoredTotal) * pricing.SponsoredSeatPrice
		items = append(items, LineItem{
			Description: fmt.Sprintf("%s sponsored seats (%s)", tmpl.DisplayName, cycle),
			Quantity:    seats.SponsoredTotal,
			UnitPrice:   pricing.SponsoredSeatPrice,
			Amount:      amount,
		})
		total += amount
	}
	return total, items
}

// SeatPurchaseAmount prices an incremental seat purchase at the
// subscription's current per-seat price.
func SeatPurchaseAmount(sub *Subscription, seatType SeatType, qty int) (int64, []LineItem) {
	unit := sub.SeatPrice
	desc := "Additional paid seats"
	if seatType == SeatSponsored {
		unit = sub.SponsoredSeatPrice
		desc = "Additional sponsored seats"
	}
	amount := int64(qty) * unit
	return amount, []LineItem{{Description: desc, Quantity: qty, UnitPrice: unit, Amount: amount}}
}

// NextRenewal advances the renewal date by one billing period.
func NextRenewal(from time.Time, cycle BillingCycle) time.Time {
	if cycle == CycleAnnual {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// MonthPeriod returns the calendar-month billing period containing now.
func MonthPeriod(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// PlanPatch is the subscription mutation a template application produces.
type PlanPatch struct {
	PlanID             string
	TemplateID         string
	BillingCycle       BillingCycle
	Currency           string
	SeatPrice          int64
	SponsoredSeatPrice int64
	Features           FeatureSet
	Seats              SeatTotals
	Limits             UsageLimits
	Overrides          *SubscriptionOverrides
}

// BuildPlanPatch merges a template onto a subscription. Seat counts default
// to the template allocation when none are selected. Unless resetOverrides is
// set, per-org overrides carried on the prior subscription survive and are
// re-applied on top of the template defaults.
func BuildPlanPatch(tmpl *PlanTemplate, cycle BillingCycle, seats SeatTotals, prior *Subscription, resetOverrides bool) PlanPatch {
	if cycle != CycleAnnual {
		cycle = CycleMonthly
	}
	if seats.IsZero() {
		seats = tmpl.DefaultSeats
	}
	pricing := tmpl.Pricing.ForCycle(cycle)
	patch := PlanPatch{
		PlanID:             tmpl.ID,
		TemplateID:         tmpl.ID,
		BillingCycle:       cycle,
		Currency:           tmpl.Currency,
		SeatPrice:          pricing.SeatPrice,
		SponsoredSeatPrice: pricing.SponsoredSeatPrice,
		Features:           tmpl.Features.Clone(),
		Seats:              seats,
		Limits:             tmpl.Limits,
	}
	if resetOverrides || prior == nil || prior.Overrides == nil {
		return patch
	}
	ov := prior.Overrides
	for f, v := range ov.Features {
		patch.Features[f] = v
	}
	if ov.SeatPrice != nil {
		patch.SeatPrice = *ov.SeatPrice
	}
	if ov.SponsoredSeatPrice != nil {
		patch.SponsoredSeatPrice = *ov.SponsoredSeatPrice
	}
	patch.Overrides = ov
	return patch
}
