package seats

import (
	"fmt"

	"github.com/agrocoop/billing-api/internal/types"
)

// poolUsage is the current seat usage with the target member excluded, so a
// seat-type switch never double-counts its own holder.
type poolUsage struct {
	Paid      int
	Sponsored int
}

// checkAssignable rejects requests for non-seat types and seats on members
// that are not active.
func checkAssignable(member *types.Member, seatType types.SeatType) error {
	if seatType != types.SeatPaid && seatType != types.SeatSponsored {
		return fmt.Errorf("seat type %q is not assignable: %w", seatType, types.ErrBadRequest)
	}
	if member.Status != types.MemberActive {
		return fmt.Errorf("member %s has status %s: %w", member.ID, member.Status, types.ErrMemberNotActive)
	}
	return nil
}

// checkCapacity enforces the pool invariant: usage never exceeds the
// subscription's totals.
func checkCapacity(seatType types.SeatType, usage poolUsage, totals types.SeatTotals) error {
	switch seatType {
	case types.SeatPaid:
		if usage.Paid+1 > totals.PaidTotal {
			return fmt.Errorf("No paid seats remaining: %w", types.ErrNoSeatsRemaining)
		}
	case types.SeatSponsored:
		if usage.Sponsored+1 > totals.SponsoredTotal {
			return fmt.Errorf("No sponsored seats remaining: %w", types.ErrNoSeatsRemaining)
		}
	}
	return nil
}

// seatDelta is the signed pool change when a member moves between seat types.
func seatDelta(oldSeat, newSeat types.SeatType) types.SeatDelta {
	var delta types.SeatDelta
	switch oldSeat {
	case types.SeatPaid:
		delta.Paid--
	case types.SeatSponsored:
		delta.Sponsored--
	}
	switch newSeat {
	case types.SeatPaid:
		delta.Paid++
	case types.SeatSponsored:
		delta.Sponsored++
	}
	return delta
}

// usageAfter applies the assignment to the exclusive usage counts.
func usageAfter(usage poolUsage, newSeat types.SeatType, totals types.SeatTotals) types.UsageSnapshot {
	snapshot := types.UsageSnapshot{
		PaidUsed:       usage.Paid,
		PaidTotal:      totals.PaidTotal,
		SponsoredUsed:  usage.Sponsored,
		SponsoredTotal: totals.SponsoredTotal,
	}
	switch newSeat {
	case types.SeatPaid:
		snapshot.PaidUsed++
	case types.SeatSponsored:
		snapshot.SponsoredUsed++
	}
	return snapshot
}

func assignEvent(seatType types.SeatType) types.LedgerEventType {
	if seatType == types.SeatSponsored {
		return types.EventSponsoredAssigned
	}
	return types.EventSeatAssigned
}

func unassignEvent(seatType types.SeatType) types.LedgerEventType {
	if seatType == types.SeatSponsored {
		return types.EventSponsoredUnassigned
	}
	return types.EventSeatUnassigned
}
