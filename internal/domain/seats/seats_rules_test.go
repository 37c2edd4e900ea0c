package seats

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrocoop/billing-api/internal/types"
)

func activeMember() *types.Member {
	return &types.Member{ID: uuid.New(), Status: types.MemberActive, SeatType: types.SeatNone}
}

func TestCheckAssignable(t *testing.T) {
	t.Run("active member can take a paid seat", func(t *testing.T) {
		require.NoError(t, checkAssignable(activeMember(), types.SeatPaid))
	})

	t.Run("none is not an assignable seat type", func(t *testing.T) {
		err := checkAssignable(activeMember(), types.SeatNone)
		assert.True(t, errors.Is(err, types.ErrBadRequest))
	})

	t.Run("suspended member cannot take a seat", func(t *testing.T) {
		member := activeMember()
		member.Status = types.MemberSuspended
		err := checkAssignable(member, types.SeatSponsored)
		assert.True(t, errors.Is(err, types.ErrMemberNotActive))
	})
}

func TestCheckCapacity(t *testing.T) {
	totals := types.SeatTotals{PaidTotal: 10, SponsoredTotal: 5}

	t.Run("last paid seat fits", func(t *testing.T) {
		require.NoError(t, checkCapacity(types.SeatPaid, poolUsage{Paid: 9}, totals))
	})

	t.Run("paid pool full", func(t *testing.T) {
		err := checkCapacity(types.SeatPaid, poolUsage{Paid: 10}, totals)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrNoSeatsRemaining))
		assert.Contains(t, err.Error(), "No paid seats remaining")
	})

	t.Run("sponsored pool full", func(t *testing.T) {
		err := checkCapacity(types.SeatSponsored, poolUsage{Sponsored: 5}, totals)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrNoSeatsRemaining))
		assert.Contains(t, err.Error(), "No sponsored seats remaining")
	})

	t.Run("pools are independent", func(t *testing.T) {
		require.NoError(t, checkCapacity(types.SeatSponsored, poolUsage{Paid: 10, Sponsored: 4}, totals))
	})
}

func TestSeatDelta(t *testing.T) {
	assert.Equal(t, types.SeatDelta{Paid: 1}, seatDelta(types.SeatNone, types.SeatPaid))
	assert.Equal(t, types.SeatDelta{Sponsored: -1}, seatDelta(types.SeatSponsored, types.SeatNone))
	assert.Equal(t, types.SeatDelta{Paid: -1, Sponsored: 1}, seatDelta(types.SeatPaid, types.SeatSponsored))
	assert.Equal(t, types.SeatDelta{}, seatDelta(types.SeatNone, types.SeatNone))
}

func TestUsageAfter(t *testing.T) {
	totals := types.SeatTotals{PaidTotal: 10, SponsoredTotal: 5}
	usage := poolUsage{Paid: 3, Sponsored: 2}

	t.Run("paid assignment counts the target member", func(t *testing.T) {
		snapshot := usageAfter(usage, types.SeatPaid, totals)
		assert.Equal(t, 4, snapshot.PaidUsed)
		assert.Equal(t, 2, snapshot.SponsoredUsed)
		assert.Equal(t, 10, snapshot.PaidTotal)
	})

	t.Run("unassignment leaves the exclusive counts", func(t *testing.T) {
		snapshot := usageAfter(usage, types.SeatNone, totals)
		assert.Equal(t, 3, snapshot.PaidUsed)
		assert.Equal(t, 2, snapshot.SponsoredUsed)
	})
}

func TestSeatEvents(t *testing.T) {
	assert.Equal(t, types.EventSeatAssigned, assignEvent(types.SeatPaid))
	assert.Equal(t, types.EventSponsoredAssigned, assignEvent(types.SeatSponsored))
	assert.Equal(t, types.EventSeatUnassigned, unassignEvent(types.SeatPaid))
	assert.Equal(t, types.EventSponsoredUnassigned, unassignEvent(types.SeatSponsored))
}
