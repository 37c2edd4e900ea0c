package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveEntitlement(t *testing.T) {
	subFeatures := FeatureSet{
		FeatureMarketPrices:  true,
		FeatureWeatherAlerts: true,
		FeatureBulkMessaging: false,
	}

	t.Run("active member with paid seat gets subscription features", func(t *testing.T) {
		ent := DeriveEntitlement(SeatPaid, true, subFeatures)
		assert.True(t, ent.PremiumActive)
		assert.True(t, ent.Features[FeatureMarketPrices])
		assert.True(t, ent.Features[FeatureWeatherAlerts])
		assert.False(t, ent.Features[FeatureBulkMessaging])
		assert.False(t, ent.Features[FeatureAPIAccess])
	})

	t.Run("sponsored seat is premium too", func(t *testing.T) {
		ent := DeriveEntitlement(SeatSponsored, true, subFeatures)
		assert.True(t, ent.PremiumActive)
		assert.True(t, ent.Features[FeatureMarketPrices])
	})

	t.Run("seatless member has nothing", func(t *testing.T) {
		ent := DeriveEntitlement(SeatNone, true, subFeatures)
		assert.False(t, ent.PremiumActive)
		for _, f := range AllFeatures() {
			assert.False(t, ent.Features[f], "feature %s should be off", f)
		}
	})

	t.Run("inactive member with a seat has nothing", func(t *testing.T) {
		ent := DeriveEntitlement(SeatPaid, false, subFeatures)
		assert.False(t, ent.PremiumActive)
		for _, f := range AllFeatures() {
			assert.False(t, ent.Features[f], "feature %s should be off", f)
		}
	})

	t.Run("zeroed subscription grants no features even with a seat", func(t *testing.T) {
		ent := DeriveEntitlement(SeatPaid, true, ZeroFeatures())
		assert.True(t, ent.PremiumActive)
		for _, f := range AllFeatures() {
			assert.False(t, ent.Features[f], "feature %s should be off", f)
		}
	})
}
