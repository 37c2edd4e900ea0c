package types

// DeriveEntitlement computes the capability snapshot for a member from their
// seat, roster status, and the subscription's feature set. Grants are
// all-or-nothing: a seat holder receives the full enabled set, never a subset.
func DeriveEntitlement(seat SeatType, memberActive bool, subscriptionFeatures FeatureSet) Entitlement {
	premium := memberActive && seat != SeatNone
	features := make(FeatureSet, len(AllFeatures()))
	for _, f := range AllFeatures() {
		features[f] = premium && subscriptionFeatures[f]
	}
	return Entitlement{PremiumActive: premium, Features: features}
}
