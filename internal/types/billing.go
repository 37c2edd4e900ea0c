package types

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle state of an org subscription.
type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPaused   SubscriptionStatus = "paused"
)

// BillingCycle selects which pricing column of a plan applies.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// SeatType is the single seat field per member. Legacy systems carried the
// same value under several names; here there is exactly one.
type SeatType string

const (
	SeatNone      SeatType = "none"
	SeatPaid      SeatType = "paid"
	SeatSponsored SeatType = "sponsored"
)

// MemberStatus is the roster status of a cooperative member.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberPending   MemberStatus = "pending"
	MemberSuspended MemberStatus = "suspended"
	MemberRejected  MemberStatus = "rejected"
	MemberLeft      MemberStatus = "left"
)

// InvoiceStatus transitions once, unpaid -> paid.
type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "unpaid"
	InvoicePaid   InvoiceStatus = "paid"
)

// PaymentStatus transitions once, pending -> confirmed.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// InvoicePurpose distinguishes what a paid invoice unlocks.
type InvoicePurpose string

const (
	PurposeSeatPurchase InvoicePurpose = "seat_purchase"
	PurposePlanChange   InvoicePurpose = "plan_change"
)

// LedgerEventType enumerates every billing mutation recorded in the ledger.
type LedgerEventType string

const (
	EventTrialStarted        LedgerEventType = "TRIAL_STARTED"
	EventTrialExpired        LedgerEventType = "TRIAL_EXPIRED"
	EventPaidSeatPurchased   LedgerEventType = "PAID_SEAT_PURCHASED"
	EventSponsoredSeatAdded  LedgerEventType = "SPONSORED_SEAT_ADDED"
	EventSeatAssigned        LedgerEventType = "SEAT_ASSIGNED"
	EventSeatUnassigned      LedgerEventType = "SEAT_UNASSIGNED"
	EventSponsoredAssigned   LedgerEventType = "SPONSORED_SEAT_ASSIGNED"
	EventSponsoredUnassigned LedgerEventType = "SPONSORED_SEAT_UNASSIGNED"
	EventPlanChanged         LedgerEventType = "PLAN_CHANGED"
	EventPlanRenewed         LedgerEventType = "PLAN_RENEWED"
	EventPlanCanceled        LedgerEventType = "PLAN_CANCELED"
	EventInvoiceCreated      LedgerEventType = "INVOICE_CREATED"
	EventPaymentMarkedPaid   LedgerEventType = "PAYMENT_MARKED_PAID"
)

// Feature is an enumerated premium capability.
type Feature string

const (
	FeatureMarketPrices    Feature = "market_prices"
	FeatureWeatherAlerts   Feature = "weather_alerts"
	FeatureBulkMessaging   Feature = "bulk_messaging"
	FeatureReportExport    Feature = "report_export"
	FeatureAPIAccess       Feature = "api_access"
	FeaturePrioritySupport Feature = "priority_support"
)

// AllFeatures returns every known capability, in a stable order.
func AllFeatures() []Feature {
	return []Feature{
		FeatureMarketPrices,
		FeatureWeatherAlerts,
		FeatureBulkMessaging,
		FeatureReportExport,
		FeatureAPIAccess,
		FeaturePrioritySupport,
	}
}

// FeatureSet maps capabilities to whether they are granted.
type FeatureSet map[Feature]bool

// Clone returns a copy so callers can mutate without aliasing.
func (f FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ZeroFeatures returns a set with every known capability disabled.
func ZeroFeatures() FeatureSet {
	out := make(FeatureSet, len(AllFeatures()))
	for _, f := range AllFeatures() {
		out[f] = false
	}
	return out
}

// FullFeatures returns a set with every known capability enabled.
func FullFeatures() FeatureSet {
	out := make(FeatureSet, len(AllFeatures()))
	for _, f := range AllFeatures() {
		out[f] = true
	}
	return out
}

// Actor identifies who performed an operation, for audit attribution.
type Actor struct {
	ID   string `json:"uid"`
	Name string `json:"name"`
}

// SeatPricing is the per-seat price pair for one billing cycle.
type SeatPricing struct {
	SeatPrice          int64 `json:"seatPrice"`
	SponsoredSeatPrice int64 `json:"sponsoredSeatPrice"`
}

// PlanPricing holds both cycle variants of a plan's seat pricing.
type PlanPricing struct {
	Monthly           SeatPricing `json:"monthly"`
	Annual            SeatPricing `json:"annual"`
	AnnualDiscountPct int         `json:"annualDiscountPct"`
}

// ForCycle selects the pricing pair for a billing cycle.
func (p PlanPricing) ForCycle(c BillingCycle) SeatPricing {
	if c == CycleAnnual {
		return p.Annual
	}
	return p.Monthly
}

// SeatTotals is the capacity of each seat pool on a subscription.
type SeatTotals struct {
	PaidTotal      int `json:"paidTotal"`
	SponsoredTotal int `json:"sponsoredTotal"`
}

// IsZero reports whether no seats are allocated at all.
func (s SeatTotals) IsZero() bool {
	return s.PaidTotal == 0 && s.SponsoredTotal == 0
}

// UsageLimits caps roster and tracked-market growth per plan.
type UsageLimits struct {
	MaxMembers        int `json:"maxMembers"`
	MaxTrackedMarkets int `json:"maxTrackedMarkets"`
}

// PlanTemplate is an immutable-per-version catalog entry a subscription can
// be instantiated from.
type PlanTemplate struct {
	ID           string      `json:"id"`
	DisplayName  string      `json:"displayName"`
	Currency     string      `json:"currency"`
	Pricing      PlanPricing `json:"pricing"`
	DefaultSeats SeatTotals  `json:"defaultSeats"`
	Features     FeatureSet  `json:"features"`
	Limits       UsageLimits `json:"limits"`
	IsPublic     bool        `json:"isPublic"`
	DisplayRank  int         `json:"displayRank"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// IsFree reports whether the template requires no payment for any cycle.
func (t *PlanTemplate) IsFree() bool {
	return t.Pricing.Monthly.SeatPrice == 0 && t.Pricing.Monthly.SponsoredSeatPrice == 0 &&
		t.Pricing.Annual.SeatPrice == 0 && t.Pricing.Annual.SponsoredSeatPrice == 0
}

// SubscriptionOverrides are per-org deviations that survive a plan
// re-application unless explicitly reset.
type SubscriptionOverrides struct {
	Features           FeatureSet `json:"features,omitempty"`
	SeatPrice          *int64     `json:"seatPrice,omitempty"`
	SponsoredSeatPrice *int64     `json:"sponsoredSeatPrice,omitempty"`
}

// Subscription is the mutable entitlement root, one per org.
type Subscription struct {
	OrgID              string                 `json:"orgId"`
	PlanID             string                 `json:"planId"`
	Status             SubscriptionStatus     `json:"status"`
	StartedAt          time.Time              `json:"startedAt"`
	TrialEndsAt        *time.Time             `json:"trialEndsAt,omitempty"`
	RenewAt            *time.Time             `json:"renewAt,omitempty"`
	CancelAt           *time.Time             `json:"cancelAt,omitempty"`
	BillingCycle       BillingCycle           `json:"billingCycle"`
	Currency           string                 `json:"currency"`
	ExchangeRate       float64                `json:"exchangeRate"`
	SeatPrice          int64                  `json:"seatPrice"`
	SponsoredSeatPrice int64                  `json:"sponsoredSeatPrice"`
	Features           FeatureSet             `json:"features"`
	Seats              SeatTotals             `json:"seats"`
	Limits             UsageLimits            `json:"limits"`
	TemplateID         *string                `json:"templateId,omitempty"`
	Overrides          *SubscriptionOverrides `json:"overrides,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// BillingSettings are per-org billing toggles.
type BillingSettings struct {
	OrgID                         string    `json:"orgId"`
	StaffCanManageBilling         bool      `json:"staffCanManageBilling"`
	AutoUnassignSeatsOnSuspension bool      `json:"autoUnassignSeatsOnSuspension"`
	UpdatedAt                     time.Time `json:"updatedAt"`
}

// Entitlement is the derived capability snapshot stored on a member.
type Entitlement struct {
	PremiumActive bool       `json:"premiumActive"`
	Features      FeatureSet `json:"features"`
}

// Member is a cooperative member who may hold at most one seat.
type Member struct {
	ID             uuid.UUID    `json:"id"`
	OrgID          string       `json:"orgId"`
	DisplayName    string       `json:"displayName"`
	Email          string       `json:"email"`
	Status         MemberStatus `json:"status"`
	SeatType       SeatType     `json:"seatType"`
	SeatAssignedBy *string      `json:"seatAssignedBy,omitempty"`
	SeatAssignedAt *time.Time   `json:"seatAssignedAt,omitempty"`
	Entitlement    Entitlement  `json:"entitlement"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// SeatDelta is the signed change in each seat pool recorded on a ledger entry.
type SeatDelta struct {
	Paid      int `json:"paid"`
	Sponsored int `json:"sponsored"`
}

// UsageSnapshot is the post-mutation seat usage captured alongside a ledger
// entry.
type UsageSnapshot struct {
	PaidUsed       int `json:"paidUsed"`
	PaidTotal      int `json:"paidTotal"`
	SponsoredUsed  int `json:"sponsoredUsed"`
	SponsoredTotal int `json:"sponsoredTotal"`
}

// SeatUsage is the display-only usage report. Never a decision input for
// mutations; those recompute inside their own transaction.
type SeatUsage struct {
	PaidUsed           int `json:"paidUsed"`
	PaidTotal          int `json:"paidTotal"`
	PaidRemaining      int `json:"paidRemaining"`
	SponsoredUsed      int `json:"sponsoredUsed"`
	SponsoredTotal     int `json:"sponsoredTotal"`
	SponsoredRemaining int `json:"sponsoredRemaining"`
	ActiveMembers      int `json:"activeMembers"`
	PremiumMembers     int `json:"premiumMembers"`
}

// Snapshot converts the report into the form stored on ledger entries.
func (u SeatUsage) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		PaidUsed:       u.PaidUsed,
		PaidTotal:      u.PaidTotal,
		SponsoredUsed:  u.SponsoredUsed,
		SponsoredTotal: u.SponsoredTotal,
	}
}

// LedgerEntry is an append-only audit record. Never updated or deleted.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	OrgID     string          `json:"orgId"`
	EventType LedgerEventType `json:"eventType"`
	Actor     Actor           `json:"actor"`
	MemberID  *uuid.UUID      `json:"memberId,omitempty"`
	Delta     *SeatDelta      `json:"delta,omitempty"`
	Snapshot  *UsageSnapshot  `json:"snapshot,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// LineItem is one billed position on an invoice.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Amount      int64  `json:"amount"`
}

// Invoice is a billing period's claim for payment.
type Invoice struct {
	ID                 uuid.UUID      `json:"id"`
	OrgID              string         `json:"orgId"`
	Status             InvoiceStatus  `json:"status"`
	Purpose            InvoicePurpose `json:"purpose"`
	PeriodStart        time.Time      `json:"periodStart"`
	PeriodEnd          time.Time      `json:"periodEnd"`
	Amount             int64          `json:"amount"`
	Currency           string         `json:"currency"`
	LineItems          []LineItem     `json:"lineItems"`
	PaymentMethod      string         `json:"paymentMethod"`
	SeatType           SeatType       `json:"seatType"`
	Quantity           int            `json:"quantity"`
	TargetPlanID       *string        `json:"targetPlanId,omitempty"`
	TargetBillingCycle *BillingCycle  `json:"targetBillingCycle,omitempty"`
	TargetSeats        *SeatTotals    `json:"targetSeats,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	PaidAt             *time.Time     `json:"paidAt,omitempty"`
}

// Payment is the payer-facing counterpart of an invoice, paired 1:1.
type Payment struct {
	ID          uuid.UUID     `json:"id"`
	OrgID       string        `json:"orgId"`
	InvoiceID   uuid.UUID     `json:"invoiceId"`
	Amount      int64         `json:"amount"`
	Method      string        `json:"method"`
	Status      PaymentStatus `json:"status"`
	ExternalRef string        `json:"externalRef,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	ConfirmedAt *time.Time    `json:"confirmedAt,omitempty"`
}
