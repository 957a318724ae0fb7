package domain

import "time"

// PlanType enumerates billing plan tiers.
type PlanType string

const (
	PlanFreemium PlanType = "freemium"
	PlanPro      PlanType = "pro"
	PlanCustom   PlanType = "custom"
)

// SubscriptionStatus reflects the state of the account's paid subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionInactive  SubscriptionStatus = "inactive"
)

// FreemiumCredits is the allotment granted on signup and restored by the
// monthly refresh.
const FreemiumCredits = 200

// Account represents an authenticated account and its spendable credit
// balance. The balance is only ever mutated through the ledger's atomic
// repository operations; Credits is never persisted negative.
type Account struct {
	ID                 string
	GoogleSub          string
	Email              string
	Name               string
	Locale             string
	Plan               PlanType
	Credits            int
	SubscriptionStatus SubscriptionStatus
	LastCreditRefresh  time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsFreemium reports whether the account is on the freemium tier.
func (a Account) IsFreemium() bool {
	return a.Plan == PlanFreemium
}

// SubscriptionLapsed reports whether a paid account should be downgraded.
func (a Account) SubscriptionLapsed() bool {
	return a.Plan != PlanFreemium &&
		(a.SubscriptionStatus == SubscriptionCancelled || a.SubscriptionStatus == SubscriptionInactive)
}
