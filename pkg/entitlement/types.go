package entitlement

import (
	"strings"

	"github.com/google/uuid"
)

// Tier is the ordered access level a subscriber pays for.
// The ordering basic < premium < vip is fixed and used for access
// decisions: a subscriber at tier T may access content requiring any
// tier with a smaller or equal ordinal.
type Tier string

const (
	// TierNone marks content with no tier requirement. It is never a
	// valid subscription tier.
	TierNone    Tier = "none"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// Ordinal returns the position of the tier in the fixed ordering.
// Unknown tiers return -1 so they never satisfy a requirement.
func (t Tier) Ordinal() int {
	switch t {
	case TierNone:
		return 0
	case TierBasic:
		return 1
	case TierPremium:
		return 2
	case TierVIP:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether the tier satisfies the required tier. An
// unknown tier on either side never satisfies the comparison.
func (t Tier) AtLeast(required Tier) bool {
	have, want := t.Ordinal(), required.Ordinal()
	if have < 0 || want < 0 {
		return false
	}
	return have >= want
}

// Valid reports whether the tier is a purchasable subscription tier.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierVIP:
		return true
	default:
		return false
	}
}

// ParseTier converts external input into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidTier
	}
	return t, nil
}

// BillingCycle determines the length of a billing period and therefore
// how EndDate and RenewalDate are derived.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// Valid reports whether the cycle is one of the supported billing cycles.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	default:
		return false
	}
}

// ParseBillingCycle converts external input into a BillingCycle.
// Empty input defaults to monthly.
func ParseBillingCycle(s string) (BillingCycle, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CycleMonthly, nil
	}
	c := BillingCycle(s)
	if !c.Valid() {
		return "", ErrInvalidBillingCycle
	}
	return c, nil
}

// State is the lifecycle state of a subscription record.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StatePastDue   State = "past_due"
	StateCancelled State = "cancelled"
	StateSuspended State = "suspended"
)

// IsTerminal reports whether no further payment-driven transitions are
// possible from the state.
func (s State) IsTerminal() bool {
	return s == StateCancelled
}

// GrantsAccess reports whether the state counts as access-granting.
// Callers must additionally check EndDate; see Subscription.GrantsAccessAt.
func (s State) GrantsAccess() bool {
	return s == StateActive
}

// PaymentStatus is the outcome recorded for a single ledger entry.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// CancellationReason explains why a subscription was cancelled.
type CancellationReason string

const (
	ReasonUserRequest      CancellationReason = "user-request"
	ReasonPaymentFailure   CancellationReason = "payment-failure"
	ReasonPolicyViolation  CancellationReason = "policy-violation"
	ReasonCreatorSuspended CancellationReason = "creator-suspended"
	ReasonOther            CancellationReason = "other"
)

// Role is the coarse authorization role of an authenticated principal.
// Token issuance and credential checking are external concerns; the
// engine only consumes the resolved (id, role) pair.
type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Principal is an authenticated identity as resolved by the
// authentication subsystem.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin reports whether the principal holds the administrative role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
