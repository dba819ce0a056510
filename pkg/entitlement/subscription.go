package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is a subscriber's paid relationship with a creator.
// At most one subscription per (subscriber, creator) pair may be in an
// access-granting state at a time; historical records are retained.
type Subscription struct {
	ID           uuid.UUID
	SubscriberID uuid.UUID // immutable after creation
	CreatorID    uuid.UUID // immutable after creation

	Tier         Tier
	BillingCycle BillingCycle
	Price        Money // agreed at creation, changes only on tier update

	State State

	StartDate   time.Time
	EndDate     time.Time // always StartDate or last renewal plus one cycle
	RenewalDate time.Time

	AutoRenew bool

	// Gateway handles, required once the record leaves pending.
	ExternalSubscriptionID string
	ExternalCustomerID     string

	// Ledger is the append-only payment history. Entries are never
	// mutated or removed; refunds are appended as new entries.
	Ledger []PaymentEntry

	CancelledAt        *time.Time // set once, never cleared
	CancellationReason CancellationReason

	// EventWatermark is the occurred-at instant of the most recently
	// applied gateway event. Events older than the watermark are
	// discarded by the reconciler.
	EventWatermark time.Time

	// Version is the optimistic concurrency token checked by
	// SubscriptionStore.Update.
	Version uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentEntry is a single entry in the append-only payment ledger,
// idempotent by ExternalPaymentID.
type PaymentEntry struct {
	Amount            int64 // smallest currency unit
	Currency          string
	Status            PaymentStatus
	ExternalPaymentID string
	OccurredAt        time.Time
	FailureReason     string
}

// Money is a monetary amount in the smallest currency unit, e.g. $9.99
// USD is Amount: 999, Currency: "USD".
type Money struct {
	Amount   int64
	Currency string
}

// ComputePeriodEnd derives the end of a billing period from its start.
// This is the only place period arithmetic lives; EndDate and
// RenewalDate are never set independently of it.
func ComputePeriodEnd(start time.Time, cycle BillingCycle) time.Time {
	switch cycle {
	case CycleQuarterly:
		return start.AddDate(0, 3, 0)
	case CycleYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// GrantsAccessAt reports whether the subscription grants access to
// content requiring the given tier at the given instant. A stored
// "active" state that has silently lapsed past EndDate does not grant
// access; this is re-checked on every access decision as a safety net
// against reconciliation lag.
func (s *Subscription) GrantsAccessAt(now time.Time, required Tier) bool {
	if !s.State.GrantsAccess() {
		return false
	}
	if now.After(s.EndDate) {
		return false
	}
	return s.Tier.AtLeast(required)
}

// HasLapsedAt reports whether the paid period has ended at the given instant.
func (s *Subscription) HasLapsedAt(now time.Time) bool {
	return now.After(s.EndDate)
}

// HasPayment reports whether a ledger entry with the given external
// payment ID has already been recorded.
func (s *Subscription) HasPayment(externalPaymentID string) bool {
	for _, e := range s.Ledger {
		if e.ExternalPaymentID == externalPaymentID {
			return true
		}
	}
	return false
}

// FindPayment returns the ledger entry with the given external payment
// ID, or nil.
func (s *Subscription) FindPayment(externalPaymentID string) *PaymentEntry {
	for i := range s.Ledger {
		if s.Ledger[i].ExternalPaymentID == externalPaymentID {
			return &s.Ledger[i]
		}
	}
	return nil
}

// TotalPaid returns the sum of all succeeded ledger entries in the
// smallest currency unit.
func (s *Subscription) TotalPaid() int64 {
	var total int64
	for _, e := range s.Ledger {
		if e.Status == PaymentSucceeded {
			total += e.Amount
		}
	}
	return total
}

// MonthlyPrice normalizes the subscription price to a per-month amount
// for revenue reporting.
func (s *Subscription) MonthlyPrice() int64 {
	switch s.BillingCycle {
	case CycleQuarterly:
		return s.Price.Amount / 3
	case CycleYearly:
		return s.Price.Amount / 12
	default:
		return s.Price.Amount
	}
}

// clone returns a deep copy so store implementations never hand out
// aliased ledger slices.
func (s *Subscription) clone() *Subscription {
	c := *s
	if s.Ledger != nil {
		c.Ledger = make([]PaymentEntry, len(s.Ledger))
		copy(c.Ledger, s.Ledger)
	}
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
