package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AccessEvaluator answers allow/deny for gated content requests. It is
// consulted by the content-serving path on every request, so it only
// performs a single lock-free store read; a request racing a
// reconciliation may observe the pre- or post-update record, both of
// which are acceptable.
type AccessEvaluator struct {
	store SubscriptionStore
	now   func() time.Time
}

// NewAccessEvaluator creates an evaluator.
// Panics if store is nil to fail fast during initialization.
func NewAccessEvaluator(store SubscriptionStore) *AccessEvaluator {
	if store == nil {
		panic("entitlement: SubscriptionStore is required")
	}
	return &AccessEvaluator{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CanAccess decides whether the principal may access the owner's
// content at the required tier. A nil return means allow; denials are
// ErrSubscriptionRequired or ErrTierInsufficient. The stored state is
// never trusted alone: an "active" record whose EndDate has passed is
// denied, which covers the window where a renewal event has not been
// delivered yet.
func (e *AccessEvaluator) CanAccess(ctx context.Context, principal Principal, ownerID uuid.UUID, required Tier) error {
	if required == TierNone || required == "" {
		return nil
	}
	// A malformed requirement denies rather than falling open.
	if !required.Valid() {
		return ErrInvalidTier
	}
	if principal.ID == ownerID {
		return nil
	}
	if principal.IsAdmin() {
		return nil
	}

	sub, err := e.store.GetActiveByPair(ctx, principal.ID, ownerID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return ErrSubscriptionRequired
		}
		return err
	}

	now := e.now()
	if !sub.State.GrantsAccess() || sub.HasLapsedAt(now) {
		return ErrSubscriptionRequired
	}
	if !sub.Tier.AtLeast(required) {
		return ErrTierInsufficient
	}
	return nil
}
