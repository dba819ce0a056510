package entitlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

// currentSubscription builds a record whose period brackets the real
// clock, since the evaluator checks lapse against time.Now.
func currentSubscription(subscriber, creator uuid.UUID, tier entitlement.Tier) *entitlement.Subscription {
	sub := newTestSubscription(subscriber, creator)
	sub.Tier = tier
	sub.StartDate = time.Now().UTC().Add(-24 * time.Hour)
	sub.EndDate = time.Now().UTC().Add(29 * 24 * time.Hour)
	sub.RenewalDate = sub.EndDate
	return sub
}

func TestAccessEvaluatorCanAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	subscriber, creator, stranger := uuid.New(), uuid.New(), uuid.New()

	store := entitlement.NewInMemStore()
	require.NoError(t, store.Create(ctx, currentSubscription(subscriber, creator, entitlement.TierPremium)))
	evaluator := entitlement.NewAccessEvaluator(store)

	viewer := entitlement.Principal{ID: subscriber, Role: entitlement.RoleUser}

	t.Run("free content is open to anyone", func(t *testing.T) {
		anon := entitlement.Principal{ID: stranger, Role: entitlement.RoleUser}
		assert.NoError(t, evaluator.CanAccess(ctx, anon, creator, entitlement.TierNone))
		assert.NoError(t, evaluator.CanAccess(ctx, anon, creator, ""))
	})

	t.Run("owners always see their own content", func(t *testing.T) {
		owner := entitlement.Principal{ID: creator, Role: entitlement.RoleCreator}
		assert.NoError(t, evaluator.CanAccess(ctx, owner, creator, entitlement.TierVIP))
	})

	t.Run("admins bypass gating", func(t *testing.T) {
		admin := entitlement.Principal{ID: stranger, Role: entitlement.RoleAdmin}
		assert.NoError(t, evaluator.CanAccess(ctx, admin, creator, entitlement.TierVIP))
	})

	t.Run("no subscription denies", func(t *testing.T) {
		anon := entitlement.Principal{ID: stranger, Role: entitlement.RoleUser}
		assert.ErrorIs(t, evaluator.CanAccess(ctx, anon, creator, entitlement.TierBasic), entitlement.ErrSubscriptionRequired)
	})

	t.Run("sufficient tier allows", func(t *testing.T) {
		assert.NoError(t, evaluator.CanAccess(ctx, viewer, creator, entitlement.TierBasic))
		assert.NoError(t, evaluator.CanAccess(ctx, viewer, creator, entitlement.TierPremium))
	})

	t.Run("higher tier required denies", func(t *testing.T) {
		assert.ErrorIs(t, evaluator.CanAccess(ctx, viewer, creator, entitlement.TierVIP), entitlement.ErrTierInsufficient)
	})

	t.Run("subscription to one creator grants nothing elsewhere", func(t *testing.T) {
		assert.ErrorIs(t, evaluator.CanAccess(ctx, viewer, stranger, entitlement.TierBasic), entitlement.ErrSubscriptionRequired)
	})

	t.Run("malformed requirement denies every subscriber", func(t *testing.T) {
		assert.ErrorIs(t, evaluator.CanAccess(ctx, viewer, creator, entitlement.Tier("platinum")), entitlement.ErrInvalidTier)
	})
}

func TestAccessEvaluatorLapsedPeriod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	subscriber, creator := uuid.New(), uuid.New()

	// An active record whose paid period already ended. This happens
	// when a renewal event is delayed; access stops at the period
	// boundary regardless of the stored state.
	sub := currentSubscription(subscriber, creator, entitlement.TierVIP)
	sub.StartDate = time.Now().UTC().Add(-31 * 24 * time.Hour)
	sub.EndDate = time.Now().UTC().Add(-time.Hour)
	sub.RenewalDate = sub.EndDate

	store := entitlement.NewInMemStore()
	require.NoError(t, store.Create(ctx, sub))
	evaluator := entitlement.NewAccessEvaluator(store)

	viewer := entitlement.Principal{ID: subscriber, Role: entitlement.RoleUser}
	assert.ErrorIs(t, evaluator.CanAccess(ctx, viewer, creator, entitlement.TierBasic), entitlement.ErrSubscriptionRequired)
}

func TestAccessEvaluatorCancelledSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	subscriber, creator := uuid.New(), uuid.New()

	sub := currentSubscription(subscriber, creator, entitlement.TierPremium)
	sub.State = entitlement.StateCancelled
	cancelled := time.Now().UTC().Add(-time.Hour)
	sub.CancelledAt = &cancelled
	sub.AutoRenew = false

	store := entitlement.NewInMemStore()
	require.NoError(t, store.Create(ctx, sub))
	evaluator := entitlement.NewAccessEvaluator(store)

	// Cancelled records are excluded from the active-pair lookup even
	// when the paid period has time left.
	viewer := entitlement.Principal{ID: subscriber, Role: entitlement.RoleUser}
	assert.ErrorIs(t, evaluator.CanAccess(ctx, viewer, creator, entitlement.TierBasic), entitlement.ErrSubscriptionRequired)
}
