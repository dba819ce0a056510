package entitlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

type checkoutFixture struct {
	store      *entitlement.InMemStore
	directory  *entitlement.InMemDirectory
	identities *entitlement.InMemIdentities
	gateway    *entitlement.InMemGateway
	service    *entitlement.CheckoutService

	subscriber entitlement.Principal
	creatorID  uuid.UUID
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	subscriberID := uuid.New()
	creatorID := uuid.New()

	f := &checkoutFixture{
		store:     entitlement.NewInMemStore(),
		directory: entitlement.NewInMemDirectory(),
		identities: entitlement.NewInMemIdentities(
			entitlement.Identity{ID: subscriberID, Role: entitlement.RoleUser, Email: "fan@example.com", Name: "Fan"},
			entitlement.Identity{ID: creatorID, Role: entitlement.RoleCreator, Email: "creator@example.com", Name: "Creator"},
		),
		gateway:    entitlement.NewInMemGateway("whsec_test"),
		subscriber: entitlement.Principal{ID: subscriberID, Role: entitlement.RoleUser},
		creatorID:  creatorID,
	}
	f.service = entitlement.NewCheckoutService(
		f.store, f.directory, f.identities, f.gateway, entitlement.DefaultCatalog(),
		entitlement.CheckoutConfig{
			SuccessURL: "https://example.com/success",
			CancelURL:  "https://example.com/cancel",
		}, nil)
	return f
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("opens a checkout session", func(t *testing.T) {
		t.Parallel()

		f := newCheckoutFixture(t)
		session, err := f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierPremium, entitlement.CycleMonthly)
		require.NoError(t, err)
		assert.NotEmpty(t, session.ID)
		assert.NotEmpty(t, session.URL)

		sessions := f.gateway.Sessions()
		require.Len(t, sessions, 1)
		assert.Equal(t, "price_premium_monthly", sessions[0].PriceID)
		assert.Equal(t, f.subscriber.ID, sessions[0].Metadata.SubscriberID)
		assert.Equal(t, f.creatorID, sessions[0].Metadata.CreatorID)
		assert.Equal(t, entitlement.TierPremium, sessions[0].Metadata.Tier)

		// No record exists until the gateway confirms the checkout.
		_, err = f.store.GetActiveByPair(ctx, f.subscriber.ID, f.creatorID)
		assert.ErrorIs(t, err, entitlement.ErrSubscriptionNotFound)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		f := newCheckoutFixture(t)

		_, err := f.service.Subscribe(ctx, entitlement.Principal{}, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrInvalidPrincipal)

		_, err = f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.Tier("gold"), entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrInvalidTier)

		_, err = f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.BillingCycle("weekly"))
		assert.ErrorIs(t, err, entitlement.ErrInvalidBillingCycle)

		creatorPrincipal := entitlement.Principal{ID: f.creatorID, Role: entitlement.RoleCreator}
		_, err = f.service.Subscribe(ctx, creatorPrincipal, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrSelfSubscription)

		_, err = f.service.Subscribe(ctx, f.subscriber, uuid.New(), entitlement.TierBasic, entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrCreatorNotFound)

		// Subscribing to a plain user is rejected the same way.
		_, err = f.service.Subscribe(ctx, entitlement.Principal{ID: f.creatorID, Role: entitlement.RoleCreator}, f.subscriber.ID, entitlement.TierBasic, entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrCreatorNotFound)
	})

	t.Run("rejects when already subscribed", func(t *testing.T) {
		t.Parallel()

		f := newCheckoutFixture(t)
		existing := newTestSubscription(f.subscriber.ID, f.creatorID)
		require.NoError(t, f.store.Create(ctx, existing))

		_, err := f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrSubscriptionExists)
	})

	t.Run("rejects a second checkout for the same pair", func(t *testing.T) {
		t.Parallel()

		f := newCheckoutFixture(t)
		_, err := f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		require.NoError(t, err)

		_, err = f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrCheckoutInProgress)
	})

	t.Run("reuses the gateway customer handle", func(t *testing.T) {
		t.Parallel()

		f := newCheckoutFixture(t)
		otherCreator := uuid.New()
		f.identities.Add(entitlement.Identity{ID: otherCreator, Role: entitlement.RoleCreator, Email: "second@example.com"})

		_, err := f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		require.NoError(t, err)
		_, err = f.service.Subscribe(ctx, f.subscriber, otherCreator, entitlement.TierBasic, entitlement.CycleMonthly)
		require.NoError(t, err)

		sessions := f.gateway.Sessions()
		require.Len(t, sessions, 2)
		assert.Equal(t, sessions[0].CustomerID, sessions[1].CustomerID)
		assert.Equal(t, f.gateway.CustomerID(f.subscriber.ID), sessions[0].CustomerID)
	})

	t.Run("gateway failure releases the reservation", func(t *testing.T) {
		t.Parallel()

		f := newCheckoutFixture(t)
		f.gateway.Err = errors.New("gateway down")

		_, err := f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		assert.ErrorIs(t, err, entitlement.ErrGatewayUnavailable)

		// The pair is immediately available for a retry.
		f.gateway.Err = nil
		_, err = f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
		require.NoError(t, err)
	})

	t.Run("concurrent subscribes yield exactly one session", func(t *testing.T) {
		t.Parallel()

		f := newCheckoutFixture(t)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.service.Subscribe(ctx, f.subscriber, f.creatorID, entitlement.TierBasic, entitlement.CycleMonthly)
			}()
		}
		wg.Wait()

		var granted int
		for _, err := range errs {
			if err == nil {
				granted++
			} else {
				assert.ErrorIs(t, err, entitlement.ErrCheckoutInProgress)
			}
		}
		assert.Equal(t, 1, granted)
		assert.Len(t, f.gateway.Sessions(), 1)
	})
}
