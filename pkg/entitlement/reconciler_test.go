package entitlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

var reconcilerEpoch = time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

func checkoutCompletedEvent(subscriber, creator uuid.UUID, at time.Time) *entitlement.Event {
	return &entitlement.Event{
		ID:             "evt_checkout_1",
		Type:           entitlement.EventCheckoutCompleted,
		OccurredAt:     at,
		SubscriptionID: "sub_100",
		CustomerID:     "cus_100",
		Metadata: entitlement.CheckoutMetadata{
			SubscriberID: subscriber,
			CreatorID:    creator,
			Tier:         entitlement.TierBasic,
			BillingCycle: entitlement.CycleMonthly,
		},
	}
}

func paymentEvent(id, paymentID string, typ entitlement.EventType, at time.Time) *entitlement.Event {
	return &entitlement.Event{
		ID:             id,
		Type:           typ,
		OccurredAt:     at,
		SubscriptionID: "sub_100",
		CustomerID:     "cus_100",
		PaymentID:      paymentID,
		Amount:         999,
		Currency:       "USD",
	}
}

func TestReconcilerCheckoutCompleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)
	subscriber, creator := uuid.New(), uuid.New()

	// The reservation taken at subscribe time is consumed by the event.
	require.NoError(t, store.ReserveCheckout(ctx, subscriber, creator, time.Hour))

	event := checkoutCompletedEvent(subscriber, creator, reconcilerEpoch)
	require.NoError(t, reconciler.Apply(ctx, event))

	sub, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StateActive, sub.State)
	assert.Equal(t, entitlement.TierBasic, sub.Tier)
	assert.Equal(t, int64(999), sub.Price.Amount)
	assert.Equal(t, reconcilerEpoch, sub.StartDate)
	assert.Equal(t, reconcilerEpoch.AddDate(0, 1, 0), sub.EndDate)
	assert.Equal(t, sub.EndDate, sub.RenewalDate)
	assert.True(t, sub.AutoRenew)
	assert.Equal(t, "cus_100", sub.ExternalCustomerID)

	require.NoError(t, store.ReserveCheckout(ctx, subscriber, creator, time.Hour),
		"reservation must have been released")

	// Redelivery of the completion is a silent no-op.
	require.NoError(t, reconciler.Apply(ctx, event))
	subs, err := store.ListBySubscriber(ctx, subscriber)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestReconcilerCheckoutCompletedMalformed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)

	event := checkoutCompletedEvent(uuid.New(), uuid.New(), reconcilerEpoch)
	event.Metadata.Tier = entitlement.Tier("gold")
	assert.ErrorIs(t, reconciler.Apply(ctx, event), entitlement.ErrMalformedEvent)

	event = checkoutCompletedEvent(uuid.New(), uuid.New(), reconcilerEpoch)
	event.SubscriptionID = ""
	assert.ErrorIs(t, reconciler.Apply(ctx, event), entitlement.ErrMalformedEvent)

	event = checkoutCompletedEvent(uuid.Nil, uuid.New(), reconcilerEpoch)
	assert.ErrorIs(t, reconciler.Apply(ctx, event), entitlement.ErrMalformedEvent)
}

func TestReconcilerPaymentFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)
	subscriber, creator := uuid.New(), uuid.New()

	require.NoError(t, reconciler.Apply(ctx, checkoutCompletedEvent(subscriber, creator, reconcilerEpoch)))

	// Renewal charge lands: period advances one cycle.
	renewal := paymentEvent("evt_pay_1", "pay_1", entitlement.EventPaymentSucceeded, reconcilerEpoch.AddDate(0, 1, 0))
	require.NoError(t, reconciler.Apply(ctx, renewal))

	sub, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StateActive, sub.State)
	assert.Equal(t, reconcilerEpoch.AddDate(0, 2, 0), sub.RenewalDate)
	assert.Equal(t, sub.RenewalDate, sub.EndDate)
	require.Len(t, sub.Ledger, 1)
	assert.Equal(t, entitlement.PaymentSucceeded, sub.Ledger[0].Status)
	assert.Equal(t, int64(999), sub.Ledger[0].Amount)

	// Next charge fails: record goes past due, period does not move.
	failed := paymentEvent("evt_pay_2", "pay_2", entitlement.EventPaymentFailed, reconcilerEpoch.AddDate(0, 2, 0))
	failed.FailureReason = "card_declined"
	require.NoError(t, reconciler.Apply(ctx, failed))

	sub, err = store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatePastDue, sub.State)
	assert.Equal(t, reconcilerEpoch.AddDate(0, 2, 0), sub.RenewalDate)
	require.Len(t, sub.Ledger, 2)
	assert.Equal(t, "card_declined", sub.Ledger[1].FailureReason)

	// The retried charge succeeds: back to active, period advances.
	recovered := paymentEvent("evt_pay_3", "pay_3", entitlement.EventPaymentSucceeded, reconcilerEpoch.AddDate(0, 2, 0).Add(48*time.Hour))
	require.NoError(t, reconciler.Apply(ctx, recovered))

	sub, err = store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StateActive, sub.State)
	assert.Equal(t, reconcilerEpoch.AddDate(0, 3, 0), sub.RenewalDate)
	assert.Len(t, sub.Ledger, 3)
}

func TestReconcilerIdempotency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)
	require.NoError(t, reconciler.Apply(ctx, checkoutCompletedEvent(uuid.New(), uuid.New(), reconcilerEpoch)))

	event := paymentEvent("evt_pay_1", "pay_1", entitlement.EventPaymentSucceeded, reconcilerEpoch.AddDate(0, 1, 0))
	require.NoError(t, reconciler.Apply(ctx, event))

	before, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)

	// Exact redelivery: ledger and period are untouched.
	require.NoError(t, reconciler.Apply(ctx, event))
	after, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.Ledger, 1)
	assert.Equal(t, before.RenewalDate, after.RenewalDate)
}

func TestReconcilerStaleEventDiscarded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)
	require.NoError(t, reconciler.Apply(ctx, checkoutCompletedEvent(uuid.New(), uuid.New(), reconcilerEpoch)))

	recent := paymentEvent("evt_pay_1", "pay_1", entitlement.EventPaymentSucceeded, reconcilerEpoch.AddDate(0, 1, 0))
	require.NoError(t, reconciler.Apply(ctx, recent))

	// An older event arriving late is acknowledged but not applied.
	stale := paymentEvent("evt_pay_0", "pay_0", entitlement.EventPaymentFailed, reconcilerEpoch.Add(-time.Hour))
	require.NoError(t, reconciler.Apply(ctx, stale))

	sub, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StateActive, sub.State)
	assert.Len(t, sub.Ledger, 1)
	assert.False(t, sub.HasPayment("pay_0"))
}

func TestReconcilerRefundIsLedgerOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)
	require.NoError(t, reconciler.Apply(ctx, checkoutCompletedEvent(uuid.New(), uuid.New(), reconcilerEpoch)))

	refund := paymentEvent("evt_ref_1", "re_1", entitlement.EventPaymentRefunded, reconcilerEpoch.Add(time.Hour))
	require.NoError(t, reconciler.Apply(ctx, refund))

	sub, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StateActive, sub.State)
	require.Len(t, sub.Ledger, 1)
	assert.Equal(t, entitlement.PaymentRefunded, sub.Ledger[0].Status)
}

func TestReconcilerSubscriptionDeleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)
	require.NoError(t, reconciler.Apply(ctx, checkoutCompletedEvent(uuid.New(), uuid.New(), reconcilerEpoch)))

	deleted := &entitlement.Event{
		ID:             "evt_del_1",
		Type:           entitlement.EventSubscriptionDeleted,
		OccurredAt:     reconcilerEpoch.AddDate(0, 1, 2),
		SubscriptionID: "sub_100",
	}
	require.NoError(t, reconciler.Apply(ctx, deleted))

	sub, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StateCancelled, sub.State)
	assert.False(t, sub.AutoRenew)
	require.NotNil(t, sub.CancelledAt)
	assert.Equal(t, deleted.OccurredAt, *sub.CancelledAt)

	// Redelivery against the terminal record is a no-op.
	version := sub.Version
	require.NoError(t, reconciler.Apply(ctx, deleted))
	sub, err = store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Equal(t, version, sub.Version)
}

func TestReconcilerUnknownAndInvalidEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)

	// Unknown types are acknowledged for forward compatibility.
	require.NoError(t, reconciler.Apply(ctx, &entitlement.Event{
		ID:   "evt_x",
		Type: entitlement.EventType("customer.updated"),
	}))

	assert.ErrorIs(t, reconciler.Apply(ctx, nil), entitlement.ErrMalformedEvent)
	assert.ErrorIs(t, reconciler.Apply(ctx, &entitlement.Event{Type: entitlement.EventPaymentSucceeded}), entitlement.ErrMalformedEvent)

	// A payment for an unknown subscription fails so the sender retries
	// after the checkout completion eventually lands.
	missing := paymentEvent("evt_pay_1", "pay_1", entitlement.EventPaymentSucceeded, reconcilerEpoch)
	assert.ErrorIs(t, reconciler.Apply(ctx, missing), entitlement.ErrSubscriptionNotFound)
}

func TestReconcilerConcurrentEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewInMemStore()
	reconciler := entitlement.NewReconciler(store, entitlement.DefaultCatalog(), nil)
	require.NoError(t, reconciler.Apply(ctx, checkoutCompletedEvent(uuid.New(), uuid.New(), reconcilerEpoch)))

	at := reconcilerEpoch.AddDate(0, 1, 0)
	events := []*entitlement.Event{
		paymentEvent("evt_a", "pay_a", entitlement.EventPaymentSucceeded, at),
		paymentEvent("evt_b", "re_b", entitlement.EventPaymentRefunded, at),
	}

	var wg sync.WaitGroup
	for _, event := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reconciler.Apply(ctx, event))
		}()
	}
	wg.Wait()

	sub, err := store.GetByExternalID(ctx, "sub_100")
	require.NoError(t, err)
	assert.Len(t, sub.Ledger, 2)
	assert.True(t, sub.HasPayment("pay_a"))
	assert.True(t, sub.HasPayment("re_b"))
}
