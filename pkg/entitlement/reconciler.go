package entitlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// casAttempts bounds the read-modify-write retry loop. Conflicts only
// happen when events for the same subscription race, so contention is
// short-lived.
const casAttempts = 5

// Reconciler consumes verified gateway events and applies them to the
// store idempotently. It is the single writer path for payment-driven
// state; the sender delivers at least once and may deliver out of
// order, so every application must be a legal move from the record's
// current state or collapse to a no-op.
type Reconciler struct {
	store   SubscriptionStore
	catalog *Catalog
	log     *slog.Logger
}

// NewReconciler creates an event reconciler.
// Panics if store or catalog is nil to fail fast during initialization.
func NewReconciler(store SubscriptionStore, catalog *Catalog, log *slog.Logger) *Reconciler {
	if store == nil {
		panic("entitlement: SubscriptionStore is required")
	}
	if catalog == nil {
		panic("entitlement: Catalog is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, catalog: catalog, log: log}
}

// Apply routes a verified event to its handler. Unknown event types are
// accepted and ignored for forward compatibility. ErrStaleEvent and
// idempotent replays return nil so the delivery is acknowledged and the
// sender stops redelivering; genuine failures (store errors, missing
// records) return an error so the sender retries later.
func (r *Reconciler) Apply(ctx context.Context, event *Event) error {
	if event == nil || event.ID == "" {
		return ErrMalformedEvent
	}

	log := r.log.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("external_subscription_id", event.SubscriptionID),
	)

	var err error
	switch event.Type {
	case EventCheckoutCompleted:
		err = r.applyCheckoutCompleted(ctx, event)
	case EventPaymentSucceeded:
		err = r.applyPayment(ctx, event, PaymentSucceeded)
	case EventPaymentFailed:
		err = r.applyPayment(ctx, event, PaymentFailed)
	case EventPaymentRefunded:
		err = r.applyPayment(ctx, event, PaymentRefunded)
	case EventSubscriptionDeleted:
		err = r.applySubscriptionDeleted(ctx, event)
	default:
		log.InfoContext(ctx, "ignoring unknown event type")
		return nil
	}

	if errors.Is(err, ErrStaleEvent) {
		log.InfoContext(ctx, "discarded stale event")
		return nil
	}
	if err != nil {
		log.ErrorContext(ctx, "event application failed", slog.Any("error", err))
		return err
	}
	return nil
}

// applyCheckoutCompleted creates the subscription record from the
// session metadata echoed back by the gateway. This is the only event
// that creates records; everything before it is a gateway-side session.
func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, event *Event) error {
	meta := event.Metadata
	if meta.SubscriberID == uuid.Nil || meta.CreatorID == uuid.Nil {
		return errors.Join(ErrMalformedEvent, errors.New("checkout metadata is missing principal ids"))
	}
	if !meta.Tier.Valid() {
		return errors.Join(ErrMalformedEvent, ErrInvalidTier)
	}
	if !meta.BillingCycle.Valid() {
		return errors.Join(ErrMalformedEvent, ErrInvalidBillingCycle)
	}
	if event.SubscriptionID == "" || event.CustomerID == "" {
		return errors.Join(ErrMalformedEvent, errors.New("checkout event is missing gateway handles"))
	}

	price, err := r.catalog.Price(meta.Tier, meta.BillingCycle)
	if err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}

	start := event.OccurredAt
	end := ComputePeriodEnd(start, meta.BillingCycle)

	sub := &Subscription{
		ID:                     uuid.New(),
		SubscriberID:           meta.SubscriberID,
		CreatorID:              meta.CreatorID,
		Tier:                   meta.Tier,
		BillingCycle:           meta.BillingCycle,
		Price:                  Money{Amount: price.Amount, Currency: price.Currency},
		State:                  StateActive,
		StartDate:              start,
		EndDate:                end,
		RenewalDate:            end,
		AutoRenew:              true,
		ExternalSubscriptionID: event.SubscriptionID,
		ExternalCustomerID:     event.CustomerID,
		EventWatermark:         event.OccurredAt,
	}

	if err := r.store.Create(ctx, sub); err != nil {
		if errors.Is(err, ErrSubscriptionExists) {
			// Redelivered completion for a pair that already has its
			// record. Harmless.
			return nil
		}
		return err
	}

	// The pair reservation taken at subscribe time is consumed now that
	// the record exists.
	if err := r.store.ReleaseCheckout(ctx, meta.SubscriberID, meta.CreatorID); err != nil {
		r.log.WarnContext(ctx, "failed to release checkout reservation",
			slog.String("subscriber_id", meta.SubscriberID.String()),
			slog.Any("error", err))
	}

	r.log.InfoContext(ctx, "subscription created",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("subscriber_id", sub.SubscriberID.String()),
		slog.String("creator_id", sub.CreatorID.String()),
		slog.String("tier", string(sub.Tier)))
	return nil
}

// applyPayment appends a ledger entry and applies the matching state
// transition. Entries are idempotent by the gateway's payment ID and
// transitions are validated against both the state machine and the
// per-subscription event watermark.
func (r *Reconciler) applyPayment(ctx context.Context, event *Event, status PaymentStatus) error {
	if event.PaymentID == "" {
		return errors.Join(ErrMalformedEvent, errors.New("payment event is missing a payment id"))
	}

	return r.mutate(ctx, event.SubscriptionID, func(sub *Subscription) error {
		if sub.HasPayment(event.PaymentID) {
			// Redelivery: the entry exists, state was already settled.
			return errNothingToApply
		}
		if event.OccurredAt.Before(sub.EventWatermark) {
			return ErrStaleEvent
		}

		sub.Ledger = append(sub.Ledger, PaymentEntry{
			Amount:            event.Amount,
			Currency:          event.Currency,
			Status:            status,
			ExternalPaymentID: event.PaymentID,
			OccurredAt:        event.OccurredAt,
			FailureReason:     event.FailureReason,
		})

		switch status {
		case PaymentSucceeded:
			next, changed, err := applyTransition(ctx, sub.State, TransitionPaymentSucceeded)
			if err == nil && changed {
				sub.State = next
			}
			// A succeeded payment while already active is a renewal,
			// not a transition; either way the period advances.
			sub.RenewalDate = ComputePeriodEnd(sub.RenewalDate, sub.BillingCycle)
			sub.EndDate = sub.RenewalDate
		case PaymentFailed:
			next, changed, err := applyTransition(ctx, sub.State, TransitionPaymentFailed)
			if err == nil && changed {
				sub.State = next
			}
		case PaymentRefunded:
			// Refunds are ledger-only; state is untouched.
		}

		sub.EventWatermark = event.OccurredAt
		return nil
	})
}

// applySubscriptionDeleted handles gateway-originated deletion: the
// record becomes cancelled and keeps its history.
func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, event *Event) error {
	return r.mutate(ctx, event.SubscriptionID, func(sub *Subscription) error {
		if sub.State.IsTerminal() {
			return errNothingToApply
		}
		if event.OccurredAt.Before(sub.EventWatermark) {
			return ErrStaleEvent
		}

		next, changed, err := applyTransition(ctx, sub.State, TransitionDelete)
		if err != nil {
			return err
		}
		if changed {
			sub.State = next
		}
		if sub.CancelledAt == nil {
			t := event.OccurredAt
			sub.CancelledAt = &t
		}
		sub.AutoRenew = false
		sub.EventWatermark = event.OccurredAt
		return nil
	})
}

// errNothingToApply short-circuits the mutate loop without writing.
var errNothingToApply = errors.New("nothing to apply")

// mutate runs a read-modify-write cycle under optimistic concurrency:
// read the latest committed record, apply fn to a private copy, and
// compare-and-swap it back. A version conflict means another event for
// the same subscription landed in between, so the whole cycle restarts
// against fresh state. Mutations of different subscriptions never
// contend.
func (r *Reconciler) mutate(ctx context.Context, externalSubscriptionID string, fn func(*Subscription) error) error {
	if externalSubscriptionID == "" {
		return errors.Join(ErrMalformedEvent, errors.New("event is missing a subscription id"))
	}

	var lastErr error
	for range casAttempts {
		sub, err := r.store.GetByExternalID(ctx, externalSubscriptionID)
		if err != nil {
			return err
		}

		if err := fn(sub); err != nil {
			if errors.Is(err, errNothingToApply) {
				return nil
			}
			return err
		}

		if err := r.store.Update(ctx, sub); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}
