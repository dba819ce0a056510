package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LifecycleConfig configures the lifecycle manager.
type LifecycleConfig struct {
	GatewayTimeout time.Duration `env:"LIFECYCLE_GATEWAY_TIMEOUT" envDefault:"10s"`
	// PlatformFee is the platform's cut of creator earnings, as a
	// fraction of gross revenue.
	PlatformFee float64 `env:"PLATFORM_FEE" envDefault:"0.25"`
}

// LifecycleService handles user-initiated subscription changes. The
// gateway holds the authoritative billing state; local records are
// updated optimistically and any drift is reconciled by a later
// webhook. Gateway calls carry a bounded timeout and are never retried
// internally, to avoid duplicate external side effects.
type LifecycleService struct {
	store   SubscriptionStore
	gateway PaymentGateway
	catalog *Catalog
	cfg     LifecycleConfig
	log     *slog.Logger
	now     func() time.Time
}

// NewLifecycleService creates a lifecycle manager.
// Panics if any dependency is nil to fail fast during initialization.
func NewLifecycleService(store SubscriptionStore, gateway PaymentGateway, catalog *Catalog, cfg LifecycleConfig, log *slog.Logger) *LifecycleService {
	if store == nil || gateway == nil || catalog == nil {
		panic("entitlement: lifecycle service dependencies are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.PlatformFee <= 0 || cfg.PlatformFee >= 1 {
		cfg.PlatformFee = 0.25
	}
	return &LifecycleService{
		store:   store,
		gateway: gateway,
		catalog: catalog,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Cancel stops auto-renewal for the subscriber's own subscription.
// Access persists until EndDate; the state is left untouched and the
// gateway's own non-renewal eventually drives the record to cancelled
// through the deletion event. Calling cancel twice is a no-op that
// returns the current record.
func (s *LifecycleService) Cancel(ctx context.Context, principal Principal, subscriptionID uuid.UUID, reason CancellationReason) (*Subscription, error) {
	sub, err := s.owned(ctx, principal, subscriptionID)
	if err != nil {
		return nil, err
	}

	if sub.CancelledAt != nil {
		// Already cancelled; idempotent.
		return sub, nil
	}
	if sub.State.IsTerminal() {
		return nil, ErrNotCancellable
	}
	if reason == "" {
		reason = ReasonUserRequest
	}

	cancelAtPeriodEnd := true
	if err := s.gatewayUpdate(ctx, sub.ExternalSubscriptionID, SubscriptionUpdate{CancelAtPeriodEnd: &cancelAtPeriodEnd}); err != nil {
		return nil, err
	}

	updated, err := s.update(ctx, sub.ID, func(sub *Subscription) error {
		if sub.CancelledAt != nil {
			return nil
		}
		now := s.now()
		sub.AutoRenew = false
		sub.CancelledAt = &now
		sub.CancellationReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription cancelled",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("subscriber_id", principal.ID.String()),
		slog.String("reason", string(reason)))
	return updated, nil
}

// ChangeTier switches the subscription to a new tier at the existing
// billing cycle. The gateway performs the authoritative proration; the
// local tier and price are updated optimistically on its success.
func (s *LifecycleService) ChangeTier(ctx context.Context, principal Principal, subscriptionID uuid.UUID, newTier Tier) (*Subscription, error) {
	if !newTier.Valid() {
		return nil, ErrInvalidTier
	}

	sub, err := s.owned(ctx, principal, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Tier == newTier {
		return sub, nil
	}

	price, err := s.catalog.Price(newTier, sub.BillingCycle)
	if err != nil {
		return nil, err
	}

	if err := s.gatewayUpdate(ctx, sub.ExternalSubscriptionID, SubscriptionUpdate{PriceID: price.PriceID, Prorate: true}); err != nil {
		return nil, err
	}

	updated, err := s.update(ctx, sub.ID, func(sub *Subscription) error {
		sub.Tier = newTier
		sub.Price = Money{Amount: price.Amount, Currency: price.Currency}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription tier changed",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("tier", string(newTier)))
	return updated, nil
}

// SetAutoRenew mirrors the auto-renew flag to the gateway and locally.
// No state change is involved.
func (s *LifecycleService) SetAutoRenew(ctx context.Context, principal Principal, subscriptionID uuid.UUID, autoRenew bool) (*Subscription, error) {
	sub, err := s.owned(ctx, principal, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.AutoRenew == autoRenew {
		return sub, nil
	}

	cancelAtPeriodEnd := !autoRenew
	if err := s.gatewayUpdate(ctx, sub.ExternalSubscriptionID, SubscriptionUpdate{CancelAtPeriodEnd: &cancelAtPeriodEnd}); err != nil {
		return nil, err
	}

	return s.update(ctx, sub.ID, func(sub *Subscription) error {
		sub.AutoRenew = autoRenew
		return nil
	})
}

// Refund refunds a settled payment and appends a refunded ledger entry.
// Administrative only. The original succeeded entry is never edited;
// the refund is a new entry keyed by the gateway's refund identifier,
// so replays are no-ops.
func (s *LifecycleService) Refund(ctx context.Context, principal Principal, subscriptionID uuid.UUID, externalPaymentID string, amount int64, reason string) (*Subscription, error) {
	if !principal.IsAdmin() {
		return nil, ErrAdminRequired
	}

	sub, err := s.store.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	payment := sub.FindPayment(externalPaymentID)
	if payment == nil || payment.Status != PaymentSucceeded {
		return nil, ErrPaymentNotFound
	}
	if amount <= 0 || amount > payment.Amount {
		amount = payment.Amount
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	refundID, err := s.gateway.RefundPayment(fctx, externalPaymentID, amount, reason)
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}

	currency := payment.Currency
	now := s.now()
	updated, err := s.update(ctx, sub.ID, func(sub *Subscription) error {
		if sub.HasPayment(refundID) {
			return nil
		}
		sub.Ledger = append(sub.Ledger, PaymentEntry{
			Amount:            amount,
			Currency:          currency,
			Status:            PaymentRefunded,
			ExternalPaymentID: refundID,
			OccurredAt:        now,
			FailureReason:     reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "payment refunded",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("refund_id", refundID),
		slog.Int64("amount", amount))
	return updated, nil
}

// ListForSubscriber returns the caller's own subscriptions, newest first.
func (s *LifecycleService) ListForSubscriber(ctx context.Context, principal Principal) ([]*Subscription, error) {
	if principal.ID == uuid.Nil {
		return nil, ErrInvalidPrincipal
	}
	return s.store.ListBySubscriber(ctx, principal.ID)
}

// PaymentHistory returns the payment ledger of the caller's own
// subscription, in applied order. Admins may read any subscription's
// history; other principals' records are reported as not found.
func (s *LifecycleService) PaymentHistory(ctx context.Context, principal Principal, subscriptionID uuid.UUID) ([]PaymentEntry, error) {
	sub, err := s.store.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.SubscriberID != principal.ID && !principal.IsAdmin() {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Ledger, nil
}

// EarningsReport summarizes a creator's revenue. Amounts are in the
// smallest currency unit.
type EarningsReport struct {
	Subscribers     int   // currently access-granting subscriptions
	MonthlyRevenue  int64 // active prices normalized to per-month
	TotalEarnings   int64 // gross succeeded payments
	NetEarnings     int64 // gross minus platform fee
	RefundedAmount  int64
	PendingEarnings int64
}

// Earnings aggregates ledger history across all of the creator's
// subscriptions. Only the creator (or an admin) may read it.
func (s *LifecycleService) Earnings(ctx context.Context, principal Principal, creatorID uuid.UUID) (*EarningsReport, error) {
	if principal.ID != creatorID && !principal.IsAdmin() {
		return nil, ErrCreatorRoleRequired
	}

	subs, err := s.store.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	report := &EarningsReport{}
	now := s.now()
	for _, sub := range subs {
		if sub.State.GrantsAccess() && !sub.HasLapsedAt(now) {
			report.Subscribers++
			report.MonthlyRevenue += sub.MonthlyPrice()
		}
		for _, e := range sub.Ledger {
			switch e.Status {
			case PaymentSucceeded:
				report.TotalEarnings += e.Amount
			case PaymentPending:
				report.PendingEarnings += e.Amount
			case PaymentRefunded:
				report.RefundedAmount += e.Amount
			}
		}
	}
	report.NetEarnings = int64(float64(report.TotalEarnings-report.RefundedAmount) * (1 - s.cfg.PlatformFee))
	return report, nil
}

// owned loads a subscription and verifies the caller is its subscriber.
// Records belonging to other principals are reported as not found so
// the API does not leak their existence.
func (s *LifecycleService) owned(ctx context.Context, principal Principal, subscriptionID uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.SubscriberID != principal.ID {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// update runs a bounded compare-and-swap loop, mirroring the
// reconciler's discipline so lifecycle writes never clobber a
// concurrent reconciliation.
func (s *LifecycleService) update(ctx context.Context, id uuid.UUID, fn func(*Subscription) error) (*Subscription, error) {
	var lastErr error
	for range casAttempts {
		sub, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(sub); err != nil {
			return nil, err
		}
		if err := s.store.Update(ctx, sub); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return sub, nil
	}
	return nil, lastErr
}

// gatewayUpdate wraps an UpdateSubscription call with the configured
// timeout and error taxonomy.
func (s *LifecycleService) gatewayUpdate(ctx context.Context, externalSubscriptionID string, req SubscriptionUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	if err := s.gateway.UpdateSubscription(ctx, externalSubscriptionID, req); err != nil {
		return errors.Join(ErrGatewayUnavailable, err)
	}
	return nil
}
