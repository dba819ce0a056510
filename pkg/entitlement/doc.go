// Package entitlement implements the subscription and entitlement
// engine for a paid-content platform: subscribers buy tiered,
// recurring subscriptions to individual creators, and content access is
// decided from the resulting records.
//
// # Components
//
// CheckoutService validates subscribe requests and opens hosted
// checkout sessions at the payment gateway. No subscription record is
// created at this point; an abandoned checkout leaves nothing behind.
//
// Reconciler is the single writer path for payment-driven state. It
// consumes verified gateway events (checkout.completed,
// payment.succeeded, payment.failed, payment.refunded,
// subscription.deleted), deduplicates redeliveries by payment ID,
// discards out-of-order events via a per-record watermark, and applies
// state transitions through a validated state machine.
//
// AccessEvaluator answers "may this principal view content requiring
// tier X" from the store alone, with a lapse check on EndDate as a
// safety net against reconciliation lag.
//
// LifecycleService handles user-initiated changes: cancel (access
// until period end), tier change with gateway-side proration,
// auto-renew toggling, admin refunds, and creator earnings reports.
//
// # Storage and gateways
//
// SubscriptionStore has two implementations: InMemStore for tests and
// PGStore on pgx/v5 with goose migrations. PaymentGateway has a
// production adapter for Paddle and an HMAC-signed in-memory gateway
// for tests.
//
// Concurrency follows optimistic per-record versioning: writers read,
// mutate a private copy, and compare-and-swap; conflicts retry against
// fresh state. Operations on different subscriptions never contend.
package entitlement
