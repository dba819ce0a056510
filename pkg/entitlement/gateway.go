package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentGateway is the minimal contract the engine requires from an
// external payment processor. It deliberately avoids re-deriving a full
// SDK: customers, checkout sessions, recurring-charge updates, refunds
// and signed-event verification are the only capabilities consumed.
// Implementations wrap a provider SDK and are swappable for testing.
type PaymentGateway interface {
	// CreateCustomer registers the subscriber with the processor and
	// returns the processor's customer handle.
	CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error)

	// CreateCheckoutSession opens a hosted checkout for a recurring
	// charge. The metadata is echoed back in the checkout.completed
	// event so the reconciler can construct the subscription without
	// re-querying the caller.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// UpdateSubscription changes the price of a recurring charge or
	// toggles cancel-at-period-end. Proration is the processor's
	// responsibility.
	UpdateSubscription(ctx context.Context, externalSubscriptionID string, req SubscriptionUpdate) error

	// CancelSubscription cancels the recurring charge immediately on
	// the processor side.
	CancelSubscription(ctx context.Context, externalSubscriptionID string) error

	// RefundPayment refunds a settled payment, fully when amount is
	// zero. Returns the processor's refund identifier.
	RefundPayment(ctx context.Context, externalPaymentID string, amount int64, reason string) (string, error)

	// VerifyEvent authenticates a raw webhook delivery against the
	// shared secret and parses it into a normalized Event. It must
	// return ErrSignatureInvalid before attempting any parse when the
	// signature does not match.
	VerifyEvent(ctx context.Context, payload []byte, signature string) (*Event, error)
}

// CustomerRequest carries the subscriber identity shared with the processor.
type CustomerRequest struct {
	SubscriberID uuid.UUID
	Email        string
	Name         string
}

// Customer is the processor-side customer record.
type Customer struct {
	ID string // processor's customer handle (cus_xxx, ctm_xxx, ...)
}

// CheckoutRequest describes a checkout session to open.
type CheckoutRequest struct {
	CustomerID string // processor's customer handle
	PriceID    string // processor's price identifier from the catalog
	Metadata   CheckoutMetadata
	SuccessURL string
	CancelURL  string
}

// CheckoutMetadata is attached to the checkout session and echoed back
// in the checkout.completed event.
type CheckoutMetadata struct {
	SubscriberID uuid.UUID    `json:"subscriber_id"`
	CreatorID    uuid.UUID    `json:"creator_id"`
	Tier         Tier         `json:"tier"`
	BillingCycle BillingCycle `json:"billing_cycle"`
}

// CheckoutSession is the redirect handle returned to the caller.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// SubscriptionUpdate is a partial update applied to a recurring charge.
type SubscriptionUpdate struct {
	PriceID           string // new price, empty to leave unchanged
	Prorate           bool
	CancelAtPeriodEnd *bool // nil to leave unchanged
}

// EventType is the normalized type of an asynchronous processor event.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.completed"
	EventPaymentSucceeded    EventType = "payment.succeeded"
	EventPaymentFailed       EventType = "payment.failed"
	EventPaymentRefunded     EventType = "payment.refunded"
	EventSubscriptionDeleted EventType = "subscription.deleted"
)

// Event is a normalized, verified processor event. Every delivery
// carries a unique ID; re-deliveries of the same ID must reconcile to
// no-ops.
type Event struct {
	ID         string // processor's unique event id
	Type       EventType
	OccurredAt time.Time

	SubscriptionID string // processor's subscription handle
	CustomerID     string // processor's customer handle
	PaymentID      string // processor's payment handle, set on payment events

	Amount        int64
	Currency      string
	FailureReason string

	// Metadata is present on checkout.completed events only.
	Metadata CheckoutMetadata
}
