package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore is the durable repository of subscription records.
// It is the single place the engine's concurrency discipline is
// enforced: Create asserts the one-active-per-pair invariant at insert
// time, and Update is a compare-and-swap on the record's Version so two
// concurrent reconciliations can never interleave a stale read with a
// write. Reads never block on in-flight writes.
type SubscriptionStore interface {
	// Get retrieves a subscription by its ID.
	// Returns ErrSubscriptionNotFound if no record exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetByExternalID retrieves a subscription by the gateway's
	// subscription handle.
	GetByExternalID(ctx context.Context, externalSubscriptionID string) (*Subscription, error)

	// GetActiveByPair retrieves the access-granting subscription
	// between a subscriber and a creator, if any. Historical records
	// for the pair are not returned.
	GetActiveByPair(ctx context.Context, subscriberID, creatorID uuid.UUID) (*Subscription, error)

	// Create inserts a new record. Returns ErrSubscriptionExists when
	// the pair already has an access-granting record; the loser of a
	// concurrent create race receives the error instead of silently
	// producing a duplicate.
	Create(ctx context.Context, sub *Subscription) error

	// Update persists a modified record if and only if its Version
	// still matches the stored one, then bumps the version. Returns
	// ErrVersionConflict when the record changed since it was read.
	Update(ctx context.Context, sub *Subscription) error

	// ListBySubscriber returns all records, newest first, where the
	// principal is the subscriber.
	ListBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]*Subscription, error)

	// ListByCreator returns all records, newest first, where the
	// principal is the creator.
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*Subscription, error)

	// ReserveCheckout claims the (subscriber, creator) pair for an
	// in-flight checkout. Exactly one of two racing subscribe attempts
	// wins; the other receives ErrCheckoutInProgress. Reservations
	// expire after ttl so abandoned checkouts do not block the pair.
	ReserveCheckout(ctx context.Context, subscriberID, creatorID uuid.UUID, ttl time.Duration) error

	// ReleaseCheckout drops a reservation, either because the gateway
	// call failed or because the checkout completed.
	ReleaseCheckout(ctx context.Context, subscriberID, creatorID uuid.UUID) error
}

// CustomerDirectory caches the payment processor's customer handle on
// the subscriber's own record. One handle per subscriber, shared across
// all of their subscriptions.
type CustomerDirectory interface {
	// ExternalCustomerID returns the stored handle, or empty string
	// when the subscriber has no processor customer yet.
	ExternalCustomerID(ctx context.Context, subscriberID uuid.UUID) (string, error)

	// SetExternalCustomerID stores the handle after lazy creation.
	SetExternalCustomerID(ctx context.Context, subscriberID uuid.UUID, externalCustomerID string) error
}

// Identity is a resolved principal as provided by the authentication
// subsystem collaborator.
type Identity struct {
	ID    uuid.UUID
	Role  Role
	Email string
	Name  string
}

// IdentityResolver resolves principal identities. The engine only needs
// it to validate that a checkout target exists and is a content owner.
type IdentityResolver interface {
	// Resolve returns the identity for an ID, or ErrCreatorNotFound
	// when no such principal exists.
	Resolve(ctx context.Context, id uuid.UUID) (*Identity, error)
}
