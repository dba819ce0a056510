package entitlement

import "errors"

var (
	// Invalid input - the caller must fix the request, retrying is pointless.
	ErrInvalidTier         = errors.New("invalid subscription tier")
	ErrInvalidBillingCycle = errors.New("invalid billing cycle")
	ErrInvalidPrincipal    = errors.New("invalid principal")
	ErrSelfSubscription    = errors.New("creators cannot subscribe to themselves")

	// Lookup failures.
	ErrCreatorNotFound      = errors.New("creator not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPaymentNotFound      = errors.New("payment not found in ledger")

	// Conflicts - a concurrent or earlier operation already claimed the pair.
	ErrSubscriptionExists = errors.New("an active subscription to this creator already exists")
	ErrCheckoutInProgress = errors.New("a checkout for this creator is already in progress")
	ErrVersionConflict    = errors.New("subscription was modified concurrently")

	// Access-control denials. These are decisions, not system errors.
	ErrSubscriptionRequired = errors.New("an active subscription is required to access this content")
	ErrTierInsufficient     = errors.New("subscription tier is insufficient for this content")

	// Gateway and webhook failures.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrSignatureInvalid   = errors.New("webhook signature verification failed")
	ErrMalformedEvent     = errors.New("malformed webhook event")

	// StaleEvent marks an event discarded by the out-of-order rule.
	// It is acknowledged to the sender as handled, never surfaced as a
	// delivery failure.
	ErrStaleEvent = errors.New("event is older than the last applied event")

	// Lifecycle failures.
	ErrNotSubscriptionOwner = errors.New("subscription belongs to another principal")
	ErrNotCancellable       = errors.New("subscription is not in a cancellable state")
	ErrAdminRequired        = errors.New("administrative role required")
	ErrCreatorRoleRequired  = errors.New("creator role required")

	// Catalog configuration.
	ErrInvalidCatalog = errors.New("invalid plan catalog configuration")
	ErrPriceNotFound  = errors.New("no price configured for tier and billing cycle")
)
