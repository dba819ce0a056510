package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CheckoutConfig configures the checkout orchestrator.
type CheckoutConfig struct {
	SuccessURL     string        `env:"CHECKOUT_SUCCESS_URL,required"`
	CancelURL      string        `env:"CHECKOUT_CANCEL_URL,required"`
	GatewayTimeout time.Duration `env:"CHECKOUT_GATEWAY_TIMEOUT" envDefault:"10s"`
	ReservationTTL time.Duration `env:"CHECKOUT_RESERVATION_TTL" envDefault:"30m"`
}

// CheckoutService validates subscribe requests and opens hosted checkout
// sessions at the gateway. It never creates a Subscription record; the
// record is created only when the reconciler processes the confirmed
// checkout.completed event, so abandoned checkouts leave no orphaned
// pending rows behind.
type CheckoutService struct {
	store     SubscriptionStore
	directory CustomerDirectory
	identity  IdentityResolver
	gateway   PaymentGateway
	catalog   *Catalog
	cfg       CheckoutConfig
	log       *slog.Logger
}

// NewCheckoutService creates a checkout orchestrator.
// Panics if any dependency is nil to fail fast during initialization.
func NewCheckoutService(store SubscriptionStore, directory CustomerDirectory, identity IdentityResolver, gateway PaymentGateway, catalog *Catalog, cfg CheckoutConfig, log *slog.Logger) *CheckoutService {
	if store == nil || directory == nil || identity == nil || gateway == nil || catalog == nil {
		panic("entitlement: checkout service dependencies are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 30 * time.Minute
	}
	return &CheckoutService{
		store:     store,
		directory: directory,
		identity:  identity,
		gateway:   gateway,
		catalog:   catalog,
		cfg:       cfg,
		log:       log,
	}
}

// Subscribe validates the request and returns a checkout session the
// caller redirects the subscriber to. Exactly one of two concurrent
// subscribe attempts for the same pair receives a session; the other
// gets ErrCheckoutInProgress.
func (s *CheckoutService) Subscribe(ctx context.Context, principal Principal, creatorID uuid.UUID, tier Tier, cycle BillingCycle) (*CheckoutSession, error) {
	if principal.ID == uuid.Nil {
		return nil, ErrInvalidPrincipal
	}
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	if !cycle.Valid() {
		return nil, ErrInvalidBillingCycle
	}
	if principal.ID == creatorID {
		return nil, ErrSelfSubscription
	}

	creator, err := s.identity.Resolve(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.Role != RoleCreator {
		return nil, ErrCreatorNotFound
	}

	price, err := s.catalog.Price(tier, cycle)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetActiveByPair(ctx, principal.ID, creatorID); err == nil {
		return nil, ErrSubscriptionExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	// Claim the pair before touching the gateway so two racing
	// subscribe attempts cannot both open sessions.
	if err := s.store.ReserveCheckout(ctx, principal.ID, creatorID, s.cfg.ReservationTTL); err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, principal, creator, creatorID, tier, cycle, price)
	if err != nil {
		// Gateway failure releases the pair immediately instead of
		// holding it for the full reservation TTL.
		if relErr := s.store.ReleaseCheckout(ctx, principal.ID, creatorID); relErr != nil {
			s.log.ErrorContext(ctx, "failed to release checkout reservation",
				slog.String("subscriber_id", principal.ID.String()),
				slog.String("creator_id", creatorID.String()),
				slog.Any("error", relErr))
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout session created",
		slog.String("subscriber_id", principal.ID.String()),
		slog.String("creator_id", creatorID.String()),
		slog.String("tier", string(tier)),
		slog.String("session_id", session.ID))

	return session, nil
}

func (s *CheckoutService) openSession(ctx context.Context, principal Principal, creator *Identity, creatorID uuid.UUID, tier Tier, cycle BillingCycle, price Price) (*CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	customerID, err := s.customerHandle(ctx, principal)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		PriceID:    price.PriceID,
		Metadata: CheckoutMetadata{
			SubscriberID: principal.ID,
			CreatorID:    creatorID,
			Tier:         tier,
			BillingCycle: cycle,
		},
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	return session, nil
}

// customerHandle resolves the subscriber's gateway customer, creating
// it lazily on first checkout. The handle is cached on the subscriber,
// not duplicated per creator.
func (s *CheckoutService) customerHandle(ctx context.Context, principal Principal) (string, error) {
	handle, err := s.directory.ExternalCustomerID(ctx, principal.ID)
	if err != nil {
		return "", err
	}
	if handle != "" {
		return handle, nil
	}

	subscriber, err := s.identity.Resolve(ctx, principal.ID)
	if err != nil {
		return "", errors.Join(ErrInvalidPrincipal, err)
	}

	customer, err := s.gateway.CreateCustomer(ctx, CustomerRequest{
		SubscriberID: principal.ID,
		Email:        subscriber.Email,
		Name:         subscriber.Name,
	})
	if err != nil {
		return "", errors.Join(ErrGatewayUnavailable, err)
	}

	if err := s.directory.SetExternalCustomerID(ctx, principal.ID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}
