package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
	"github.com/dmitrymomot/fangate/pkg/webhook"
)

// Config tunes the HTTP surface of the billing module.
type Config struct {
	// SignatureHeader carries the webhook signature. Defaults to the
	// header the in-house signing scheme uses; deployments behind
	// Paddle set it to "Paddle-Signature".
	SignatureHeader string `env:"BILLING_WEBHOOK_SIGNATURE_HEADER" envDefault:"X-Signature"`

	// MaxWebhookBody caps the webhook payload size in bytes.
	MaxWebhookBody int64 `env:"BILLING_MAX_WEBHOOK_BODY" envDefault:"1048576"`
}

// Module bundles the subscription engine behind a chi router.
type Module struct {
	checkout   *entitlement.CheckoutService
	lifecycle  *entitlement.LifecycleService
	reconciler *entitlement.Reconciler
	gateway    entitlement.PaymentGateway
	catalog    *entitlement.Catalog
	cfg        Config
	log        *slog.Logger
}

// New creates the billing module. It panics on missing dependencies
// because the module cannot serve without any of them.
func New(
	checkout *entitlement.CheckoutService,
	lifecycle *entitlement.LifecycleService,
	reconciler *entitlement.Reconciler,
	gateway entitlement.PaymentGateway,
	catalog *entitlement.Catalog,
	cfg Config,
	log *slog.Logger,
) *Module {
	if checkout == nil {
		panic("checkout service is required")
	}
	if lifecycle == nil {
		panic("lifecycle service is required")
	}
	if reconciler == nil {
		panic("reconciler is required")
	}
	if gateway == nil {
		panic("payment gateway is required")
	}
	if catalog == nil {
		panic("catalog is required")
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = webhook.Header
	}
	if cfg.MaxWebhookBody <= 0 {
		cfg.MaxWebhookBody = 1 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Module{
		checkout:   checkout,
		lifecycle:  lifecycle,
		reconciler: reconciler,
		gateway:    gateway,
		catalog:    catalog,
		cfg:        cfg,
		log:        log,
	}
}

// Router mounts the billing HTTP surface.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(authMiddleware) // stores entitlement.Principal in context
//	r.Mount("/billing", billingModule.Router())
func (m *Module) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/plans", m.handleListPlans)
	r.Post("/webhook", m.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(requirePrincipal)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", m.handleSubscribe)
			r.Get("/", m.handleListSubscriptions)
			r.Get("/{id}/payments", m.handlePaymentHistory)
			r.Delete("/{id}", m.handleCancel)
			r.Put("/{id}/tier", m.handleChangeTier)
			r.Put("/{id}/auto-renew", m.handleSetAutoRenew)
			r.Post("/{id}/refund", m.handleRefund)
		})

		r.Get("/earnings", m.handleEarnings)
	})

	return r
}

// requirePrincipal rejects requests without an authenticated principal.
// Authentication itself is the host application's concern.
func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetPrincipalFromContext(r.Context()); !ok {
			respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
