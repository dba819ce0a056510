package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/fangate/modules/billing"
	"github.com/dmitrymomot/fangate/pkg/config"
	"github.com/dmitrymomot/fangate/pkg/entitlement"
	"github.com/dmitrymomot/fangate/pkg/httpserver"
	"github.com/dmitrymomot/fangate/pkg/logger"
	"github.com/dmitrymomot/fangate/pkg/pg"
	"github.com/dmitrymomot/fangate/pkg/webhook"
)

type appConfig struct {
	Name        string `env:"APP_NAME" envDefault:"fangate"`
	Environment string `env:"APP_ENV" envDefault:"production"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		appCfg       appConfig
		pgCfg        pg.Config
		httpCfg      httpserver.Config
		paddleCfg    entitlement.PaddleConfig
		checkoutCfg  entitlement.CheckoutConfig
		lifecycleCfg entitlement.LifecycleConfig
		billingCfg   billing.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&paddleCfg)
	config.MustLoad(&checkoutCfg)
	config.MustLoad(&lifecycleCfg)
	config.MustLoad(&billingCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, appCfg.Name))
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("database connection failed", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		log.Error("migrations failed", logger.Error(err))
		os.Exit(1)
	}

	gateway, err := entitlement.NewPaddleGateway(paddleCfg)
	if err != nil {
		log.Error("paddle gateway init failed", logger.Error(err))
		os.Exit(1)
	}

	store := entitlement.NewPGStore(pool)
	identities := entitlement.NewPGIdentityStore(pool)
	catalog := entitlement.DefaultCatalog()

	checkout := entitlement.NewCheckoutService(store, identities, identities, gateway, catalog, checkoutCfg, log)
	lifecycle := entitlement.NewLifecycleService(store, gateway, catalog, lifecycleCfg, log)
	reconciler := entitlement.NewReconciler(store, catalog, log)

	// Paddle sends its signature under its own header name.
	if billingCfg.SignatureHeader == webhook.Header {
		billingCfg.SignatureHeader = "Paddle-Signature"
	}
	module := billing.New(checkout, lifecycle, reconciler, gateway, catalog, billingCfg, log)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, pg.Healthcheck(pool)))
	r.Mount("/billing", module.Router())

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil {
		log.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}
