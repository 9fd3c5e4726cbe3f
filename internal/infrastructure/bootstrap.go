package infrastructure

import (
	"context"
	"log/slog"

	"armonyco/internal/cache"
	"armonyco/internal/config"
	"armonyco/internal/mailer"
	"armonyco/internal/payments"
	"armonyco/internal/repository"
	"armonyco/internal/service"
	transportHTTP "armonyco/internal/transport/http"
	transportNATS "armonyco/internal/transport/nats"
	"armonyco/internal/worker"

	"github.com/nats-io/nats.go"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	NewLogger(cfg.IsDevelopment())

	db, err := connectPostgres(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, db.Close)

	var servers []Server

	// ── Cache ──────────────────────────────────────────────────────────────────
	var respCache cache.Store
	switch cfg.CacheProvider {
	case "redis":
		rdb, err := connectRedis(ctx, cfg.RedisAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })
		respCache = cache.NewRedis(rdb, cfg.CacheTTL)
	default:
		mem := cache.NewMemory(cfg.CacheTTL)
		respCache = mem
		servers = append(servers, cache.NewSweeper(mem, cfg.CacheSweep))
	}

	// ── Payments and mail ──────────────────────────────────────────────────────
	var gateway service.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		slog.Warn("bootstrap: STRIPE_SECRET_KEY is not set, checkout is disabled")
	}
	sender := mailer.New(cfg.SendGridAPIKey)
	repo := repository.NewLedgerRepo(db)

	// ── Bus ────────────────────────────────────────────────────────────────────
	var bus service.MessageBus = transportNATS.NoopBus{}
	var nc *nats.Conn
	if cfg.BusProvider == "nats" {
		nc, err = connectNats(cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		bus = transportNATS.NewBus(nc)
	}

	billing := service.NewBilling(repo, gateway, payments.NewCatalog(cfg.StripePrices),
		service.WithCache(respCache),
		service.WithBus(bus),
		service.WithBaseURL(cfg.AppURL),
		service.WithLookupPolicy(lookupPolicy(cfg)),
	)
	if nc != nil {
		servers = append(servers,
			transportNATS.NewHandler(billing, nc),
			worker.NewCreditsWorker(repo, sender, respCache, cfg.FromEmail, nc),
		)
	}

	orgs := service.NewOrganizations(repo, sender, cfg.FromEmail, cfg.AppURL)
	notifications := service.NewNotifications(sender, cfg.FromEmail, cfg.AppURL)

	// ── HTTP ───────────────────────────────────────────────────────────────────
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		h := transportHTTP.NewHandler(billing, orgs, notifications, cfg.StripeWebhookSecret)
		servers = append(servers, transportHTTP.NewServer(addr, h, cfg.MetricsEnabled))
	} else {
		slog.Info("bootstrap: HTTP API disabled", "reason", apiErr)
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

func lookupPolicy(cfg *config.Config) service.LookupPolicy {
	p := service.DefaultLookupPolicy()
	p.Attempts = cfg.OrgLookupAttempts
	return p
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
