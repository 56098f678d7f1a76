package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mintforge/packdrop-backend/api/routes"
	"github.com/mintforge/packdrop-backend/internal/catalog"
	"github.com/mintforge/packdrop-backend/internal/decks"
	"github.com/mintforge/packdrop-backend/internal/distribution"
	"github.com/mintforge/packdrop-backend/internal/emission"
	"github.com/mintforge/packdrop-backend/internal/itemledger"
	"github.com/mintforge/packdrop-backend/internal/payments"
	"github.com/mintforge/packdrop-backend/internal/randomness"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/logger"
	"github.com/mintforge/packdrop-backend/pkg/metrics"
	"github.com/mintforge/packdrop-backend/pkg/migrate"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
	"github.com/mintforge/packdrop-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	engineMetrics := metrics.NewEngineMetrics(registry)

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	securitySvc, err := security.NewService(security.NewRepository(dbClient.DB()), dbClient, emitter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create security service", err)
		os.Exit(1)
	}
	if err := securitySvc.Bootstrap(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to bootstrap security state", err)
		os.Exit(1)
	}

	emissionSvc, err := emission.NewService(emission.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create emission service", err)
		os.Exit(1)
	}
	if _, err := emissionSvc.Bootstrap(context.Background(), cfg.Engine.EmissionCap, cfg.Engine.PackSize); err != nil {
		logg.Error(context.Background(), "failed to bootstrap emission state", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogSvc, err := catalog.NewService(catalogRepo, dbClient, securitySvc, emitter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	deckRepo := decks.NewRepository(dbClient.DB())
	deckSvc, err := decks.NewService(deckRepo, catalogSvc, securitySvc, cfg.Engine.DeckMaxCards, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create deck service", err)
		os.Exit(1)
	}

	ledger, err := itemledger.NewHTTPLedger(cfg.ItemLedger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create item ledger client", err)
		os.Exit(1)
	}
	channel, err := payments.NewHTTPChannel(cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment channel", err)
		os.Exit(1)
	}

	guard := security.NewGuard()

	distributionSvc, err := distribution.NewService(
		catalogRepo, deckRepo, emissionSvc, ledger, channel, securitySvc, guard,
		dbClient, emitter,
		distribution.Params{
			PackSize: cfg.Engine.PackSize,
			Treasury: cfg.Payments.TreasuryAccount,
		},
		engineMetrics, logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create distribution service", err)
		os.Exit(1)
	}

	var oracle randomness.Oracle
	if cfg.Oracle.Endpoint != "" {
		oracle, err = randomness.NewHTTPOracle(cfg.Oracle, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create oracle client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "no oracle endpoint configured, using noop oracle")
		oracle = randomness.NoopOracle{}
	}

	randomnessSvc, err := randomness.NewService(
		randomness.NewRepository(dbClient.DB()), dbClient, oracle,
		securitySvc, emissionSvc, distributionSvc, guard, channel, emitter,
		randomness.Params{
			PackSize:       cfg.Engine.PackSize,
			PackPrice:      cfg.Engine.PackPriceDecimal(),
			MaxBatchSize:   cfg.Engine.MaxBatchSize,
			RequestTimeout: cfg.Engine.RequestTimeout,
			Treasury:       cfg.Payments.TreasuryAccount,
		},
		engineMetrics, logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create randomness service", err)
		os.Exit(1)
	}

	limiter, err := security.NewCooldownLimiter(redisClient, securitySvc, cfg.Engine.PurchaseCooldown)
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase limiter", err)
		os.Exit(1)
	}

	go expireStaleLoop(context.Background(), randomnessSvc, cfg.Engine.RequestTimeout, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DBPinger:       dbClient,
			RedisPinger:    redisClient,
			Catalog:        catalogSvc,
			Decks:          deckSvc,
			Emission:       emissionSvc,
			Security:       securitySvc,
			Randomness:     randomnessSvc,
			Distribution:   distributionSvc,
			Limiter:        limiter,
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// expireStaleLoop sweeps timed-out pack requests so abandoned callbacks do
// not pile up as pending rows.
func expireStaleLoop(ctx context.Context, svc randomness.Service, timeout time.Duration, logg *logger.Logger) {
	interval := timeout / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flipped, err := svc.ExpireStale(ctx)
			if err != nil {
				logg.Error(ctx, "expiry sweep failed", err)
				continue
			}
			if flipped > 0 {
				logg.Info(logg.WithFields(ctx, map[string]any{"expired": flipped}), "expired stale pack requests")
			}
		}
	}
}
