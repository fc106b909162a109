package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/genstudio/backend/internal/auth"
	"github.com/genstudio/backend/internal/config"
	"github.com/genstudio/backend/internal/database"
	"github.com/genstudio/backend/internal/generations"
	"github.com/genstudio/backend/internal/handlers"
	"github.com/genstudio/backend/internal/ledger"
	"github.com/genstudio/backend/internal/lock"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/notify"
	"github.com/genstudio/backend/internal/orchestrator"
	"github.com/genstudio/backend/internal/payments"
	"github.com/genstudio/backend/internal/polling"
	"github.com/genstudio/backend/internal/pricing"
	"github.com/genstudio/backend/internal/providers"
	"github.com/genstudio/backend/internal/router"
	"github.com/genstudio/backend/internal/schema"
)

const recoverySweepInterval = time.Minute

func serveCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and poll workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logger)
		},
	}
}

type stores struct {
	users     auth.UserStore
	ledger    ledger.Store
	gens      generations.Store
	purchases payments.Store
}

func serve(parent context.Context, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		pool *pgxpool.Pool
		st   stores
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err = database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("Connected to PostgreSQL database successfully!")
		if err := database.Migrate(ctx, pool, database.Up, logger); err != nil {
			return err
		}
		st = stores{
			users:     auth.NewRepository(pool),
			ledger:    ledger.NewRepository(pool),
			gens:      generations.NewRepository(pool),
			purchases: payments.NewRepository(pool),
		}
	default:
		logger.Warn("using in-memory stores, data is lost on restart")
		st = stores{
			users:     auth.NewMemoryStore(),
			ledger:    ledger.NewMemoryStore(),
			gens:      generations.NewMemoryStore(),
			purchases: payments.NewMemoryStore(),
		}
	}

	locks, closeLocks, err := newLocks(cfg)
	if err != nil {
		return err
	}
	defer closeLocks()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	gateway, err := newGateway(cfg, httpClient, logger)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.LineNotifyToken != "" {
		notifier = notify.NewLine(cfg.LineNotifyToken, httpClient, logger)
	}

	var payGateway payments.Gateway
	if cfg.PaymentsEnabled() {
		omise, err := payments.NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			return fmt.Errorf("omise client: %w", err)
		}
		payGateway = omise
	} else {
		logger.Warn("OMISE keys not set, credit purchases are disabled")
	}

	ledgerSvc := ledger.NewService(st.ledger, logger)
	estimator := pricing.NewEstimator(pricing.DefaultCatalog())

	// The scheduler is bound to the river client once it exists.
	var scheduler *polling.RiverScheduler
	var orchScheduler orchestrator.Scheduler
	if pool != nil {
		scheduler = polling.NewRiverScheduler(cfg.PollInterval)
		orchScheduler = scheduler
	}
	orch := orchestrator.NewService(st.gens, ledgerSvc, estimator, gateway, orchScheduler, logger)
	coord := polling.NewCoordinator(st.gens, gateway, orch, locks, cfg.PollTimeout, logger)
	authSvc := auth.NewService(st.users, ledgerSvc, notifier, cfg.JWTSecret, cfg.SignupBonus, logger)
	paySvc := payments.NewService(payGateway, st.purchases, ledgerSvc, cfg.PaymentReturnURI, logger)

	var sweeper *polling.Sweeper
	if pool != nil {
		riverClient, err := newRiverClient(pool, coord, cfg.PollInterval)
		if err != nil {
			return err
		}
		scheduler.Bind(riverClient)
		go func() {
			if err := riverClient.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("River client stopped", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Warn("River client did not stop cleanly", "error", err)
			}
		}()
		sweeper = polling.NewSweeper(st.gens, recoverySweepInterval, func(ctx context.Context, gen *models.Generation) error {
			return scheduler.SchedulePoll(ctx, gen.ID)
		}, logger)
	} else {
		sweeper = polling.NewSweeper(st.gens, cfg.PollInterval, func(ctx context.Context, gen *models.Generation) error {
			_, err := coord.Step(ctx, gen.ID)
			return err
		}, logger)
	}
	go sweeper.Run(ctx)

	bodies, err := schema.New()
	if err != nil {
		return err
	}
	handler := router.New(router.Config{
		Auth:           &handlers.AuthHandler{Accounts: authSvc, Logger: logger},
		Generations:    &handlers.GenerationHandler{Generations: orch, Poller: coord, Logger: logger},
		Credits:        &handlers.CreditHandler{Ledger: ledgerSvc, Purchases: paySvc, Logger: logger},
		Catalog:        &handlers.CatalogHandler{Pricer: estimator, Logger: logger},
		Tokens:         authSvc,
		Bodies:         bodies,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "store", cfg.StoreBackend, "providers", cfg.ProviderMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLocks(cfg *config.Config) (lock.Keyed, func(), error) {
	if cfg.RedisURL == "" {
		return lock.NewLocalKeyed(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return lock.NewRedisKeyed(client, "genstudio:lock:"), func() { _ = client.Close() }, nil
}

func newGateway(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (orchestrator.Gateway, error) {
	if cfg.ProviderMode == config.ProvidersSimulated {
		logger.Warn("using simulated providers", "video_delay", cfg.SimulatedDelay)
		return providers.NewSimulated(cfg.SimulatedDelay), nil
	}
	reg := providers.NewRegistry()
	if cfg.RunwareAPIKey != "" {
		reg.Register(pricing.ProviderRunware, providers.NewRunware(cfg.RunwareAPIKey, cfg.RunwareBaseURL, httpClient, logger))
	}
	if cfg.ReplicateAPIToken != "" {
		rep, err := providers.NewReplicate(cfg.ReplicateAPIToken, logger)
		if err != nil {
			return nil, fmt.Errorf("replicate client: %w", err)
		}
		reg.Register(pricing.ProviderReplicate, rep)
	}
	logger.Info("provider registry ready", "providers", reg.Providers())
	return reg, nil
}

func newRiverClient(pool *pgxpool.Pool, stepper polling.Stepper, interval time.Duration) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, polling.NewPollWorker(stepper, interval))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}
