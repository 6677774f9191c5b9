// README: Entry point; loads config, wires stores and services, serves HTTP until SIGTERM.
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

	"transferhub/internal/config"
	httptransport "transferhub/internal/http"
	"transferhub/internal/infra"
	"transferhub/internal/logging"
	"transferhub/internal/maps"
	"transferhub/internal/modules/eligibility"
	"transferhub/internal/modules/events"
	"transferhub/internal/modules/job"
	"transferhub/internal/modules/notify"
	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/settlement"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Log.Level).With(slog.String("service", cfg.Log.Service))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("transferhub-api stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

type storage struct {
	users   user.Directory
	ledger  settlement.Ledger
	jobs    job.Store
	pricing pricing.ConfigStore
	close   func()
}

// openStorage picks Postgres when a DSN is configured, otherwise the
// in-memory stores.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("TH_DB_DSN is empty; using in-memory stores")
		users := user.NewMemoryDirectory()
		ledger := settlement.NewMemoryLedger(users)
		return storage{users: users, ledger: ledger, jobs: job.NewMemoryStore(ledger), close: func() {}}, nil
	}
	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return storage{}, err
	}
	return storage{
		users:   user.NewPostgresDirectory(pool),
		ledger:  settlement.NewPostgresLedger(pool),
		jobs:    job.NewPostgresStore(pool),
		pricing: pricing.NewStore(pool),
		close:   pool.Close,
	}, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	if err := seedUsers(ctx, cfg, st.users, logger); err != nil {
		return err
	}

	pricingSvc := pricing.NewService(st.pricing, logger)
	if cfg.Platform.PricingFile != "" {
		pc, err := pricing.LoadConfigFile(cfg.Platform.PricingFile)
		if err != nil {
			return fmt.Errorf("pricing file: %w", err)
		}
		if err := pricingSvc.Seed(pc); err != nil {
			return err
		}
	}
	// A persisted config wins over the seed; with none, the seed becomes version 1.
	if err := pricingSvc.Load(ctx); err != nil {
		return err
	}

	broker := events.NewBroker(logger)
	publishers := events.Multi{broker}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publishers = append(publishers, kp)
	}
	pricingSvc.SetPublisher(publishers)
	go logEvents(ctx, broker, logger)

	var (
		verifier infra.TokenVerifier
		notifier notify.Sink = notify.LogSink{Logger: logger}
	)
	if cfg.Firebase.ProjectID != "" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		if !cfg.Firebase.AuthDisabled {
			fa, err := infra.NewFirebaseAuth(ctx, app)
			if err != nil {
				return err
			}
			verifier = fa
		}
		fs, err := app.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("firestore: %w", err)
		}
		defer fs.Close()
		msg, err := app.Messaging(ctx)
		if err != nil {
			return fmt.Errorf("messaging: %w", err)
		}
		notifier = notify.NewFirebaseSink(fs, msg, st.users, logger)
	}
	if verifier == nil {
		logger.Warn("auth disabled; trusting caller headers")
	}

	var router job.RouteEstimator
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			return err
		}
		router = rs
	}

	jobSvc := job.NewService(job.Deps{
		Store:             st.jobs,
		Pricing:           pricingSvc,
		Users:             st.users,
		Notifier:          notifier,
		Events:            publishers,
		Router:            router,
		Logger:            logger,
		PlatformAccountID: types.ID(cfg.Platform.AccountID),
	})

	skips, closeSkips, err := openSkipStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSkips()

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Jobs:        jobSvc,
		Eligibility: eligibility.NewService(st.jobs, st.users, skips, logger),
		Pricing:     pricingSvc,
		Settlement:  settlement.NewService(st.ledger, st.users, logger),
		Broker:      broker,
		Verifier:    verifier,
		Currency:    cfg.Platform.Currency,
		Logger:      logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: srv.Routes()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTP.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func openSkipStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (eligibility.SkipStore, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("TH_REDIS_ADDR is empty; skip-lists are kept in memory")
		return eligibility.NewMemorySkipStore(), func() {}, nil
	}
	rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return nil, nil, err
	}
	return eligibility.NewRedisSkipStore(rdb), func() { _ = rdb.Close() }, nil
}

// seedUsers upserts the optional roster and makes sure the platform account exists.
func seedUsers(ctx context.Context, cfg config.Config, users user.Directory, logger *slog.Logger) error {
	var roster []*user.User
	if cfg.Platform.UsersFile != "" {
		var err error
		if roster, err = user.LoadRosterFile(cfg.Platform.UsersFile); err != nil {
			return fmt.Errorf("users file: %w", err)
		}
	}
	platformID := types.ID(cfg.Platform.AccountID)
	if _, err := users.Get(ctx, platformID); errors.Is(err, types.ErrNotFound) {
		roster = append(roster, &user.User{ID: platformID, Name: "Platform", Role: user.RoleAdmin, Status: user.StatusActive})
	} else if err != nil {
		return err
	}
	for _, u := range roster {
		if err := users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("upsert %s: %w", u.ID, err)
		}
	}
	if len(roster) > 0 {
		logger.Info("users provisioned", slog.Int("count", len(roster)))
	}
	return nil
}

func logEvents(ctx context.Context, broker *events.Broker, logger *slog.Logger) {
	for e := range broker.Subscribe(ctx, 64) {
		logger.Debug("lifecycle event",
			slog.String("type", string(e.Type)),
			slog.String("job_id", string(e.JobID)),
			slog.String("from", e.From),
			slog.String("to", e.To),
		)
	}
}
