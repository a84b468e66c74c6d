package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/course-checkout/api"
	"github.com/irsalhamdi/course-checkout/api/background"
	"github.com/irsalhamdi/course-checkout/catalog"
	"github.com/irsalhamdi/course-checkout/config"
	"github.com/irsalhamdi/course-checkout/core/claims"
	"github.com/irsalhamdi/course-checkout/core/event"
	"github.com/irsalhamdi/course-checkout/core/purchase"
	"github.com/irsalhamdi/course-checkout/database"
	"github.com/irsalhamdi/course-checkout/gateway"
	"github.com/irsalhamdi/course-checkout/rate"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := Run(log); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return
		}
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	const prefix = "CHECKOUT"
	var cfg config.Config
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return err
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}
	logger.Infof("config:\n%s", out)

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	gw, err := gateway.New(gateway.Config{
		APIKey:      cfg.Gateway.APIKey,
		SecretKey:   cfg.Gateway.SecretKey,
		BaseURL:     cfg.Gateway.BaseURL,
		NonceHeader: cfg.Gateway.NonceHeader,
		Locale:      cfg.Gateway.Locale,
		Currency:    cfg.Gateway.Currency,
		Timeout:     cfg.Gateway.Timeout,
	}, logger.WithField("component", "gateway"))
	if err != nil {
		return fmt.Errorf("failed to build the gateway client: %w", err)
	}

	breaker := catalog.NewBreaker(
		catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout),
		catalog.BreakerConfig{
			Name:         "catalog",
			MaxRequests:  cfg.Catalog.BreakerMaxRequests,
			Interval:     cfg.Catalog.BreakerInterval,
			Timeout:      cfg.Catalog.BreakerTimeout,
			MinRequests:  cfg.Catalog.BreakerMinRequests,
			FailureRatio: cfg.Catalog.BreakerFailureRatio,
		},
		logger.WithField("component", "catalog"),
	)

	orch := purchase.NewOrchestrator(
		breaker,
		gw,
		purchase.NewSQLLedger(db, cfg.Kafka.Topic),
		purchase.Config{
			Provider:    cfg.Purchase.Provider,
			Currency:    cfg.Gateway.Currency,
			CallbackURL: cfg.Gateway.CallbackURL,
		},
		logger.WithField("component", "purchase"),
	)

	verifier, err := claims.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to build the token verifier: %w", err)
	}

	limiter := rate.NewLimiter(cfg.Limit.Burst, cfg.Limit.Interval, cfg.Limit.Expiry)

	bg := background.New(logger)
	bg.Go("rate-limiter", limiter.Run)
	bg.Go("stale-sweeper", func(ctx context.Context) {
		orch.RunSweeper(ctx, cfg.Purchase.SweepInterval, cfg.Purchase.StaleAfter)
	})

	if cfg.Kafka.Enabled {
		producer := event.NewKafkaProducer(cfg.Kafka.Brokers, logger.WithField("component", "kafka"))
		defer producer.Close()

		relay := event.NewRelay(db, producer, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize, logger.WithField("component", "outbox"))
		bg.Go("outbox-relay", relay.Run)
	} else {
		logger.Warn("kafka disabled, payment events stay in the outbox")
	}

	mux := api.APIMux(api.APIConfig{
		Log:          logger,
		DB:           db,
		Orchestrator: orch,
		Breaker:      breaker,
		Verifier:     verifier,
		Limiter:      limiter,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}
