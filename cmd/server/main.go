package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/tksoft/bankgrow"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg bankgrow.Config
	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()
	cfgfl, err := os.Open(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error opening config file")
	}
	if err = yaml.NewDecoder(cfgfl).Decode(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("error decoding config file")
	}

	queryTimeout := parseDuration(&logger, cfg.Database.QueryTimeout, 5*time.Second)
	growRate, err := decimal.NewFromString(cfg.AutoGrow.Rate)
	if err != nil {
		logger.Fatal().Err(err).Msg("error parsing auto-growth rate")
	}
	growInterval := parseDuration(&logger, cfg.AutoGrow.Interval, 30*time.Second)
	growThrottle := parseDuration(&logger, cfg.AutoGrow.Throttle, time.Second)

	pgendpt, err := bankgrow.NewPostgresEndpoint(cfg.Database.ConnectionString, queryTimeout, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting database")
	}

	svc, err := bankgrow.NewService(pgendpt, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting service")
	}

	var wrapped bankgrow.Service = svc
	for _, mw := range []bankgrow.Middleware{
		bankgrow.NewCachingMiddleware(cache.New(time.Minute, 5*time.Minute)),
		bankgrow.NewCircuitBreakMiddleware(newServiceBreaker()),
		bankgrow.NewLimitMiddleware(newServiceLimits(), 2*time.Second),
	} {
		wrapped = mw(wrapped)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grower, err := bankgrow.NewGrower(wrapped, growRate, growInterval, growThrottle, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting auto-growth scheduler")
	}
	go grower.Run(ctx)

	hndlr := bankgrow.NewHTTPHandler(wrapped, &logger)
	srv := &http.Server{Addr: ":3000", Handler: hndlr}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Err(err).Msg("error shutting down HTTP server")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("error serving HTTP")
	}
}

func parseDuration(logger *zerolog.Logger, s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Fatal().Err(err).Str("value", s).Msg("error parsing duration")
	}
	return d
}

func newServiceLimits() *bankgrow.ServiceLimits {
	return &bankgrow.ServiceLimits{
		CreateAccount: semaphore.NewWeighted(16),
		Deposit:       semaphore.NewWeighted(64),
		Withdraw:      semaphore.NewWeighted(64),
		Transfer:      semaphore.NewWeighted(64),
		Grow:          semaphore.NewWeighted(16),
		Balance:       semaphore.NewWeighted(128),
		Accounts:      semaphore.NewWeighted(16),
		Statement:     semaphore.NewWeighted(8),
	}
}

func newServiceBreaker() *bankgrow.ServiceBreaker {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{Name: name}
	}
	return &bankgrow.ServiceBreaker{
		CreateAccount: gobreaker.NewTwoStepCircuitBreaker[*bankgrow.Account](settings("create_account")),
		Deposit:       gobreaker.NewTwoStepCircuitBreaker[*decimal.Decimal](settings("deposit")),
		Withdraw:      gobreaker.NewTwoStepCircuitBreaker[*decimal.Decimal](settings("withdraw")),
		Transfer:      gobreaker.NewTwoStepCircuitBreaker[interface{}](settings("transfer")),
		Grow:          gobreaker.NewTwoStepCircuitBreaker[*decimal.Decimal](settings("grow")),
		Balance:       gobreaker.NewTwoStepCircuitBreaker[*decimal.Decimal](settings("balance")),
		Accounts:      gobreaker.NewTwoStepCircuitBreaker[[]bankgrow.Account](settings("accounts")),
		Statement:     gobreaker.NewTwoStepCircuitBreaker[interface{}](settings("statement")),
	}
}
