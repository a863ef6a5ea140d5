package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bher20/ratehub/internal/alerting"
	"github.com/bher20/ratehub/internal/auth"
	"github.com/bher20/ratehub/internal/cache"
	"github.com/bher20/ratehub/internal/config"
	"github.com/bher20/ratehub/internal/cron"
	"github.com/bher20/ratehub/internal/logging"
	"github.com/bher20/ratehub/internal/migrate"
	"github.com/bher20/ratehub/internal/rates"
	"github.com/bher20/ratehub/internal/storage"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
	_ "github.com/bher20/ratehub/pkg/providers/rateproviders/bog"
	_ "github.com/bher20/ratehub/pkg/providers/rateproviders/exchangerateapi"
	_ "github.com/bher20/ratehub/pkg/providers/rateproviders/fixer"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Storage
	cache  cache.Store
	svc    *rates.Service
	guard  *auth.Guard
	worker *cron.Worker
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log)

	// The pgxpool backend has no AutoMigrate; its schema comes from goose.
	if cfg.Storage.Driver == "postgrespool" {
		if err := migrate.Up(ctx, cfg.Storage.Driver, cfg.Storage.DSN); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	store, err := storage.Open(ctx, storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rc, err := cache.Open(ctx, cache.Config{
		Driver:          cfg.Cache.Driver,
		Addr:            cfg.Cache.RedisAddr,
		Password:        cfg.Cache.RedisPassword,
		DB:              cfg.Cache.RedisDB,
		Prefix:          cfg.Cache.Prefix,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, logger.With("component", "cache"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	sources, err := rateproviders.Build(providerSettings(cfg.Providers), cfg.Providers.Order, logger)
	if err != nil {
		rc.Close()
		store.Close()
		return nil, err
	}

	svc := rates.NewService(rates.Config{
		BaseCurrency:   cfg.Engine.BaseCurrency,
		DefaultTargets: cfg.Engine.DefaultTargets,
		SuccessTTL:     cfg.Cache.SuccessTTL,
		FailureTTL:     cfg.Cache.FailureTTL,
	}, sources, rc, store, rates.WithLogger(logger))

	tokens, err := auth.ParseTokens(cfg.Auth.Tokens)
	if err != nil {
		rc.Close()
		store.Close()
		return nil, err
	}
	guard, err := auth.NewGuard(tokens, logger)
	if err != nil {
		rc.Close()
		store.Close()
		return nil, err
	}

	schedule, err := cron.ParseSchedule(cfg.Refresh.Schedule)
	if err != nil {
		rc.Close()
		store.Close()
		return nil, err
	}
	alerter := alerting.NewAlerter(alerting.Config{
		WebhookURL:             cfg.Alert.WebhookURL,
		WebhookType:            cfg.Alert.WebhookType,
		MinConsecutiveFailures: cfg.Alert.MinConsecutiveFailures,
		Timeout:                cfg.Alert.Timeout,
		SendGridAPIKey:         cfg.Alert.SendGridAPIKey,
		EmailFrom:              cfg.Alert.EmailFrom,
		EmailFromName:          cfg.Alert.EmailFromName,
		EmailTo:                cfg.Alert.EmailTo,
	}, logger)

	logger.Info("ratehub configured",
		"storage", cfg.Storage.Driver,
		"cache", cfg.Cache.Driver,
		"base", svc.BaseCurrency(),
		"providers", len(sources),
		"tokens", len(tokens),
		"alerts", alerter.Enabled())

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		cache:  rc,
		svc:    svc,
		guard:  guard,
		worker: cron.NewWorker(svc, store, alerter, schedule, logger),
	}, nil
}

func providerSettings(p config.Providers) map[string]rateproviders.Options {
	common := rateproviders.Options{
		Timeout:       p.Timeout,
		SkipTLSVerify: p.SkipTLSVerify,
	}
	bog := common
	bog.URL = p.BOGURL

	era := common
	era.URL = p.ExchangeRateAPIURL
	era.APIKey = p.ExchangeRateAPIKey

	fixer := common
	fixer.URL = p.FixerURL
	fixer.APIKey = p.FixerKey
	fixer.PivotCurrency = p.FixerPivot

	return map[string]rateproviders.Options{
		"bog":             bog,
		"exchangerateapi": era,
		"fixer":           fixer,
	}
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("close cache", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close storage", "error", err)
	}
}
