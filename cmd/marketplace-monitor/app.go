package main

import (
	"context"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/datastore"
	"github.com/aleister1102/marketplace-monitor/internal/dedup"
	"github.com/aleister1102/marketplace-monitor/internal/engine"
	"github.com/aleister1102/marketplace-monitor/internal/httpclient"
	"github.com/aleister1102/marketplace-monitor/internal/metrics"
	"github.com/aleister1102/marketplace-monitor/internal/notifier"
	"github.com/aleister1102/marketplace-monitor/internal/parser"
	"github.com/aleister1102/marketplace-monitor/internal/resource"
	"github.com/aleister1102/marketplace-monitor/internal/server"
	"github.com/rs/zerolog"
)

// appOptions selects which collaborators a command needs
type appOptions struct {
	cooldown bool
	notify   bool
	history  bool
	server   bool
	guard    bool
}

// application is the wired set of components behind a command
type application struct {
	cfg        *config.AppConfig
	logger     zerolog.Logger
	engine     *engine.Engine
	dispatcher *notifier.Dispatcher
	history    *datastore.HistoryStore
	collector  *metrics.Collector
	server     *server.Server
	closers    []func() error
}

func newApplication(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger, opts appOptions) (*application, error) {
	app := &application{cfg: cfg, logger: logger}
	engineOpts := []engine.Option{engine.WithLogger(logger)}

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	registry := parser.NewRegistry(parser.Deps{Fetcher: fetcher, Logger: logger})
	if err := parser.RegisterBuiltins(registry); err != nil {
		return nil, common.WrapError(err, "failed to register built-in parsers")
	}

	if opts.cooldown {
		gate, closeGate, err := dedup.FromConfig(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, closeGate)
		if gate != nil {
			engineOpts = append(engineOpts, engine.WithCooldown(gate))
		}
	}

	if opts.notify {
		dispatcher, err := notifier.FromConfig(cfg, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.dispatcher = dispatcher
		engineOpts = append(engineOpts, engine.WithNotifier(dispatcher))
	}

	if opts.history && cfg.Storage.Enabled {
		history, err := datastore.NewHistoryStore(cfg.Storage.SQLitePath, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.history = history
		app.closers = append(app.closers, history.Close)
		engineOpts = append(engineOpts, engine.WithObserver(history))
	}

	if opts.server && cfg.Server.Enabled {
		app.collector = metrics.NewCollector()
		engineOpts = append(engineOpts, engine.WithObserver(app.collector))
	}

	if opts.guard && cfg.Resource.MaxMemoryPercent > 0 {
		engineOpts = append(engineOpts, engine.WithAdmissionGuard(resource.NewMemoryGuard(cfg.Resource.MaxMemoryPercent, logger)))
	}

	eng, err := engine.New(cfg, registry, engineOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.engine = eng

	if app.collector != nil {
		app.server = server.New(cfg.Server, eng, app.collector.Handler(), logger)
	}
	return app, nil
}

// newFetcher builds the page fetcher selected by engine.fetcher
func newFetcher(cfg *config.AppConfig, logger zerolog.Logger) (parser.Fetcher, error) {
	if cfg.Engine.Fetcher == config.FetcherColly {
		fetcher, err := parser.NewCollyFetcher(parser.CollyFetcherConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.TimeoutDuration(),
			Proxy:     cfg.Engine.Proxy,
		}, logger)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	}

	client, err := httpclient.NewHTTPClientBuilder(logger).
		WithTimeout(cfg.TimeoutDuration()).
		WithUserAgent(cfg.UserAgent).
		WithProxy(cfg.Engine.Proxy).
		WithInsecureSkipVerify(cfg.Engine.InsecureSkipVerify).
		WithHTTP2(cfg.Engine.EnableHTTP2).
		WithRetry(httpclient.DefaultRetryHandlerConfig()).
		Build()
	if err != nil {
		return nil, common.WrapError(err, "failed to create HTTP client")
	}
	return parser.NewHTTPFetcher(client), nil
}

// Close releases the history database and the cooldown store
func (a *application) Close() error {
	var collector common.ErrorCollector
	for i := len(a.closers) - 1; i >= 0; i-- {
		collector.Add(a.closers[i]())
	}
	a.closers = nil
	return collector.Error()
}
