package main

import (
	"context"
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/metrics"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/routing"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/routing/prediction"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/server"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/telemetry"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/telemetry/mqtt"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/telemetry/replay"
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func engineModule() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			clock.New,
			newPrometheusRegistry,
			newCollector,
			newMirror,
			newRegistry,
			prediction.NewLoadPredictor,
			prediction.NewReliabilityPredictor,
			newWeightManager,
			newScoringEngine,
			newRouter,
			events.NewEventBus,
			routing.NewModelReloader,
		),
		fx.Invoke(registerListener, registerModelReloader),
	)
}

func telemetryModule() fx.Option {
	return fx.Module("telemetry",
		fx.Provide(newSources),
		fx.Invoke(registerSources),
	)
}

func serverModule() fx.Option {
	return fx.Module("server",
		fx.Provide(newHandler, newHttpServer),
		fx.Invoke(registerHttpServer),
	)
}

func newPrometheusRegistry() *prometheus.Registry {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promRegistry
}

func newCollector(promRegistry *prometheus.Registry) *metrics.Collector {
	return metrics.NewCollector(promRegistry)
}

func newMirror(cfg config.Config, logger hclog.Logger) (registry.Mirror, error) {
	switch cfg.Cache.Backend {
	case config.CACHE_BACKEND_REDIS:
		mirror := registry.NewRedisMirror(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDb})
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Cache.Timeout)
		defer cancel()
		if err := mirror.Ping(ctx); err != nil {
			// the registry keeps working locally until redis comes back
			logger.Warn("redis unreachable at startup", "addr", cfg.Cache.RedisAddr, "error", err)
		}
		return mirror, nil
	case config.CACHE_BACKEND_BADGER:
		mirror, err := registry.OpenBadgerMirror(cfg.Cache.BadgerDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open badger mirror: %w", err)
		}
		return mirror, nil
	}
	return nil, nil
}

func newRegistry(logger hclog.Logger, clk clock.Clock, collector *metrics.Collector, cfg config.Config, mirror registry.Mirror) *registry.Registry {
	return registry.NewRegistry(logger, clk, collector, registry.Options{
		Mirror:        mirror,
		MirrorTTL:     cfg.Cache.Ttl,
		MirrorTimeout: cfg.Cache.Timeout,
	})
}

func newWeightManager(logger hclog.Logger, collector *metrics.Collector, cfg config.Config) (*routing.WeightManager, error) {
	return routing.NewWeightManager(logger, collector, cfg.Routing.Weights)
}

func newScoringEngine(load *prediction.LoadPredictor, reliability *prediction.ReliabilityPredictor, cfg config.Config) *routing.ScoringEngine {
	return routing.NewScoringEngine(load, reliability, cfg.Routing.HoursAhead)
}

func newRouter(logger hclog.Logger, clk clock.Clock, nodeRegistry *registry.Registry, scoring *routing.ScoringEngine,
	weights *routing.WeightManager, collector *metrics.Collector, cfg config.Config) *routing.Router {
	return routing.NewRouter(logger, clk, nodeRegistry, scoring, weights, collector, cfg.Routing.FreshnessWindow)
}

// registerListener drains the event bus while the app runs. The registry mirror is closed once the
// listener has stopped writing to it.
func registerListener(lc fx.Lifecycle, router *routing.Router, eventBus *events.EventBus, nodeRegistry *registry.Registry) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				router.Listen(ctx, eventBus)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			var err error
			select {
			case <-done:
			case <-stopCtx.Done():
				err = stopCtx.Err()
			}
			return multierr.Combine(err, nodeRegistry.Close())
		},
	})
}

func registerModelReloader(lc fx.Lifecycle, reloader *routing.ModelReloader, cfg config.Config,
	load *prediction.LoadPredictor, reliability *prediction.ReliabilityPredictor) {
	reloader.Watch(server.LOAD_PREDICTOR, load, cfg.Models.LoadModelPath)
	reloader.Watch(server.RELIABILITY_PREDICTOR, reliability, cfg.Models.ReliabilityModelPath)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return reloader.Start(cfg.Models.ReloadSchedule)
		},
		OnStop: func(context.Context) error {
			reloader.Stop()
			return nil
		},
	})
}

func newSources(logger hclog.Logger, eventBus *events.EventBus, cfg config.Config) ([]telemetry.Source, error) {
	sources := []telemetry.Source{}

	if cfg.Mqtt.Enabled {
		subscriber, err := mqtt.NewSubscriber(logger, eventBus, mqtt.Options{
			Broker:   cfg.Mqtt.Broker,
			ClientId: cfg.Mqtt.ClientId,
			Topic:    cfg.Mqtt.Topic,
			Qos:      cfg.Mqtt.Qos,
		})
		if err != nil {
			return nil, fmt.Errorf("mqtt source: %w", err)
		}
		sources = append(sources, subscriber)
	}

	if cfg.Replay.CsvPath != "" {
		sources = append(sources, replay.NewFleetReplay(logger, eventBus, cfg.Replay.CsvPath, cfg.Replay.Schedule))
	}

	return sources, nil
}

// registerSources starts the telemetry sources after the listener so no early reading is missed.
func registerSources(lc fx.Lifecycle, sources []telemetry.Source) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			group := errgroup.Group{}
			for _, source := range sources {
				group.Go(source.Start)
			}
			return group.Wait()
		},
		OnStop: func(context.Context) error {
			for _, source := range sources {
				source.Stop()
			}
			return nil
		},
	})
}

func newHandler(logger hclog.Logger, router *routing.Router, load *prediction.LoadPredictor,
	reliability *prediction.ReliabilityPredictor, reloader *routing.ModelReloader, cfg config.Config) *server.Handler {
	return server.NewHandler(logger, router, load, reliability, reloader, server.ModelPaths{
		Load:        cfg.Models.LoadModelPath,
		Reliability: cfg.Models.ReliabilityModelPath,
	})
}

func newHttpServer(logger hclog.Logger, handler *server.Handler, promRegistry *prometheus.Registry, cfg config.Config) *server.HttpServer {
	var limiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.Burst)
	}

	return server.NewHttpServer(logger, cfg.Server.Address, server.NewRouter(handler, limiter, promRegistry))
}

func registerHttpServer(lc fx.Lifecycle, httpServer *server.HttpServer, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return httpServer.Start()
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	})
}
