package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	grpcapi "hemrs/app/src/api/grpc"
	httpapi "hemrs/app/src/api/http"
	mqttapi "hemrs/app/src/api/mqtt"
	"hemrs/app/src/core"
	"hemrs/app/src/database"
	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const serviceName = "hemrs"

func provideConfig() (infra.Config, error) {
	return infra.LoadConfig()
}

func provideLogger(out io.Writer, cfg infra.Config) *infra.Logger {
	return infra.NewLoggerWithLevel(out, serviceName, cfg.LogLevel)
}

func provideStore(ctx context.Context, cfg infra.Config, logger *infra.Logger) (*database.Store, func(), error) {
	if database.ShouldCheckDatabase(cfg) {
		if err := database.WaitForDatabase(ctx, cfg, logger); err != nil {
			logger.Printf(ctx, "database connectivity check failed: %v", err)
		} else {
			logger.Println(ctx, "database connectivity check succeeded")
		}
	} else {
		logger.Println(ctx, "database connectivity check skipped (no DSN or host/port configured)")
	}

	return database.SetupStore(ctx, cfg, logger)
}

func provideCache(cfg infra.Config) *core.MeasurementCache {
	return core.NewMeasurementCache(cfg.CacheCapacity, cfg.CacheTTL)
}

func provideQueue(cfg infra.Config) *core.IngestionQueue {
	var opts []core.QueueOption
	if cfg.QueueFailFast {
		opts = append(opts, core.WithFailFast())
	}
	return core.NewIngestionQueue(cfg.QueueCapacity, opts...)
}

func provideWorker(cfg infra.Config, store *database.Store, cache *core.MeasurementCache, logger *infra.Logger) *core.InsertWorker {
	return core.NewInsertWorker(store, cache, logger, core.WithStoreTimeout(cfg.StoreTimeout))
}

func provideReadThrough(cfg infra.Config, store *database.Store, cache *core.MeasurementCache) *core.ReadThrough {
	return core.NewReadThrough(cache, store, cfg.StoreTimeout)
}

func provideMeasurementQueries(cfg infra.Config, store *database.Store, latest *core.ReadThrough) *core.MeasurementQueries {
	return core.NewMeasurementQueries(store, latest, cfg.StoreTimeout)
}

func provideCatalog(cfg infra.Config, store *database.Store) *core.Catalog {
	return core.NewCatalog(store, cfg.StoreTimeout)
}

func provideIngestService(queue *core.IngestionQueue, worker *core.InsertWorker) *core.IngestService {
	return core.NewIngestService(queue, worker)
}

func provideExporter(cfg infra.Config, store *database.Store, latest *core.ReadThrough, cache *core.MeasurementCache, logger *infra.Logger) *core.MetricsExporter {
	return core.NewMetricsExporter(store, latest, infra.NewMeasurementGauges(), store, cache, logger,
		core.WithExportInterval(cfg.MetricsInterval),
		core.WithStalenessWindow(cfg.StalenessWindow),
		core.WithExporterStoreTimeout(cfg.StoreTimeout),
	)
}

func provideRefresher(cfg infra.Config, store *database.Store, logger *infra.Logger) *core.ViewRefresher {
	return core.NewViewRefresher(store, logger, core.WithRefreshInterval(cfg.ViewRefreshInterval))
}

func provideGenerator(cfg infra.Config, queue *core.IngestionQueue, logger *infra.Logger) (domain.BackgroundTask, error) {
	if !cfg.SimulatorEnabled {
		return nil, nil
	}
	targets, err := core.ParseTargets(cfg.SimulatorTargets)
	if err != nil {
		return nil, err
	}
	gen := core.NewGenerator(core.GeneratorConfig{Interval: cfg.SimulatorInterval, Targets: targets}, logger)
	return gen.Bind(queue), nil
}

func provideHTTPServer(ingest *core.IngestService, queries *core.MeasurementQueries, catalog *core.Catalog, store *database.Store, logger *infra.Logger) *httpapi.Server {
	return httpapi.NewServer(httpapi.Services{
		Ingest:       ingest,
		Measurements: queries,
		Catalog:      catalog,
		Health:       store,
	}, logger)
}

func provideGRPCServer(ingest *core.IngestService, queries *core.MeasurementQueries, logger *infra.Logger) (*grpc.Server, error) {
	return grpcapi.NewServer(grpcapi.Services{Ingest: ingest, Measurements: queries}, logger, prometheus.DefaultRegisterer)
}

func provideMQTTSubscriber(cfg infra.Config, ingest *core.IngestService, logger *infra.Logger) *mqttapi.Subscriber {
	if cfg.MQTTBroker == "" {
		return nil
	}
	return mqttapi.NewSubscriber(mqttapi.ConfigFrom(cfg), ingest, logger)
}
