//go:build !wireinject

package main

import (
	"context"
	"io"
)

func initApplication(ctx context.Context, out io.Writer) (*application, func(), error) {
	cfg, err := provideConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := provideLogger(out, cfg)
	store, cleanup, err := provideStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cache := provideCache(cfg)
	queue := provideQueue(cfg)
	worker := provideWorker(cfg, store, cache, logger)
	latest := provideReadThrough(cfg, store, cache)
	queries := provideMeasurementQueries(cfg, store, latest)
	catalog := provideCatalog(cfg, store)
	ingest := provideIngestService(queue, worker)
	exporter := provideExporter(cfg, store, latest, cache, logger)
	refresher := provideRefresher(cfg, store, logger)
	generator, err := provideGenerator(cfg, queue, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	p := newPipeline(queue, worker, exporter, refresher, generator)

	httpServer := provideHTTPServer(ingest, queries, catalog, store, logger)
	grpcServer, err := provideGRPCServer(ingest, queries, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	subscriber := provideMQTTSubscriber(cfg, ingest, logger)
	t := newTransports(httpServer, grpcServer, subscriber)

	app := newApplication(cfg, logger, store, p, t)
	return app, cleanup, nil
}
