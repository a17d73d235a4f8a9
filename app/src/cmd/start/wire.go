//go:build wireinject

package main

import (
	"context"
	"io"

	"github.com/google/wire"
)

func initApplication(ctx context.Context, out io.Writer) (*application, func(), error) {
	wire.Build(
		provideConfig,
		provideLogger,
		provideStore,
		provideCache,
		provideQueue,
		provideWorker,
		provideReadThrough,
		provideMeasurementQueries,
		provideCatalog,
		provideIngestService,
		provideExporter,
		provideRefresher,
		provideGenerator,
		provideHTTPServer,
		provideGRPCServer,
		provideMQTTSubscriber,
		newPipeline,
		newTransports,
		newApplication,
	)
	return nil, nil, nil
}
