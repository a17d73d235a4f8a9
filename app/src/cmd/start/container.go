package main

import (
	"google.golang.org/grpc"

	httpapi "hemrs/app/src/api/http"
	mqttapi "hemrs/app/src/api/mqtt"
	"hemrs/app/src/core"
	"hemrs/app/src/database"
	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

type application struct {
	Config    infra.Config
	Logger    *infra.Logger
	Store     *database.Store
	Queue     *core.IngestionQueue
	Worker    *core.InsertWorker
	Exporter  *core.MetricsExporter
	Refresher *core.ViewRefresher
	// Generator and MQTT are nil when disabled.
	Generator domain.BackgroundTask
	MQTT      *mqttapi.Subscriber
	HTTP      *httpapi.Server
	GRPC      *grpc.Server
}

type pipeline struct {
	Queue     *core.IngestionQueue
	Worker    *core.InsertWorker
	Exporter  *core.MetricsExporter
	Refresher *core.ViewRefresher
	Generator domain.BackgroundTask
}

type transports struct {
	HTTP *httpapi.Server
	GRPC *grpc.Server
	MQTT *mqttapi.Subscriber
}

func newApplication(cfg infra.Config, logger *infra.Logger, store *database.Store, p pipeline, t transports) *application {
	return &application{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Queue:     p.Queue,
		Worker:    p.Worker,
		Exporter:  p.Exporter,
		Refresher: p.Refresher,
		Generator: p.Generator,
		MQTT:      t.MQTT,
		HTTP:      t.HTTP,
		GRPC:      t.GRPC,
	}
}

func newPipeline(queue *core.IngestionQueue, worker *core.InsertWorker, exporter *core.MetricsExporter, refresher *core.ViewRefresher, generator domain.BackgroundTask) pipeline {
	return pipeline{Queue: queue, Worker: worker, Exporter: exporter, Refresher: refresher, Generator: generator}
}

func newTransports(http *httpapi.Server, grpcServer *grpc.Server, mqtt *mqttapi.Subscriber) transports {
	return transports{HTTP: http, GRPC: grpcServer, MQTT: mqtt}
}
