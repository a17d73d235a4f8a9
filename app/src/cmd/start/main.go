package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"hemrs/app/src/infra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initApplication(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	logger := app.Logger
	defer func() { _ = logger.Sync() }()

	infra.LogConfig(ctx, logger, cfg)
	infra.StartMetricsServer(ctx, logger, cfg.MetricsPort)

	// The worker and the periodic tasks outlive the signal: the worker drains
	// the queue after transports stop, then the tasks are cancelled.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	tasksCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		app.Worker.Run(workerCtx, app.Queue.Items())
	}()

	var tasks sync.WaitGroup
	tasks.Add(2)
	go func() {
		defer tasks.Done()
		app.Exporter.Run(tasksCtx)
	}()
	go func() {
		defer tasks.Done()
		app.Refresher.Run(tasksCtx)
	}()

	var producers sync.WaitGroup
	if app.Generator != nil {
		producers.Add(1)
		go func() {
			defer producers.Done()
			app.Generator.Run(ctx)
		}()
	}

	serverErrs := make(chan error, 3)
	var servers sync.WaitGroup

	if app.MQTT != nil {
		servers.Add(1)
		go func() {
			defer servers.Done()
			if err := app.MQTT.Run(ctx); err != nil {
				serverErrs <- fmt.Errorf("mqtt subscriber: %w", err)
			}
		}()
	}

	httpServer := newHTTPServer(cfg.HTTPPort, app.HTTP)
	httpListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		logger.Fatalf(ctx, "failed to listen on HTTP port %s: %v", cfg.HTTPPort, err)
	}

	grpcListener, err := net.Listen("tcp", net.JoinHostPort("", cfg.GRPCPort))
	if err != nil {
		logger.Fatalf(ctx, "failed to listen on gRPC port %s: %v", cfg.GRPCPort, err)
	}

	servers.Add(1)
	go func() {
		defer servers.Done()
		logger.Printf(ctx, "HTTP server listening on %s", httpListener.Addr())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- fmt.Errorf("http server: %w", err)
		}
	}()

	servers.Add(1)
	go func() {
		defer servers.Done()
		logger.Printf(ctx, "gRPC server listening on %s", grpcListener.Addr())
		if err := app.GRPC.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErrs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serverErrs:
	}
	stop()

	shutdownTransports(httpServer, app.GRPC, logger)
	servers.Wait()
	producers.Wait()

	app.Queue.Close()
	waitForWorker(ctx, workerDone, cancelWorker, cfg.ShutdownTimeout, logger)
	logger.Printf(ctx, "insert worker stopped: processed=%d dropped=%d", app.Worker.Processed(), app.Worker.Dropped())

	cancelTasks()
	tasks.Wait()

	if serveErr != nil {
		logger.Printf(ctx, "server error: %v", serveErr)
	}
	logger.Println(ctx, "server stopped")
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func shutdownTransports(httpServer *http.Server, grpcServer *grpc.Server, logger *infra.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf(shutdownCtx, "HTTP server shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
}

// waitForWorker gives the worker timeout to drain the closed queue before
// cancelling it.
func waitForWorker(ctx context.Context, done <-chan struct{}, cancel context.CancelFunc, timeout time.Duration, logger *infra.Logger) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logger.Warnf(ctx, "insert worker did not drain within %s, cancelling", timeout)
		cancel()
		<-done
	}
}
