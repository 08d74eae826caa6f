package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"

	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/internal/relay/history"
	"github.com/wtask/relay/pkg/background"
)

func main() {
	logger := stdlog.New(os.Stdout, "relaysrv:"+Version+" ", stdlog.Ldate|stdlog.Ltime)
	logger.Printf("Started with config: %+v", Config)

	metrics, err := relay.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Println("ERR", "Can't register metrics:", err)
		os.Exit(1)
	}

	var h relay.MessageHistory
	if Config.History > 0 {
		stack, err := history.NewStack(Config.History)
		if err != nil {
			logger.Println("ERR", "Invalid config:", err)
			os.Exit(1)
		}
		h = stack
	}

	server, err := relay.New(
		relay.WithAddress(net.ParseIP(Config.IPAddress), int(Config.Port)),
		relay.WithBufferSize(Config.BufferSize),
		relay.WithBatchSize(Config.BatchSize),
		relay.WithHistory(h, Config.History),
		relay.WithMetrics(metrics),
		relay.WithLogger(logger),
	)
	if err != nil {
		logger.Println("ERR", "Can't start relay server:", err)
		os.Exit(1)
	}

	scope, stopScope := background.NewScope(context.Background())
	if Config.MetricsAddress != "" {
		if err := serveMetrics(scope, Config.MetricsAddress, logger); err != nil {
			logger.Println("ERR", "Can't serve metrics:", err)
			server.Close()
			stopScope()
			os.Exit(1)
		}
	}
	scope.Go(func(ctx context.Context) error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, unix.SIGTERM)
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			logger.Println("Got stop signal", s)
		case <-ctx.Done():
		}
		if err := server.Shutdown(); err != nil && !errors.Is(err, relay.ErrServerClosed) {
			logger.Println("ERR", "Can't stop relay server:", err)
		}
		return nil
	})

	logger.Println("Relay server has started.")
	start := time.Now()
	err = server.Serve()
	stopScope()

	failed := false
	if !errors.Is(err, relay.ErrServerClosed) {
		logger.Println("ERR", "Relay server failed:", err)
		failed = true
	}
	if cause := scope.Err(); cause != nil && !errors.Is(cause, background.ErrCanceled) {
		logger.Println("ERR", "Background failure:", cause)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	logger.Println("Relay server stopped after", time.Since(start).Round(time.Second), "of work, bye")
}

// serveMetrics - binds metrics endpoint and serves it within scope.
func serveMetrics(scope *background.Scope, addr string, logger *stdlog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger,
	}
	logger.Println("Metrics are served on", listener.Addr())

	scope.Go(func(ctx context.Context) error {
		errc := make(chan error, 1)
		go func() { errc <- srv.Serve(listener) }()
		select {
		case err := <-errc:
			return fmt.Errorf("metrics server: %w", err)
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Println("ERR", "Can't stop metrics server:", err)
		}
		<-errc
		return nil
	})
	return nil
}
