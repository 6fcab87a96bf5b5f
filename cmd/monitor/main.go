package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	config "github.com/NordCoder/uptimewatch/internal/config/monitor"
	"github.com/NordCoder/uptimewatch/internal/obs"
	"github.com/NordCoder/uptimewatch/internal/probe"
	"github.com/NordCoder/uptimewatch/internal/services/monitor"
)

func main() {
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.Load(os.Getenv("UPTIMEWATCH_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	zap.ReplaceGlobals(l)
	l.Info("starting monitor",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.Bool("standalone", cfg.Standalone()),
	)

	// otel
	otelCloser, err := obs.SetupOTel(root, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// store
	st, err := initStore(root, cfg, l)
	if err != nil {
		l.Fatal("store init", zap.Error(err))
	}
	defer st.close()

	// broadcasters
	bc := initBroadcast(root, cfg, l)
	defer bc.close()

	// engine
	prober := probe.New(cfg.Probe.AsProbeConfig(), l)
	orch := monitor.New(st.store, prober, bc.sinks, cfg.Monitor.AsMonitorConfig(), l)

	// metrics
	var ms *http.Server
	if cfg.Server.MetricsAddr != "" {
		ms = obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, st.ping, l)
	}

	// grpc health
	grpcServer, grpcLn, health, err := buildGRPCServer(cfg)
	if err != nil {
		l.Fatal("build grpc", zap.Error(err))
	}
	grpcErrCh := make(chan error, 1)
	go func() { grpcErrCh <- serveGRPC(grpcServer, grpcLn, cfg, l) }()

	// control api
	httpSrv := buildHTTPServer(cfg, l, orch, st, bc.hub)
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, l) }()

	// start
	n, err := orch.Bootstrap(root)
	if err != nil {
		l.Fatal("bootstrap", zap.Error(err))
	}
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	l.Info("monitor ready", zap.Int("loops", n))

	// loop
	select {
	case <-root.Done():
		l.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err = <-grpcErrCh:
		if err != nil {
			l.Error("grpc serve", zap.Error(err))
		}
	case err = <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(err))
		}
	}

	health.Shutdown()

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	if err := orch.Shutdown(shCtx); err != nil {
		l.Warn("loops did not stop in time", zap.Error(err))
	}
	gracefulStopGRPC(shCtx, grpcServer)
	if ms != nil {
		_ = ms.Shutdown(shCtx)
	}

	time.Sleep(100 * time.Millisecond)
	l.Info("bye")
}
