// Command wadash runs the messaging dashboard: it keeps a JSON-RPC session
// to the backend open and serves the dashboard API on top of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/client"
	"github.com/luciancaetano/wadash/internal/config"
	"github.com/luciancaetano/wadash/internal/dashboard"
	"github.com/luciancaetano/wadash/internal/logging"
	"github.com/luciancaetano/wadash/internal/metrics"
	"github.com/luciancaetano/wadash/internal/rpc"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: ./config.yaml or ./configs/config.yaml if present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "wadash: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessionCfg := cfg.Session()
	sessionCfg.Logger = logger
	sessionCfg.Metrics = metrics.NewRPC(reg)

	session, err := client.NewSession(sessionCfg)
	if err != nil {
		return err
	}
	defer session.Close()

	eventLog := logger.Named("events")
	session.SetEventHandler(func(ev wadash.Event) error {
		eventLog.Info("Backend event", zap.String("event", ev.Name), zap.Int("size", len(ev.Params)))
		return nil
	})

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	dashCfg := cfg.Dashboard()
	dashCfg.Logger = logger
	dashCfg.Metrics = metrics.NewHTTP(reg)
	dashCfg.Gatherer = reg

	server, err := dashboard.New(dashCfg, client.New(session, client.WithMediaTimeout(cfg.RPC.MediaTimeout)))
	if err != nil {
		return err
	}

	reconnector := client.NewReconnector(session, cfg.Backoff(),
		rpc.WithLogger(logger),
		rpc.WithOnConnect(func() {
			logger.Info("Connected to RPC endpoint", zap.String("url", cfg.RPC.URL))
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reconnector.Run(ctx)
	})
	g.Go(func() error {
		return server.Run(ctx)
	})

	logger.Info("Starting wadash",
		zap.String("rpc_url", cfg.RPC.URL),
		zap.String("addr", cfg.Server.Addr))

	err = g.Wait()
	logger.Info("Shutting down")
	return err
}
