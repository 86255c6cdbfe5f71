package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vecbt/internal/api"
	"vecbt/internal/config"
	"vecbt/internal/engine"
	"vecbt/internal/telemetry"
	"vecbt/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/vecbt.yaml", "path to YAML config")
	flag.Parse()
	if p := os.Getenv("VECBT_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := telemetry.Register(reg); err != nil {
		log.Fatalf("registering metrics: %v", err)
	}

	st, err := engine.Open(cfg, logger)
	if err != nil {
		log.Fatalf("opening engine: %v", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("vecbt-server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
	)
	srv := api.NewServer(cfg, st.Engine, reg, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
