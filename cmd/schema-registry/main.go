// Command schema-registry runs one replica of the log-backed schema
// registry: it connects to the Kafka log, starts the election
// coordinator (which stays out of the election when the replica is
// not master-eligible) and the background projector, and serves the
// REST API right away; /health/ready reports whether the projector has
// caught up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schemaregistry/internal/catalog"
	"schemaregistry/internal/config"
	"schemaregistry/internal/election"
	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/metrics"
	"schemaregistry/internal/offsetwatch"
	"schemaregistry/internal/projector"
	"schemaregistry/internal/registry"
	"schemaregistry/internal/rest"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional YAML/JSON config file")
	flag.Parse()

	cfg, err := config.Load(flag.Args(), configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
	slog.Info("starting schema registry", "topic", cfg.Topic, "brokers", cfg.Brokers, "advertised_url", cfg.AdvertisedURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := kafkalog.NewKafkaLog(cfg.Brokers, cfg.Topic, cfg.ReplicationFactor)
	if err != nil {
		slog.Error("connect to kafka", "error", err)
		os.Exit(1)
	}
	defer log.Close()

	var coord election.Coordinator
	kcoord, err := election.NewKafkaCoordinator(cfg.Brokers, cfg.Topic, cfg.GroupID, cfg.AdvertisedURL, cfg.MasterEligibility)
	if err != nil {
		slog.Error("start election coordinator", "error", err)
		os.Exit(1)
	}
	coord = kcoord
	defer kcoord.Close()

	var sink metrics.Sink = metrics.Noop{}
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		sink = metrics.NewPrometheus(reg)
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	cat := catalog.New()
	cat.OnRecord(func(kind kafkalog.KeyType) {
		sink.IncCounter("records_folded", string(kind))
		sink.SetGauge("catalog_offset", float64(cat.Offset()))
	})

	watcher := offsetwatch.New()
	prod := kafkalog.NewProducer(log, watcher)
	prod.ProduceTimeout = cfg.ProduceTimeout
	prod.BarrierTimeout = cfg.BarrierTimeout

	proj := projector.New(log, cat, watcher, coord)
	proj.ReadinessRefresh = cfg.ReadinessRefresh

	reg := registry.New(cat, prod, coord, sink)
	reg.Readiness = proj
	kcoord.OnBecomeMaster = reg.ResetElectionBaseline

	go func() {
		if err := kcoord.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("election coordinator stopped", "error", err)
		}
	}()
	go func() {
		if err := proj.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("projector stopped", "error", err)
		}
	}()

	router := rest.NewRouter(reg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router.Engine()}
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	slog.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server error", "error", err)
	}
}
