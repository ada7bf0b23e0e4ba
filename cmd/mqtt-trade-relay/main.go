package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/api"
	"mqtt-trade-relay/internal/dedup"
	"mqtt-trade-relay/internal/event"
	ingestmqtt "mqtt-trade-relay/internal/ingest/mqtt"
	"mqtt-trade-relay/internal/liveness"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/metrics"
	"mqtt-trade-relay/internal/router"
	"mqtt-trade-relay/internal/sink"
	"mqtt-trade-relay/internal/snapshot"
	"mqtt-trade-relay/internal/stats"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")

	// Optional override flags
	brokerOverride := flag.String("broker", "", "override mqtt broker address (empty = use config)")
	prefixOverride := flag.String("topic-prefix", "", "override mqtt topic prefix (empty = use config)")
	httpAddrOverride := flag.String("http-addr", "", "override http server address (empty = use config)")
	heartbeatTimeoutOverride := flag.Duration("heartbeat-timeout", 0, "override heartbeat timeout (0 = use config)")
	checkIntervalOverride := flag.Duration("check-interval", 0, "override heartbeat check interval (0 = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*brokerOverride,
		*prefixOverride,
		*httpAddrOverride,
		*heartbeatTimeoutOverride,
		*checkIntervalOverride,
	)

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	reg := prometheus.NewRegistry()
	metricsService, err := metrics.NewMetrics(reg)
	if err != nil {
		logger.Fatal("failed to create metrics service", "error", err)
	}

	statsCollector := stats.NewCollector()

	metricsCollector := metrics.NewCollector(metricsService, statsCollector, 15*time.Second)
	metricsCollector.Start()
	defer metricsCollector.Stop()

	// Notification sink: NATS when enabled, otherwise drop.
	var notifier sink.Notifier = sink.Discard{}
	var natsSink *sink.NATSNotifier
	if cfg.Sink.Enabled {
		natsSink, err = sink.NewNATSNotifier(&cfg.Sink, logger, metricsService)
		if err != nil {
			logger.Fatal("failed to connect notification sink", "error", err)
		}
		notifier = natsSink
	} else {
		logger.Warn("notification sink disabled, events will not be forwarded")
	}

	tracker := liveness.NewTracker(
		cfg.Monitor.HeartbeatTimeoutDuration(),
		cfg.Monitor.CheckIntervalDuration(),
		notifier,
		logger,
		metricsService,
	)

	store := snapshot.NewStore()
	ledger := dedup.NewLedger(cfg.Dedup.WindowDuration(), cfg.Dedup.MaxEntries)
	codec := event.NewCodec(cfg.MQTT.TopicPrefix)

	eventRouter := router.NewRouter(
		router.Config{
			StaleWindow:   cfg.Monitor.StaleWindowDuration(),
			RateThreshold: 50,
			RateCooldown:  5 * time.Minute,
		},
		codec,
		ledger,
		tracker,
		store,
		notifier,
		logger,
		metricsService,
		statsCollector,
	)

	supervisor, err := ingestmqtt.NewSupervisor(cfg, eventRouter.Route, notifier, logger, metricsService)
	if err != nil {
		logger.Fatal("failed to create mqtt supervisor", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tracker.Run(ctx)
	go supervisor.Run(ctx)

	var server *api.Server
	if cfg.HTTP.Enabled {
		server = api.NewServer(&cfg.HTTP, snapshot.NewFacade(tracker, store), statsCollector, reg, logger)
		go server.Start()
	}

	logger.Info("mqtt-trade-relay started",
		"broker", cfg.MQTT.Broker,
		"topicPrefix", cfg.MQTT.TopicPrefix,
		"heartbeatTimeout", cfg.Monitor.HeartbeatTimeout,
		"sinkEnabled", cfg.Sink.Enabled,
		"httpEnabled", cfg.HTTP.Enabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", "error", err)
		}
	}

	cancel()

	if natsSink != nil {
		natsSink.Close()
	}
}
