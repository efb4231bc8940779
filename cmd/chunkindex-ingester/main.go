package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftdb/chunkindex/ingest"
	"github.com/driftdb/chunkindex/ingest/kafka"
	"github.com/driftdb/chunkindex/runtime"
)

func main() {
	var (
		kafkaBrokers       string
		kafkaTopic         string
		consumerGroup      string
		fromBeginning      bool
		ackWaitTimeout     time.Duration
		metricsPort        int
		kafkaUsername      string
		kafkaPassword      string
		kafkaSASLMechanism string
	)

	nodeCfg := runtime.Config{}
	ctrlCfg := ingest.Config{}
	nodeCfg.RegisterFlagsAndApplyDefaults("node", flag.CommandLine)
	ctrlCfg.RegisterFlagsAndApplyDefaults("ingester", flag.CommandLine)

	flag.StringVar(&kafkaBrokers, "kafka-brokers", "localhost:9092", "Comma-separated Kafka broker addresses")
	flag.StringVar(&kafkaTopic, "kafka-topic", "chunkindex-ingest", "Kafka topic to consume from")
	flag.StringVar(&consumerGroup, "consumer-group", "chunkindex-ingester", "Consumer group ID for offset tracking")
	flag.BoolVar(&fromBeginning, "from-beginning", false, "Start from earliest offset (ignores committed offset)")
	flag.DurationVar(&ackWaitTimeout, "ack-wait-timeout", 30*time.Second, "Max time to wait for a controller acknowledgement")
	flag.IntVar(&metricsPort, "metrics-port", 10001, "Port to expose Prometheus metrics")
	flag.StringVar(&kafkaUsername, "kafka-username", "", "Kafka SASL username (optional)")
	flag.StringVar(&kafkaPassword, "kafka-password", "", "Kafka SASL password (optional)")
	flag.StringVar(&kafkaSASLMechanism, "kafka-sasl-mechanism", "PLAIN", "Kafka SASL mechanism: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512")

	flag.Parse()

	// Setup logger
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)

	// Setup metrics
	reg := prometheus.NewRegistry()
	kafkaMetrics := kafka.NewMetrics(reg)
	ingestMetrics := ingest.NewMetrics(reg)

	// Start metrics server
	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: mux,
	}

	go func() {
		level.Info(logger).Log("msg", "starting metrics server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
			os.Exit(1)
		}
	}()

	node, err := runtime.New(nodeCfg, logger, reg)
	if err != nil {
		level.Error(logger).Log("msg", "failed to initialize node", "err", err)
		os.Exit(1)
	}
	defer node.Close()

	consumerCfg := &kafka.ConsumerConfig{
		Topic:         kafkaTopic,
		ConsumerGroup: consumerGroup,
		FromBeginning: fromBeginning,
		SASLUsername:  kafkaUsername,
		SASLPassword:  kafkaPassword,
		SASLMechanism: kafkaSASLMechanism,
	}
	consumerCfg.SetBrokersFromString(kafkaBrokers)

	cfg := kafka.FrontendConfig{
		ConsumerConfig:        consumerCfg,
		ControllerConfig:      ctrlCfg,
		AckWaitTimeout:        ackWaitTimeout,
		ValidationWaitTimeout: 10 * time.Second,
	}

	frontend, err := kafka.NewFrontend(cfg, node.MetadataStore(), node.Writer, kafkaMetrics, ingestMetrics, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create front-end", "err", err)
		os.Exit(1)
	}
	defer frontend.Close()

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		level.Info(logger).Log("msg", "received shutdown signal")
		cancel()
	}()

	level.Info(logger).Log(
		"msg", "starting chunkindex-ingester",
		"brokers", kafkaBrokers,
		"topic", kafkaTopic,
		"consumer_group", consumerGroup,
	)

	if err := frontend.Run(ctx); err != nil && err != context.Canceled {
		level.Error(logger).Log("msg", "front-end failed", "err", err)
		os.Exit(1)
	}

	// Shutdown metrics server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "metrics server shutdown failed", "err", err)
	}

	level.Info(logger).Log("msg", "shutdown complete")
}
