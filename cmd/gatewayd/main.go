// Command gatewayd is the gateway process entrypoint: it loads
// configuration, wires every component together, and serves both the
// WebSocket upgrade endpoint and the HTTP admin surface until signaled to
// shut down. Grounded on the teacher's cmd/single/main.go (automaxprocs
// blank import, flag-overridable debug logging, signal-driven graceful
// shutdown) generalized from one chat-room server to the full gateway
// component graph.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/config"
	"github.com/filament/gateway/internal/eventbus"
	"github.com/filament/gateway/internal/fanout"
	"github.com/filament/gateway/internal/gatewaymetrics"
	"github.com/filament/gateway/internal/gatewayws"
	"github.com/filament/gateway/internal/httpapi"
	"github.com/filament/gateway/internal/logging"
	"github.com/filament/gateway/internal/presence"
	"github.com/filament/gateway/internal/registry"
	"github.com/filament/gateway/internal/resourceguard"
	"github.com/filament/gateway/internal/search"
	"github.com/filament/gateway/internal/sharding"
	"github.com/filament/gateway/internal/subscription"
	"github.com/filament/gateway/internal/voice"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: logging.Format(cfg.LogFormat)})
	logger.Info().Str("addr", cfg.Addr).Msg("starting gateway")

	reg := prometheus.NewRegistry()
	metrics := gatewaymetrics.New(reg)

	connRegistry := registry.New()
	subs := subscription.New()
	dispatcher := fanout.New(subs, metrics, logger)
	presenceTracker := presence.New(connRegistry)
	voiceRegistry := voice.New()

	// The persistence/auth/permissions/audit collaborators spec.md §6.2
	// places out of scope for the gateway core itself; the in-memory
	// doubles are the gateway's own default wiring until a real
	// SQL-backed implementation is swapped in behind the same
	// internal/collab interfaces.
	auth := collab.NewMockAuth()
	perms := collab.NewMockPermissions()
	messages := collab.NewMockMessageStore()
	attachments := collab.NewMockAttachmentStore()
	audit := collab.NewMockAuditLog()
	collabMetrics := collab.NewMockMetrics()

	var activeConnections int64
	// spec.md §6.3's fixed environment option list has no MAX_CONNECTIONS
	// entry, so the hard connection ceiling is a process-level constant
	// rather than an env var, matching the teacher's own
	// static-configuration philosophy for ResourceGuard.
	const maxConnections = 10000

	guard := resourceguard.New(resourceguard.Config{
		MaxConnections:     maxConnections,
		CPURejectThreshold: 90,
		MemoryLimitBytes:   0,
		MaxGoroutines:      0,
		SampleInterval:     5 * time.Second,
	}, logger, &activeConnections, metrics)

	connLimiter := gatewayws.NewConnectionRateLimiter(gatewayws.ConnectionRateLimiterConfig{
		GlobalRate:  float64(cfg.RateLimitRequestsPerMinute) / 60.0,
		GlobalBurst: cfg.RateLimitRequestsPerMinute,
		Logger:      logger,
	})

	searchIndex, err := search.Open(cfg.SearchIndexPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open search index")
	}
	searchWriter := search.NewWriter(searchIndex, cfg.SearchBatchMax*4, cfg.SearchBatchMax, logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var bus *eventbus.Bus
	if cfg.NATSURL != "" {
		bus, err = eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("eventbus connect failed, continuing without cross-instance relay")
		}
	}

	// A search.Producer/Consumer pair relays rebuild/reconcile admin
	// commands across instances over Kafka, so every instance's local
	// bleve index stays in sync even though only the instance that
	// received the HTTP request ran the scan. Best-effort: a dial
	// failure here leaves search admin endpoints working locally (via
	// the writer directly) on this instance only.
	var searchProducer *search.Producer
	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		searchProducer, err = search.NewProducer(brokers, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("search kafka producer dial failed, admin commands stay instance-local")
		}
		consumerGroup := fmt.Sprintf("gateway-search-writer-shard-%d", cfg.ShardID)
		searchConsumer, err := search.NewConsumer(brokers, consumerGroup, searchWriter, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("search kafka consumer dial failed, relayed admin commands won't be applied here")
		} else {
			go searchConsumer.Run(ctx)
		}
	}

	shardCount := cfg.ShardCount
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*sharding.Shard, shardCount)
	for i := 0; i < shardCount; i++ {
		shards[i] = sharding.New(sharding.Config{ID: i, MaxConnections: cfg.OutboundQueueCapacity, Logger: logger})
	}
	shardTable := sharding.NewTable(shards)

	gw := gatewayws.New(gatewayws.Config{
		OutboundQueueCapacity:       cfg.OutboundQueueCapacity,
		MaxGatewayEventBytes:        cfg.MaxGatewayEventBytes,
		IngressRateLimit:            cfg.IngressRateLimit,
		IngressRateWindow:           cfg.IngressRateWindow,
		VoiceMaxTrackedChannels:     cfg.VoiceMaxTrackedChannels,
		VoiceMaxParticipantsPerChan: cfg.VoiceMaxParticipantsPerChan,
		VoiceParticipantTTL:         cfg.VoiceParticipantTTL,
	}, gatewayws.Deps{
		Registry:     connRegistry,
		Subs:         subs,
		Dispatcher:   dispatcher,
		Presence:     presenceTracker,
		Voice:        voiceRegistry,
		SearchWriter: searchWriter,
		ConnLimiter:  connLimiter,
		Guard:        guard,
		Metrics:      metrics,
		Shards:       shardTable,
		LocalShardID: cfg.ShardID,
		Bus:          bus,
		Auth:         auth,
		Permissions:  perms,
		Messages:     messages,
		Attachments:  attachments,
		Audit:        audit,
		CollabMx:     collabMetrics,
	}, logger)

	api := httpapi.New(httpapi.Config{
		MaxConnections:         maxConnections,
		CPURejectThreshold:     90,
		SearchReconcileMaxDocs: cfg.SearchReconcileMaxDocs,
	}, httpapi.Deps{
		Gateway:   gw,
		Guard:     guard,
		Registry:  reg,
		Metrics:   metrics,
		Auth:      auth,
		Perms:     perms,
		Audit:     audit,
		Messages:  messages,
		Writer:    searchWriter,
		Index:     searchIndex,
		Producer:  searchProducer,
		StartedAt: time.Now(),
	}, logger)

	mux := api.Routes()
	mux.HandleFunc("/ws", gw.HandleUpgrade)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	go guard.Run(ctx)
	go searchWriter.Run(ctx)
	go gw.RunVoiceTTLSweep(ctx, cfg.VoiceTTLSweepInterval)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down gateway")
	gw.BeginShutdown()
	cancel()
	connLimiter.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	if bus != nil {
		bus.Close()
	}
	if searchProducer != nil {
		searchProducer.Close()
	}
	if err := searchIndex.Close(); err != nil {
		logger.Warn().Err(err).Msg("search index close error")
	}
}
