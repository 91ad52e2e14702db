package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/fanout"
	"github.com/filament/gateway/internal/gatewaymetrics"
	"github.com/filament/gateway/internal/gatewayws"
	"github.com/filament/gateway/internal/presence"
	"github.com/filament/gateway/internal/registry"
	"github.com/filament/gateway/internal/resourceguard"
	"github.com/filament/gateway/internal/search"
	"github.com/filament/gateway/internal/subscription"
	"github.com/filament/gateway/internal/voice"
)

// testHarness bundles the Server plus every collaborator a test needs to
// reach into, mirroring gatewayws's own newTestServer helper.
type testHarness struct {
	server   *Server
	auth     *collab.MockAuth
	perms    *collab.MockPermissions
	messages *collab.MockMessageStore
	audit    *collab.MockAuditLog
	index    *search.Index
	writer   *search.Writer
	gw       *gatewayws.Server
	reg      *registry.Registry
	subs     *subscription.Index
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := gatewaymetrics.New(reg)
	logger := zerolog.Nop()

	connRegistry := registry.New()
	subs := subscription.New()
	dispatcher := fanout.New(subs, metrics, logger)
	presenceTracker := presence.New(connRegistry)
	voiceRegistry := voice.New()

	auth := collab.NewMockAuth()
	perms := collab.NewMockPermissions()
	messages := collab.NewMockMessageStore()
	attachments := collab.NewMockAttachmentStore()
	audit := collab.NewMockAuditLog()
	collabMx := collab.NewMockMetrics()

	index, err := search.OpenMem()
	if err != nil {
		t.Fatalf("search.OpenMem: %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })
	writer := search.NewWriter(index, 16, 8, logger, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go writer.Run(ctx)

	var activeConnections int64
	guard := resourceguard.New(resourceguard.Config{
		MaxConnections:     cfg.MaxConnections,
		CPURejectThreshold: cfg.CPURejectThreshold,
		MemoryLimitBytes:   cfg.MemoryLimitBytes,
	}, logger, &activeConnections, metrics)

	gw := gatewayws.New(gatewayws.Config{
		OutboundQueueCapacity: 8,
		MaxGatewayEventBytes:  65536,
	}, gatewayws.Deps{
		Registry:     connRegistry,
		Subs:         subs,
		Dispatcher:   dispatcher,
		Presence:     presenceTracker,
		Voice:        voiceRegistry,
		SearchWriter: writer,
		Metrics:      metrics,
		Auth:         auth,
		Permissions:  perms,
		Messages:     messages,
		Attachments:  attachments,
		Audit:        audit,
		CollabMx:     collabMx,
	}, logger)

	server := New(cfg, Deps{
		Gateway:   gw,
		Guard:     guard,
		Registry:  reg,
		Metrics:   metrics,
		Auth:      auth,
		Perms:     perms,
		Audit:     audit,
		Messages:  messages,
		Writer:    writer,
		Index:     index,
		StartedAt: time.Now(),
	}, logger)

	return &testHarness{
		server:   server,
		auth:     auth,
		perms:    perms,
		messages: messages,
		audit:    audit,
		index:    index,
		writer:   writer,
		gw:       gw,
		reg:      connRegistry,
		subs:     subs,
	}
}
