// Package httpapi is the conventional, thin HTTP admin/mutation surface of
// spec.md §6.3: health and metrics endpoints, the mutating message_create
// action that also synthesizes a gateway event, and the ManageWorkspaceRoles
// -gated search rebuild/reconcile admin endpoints. Modeled on the teacher's
// internal/single/core/handlers_http.go (CORS headers, resource-guard-backed
// health checks, a single json.NewEncoder(w).Encode(map[string]any{...})
// response shape) with bare net/http.ServeMux routing, matching the
// teacher's own router-free style.
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/gatewaymetrics"
	"github.com/filament/gateway/internal/gatewayws"
	"github.com/filament/gateway/internal/resourceguard"
	"github.com/filament/gateway/internal/search"
)

// Config carries the static limits handleHealth compares live readings
// against (mirroring the teacher's s.config fields read in handleHealth)
// plus the one search admin knob spec.md §6.3 names (search_reconcile_max_docs).
type Config struct {
	MaxConnections       int
	MaxGoroutines        int
	CPURejectThreshold   float64
	MemoryLimitBytes     int64
	SearchReconcileMaxDocs int
}

// Deps bundles every collaborator the HTTP surface needs.
type Deps struct {
	Gateway   *gatewayws.Server
	Guard     *resourceguard.Guard
	Registry  *prometheus.Registry
	Metrics   *gatewaymetrics.Metrics
	Auth      collab.Auth
	Perms     collab.Permissions
	Audit     collab.AuditLog
	Messages  collab.MessageStore
	Writer    *search.Writer
	Index     *search.Index
	// Producer relays rebuild/reconcile admin commands onto CommandsTopic
	// so every other instance's search.Consumer applies them too, rather
	// than only the instance that happened to receive the HTTP request.
	// Nil when GATEWAY_KAFKA_BROKERS has no consumer/producer pair wired.
	Producer  *search.Producer
	StartedAt time.Time
}

// Server holds the wired collaborators behind the HTTP handlers.
type Server struct {
	cfg    Config
	logger zerolog.Logger

	gateway *gatewayws.Server
	guard   *resourceguard.Guard
	reg     *prometheus.Registry
	metrics *gatewaymetrics.Metrics

	auth     collab.Auth
	perms    collab.Permissions
	audit    collab.AuditLog
	messages collab.MessageStore
	writer   *search.Writer
	index    *search.Index
	producer *search.Producer

	startedAt time.Time
}

// New constructs a Server.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger.With().Str("component", "httpapi").Logger(),
		gateway:   deps.Gateway,
		guard:     deps.Guard,
		reg:       deps.Registry,
		metrics:   deps.Metrics,
		auth:      deps.Auth,
		perms:     deps.Perms,
		audit:     deps.Audit,
		messages:  deps.Messages,
		writer:    deps.Writer,
		index:     deps.Index,
		producer:  deps.Producer,
		startedAt: startedAt,
	}
}

// Routes builds the http.ServeMux the process's http.Server serves,
// following the teacher's bare-ServeMux style (no router dependency
// appears anywhere in the retrieval pack).
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/messages", s.handleCreateMessage)
	mux.HandleFunc("/api/search/rebuild", s.handleSearchRebuild)
	mux.HandleFunc("/api/search/reconcile", s.handleSearchReconcile)
	return mux
}

// activeConnections reads the gateway's live connection count for the
// capacity check in handleHealth.
func (s *Server) activeConnections() int64 {
	if s.gateway == nil {
		return 0
	}
	return s.gateway.ActiveConnections()
}
