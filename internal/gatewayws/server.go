// Package gatewayws is the WebSocket transport: HTTP upgrade handling,
// the per-connection read/write pumps, and the Subscribe Flow of spec.md
// §4.6, wiring together internal/registry, internal/subscription,
// internal/fanout, internal/presence, internal/voice, internal/ingress,
// and internal/collab. Modeled on the teacher's internal/single/core
// (handlers_ws.go's upgrade/admission sequence, pump_write.go's
// ticker-driven writer, internal/shared/pump_read.go's reader loop), with
// gobwas/ws as the wire library throughout, matching the teacher exactly.
package gatewayws

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/filament/gateway/internal/collab"
	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/eventbus"
	"github.com/filament/gateway/internal/fanout"
	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/gatewaymetrics"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/ingress"
	"github.com/filament/gateway/internal/presence"
	"github.com/filament/gateway/internal/registry"
	"github.com/filament/gateway/internal/resourceguard"
	"github.com/filament/gateway/internal/search"
	"github.com/filament/gateway/internal/sharding"
	"github.com/filament/gateway/internal/subscription"
	"github.com/filament/gateway/internal/voice"
)

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
)

// Config is the subset of spec.md §6.3's environment options this package
// consumes directly.
type Config struct {
	OutboundQueueCapacity int
	MaxGatewayEventBytes  int
	IngressRateLimit      int
	IngressRateWindow     time.Duration

	VoiceMaxTrackedChannels     int
	VoiceMaxParticipantsPerChan int
	VoiceParticipantTTL         time.Duration
}

// Server holds every collaborator and core component the transport needs
// to run the accept loop and per-connection pumps.
type Server struct {
	cfg    Config
	logger zerolog.Logger

	reg          *registry.Registry
	subs         *subscription.Index
	dispatcher   *fanout.Dispatcher
	presenceT    *presence.Tracker
	voiceReg     *voice.Registry
	searchWriter *search.Writer

	connLimiter *ConnectionRateLimiter
	guard       *resourceguard.Guard
	metrics     *gatewaymetrics.Metrics

	shards       *sharding.Table
	localShardID int
	bus          *eventbus.Bus

	auth        collab.Auth
	perms       collab.Permissions
	messages    collab.MessageStore
	attachments collab.AttachmentStore
	audit       collab.AuditLog
	collabMx    collab.Metrics

	activeConnections int64
	shuttingDown      int32
}

// Deps bundles every collaborator Server needs, to keep New's signature
// from sprawling.
type Deps struct {
	Registry     *registry.Registry
	Subs         *subscription.Index
	Dispatcher   *fanout.Dispatcher
	Presence     *presence.Tracker
	Voice        *voice.Registry
	SearchWriter *search.Writer
	ConnLimiter  *ConnectionRateLimiter
	Guard        *resourceguard.Guard
	Metrics      *gatewaymetrics.Metrics

	Shards       *sharding.Table
	LocalShardID int
	Bus          *eventbus.Bus

	Auth        collab.Auth
	Permissions collab.Permissions
	Messages    collab.MessageStore
	Attachments collab.AttachmentStore
	Audit       collab.AuditLog
	CollabMx    collab.Metrics
}

// New constructs a Server.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger.With().Str("component", "gatewayws").Logger(),
		reg:          deps.Registry,
		subs:         deps.Subs,
		dispatcher:   deps.Dispatcher,
		presenceT:    deps.Presence,
		voiceReg:     deps.Voice,
		searchWriter: deps.SearchWriter,
		connLimiter:  deps.ConnLimiter,
		guard:        deps.Guard,
		metrics:      deps.Metrics,
		shards:       deps.Shards,
		localShardID: deps.LocalShardID,
		bus:          deps.Bus,
		auth:         deps.Auth,
		perms:        deps.Permissions,
		messages:     deps.Messages,
		attachments:  deps.Attachments,
		audit:        deps.Audit,
		collabMx:     deps.CollabMx,
	}
}

// BeginShutdown marks the server as draining: new upgrades are rejected
// with 503, existing connections are left running.
func (s *Server) BeginShutdown() {
	atomic.StoreInt32(&s.shuttingDown, 1)
}

// ActiveConnections reports the live connection count, for health/metrics.
func (s *Server) ActiveConnections() int64 {
	return atomic.LoadInt64(&s.activeConnections)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HandleUpgrade is the http.HandlerFunc that accepts a WebSocket upgrade
// request, running the admission sequence the teacher's handleWebSocket
// runs (shutdown check, rate limit, resource guard) before authenticating
// and finally upgrading.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r)
	if s.connLimiter != nil && !s.connLimiter.CheckConnectionAllowed(ip) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	if s.guard != nil {
		if accept, reason := s.guard.ShouldAcceptConnection(); !accept {
			s.logger.Debug().Str("reason", reason).Msg("connection rejected by resourceguard")
			http.Error(w, "server overloaded", http.StatusServiceUnavailable)
			return
		}
	}

	authRes, err := s.auth.Authenticate(r.Context(), collab.AuthRequest{
		BearerToken: r.Header.Get("Authorization"),
		ClientIP:    ip,
	})
	if err != nil {
		if s.collabMx != nil {
			s.collabMx.IncAuthFailures("unauthenticated")
		}
		http.Error(w, "unauthorized", gatewayerr.Unauthorized.HTTPStatus())
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := ids.NewConnectionID()
	send, control := s.reg.Register(connID, authRes.UserID, s.cfg.OutboundQueueCapacity)
	atomic.AddInt64(&s.activeConnections, 1)
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
	}

	cc := connContext{
		ID:     connID,
		UserID: authRes.UserID,
		IP:     ip,
		conn:   conn,
	}

	if built, err := envelope.Build("ready", map[string]string{"connection_id": string(connID)}); err == nil {
		trySendOutbound(send, built.PayloadString)
	}

	limiter := ingress.NewSlidingWindowLimiter(s.cfg.IngressRateLimit, s.cfg.IngressRateWindow)

	go s.writePump(cc, send, control)
	go s.readPump(cc, limiter)
}

// connContext is the per-connection identity the pumps and flow handlers
// pass around; it carries no mutable state of its own (registry is the
// single source of truth, per spec.md §4.1).
type connContext struct {
	ID     ids.ConnectionID
	UserID ids.UserID
	IP     string
	conn   net.Conn
}

// trySendOutbound is the one-off non-blocking send used for frames sent
// straight to one connection (the initial ready frame and the subscribe
// flow's direct frames), outside the fan-out dispatcher's bookkeeping.
func trySendOutbound(ch chan<- string, payload string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case ch <- payload:
		return true
	default:
		return false
	}
}
