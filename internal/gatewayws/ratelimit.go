package gatewayws

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ConnectionRateLimiter throttles WebSocket upgrade attempts before a
// connection is ever accepted: a global token bucket for system-wide
// protection plus a per-IP token bucket for single-client floods. Ported
// from the teacher's internal/shared/limits/connection_rate_limiter.go
// (adred-codev-ws_poc/ws) nearly verbatim — same two-level token-bucket
// design and idle-IP cleanup loop — renamed to the gateway's own config
// shape.
type ConnectionRateLimiter struct {
	ipMu       sync.RWMutex
	ipLimiters map[string]*ipLimiterEntry
	ipBurst    int
	ipRate     float64
	ipTTL      time.Duration

	globalLimiter *rate.Limiter

	logger zerolog.Logger

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnectionRateLimiterConfig configures a ConnectionRateLimiter. Zero
// values fall back to the teacher's defaults.
type ConnectionRateLimiterConfig struct {
	IPBurst int
	IPRate  float64
	IPTTL   time.Duration

	GlobalBurst int
	GlobalRate  float64

	Logger zerolog.Logger
}

// NewConnectionRateLimiter builds a ConnectionRateLimiter and starts its
// background idle-IP cleanup goroutine. Call Stop at shutdown.
func NewConnectionRateLimiter(cfg ConnectionRateLimiterConfig) *ConnectionRateLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 10
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 1.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}

	l := &ConnectionRateLimiter{
		ipLimiters:    make(map[string]*ipLimiterEntry),
		ipBurst:       cfg.IPBurst,
		ipRate:        cfg.IPRate,
		ipTTL:         cfg.IPTTL,
		globalLimiter: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		logger:        cfg.Logger.With().Str("component", "connection_rate_limiter").Logger(),
		stopCleanup:   make(chan struct{}),
	}
	l.cleanupTicker = time.NewTicker(time.Minute)
	go l.cleanupLoop()
	return l
}

// CheckConnectionAllowed reports whether a new upgrade attempt from ip is
// admitted: global bucket first, then the per-IP bucket.
func (l *ConnectionRateLimiter) CheckConnectionAllowed(ip string) bool {
	if !l.globalLimiter.Allow() {
		return false
	}
	return l.getIPLimiter(ip).Allow()
}

func (l *ConnectionRateLimiter) getIPLimiter(ip string) *rate.Limiter {
	l.ipMu.RLock()
	entry, ok := l.ipLimiters[ip]
	l.ipMu.RUnlock()
	if ok {
		l.ipMu.Lock()
		entry.lastAccess = time.Now()
		l.ipMu.Unlock()
		return entry.limiter
	}

	l.ipMu.Lock()
	defer l.ipMu.Unlock()
	if entry, ok := l.ipLimiters[ip]; ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(l.ipRate), l.ipBurst)
	l.ipLimiters[ip] = &ipLimiterEntry{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (l *ConnectionRateLimiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.cleanup()
		case <-l.stopCleanup:
			l.cleanupTicker.Stop()
			return
		}
	}
}

func (l *ConnectionRateLimiter) cleanup() {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()
	now := time.Now()
	for ip, entry := range l.ipLimiters {
		if now.Sub(entry.lastAccess) > l.ipTTL {
			delete(l.ipLimiters, ip)
		}
	}
}

// Stop halts the cleanup goroutine. Call once at process shutdown.
func (l *ConnectionRateLimiter) Stop() {
	close(l.stopCleanup)
}
