package gatewayws

import (
	"context"
	"time"
)

// RunVoiceTTLSweep periodically evicts expired voice participants and
// publishes their leave/unpublish events, per spec.md §4.8 and the TTL
// sweep cadence decided in SPEC_FULL.md §7 (default 15s, configurable via
// VoiceTTLSweepInterval). Intended to run as one long-lived goroutine
// started at process boot, mirroring resourceguard.Guard.Run's ticker
// shape.
func (s *Server) RunVoiceTTLSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.voiceReg.TakeExpired(time.Now().Unix())
			if len(removed) > 0 {
				s.publishVoiceRemovals(removed)
			}
		}
	}
}
