package gatewayws

import (
	"errors"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/filament/gateway/internal/ingress"
	"github.com/filament/gateway/internal/registry"
)

// writePump owns the connection's write side exclusively: the ticker-driven
// ping and every outbound frame flow through this one goroutine, matching
// the teacher's pump_write.go (internal/single/core, adred-codev-ws_poc/ws).
func (s *Server) writePump(cc connContext, send <-chan string, control <-chan registry.ControlSignal) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cc.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-send:
			if !ok {
				wsutil.WriteServerMessage(cc.conn, ws.OpClose, nil)
				return
			}
			cc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(cc.conn, ws.OpText, []byte(payload)); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", string(cc.ID)).Msg("write failed")
				return
			}

		case sig, ok := <-control:
			if !ok {
				return
			}
			if sig == registry.SignalCloseRequested {
				cc.conn.SetWriteDeadline(time.Now().Add(writeWait))
				wsutil.WriteServerMessage(cc.conn, ws.OpClose, nil)
				return
			}

		case <-ticker.C:
			cc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(cc.conn, ws.OpPing, nil); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", string(cc.ID)).Msg("ping failed")
				return
			}
		}
	}
}

// readPump owns the connection's read side exclusively, decoding frames via
// internal/ingress and dispatching typed commands to the subscribe and
// message-create flows. Grounded on the teacher's internal/shared/pump_read.go,
// with one deliberate divergence: a sliding-window ingress rate limit hit
// disconnects the connection with close reason "ingress_rate_limited" (per
// spec.md §7's error taxonomy), rather than the teacher's drop-and-continue
// policy for its own per-client limiter (see DESIGN.md).
func (s *Server) readPump(cc connContext, limiter *ingress.SlidingWindowLimiter) {
	reason := "read_error"

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("connection_id", string(cc.ID)).Msg("readPump panic")
		}
		s.disconnect(cc, reason)
	}()

	cc.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		data, op, err := wsutil.ReadClientData(cc.conn)
		if err != nil {
			return
		}
		cc.conn.SetReadDeadline(time.Now().Add(pongWait))

		var kind ingress.FrameKind
		switch op {
		case ws.OpText:
			kind = ingress.FrameText
		case ws.OpBinary:
			kind = ingress.FrameBinary
		case ws.OpClose:
			kind = ingress.FrameClose
		case ws.OpPing:
			kind = ingress.FramePing
		case ws.OpPong:
			kind = ingress.FramePong
		default:
			return
		}

		result := ingress.DecodeFrame(kind, data, s.cfg.MaxGatewayEventBytes)
		switch result.Kind {
		case ingress.ResultDisconnect:
			reason = result.Reason
			return
		case ingress.ResultContinue:
			continue
		}

		if !limiter.Allow(time.Now()) {
			if s.collabMx != nil {
				s.collabMx.IncRateLimitHits("gateway", "ingress_rate_limited")
			}
			reason = "ingress_rate_limited"
			return
		}

		cmd, err := ingress.DecodeCommand(result.Payload)
		if err != nil {
			var unknown *ingress.ErrUnknownEventType
			if errors.As(err, &unknown) {
				if s.metrics != nil {
					s.metrics.UnknownEvents.WithLabelValues("gateway").Inc()
				}
				continue
			}
			reason = "malformed_payload"
			return
		}

		switch cmd.Type {
		case ingress.CommandSubscribe:
			if closeReason := s.handleSubscribe(cc, *cmd.Subscribe); closeReason != "" {
				reason = closeReason
				return
			}
		case ingress.CommandMessageCreate:
			s.handleMessageCreate(cc, *cmd.MessageCreate)
		}
	}
}
