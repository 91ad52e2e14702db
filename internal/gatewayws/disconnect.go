package gatewayws

import (
	"sync/atomic"

	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/voice"
)

// disconnect runs the disconnect procedure of spec.md §4.7/§4.8: remove the
// connection from the registry, compute and publish offline presence
// transitions, drop any voice participant slot the user held, publish the
// resulting voice leave/unpublish events, prune the subscription index, and
// update bookkeeping. Grounded on the teacher's Hub.unregister critical
// section generalized across the three indexes this gateway maintains.
func (s *Server) disconnect(cc connContext, reason string) {
	removedPresence, ok := s.reg.Remove(cc.ID)
	s.subs.RemoveFromAll(cc.ID)

	if ok {
		removeVoice, offlineGuilds := s.presenceT.DisconnectFollowups(cc.UserID, removedPresence)
		for _, guildID := range offlineGuilds {
			if built, err := envelope.Build("presence_update", presenceUpdatePayload{
				GuildID: string(guildID),
				UserID:  string(cc.UserID),
				Status:  "offline",
			}); err == nil {
				_, slow := s.dispatcher.DispatchGuild(guildID, built, s.cfg.MaxGatewayEventBytes)
				s.reg.SignalClose(slow)
			}
		}

		if removeVoice {
			if removed, ok := s.voiceReg.RemoveUser(cc.UserID); ok {
				s.publishVoiceRemovals([]voice.Removed{removed})
			}
		}
	}

	atomic.AddInt64(&s.activeConnections, -1)
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
		s.metrics.WSDisconnects.WithLabelValues(reason).Inc()
	}
	if s.collabMx != nil {
		s.collabMx.IncWSDisconnects(reason)
	}
}

func (s *Server) publishVoiceRemovals(removed []voice.Removed) {
	for _, planned := range voice.PlanExpiry(removed) {
		_, slow := s.dispatcher.DispatchChannel(planned.ChannelKey, planned.Built, s.cfg.MaxGatewayEventBytes)
		s.reg.SignalClose(slow)
	}
}
