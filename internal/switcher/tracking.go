package switcher

import (
	"context"

	"github.com/ernie/teamswitch/internal/domain"
)

// HandlePlayerConnected records the join time. With rejoin restore enabled, a
// player who left less than an hour ago and came back on the other team is
// moved back after RejoinDelay.
func (s *Service) HandlePlayerConnected(p domain.Player) {
	if p.PlayerID == "" {
		return
	}
	now := s.now()
	s.session.RecordJoin(p.PlayerID, now)
	if p.TeamID != 0 {
		s.roster.Upsert(p)
	}

	if !s.cfg.SwitchToOldTeamAfterRejoin {
		return
	}
	prev, ok := s.session.TakeDisconnect(p.PlayerID, now)
	if !ok || p.TeamID == 0 || prev.TeamID == p.TeamID {
		return
	}

	s.log.Info().Str("player_id", p.PlayerID).Int("from_team", p.TeamID).Int("to_team", prev.TeamID).
		Dur("delay", s.cfg.RejoinDelay).Msg("scheduling rejoin restore")
	s.spawn(func(ctx context.Context) {
		if err := sleep(ctx, s.cfg.RejoinDelay); err != nil {
			return
		}
		if err := s.ExecuteImmediate(ctx, p.PlayerID, p.Name, domain.KindRejoin); err != nil {
			s.log.Warn().Err(err).Str("player_id", p.PlayerID).Msg("rejoin restore failed")
			return
		}
		s.emitEvent(domain.EventRejoinRestore, domain.SwitchEvent{
			PlayerID:   p.PlayerID,
			PlayerName: p.Name,
			Kind:       string(domain.KindRejoin),
		})
	})
}

// HandlePlayerDisconnected remembers the team the player left from and drops
// their session state. A missing team id is looked up in the roster.
func (s *Service) HandlePlayerDisconnected(p domain.Player) {
	if p.PlayerID == "" {
		return
	}
	if p.TeamID == 0 {
		if cached, ok := s.roster.FindByID(p.PlayerID); ok {
			p.TeamID = cached.TeamID
		}
	}
	s.session.RecordDisconnect(p.PlayerID, p.TeamID, s.now())
	s.roster.Remove(p.PlayerID)
}
