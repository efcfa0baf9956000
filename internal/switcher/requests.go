package switcher

import (
	"context"
	"fmt"

	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/eligibility"
)

// Outcome is what a request produced. Message is also sent to the requester.
type Outcome struct {
	Decision *domain.Decision `json:"decision,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// HandleRequest validates and dispatches one request. Denials are returned in
// the Outcome; errors are validation, store or action failures. Either way the
// requester is told what happened.
func (s *Service) HandleRequest(ctx context.Context, req domain.SwitchRequest) (Outcome, error) {
	logger := s.log.With().Str("requester_id", req.RequesterID).Str("kind", string(req.Kind)).Logger()

	out, err := s.dispatch(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("request failed")
		out.Message = msgForError(err)
	} else if out.Decision != nil && !out.Decision.Eligible {
		logger.Info().Str("reason", string(out.Decision.Reason)).Dur("remaining", out.Decision.Remaining).Msg("switch denied")
	} else {
		logger.Debug().Msg("request handled")
	}
	s.warn(ctx, req.RequesterID, out.Message)
	return out, err
}

func (s *Service) dispatch(ctx context.Context, req domain.SwitchRequest) (Outcome, error) {
	if !req.Kind.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, req.Kind)
	}
	if req.Kind.AdminOnly() && !req.Admin {
		return Outcome{}, domain.ErrPermissionDenied
	}

	switch req.Kind {
	case domain.KindSwitch:
		return s.RequestSwitch(ctx, req)
	case domain.KindDouble:
		return s.RequestDouble(ctx, req)
	case domain.KindSlots:
		return Outcome{Message: msgSlots(s.Slots(ctx))}, nil
	case domain.KindRefresh:
		s.refresh(ctx)
		return Outcome{Message: msgRefreshed}, nil
	case domain.KindHelp:
		if req.Admin {
			return Outcome{Message: msgAdminHelp}, nil
		}
		return Outcome{Message: msgPlayerHelp(s.cfg)}, nil
	case domain.KindAdminNow:
		p, err := s.resolveTarget(ctx, req.Target)
		if err != nil {
			return Outcome{}, err
		}
		if err := s.ExecuteImmediate(ctx, p.PlayerID, p.Name, domain.KindAdminNow); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: msgSwitched(p.Name)}, nil
	case domain.KindAdminDouble:
		p, err := s.resolveTarget(ctx, req.Target)
		if err != nil {
			return Outcome{}, err
		}
		s.spawn(func(ctx context.Context) {
			if err := s.ExecuteDouble(ctx, p.PlayerID, p.Name, true); err == nil {
				s.warn(ctx, req.RequesterID, msgDoubleSwitched)
			}
		})
		return Outcome{}, nil
	case domain.KindSquad:
		teamID, players, err := s.resolveSquad(ctx, req.Squad, req.Team)
		if err != nil {
			return Outcome{}, err
		}
		if err := s.ExecuteSquad(ctx, req.Squad, teamID, players); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: msgSquadSwitched(req.Squad, req.Team, len(players))}, nil
	case domain.KindDoubleSquad:
		teamID, players, err := s.resolveSquad(ctx, req.Squad, req.Team)
		if err != nil {
			return Outcome{}, err
		}
		s.spawn(func(ctx context.Context) {
			if err := s.ExecuteDoubleSquad(ctx, req.Squad, teamID, players); err != nil {
				s.log.Warn().Err(err).Int("squad", req.Squad).Msg("double squad switch incomplete")
			}
		})
		return Outcome{}, nil
	case domain.KindMatchEnd:
		p, err := s.resolveTarget(ctx, req.Target)
		if err != nil {
			return Outcome{}, err
		}
		if err := s.QueueMatchEnd(ctx, p); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: msgQueued(p.Name)}, nil
	case domain.KindMatchEndSquad:
		_, players, err := s.resolveSquad(ctx, req.Squad, req.Team)
		if err != nil {
			return Outcome{}, err
		}
		for _, p := range players {
			if err := s.QueueMatchEnd(ctx, p); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Message: msgSquadQueued(req.Squad, req.Team, len(players))}, nil
	case domain.KindTriggerMatchEnd:
		s.spawn(func(ctx context.Context) {
			if _, err := s.ExecuteMatchEndBatch(ctx); err != nil {
				s.log.Error().Err(err).Msg("triggered match-end batch failed")
				return
			}
			s.warn(ctx, req.RequesterID, msgTriggerDone)
		})
		return Outcome{Message: msgTriggerStarted}, nil
	case domain.KindCheck:
		st, err := s.CheckPlayer(ctx, req.Target)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: msgStatus(*st)}, nil
	case domain.KindClear:
		st, err := s.Clear(ctx, req.Target)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: msgCleared(st.Name)}, nil
	case domain.KindClearAll:
		if _, err := s.ClearAll(ctx); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: msgClearedAll}, nil
	}
	return Outcome{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, req.Kind)
}

// RequestSwitch evaluates and executes a player's own immediate switch. The
// check and the write happen under the player's lock so two concurrent
// requests cannot both pass the cooldown check.
func (s *Service) RequestSwitch(ctx context.Context, req domain.SwitchRequest) (Outcome, error) {
	unlock := s.locks.lock(req.RequesterID)
	defer unlock()

	s.refresh(ctx)
	rec, err := s.store.GetCooldown(ctx, req.RequesterID)
	if err != nil {
		return Outcome{}, err
	}

	r := s.evaluation(req)
	r.Cooldown = rec
	d := s.engine.Immediate(r)
	if !d.Eligible {
		s.emitDenied(req, d)
		return Outcome{Decision: &d, Message: msgDenied(d, s.cfg)}, nil
	}

	err = s.ExecuteImmediate(ctx, req.RequesterID, s.requesterName(req), domain.KindSwitch)
	return Outcome{Decision: &d}, err
}

// RequestDouble evaluates a player's own double switch and runs it in the
// background when allowed
func (s *Service) RequestDouble(ctx context.Context, req domain.SwitchRequest) (Outcome, error) {
	unlock := s.locks.lock(req.RequesterID)
	defer unlock()

	rec, err := s.store.GetCooldown(ctx, req.RequesterID)
	if err != nil {
		return Outcome{}, err
	}

	r := s.evaluation(req)
	r.Cooldown = rec
	if last, ok := s.session.LastDoubleSwitch(req.RequesterID); ok {
		r.LastDoubleSwitch = last
	}
	d := s.engine.Double(r)
	if !d.Eligible {
		s.emitDenied(req, d)
		return Outcome{Decision: &d, Message: msgDoubleDenied(d, s.cfg)}, nil
	}

	// The cooldown starts now, under the lock, before any team change
	s.session.RecordDoubleSwitch(req.RequesterID, r.Now)
	name := s.requesterName(req)
	s.spawn(func(ctx context.Context) {
		_ = s.doubleSwitch(ctx, req.RequesterID, name, false)
	})
	return Outcome{Decision: &d}, nil
}

// QueueMatchEnd adds a player to the match-end queue
func (s *Service) QueueMatchEnd(ctx context.Context, p domain.Player) error {
	q, err := s.store.Enqueue(ctx, p.PlayerID, p.Name)
	if err != nil {
		return err
	}
	s.log.Info().Str("player_id", p.PlayerID).Int64("queue_id", q.ID).Msg("queued for match end")
	s.emitEvent(domain.EventMatchEndQueued, q)
	return nil
}

func (s *Service) evaluation(req domain.SwitchRequest) eligibility.Request {
	r := eligibility.Request{
		Now:        s.now(),
		MatchStart: s.roster.MatchStart(),
		TeamID:     s.requesterTeam(req),
		Roster:     s.roster.Players(),
	}
	if joined, ok := s.session.JoinTime(req.RequesterID); ok {
		r.JoinTime = joined
	}
	return r
}

func (s *Service) emitDenied(req domain.SwitchRequest, d domain.Decision) {
	s.emitEvent(domain.EventSwitchDenied, domain.SwitchEvent{
		PlayerID:   req.RequesterID,
		PlayerName: req.RequesterName,
		Kind:       string(req.Kind),
		Reason:     string(d.Reason),
	})
}
