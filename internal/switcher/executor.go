package switcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/storage"
)

// maxSquadParallel bounds concurrent team changes within one double squad pass
const maxSquadParallel = 8

// ExecuteImmediate changes the player's team and records the switch time. A
// failed team change writes nothing and returns ErrActionFailed.
func (s *Service) ExecuteImmediate(ctx context.Context, playerID, playerName string, kind domain.RequestKind) error {
	if err := s.teamChange(ctx, playerID, playerName, kind); err != nil {
		return err
	}

	now := s.now()
	patch := storage.CooldownPatch{LastSwitchAt: &now}
	if playerName != "" {
		patch.PlayerName = &playerName
	}
	if err := s.store.UpsertCooldown(ctx, playerID, patch); err != nil {
		s.log.Error().Err(err).Str("player_id", playerID).Msg("switched but failed to record cooldown")
		return err
	}

	s.log.Info().Str("player_id", playerID).Str("player_name", playerName).Str("kind", string(kind)).Msg("switch executed")
	s.emitEvent(domain.EventSwitchExecuted, domain.SwitchEvent{
		PlayerID:   playerID,
		PlayerName: playerName,
		Kind:       string(kind),
	})
	return nil
}

// teamChange asks the server to move the player without touching the store
func (s *Service) teamChange(ctx context.Context, playerID, playerName string, kind domain.RequestKind) error {
	if err := s.server.ExecuteTeamChange(ctx, playerID); err != nil {
		s.log.Warn().Err(err).Str("player_id", playerID).Str("kind", string(kind)).Msg("team change failed")
		s.emitEvent(domain.EventSwitchFailed, domain.SwitchEvent{
			PlayerID:   playerID,
			PlayerName: playerName,
			Kind:       string(kind),
			Error:      err.Error(),
		})
		return fmt.Errorf("%w: %w", domain.ErrActionFailed, err)
	}
	return nil
}

// ExecuteDouble moves the player twice, DoubleSwitchDelay apart, so they land
// back on their team at the bottom of the queue. Unless forced, the double
// switch cooldown starts before the first move. The store is never touched.
func (s *Service) ExecuteDouble(ctx context.Context, playerID, playerName string, forced bool) error {
	if !forced {
		s.session.RecordDoubleSwitch(playerID, s.now())
	}
	return s.doubleSwitch(ctx, playerID, playerName, forced)
}

func (s *Service) doubleSwitch(ctx context.Context, playerID, playerName string, forced bool) error {
	kind := domain.KindDouble
	if forced {
		kind = domain.KindAdminDouble
	}
	if err := s.teamChange(ctx, playerID, playerName, kind); err != nil {
		return err
	}
	if err := sleep(ctx, s.cfg.DoubleSwitchDelay()); err != nil {
		s.log.Warn().Str("player_id", playerID).Msg("double switch interrupted after first move")
		return err
	}
	if err := s.teamChange(ctx, playerID, playerName, kind); err != nil {
		return err
	}

	s.log.Info().Str("player_id", playerID).Bool("forced", forced).Msg("double switch executed")
	s.emitEvent(domain.EventDoubleSwitch, domain.SwitchEvent{
		PlayerID:   playerID,
		PlayerName: playerName,
		Kind:       string(kind),
	})
	return nil
}

// ExecuteSquad switches every member of a squad one at a time, in the order
// given. Eligibility is not checked and a failed member does not stop the rest.
func (s *Service) ExecuteSquad(ctx context.Context, squad, teamID int, players []domain.Player) error {
	var errs []error
	for _, p := range players {
		if err := s.ExecuteImmediate(ctx, p.PlayerID, p.Name, domain.KindSquad); err != nil {
			errs = append(errs, err)
		}
	}

	s.emitEvent(domain.EventSquadSwitch, domain.SquadSwitchEvent{
		Squad:   squad,
		TeamID:  teamID,
		Players: playerIDs(players),
	})
	return errors.Join(errs...)
}

// ExecuteDoubleSquad moves every member of a squad twice, DoubleSwitchDelay
// apart. Both passes are raw team changes so no cooldown is written, and the
// second pass only includes players whose first move succeeded.
func (s *Service) ExecuteDoubleSquad(ctx context.Context, squad, teamID int, players []domain.Player) error {
	first := forEach(ctx, len(players), maxSquadParallel, func(ctx context.Context, i int) error {
		return s.teamChange(ctx, players[i].PlayerID, players[i].Name, domain.KindDoubleSquad)
	})

	var moved []domain.Player
	for i, err := range first {
		if err == nil {
			moved = append(moved, players[i])
		}
	}

	if err := sleep(ctx, s.cfg.DoubleSwitchDelay()); err != nil {
		s.log.Warn().Int("squad", squad).Int("team_id", teamID).Msg("double squad switch interrupted after first pass")
		return err
	}

	second := forEach(ctx, len(moved), maxSquadParallel, func(ctx context.Context, i int) error {
		return s.teamChange(ctx, moved[i].PlayerID, moved[i].Name, domain.KindDoubleSquad)
	})

	s.emitEvent(domain.EventSquadSwitch, domain.SquadSwitchEvent{
		Squad:   squad,
		TeamID:  teamID,
		Double:  true,
		Players: playerIDs(moved),
	})
	return errors.Join(append(first, second...)...)
}

// ExecuteMatchEndBatch warns every queued player, waits MatchEndGrace, then
// switches them all concurrently. Every entry is removed from the queue
// whatever the outcome. An empty queue is a no-op.
func (s *Service) ExecuteMatchEndBatch(ctx context.Context) ([]domain.BatchOutcome, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	queued, err := s.store.ListQueued(ctx)
	if err != nil {
		return nil, err
	}
	if len(queued) == 0 {
		return nil, nil
	}

	batchID := uuid.NewString()
	logger := s.log.With().Str("batch_id", batchID).Logger()
	logger.Info().Int("players", len(queued)).Dur("grace", s.cfg.MatchEndGrace).Msg("match-end batch starting")

	for _, q := range queued {
		s.warn(ctx, q.PlayerID, msgMatchEndNotice(s.cfg.MatchEndGrace))
	}
	if err := sleep(ctx, s.cfg.MatchEndGrace); err != nil {
		logger.Warn().Msg("match-end batch cancelled during grace period, queue kept")
		return nil, err
	}

	outcomes := make([]domain.BatchOutcome, len(queued))
	forEach(ctx, len(queued), 0, func(ctx context.Context, i int) error {
		q := queued[i]
		out := domain.BatchOutcome{QueueID: q.ID, PlayerID: q.PlayerID, Name: q.PlayerName}
		if err := s.ExecuteImmediate(ctx, q.PlayerID, q.PlayerName, domain.KindMatchEnd); err != nil {
			out.Error = err.Error()
		}
		if err := s.store.RemoveQueued(ctx, q.ID); err != nil {
			logger.Error().Err(err).Int64("queue_id", q.ID).Msg("failed to remove queue entry")
			if out.Error == "" {
				out.Error = err.Error()
			}
		}
		outcomes[i] = out
		return nil
	})

	failed := 0
	for _, out := range outcomes {
		if out.Failed() {
			failed++
			logger.Warn().Str("player_id", out.PlayerID).Str("error", out.Error).Msg("match-end switch failed")
		}
	}
	logger.Info().Int("players", len(outcomes)).Int("failed", failed).Msg("match-end batch complete")

	s.emitEvent(domain.EventMatchEndBatch, domain.MatchEndBatchEvent{
		BatchID:  batchID,
		Outcomes: outcomes,
		Failed:   failed,
	})
	return outcomes, nil
}

// forEach runs fn for 0..n-1 concurrently, at most limit at a time when limit
// is positive, and returns each call's error by index. A failure never
// cancels the other calls.
func forEach(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func playerIDs(players []domain.Player) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.PlayerID
	}
	return ids
}
