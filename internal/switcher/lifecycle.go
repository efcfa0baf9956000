package switcher

import (
	"context"
	"time"

	"github.com/ernie/teamswitch/internal/domain"
)

// HandleRoundEnded prunes expired cooldown records, starts the match-end batch
// in the background and flips the cached team ids. A cleanup failure is
// returned but does not stop the rest.
func (s *Service) HandleRoundEnded(ctx context.Context) error {
	pruned, cleanupErr := s.Cleanup(ctx)
	if cleanupErr != nil {
		s.log.Error().Err(cleanupErr).Msg("cooldown cleanup failed")
	}

	s.spawn(func(ctx context.Context) {
		if _, err := s.ExecuteMatchEndBatch(ctx); err != nil {
			s.log.Error().Err(err).Msg("match-end batch failed")
		}
	})

	s.roster.FlipTeams()

	s.log.Info().Int64("pruned", pruned).Msg("round ended")
	s.emitEvent(domain.EventRoundEnded, domain.RoundEndedEvent{Pruned: pruned})
	return cleanupErr
}

// Cleanup deletes records whose lockdown and cooldown are both over or absent
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	now := s.now()
	return s.store.DeleteExpiredCooldowns(ctx, now, now.Add(-s.cfg.CooldownDuration()))
}

// HandleNewGame records the start of a new match
func (s *Service) HandleNewGame(startedAt time.Time) {
	if startedAt.IsZero() {
		startedAt = s.now()
	}
	s.roster.SetMatchStart(startedAt)
	s.log.Info().Time("match_start", startedAt).Msg("new game")
}
