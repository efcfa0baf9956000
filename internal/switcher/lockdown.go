package switcher

import (
	"context"
	"time"

	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/storage"
)

// ApplyLockdown bars every affected player from switching for the configured
// lockdown duration. Stored names survive when the event carries bare ids.
func (s *Service) ApplyLockdown(ctx context.Context, affected []domain.AffectedPlayer) (time.Time, error) {
	if len(affected) == 0 {
		return time.Time{}, nil
	}

	expiry := s.now().Add(s.cfg.LockdownDuration())
	records := make([]domain.PlayerCooldown, 0, len(affected))
	for _, a := range affected {
		if a.PlayerID == "" {
			continue
		}
		rec := domain.PlayerCooldown{PlayerID: a.PlayerID, ScrambleLockdownExpiry: &expiry}
		if a.Name != "" {
			name := a.Name
			rec.PlayerName = &name
		}
		records = append(records, rec)
	}

	err := s.store.BulkUpsertCooldowns(ctx, records,
		storage.FieldScrambleLockdownExpiry, storage.FieldPlayerName)
	if err != nil {
		s.log.Error().Err(err).Int("players", len(records)).Msg("failed to apply scramble lockdown")
		return time.Time{}, err
	}

	s.log.Info().Int("players", len(records)).Time("expiry", expiry).Msg("scramble lockdown applied")
	s.emitEvent(domain.EventLockdownApplied, domain.LockdownEvent{
		Players: len(records),
		Expiry:  expiry.UTC(),
		Minutes: s.cfg.ScrambleLockdownDurationMinutes,
	})
	return expiry, nil
}
