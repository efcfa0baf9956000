package switcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ernie/teamswitch/internal/balance"
	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/session"
)

// diagnosticsLimit is how many locked or cooling players Diagnostics lists
const diagnosticsLimit = 10

// PlayerStatus is the derived state of a stored cooldown record
type PlayerStatus struct {
	PlayerID     string     `json:"steam_id"`
	Name         string     `json:"name"`
	Locked       bool       `json:"locked"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
	OnCooldown   bool       `json:"on_cooldown"`
	NextSwitchAt *time.Time `json:"next_switch_at,omitempty"`
}

func (s *Service) status(c domain.PlayerCooldown, now time.Time) PlayerStatus {
	st := PlayerStatus{PlayerID: c.PlayerID, Name: c.DisplayName()}
	if c.LockedAt(now) {
		st.Locked = true
		st.LockedUntil = c.ScrambleLockdownExpiry
	}
	cooldown := s.cfg.CooldownDuration()
	if c.CoolingAt(now, cooldown) {
		st.OnCooldown = true
		next := c.LastSwitchAt.Add(cooldown)
		st.NextSwitchAt = &next
	}
	return st
}

// findRecord looks a stored record up by exact player id, else by a unique
// name fragment
func (s *Service) findRecord(ctx context.Context, ident string) (*domain.PlayerCooldown, error) {
	if ident == "" {
		return nil, domain.ErrMissingTarget
	}
	rec, err := s.store.GetCooldown(ctx, ident)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	matches, err := s.store.FindCooldownsByName(ctx, ident)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %q", domain.ErrPlayerNotFound, ident)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrAmbiguousPlayer, ident)
	}
}

// CheckPlayer reports the lockdown and cooldown state of a stored player
func (s *Service) CheckPlayer(ctx context.Context, ident string) (*PlayerStatus, error) {
	rec, err := s.findRecord(ctx, ident)
	if err != nil {
		return nil, err
	}
	st := s.status(*rec, s.now())
	return &st, nil
}

// Diagnostics summarises the store and session state
type Diagnostics struct {
	DBStatus     string         `json:"db_status"`
	ActiveLocks  int            `json:"active_locks"`
	TotalPlayers int            `json:"total_players"`
	Queued       int            `json:"queued"`
	Players      []PlayerStatus `json:"players"`
	Session      session.Counts `json:"session"`
}

// Diagnostics never fails; store errors are reported in DBStatus
func (s *Service) Diagnostics(ctx context.Context) Diagnostics {
	d := Diagnostics{DBStatus: "Connected", Session: s.session.Counts(), Players: []PlayerStatus{}}
	now := s.now()
	cutoff := now.Add(-s.cfg.CooldownDuration())

	err := s.store.Ping(ctx)
	if err == nil {
		d.TotalPlayers, err = s.store.CountCooldowns(ctx)
	}
	if err == nil {
		d.ActiveLocks, err = s.store.CountActiveCooldowns(ctx, now, cutoff)
	}
	var active []domain.PlayerCooldown
	if err == nil {
		active, err = s.store.ListActiveCooldowns(ctx, now, cutoff, diagnosticsLimit)
	}
	var queued []domain.QueuedSwitch
	if err == nil {
		queued, err = s.store.ListQueued(ctx)
	}
	if err != nil {
		d.DBStatus = "Error: " + err.Error()
		return d
	}

	d.Queued = len(queued)
	for _, c := range active {
		d.Players = append(d.Players, s.status(c, now))
	}
	return d
}

// Slots returns the available switch slots for both teams from a fresh roster
func (s *Service) Slots(ctx context.Context) balance.Slots {
	s.refresh(ctx)
	return balance.Compute(s.roster.Players(), s.cfg.MaxUnbalancedSlots)
}

// Clear deletes the stored record of one player
func (s *Service) Clear(ctx context.Context, ident string) (*PlayerStatus, error) {
	rec, err := s.findRecord(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.DeleteCooldown(ctx, rec.PlayerID); err != nil {
		return nil, err
	}

	st := PlayerStatus{PlayerID: rec.PlayerID, Name: rec.DisplayName()}
	s.log.Info().Str("player_id", rec.PlayerID).Msg("cooldowns cleared")
	s.emitEvent(domain.EventCooldownsCleared, domain.SwitchEvent{PlayerID: rec.PlayerID, PlayerName: st.Name})
	return &st, nil
}

// ClearAll deletes every stored record
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAllCooldowns(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("records", n).Msg("all cooldowns cleared")
	s.emitEvent(domain.EventCooldownsCleared, map[string]int64{"records": n})
	return n, nil
}

// Queue lists pending match-end switches
func (s *Service) Queue(ctx context.Context) ([]domain.QueuedSwitch, error) {
	return s.store.ListQueued(ctx)
}

// refresh updates the roster, falling back to the cached one on failure
func (s *Service) refresh(ctx context.Context) {
	if err := s.roster.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("roster refresh failed, using cached roster")
	}
}
