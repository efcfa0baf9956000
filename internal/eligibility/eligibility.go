// Package eligibility decides whether a switch request may go ahead.
package eligibility

import (
	"time"

	"github.com/ernie/teamswitch/internal/balance"
	"github.com/ernie/teamswitch/internal/config"
	"github.com/ernie/teamswitch/internal/domain"
)

// Request carries everything a decision depends on. Zero times mean unknown.
type Request struct {
	Now              time.Time
	Cooldown         *domain.PlayerCooldown // nil when the player has no record
	JoinTime         time.Time
	MatchStart       time.Time
	LastDoubleSwitch time.Time
	TeamID           int
	Roster           []domain.Player
}

// Engine evaluates requests against the configured rules. It is stateless.
type Engine struct {
	cfg config.SwitchConfig
}

// New creates an Engine
func New(cfg config.SwitchConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Immediate checks lockdown, time window, cooldown and team balance in that
// order and returns the first failure
func (e *Engine) Immediate(r Request) domain.Decision {
	if d, denied := lockdown(r); denied {
		return d
	}
	if !windowOpen(r, e.cfg.Window()) {
		return domain.Deny(domain.DenyTimeWindowExpired, 0)
	}
	cooldown := e.cfg.CooldownDuration()
	if r.Cooldown != nil && r.Cooldown.CoolingAt(r.Now, cooldown) {
		remaining := cooldown - r.Now.Sub(*r.Cooldown.LastSwitchAt)
		return domain.Deny(domain.DenyCooldownActive, remaining)
	}
	if balance.AvailableSlots(r.Roster, r.TeamID, e.cfg.MaxUnbalancedSlots) <= 0 {
		return domain.Deny(domain.DenyTeamBalanceInsufficient, 0)
	}
	return domain.Allow()
}

// Double checks lockdown, the double switch window and the session-only
// double switch cooldown. Team balance is not considered.
func (e *Engine) Double(r Request) domain.Decision {
	if d, denied := lockdown(r); denied {
		return d
	}
	if !windowOpen(r, e.cfg.DoubleWindow()) {
		return domain.Deny(domain.DenyTimeWindowExpired, 0)
	}
	if !r.LastDoubleSwitch.IsZero() {
		cooldown := e.cfg.DoubleSwitchCooldown()
		if elapsed := r.Now.Sub(r.LastDoubleSwitch); elapsed < cooldown {
			return domain.Deny(domain.DenyCooldownActive, cooldown-elapsed)
		}
	}
	return domain.Allow()
}

func lockdown(r Request) (domain.Decision, bool) {
	if r.Cooldown != nil && r.Cooldown.LockedAt(r.Now) {
		return domain.Deny(domain.DenyLockdownActive, r.Cooldown.ScrambleLockdownExpiry.Sub(r.Now)), true
	}
	return domain.Decision{}, false
}

// windowOpen is true while either the join or the match start is within
// window. An unknown instant counts as zero elapsed time.
func windowOpen(r Request, window time.Duration) bool {
	return elapsed(r.Now, r.JoinTime) <= window || elapsed(r.Now, r.MatchStart) <= window
}

func elapsed(now, since time.Time) time.Duration {
	if since.IsZero() {
		return 0
	}
	return now.Sub(since)
}
