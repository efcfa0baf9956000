package switcher

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ernie/teamswitch/internal/balance"
	"github.com/ernie/teamswitch/internal/config"
	"github.com/ernie/teamswitch/internal/domain"
)

const (
	msgSwitchFailed     = "Team switch failed. Please try again or contact an admin."
	msgStoreUnavailable = "Switching is unavailable right now. Please try again later."
	msgDoubleSwitched   = "Player has been double-switched."
	msgRefreshed        = "Players and squads refreshed."
	msgTriggerStarted   = "Triggering match-end switch sequence..."
	msgTriggerDone      = "Match-end switch sequence complete."
	msgClearedAll       = "All player cooldowns cleared."
	msgAdminHelp        = "Admin: now, double, matchend, check, clear, clearall | Squad: squad, doublesquad, matchendsquad | triggermatchend"
)

// ceilMinutes rounds a remaining duration up to whole minutes
func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

func formatMinutes(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "m"
}

func formatHours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "h"
}

func msgDenied(d domain.Decision, cfg config.SwitchConfig) string {
	switch d.Reason {
	case domain.DenyLockdownActive:
		return fmt.Sprintf("Scramble lock: you cannot switch for %dm.", ceilMinutes(d.Remaining))
	case domain.DenyTimeWindowExpired:
		return fmt.Sprintf("Time limit: switching is only allowed in the first %s of a match or after joining.", formatMinutes(cfg.SwitchEnabledMinutes))
	case domain.DenyCooldownActive:
		return fmt.Sprintf("Cooldown: please wait %dm.", ceilMinutes(d.Remaining))
	case domain.DenyTeamBalanceInsufficient:
		return "Balance limit: teams would become too unbalanced."
	}
	return ""
}

func msgDoubleDenied(d domain.Decision, cfg config.SwitchConfig) string {
	switch d.Reason {
	case domain.DenyTimeWindowExpired:
		return fmt.Sprintf("Time limit: double switch is only allowed in the first %s of a match or after joining.", formatMinutes(cfg.DoubleSwitchEnabledMinutes))
	case domain.DenyCooldownActive:
		return fmt.Sprintf("Cooldown: double switch used recently. Wait %s.", formatHours(cfg.DoubleSwitchCooldownHours))
	}
	return msgDenied(d, cfg)
}

func msgMatchEndNotice(grace time.Duration) string {
	return fmt.Sprintf("Match end: you will be switched in %d seconds.", int(grace.Round(time.Second).Seconds()))
}

func msgPlayerHelp(cfg config.SwitchConfig) string {
	return fmt.Sprintf("Usage: !switch | Available in the first %s of a match or after joining.", formatMinutes(cfg.SwitchEnabledMinutes))
}

func msgSlots(slots balance.Slots) string {
	return fmt.Sprintf("Switch slots:\nTeam 1: %d\nTeam 2: %d", slots.Team1, slots.Team2)
}

func msgQueued(name string) string {
	return fmt.Sprintf("Player %q queued for switch at match end.", name)
}

func msgSquadQueued(squad int, team string, n int) string {
	return fmt.Sprintf("Squad %d (%s) queued for switch at match end, %d players.", squad, team, n)
}

func msgSwitched(name string) string {
	return fmt.Sprintf("Switched %s.", name)
}

func msgSquadSwitched(squad int, team string, n int) string {
	return fmt.Sprintf("Squad %d (%s): %d players switched.", squad, team, n)
}

func msgCleared(name string) string {
	return fmt.Sprintf("Cleared cooldowns for %s.", name)
}

func msgStatus(st PlayerStatus) string {
	return fmt.Sprintf("Status: %s | Locked: %s | Cooldown: %s", st.Name, yesNo(st.Locked), yesNo(st.OnCooldown))
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// msgForError turns a request failure into text for the requester. Permission
// failures stay silent.
func msgForError(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return ""
	case errors.Is(err, domain.ErrValidation):
		return capitalize(strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	case errors.Is(err, domain.ErrStoreUnavailable):
		return msgStoreUnavailable
	case errors.Is(err, domain.ErrActionFailed):
		return msgSwitchFailed
	}
	return msgSwitchFailed
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
