package domain

import (
	"strings"
	"time"
)

// Team identifiers used by the game server
const (
	Team1 = 1
	Team2 = 2
)

// OtherTeam returns the opposing team id
func OtherTeam(teamID int) int {
	if teamID == Team1 {
		return Team2
	}
	return Team1
}

// Player is one entry of the live roster snapshot
type Player struct {
	PlayerID string `json:"steam_id"`
	Name     string `json:"name"`
	TeamID   int    `json:"team_id"`
	SquadID  int    `json:"squad_id,omitempty"`
	Role     string `json:"role,omitempty"`
}

// HasRolePrefix reports whether the player's role starts with prefix, ignoring case
func (p Player) HasRolePrefix(prefix string) bool {
	return strings.HasPrefix(strings.ToLower(p.Role), strings.ToLower(prefix))
}

// PlayerCooldown is the durable switch history of a single player.
// A record with every optional field nil is equivalent to no record.
type PlayerCooldown struct {
	PlayerID               string     `json:"steam_id"`
	PlayerName             *string    `json:"player_name,omitempty"`
	LastSwitchAt           *time.Time `json:"last_switch_at,omitempty"`
	ScrambleLockdownExpiry *time.Time `json:"scramble_lockdown_expiry,omitempty"`
}

// DisplayName returns the stored name, falling back to the player id
func (c PlayerCooldown) DisplayName() string {
	if c.PlayerName != nil && *c.PlayerName != "" {
		return *c.PlayerName
	}
	return c.PlayerID
}

// LockedAt reports whether a scramble lockdown is still running at now
func (c PlayerCooldown) LockedAt(now time.Time) bool {
	return c.ScrambleLockdownExpiry != nil && now.Before(*c.ScrambleLockdownExpiry)
}

// CoolingAt reports whether the switch cooldown is still running at now
func (c PlayerCooldown) CoolingAt(now time.Time, cooldown time.Duration) bool {
	return c.LastSwitchAt != nil && now.Sub(*c.LastSwitchAt) < cooldown
}

// Expired reports whether both windows are absent or over, making the record
// safe to prune
func (c PlayerCooldown) Expired(now time.Time, cooldown time.Duration) bool {
	lockdownOver := c.ScrambleLockdownExpiry == nil || c.ScrambleLockdownExpiry.Before(now)
	cooldownOver := c.LastSwitchAt == nil || c.LastSwitchAt.Before(now.Add(-cooldown))
	return lockdownOver && cooldownOver
}

// QueuedSwitch is a pending match-end switch. The same player may be queued
// more than once; every entry is executed and removed on its own.
type QueuedSwitch struct {
	ID         int64     `json:"id"`
	PlayerID   string    `json:"steam_id"`
	PlayerName string    `json:"player_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// AffectedPlayer is a player touched by a scramble. Older team balancers send
// a bare id, newer ones send an object with a name.
type AffectedPlayer struct {
	PlayerID string `json:"steamID"`
	Name     string `json:"name,omitempty"`
}
