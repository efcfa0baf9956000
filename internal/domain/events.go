package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types published on the live feed
const (
	EventSwitchExecuted   = "switch_executed"
	EventSwitchDenied     = "switch_denied"
	EventSwitchFailed     = "switch_failed"
	EventDoubleSwitch     = "double_switch"
	EventSquadSwitch      = "squad_switch"
	EventMatchEndQueued   = "matchend_queued"
	EventMatchEndBatch    = "matchend_batch"
	EventLockdownApplied  = "lockdown_applied"
	EventCooldownsCleared = "cooldowns_cleared"
	EventRoundEnded       = "round_ended"
	EventRejoinRestore    = "rejoin_restore"
)

// Event is a service notification for the websocket feed and audit channel
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// SwitchEvent describes one team change (or a denied attempt)
type SwitchEvent struct {
	PlayerID   string `json:"steam_id"`
	PlayerName string `json:"player_name,omitempty"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SquadSwitchEvent describes a squad-wide switch
type SquadSwitchEvent struct {
	Squad   int      `json:"squad"`
	TeamID  int      `json:"team_id"`
	Double  bool     `json:"double"`
	Players []string `json:"players"`
}

// LockdownEvent is sent after a scramble lockdown was written
type LockdownEvent struct {
	Players int       `json:"players"`
	Expiry  time.Time `json:"expiry"`
	Minutes float64   `json:"minutes"`
}

// BatchOutcome is the result of one queued match-end switch
type BatchOutcome struct {
	QueueID  int64  `json:"queue_id"`
	PlayerID string `json:"steam_id"`
	Name     string `json:"player_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the team change for this entry failed
func (o BatchOutcome) Failed() bool {
	return o.Error != ""
}

// MatchEndBatchEvent summarises a completed match-end batch
type MatchEndBatchEvent struct {
	BatchID  string         `json:"batch_id"`
	Outcomes []BatchOutcome `json:"outcomes"`
	Failed   int            `json:"failed"`
}

// RoundEndedEvent is sent once the round-end bookkeeping ran
type RoundEndedEvent struct {
	Pruned int64 `json:"pruned"`
}

// UnmarshalJSON accepts either a bare player id string or an object
func (a *AffectedPlayer) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		a.PlayerID = id
		a.Name = ""
		return nil
	}

	var obj struct {
		SteamID string `json:"steamID"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("affected player: %w", err)
	}
	a.PlayerID = obj.SteamID
	a.Name = obj.Name
	return nil
}
