package domain

import "time"

// RequestKind identifies what a requester asked for
type RequestKind string

const (
	KindSwitch          RequestKind = "switch"          // player asks to switch themselves
	KindDouble          RequestKind = "double"          // player asks for a double switch
	KindAdminNow        RequestKind = "now"             // admin switches a player immediately
	KindAdminDouble     RequestKind = "admin_double"    // admin double-switches a player (forced)
	KindSquad           RequestKind = "squad"           // admin switches a squad
	KindDoubleSquad     RequestKind = "doublesquad"     // admin double-switches a squad
	KindMatchEnd        RequestKind = "matchend"        // admin queues a player for match end
	KindMatchEndSquad   RequestKind = "matchendsquad"   // admin queues a squad for match end
	KindTriggerMatchEnd RequestKind = "triggermatchend" // admin runs the match-end batch now
	KindSlots           RequestKind = "slots"
	KindRefresh         RequestKind = "refresh"
	KindHelp            RequestKind = "help"
	KindCheck           RequestKind = "check"
	KindClear           RequestKind = "clear"
	KindClearAll        RequestKind = "clearall"
)

// KindRejoin tags switches the service schedules itself when a player comes
// back on the wrong team. It cannot be requested.
const KindRejoin RequestKind = "rejoin"

var adminKinds = map[RequestKind]bool{
	KindAdminNow:        true,
	KindAdminDouble:     true,
	KindSquad:           true,
	KindDoubleSquad:     true,
	KindMatchEnd:        true,
	KindMatchEndSquad:   true,
	KindTriggerMatchEnd: true,
	KindCheck:           true,
	KindClear:           true,
	KindClearAll:        true,
}

// AdminOnly reports whether the kind requires admin rights
func (k RequestKind) AdminOnly() bool {
	return adminKinds[k]
}

// Valid reports whether k is a known request kind
func (k RequestKind) Valid() bool {
	switch k {
	case KindSwitch, KindDouble, KindSlots, KindRefresh, KindHelp:
		return true
	}
	return adminKinds[k]
}

// SwitchRequest is an already-identified request. Chat parsing and admin
// resolution happen upstream; Admin carries the resolved permission.
type SwitchRequest struct {
	RequesterID   string      `json:"requester_id"`
	RequesterName string      `json:"requester_name,omitempty"`
	RequesterTeam int         `json:"requester_team,omitempty"`
	Admin         bool        `json:"admin"`
	Kind          RequestKind `json:"kind"`
	Target        string      `json:"target,omitempty"` // player id or name fragment
	Squad         int         `json:"squad,omitempty"`
	Team          string      `json:"team,omitempty"` // numeric team id or role prefix
}

// DenyReason says why a switch was refused
type DenyReason string

const (
	DenyLockdownActive          DenyReason = "LockdownActive"
	DenyTimeWindowExpired       DenyReason = "TimeWindowExpired"
	DenyCooldownActive          DenyReason = "CooldownActive"
	DenyTeamBalanceInsufficient DenyReason = "TeamBalanceInsufficient"
)

// Decision is the outcome of an eligibility evaluation. Denials are not errors.
type Decision struct {
	Eligible bool
	Reason   DenyReason
	// Remaining is the time left on the lockdown or cooldown that caused a denial
	Remaining time.Duration
}

// Allow is the eligible decision
func Allow() Decision {
	return Decision{Eligible: true}
}

// Deny builds a denial with the time left before it lifts
func Deny(reason DenyReason, remaining time.Duration) Decision {
	return Decision{Reason: reason, Remaining: remaining}
}
