// Package session holds the in-memory per-player state that does not survive a
// restart: join times, recent double switches and disconnect memories.
package session

import (
	"sync"
	"time"
)

// DisconnectTTL is how long a disconnect memory stays valid for rejoin restore
const DisconnectTTL = time.Hour

// Disconnect remembers the team a player left from
type Disconnect struct {
	TeamID int
	At     time.Time
}

// State is safe for concurrent use
type State struct {
	mu           sync.Mutex
	joinTimes    map[string]time.Time
	doubleSwitch map[string]time.Time
	disconnects  map[string]Disconnect
}

// New returns empty session state
func New() *State {
	return &State{
		joinTimes:    make(map[string]time.Time),
		doubleSwitch: make(map[string]time.Time),
		disconnects:  make(map[string]Disconnect),
	}
}

// RecordJoin stores the join time for a player
func (s *State) RecordJoin(playerID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinTimes[playerID] = at
}

// JoinTime returns when the player joined, if known
func (s *State) JoinTime(playerID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.joinTimes[playerID]
	return t, ok
}

// RecordDoubleSwitch marks a double switch for the player
func (s *State) RecordDoubleSwitch(playerID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doubleSwitch[playerID] = at
}

// LastDoubleSwitch returns the last double switch time, if any
func (s *State) LastDoubleSwitch(playerID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doubleSwitch[playerID]
	return t, ok
}

// RecordDisconnect remembers the team the player left from and forgets their
// join and double switch state
func (s *State) RecordDisconnect(playerID string, teamID int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects[playerID] = Disconnect{TeamID: teamID, At: at}
	delete(s.doubleSwitch, playerID)
	delete(s.joinTimes, playerID)
}

// TakeDisconnect returns and removes the disconnect memory when it is younger
// than DisconnectTTL at now. A stale memory is removed as well.
func (s *State) TakeDisconnect(playerID string, now time.Time) (Disconnect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disconnects[playerID]
	if !ok {
		return Disconnect{}, false
	}
	delete(s.disconnects, playerID)
	if now.Sub(d.At) > DisconnectTTL {
		return Disconnect{}, false
	}
	return d, true
}

// Counts reports the size of each map
type Counts struct {
	Joined       int `json:"joined"`
	DoubleSwitch int `json:"double_switch"`
	Disconnected int `json:"disconnected"`
}

// Counts returns the current map sizes
func (s *State) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Joined:       len(s.joinTimes),
		DoubleSwitch: len(s.doubleSwitch),
		Disconnected: len(s.disconnects),
	}
}

// Sweep drops disconnect memories past DisconnectTTL and double switch marks
// older than doubleCooldown. It returns how many entries were removed.
func (s *State) Sweep(now time.Time, doubleCooldown time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, d := range s.disconnects {
		if now.Sub(d.At) > DisconnectTTL {
			delete(s.disconnects, id)
			removed++
		}
	}
	for id, at := range s.doubleSwitch {
		if now.Sub(at) >= doubleCooldown {
			delete(s.doubleSwitch, id)
			removed++
		}
	}
	return removed
}
