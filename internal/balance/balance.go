// Package balance computes how many more players a team may take.
package balance

import "github.com/ernie/teamswitch/internal/domain"

// Difference returns |team1| - |team2| for the roster
func Difference(players []domain.Player) int {
	diff := 0
	for _, p := range players {
		switch p.TeamID {
		case domain.Team1:
			diff++
		case domain.Team2:
			diff--
		}
	}
	return diff
}

// AvailableSlots returns how many players may leave team before the
// imbalance exceeds maxUnbalanced. Zero or less means nobody may leave.
func AvailableSlots(players []domain.Player, team, maxUnbalanced int) int {
	diff := Difference(players)
	if team == domain.Team1 {
		return maxUnbalanced + diff
	}
	return maxUnbalanced - diff
}

// Slots is the available slot count for both teams
type Slots struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// Compute returns the slot counts for both teams
func Compute(players []domain.Player, maxUnbalanced int) Slots {
	return Slots{
		Team1: AvailableSlots(players, domain.Team1, maxUnbalanced),
		Team2: AvailableSlots(players, domain.Team2, maxUnbalanced),
	}
}
