// Package roster caches the live player list and match start of the server.
package roster

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ernie/teamswitch/internal/domain"
)

// Source fetches a fresh roster from the game server
type Source interface {
	FetchRoster(ctx context.Context) ([]domain.Player, error)
}

// Cache is a concurrency-safe roster snapshot. Players are kept sorted by id
// so lookups that take the first match are stable.
type Cache struct {
	mu         sync.RWMutex
	players    []domain.Player
	matchStart time.Time
	source     Source
}

// New creates an empty Cache. source may be nil, in which case Refresh is a no-op.
func New(source Source) *Cache {
	return &Cache{source: source}
}

// Refresh replaces the snapshot with the server's current roster
func (c *Cache) Refresh(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	players, err := c.source.FetchRoster(ctx)
	if err != nil {
		return fmt.Errorf("refreshing roster: %w", err)
	}
	c.Set(players)
	return nil
}

// Set replaces the snapshot
func (c *Cache) Set(players []domain.Player) {
	sorted := make([]domain.Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PlayerID < sorted[j].PlayerID })

	c.mu.Lock()
	c.players = sorted
	c.mu.Unlock()
}

// Players returns a copy of the snapshot
func (c *Cache) Players() []domain.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Player, len(c.players))
	copy(out, c.players)
	return out
}

// Upsert adds or replaces one player, used when a connect event carries the team
func (c *Cache) Upsert(p domain.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.players), func(i int) bool { return c.players[i].PlayerID >= p.PlayerID })
	if i < len(c.players) && c.players[i].PlayerID == p.PlayerID {
		c.players[i] = p
		return
	}
	c.players = append(c.players, domain.Player{})
	copy(c.players[i+1:], c.players[i:])
	c.players[i] = p
}

// Remove drops a player from the snapshot
func (c *Cache) Remove(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.players {
		if p.PlayerID == playerID {
			c.players = append(c.players[:i], c.players[i+1:]...)
			return
		}
	}
}

// FlipTeams swaps team 1 and team 2 for every player. The server swaps sides
// between rounds.
func (c *Cache) FlipTeams() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.players {
		switch c.players[i].TeamID {
		case domain.Team1, domain.Team2:
			c.players[i].TeamID = domain.OtherTeam(c.players[i].TeamID)
		}
	}
}

// SetMatchStart records when the current match began
func (c *Cache) SetMatchStart(t time.Time) {
	c.mu.Lock()
	c.matchStart = t
	c.mu.Unlock()
}

// MatchStart returns the current match start, zero if unknown
func (c *Cache) MatchStart() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.matchStart
}

// FindByID returns the player with the exact id
func (c *Cache) FindByID(playerID string) (domain.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return domain.Player{}, false
}

// FindByName returns players whose name contains fragment, ignoring case
func (c *Cache) FindByName(fragment string) []domain.Player {
	needle := strings.ToLower(fragment)
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Player
	for _, p := range c.players {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out
}

// Resolve finds a player by exact id, else by a unique name fragment
func (c *Cache) Resolve(ident string) (domain.Player, error) {
	if p, ok := c.FindByID(ident); ok {
		return p, nil
	}
	matches := c.FindByName(ident)
	switch len(matches) {
	case 0:
		return domain.Player{}, fmt.Errorf("%w: %q", domain.ErrPlayerNotFound, ident)
	case 1:
		return matches[0], nil
	default:
		return domain.Player{}, fmt.Errorf("%w: %q", domain.ErrAmbiguousPlayer, ident)
	}
}

// ResolveTeam turns a numeric team id or a role name prefix into a team id.
// A prefix resolves to the team of the first player whose role starts with it.
func (c *Cache) ResolveTeam(ident string) (int, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(ident)); err == nil {
		if n == domain.Team1 || n == domain.Team2 {
			return n, nil
		}
		return 0, fmt.Errorf("%w: %q", domain.ErrTeamNotFound, ident)
	}
	if ident == "" {
		return 0, fmt.Errorf("%w: empty", domain.ErrTeamNotFound)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.players {
		if p.HasRolePrefix(ident) && p.TeamID != 0 {
			return p.TeamID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrTeamNotFound, ident)
}

// Squad returns the members of squad number on teamID
func (c *Cache) Squad(number, teamID int) []domain.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Player
	for _, p := range c.players {
		if p.TeamID == teamID && p.SquadID == number {
			out = append(out, p)
		}
	}
	return out
}
