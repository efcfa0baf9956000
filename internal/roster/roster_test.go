package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/teamswitch/internal/domain"
)

type stubSource struct {
	players []domain.Player
	err     error
}

func (s stubSource) FetchRoster(context.Context) ([]domain.Player, error) {
	return s.players, s.err
}

func sample() []domain.Player {
	return []domain.Player{
		{PlayerID: "3", Name: "Medic Mike", TeamID: 2, SquadID: 1, Role: "RGF_Medic_01"},
		{PlayerID: "1", Name: "Sniper Sam", TeamID: 1, SquadID: 1, Role: "USA_Marksman_01"},
		{PlayerID: "2", Name: "sam the tank", TeamID: 1, SquadID: 2, Role: "USA_Crewman_01"},
		{PlayerID: "4", Name: "Lone Wolf", TeamID: 2, SquadID: 0, Role: "RGF_Rifleman_01"},
	}
}

func TestSetSortsByID(t *testing.T) {
	c := New(nil)
	c.Set(sample())

	var ids []string
	for _, p := range c.Players() {
		ids = append(ids, p.PlayerID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
}

func TestResolve(t *testing.T) {
	c := New(nil)
	c.Set(sample())

	tests := []struct {
		ident   string
		wantID  string
		wantErr error
	}{
		{"4", "4", nil},
		{"wolf", "4", nil},
		{"MIKE", "3", nil},
		{"sam", "", domain.ErrAmbiguousPlayer},
		{"nobody", "", domain.ErrPlayerNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.ident, func(t *testing.T) {
			p, err := c.Resolve(tc.ident)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, p.PlayerID)
		})
	}
}

func TestResolveTeam(t *testing.T) {
	c := New(nil)
	c.Set(sample())

	tests := []struct {
		ident   string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"2", 2, false},
		{"usa", 1, false},
		{"rgf", 2, false},
		{"3", 0, true},
		{"ins", 0, true},
		{"", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.ident, func(t *testing.T) {
			team, err := c.ResolveTeam(tc.ident)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrTeamNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, team)
		})
	}
}

func TestSquadAndFlip(t *testing.T) {
	c := New(nil)
	c.Set(sample())

	squad := c.Squad(1, 1)
	require.Len(t, squad, 1)
	assert.Equal(t, "1", squad[0].PlayerID)

	c.FlipTeams()
	squad = c.Squad(1, 1)
	require.Len(t, squad, 1)
	assert.Equal(t, "3", squad[0].PlayerID)
}

func TestUpsertAndRemove(t *testing.T) {
	c := New(nil)
	c.Set(sample())

	c.Upsert(domain.Player{PlayerID: "0", Name: "Newbie", TeamID: 1})
	c.Upsert(domain.Player{PlayerID: "2", Name: "sam the tank", TeamID: 2})
	players := c.Players()
	require.Len(t, players, 5)
	assert.Equal(t, "0", players[0].PlayerID)
	p, ok := c.FindByID("2")
	require.True(t, ok)
	assert.Equal(t, 2, p.TeamID)

	c.Remove("0")
	assert.Len(t, c.Players(), 4)
}

func TestRefresh(t *testing.T) {
	c := New(stubSource{players: sample()})
	require.NoError(t, c.Refresh(context.Background()))
	assert.Len(t, c.Players(), 4)

	boom := errors.New("rcon down")
	c = New(stubSource{err: boom})
	assert.ErrorIs(t, c.Refresh(context.Background()), boom)
}

func TestMatchStart(t *testing.T) {
	c := New(nil)
	assert.True(t, c.MatchStart().IsZero())
	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	c.SetMatchStart(start)
	assert.Equal(t, start, c.MatchStart())
}
