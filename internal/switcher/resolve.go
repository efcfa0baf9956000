package switcher

import (
	"context"

	"github.com/ernie/teamswitch/internal/domain"
)

// resolveTarget finds a live player by id or unique name fragment
func (s *Service) resolveTarget(ctx context.Context, ident string) (domain.Player, error) {
	if ident == "" {
		return domain.Player{}, domain.ErrMissingTarget
	}
	s.refresh(ctx)
	return s.roster.Resolve(ident)
}

// resolveSquad returns the team id and members of a squad. team is a numeric
// team id or a role name prefix.
func (s *Service) resolveSquad(ctx context.Context, squad int, team string) (int, []domain.Player, error) {
	s.refresh(ctx)
	teamID, err := s.roster.ResolveTeam(team)
	if err != nil {
		return 0, nil, err
	}
	return teamID, s.roster.Squad(squad, teamID), nil
}

// requesterTeam prefers the team carried by the request, else the roster
func (s *Service) requesterTeam(req domain.SwitchRequest) int {
	if req.RequesterTeam != 0 {
		return req.RequesterTeam
	}
	if p, ok := s.roster.FindByID(req.RequesterID); ok {
		return p.TeamID
	}
	return 0
}

func (s *Service) requesterName(req domain.SwitchRequest) string {
	if req.RequesterName != "" {
		return req.RequesterName
	}
	if p, ok := s.roster.FindByID(req.RequesterID); ok {
		return p.Name
	}
	return ""
}
