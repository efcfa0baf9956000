// Package switcher runs the switch engine: it evaluates requests, executes team
// changes on the game server and reacts to round, scramble and connection
// events.
package switcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ernie/teamswitch/internal/config"
	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/eligibility"
	"github.com/ernie/teamswitch/internal/session"
	"github.com/ernie/teamswitch/internal/storage"
)

// GameServer performs actions on the live game server
type GameServer interface {
	ExecuteTeamChange(ctx context.Context, playerID string) error
	Warn(ctx context.Context, playerID, message string) error
}

// Roster is the live match context
type Roster interface {
	Refresh(ctx context.Context) error
	Players() []domain.Player
	Upsert(p domain.Player)
	Remove(playerID string)
	FlipTeams()
	MatchStart() time.Time
	SetMatchStart(t time.Time)
	FindByID(playerID string) (domain.Player, bool)
	Resolve(ident string) (domain.Player, error)
	ResolveTeam(ident string) (int, error)
	Squad(number, teamID int) []domain.Player
}

// Service owns the switch rules and every background task they start
type Service struct {
	cfg     config.SwitchConfig
	store   *storage.Store
	server  GameServer
	roster  Roster
	session *session.State
	engine  *eligibility.Engine
	log     zerolog.Logger
	events  chan domain.Event
	now     func() time.Time

	locks   playerLocks
	batchMu sync.Mutex // one match-end batch at a time

	mu      sync.Mutex
	stopped bool
	ctx     context.Context // cancelled by Stop; parent of all background work
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Service
func New(cfg config.SwitchConfig, store *storage.Store, server GameServer, roster Roster, logger zerolog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:     cfg,
		store:   store,
		server:  server,
		roster:  roster,
		session: session.New(),
		engine:  eligibility.New(cfg),
		log:     logger.With().Str("component", "switcher").Logger(),
		events:  make(chan domain.Event, 100),
		now:     time.Now,
		locks:   playerLocks{held: make(map[string]*playerLock)},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel for the live feed
func (s *Service) Events() <-chan domain.Event {
	return s.events
}

// Start launches the session sweep loop
func (s *Service) Start(ctx context.Context) {
	s.spawn(func(bg context.Context) {
		s.sweepLoop(ctx, bg)
	})
	s.log.Info().
		Dur("cooldown", s.cfg.CooldownDuration()).
		Dur("window", s.cfg.Window()).
		Int("max_unbalanced_slots", s.cfg.MaxUnbalancedSlots).
		Msg("switch service started")
}

// Stop cancels pending delays and waits for background work to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.log.Info().Msg("switch service stopping")
	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("switch service stopped")
}

// spawn runs fn on a tracked goroutine. It reports false once Stop was called.
func (s *Service) spawn(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

// sleep waits d or until ctx is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) sweepLoop(ctx, bg context.Context) {
	ticker := time.NewTicker(s.cfg.SessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bg.Done():
			return
		case <-ticker.C:
			if n := s.session.Sweep(s.now(), s.cfg.DoubleSwitchCooldown()); n > 0 {
				s.log.Debug().Int("removed", n).Msg("swept session state")
			}
		}
	}
}

// emitEvent sends an event to the event channel
func (s *Service) emitEvent(eventType string, data interface{}) {
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: s.now().UTC(),
		Data:      data,
	}
	select {
	case s.events <- event:
	default:
		s.log.Warn().Str("event", eventType).Msg("event channel full, dropping event")
	}
}

// warn messages a player and logs delivery failures
func (s *Service) warn(ctx context.Context, playerID, message string) {
	if playerID == "" || message == "" {
		return
	}
	if err := s.server.Warn(ctx, playerID, message); err != nil {
		s.log.Warn().Err(err).Str("player_id", playerID).Msg("failed to warn player")
	}
}

// playerLocks serialises check-then-act per player id
type playerLocks struct {
	mu   sync.Mutex
	held map[string]*playerLock
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

func (l *playerLocks) lock(playerID string) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.held[playerID]
	if !ok {
		pl = &playerLock{}
		l.held[playerID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.held, playerID)
		}
		l.mu.Unlock()
	}
}
