// Package bridge connects the switch service to the game server gateway over
// NATS. Server events and player requests come in on subjects under the
// configured prefix; team changes, warnings and roster fetches go out as
// requests to the RCON gateway.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ernie/teamswitch/internal/config"
	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/switcher"
)

// Event names published by the gateway under <prefix>.events.
const (
	EventPlayerConnected    = "player_connected"
	EventPlayerDisconnected = "player_disconnected"
	EventRoundEnded         = "round_ended"
	EventNewGame            = "new_game"
	EventScrambleExecuted   = "scramble_executed"
)

// Handler receives decoded server events and requests
type Handler interface {
	HandlePlayerConnected(p domain.Player)
	HandlePlayerDisconnected(p domain.Player)
	HandleRoundEnded(ctx context.Context) error
	HandleNewGame(startedAt time.Time)
	ApplyLockdown(ctx context.Context, affected []domain.AffectedPlayer) (time.Time, error)
	HandleRequest(ctx context.Context, req domain.SwitchRequest) (switcher.Outcome, error)
}

// Bridge is a NATS connection bound to one subject prefix
type Bridge struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	log     zerolog.Logger
}

// Connect dials the NATS server at url
func Connect(url string, cfg config.NATSConfig, logger zerolog.Logger) (*Bridge, error) {
	b := &Bridge{
		prefix:  cfg.SubjectPrefix,
		timeout: cfg.RequestTimeout,
		log:     logger.With().Str("component", "bridge").Logger(),
	}

	conn, err := nats.Connect(url,
		nats.Name("teamswitch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(b.handleDisconnect),
		nats.ReconnectHandler(b.handleReconnect),
		nats.ErrorHandler(b.handleError),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	b.conn = conn

	b.log.Info().Str("url", conn.ConnectedUrl()).Str("prefix", b.prefix).Msg("connected to NATS")
	return b, nil
}

// Close drains subscriptions and closes the connection
func (b *Bridge) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.log.Warn().Err(err).Msg("draining NATS connection")
		b.conn.Close()
	}
}

func (b *Bridge) subject(parts ...string) string {
	return b.prefix + "." + strings.Join(parts, ".")
}

// Subscribe starts delivering events and requests to h. Events share one
// subscription so they are handled in the order the gateway sent them.
func (b *Bridge) Subscribe(ctx context.Context, h Handler) error {
	_, err := b.conn.Subscribe(b.subject("events", ">"), func(msg *nats.Msg) {
		b.handleEvent(ctx, h, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}

	_, err = b.conn.Subscribe(b.subject("requests", "switch"), func(msg *nats.Msg) {
		b.handleRequest(ctx, h, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribing to requests: %w", err)
	}

	return b.conn.Flush()
}

func (b *Bridge) handleEvent(ctx context.Context, h Handler, msg *nats.Msg) {
	name := msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]
	logger := b.log.With().Str("event", name).Logger()

	switch name {
	case EventPlayerConnected, EventPlayerDisconnected:
		var p domain.Player
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			logger.Warn().Err(err).Msg("bad player event")
			return
		}
		if name == EventPlayerConnected {
			h.HandlePlayerConnected(p)
		} else {
			h.HandlePlayerDisconnected(p)
		}
	case EventRoundEnded:
		if err := h.HandleRoundEnded(ctx); err != nil {
			logger.Error().Err(err).Msg("round end handling failed")
		}
	case EventNewGame:
		var ev struct {
			Time time.Time `json:"time"`
		}
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				logger.Warn().Err(err).Msg("bad new game event")
			}
		}
		h.HandleNewGame(ev.Time)
	case EventScrambleExecuted:
		var ev struct {
			AffectedPlayers []domain.AffectedPlayer `json:"affectedPlayers"`
		}
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Warn().Err(err).Msg("bad scramble event")
			return
		}
		if _, err := h.ApplyLockdown(ctx, ev.AffectedPlayers); err != nil {
			logger.Error().Err(err).Msg("scramble lockdown failed")
		}
	default:
		logger.Debug().Msg("ignoring unknown event")
	}
}

// RequestReply is sent back when a switch request carries a reply subject
type RequestReply struct {
	switcher.Outcome
	Error string `json:"error,omitempty"`
}

func (b *Bridge) handleRequest(ctx context.Context, h Handler, msg *nats.Msg) {
	var req domain.SwitchRequest
	var reply RequestReply
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply.Error = fmt.Sprintf("decoding request: %v", err)
	} else {
		out, err := h.HandleRequest(ctx, req)
		reply.Outcome = out
		if err != nil {
			reply.Error = err.Error()
		}
	}

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		b.log.Error().Err(err).Msg("encoding request reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		b.log.Warn().Err(err).Msg("responding to request")
	}
}

// gatewayReply is the RCON gateway's answer to a command
type gatewayReply struct {
	Error   string          `json:"error,omitempty"`
	Players []domain.Player `json:"players,omitempty"`
}

func (b *Bridge) request(ctx context.Context, subject string, payload interface{}) (*gatewayReply, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", subject, err)
	}

	var reply gatewayReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decoding %s reply: %w", subject, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%s: %w", subject, errors.New(reply.Error))
	}
	return &reply, nil
}

type playerCommand struct {
	PlayerID string `json:"steam_id"`
	Message  string `json:"message,omitempty"`
}

// ExecuteTeamChange asks the gateway to force the player onto the other team
func (b *Bridge) ExecuteTeamChange(ctx context.Context, playerID string) error {
	_, err := b.request(ctx, b.subject("rcon", "team_change"), playerCommand{PlayerID: playerID})
	return err
}

// Warn shows a message to the player. Delivery is not acknowledged.
func (b *Bridge) Warn(_ context.Context, playerID, message string) error {
	data, err := json.Marshal(playerCommand{PlayerID: playerID, Message: message})
	if err != nil {
		return err
	}
	return b.conn.Publish(b.subject("rcon", "warn"), data)
}

// FetchRoster asks the gateway for the current player list
func (b *Bridge) FetchRoster(ctx context.Context) ([]domain.Player, error) {
	reply, err := b.request(ctx, b.subject("rcon", "roster"), struct{}{})
	if err != nil {
		return nil, err
	}
	return reply.Players, nil
}

func (b *Bridge) handleDisconnect(nc *nats.Conn, err error) {
	if err != nil {
		b.log.Error().Err(err).Msg("disconnected from NATS")
		return
	}
	b.log.Warn().Msg("disconnected from NATS")
}

func (b *Bridge) handleReconnect(nc *nats.Conn) {
	b.log.Info().Str("url", nc.ConnectedUrl()).Uint64("reconnects", nc.Reconnects).Msg("reconnected to NATS")
}

func (b *Bridge) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	b.log.Error().Err(err).Str("subject", subject).Msg("NATS subscription error")
}
