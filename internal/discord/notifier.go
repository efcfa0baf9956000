// Package discord posts audit notices about scramble lockdowns, match-end
// batches and admin clears to a Discord channel.
package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/ernie/teamswitch/internal/config"
	"github.com/ernie/teamswitch/internal/domain"
)

const (
	colorInfo    = 0x3498db
	colorWarning = 0xe67e22
	colorError   = 0xe74c3c

	// maxListedFailures caps the failed entries named in a batch notice
	maxListedFailures = 10
)

// messenger is the part of a discordgo session the notifier uses
type messenger interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier queues audit notices and sends them from one goroutine so a slow
// Discord API never blocks the event feed
type Notifier struct {
	session   messenger
	closer    func() error
	channelID string
	queue     chan *discordgo.MessageEmbed
	log       zerolog.Logger
}

// New opens a bot session for cfg
func New(cfg config.DiscordConfig, logger zerolog.Logger) (*Notifier, error) {
	token := strings.TrimSpace(cfg.Token)
	if !strings.HasPrefix(strings.ToLower(token), "bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening discord session: %w", err)
	}

	n := newNotifier(s, cfg.ChannelID, logger)
	n.closer = s.Close
	return n, nil
}

func newNotifier(m messenger, channelID string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		session:   m,
		channelID: channelID,
		queue:     make(chan *discordgo.MessageEmbed, 32),
		log:       logger.With().Str("component", "discord").Logger(),
	}
}

// Notify queues a notice for events worth auditing. Others are ignored.
func (n *Notifier) Notify(event domain.Event) {
	embed := embedFor(event)
	if embed == nil {
		return
	}
	select {
	case n.queue <- embed:
	default:
		n.log.Warn().Str("event", event.Type).Msg("discord queue full, dropping notice")
	}
}

// Run sends queued notices until ctx is done, then closes the session
func (n *Notifier) Run(ctx context.Context) {
	defer func() {
		if n.closer != nil {
			if err := n.closer(); err != nil {
				n.log.Warn().Err(err).Msg("closing discord session")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case embed := <-n.queue:
			if _, err := n.session.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
				n.log.Error().Err(err).Str("title", embed.Title).Msg("sending discord notice")
			}
		}
	}
}

func embedFor(event domain.Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Timestamp: event.Timestamp.Format(time.RFC3339)}

	switch data := event.Data.(type) {
	case domain.LockdownEvent:
		embed.Title = "Scramble lockdown"
		embed.Color = colorWarning
		embed.Description = fmt.Sprintf("%d players locked for %g minutes.", data.Players, data.Minutes)
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Expires", Value: fmt.Sprintf("<t:%d:t>", data.Expiry.Unix()), Inline: true},
		}

	case domain.MatchEndBatchEvent:
		embed.Title = "Match-end switches"
		embed.Color = colorInfo
		embed.Description = fmt.Sprintf("%d of %d players switched.", len(data.Outcomes)-data.Failed, len(data.Outcomes))
		if data.Failed > 0 {
			embed.Color = colorError
			var lines []string
			for _, o := range data.Outcomes {
				if !o.Failed() {
					continue
				}
				if len(lines) == maxListedFailures {
					lines = append(lines, "...")
					break
				}
				lines = append(lines, fmt.Sprintf("%s (%s): %s", displayName(o.Name, o.PlayerID), o.PlayerID, o.Error))
			}
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Failed", Value: strings.Join(lines, "\n")})
		}
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "batch " + data.BatchID}

	default:
		if event.Type != domain.EventCooldownsCleared {
			return nil
		}
		embed.Title = "Cooldowns cleared"
		embed.Color = colorInfo
		switch d := event.Data.(type) {
		case domain.SwitchEvent:
			embed.Description = fmt.Sprintf("Cleared %s (%s).", displayName(d.PlayerName, d.PlayerID), d.PlayerID)
		case map[string]int64:
			embed.Description = fmt.Sprintf("Cleared all records (%d).", d["records"])
		}
	}
	return embed
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
