package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ernie/teamswitch/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func scanNullTimestamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", ns.String, err)
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

const cooldownColumns = "player_id, player_name, last_switch_at, scramble_lockdown_expiry"

// scanCooldown scans a player_cooldowns row
func scanCooldown(s scanner) (*domain.PlayerCooldown, error) {
	var c domain.PlayerCooldown
	var name, lastSwitch, lockdown sql.NullString
	if err := s.Scan(&c.PlayerID, &name, &lastSwitch, &lockdown); err != nil {
		return nil, err
	}

	var err error
	c.PlayerName = scanNullString(name)
	if c.LastSwitchAt, err = scanNullTimestamp(lastSwitch); err != nil {
		return nil, err
	}
	if c.ScrambleLockdownExpiry, err = scanNullTimestamp(lockdown); err != nil {
		return nil, err
	}
	return &c, nil
}

// scanQueuedSwitch scans a matchend_switches row
func scanQueuedSwitch(s scanner) (*domain.QueuedSwitch, error) {
	var q domain.QueuedSwitch
	var createdAt string
	if err := s.Scan(&q.ID, &q.PlayerID, &q.PlayerName, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	q.CreatedAt = t
	return &q, nil
}
