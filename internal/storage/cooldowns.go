package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/teamswitch/internal/domain"
)

// CooldownPatch carries the fields to write for one player. Nil fields keep
// whatever is stored.
type CooldownPatch struct {
	PlayerName             *string
	LastSwitchAt           *time.Time
	ScrambleLockdownExpiry *time.Time
}

// Field names a mutable player_cooldowns column
type Field string

const (
	FieldPlayerName             Field = "player_name"
	FieldLastSwitchAt           Field = "last_switch_at"
	FieldScrambleLockdownExpiry Field = "scramble_lockdown_expiry"
)

// GetCooldown returns the record for playerID, or nil when none is stored
func (s *Store) GetCooldown(ctx context.Context, playerID string) (*domain.PlayerCooldown, error) {
	c, err := scanCooldown(s.db.QueryRowContext(ctx,
		"SELECT "+cooldownColumns+" FROM player_cooldowns WHERE player_id = ?", playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get cooldown", err)
	}
	return c, nil
}

// UpsertCooldown merges patch into the stored record, creating it when absent
func (s *Store) UpsertCooldown(ctx context.Context, playerID string, patch CooldownPatch) error {
	return s.withTx(ctx, "upsert cooldown", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO player_cooldowns (player_id, player_name, last_switch_at, scramble_lockdown_expiry)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(player_id) DO UPDATE SET
				player_name = COALESCE(excluded.player_name, player_cooldowns.player_name),
				last_switch_at = COALESCE(excluded.last_switch_at, player_cooldowns.last_switch_at),
				scramble_lockdown_expiry = COALESCE(excluded.scramble_lockdown_expiry, player_cooldowns.scramble_lockdown_expiry)
		`, playerID, nullString(patch.PlayerName), nullTimestamp(patch.LastSwitchAt), nullTimestamp(patch.ScrambleLockdownExpiry))
		return err
	})
}

// BulkUpsertCooldowns writes records in one transaction. Existing rows only
// have the listed fields replaced; a nil player name never erases a stored one.
func (s *Store) BulkUpsertCooldowns(ctx context.Context, records []domain.PlayerCooldown, fields ...Field) error {
	if len(records) == 0 {
		return nil
	}

	set := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case FieldPlayerName:
			set = append(set, "player_name = COALESCE(excluded.player_name, player_cooldowns.player_name)")
		case FieldLastSwitchAt, FieldScrambleLockdownExpiry:
			set = append(set, fmt.Sprintf("%s = excluded.%s", f, f))
		default:
			return fmt.Errorf("unknown cooldown field %q", f)
		}
	}
	conflict := "DO NOTHING"
	if len(set) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(set, ", ")
	}

	query := `
		INSERT INTO player_cooldowns (player_id, player_name, last_switch_at, scramble_lockdown_expiry)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(player_id) ` + conflict

	return s.withTx(ctx, "bulk upsert cooldowns", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.PlayerID, nullString(r.PlayerName),
				nullTimestamp(r.LastSwitchAt), nullTimestamp(r.ScrambleLockdownExpiry)); err != nil {
				return fmt.Errorf("player %s: %w", r.PlayerID, err)
			}
		}
		return nil
	})
}

// DeleteCooldown removes one record and reports whether it existed
func (s *Store) DeleteCooldown(ctx context.Context, playerID string) (bool, error) {
	var affected int64
	err := s.withTx(ctx, "delete cooldown", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM player_cooldowns WHERE player_id = ?", playerID)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected > 0, err
}

// DeleteAllCooldowns removes every record
func (s *Store) DeleteAllCooldowns(ctx context.Context) (int64, error) {
	var affected int64
	err := s.withTx(ctx, "delete all cooldowns", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM player_cooldowns")
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

// DeleteExpiredCooldowns removes records whose lockdown ended before now and
// whose last switch happened before cutoff. Missing values count as ended.
func (s *Store) DeleteExpiredCooldowns(ctx context.Context, now, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.withTx(ctx, "delete expired cooldowns", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM player_cooldowns
			WHERE (scramble_lockdown_expiry IS NULL OR scramble_lockdown_expiry < ?)
			  AND (last_switch_at IS NULL OR last_switch_at < ?)
		`, formatTimestamp(now), formatTimestamp(cutoff))
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

// ScanCooldowns returns every record matching pred, in player id order
func (s *Store) ScanCooldowns(ctx context.Context, pred func(domain.PlayerCooldown) bool) ([]domain.PlayerCooldown, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+cooldownColumns+" FROM player_cooldowns ORDER BY player_id")
	if err != nil {
		return nil, storeErr("scan cooldowns", err)
	}
	defer rows.Close()

	var out []domain.PlayerCooldown
	for rows.Next() {
		c, err := scanCooldown(rows)
		if err != nil {
			return nil, storeErr("scan cooldowns", err)
		}
		if pred == nil || pred(*c) {
			out = append(out, *c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan cooldowns", err)
	}
	return out, nil
}

// FindCooldownsByName returns records whose stored name contains fragment, ignoring case
func (s *Store) FindCooldownsByName(ctx context.Context, fragment string) ([]domain.PlayerCooldown, error) {
	return s.queryCooldowns(ctx, "find cooldowns", `
		SELECT `+cooldownColumns+` FROM player_cooldowns
		WHERE player_name IS NOT NULL AND instr(lower(player_name), lower(?)) > 0
		ORDER BY player_name, player_id
	`, fragment)
}

// ListActiveCooldowns returns records with a running lockdown or a switch
// after cutoff, latest lockdown first
func (s *Store) ListActiveCooldowns(ctx context.Context, now, cutoff time.Time, limit int) ([]domain.PlayerCooldown, error) {
	return s.queryCooldowns(ctx, "list active cooldowns", `
		SELECT `+cooldownColumns+` FROM player_cooldowns
		WHERE scramble_lockdown_expiry > ? OR last_switch_at > ?
		ORDER BY scramble_lockdown_expiry DESC NULLS LAST, last_switch_at DESC
		LIMIT ?
	`, formatTimestamp(now), formatTimestamp(cutoff), limit)
}

// CountCooldowns returns the number of stored records
func (s *Store) CountCooldowns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM player_cooldowns").Scan(&n); err != nil {
		return 0, storeErr("count cooldowns", err)
	}
	return n, nil
}

// CountActiveCooldowns returns the number of players under a running lockdown
// or with a switch after cutoff
func (s *Store) CountActiveCooldowns(ctx context.Context, now, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM player_cooldowns
		WHERE scramble_lockdown_expiry > ? OR last_switch_at > ?
	`, formatTimestamp(now), formatTimestamp(cutoff)).Scan(&n)
	if err != nil {
		return 0, storeErr("count active cooldowns", err)
	}
	return n, nil
}

func (s *Store) queryCooldowns(ctx context.Context, op, query string, args ...any) ([]domain.PlayerCooldown, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var out []domain.PlayerCooldown
	for rows.Next() {
		c, err := scanCooldown(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}
