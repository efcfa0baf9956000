package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/ernie/teamswitch/internal/domain"
)

// Enqueue appends a pending match-end switch. The same player may be queued
// several times.
func (s *Store) Enqueue(ctx context.Context, playerID, playerName string) (*domain.QueuedSwitch, error) {
	q := domain.QueuedSwitch{
		PlayerID:   playerID,
		PlayerName: playerName,
		CreatedAt:  time.Now().UTC().Round(0),
	}
	err := s.withTx(ctx, "enqueue switch", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO matchend_switches (player_id, player_name, created_at) VALUES (?, ?, ?)
		`, playerID, playerName, formatTimestamp(q.CreatedAt))
		if err != nil {
			return err
		}
		q.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQueued returns every pending switch in insertion order
func (s *Store) ListQueued(ctx context.Context) ([]domain.QueuedSwitch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, player_name, created_at FROM matchend_switches ORDER BY id
	`)
	if err != nil {
		return nil, storeErr("list queue", err)
	}
	defer rows.Close()

	var out []domain.QueuedSwitch
	for rows.Next() {
		q, err := scanQueuedSwitch(rows)
		if err != nil {
			return nil, storeErr("list queue", err)
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list queue", err)
	}
	return out, nil
}

// RemoveQueued deletes one queue entry by id
func (s *Store) RemoveQueued(ctx context.Context, id int64) error {
	return s.withTx(ctx, "remove queued switch", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM matchend_switches WHERE id = ?", id)
		return err
	})
}
