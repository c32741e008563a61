// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/memorymatch/internal/models"
)

const roomsSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	key        TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps each room as a JSONB row guarded by a version column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool. Call EnsureSchema before use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the rooms table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, roomsSchema); err != nil {
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*models.Room, error) {
	var (
		state   []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT state, version FROM rooms WHERE key = $1`, key).Scan(&state, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %q: %w", key, err)
	}
	r, err := decodeRoom(state)
	if err != nil {
		return nil, err
	}
	r.Version = version
	return r, nil
}

func (s *PostgresStore) Save(ctx context.Context, r *models.Room) error {
	data, err := encodeRoom(r)
	if err != nil {
		return err
	}
	var q string
	args := []interface{}{r.Key, r.Version + 1, data}
	if r.Version == 0 {
		q = `INSERT INTO rooms (key, version, state, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (key) DO NOTHING`
	} else {
		q = `UPDATE rooms SET version = $2, state = $3, updated_at = now()
			WHERE key = $1 AND version = $4`
		args = append(args, r.Version)
	}
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to save room %q: %w", r.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	r.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string, version int64) error {
	if version < 0 {
		if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE key = $1`, key); err != nil {
			return fmt.Errorf("failed to delete room %q: %w", key, err)
		}
		return nil
	}

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM rooms WHERE key = $1 AND version = $2`, key, version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE key = $1)`, key).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return nil
	})
	if errors.Is(err, ErrVersionConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to delete room %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, version FROM rooms ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	out := []*models.Room{}
	for rows.Next() {
		var (
			state   json.RawMessage
			version int64
		)
		if err := rows.Scan(&state, &version); err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		r, err := decodeRoom(state)
		if err != nil {
			return nil, err
		}
		r.Version = version
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }
