package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	key  string
}

func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewPostgresStore creates the snapshot table if needed.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, key string) (*PostgresStore, error) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS tracker_snapshots (
            snapshot_key TEXT PRIMARY KEY,
            state        JSONB NOT NULL,
            saved_at     TIMESTAMPTZ NOT NULL
        )
    `)
	if err != nil {
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &PostgresStore{pool: pool, key: key}, nil
}

func (s *PostgresStore) Save(ctx context.Context, snapshot domain.TrackerSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO tracker_snapshots (snapshot_key, state, saved_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (snapshot_key)
        DO UPDATE SET state = EXCLUDED.state,
                      saved_at = EXCLUDED.saved_at
    `, s.key, data, snapshot.SavedAt)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (*domain.TrackerSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
        SELECT state FROM tracker_snapshots WHERE snapshot_key = $1
    `, s.key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ensure interface compliance
var _ port.SnapshotStore = (*PostgresStore)(nil)
