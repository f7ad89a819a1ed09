package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mural_service/internal/domain/model"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const snapshotSchema = `
	CREATE TABLE IF NOT EXISTS estimation_snapshots (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		state      JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`

type PostgresSnapshotRepository struct {
	DB     *sqlx.DB
	logger *zap.Logger
}

func NewPostgresSnapshotRepository(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresSnapshotRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	repo := &PostgresSnapshotRepository{DB: db, logger: logger}
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates the snapshot table when it does not exist.
func (r *PostgresSnapshotRepository) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}

func (r *PostgresSnapshotRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *PostgresSnapshotRepository) Close() error {
	return r.DB.Close()
}

func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot model.Snapshot) error {
	const query = `
		INSERT INTO estimation_snapshots (id, name, state, created_at)
		VALUES ($1, $2, $3, $4)`

	stateJSON, err := json.Marshal(snapshot.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, query, snapshot.ID, snapshot.Name, stateJSON, snapshot.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	r.logger.Info("Snapshot stored",
		zap.String("snapshot_id", snapshot.ID),
		zap.String("name", snapshot.Name))
	return nil
}

// List returns snapshot headers, newest first, without their state.
func (r *PostgresSnapshotRepository) List(ctx context.Context) ([]model.Snapshot, error) {
	const query = `
		SELECT id, name, created_at
		FROM estimation_snapshots
		ORDER BY created_at DESC, name`

	var snapshots []model.Snapshot
	if err := r.DB.SelectContext(ctx, &snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	return snapshots, nil
}

type snapshotRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	State     []byte    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *PostgresSnapshotRepository) Get(ctx context.Context, id string) (model.Snapshot, error) {
	const query = `
		SELECT id, name, state, created_at
		FROM estimation_snapshots
		WHERE id = $1`

	var row snapshotRow
	if err := r.DB.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Snapshot{}, fmt.Errorf("%w: %s", model.ErrSnapshotNotFound, id)
		}
		return model.Snapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var state model.EstimationState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to decode snapshot state: %w", err)
	}

	return model.Snapshot{
		ID:        row.ID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
		State:     &state,
	}, nil
}
