package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// SnapshotRepo — репозиторий неизменяемых snapshots.
//
// Содержимое snapshot (triggers, jobs, edges) хранится одной JSONB-колонкой:
// оно читается и пишется только целиком и никогда не мутирует.
type SnapshotRepo struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepo создаёт новый SnapshotRepo.
func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

// snapshotContent — JSONB-представление замороженного содержимого.
type snapshotContent struct {
	Triggers []domain.Trigger `json:"triggers"`
	Jobs     []domain.Job     `json:"jobs"`
	Edges    []domain.Edge    `json:"edges"`
}

// CreateSnapshot сохраняет новый snapshot.
// Нарушение уникальности (workflow_id, lock_version) — store.ErrAlreadyExists.
func (r *SnapshotRepo) CreateSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	contentJSON, err := json.Marshal(snapshotContent{
		Triggers: snap.Triggers,
		Jobs:     snap.Jobs,
		Edges:    snap.Edges,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot content: %w", err)
	}

	query := `
		INSERT INTO snapshots (id, workflow_id, lock_version, name, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		snap.ID,
		snap.WorkflowID,
		snap.LockVersion,
		snap.Name,
		contentJSON,
		snap.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot возвращает snapshot по ID.
func (r *SnapshotRepo) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	query := `
		SELECT id, workflow_id, lock_version, name, content, created_at
		FROM snapshots
		WHERE id = $1
	`
	return scanSnapshot(r.pool.QueryRow(ctx, query, id))
}

// GetSnapshotByVersion возвращает snapshot пары (workflow, lock-версия).
func (r *SnapshotRepo) GetSnapshotByVersion(ctx context.Context, workflowID uuid.UUID, lockVersion int) (*domain.Snapshot, error) {
	query := `
		SELECT id, workflow_id, lock_version, name, content, created_at
		FROM snapshots
		WHERE workflow_id = $1 AND lock_version = $2
	`
	return scanSnapshot(r.pool.QueryRow(ctx, query, workflowID, lockVersion))
}

// scanSnapshot сканирует одну строку в Snapshot.
func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var contentJSON []byte

	err := row.Scan(
		&snap.ID,
		&snap.WorkflowID,
		&snap.LockVersion,
		&snap.Name,
		&contentJSON,
		&snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	var content snapshotContent
	if err := json.Unmarshal(contentJSON, &content); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot content: %w", err)
	}
	snap.Triggers = content.Triggers
	snap.Jobs = content.Jobs
	snap.Edges = content.Edges
	return &snap, nil
}
