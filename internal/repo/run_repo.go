package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// RunRepo — репозиторий для работы с runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, work_order_id, snapshot_id, trigger_id, dataclip_id, state,
       worker_id, claimed_at, started_at, finished_at, error_message, inserted_at`

// CreateRun создаёт новый run.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (id, work_order_id, snapshot_id, trigger_id, dataclip_id, state,
		                  worker_id, claimed_at, started_at, finished_at, error_message, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.WorkOrderID,
		run.SnapshotID,
		run.TriggerID,
		run.DataclipID,
		run.State,
		nullString(run.WorkerID),
		run.ClaimedAt,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.ErrorMessage),
		run.InsertedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun возвращает run по ID.
func (r *RunRepo) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// UpdateRun обновляет run.
func (r *RunRepo) UpdateRun(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE runs
		SET state = $2, worker_id = $3, claimed_at = $4, started_at = $5,
		    finished_at = $6, error_message = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.State,
		nullString(run.WorkerID),
		run.ClaimedAt,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ClaimOldestAvailable атомарно захватывает старейший available run.
//
// SKIP LOCKED даёт конкурентным воркерам разные runs без взаимных
// блокировок; каждый run выдаётся ровно одному воркеру.
func (r *RunRepo) ClaimOldestAvailable(ctx context.Context, workerID string) (*domain.Run, error) {
	query := `
		UPDATE runs
		SET state = 'claimed', worker_id = $1, claimed_at = $2
		WHERE id = (
			SELECT id FROM runs
			WHERE state = 'available'
			ORDER BY inserted_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + runColumns
	return scanRun(r.pool.QueryRow(ctx, query, workerID, time.Now()))
}

// GetRunByWorkOrder возвращает run для work order.
func (r *RunRepo) GetRunByWorkOrder(ctx context.Context, workOrderID uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE work_order_id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, workOrderID))
}

// ListAbandoned возвращает незавершённые claimed/started runs, чей claim
// старше olderThan.
func (r *RunRepo) ListAbandoned(ctx context.Context, olderThan time.Time, limit int) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE state IN ('claimed', 'started')
		  AND claimed_at < $1
		ORDER BY claimed_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list abandoned runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRunFields(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует одну строку в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	run, err := scanRunFields(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return run, err
}

// scanRunFields сканирует поля run из строки.
func scanRunFields(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var workerID, errorMessage *string

	err := row.Scan(
		&run.ID,
		&run.WorkOrderID,
		&run.SnapshotID,
		&run.TriggerID,
		&run.DataclipID,
		&run.State,
		&workerID,
		&run.ClaimedAt,
		&run.StartedAt,
		&run.FinishedAt,
		&errorMessage,
		&run.InsertedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if workerID != nil {
		run.WorkerID = *workerID
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	return &run, nil
}
