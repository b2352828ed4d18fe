package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// WorkflowRepo — репозиторий для работы с workflows и triggers.
//
// Jobs и edges хранятся JSONB-колонками workflow: ядро всегда читает их
// целиком. Triggers вынесены в отдельную таблицу — по ним идут выборки
// (поиск workflow по триггеру, due cron-триггеры).
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// GetWorkflow возвращает workflow со всем содержимым.
func (r *WorkflowRepo) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `
		SELECT id, project_id, name, lock_version, enabled, deleted_at, jobs, edges, created_at
		FROM workflows
		WHERE id = $1
	`
	wf, err := r.scanWorkflow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	triggers, err := r.listTriggers(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.Triggers = triggers
	return wf, nil
}

// GetWorkflowByTrigger возвращает workflow, которому принадлежит триггер.
func (r *WorkflowRepo) GetWorkflowByTrigger(ctx context.Context, triggerID uuid.UUID) (*domain.Workflow, error) {
	query := `SELECT workflow_id FROM triggers WHERE id = $1`
	var workflowID uuid.UUID
	err := r.pool.QueryRow(ctx, query, triggerID).Scan(&workflowID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger owner: %w", err)
	}
	return r.GetWorkflow(ctx, workflowID)
}

// ListDueCronTriggers возвращает cron-триггеры с next_due_at <= now.
// Триггеры выключенных и удалённых workflows не возвращаются.
func (r *WorkflowRepo) ListDueCronTriggers(ctx context.Context, now time.Time, limit int) ([]domain.Trigger, error) {
	query := `
		SELECT t.id, t.workflow_id, t.type, t.enabled, t.cron_expr, t.timezone, t.next_due_at
		FROM triggers t
		JOIN workflows w ON w.id = t.workflow_id
		WHERE t.type = 'cron'
		  AND t.enabled
		  AND t.next_due_at IS NOT NULL
		  AND t.next_due_at <= $1
		  AND w.enabled
		  AND w.deleted_at IS NULL
		ORDER BY t.next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due cron triggers: %w", err)
	}
	defer rows.Close()

	var triggers []domain.Trigger
	for rows.Next() {
		tr, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, *tr)
	}
	return triggers, rows.Err()
}

// UpdateTriggerNextDue записывает время следующего срабатывания.
func (r *WorkflowRepo) UpdateTriggerNextDue(ctx context.Context, triggerID uuid.UUID, next time.Time) error {
	query := `UPDATE triggers SET next_due_at = $2 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, triggerID, next)
	if err != nil {
		return fmt.Errorf("update trigger next due: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// listTriggers возвращает триггеры workflow.
func (r *WorkflowRepo) listTriggers(ctx context.Context, workflowID uuid.UUID) ([]domain.Trigger, error) {
	query := `
		SELECT id, workflow_id, type, enabled, cron_expr, timezone, next_due_at
		FROM triggers
		WHERE workflow_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []domain.Trigger
	for rows.Next() {
		tr, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, *tr)
	}
	return triggers, rows.Err()
}

// scanWorkflow сканирует одну строку в Workflow (без триггеров).
func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var jobsJSON, edgesJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.ProjectID,
		&wf.Name,
		&wf.LockVersion,
		&wf.Enabled,
		&wf.DeletedAt,
		&jobsJSON,
		&edgesJSON,
		&wf.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if jobsJSON != nil {
		if err := json.Unmarshal(jobsJSON, &wf.Jobs); err != nil {
			return nil, fmt.Errorf("unmarshal jobs: %w", err)
		}
	}
	if edgesJSON != nil {
		if err := json.Unmarshal(edgesJSON, &wf.Edges); err != nil {
			return nil, fmt.Errorf("unmarshal edges: %w", err)
		}
	}
	return &wf, nil
}

// scanTrigger сканирует строку в Trigger.
func scanTrigger(rows pgx.Rows) (*domain.Trigger, error) {
	var tr domain.Trigger
	var cronExpr, timezone *string

	err := rows.Scan(
		&tr.ID,
		&tr.WorkflowID,
		&tr.Type,
		&tr.Enabled,
		&cronExpr,
		&timezone,
		&tr.NextDueAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan trigger: %w", err)
	}
	if cronExpr != nil {
		tr.CronExpr = *cronExpr
	}
	if timezone != nil {
		tr.Timezone = *timezone
	}
	return &tr, nil
}
