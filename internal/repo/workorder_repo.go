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

// WorkOrderRepo — репозиторий для работы с work orders.
type WorkOrderRepo struct {
	pool *pgxpool.Pool
}

// NewWorkOrderRepo создаёт новый WorkOrderRepo.
func NewWorkOrderRepo(pool *pgxpool.Pool) *WorkOrderRepo {
	return &WorkOrderRepo{pool: pool}
}

// CreateWorkOrder создаёт новый work order.
func (r *WorkOrderRepo) CreateWorkOrder(ctx context.Context, wo *domain.WorkOrder) error {
	query := `
		INSERT INTO work_orders (id, workflow_id, snapshot_id, trigger_id, dataclip_id, state, inserted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		wo.ID,
		wo.WorkflowID,
		wo.SnapshotID,
		wo.TriggerID,
		wo.DataclipID,
		wo.State,
		wo.InsertedAt,
		wo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert work order: %w", err)
	}
	return nil
}

// GetWorkOrder возвращает work order по ID.
func (r *WorkOrderRepo) GetWorkOrder(ctx context.Context, id uuid.UUID) (*domain.WorkOrder, error) {
	query := `
		SELECT id, workflow_id, snapshot_id, trigger_id, dataclip_id, state, inserted_at, updated_at
		FROM work_orders
		WHERE id = $1
	`
	return scanWorkOrder(r.pool.QueryRow(ctx, query, id))
}

// UpdateWorkOrderState записывает производное состояние.
func (r *WorkOrderRepo) UpdateWorkOrderState(ctx context.Context, id uuid.UUID, state domain.WorkOrderState) error {
	query := `UPDATE work_orders SET state = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, state, time.Now())
	if err != nil {
		return fmt.Errorf("update work order state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListWorkOrders возвращает work orders с фильтрацией.
func (r *WorkOrderRepo) ListWorkOrders(ctx context.Context, filter store.WorkOrderFilter) ([]domain.WorkOrder, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, workflow_id, snapshot_id, trigger_id, dataclip_id, state, inserted_at, updated_at
		FROM work_orders
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR state = $2)
		ORDER BY inserted_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(string(filter.State)),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrderFromRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *wo)
	}
	return orders, rows.Err()
}

// scanWorkOrder сканирует одну строку в WorkOrder.
func scanWorkOrder(row pgx.Row) (*domain.WorkOrder, error) {
	var wo domain.WorkOrder
	err := row.Scan(
		&wo.ID,
		&wo.WorkflowID,
		&wo.SnapshotID,
		&wo.TriggerID,
		&wo.DataclipID,
		&wo.State,
		&wo.InsertedAt,
		&wo.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan work order: %w", err)
	}
	return &wo, nil
}

// scanWorkOrderFromRows сканирует строку из rows в WorkOrder.
func scanWorkOrderFromRows(rows pgx.Rows) (*domain.WorkOrder, error) {
	var wo domain.WorkOrder
	err := rows.Scan(
		&wo.ID,
		&wo.WorkflowID,
		&wo.SnapshotID,
		&wo.TriggerID,
		&wo.DataclipID,
		&wo.State,
		&wo.InsertedAt,
		&wo.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan work order: %w", err)
	}
	return &wo, nil
}
