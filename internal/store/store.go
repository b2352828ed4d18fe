package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
)

// Общие ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict — состояние записи изменилось конкурентно.
	ErrConflict = errors.New("conflict")
)

// Ядро не владеет хранилищем: ниже — контракты, которые оно требует от
// внешнего persistence-коллаборатора. Пакет repo реализует их поверх
// PostgreSQL, Memory — в памяти (тесты и однонодовый dev-режим).

// WorkflowStore — доступ к живым workflows и их триггерам.
type WorkflowStore interface {
	// GetWorkflow возвращает workflow со всем содержимым.
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)

	// GetWorkflowByTrigger возвращает workflow, которому принадлежит триггер.
	GetWorkflowByTrigger(ctx context.Context, triggerID uuid.UUID) (*domain.Workflow, error)

	// ListDueCronTriggers возвращает cron-триггеры с next_due_at <= now.
	ListDueCronTriggers(ctx context.Context, now time.Time, limit int) ([]domain.Trigger, error)

	// UpdateTriggerNextDue записывает время следующего срабатывания.
	UpdateTriggerNextDue(ctx context.Context, triggerID uuid.UUID, next time.Time) error
}

// SnapshotStore — неизменяемые snapshots.
type SnapshotStore interface {
	// CreateSnapshot сохраняет новый snapshot.
	CreateSnapshot(ctx context.Context, snap *domain.Snapshot) error

	// GetSnapshot возвращает snapshot по ID.
	GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error)

	// GetSnapshotByVersion возвращает snapshot пары (workflow, lock-версия).
	GetSnapshotByVersion(ctx context.Context, workflowID uuid.UUID, lockVersion int) (*domain.Snapshot, error)
}

// WorkOrderStore — work orders.
type WorkOrderStore interface {
	CreateWorkOrder(ctx context.Context, wo *domain.WorkOrder) error
	GetWorkOrder(ctx context.Context, id uuid.UUID) (*domain.WorkOrder, error)

	// UpdateWorkOrderState записывает производное состояние.
	UpdateWorkOrderState(ctx context.Context, id uuid.UUID, state domain.WorkOrderState) error

	// ListWorkOrders возвращает work orders с фильтрацией.
	ListWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]domain.WorkOrder, error)
}

// WorkOrderFilter — параметры фильтрации work orders.
type WorkOrderFilter struct {
	WorkflowID *uuid.UUID
	State      domain.WorkOrderState
	Limit      int
	Offset     int
}

// RunStore — runs и протокол claim.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	UpdateRun(ctx context.Context, run *domain.Run) error

	// ClaimOldestAvailable атомарно захватывает старейший available run:
	// переводит его в claimed, записывает воркера и время claim.
	// ErrNotFound, если доступных runs нет.
	ClaimOldestAvailable(ctx context.Context, workerID string) (*domain.Run, error)

	// GetRunByWorkOrder возвращает run для work order.
	GetRunByWorkOrder(ctx context.Context, workOrderID uuid.UUID) (*domain.Run, error)

	// ListAbandoned возвращает незавершённые claimed/started runs, чей
	// claim старше olderThan. Используется watchdog'ом.
	ListAbandoned(ctx context.Context, olderThan time.Time, limit int) ([]domain.Run, error)
}

// StepStore — steps и строки логов.
type StepStore interface {
	CreateStep(ctx context.Context, step *domain.Step) error
	GetStep(ctx context.Context, id uuid.UUID) (*domain.Step, error)
	UpdateStep(ctx context.Context, step *domain.Step) error
	ListStepsByRun(ctx context.Context, runID uuid.UUID) ([]domain.Step, error)

	// AppendLogLines сохраняет уже вычищенные redactor'ом строки.
	AppendLogLines(ctx context.Context, lines []domain.LogLine) error
	ListLogLines(ctx context.Context, runID uuid.UUID) ([]domain.LogLine, error)
}

// DataclipStore — неизменяемые dataclips.
type DataclipStore interface {
	CreateDataclip(ctx context.Context, clip *domain.Dataclip) error
	GetDataclip(ctx context.Context, id uuid.UUID) (*domain.Dataclip, error)
}

// CredentialStore — credentials и keychain credentials (только чтение:
// управление секретами вне ядра).
type CredentialStore interface {
	GetCredential(ctx context.Context, id uuid.UUID) (*domain.Credential, error)
	GetCredentialByExternalID(ctx context.Context, projectID uuid.UUID, externalID string) (*domain.Credential, error)
	GetKeychainCredential(ctx context.Context, id uuid.UUID) (*domain.KeychainCredential, error)
}

// Store — полный набор контрактов, который собирает cmd-слой.
type Store interface {
	WorkflowStore
	SnapshotStore
	WorkOrderStore
	RunStore
	StepStore
	DataclipStore
	CredentialStore
}
