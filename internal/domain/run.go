package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkOrder — корневой запрос на выполнение.
//
// Создаётся на каждое успешно допущенное событие триггера. Ссылается на
// snapshot, сработавший триггер и корневой dataclip. Ядро никогда не
// удаляет work orders — retention внешняя.
type WorkOrder struct {
	// ID — уникальный идентификатор work order.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// SnapshotID — snapshot, против которого выполняются runs.
	SnapshotID uuid.UUID `json:"snapshot_id"`

	// TriggerID — сработавший триггер.
	TriggerID uuid.UUID `json:"trigger_id"`

	// DataclipID — корневой dataclip (payload события).
	DataclipID uuid.UUID `json:"dataclip_id"`

	// State — производное состояние (см. DeriveWorkOrderState).
	State WorkOrderState `json:"state"`

	// InsertedAt — время создания.
	InsertedAt time.Time `json:"inserted_at"`

	// UpdatedAt — время последнего изменения состояния.
	UpdatedAt time.Time `json:"updated_at"`
}

// Run — одна попытка выполнения work order против замороженного snapshot.
//
// Создаётся Orchestration Facade, мутируется только Claim Queue в ответ
// на сообщения протокола воркера.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// WorkOrderID — ссылка на родительский work order.
	WorkOrderID uuid.UUID `json:"work_order_id"`

	// SnapshotID — snapshot, который выполняет run.
	SnapshotID uuid.UUID `json:"snapshot_id"`

	// TriggerID — триггер, породивший run (источник стартовых рёбер DAG).
	TriggerID uuid.UUID `json:"trigger_id"`

	// DataclipID — корневой dataclip (вход стартовых jobs).
	DataclipID uuid.UUID `json:"dataclip_id"`

	// State — текущее состояние run.
	State RunState `json:"state"`

	// WorkerID — воркер, удерживающий claim. Пусто до claim.
	WorkerID string `json:"worker_id,omitempty"`

	// ClaimedAt — время захвата claim.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	// StartedAt — время start_run.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время достижения финального состояния.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// ErrorMessage — пояснение для неуспешных финальных состояний.
	ErrorMessage string `json:"error_message,omitempty"`

	// InsertedAt — время создания run. Порядок claim — FIFO по этому полю.
	InsertedAt time.Time `json:"inserted_at"`
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.State.IsTerminal()
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// MarkClaimed фиксирует захват claim воркером.
func (r *Run) MarkClaimed(workerID string) {
	now := time.Now()
	r.State = RunStateClaimed
	r.WorkerID = workerID
	r.ClaimedAt = &now
}

// MarkStarted переводит run в состояние STARTED.
func (r *Run) MarkStarted() {
	now := time.Now()
	r.State = RunStateStarted
	r.StartedAt = &now
}

// MarkFinished переводит run в финальное состояние и освобождает claim.
func (r *Run) MarkFinished(state RunState, errMsg string) {
	now := time.Now()
	r.State = state
	r.FinishedAt = &now
	r.ErrorMessage = errMsg
}

// MarkCancelled отменяет run до начала выполнения.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.State = RunStateCancelled
	r.FinishedAt = &now
}
