package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/claims"
	"github.com/shaiso/Conductor/internal/domain"
)

// Work order DTOs

// WorkOrderResponse — ответ с work order.
type WorkOrderResponse struct {
	ID         uuid.UUID             `json:"id"`
	WorkflowID uuid.UUID             `json:"workflow_id"`
	SnapshotID uuid.UUID             `json:"snapshot_id"`
	TriggerID  uuid.UUID             `json:"trigger_id"`
	DataclipID uuid.UUID             `json:"dataclip_id"`
	State      domain.WorkOrderState `json:"state"`
	InsertedAt time.Time             `json:"inserted_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// WorkOrderFromDomain конвертирует domain.WorkOrder в WorkOrderResponse.
func WorkOrderFromDomain(wo domain.WorkOrder) WorkOrderResponse {
	return WorkOrderResponse{
		ID:         wo.ID,
		WorkflowID: wo.WorkflowID,
		SnapshotID: wo.SnapshotID,
		TriggerID:  wo.TriggerID,
		DataclipID: wo.DataclipID,
		State:      wo.State,
		InsertedAt: wo.InsertedAt,
		UpdatedAt:  wo.UpdatedAt,
	}
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID           uuid.UUID       `json:"id"`
	WorkOrderID  uuid.UUID       `json:"work_order_id"`
	SnapshotID   uuid.UUID       `json:"snapshot_id"`
	State        domain.RunState `json:"state"`
	WorkerID     string          `json:"worker_id,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	InsertedAt   time.Time       `json:"inserted_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(run domain.Run) RunResponse {
	return RunResponse{
		ID:           run.ID,
		WorkOrderID:  run.WorkOrderID,
		SnapshotID:   run.SnapshotID,
		State:        run.State,
		WorkerID:     run.WorkerID,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		ErrorMessage: run.ErrorMessage,
		InsertedAt:   run.InsertedAt,
	}
}

// Step DTOs

// StepResponse — ответ со step.
type StepResponse struct {
	ID               uuid.UUID         `json:"id"`
	JobID            uuid.UUID         `json:"job_id"`
	InputDataclipID  uuid.UUID         `json:"input_dataclip_id"`
	OutputDataclipID *uuid.UUID        `json:"output_dataclip_id,omitempty"`
	ExitReason       domain.ExitReason `json:"exit_reason,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       *time.Time        `json:"finished_at,omitempty"`
}

// StepFromDomain конвертирует domain.Step в StepResponse.
func StepFromDomain(step domain.Step) StepResponse {
	return StepResponse{
		ID:               step.ID,
		JobID:            step.JobID,
		InputDataclipID:  step.InputDataclipID,
		OutputDataclipID: step.OutputDataclipID,
		ExitReason:       step.ExitReason,
		StartedAt:        step.StartedAt,
		FinishedAt:       step.FinishedAt,
	}
}

// LogLineResponse — ответ со строкой лога.
type LogLineResponse struct {
	StepID    *uuid.UUID `json:"step_id,omitempty"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Webhook DTOs

// WebhookResponse — ответ на принятое webhook событие.
type WebhookResponse struct {
	WorkOrderID uuid.UUID `json:"work_order_id"`
	RunID       uuid.UUID `json:"run_id"`
}

// Протокол воркера

// ClaimRequest — запрос claim.
type ClaimRequest struct {
	WorkerID string `json:"worker_id"`
}

// ClaimResponse — ответ на claim.
type ClaimResponse struct {
	Run          RunResponse       `json:"run"`
	Snapshot     *domain.Snapshot  `json:"snapshot"`
	RootDataclip *domain.Dataclip  `json:"root_dataclip"`
	Ready        []claims.ReadyJob `json:"ready"`
}

// StartStepRequest — запрос start_step.
type StartStepRequest struct {
	JobID uuid.UUID `json:"job_id"`
}

// StartStepResponse — ответ на start_step.
type StartStepResponse struct {
	Step       StepResponse       `json:"step"`
	Credential *domain.Credential `json:"credential,omitempty"`
}

// AppendLogRequest — запрос append_log.
type AppendLogRequest struct {
	StepID *uuid.UUID `json:"step_id,omitempty"`
	Lines  []string   `json:"lines"`
}

// CompleteStepRequest — запрос complete_step.
type CompleteStepRequest struct {
	ExitReason domain.ExitReason `json:"exit_reason"`
	Output     map[string]any    `json:"output,omitempty"`
}

// CompleteStepResponse — ответ на complete_step.
type CompleteStepResponse struct {
	Ready []claims.ReadyJob `json:"ready"`
}

// CompleteRunRequest — запрос complete_run.
type CompleteRunRequest struct {
	FinalState   domain.RunState `json:"final_state"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
