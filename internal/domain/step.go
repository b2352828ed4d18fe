package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step — выполнение одного job внутри run.
//
// Создаётся, когда DAG evaluator счёл job готовым и воркер вызвал
// start_step. После установки FinishedAt step неизменяем.
type Step struct {
	// ID — уникальный идентификатор step.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// JobID — выполняемый job (из snapshot).
	JobID uuid.UUID `json:"job_id"`

	// InputDataclipID — входной dataclip.
	InputDataclipID uuid.UUID `json:"input_dataclip_id"`

	// OutputDataclipID — выходной dataclip. Заполняется тогда и только
	// тогда, когда ExitReason.ProducesDataclip().
	OutputDataclipID *uuid.UUID `json:"output_dataclip_id,omitempty"`

	// ExitReason — результат выполнения. Пусто до завершения.
	ExitReason ExitReason `json:"exit_reason,omitempty"`

	// CredentialID — credential, разрешённый для этого step.
	CredentialID *uuid.UUID `json:"credential_id,omitempty"`

	// StartedAt — время start_step.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время complete_step.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsFinished возвращает true, если step завершён.
func (s *Step) IsFinished() bool {
	return s.FinishedAt != nil
}

// MarkFinished фиксирует результат step.
func (s *Step) MarkFinished(reason ExitReason, outputDataclipID *uuid.UUID) {
	now := time.Now()
	s.ExitReason = reason
	s.FinishedAt = &now
	if reason.ProducesDataclip() {
		s.OutputDataclipID = outputDataclipID
	}
}

// LogLine — одна строка лога, привязанная к run и (опционально) step.
//
// Строки проходят через redactor до сохранения; уже сохранённые строки
// повторно не вычищаются.
type LogLine struct {
	// ID — уникальный идентификатор строки.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на run.
	RunID uuid.UUID `json:"run_id"`

	// StepID — ссылка на step. Nil для общего лога run.
	StepID *uuid.UUID `json:"step_id,omitempty"`

	// Message — текст строки после redaction.
	Message string `json:"message"`

	// Timestamp — время записи.
	Timestamp time.Time `json:"timestamp"`
}
