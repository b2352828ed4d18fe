package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — определение рабочего процесса.
//
// Workflow — это "живой" DAG из jobs, triggers и edges, который можно
// редактировать. Запуски никогда не исполняют workflow напрямую: при
// создании run его текущее содержимое замораживается в Snapshot.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// ProjectID — проект-владелец. Ключ admission-контроля.
	ProjectID uuid.UUID `json:"project_id"`

	// Name — имя workflow для удобной идентификации пользователем.
	Name string `json:"name"`

	// LockVersion — монотонно растущая версия. Увеличивается при каждом
	// редактировании; snapshot привязан к конкретному значению.
	LockVersion int `json:"lock_version"`

	// Enabled — флаг активности. Триггеры выключенного workflow не срабатывают.
	Enabled bool `json:"enabled"`

	// DeletedAt — время мягкого удаления. Nil для живого workflow.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Triggers — триггеры workflow.
	Triggers []Trigger `json:"triggers"`

	// Jobs — jobs workflow.
	Jobs []Job `json:"jobs"`

	// Edges — рёбра DAG в порядке объявления. Порядок значим: при
	// нескольких одновременно подходящих рёбрах он определяет порядок
	// запуска целевых jobs.
	Edges []Edge `json:"edges"`

	// CreatedAt — время создания workflow.
	CreatedAt time.Time `json:"created_at"`
}

// IsRunnable возвращает true, если триггеры workflow могут срабатывать.
func (w *Workflow) IsRunnable() bool {
	return w.Enabled && w.DeletedAt == nil
}

// TriggerByID возвращает триггер по ID.
func (w *Workflow) TriggerByID(id uuid.UUID) *Trigger {
	for i := range w.Triggers {
		if w.Triggers[i].ID == id {
			return &w.Triggers[i]
		}
	}
	return nil
}

// JobByID возвращает job по ID.
func (w *Workflow) JobByID(id uuid.UUID) *Job {
	for i := range w.Jobs {
		if w.Jobs[i].ID == id {
			return &w.Jobs[i]
		}
	}
	return nil
}

// TriggerType — тип триггера.
type TriggerType string

const (
	// TriggerWebhook — срабатывает на входящий HTTP запрос POST /i/{trigger_id}.
	TriggerWebhook TriggerType = "webhook"

	// TriggerCron — срабатывает по расписанию.
	TriggerCron TriggerType = "cron"

	// TriggerKafka — срабатывает на событие из стрима (доставляется через MQ).
	TriggerKafka TriggerType = "kafka"
)

// Trigger — точка входа в workflow.
type Trigger struct {
	// ID — уникальный идентификатор триггера.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на родительский workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Type — тип триггера.
	Type TriggerType `json:"type"`

	// Enabled — флаг активности триггера.
	Enabled bool `json:"enabled"`

	// CronExpr — cron-выражение. Только для Type == TriggerCron.
	CronExpr string `json:"cron_expr,omitempty"`

	// Timezone — часовой пояс cron-выражения. По умолчанию UTC.
	Timezone string `json:"timezone,omitempty"`

	// NextDueAt — время следующего срабатывания cron-триггера.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
}

// Job — один исполняемый шаг workflow.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на родительский workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Name — человекочитаемое имя job.
	Name string `json:"name"`

	// Body — текст job'а, исполняемый воркером.
	Body string `json:"body"`

	// Adaptor — идентификатор адаптера среды выполнения.
	Adaptor string `json:"adaptor,omitempty"`

	// CredentialID — прямая ссылка на credential. Nil, если credential
	// не нужен или выбирается через keychain.
	CredentialID *uuid.UUID `json:"credential_id,omitempty"`

	// KeychainCredentialID — ссылка на keychain credential (динамический
	// выбор credential по данным триггера). Взаимоисключимо с CredentialID.
	KeychainCredentialID *uuid.UUID `json:"keychain_credential_id,omitempty"`
}

// EdgeCondition — тип условия на ребре DAG.
//
// Закрытое перечисление: DAG evaluator делает исчерпывающий разбор и не
// допускает строковых значений вне списка.
type EdgeCondition string

const (
	// EdgeAlways — ребро срабатывает безусловно.
	EdgeAlways EdgeCondition = "always"

	// EdgeOnSuccess — ребро срабатывает, если upstream step завершился успешно.
	EdgeOnSuccess EdgeCondition = "on_job_success"

	// EdgeOnFailure — ребро срабатывает на любой неуспешный exit_reason.
	EdgeOnFailure EdgeCondition = "on_job_failure"

	// EdgeExpression — ребро срабатывает, если выражение истинно
	// относительно выходного состояния upstream step.
	EdgeExpression EdgeCondition = "js_expression"
)

// Valid проверяет, что значение входит в перечисление.
func (c EdgeCondition) Valid() bool {
	switch c {
	case EdgeAlways, EdgeOnSuccess, EdgeOnFailure, EdgeExpression:
		return true
	default:
		return false
	}
}

// Edge — ребро DAG: источник (триггер XOR job) → целевой job.
type Edge struct {
	// ID — уникальный идентификатор ребра.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на родительский workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// SourceTriggerID — триггер-источник. Ровно одно из SourceTriggerID и
	// SourceJobID должно быть задано.
	SourceTriggerID *uuid.UUID `json:"source_trigger_id,omitempty"`

	// SourceJobID — job-источник.
	SourceJobID *uuid.UUID `json:"source_job_id,omitempty"`

	// TargetJobID — целевой job.
	TargetJobID uuid.UUID `json:"target_job_id"`

	// Condition — тип условия.
	Condition EdgeCondition `json:"condition_type"`

	// ConditionExpression — выражение для Condition == EdgeExpression.
	ConditionExpression string `json:"condition_expression,omitempty"`
}

// Snapshot — неизменяемая копия {jobs, triggers, edges} workflow,
// сделанная в момент создания run.
//
// Snapshot гарантирует, что run всегда выполняется против той топологии
// и тех тел jobs, которые существовали на момент старта, даже если живой
// workflow параллельно редактируется. После создания никогда не мутирует.
type Snapshot struct {
	// ID — уникальный идентификатор snapshot.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на исходный workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// LockVersion — версия workflow, при которой снят snapshot.
	// Пара (WorkflowID, LockVersion) уникальна.
	LockVersion int `json:"lock_version"`

	// Name — имя workflow на момент снятия.
	Name string `json:"name"`

	// Triggers — замороженные триггеры.
	Triggers []Trigger `json:"triggers"`

	// Jobs — замороженные jobs.
	Jobs []Job `json:"jobs"`

	// Edges — замороженные рёбра, порядок объявления сохранён.
	Edges []Edge `json:"edges"`

	// CreatedAt — время снятия snapshot.
	CreatedAt time.Time `json:"created_at"`
}

// JobByID возвращает замороженный job по ID.
func (s *Snapshot) JobByID(id uuid.UUID) *Job {
	for i := range s.Jobs {
		if s.Jobs[i].ID == id {
			return &s.Jobs[i]
		}
	}
	return nil
}

// TriggerByID возвращает замороженный триггер по ID.
func (s *Snapshot) TriggerByID(id uuid.UUID) *Trigger {
	for i := range s.Triggers {
		if s.Triggers[i].ID == id {
			return &s.Triggers[i]
		}
	}
	return nil
}
